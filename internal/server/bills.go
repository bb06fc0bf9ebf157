package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/kost/internal/billing/domain"
	obsmetrics "github.com/smallbiznis/kost/internal/observability/metrics"
	"github.com/smallbiznis/kost/pkg/db/pagination"
	"go.uber.org/zap"
)

// GenerateBills runs generation for the current month now. Per-tenant
// failures are reported in the summary with a 200.
func (s *Server) GenerateBills(c *gin.Context) {
	summary, err := s.runner.RunNow(c.Request.Context())
	if err != nil && !errors.Is(err, obsmetrics.ErrPartialFailure) {
		if isTimeoutError(err) {
			s.log.Warn("bill generation interrupted",
				zap.Int("generated", summary.Generated),
				zap.Int("tenants_considered", summary.TenantsConsidered),
				zap.Error(err),
			)
		}
		AbortWithError(c, err)
		return
	}
	if err != nil {
		s.log.Warn("bill generation finished with failures",
			zap.Int("failed", summary.Failed),
			zap.Int("tenants_considered", summary.TenantsConsidered),
		)
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) ListBills(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status   string `form:"status"`
		TenantID string `form:"tenant_id"`
		Period   string `form:"period"`
		Overdue  string `form:"overdue"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	overdue, err := parseOptionalBool(query.Overdue)
	if err != nil {
		AbortWithError(c, newValidationError("overdue", "invalid_overdue", "invalid overdue"))
		return
	}

	resp, err := s.billingSvc.ListBills(c.Request.Context(), billingdomain.ListBillsRequest{
		Status:    strings.TrimSpace(query.Status),
		TenantID:  strings.TrimSpace(query.TenantID),
		PeriodKey: strings.TrimSpace(query.Period),
		Overdue:   overdue != nil && *overdue,
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBill(c *gin.Context) {
	resp, err := s.billingSvc.GetBillByNumber(c.Request.Context(), strings.TrimSpace(c.Param("number")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RenderInvoice(c *gin.Context) {
	number := strings.TrimSpace(c.Param("number"))
	doc, err := s.billingSvc.RenderInvoice(c.Request.Context(), number)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="`+number+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}
