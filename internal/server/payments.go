package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/kost/internal/payment/domain"
)

type reportPaymentRequest struct {
	Amount        int64  `json:"amount"`
	PaymentDate   string `json:"payment_date"`
	PaymentMethod string `json:"payment_method"`
	ProofImage    string `json:"proof_image"`
	Notes         string `json:"notes"`
}

type rejectPaymentRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) ReportPayment(c *gin.Context) {
	var req reportPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	paidAt, err := parseOptionalTime(req.PaymentDate, s.cfg.Location())
	if err != nil {
		AbortWithError(c, paymentdomain.ErrInvalidPaymentDate)
		return
	}

	resp, err := s.paymentSvc.ReportPayment(c.Request.Context(), paymentdomain.ReportPaymentRequest{
		BillNumber:    strings.TrimSpace(c.Param("number")),
		Amount:        req.Amount,
		PaymentDate:   timeOrZero(paidAt),
		PaymentMethod: req.PaymentMethod,
		ProofImage:    req.ProofImage,
		Notes:         req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListBillPayments(c *gin.Context) {
	resp, err := s.paymentSvc.ListByBill(c.Request.Context(), strings.TrimSpace(c.Param("number")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPayment(c *gin.Context) {
	resp, err := s.paymentSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ConfirmPayment(c *gin.Context) {
	resp, err := s.paymentSvc.Confirm(c.Request.Context(), paymentdomain.ConfirmRequest{
		PaymentID: strings.TrimSpace(c.Param("id")),
		ActorID:   actorID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RejectPayment(c *gin.Context) {
	var req rejectPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.Reject(c.Request.Context(), paymentdomain.RejectRequest{
		PaymentID: strings.TrimSpace(c.Param("id")),
		Reason:    req.Reason,
		ActorID:   actorID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RenderReceipt(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	doc, err := s.paymentSvc.RenderReceipt(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="receipt-`+id+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}
