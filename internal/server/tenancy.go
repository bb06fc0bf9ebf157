package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tenancydomain "github.com/smallbiznis/kost/internal/tenancy/domain"
)

type checkInRequest struct {
	RoomID      string         `json:"room_id"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Phone       string         `json:"phone"`
	CheckInDate string         `json:"check_in_date"`
	Metadata    map[string]any `json:"metadata"`
}

type checkOutRequest struct {
	CheckOutDate string `json:"check_out_date"`
}

func (s *Server) CreateProperty(c *gin.Context) {
	var req tenancydomain.CreatePropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenancySvc.CreateProperty(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) CreateRoom(c *gin.Context) {
	var req tenancydomain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenancySvc.CreateRoom(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) CheckIn(c *gin.Context) {
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	checkIn, err := parseOptionalTime(req.CheckInDate, s.cfg.Location())
	if err != nil {
		AbortWithError(c, newValidationError("check_in_date", "invalid_check_in_date", "invalid check_in_date"))
		return
	}

	resp, err := s.tenancySvc.CheckIn(c.Request.Context(), tenancydomain.CheckInRequest{
		RoomID:      req.RoomID,
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		CheckInDate: timeOrZero(checkIn),
		Metadata:    req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListTenants(c *gin.Context) {
	resp, err := s.tenancySvc.ListActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTenant(c *gin.Context) {
	resp, err := s.tenancySvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CheckOut(c *gin.Context) {
	var req checkOutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	checkOut, err := parseOptionalTime(req.CheckOutDate, s.cfg.Location())
	if err != nil {
		AbortWithError(c, newValidationError("check_out_date", "invalid_check_out_date", "invalid check_out_date"))
		return
	}

	resp, err := s.tenancySvc.CheckOut(c.Request.Context(), tenancydomain.CheckOutRequest{
		TenantID:     strings.TrimSpace(c.Param("id")),
		CheckOutDate: timeOrZero(checkOut),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
