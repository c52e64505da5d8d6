package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	creditdomain "github.com/smallbiznis/credits/internal/credit/domain"
)

type addCreditsRequest struct {
	UserID         string `json:"user_id"`
	Amount         int64  `json:"amount"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key"`
	PlanID         string `json:"plan_id"`
	ValidityDays   int    `json:"validity_days"`
}

type deductCreditsRequest struct {
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type reserveCreditsRequest struct {
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	ReservationID string `json:"reservation_id"`
	Reason        string `json:"reason"`
	TTLSeconds    int64  `json:"ttl_seconds"`
}

type commitReservationRequest struct {
	ActualAmount int64  `json:"actual_amount"`
	Description  string `json:"description"`
}

func (s *Server) AddCredits(c *gin.Context) {
	var req addCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tx, err := s.credits.AddCredits(c.Request.Context(), creditdomain.AddCreditsRequest{
		UserID:         strings.TrimSpace(req.UserID),
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		PlanID:         strings.TrimSpace(req.PlanID),
		ValidityDays:   req.ValidityDays,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tx})
}

func (s *Server) DeductCredits(c *gin.Context) {
	var req deductCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tx, err := s.credits.DeductCredits(c.Request.Context(), creditdomain.DeductCreditsRequest{
		UserID:      strings.TrimSpace(req.UserID),
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tx})
}

func (s *Server) ReserveCredits(c *gin.Context) {
	var req reserveCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	reservation, err := s.credits.ReserveCredits(c.Request.Context(), creditdomain.ReserveCreditsRequest{
		UserID:        strings.TrimSpace(req.UserID),
		Amount:        req.Amount,
		ReservationID: strings.TrimSpace(req.ReservationID),
		Reason:        req.Reason,
		TTL:           time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reservation})
}

func (s *Server) CommitReservation(c *gin.Context) {
	var req commitReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tx, err := s.credits.CommitReservation(c.Request.Context(), creditdomain.CommitReservationRequest{
		ReservationID: c.Param("id"),
		ActualAmount:  req.ActualAmount,
		Description:   req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tx})
}

func (s *Server) ReleaseReservation(c *gin.Context) {
	if err := s.credits.ReleaseReservation(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"released": true}})
}

func (s *Server) GetUserCreditsInfo(c *gin.Context) {
	info, err := s.credits.GetUserCreditsInfo(c.Request.Context(), c.Param("userId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": info})
}

func (s *Server) GetCreditHistory(c *gin.Context) {
	history, err := s.credits.GetCreditHistory(c.Request.Context(), c.Param("userId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": history})
}

func (s *Server) GetExpiringCredits(c *gin.Context) {
	days := s.cfg.ExpiringSoonDays
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		days = parsed
	}

	expiring, err := s.credits.GetExpiringCredits(c.Request.Context(), c.Param("userId"), time.Duration(days)*24*time.Hour)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": expiring})
}
