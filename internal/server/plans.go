package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type assignPlanRequest struct {
	UserID string `json:"user_id"`
	PlanID string `json:"plan_id"`
}

func (s *Server) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.catalog.Plans()})
}

func (s *Server) AssignPlan(c *gin.Context) {
	var req assignPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil ||
		strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.PlanID) == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sub, err := s.allocator.AssignPlan(c.Request.Context(), strings.TrimSpace(req.UserID), strings.TrimSpace(req.PlanID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) GetSubscription(c *gin.Context) {
	sub, err := s.allocator.GetSubscription(c.Request.Context(), c.Param("userId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) CancelPlan(c *gin.Context) {
	if err := s.allocator.CancelPlan(c.Request.Context(), c.Param("userId")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"auto_renew": false}})
}
