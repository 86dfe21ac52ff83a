package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/krsoni/homeledger/internal/middleware"
	"github.com/krsoni/homeledger/internal/models"
)

type createHouseholdRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

type joinHouseholdRequest struct {
	JoinCode string `json:"join_code" binding:"required"`
}

type setPrimaryHolderRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type sendInvitesRequest struct {
	Emails []string `json:"emails" binding:"required"`
}

type memberResponse struct {
	UserID   string    `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type householdResponse struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	JoinCode        string           `json:"join_code"`
	Currency        string           `json:"currency"`
	PrimaryHolderID string           `json:"primary_holder_id,omitempty"`
	Members         []memberResponse `json:"members"`
	CreatedAt       time.Time        `json:"created_at"`
}

func toHouseholdResponse(h *models.Household) householdResponse {
	members := make([]memberResponse, len(h.Members))
	for i, m := range h.Members {
		members[i] = memberResponse{UserID: m.UserID, Role: string(m.Role), JoinedAt: m.JoinedAt}
	}
	return householdResponse{
		ID:              h.ID,
		Name:            h.Name,
		JoinCode:        h.JoinCode,
		Currency:        h.Currency,
		PrimaryHolderID: h.PrimaryHolderID,
		Members:         members,
		CreatedAt:       h.CreatedAt,
	}
}

func (s *Server) createHousehold(c *gin.Context) {
	var req createHouseholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	h, err := s.households.Create(c.Request.Context(), middleware.UserID(c), req.Name, req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toHouseholdResponse(h))
}

func (s *Server) joinHousehold(c *gin.Context) {
	var req joinHouseholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	h, err := s.households.Join(c.Request.Context(), middleware.UserID(c), req.JoinCode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toHouseholdResponse(h))
}

func (s *Server) getHousehold(c *gin.Context) {
	h, err := s.households.Get(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toHouseholdResponse(h))
}

func (s *Server) setPrimaryHolder(c *gin.Context) {
	var req setPrimaryHolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.households.SetPrimaryHolder(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"primary_holder_id": req.UserID})
}

func (s *Server) sendInvites(c *gin.Context) {
	var req sendInvitesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	sent, err := s.households.Invite(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Emails)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}
