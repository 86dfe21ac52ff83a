package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/krsoni/homeledger/internal/middleware"
	"github.com/krsoni/homeledger/internal/models"
)

type auditEntryResponse struct {
	ID        string          `json:"id"`
	ExpenseID string          `json:"expense_id,omitempty"`
	ActorID   string          `json:"actor_id"`
	Action    string          `json:"action"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toAuditEntryResponse(a models.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:        a.ID,
		ExpenseID: a.ExpenseID,
		ActorID:   a.ActorID,
		Action:    string(a.Action),
		Before:    a.Before,
		After:     a.After,
		CreatedAt: a.CreatedAt,
	}
}

func (s *Server) listAudit(c *gin.Context) {
	entries, err := s.ledger.ListAudit(c.Request.Context(), middleware.UserID(c), c.Param("id"), queryInt(c, "limit"))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]auditEntryResponse, len(entries))
	for i, a := range entries {
		out[i] = toAuditEntryResponse(a)
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}
