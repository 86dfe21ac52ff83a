package ledger

import (
	"context"
	"log/slog"

	"github.com/krsoni/homeledger/internal/apperr"
	"github.com/krsoni/homeledger/internal/models"
)

// MarkSettled records that owedByUserID has paid their share of the expense
// back. The flip happens exactly once: a second call for the same obligation
// fails with a conflict error and leaves the original settlement timestamp
// untouched. Callers should treat that conflict as "already true", not as a
// fatal failure.
func (s *Service) MarkSettled(ctx context.Context, callerID, expenseID, owedByUserID string) (*models.Expense, error) {
	e, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.IsMember(ctx, e.HouseholdID, callerID); err != nil {
		return nil, err
	}

	o := e.Obligation(owedByUserID)
	if o == nil {
		return nil, apperr.NotFound("no obligation for this user")
	}
	if o.Settled {
		return nil, apperr.Conflict("obligation already settled")
	}

	before := e.Clone()
	at := s.now()

	after := e.Clone()
	if ao := after.Obligation(owedByUserID); ao != nil {
		ao.Settled = true
		ao.SettledAt = &at
	}

	audit := &models.AuditEntry{
		HouseholdID: e.HouseholdID,
		ExpenseID:   e.ID,
		ActorID:     callerID,
		Action:      models.ActionSettled,
		Before:      models.Snapshot(before),
		After:       models.Snapshot(after),
	}

	// The store re-checks the settled flag inside the transaction, so a
	// racing caller that slipped past the check above still loses cleanly.
	if err := s.withRetry(ctx, func() error {
		return s.store.SettleObligation(ctx, expenseID, owedByUserID, at, audit)
	}); err != nil {
		return nil, err
	}

	slog.Info("obligation settled",
		"expense_id", expenseID,
		"owed_by", owedByUserID,
		"actor_id", callerID,
	)
	return s.store.GetExpense(ctx, expenseID)
}
