package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/krsoni/homeledger/internal/models"
)

// insertAudit writes one audit entry inside an open transaction. Entries are
// append-only; nothing in this package updates or deletes them.
func insertAudit(ctx context.Context, tx *sql.Tx, a *models.AuditEntry) error {
	if a == nil {
		return nil
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	var expenseID any
	if a.ExpenseID != "" {
		expenseID = a.ExpenseID
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_entries (id, household_id, expense_id, actor_id, action, before_json, after_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.HouseholdID, expenseID, a.ActorID, string(a.Action),
		rawOrNil(a.Before), rawOrNil(a.After), a.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns a household's audit trail, newest first.
func (s *SQLiteStore) ListAuditEntries(ctx context.Context, householdID string, limit int) ([]models.AuditEntry, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, household_id, expense_id, actor_id, action, before_json, after_json, created_at
		 FROM audit_entries WHERE household_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		householdID, limit,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list audit entries: %w", err))
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var a models.AuditEntry
		var expenseID, before, after sql.NullString
		var action string
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.HouseholdID, &expenseID, &a.ActorID, &action, &before, &after, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if expenseID.Valid {
			a.ExpenseID = expenseID.String
		}
		a.Action = models.AuditAction(action)
		if before.Valid {
			a.Before = json.RawMessage(before.String)
		}
		if after.Valid {
			a.After = json.RawMessage(after.String)
		}
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

func rawOrNil(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return string(m)
}
