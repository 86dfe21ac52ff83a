package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/krsoni/homeledger/internal/apperr"
	"github.com/krsoni/homeledger/internal/models"
	"github.com/krsoni/homeledger/internal/storage"
)

// CreateExpense persists an expense, its obligations, its attachment
// references and the audit entry in one transaction.
func (s *SQLiteStore) CreateExpense(ctx context.Context, e *models.Expense, audit *models.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	if audit != nil {
		audit.ExpenseID = e.ID
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (id, household_id, created_by, payer_id, amount_cents, currency, category, note, date, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.HouseholdID, e.CreatedBy, e.PayerID, cents(e.Amount), e.Currency,
			e.Category, e.Note, e.Date.Unix(), e.CreatedAt.Unix(), e.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense: %w", err)
		}

		if err := insertChildren(ctx, tx, e); err != nil {
			return err
		}
		return insertAudit(ctx, tx, audit)
	})
}

// GetExpense retrieves an expense with its obligations and attachments.
func (s *SQLiteStore) GetExpense(ctx context.Context, id string) (*models.Expense, error) {
	e, err := scanExpenseRow(s.db.QueryRowContext(ctx,
		`SELECT id, household_id, created_by, payer_id, amount_cents, currency, category, note, date, created_at, updated_at
		 FROM expenses WHERE id = ?`, id,
	))
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateExpense replaces the expense row and its child rows, writing the
// audit entry in the same transaction.
func (s *SQLiteStore) UpdateExpense(ctx context.Context, e *models.Expense, audit *models.AuditEntry) error {
	e.UpdatedAt = time.Now().UTC()
	if audit != nil {
		audit.ExpenseID = e.ID
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE expenses SET amount_cents = ?, currency = ?, category = ?, note = ?, date = ?, updated_at = ?
			 WHERE id = ?`,
			cents(e.Amount), e.Currency, e.Category, e.Note, e.Date.Unix(), e.UpdatedAt.Unix(), e.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update expense: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("expense not found")
		}

		// A settle can commit between the caller's read and this replace.
		// Carry the current settled state over so the replace cannot flip a
		// settled obligation back to open.
		if err := mergeSettledState(ctx, tx, e); err != nil {
			return err
		}

		// Obligations and attachments are owned by the expense; a full
		// replace keeps the row set in step with the domain value.
		if _, err := tx.ExecContext(ctx, "DELETE FROM obligations WHERE expense_id = ?", e.ID); err != nil {
			return fmt.Errorf("failed to clear obligations: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM attachments WHERE expense_id = ?", e.ID); err != nil {
			return fmt.Errorf("failed to clear attachments: %w", err)
		}
		if err := insertChildren(ctx, tx, e); err != nil {
			return err
		}
		return insertAudit(ctx, tx, audit)
	})
}

// DeleteExpense removes the expense (child rows cascade) and writes the audit
// entry in the same transaction.
func (s *SQLiteStore) DeleteExpense(ctx context.Context, id string, audit *models.AuditEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete expense: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("expense not found")
		}
		return insertAudit(ctx, tx, audit)
	})
}

// SettleObligation flips one obligation to settled. The UPDATE is guarded by
// settled = 0 so that of two racing callers exactly one succeeds; the loser
// is told the obligation was already settled.
func (s *SQLiteStore) SettleObligation(ctx context.Context, expenseID, userID string, at time.Time, audit *models.AuditEntry) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE obligations SET settled = 1, settled_at = ? WHERE expense_id = ? AND user_id = ? AND settled = 0",
			at.Unix(), expenseID, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to settle obligation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var settled int
			err := tx.QueryRowContext(ctx,
				"SELECT settled FROM obligations WHERE expense_id = ? AND user_id = ?",
				expenseID, userID,
			).Scan(&settled)
			if err == sql.ErrNoRows {
				return apperr.NotFound("no obligation for this user")
			}
			if err != nil {
				return fmt.Errorf("failed to check obligation: %w", err)
			}
			return apperr.Conflict("obligation already settled")
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE expenses SET updated_at = ? WHERE id = ?", at.Unix(), expenseID,
		); err != nil {
			return fmt.Errorf("failed to touch expense: %w", err)
		}
		return insertAudit(ctx, tx, audit)
	})
}

// ListExpenses returns one page of a household's expenses, filtered and
// ordered by date then creation time, newest first. The expense ID is the
// final tiebreaker so ordering is stable across pages.
func (s *SQLiteStore) ListExpenses(ctx context.Context, householdID string, f storage.ExpenseFilter, p storage.PageRequest) (*storage.ExpensePage, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}

	where := []string{"household_id = ?"}
	args := []any{householdID}

	if f.Month >= 1 && f.Month <= 12 && f.Year > 0 {
		start := time.Date(f.Year, time.Month(f.Month), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0)
		where = append(where, "date >= ? AND date < ?")
		args = append(args, start.Unix(), end.Unix())
	}
	if f.PayerID != "" {
		where = append(where, "payer_id = ?")
		args = append(args, f.PayerID)
	}
	if f.Search != "" {
		where = append(where, "(category LIKE ? ESCAPE '\\' OR note LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(f.Search) + "%"
		args = append(args, pattern, pattern)
	}
	if f.Unpaid {
		where = append(where, "EXISTS (SELECT 1 FROM obligations o WHERE o.expense_id = expenses.id AND o.settled = 0)")
	}

	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM expenses WHERE "+clause, args...,
	).Scan(&total); err != nil {
		return nil, classify(fmt.Errorf("failed to count expenses: %w", err))
	}

	query := `SELECT id, household_id, created_by, payer_id, amount_cents, currency, category, note, date, created_at, updated_at
		 FROM expenses WHERE ` + clause + ` ORDER BY date DESC, created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, p.Limit, (p.Page-1)*p.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list expenses: %w", err))
	}
	defer rows.Close()

	var expenses []*models.Expense
	for rows.Next() {
		e, err := scanExpenseRow(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}

	for _, e := range expenses {
		if err := s.loadChildren(ctx, e); err != nil {
			return nil, err
		}
	}

	totalPages := (total + p.Limit - 1) / p.Limit
	return &storage.ExpensePage{
		Expenses:   expenses,
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanExpenseRow(row scanner) (*models.Expense, error) {
	e := &models.Expense{}
	var amountCents, date, createdAt, updatedAt int64
	var note sql.NullString

	err := row.Scan(
		&e.ID, &e.HouseholdID, &e.CreatedBy, &e.PayerID, &amountCents,
		&e.Currency, &e.Category, &note, &date, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("expense not found")
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to scan expense: %w", err))
	}

	e.Amount = fromCents(amountCents)
	if note.Valid {
		e.Note = note.String
	}
	e.Date = time.Unix(date, 0).UTC()
	e.CreatedAt = time.Unix(createdAt, 0).UTC()
	e.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return e, nil
}

// loadChildren fills in the expense's obligations and attachments.
// Obligations come back in insertion order, matching allocation order.
func (s *SQLiteStore) loadChildren(ctx context.Context, e *models.Expense) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, amount_cents, settled, settled_at, note FROM obligations WHERE expense_id = ? ORDER BY rowid",
		e.ID,
	)
	if err != nil {
		return classify(fmt.Errorf("failed to get obligations: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var o models.Obligation
		var amountCents int64
		var settled int
		var settledAt sql.NullInt64
		var note sql.NullString
		if err := rows.Scan(&o.UserID, &amountCents, &settled, &settledAt, &note); err != nil {
			return fmt.Errorf("failed to scan obligation: %w", err)
		}
		o.Amount = fromCents(amountCents)
		o.Settled = settled != 0
		if settledAt.Valid {
			at := time.Unix(settledAt.Int64, 0).UTC()
			o.SettledAt = &at
		}
		if note.Valid {
			o.Note = note.String
		}
		e.Obligations = append(e.Obligations, o)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate obligations: %w", err)
	}

	attRows, err := s.db.QueryContext(ctx,
		"SELECT public_id, url, uploaded_at FROM attachments WHERE expense_id = ? ORDER BY rowid",
		e.ID,
	)
	if err != nil {
		return classify(fmt.Errorf("failed to get attachments: %w", err))
	}
	defer attRows.Close()

	for attRows.Next() {
		var a models.Attachment
		var uploadedAt int64
		if err := attRows.Scan(&a.PublicID, &a.URL, &uploadedAt); err != nil {
			return fmt.Errorf("failed to scan attachment: %w", err)
		}
		a.UploadedAt = time.Unix(uploadedAt, 0).UTC()
		e.Attachments = append(e.Attachments, a)
	}
	return attRows.Err()
}

// mergeSettledState copies the settled flag and timestamp of already-settled
// obligation rows onto the incoming obligations for the same users.
func mergeSettledState(ctx context.Context, tx *sql.Tx, e *models.Expense) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT user_id, settled_at FROM obligations WHERE expense_id = ? AND settled = 1", e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to read settled obligations: %w", err)
	}
	defer rows.Close()

	settledAt := make(map[string]*time.Time)
	for rows.Next() {
		var userID string
		var at sql.NullInt64
		if err := rows.Scan(&userID, &at); err != nil {
			return fmt.Errorf("failed to scan settled obligation: %w", err)
		}
		var ts *time.Time
		if at.Valid {
			t := time.Unix(at.Int64, 0).UTC()
			ts = &t
		}
		settledAt[userID] = ts
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate settled obligations: %w", err)
	}

	for i := range e.Obligations {
		if ts, ok := settledAt[e.Obligations[i].UserID]; ok && !e.Obligations[i].Settled {
			e.Obligations[i].Settled = true
			e.Obligations[i].SettledAt = ts
		}
	}
	return nil
}

func insertChildren(ctx context.Context, tx *sql.Tx, e *models.Expense) error {
	for _, o := range e.Obligations {
		settled := 0
		if o.Settled {
			settled = 1
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO obligations (expense_id, user_id, amount_cents, settled, settled_at, note) VALUES (?, ?, ?, ?, ?, ?)",
			e.ID, o.UserID, cents(o.Amount), settled, unixOrNil(o.SettledAt), o.Note,
		); err != nil {
			return fmt.Errorf("failed to insert obligation: %w", err)
		}
	}
	for _, a := range e.Attachments {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO attachments (expense_id, public_id, url, uploaded_at) VALUES (?, ?, ?, ?)",
			e.ID, a.PublicID, a.URL, a.UploadedAt.Unix(),
		); err != nil {
			return fmt.Errorf("failed to insert attachment: %w", err)
		}
	}
	return nil
}

// escapeLike escapes LIKE wildcards in user-supplied search text.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
