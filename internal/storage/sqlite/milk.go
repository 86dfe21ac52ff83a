package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/krsoni/homeledger/internal/models"
)

// UpsertMilkDay inserts or replaces the litres for a (household, day) pair,
// writing the audit entry in the same transaction.
func (s *SQLiteStore) UpsertMilkDay(ctx context.Context, d *models.MilkDay, audit *models.AuditEntry) error {
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO milk_days (household_id, day, litres_milli, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (household_id, day)
			 DO UPDATE SET litres_milli = excluded.litres_milli, updated_at = excluded.updated_at`,
			d.HouseholdID, d.Date.Unix(), milli(d.Litres), d.CreatedAt.Unix(), d.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert milk day: %w", err)
		}
		return insertAudit(ctx, tx, audit)
	})
}

// ListMilkDays returns the records with from <= day < to, oldest first.
func (s *SQLiteStore) ListMilkDays(ctx context.Context, householdID string, from, to time.Time) ([]models.MilkDay, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT household_id, day, litres_milli, created_at, updated_at
		 FROM milk_days WHERE household_id = ? AND day >= ? AND day < ? ORDER BY day`,
		householdID, from.Unix(), to.Unix(),
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list milk days: %w", err))
	}
	defer rows.Close()

	var days []models.MilkDay
	for rows.Next() {
		var d models.MilkDay
		var day, litres, createdAt, updatedAt int64
		if err := rows.Scan(&d.HouseholdID, &day, &litres, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan milk day: %w", err)
		}
		d.Date = time.Unix(day, 0).UTC()
		d.Litres = fromMilli(litres)
		d.CreatedAt = time.Unix(createdAt, 0).UTC()
		d.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		days = append(days, d)
	}
	return days, rows.Err()
}
