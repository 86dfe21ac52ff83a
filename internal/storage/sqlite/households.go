package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/krsoni/homeledger/internal/apperr"
	"github.com/krsoni/homeledger/internal/models"
)

// CreateHousehold persists a household and its initial member list.
func (s *SQLiteStore) CreateHousehold(ctx context.Context, h *models.Household) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now

	return s.inTx(ctx, func(tx *sql.Tx) error {
		var primary any
		if h.PrimaryHolderID != "" {
			primary = h.PrimaryHolderID
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO households (id, name, join_code, primary_holder, currency, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			h.ID, h.Name, h.JoinCode, primary, h.Currency, h.CreatedAt.Unix(), h.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert household: %w", err)
		}

		for _, m := range h.Members {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO household_members (household_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
				h.ID, m.UserID, string(m.Role), m.JoinedAt.Unix(),
			); err != nil {
				return fmt.Errorf("failed to insert member: %w", err)
			}
		}
		return nil
	})
}

// GetHousehold retrieves a household with its member list in join order.
func (s *SQLiteStore) GetHousehold(ctx context.Context, id string) (*models.Household, error) {
	return s.getHousehold(ctx, "WHERE id = ?", id)
}

// GetHouseholdByJoinCode retrieves a household by its join code.
func (s *SQLiteStore) GetHouseholdByJoinCode(ctx context.Context, code string) (*models.Household, error) {
	return s.getHousehold(ctx, "WHERE join_code = ?", code)
}

func (s *SQLiteStore) getHousehold(ctx context.Context, where string, arg any) (*models.Household, error) {
	h := &models.Household{}
	var primary sql.NullString
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, join_code, primary_holder, currency, created_at, updated_at FROM households "+where,
		arg,
	).Scan(&h.ID, &h.Name, &h.JoinCode, &primary, &h.Currency, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("household not found")
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get household: %w", err))
	}

	if primary.Valid {
		h.PrimaryHolderID = primary.String
	}
	h.CreatedAt = time.Unix(createdAt, 0).UTC()
	h.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	// Join order decides who receives remainder cents from equal splits, so
	// the ordering here must stay stable across reloads.
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id, role, joined_at FROM household_members WHERE household_id = ? ORDER BY joined_at, user_id",
		h.ID,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get members: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Member
		var role string
		var joinedAt int64
		if err := rows.Scan(&m.UserID, &role, &joinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Role = models.Role(role)
		m.JoinedAt = time.Unix(joinedAt, 0).UTC()
		h.Members = append(h.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return h, nil
}

// AddMember appends a member to the household. Adding an existing member is a
// conflict.
func (s *SQLiteStore) AddMember(ctx context.Context, householdID string, m models.Member) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			"SELECT 1 FROM household_members WHERE household_id = ? AND user_id = ?",
			householdID, m.UserID,
		).Scan(&exists)
		if err == nil {
			return apperr.Conflict("user is already a household member")
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check membership: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO household_members (household_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
			householdID, m.UserID, string(m.Role), m.JoinedAt.Unix(),
		); err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE households SET updated_at = ? WHERE id = ?",
			time.Now().UTC().Unix(), householdID,
		); err != nil {
			return fmt.Errorf("failed to touch household: %w", err)
		}
		return nil
	})
}

// SetPrimaryHolder designates the member who absorbs personal-money expenses.
func (s *SQLiteStore) SetPrimaryHolder(ctx context.Context, householdID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE households SET primary_holder = ?, updated_at = ? WHERE id = ?",
		userID, time.Now().UTC().Unix(), householdID,
	)
	if err != nil {
		return classify(fmt.Errorf("failed to set primary holder: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("household not found")
	}
	return nil
}
