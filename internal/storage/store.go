// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"time"

	"github.com/krsoni/homeledger/internal/models"
)

// ExpenseFilter narrows an expense listing. Zero values mean "no filter".
type ExpenseFilter struct {
	// Month (1-12) and Year select a calendar month; both must be set to apply.
	Month int
	Year  int

	// PayerID keeps only expenses paid by this user.
	PayerID string

	// Search is a case-insensitive substring match over category and note.
	Search string

	// Unpaid keeps only expenses with at least one unsettled obligation.
	Unpaid bool
}

// PageRequest is an offset pagination request.
type PageRequest struct {
	Page  int // 1-based
	Limit int
}

// ExpensePage is one page of a filtered expense listing.
type ExpensePage struct {
	Expenses   []*models.Expense
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// Store defines the persistence interface for the ledger.
//
// Mutating operations that take an audit entry persist the entity and the
// entry in one transaction: either both are written or neither is. This keeps
// concurrent readers from ever observing an expense without its obligations
// or an obligation flip without its audit trail.
//
// Transient failures (busy database) are reported with apperr.KindTransient
// so callers can retry; all other failures are final.
type Store interface {
	// Users.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// Households.
	CreateHousehold(ctx context.Context, h *models.Household) error
	GetHousehold(ctx context.Context, id string) (*models.Household, error)
	GetHouseholdByJoinCode(ctx context.Context, code string) (*models.Household, error)
	AddMember(ctx context.Context, householdID string, m models.Member) error
	SetPrimaryHolder(ctx context.Context, householdID, userID string) error

	// Expenses. Create/Update/Delete write the expense, its obligations and
	// the audit entry atomically.
	CreateExpense(ctx context.Context, e *models.Expense, audit *models.AuditEntry) error
	GetExpense(ctx context.Context, id string) (*models.Expense, error)
	UpdateExpense(ctx context.Context, e *models.Expense, audit *models.AuditEntry) error
	DeleteExpense(ctx context.Context, id string, audit *models.AuditEntry) error
	ListExpenses(ctx context.Context, householdID string, f ExpenseFilter, p PageRequest) (*ExpensePage, error)

	// SettleObligation marks the obligation as settled at the given time.
	// The flip is guarded inside the transaction: a racing second caller gets
	// apperr.KindConflict, a missing obligation apperr.KindNotFound.
	SettleObligation(ctx context.Context, expenseID, userID string, at time.Time, audit *models.AuditEntry) error

	// Milk days. Upsert replaces the quantity for an existing (household, day)
	// pair instead of creating a duplicate.
	UpsertMilkDay(ctx context.Context, d *models.MilkDay, audit *models.AuditEntry) error
	ListMilkDays(ctx context.Context, householdID string, from, to time.Time) ([]models.MilkDay, error)

	// Audit trail, newest first.
	ListAuditEntries(ctx context.Context, householdID string, limit int) ([]models.AuditEntry, error)

	// Close releases any resources held by the store.
	Close() error
}
