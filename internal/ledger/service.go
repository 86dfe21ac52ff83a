// Package ledger orchestrates expense recording, settlement and the monthly
// milk aggregate. Every mutation persists its expense, obligations and audit
// entry as one atomic unit via the store; external side effects (attachment
// uploads) are compensated when the unit fails.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/krsoni/homeledger/internal/allocation"
	"github.com/krsoni/homeledger/internal/apperr"
	"github.com/krsoni/homeledger/internal/attachments"
	"github.com/krsoni/homeledger/internal/household"
	"github.com/krsoni/homeledger/internal/models"
	"github.com/krsoni/homeledger/internal/storage"
)

// How many times a transient storage failure is retried before surfacing.
const maxStorageRetries = 3

// Service is the ledger transaction manager.
type Service struct {
	store       storage.Store
	directory   *household.Directory
	attachments attachments.Store

	pricePerLitre   decimal.Decimal
	defaultCurrency string

	now func() time.Time
}

// NewService wires the ledger with its collaborators. pricePerLitre is the
// fixed rate used by the monthly milk aggregate.
func NewService(store storage.Store, dir *household.Directory, att attachments.Store, pricePerLitre decimal.Decimal, defaultCurrency string) *Service {
	return &Service{
		store:           store,
		directory:       dir,
		attachments:     att,
		pricePerLitre:   pricePerLitre,
		defaultCurrency: defaultCurrency,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// CreateExpenseInput carries everything needed to record an expense.
type CreateExpenseInput struct {
	HouseholdID string
	PayerID     string
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Note        string
	Date        time.Time

	// Obligations, when non-empty, bypass policy-based allocation.
	Obligations []models.Obligation

	// PersonalMoney reports whether the payer spent their own money. When
	// nil, personal money is assumed unless the payer is the household's
	// primary holder.
	PersonalMoney *bool

	// Attachments were already uploaded by the caller; they are deleted as
	// compensation if persisting the expense fails.
	Attachments []models.Attachment
}

// CreateExpense validates, allocates obligations and persists the expense
// atomically with its audit entry.
func (s *Service) CreateExpense(ctx context.Context, callerID string, in CreateExpenseInput) (*models.Expense, error) {
	e, err := s.createExpense(ctx, callerID, in, models.ActionCreated)
	if err != nil {
		s.compensateAttachments(ctx, in.Attachments)
		return nil, err
	}
	return e, nil
}

func (s *Service) createExpense(ctx context.Context, callerID string, in CreateExpenseInput, action models.AuditAction) (*models.Expense, error) {
	if _, err := s.directory.IsMember(ctx, in.HouseholdID, callerID); err != nil {
		return nil, err
	}
	h, err := s.store.GetHousehold(ctx, in.HouseholdID)
	if err != nil {
		return nil, err
	}
	if h.Member(in.PayerID) == nil {
		return nil, apperr.Validation("payer must be a household member")
	}
	if in.Amount.IsNegative() {
		return nil, apperr.Validation("amount must not be negative")
	}

	obligations, err := s.resolveObligations(h, in)
	if err != nil {
		return nil, err
	}

	if in.Currency == "" {
		if in.Currency = h.Currency; in.Currency == "" {
			in.Currency = s.defaultCurrency
		}
	}
	if in.Category == "" {
		in.Category = "Other"
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}

	e := &models.Expense{
		HouseholdID: in.HouseholdID,
		CreatedBy:   callerID,
		PayerID:     in.PayerID,
		Amount:      in.Amount.Round(2),
		Currency:    in.Currency,
		Category:    in.Category,
		Note:        in.Note,
		Date:        in.Date,
		Obligations: obligations,
		Attachments: in.Attachments,
	}

	audit := &models.AuditEntry{
		HouseholdID: in.HouseholdID,
		ActorID:     callerID,
		Action:      action,
		After:       models.Snapshot(e),
	}

	if err := s.withRetry(ctx, func() error {
		return s.store.CreateExpense(ctx, e, audit)
	}); err != nil {
		return nil, err
	}

	slog.Info("expense recorded",
		"expense_id", e.ID,
		"household_id", e.HouseholdID,
		"payer_id", e.PayerID,
		"amount", e.Amount.StringFixed(2),
		"obligations", len(e.Obligations),
	)
	return e, nil
}

// resolveObligations honors explicit obligations when supplied, otherwise
// decides the policy and allocates.
func (s *Service) resolveObligations(h *models.Household, in CreateExpenseInput) ([]models.Obligation, error) {
	memberIDs := h.MemberIDs()

	if len(in.Obligations) > 0 {
		if err := allocation.ValidateExplicit(in.Obligations, in.Amount, memberIDs); err != nil {
			return nil, err
		}
		out := make([]models.Obligation, len(in.Obligations))
		for i, o := range in.Obligations {
			out[i] = models.Obligation{UserID: o.UserID, Amount: o.Amount.Round(2), Note: o.Note}
		}
		return out, nil
	}

	personal := true
	if in.PersonalMoney != nil {
		personal = *in.PersonalMoney
	} else if h.PrimaryHolderID != "" && h.PrimaryHolderID == in.PayerID {
		// The primary holder spending without saying otherwise is treated as
		// spending pooled household money.
		personal = false
	}

	policy := allocation.DecidePolicy(personal, in.PayerID, h.PrimaryHolderID)
	return allocation.Allocate(in.Amount, in.PayerID, memberIDs, policy, h.PrimaryHolderID)
}

// GetExpense returns the expense after verifying caller membership.
func (s *Service) GetExpense(ctx context.Context, callerID, id string) (*models.Expense, error) {
	e, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.IsMember(ctx, e.HouseholdID, callerID); err != nil {
		return nil, err
	}
	return e, nil
}

// ExpensePatch carries the restricted set of updatable fields. Nil fields are
// left unchanged.
type ExpensePatch struct {
	Amount      *decimal.Decimal
	Category    *string
	Note        *string
	Date        *time.Time
	Obligations *[]models.Obligation
	Attachments *[]models.Attachment
}

// UpdateExpense applies the patch and persists the new state atomically with
// an audit entry holding before and after snapshots.
func (s *Service) UpdateExpense(ctx context.Context, callerID, id string, patch ExpensePatch) (*models.Expense, error) {
	e, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.directory.IsMember(ctx, e.HouseholdID, callerID); err != nil {
		return nil, err
	}

	before := e.Clone()

	if patch.Amount != nil {
		if patch.Amount.IsNegative() {
			return nil, apperr.Validation("amount must not be negative")
		}
		e.Amount = patch.Amount.Round(2)
	}
	if patch.Category != nil {
		e.Category = *patch.Category
	}
	if patch.Note != nil {
		e.Note = *patch.Note
	}
	if patch.Date != nil {
		e.Date = *patch.Date
	}
	if patch.Obligations != nil {
		h, err := s.store.GetHousehold(ctx, e.HouseholdID)
		if err != nil {
			return nil, err
		}
		if err := allocation.ValidateExplicit(*patch.Obligations, e.Amount, h.MemberIDs()); err != nil {
			return nil, err
		}
		e.Obligations = *patch.Obligations
	}
	if patch.Attachments != nil {
		e.Attachments = *patch.Attachments
	}
	if e.ObligationTotal().GreaterThan(e.Amount) {
		return nil, apperr.Validation("obligations total exceeds expense amount")
	}

	audit := &models.AuditEntry{
		HouseholdID: e.HouseholdID,
		ActorID:     callerID,
		Action:      models.ActionEdited,
		Before:      models.Snapshot(before),
		After:       models.Snapshot(e),
	}

	if err := s.withRetry(ctx, func() error {
		return s.store.UpdateExpense(ctx, e, audit)
	}); err != nil {
		return nil, err
	}

	slog.Info("expense updated", "expense_id", e.ID, "actor_id", callerID)
	return e, nil
}

// DeleteExpense removes the expense. Only the original creator or a household
// admin may delete; the audit entry keeps the last snapshot.
func (s *Service) DeleteExpense(ctx context.Context, callerID, id string) error {
	e, err := s.store.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	info, err := s.directory.IsMember(ctx, e.HouseholdID, callerID)
	if err != nil {
		return err
	}
	if e.CreatedBy != callerID {
		if err := household.RequireRole(info, models.RoleAdmin); err != nil {
			return apperr.Forbidden("only the household admin or the expense creator can delete")
		}
	}

	audit := &models.AuditEntry{
		HouseholdID: e.HouseholdID,
		ExpenseID:   e.ID,
		ActorID:     callerID,
		Action:      models.ActionDeleted,
		Before:      models.Snapshot(e),
	}

	if err := s.withRetry(ctx, func() error {
		return s.store.DeleteExpense(ctx, id, audit)
	}); err != nil {
		return err
	}

	slog.Info("expense deleted", "expense_id", id, "actor_id", callerID)
	return nil
}

// ListFilter narrows an expense listing.
type ListFilter struct {
	Month   int
	Year    int
	PayerID string
	Search  string

	// Named is "unpaid" (at least one unsettled obligation), "mine" (caller
	// is payer), or empty.
	Named string
}

// ListExpenses returns one page of the household's expenses, newest first.
func (s *Service) ListExpenses(ctx context.Context, callerID, householdID string, f ListFilter, p storage.PageRequest) (*storage.ExpensePage, error) {
	if _, err := s.directory.IsMember(ctx, householdID, callerID); err != nil {
		return nil, err
	}

	sf := storage.ExpenseFilter{
		Month:   f.Month,
		Year:    f.Year,
		PayerID: f.PayerID,
		Search:  f.Search,
	}
	switch f.Named {
	case "":
	case "unpaid":
		sf.Unpaid = true
	case "mine":
		sf.PayerID = callerID
	default:
		return nil, apperr.Validation("unknown filter %q", f.Named)
	}

	return s.store.ListExpenses(ctx, householdID, sf, p)
}

// ListAudit returns the household's most recent audit entries, newest first.
// limit <= 0 falls back to 50.
func (s *Service) ListAudit(ctx context.Context, callerID, householdID string, limit int) ([]models.AuditEntry, error) {
	if _, err := s.directory.IsMember(ctx, householdID, callerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListAuditEntries(ctx, householdID, limit)
}

// withRetry retries fn on transient storage failures with exponential
// backoff, a bounded number of times. Non-transient failures stop the loop
// immediately.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	op := func() error {
		err := fn()
		if err != nil && !apperr.IsKind(err, apperr.KindTransient) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxStorageRetries), ctx)
	return backoff.Retry(op, b)
}

// compensateAttachments deletes already-uploaded files after a failed write.
// Runs outside any transaction; failures are logged, not returned.
func (s *Service) compensateAttachments(ctx context.Context, atts []models.Attachment) {
	if s.attachments == nil {
		return
	}
	for _, a := range atts {
		if _, err := s.attachments.Delete(ctx, a.PublicID); err != nil {
			slog.Error("attachment compensation failed", "public_id", a.PublicID, "error", err)
		}
	}
}
