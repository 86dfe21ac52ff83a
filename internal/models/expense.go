package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Obligation is one member's owed share of an expense.
type Obligation struct {
	// UserID references the member who owes this amount.
	// Must have been a household member at expense-creation time; later
	// membership changes do not invalidate an existing obligation.
	UserID string

	// Amount is the portion owed, non-negative, two decimal places.
	Amount decimal.Decimal

	// Settled flips from false to true exactly once, when the member pays
	// the payer back.
	Settled bool

	// SettledAt is set at the moment Settled transitions to true.
	SettledAt *time.Time

	// Note is optional (e.g. a partial-payment remark).
	Note string
}

// Attachment is an opaque reference to a stored receipt photo or document.
type Attachment struct {
	// PublicID identifies the object in the attachment store; used for deletion.
	PublicID string

	// URL is where the file can be fetched.
	URL string

	// UploadedAt is when the file was stored.
	UploadedAt time.Time
}

// Expense is a ledger entry: who paid for what, and who owes what back.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// HouseholdID references the household this expense belongs to.
	HouseholdID string

	// CreatedBy references the user who recorded the expense.
	CreatedBy string

	// PayerID references the user who actually paid at purchase time.
	// Must be a household member when the expense is created.
	PayerID string

	// Amount is the total paid, non-negative, two decimal places.
	Amount decimal.Decimal

	// Currency is the ISO-style currency code for Amount.
	Currency string

	// Category is a free-form label (e.g. "Groceries", "Milk").
	Category string

	// Note is free text.
	Note string

	// Date is when the purchase happened (not when it was recorded).
	Date time.Time

	// Obligations are the per-member owed amounts. Their sum never exceeds
	// Amount; it may be less, since the payer's own share is implicitly zero.
	Obligations []Obligation

	// Attachments are receipt references.
	Attachments []Attachment

	// CreatedAt and UpdatedAt are maintained by the store.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Obligation returns the obligation owed by userID, or nil if none exists.
func (e *Expense) Obligation(userID string) *Obligation {
	for i := range e.Obligations {
		if e.Obligations[i].UserID == userID {
			return &e.Obligations[i]
		}
	}
	return nil
}

// ObligationTotal returns the sum of all obligation amounts.
func (e *Expense) ObligationTotal() decimal.Decimal {
	total := decimal.Zero
	for _, o := range e.Obligations {
		total = total.Add(o.Amount)
	}
	return total
}

// HasUnsettled reports whether at least one obligation is still unpaid.
func (e *Expense) HasUnsettled() bool {
	for _, o := range e.Obligations {
		if !o.Settled {
			return true
		}
	}
	return false
}

// Clone returns a deep value copy of the expense, used for audit snapshots.
func (e *Expense) Clone() *Expense {
	c := *e
	c.Obligations = make([]Obligation, len(e.Obligations))
	copy(c.Obligations, e.Obligations)
	for i, o := range e.Obligations {
		if o.SettledAt != nil {
			at := *o.SettledAt
			c.Obligations[i].SettledAt = &at
		}
	}
	c.Attachments = make([]Attachment, len(e.Attachments))
	copy(c.Attachments, e.Attachments)
	return &c
}
