package models

import (
	"encoding/json"
	"time"
)

// AuditAction tags what a ledger mutation did.
type AuditAction string

const (
	ActionCreated          AuditAction = "created"
	ActionEdited           AuditAction = "edited"
	ActionSettled          AuditAction = "settled"
	ActionDeleted          AuditAction = "deleted"
	ActionMonthlyGenerated AuditAction = "periodic-aggregate-created"
	ActionMilkUpserted     AuditAction = "milk-day-upserted"
)

// AuditEntry is an append-only record of a ledger mutation. Entries are never
// updated or deleted once written.
type AuditEntry struct {
	// ID is the unique identifier for the entry (UUID format).
	ID string

	// HouseholdID references the household the mutation happened in.
	HouseholdID string

	// ExpenseID references the affected expense, if any.
	ExpenseID string

	// ActorID references the user who performed the action.
	ActorID string

	// Action tags the mutation.
	Action AuditAction

	// Before and After are optional JSON snapshots of the affected expense,
	// value-copied at the start and end of the mutating operation.
	Before json.RawMessage
	After  json.RawMessage

	// CreatedAt is when the entry was written.
	CreatedAt time.Time
}

// Snapshot serializes an expense for use as an audit Before/After value.
// A nil expense produces a nil snapshot.
func Snapshot(e *Expense) json.RawMessage {
	if e == nil {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		// Expense contains only marshalable fields; treat failure as absent.
		return nil
	}
	return b
}
