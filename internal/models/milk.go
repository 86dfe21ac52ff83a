package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MilkDay records the litres delivered to a household on one calendar day.
// At most one record exists per (household, day); writes are upserts.
type MilkDay struct {
	// HouseholdID references the household.
	HouseholdID string

	// Date is the calendar day, normalized to UTC midnight.
	Date time.Time

	// Litres is the quantity delivered that day, non-negative.
	Litres decimal.Decimal

	// CreatedAt and UpdatedAt are maintained by the store.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DayStart normalizes t to UTC midnight of its calendar day.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
