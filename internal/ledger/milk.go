package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krsoni/homeledger/internal/apperr"
	"github.com/krsoni/homeledger/internal/models"
)

// MilkCategory tags the monthly aggregate expense.
const MilkCategory = "Milk"

// MilkSummary is a month's worth of daily records with their totals.
type MilkSummary struct {
	Days          []models.MilkDay
	TotalLitres   decimal.Decimal
	PricePerLitre decimal.Decimal
	TotalAmount   decimal.Decimal
}

// UpsertDailyMilk records the litres delivered on one day. The day is
// normalized to UTC midnight; writing the same day twice overwrites the
// quantity instead of creating a duplicate.
func (s *Service) UpsertDailyMilk(ctx context.Context, callerID, householdID string, day time.Time, litres decimal.Decimal) (*models.MilkDay, error) {
	if _, err := s.directory.IsMember(ctx, householdID, callerID); err != nil {
		return nil, err
	}
	if litres.IsNegative() {
		return nil, apperr.Validation("litres must not be negative")
	}

	d := &models.MilkDay{
		HouseholdID: householdID,
		Date:        models.DayStart(day),
		Litres:      litres,
	}
	audit := &models.AuditEntry{
		HouseholdID: householdID,
		ActorID:     callerID,
		Action:      models.ActionMilkUpserted,
	}

	if err := s.withRetry(ctx, func() error {
		return s.store.UpsertMilkDay(ctx, d, audit)
	}); err != nil {
		return nil, err
	}

	slog.Info("milk day saved",
		"household_id", householdID,
		"day", d.Date.Format("2006-01-02"),
		"litres", litres.String(),
	)
	return d, nil
}

// MonthSummary sums the month's daily records at the fixed per-litre rate.
// A month with no records is a not-found condition.
func (s *Service) MonthSummary(ctx context.Context, callerID, householdID string, month time.Month, year int) (*MilkSummary, error) {
	if _, err := s.directory.IsMember(ctx, householdID, callerID); err != nil {
		return nil, err
	}
	if month < time.January || month > time.December || year < 1 {
		return nil, apperr.Validation("invalid month or year")
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	days, err := s.store.ListMilkDays(ctx, householdID, start, end)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, apperr.NotFound("no milk entries found for the month")
	}

	total := decimal.Zero
	for _, d := range days {
		total = total.Add(d.Litres)
	}

	return &MilkSummary{
		Days:          days,
		TotalLitres:   total,
		PricePerLitre: s.pricePerLitre,
		TotalAmount:   total.Mul(s.pricePerLitre).Round(2),
	}, nil
}

// GenerateMonthlyExpense folds the month's milk into a single pooled-money
// expense (no obligations), dated at the month boundary, through the same
// atomic path as any other expense. The payer is the explicit payerID or the
// household's primary holder.
func (s *Service) GenerateMonthlyExpense(ctx context.Context, callerID, householdID string, month time.Month, year int, payerID string) (*models.Expense, error) {
	summary, err := s.MonthSummary(ctx, callerID, householdID, month, year)
	if err != nil {
		return nil, err
	}
	// Days recorded at zero litres carry no charge; there is nothing to bill.
	if summary.TotalLitres.IsZero() {
		return nil, apperr.NotFound("no milk entries found for the month")
	}

	h, err := s.store.GetHousehold(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if payerID == "" {
		payerID = h.PrimaryHolderID
	}
	if payerID == "" {
		return nil, apperr.Validation("no payer specified and household has no primary holder")
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	pooled := false
	note := fmt.Sprintf("Monthly milk for %s %d - %s L @ %s/L",
		month.String(), year,
		summary.TotalLitres.String(),
		summary.PricePerLitre.String(),
	)

	return s.createExpense(ctx, callerID, CreateExpenseInput{
		HouseholdID:   householdID,
		PayerID:       payerID,
		Amount:        summary.TotalAmount,
		Currency:      h.Currency,
		Category:      MilkCategory,
		Note:          note,
		Date:          start.AddDate(0, 1, 0),
		PersonalMoney: &pooled,
	}, models.ActionMonthlyGenerated)
}
