package ledger

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/krsoni/homeledger/internal/apperr"
	"github.com/krsoni/homeledger/internal/household"
	"github.com/krsoni/homeledger/internal/models"
	"github.com/krsoni/homeledger/internal/storage"
	"github.com/krsoni/homeledger/internal/storage/sqlite"
)

// fakeAttachments records deletions so compensation can be asserted.
type fakeAttachments struct {
	deleted []string
}

func (f *fakeAttachments) Upload(_ context.Context, name string, _ io.Reader) (models.Attachment, error) {
	return models.Attachment{PublicID: name, URL: "http://test/" + name, UploadedAt: time.Now().UTC()}, nil
}

func (f *fakeAttachments) Delete(_ context.Context, publicID string) (bool, error) {
	f.deleted = append(f.deleted, publicID)
	return true, nil
}

type testEnv struct {
	ctx   context.Context
	store *sqlite.SQLiteStore
	att   *fakeAttachments
	svc   *Service

	houseID string
	alice   string // admin, joined first
	bob     string
	carol   string
}

func setupService(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	ids := make(map[string]string)
	for _, name := range []string{"Alice", "Bob", "Carol"} {
		u := models.NewUser(name+"@example.com", name, "hash")
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("failed to create user %s: %v", name, err)
		}
		ids[name] = u.ID
	}

	joined := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	h := &models.Household{
		Name:     "Flat 302",
		JoinCode: "TESTCODE",
		Currency: "INR",
		Members: []models.Member{
			{UserID: ids["Alice"], Role: models.RoleAdmin, JoinedAt: joined},
			{UserID: ids["Bob"], Role: models.RoleMember, JoinedAt: joined.Add(time.Minute)},
			{UserID: ids["Carol"], Role: models.RoleMember, JoinedAt: joined.Add(2 * time.Minute)},
		},
	}
	if err := store.CreateHousehold(ctx, h); err != nil {
		t.Fatalf("failed to create household: %v", err)
	}

	att := &fakeAttachments{}
	svc := NewService(store, household.NewDirectory(store), att, decimal.RequireFromString("52"), "INR")

	return &testEnv{
		ctx:     ctx,
		store:   store,
		att:     att,
		svc:     svc,
		houseID: h.ID,
		alice:   ids["Alice"],
		bob:     ids["Bob"],
		carol:   ids["Carol"],
	}
}

func amountOf(t *testing.T, e *models.Expense, userID string) decimal.Decimal {
	t.Helper()
	o := e.Obligation(userID)
	if o == nil {
		t.Fatalf("expected an obligation for %s", userID)
	}
	return o.Amount
}

func TestCreateExpense(t *testing.T) {
	t.Run("personal money splits equally among the others", func(t *testing.T) {
		env := setupService(t)

		e, err := env.svc.CreateExpense(env.ctx, env.bob, CreateExpenseInput{
			HouseholdID: env.houseID,
			PayerID:     env.bob,
			Amount:      decimal.RequireFromString("100.00"),
			Category:    "Groceries",
		})
		if err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}

		if len(e.Obligations) != 2 {
			t.Fatalf("expected 2 obligations, got %d", len(e.Obligations))
		}
		if got := amountOf(t, e, env.alice); !got.Equal(decimal.RequireFromString("50.00")) {
			t.Errorf("alice owes %s, want 50.00", got)
		}
		if got := amountOf(t, e, env.carol); !got.Equal(decimal.RequireFromString("50.00")) {
			t.Errorf("carol owes %s, want 50.00", got)
		}
		if e.Obligation(env.bob) != nil {
			t.Error("payer must not owe themselves")
		}
	})

	t.Run("remainder cents go to earliest members", func(t *testing.T) {
		env := setupService(t)

		e, err := env.svc.CreateExpense(env.ctx, env.carol, CreateExpenseInput{
			HouseholdID: env.houseID,
			PayerID:     env.carol,
			Amount:      decimal.RequireFromString("10.01"),
		})
		if err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}

		// Alice joined before Bob, so she absorbs the extra cent.
		if got := amountOf(t, e, env.alice); !got.Equal(decimal.RequireFromString("5.01")) {
			t.Errorf("alice owes %s, want 5.01", got)
		}
		if got := amountOf(t, e, env.bob); !got.Equal(decimal.RequireFromString("5.00")) {
			t.Errorf("bob owes %s, want 5.00", got)
		}
		if !e.ObligationTotal().Equal(e.Amount) {
			t.Errorf("obligations sum to %s, want %s", e.ObligationTotal(), e.Amount)
		}
	})

	t.Run("primary holder is charged the full amount", func(t *testing.T) {
		env := setupService(t)
		if err := env.store.SetPrimaryHolder(env.ctx, env.houseID, env.alice); err != nil {
			t.Fatalf("SetPrimaryHolder failed: %v", err)
		}

		e, err := env.svc.CreateExpense(env.ctx, env.bob, CreateExpenseInput{
			HouseholdID: env.houseID,
			PayerID:     env.bob,
			Amount:      decimal.RequireFromString("99.99"),
		})
		if err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}

		if len(e.Obligations) != 1 {
			t.Fatalf("expected 1 obligation, got %d", len(e.Obligations))
		}
		if got := amountOf(t, e, env.alice); !got.Equal(decimal.RequireFromString("99.99")) {
			t.Errorf("alice owes %s, want 99.99", got)
		}
	})

	t.Run("primary holder paying means pooled money", func(t *testing.T) {
		env := setupService(t)
		if err := env.store.SetPrimaryHolder(env.ctx, env.houseID, env.alice); err != nil {
			t.Fatalf("SetPrimaryHolder failed: %v", err)
		}

		e, err := env.svc.CreateExpense(env.ctx, env.alice, CreateExpenseInput{
			HouseholdID: env.houseID,
			PayerID:     env.alice,
			Amount:      decimal.RequireFromString("200.00"),
		})
		if err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}
		if len(e.Obligations) != 0 {
			t.Errorf("expected no obligations for pooled money, got %d", len(e.Obligations))
		}
	})

	t.Run("explicit obligations bypass allocation", func(t *testing.T) {
		env := setupService(t)

		e, err := env.svc.CreateExpense(env.ctx, env.alice, CreateExpenseInput{
			HouseholdID: env.houseID,
			PayerID:     env.alice,
			Amount:      decimal.RequireFromString("60.00"),
			Obligations: []models.Obligation{
				{UserID: env.bob, Amount: decimal.RequireFromString("40.00")},
				{UserID: env.carol, Amount: decimal.RequireFromString("10.00"), Note: "smaller share"},
			},
		})
		if err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}

		if got := amountOf(t, e, env.bob); !got.Equal(decimal.RequireFromString("40.00")) {
			t.Errorf("bob owes %s, want 40.00", got)
		}
		if got := e.Obligation(env.carol).Note; got != "smaller share" {
			t.Errorf("carol's note = %q, want %q", got, "smaller share")
		}
	})

	t.Run("naming the same user twice is a validation error, not a constraint blowup", func(t *testing.T) {
		env := setupService(t)

		_, err := env.svc.CreateExpense(env.ctx, env.alice, CreateExpenseInput{
			HouseholdID: env.houseID,
			PayerID:     env.alice,
			Amount:      decimal.RequireFromString("20.00"),
			Obligations: []models.Obligation{
				{UserID: env.bob, Amount: decimal.RequireFromString("10.00")},
				{UserID: env.bob, Amount: decimal.RequireFromString("5.00")},
			},
		})
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("expected validation error, got kind %v (%v)", apperr.KindOf(err), err)
		}
	})

	t.Run("explicit obligation for a non-member is rejected", func(t *testing.T) {
		env := setupService(t)

		_, err := env.svc.CreateExpense(env.ctx, env.alice, CreateExpenseInput{
			HouseholdID: env.houseID,
			PayerID:     env.alice,
			Amount:      decimal.RequireFromString("60.00"),
			Obligations: []models.Obligation{
				{UserID: "stranger", Amount: decimal.RequireFromString("60.00")},
			},
		})
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("payer must be a household member", func(t *testing.T) {
		env := setupService(t)

		_, err := env.svc.CreateExpense(env.ctx, env.alice, CreateExpenseInput{
			HouseholdID: env.houseID,
			PayerID:     "stranger",
			Amount:      decimal.RequireFromString("10.00"),
		})
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("defaults fill currency, category and date", func(t *testing.T) {
		env := setupService(t)

		e, err := env.svc.CreateExpense(env.ctx, env.bob, CreateExpenseInput{
			HouseholdID: env.houseID,
			PayerID:     env.bob,
			Amount:      decimal.RequireFromString("10.00"),
		})
		if err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}
		if e.Currency != "INR" {
			t.Errorf("currency = %q, want INR", e.Currency)
		}
		if e.Category != "Other" {
			t.Errorf("category = %q, want Other", e.Category)
		}
		if e.Date.IsZero() {
			t.Error("expected date to default to now")
		}
	})

	t.Run("uploaded attachments are deleted when the write fails", func(t *testing.T) {
		env := setupService(t)

		_, err := env.svc.CreateExpense(env.ctx, env.alice, CreateExpenseInput{
			HouseholdID: "no-such-household",
			PayerID:     env.alice,
			Amount:      decimal.RequireFromString("10.00"),
			Attachments: []models.Attachment{{PublicID: "receipt-1.jpg"}},
		})
		if err == nil {
			t.Fatal("expected an error for unknown household")
		}
		if len(env.att.deleted) != 1 || env.att.deleted[0] != "receipt-1.jpg" {
			t.Errorf("expected receipt-1.jpg to be compensated, deleted = %v", env.att.deleted)
		}
	})

	t.Run("non-member caller is forbidden", func(t *testing.T) {
		env := setupService(t)

		stranger := models.NewUser("dave@example.com", "Dave", "hash")
		if err := env.store.CreateUser(env.ctx, stranger); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}

		_, err := env.svc.CreateExpense(env.ctx, stranger.ID, CreateExpenseInput{
			HouseholdID: env.houseID,
			PayerID:     env.alice,
			Amount:      decimal.RequireFromString("10.00"),
		})
		if !apperr.IsKind(err, apperr.KindForbidden) {
			t.Errorf("expected forbidden error, got %v", err)
		}
	})
}

func TestUpdateExpense(t *testing.T) {
	env := setupService(t)

	e, err := env.svc.CreateExpense(env.ctx, env.bob, CreateExpenseInput{
		HouseholdID: env.houseID,
		PayerID:     env.bob,
		Amount:      decimal.RequireFromString("100.00"),
		Category:    "Groceries",
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	t.Run("patch changes only the named fields", func(t *testing.T) {
		amount := decimal.RequireFromString("80.00")
		note := "corrected total"
		updated, err := env.svc.UpdateExpense(env.ctx, env.bob, e.ID, ExpensePatch{
			Amount: &amount,
			Note:   &note,
		})
		if err != nil {
			t.Fatalf("UpdateExpense failed: %v", err)
		}
		if !updated.Amount.Equal(amount) {
			t.Errorf("amount = %s, want 80.00", updated.Amount)
		}
		if updated.Note != note {
			t.Errorf("note = %q, want %q", updated.Note, note)
		}
		if updated.Category != "Groceries" {
			t.Errorf("category changed unexpectedly to %q", updated.Category)
		}
	})

	t.Run("obligations may not exceed the amount", func(t *testing.T) {
		obligations := []models.Obligation{
			{UserID: env.alice, Amount: decimal.RequireFromString("90.00")},
		}
		_, err := env.svc.UpdateExpense(env.ctx, env.bob, e.ID, ExpensePatch{Obligations: &obligations})
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("edit writes an audit entry with both snapshots", func(t *testing.T) {
		entries, err := env.store.ListAuditEntries(env.ctx, env.houseID, 10)
		if err != nil {
			t.Fatalf("ListAuditEntries failed: %v", err)
		}
		var edit *models.AuditEntry
		for i := range entries {
			if entries[i].Action == models.ActionEdited {
				edit = &entries[i]
				break
			}
		}
		if edit == nil {
			t.Fatal("expected an edited audit entry")
		}
		if len(edit.Before) == 0 || len(edit.After) == 0 {
			t.Error("expected both before and after snapshots")
		}
	})
}

func TestUpdateExpenseKeepsSettledObligations(t *testing.T) {
	env := setupService(t)

	e, err := env.svc.CreateExpense(env.ctx, env.bob, CreateExpenseInput{
		HouseholdID: env.houseID,
		PayerID:     env.bob,
		Amount:      decimal.RequireFromString("100.00"),
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	// Alice settles her share before the editor's stale patch lands.
	if _, err := env.svc.MarkSettled(env.ctx, env.alice, e.ID, env.alice); err != nil {
		t.Fatalf("MarkSettled failed: %v", err)
	}

	obligations := []models.Obligation{
		{UserID: env.alice, Amount: decimal.RequireFromString("30.00")},
		{UserID: env.carol, Amount: decimal.RequireFromString("20.00")},
	}
	updated, err := env.svc.UpdateExpense(env.ctx, env.bob, e.ID, ExpensePatch{Obligations: &obligations})
	if err != nil {
		t.Fatalf("UpdateExpense failed: %v", err)
	}

	o := updated.Obligation(env.alice)
	if o == nil || !o.Settled || o.SettledAt == nil {
		t.Fatalf("alice's settled obligation was reverted: %+v", o)
	}
	if !o.Amount.Equal(decimal.RequireFromString("30.00")) {
		t.Errorf("amount = %s, want the patched 30.00", o.Amount)
	}
	if carol := updated.Obligation(env.carol); carol == nil || carol.Settled {
		t.Errorf("carol's obligation must stay open: %+v", carol)
	}

	reloaded, err := env.svc.GetExpense(env.ctx, env.bob, e.ID)
	if err != nil {
		t.Fatalf("GetExpense failed: %v", err)
	}
	if o := reloaded.Obligation(env.alice); o == nil || !o.Settled {
		t.Errorf("settled flag lost after reload: %+v", o)
	}
}

func TestDeleteExpense(t *testing.T) {
	env := setupService(t)

	e, err := env.svc.CreateExpense(env.ctx, env.bob, CreateExpenseInput{
		HouseholdID: env.houseID,
		PayerID:     env.bob,
		Amount:      decimal.RequireFromString("25.00"),
	})
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	t.Run("another plain member may not delete", func(t *testing.T) {
		err := env.svc.DeleteExpense(env.ctx, env.carol, e.ID)
		if !apperr.IsKind(err, apperr.KindForbidden) {
			t.Errorf("expected forbidden error, got %v", err)
		}
	})

	t.Run("admin may delete and the snapshot survives in the audit trail", func(t *testing.T) {
		if err := env.svc.DeleteExpense(env.ctx, env.alice, e.ID); err != nil {
			t.Fatalf("DeleteExpense failed: %v", err)
		}

		if _, err := env.svc.GetExpense(env.ctx, env.alice, e.ID); !apperr.IsKind(err, apperr.KindNotFound) {
			t.Errorf("expected not found after delete, got %v", err)
		}

		entries, err := env.store.ListAuditEntries(env.ctx, env.houseID, 10)
		if err != nil {
			t.Fatalf("ListAuditEntries failed: %v", err)
		}
		deleted := 0
		for _, a := range entries {
			if a.Action == models.ActionDeleted {
				deleted++
				if len(a.Before) == 0 {
					t.Error("expected the deleted entry to keep a before snapshot")
				}
			}
		}
		if deleted != 1 {
			t.Errorf("expected exactly 1 deleted audit entry, got %d", deleted)
		}
	})
}

func TestListExpenses(t *testing.T) {
	env := setupService(t)

	seed := []struct {
		payer    string
		amount   string
		category string
		note     string
		date     time.Time
	}{
		{env.bob, "100.00", "Groceries", "weekly shop", time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)},
		{env.carol, "40.00", "Transport", "cab fare", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)},
		{env.bob, "15.50", "Snacks", "", time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC)},
	}
	for _, s := range seed {
		if _, err := env.svc.CreateExpense(env.ctx, s.payer, CreateExpenseInput{
			HouseholdID: env.houseID,
			PayerID:     s.payer,
			Amount:      decimal.RequireFromString(s.amount),
			Category:    s.category,
			Note:        s.note,
			Date:        s.date,
		}); err != nil {
			t.Fatalf("seeding expense failed: %v", err)
		}
	}

	t.Run("month filter keeps only that month", func(t *testing.T) {
		page, err := env.svc.ListExpenses(env.ctx, env.alice, env.houseID, ListFilter{Month: 3, Year: 2025}, storage.PageRequest{})
		if err != nil {
			t.Fatalf("ListExpenses failed: %v", err)
		}
		if page.Total != 2 {
			t.Errorf("total = %d, want 2", page.Total)
		}
	})

	t.Run("mine filter uses the caller as payer", func(t *testing.T) {
		page, err := env.svc.ListExpenses(env.ctx, env.carol, env.houseID, ListFilter{Named: "mine"}, storage.PageRequest{})
		if err != nil {
			t.Fatalf("ListExpenses failed: %v", err)
		}
		if page.Total != 1 {
			t.Fatalf("total = %d, want 1", page.Total)
		}
		if page.Expenses[0].PayerID != env.carol {
			t.Errorf("payer = %s, want carol", page.Expenses[0].PayerID)
		}
	})

	t.Run("unpaid filter keeps expenses with open obligations", func(t *testing.T) {
		page, err := env.svc.ListExpenses(env.ctx, env.alice, env.houseID, ListFilter{Named: "unpaid"}, storage.PageRequest{})
		if err != nil {
			t.Fatalf("ListExpenses failed: %v", err)
		}
		if page.Total != 3 {
			t.Errorf("total = %d, want 3", page.Total)
		}
	})

	t.Run("search matches category and note", func(t *testing.T) {
		page, err := env.svc.ListExpenses(env.ctx, env.alice, env.houseID, ListFilter{Search: "cab"}, storage.PageRequest{})
		if err != nil {
			t.Fatalf("ListExpenses failed: %v", err)
		}
		if page.Total != 1 {
			t.Errorf("total = %d, want 1", page.Total)
		}
	})

	t.Run("unknown named filter is rejected", func(t *testing.T) {
		_, err := env.svc.ListExpenses(env.ctx, env.alice, env.houseID, ListFilter{Named: "bogus"}, storage.PageRequest{})
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("pagination is stable newest first", func(t *testing.T) {
		first, err := env.svc.ListExpenses(env.ctx, env.alice, env.houseID, ListFilter{}, storage.PageRequest{Page: 1, Limit: 2})
		if err != nil {
			t.Fatalf("ListExpenses failed: %v", err)
		}
		second, err := env.svc.ListExpenses(env.ctx, env.alice, env.houseID, ListFilter{}, storage.PageRequest{Page: 2, Limit: 2})
		if err != nil {
			t.Fatalf("ListExpenses failed: %v", err)
		}
		if len(first.Expenses) != 2 || len(second.Expenses) != 1 {
			t.Fatalf("page sizes = %d, %d, want 2, 1", len(first.Expenses), len(second.Expenses))
		}
		if first.TotalPages != 2 {
			t.Errorf("total pages = %d, want 2", first.TotalPages)
		}
		if !first.Expenses[0].Date.After(second.Expenses[0].Date) {
			t.Error("expected newest expenses on the first page")
		}
	})
}
