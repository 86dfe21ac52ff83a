package household

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/krsoni/homeledger/internal/apperr"
	"github.com/krsoni/homeledger/internal/email"
	"github.com/krsoni/homeledger/internal/models"
	"github.com/krsoni/homeledger/internal/storage/sqlite"
)

func setupHouseholds(t *testing.T) (*Service, *Directory, *sqlite.SQLiteStore) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store, email.LogMailer{}, "http://localhost:8080"), NewDirectory(store), store
}

func newUser(t *testing.T, store *sqlite.SQLiteStore, name string) string {
	t.Helper()
	u := models.NewUser(name+"@example.com", name, "hash")
	if err := store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return u.ID
}

func TestHouseholdService(t *testing.T) {
	svc, dir, store := setupHouseholds(t)
	ctx := context.Background()

	alice := newUser(t, store, "Alice")
	bob := newUser(t, store, "Bob")

	h, err := svc.Create(ctx, alice, "Flat 302", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	t.Run("creator becomes the sole admin", func(t *testing.T) {
		if len(h.Members) != 1 {
			t.Fatalf("expected 1 member, got %d", len(h.Members))
		}
		if h.Members[0].UserID != alice || h.Members[0].Role != models.RoleAdmin {
			t.Errorf("unexpected first member: %+v", h.Members[0])
		}
		if h.Currency != "INR" {
			t.Errorf("currency = %q, want the INR default", h.Currency)
		}
		if len(h.JoinCode) != joinCodeLength {
			t.Errorf("join code %q has length %d, want %d", h.JoinCode, len(h.JoinCode), joinCodeLength)
		}
	})

	t.Run("join by code adds a plain member", func(t *testing.T) {
		joined, err := svc.Join(ctx, bob, h.JoinCode)
		if err != nil {
			t.Fatalf("Join failed: %v", err)
		}
		m := joined.Member(bob)
		if m == nil || m.Role != models.RoleMember {
			t.Fatalf("unexpected membership: %+v", m)
		}
	})

	t.Run("joining again is a no-op", func(t *testing.T) {
		joined, err := svc.Join(ctx, bob, h.JoinCode)
		if err != nil {
			t.Fatalf("second Join failed: %v", err)
		}
		if len(joined.Members) != 2 {
			t.Errorf("expected 2 members, got %d", len(joined.Members))
		}
	})

	t.Run("an invalid code is not found", func(t *testing.T) {
		_, err := svc.Join(ctx, bob, "NOPE1234")
		if !apperr.IsKind(err, apperr.KindNotFound) {
			t.Errorf("expected not found error, got %v", err)
		}
	})

	t.Run("only an admin can set the primary holder", func(t *testing.T) {
		if err := svc.SetPrimaryHolder(ctx, bob, h.ID, bob); !apperr.IsKind(err, apperr.KindForbidden) {
			t.Errorf("expected forbidden error, got %v", err)
		}
		if err := svc.SetPrimaryHolder(ctx, alice, h.ID, bob); err != nil {
			t.Fatalf("SetPrimaryHolder failed: %v", err)
		}

		got, err := svc.Get(ctx, alice, h.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.PrimaryHolderID != bob {
			t.Errorf("primary holder = %s, want bob", got.PrimaryHolderID)
		}
	})

	t.Run("the primary holder must be a member", func(t *testing.T) {
		err := svc.SetPrimaryHolder(ctx, alice, h.ID, "stranger")
		if !apperr.IsKind(err, apperr.KindValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})

	t.Run("non-members cannot read the household", func(t *testing.T) {
		carol := newUser(t, store, "Carol")
		if _, err := svc.Get(ctx, carol, h.ID); !apperr.IsKind(err, apperr.KindForbidden) {
			t.Errorf("expected forbidden error, got %v", err)
		}
	})

	t.Run("invites count sent addresses", func(t *testing.T) {
		sent, err := svc.Invite(ctx, bob, h.ID, []string{"dave@example.com", "  ", "erin@example.com"})
		if err != nil {
			t.Fatalf("Invite failed: %v", err)
		}
		if sent != 2 {
			t.Errorf("sent = %d, want 2", sent)
		}
	})

	t.Run("directory resolves membership and role", func(t *testing.T) {
		info, err := dir.IsMember(ctx, h.ID, alice)
		if err != nil {
			t.Fatalf("IsMember failed: %v", err)
		}
		if err := RequireRole(info, models.RoleAdmin); err != nil {
			t.Errorf("expected alice to pass the admin check: %v", err)
		}

		info, err = dir.IsMember(ctx, h.ID, bob)
		if err != nil {
			t.Fatalf("IsMember failed: %v", err)
		}
		if err := RequireRole(info, models.RoleAdmin); !apperr.IsKind(err, apperr.KindForbidden) {
			t.Errorf("expected bob to fail the admin check, got %v", err)
		}

		if _, err := dir.IsMember(ctx, "no-such-id", alice); !apperr.IsKind(err, apperr.KindNotFound) {
			t.Errorf("expected not found for unknown household, got %v", err)
		}
	})
}
