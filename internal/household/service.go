package household

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/krsoni/homeledger/internal/apperr"
	"github.com/krsoni/homeledger/internal/email"
	"github.com/krsoni/homeledger/internal/models"
	"github.com/krsoni/homeledger/internal/storage"
)

// Unambiguous alphabet for join codes: no 0/O, 1/I.
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const joinCodeLength = 8

// Service manages household lifecycle: creation, joining, invitations and the
// primary holder designation.
type Service struct {
	store   storage.Store
	mailer  email.Mailer
	baseURL string
}

// NewService creates a household service. mailer may be email.LogMailer{}
// outside production.
func NewService(store storage.Store, mailer email.Mailer, baseURL string) *Service {
	return &Service{store: store, mailer: mailer, baseURL: baseURL}
}

// Create makes a new household with the owner as its sole admin member.
func (s *Service) Create(ctx context.Context, ownerID, name, currency string) (*models.Household, error) {
	if strings.TrimSpace(name) == "" {
		name = "My Household"
	}
	if currency == "" {
		currency = "INR"
	}

	code, err := generateJoinCode()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	h := &models.Household{
		Name:     strings.TrimSpace(name),
		JoinCode: code,
		Currency: currency,
		Members: []models.Member{
			{UserID: ownerID, Role: models.RoleAdmin, JoinedAt: time.Now().UTC()},
		},
	}
	if err := s.store.CreateHousehold(ctx, h); err != nil {
		return nil, err
	}
	slog.Info("household created", "household_id", h.ID, "owner_id", ownerID)
	return h, nil
}

// Get returns the household after verifying the caller is a member.
func (s *Service) Get(ctx context.Context, callerID, householdID string) (*models.Household, error) {
	h, err := s.store.GetHousehold(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if h.Member(callerID) == nil {
		return nil, apperr.Forbidden("user is not a member of this household")
	}
	return h, nil
}

// Join adds the user to the household identified by joinCode. Joining a
// household you already belong to is a no-op. A welcome email goes out after
// the membership is persisted; mail failure never rolls anything back.
func (s *Service) Join(ctx context.Context, userID, joinCode string) (*models.Household, error) {
	joinCode = strings.ToUpper(strings.TrimSpace(joinCode))
	if joinCode == "" {
		return nil, apperr.Validation("join code is required")
	}

	h, err := s.store.GetHouseholdByJoinCode(ctx, joinCode)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("invalid join code")
		}
		return nil, err
	}

	if h.Member(userID) != nil {
		return h, nil
	}

	m := models.Member{UserID: userID, Role: models.RoleMember, JoinedAt: time.Now().UTC()}
	if err := s.store.AddMember(ctx, h.ID, m); err != nil {
		return nil, err
	}
	h.Members = append(h.Members, m)
	slog.Info("user joined household", "household_id", h.ID, "user_id", userID)

	if user, err := s.store.GetUserByID(ctx, userID); err == nil && user != nil {
		if err := s.mailer.SendWelcome(ctx, user.Email, h.Name); err != nil {
			slog.Warn("welcome email failed", "user_id", userID, "error", err)
		}
	}
	return h, nil
}

// SetPrimaryHolder designates which member absorbs personal-money expenses.
// Admin only; the target must be a current member.
func (s *Service) SetPrimaryHolder(ctx context.Context, callerID, householdID, userID string) error {
	h, err := s.store.GetHousehold(ctx, householdID)
	if err != nil {
		return err
	}
	caller := h.Member(callerID)
	if caller == nil {
		return apperr.Forbidden("user is not a member of this household")
	}
	if caller.Role != models.RoleAdmin {
		return apperr.Forbidden("only a household admin can set the primary holder")
	}
	if h.Member(userID) == nil {
		return apperr.Validation("primary holder must be a household member")
	}
	return s.store.SetPrimaryHolder(ctx, householdID, userID)
}

// Invite emails a join link to each address and returns the number of
// invitations sent. Any member can invite; failures per address are logged
// and skipped.
func (s *Service) Invite(ctx context.Context, callerID, householdID string, emails []string) (int, error) {
	if len(emails) == 0 {
		return 0, apperr.Validation("at least one email address is required")
	}

	h, err := s.store.GetHousehold(ctx, householdID)
	if err != nil {
		return 0, err
	}
	if h.Member(callerID) == nil {
		return 0, apperr.Forbidden("user is not a member of this household")
	}

	inviter := ""
	if user, err := s.store.GetUserByID(ctx, callerID); err == nil && user != nil {
		inviter = user.Name
	}

	link := fmt.Sprintf("%s/house-invite/%s", s.baseURL, h.JoinCode)
	sent := 0
	for _, addr := range emails {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if err := s.mailer.SendInvite(ctx, addr, inviter, h.Name, link); err != nil {
			slog.Warn("invite email failed", "household_id", h.ID, "to", addr, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func generateJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate join code: %w", err)
	}
	code := make([]byte, joinCodeLength)
	for i, b := range buf {
		code[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(code), nil
}
