// Package household resolves membership and manages household lifecycle.
package household

import (
	"context"
	"time"

	"github.com/krsoni/homeledger/internal/apperr"
	"github.com/krsoni/homeledger/internal/models"
	"github.com/krsoni/homeledger/internal/storage"
)

// MembershipInfo is the result of a successful membership lookup.
type MembershipInfo struct {
	Role     models.Role
	JoinedAt time.Time
}

// Directory answers membership and role questions. Read-only.
type Directory struct {
	store storage.Store
}

// NewDirectory creates a directory over the given store.
func NewDirectory(store storage.Store) *Directory {
	return &Directory{store: store}
}

// IsMember returns the user's membership in the household. It fails with a
// not-found error when the household is absent and a forbidden error when the
// user is not in the member list.
func (d *Directory) IsMember(ctx context.Context, householdID, userID string) (MembershipInfo, error) {
	h, err := d.store.GetHousehold(ctx, householdID)
	if err != nil {
		return MembershipInfo{}, err
	}
	m := h.Member(userID)
	if m == nil {
		return MembershipInfo{}, apperr.Forbidden("user is not a member of this household")
	}
	return MembershipInfo{Role: m.Role, JoinedAt: m.JoinedAt}, nil
}

// RequireRole fails with a forbidden error unless the membership's role is in
// the allowed set.
func RequireRole(info MembershipInfo, roles ...models.Role) error {
	for _, r := range roles {
		if info.Role == r {
			return nil
		}
	}
	return apperr.Forbidden("role %s is not allowed to perform this action", info.Role)
}
