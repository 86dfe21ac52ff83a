package models

import "time"

// Role is a member's role within a household.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Member is one user's membership in a household.
type Member struct {
	// UserID references the member's user account.
	UserID string

	// Role is either admin or member.
	Role Role

	// JoinedAt is when the user joined the household.
	JoinedAt time.Time
}

// Household represents a group of users who share expenses.
type Household struct {
	// ID is the unique identifier for the household (UUID format).
	ID string

	// Name is the display name (e.g. "Flat 302").
	Name string

	// JoinCode is the unique code users redeem to join this household.
	JoinCode string

	// PrimaryHolderID optionally designates the member who absorbs
	// personal-money expenses made by others on the household's behalf.
	// Empty when no primary holder is set; must reference a current member.
	PrimaryHolderID string

	// Currency is the household's default currency code (e.g. "INR").
	Currency string

	// Members is the member list in join order. No duplicate user references.
	Members []Member

	// CreatedAt and UpdatedAt are maintained by the store.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Member returns the membership entry for userID, or nil if the user is not
// a member of the household.
func (h *Household) Member(userID string) *Member {
	for i := range h.Members {
		if h.Members[i].UserID == userID {
			return &h.Members[i]
		}
	}
	return nil
}

// MemberIDs returns the member user IDs in join order. The ordering matters:
// remainder cents from equal splits are handed out in this order.
func (h *Household) MemberIDs() []string {
	ids := make([]string, len(h.Members))
	for i, m := range h.Members {
		ids[i] = m.UserID
	}
	return ids
}
