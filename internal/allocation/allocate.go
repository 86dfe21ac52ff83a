// Package allocation computes reimbursement obligations for an expense.
//
// The package is pure: it takes a total, a payer, and a member list and
// returns obligations, with no storage or clock access. Which policy applies
// is decided once, up front, by DecidePolicy; callers never branch on the
// rules themselves.
package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/krsoni/homeledger/internal/apperr"
	"github.com/krsoni/homeledger/internal/models"
)

// Policy selects how an expense's obligations are generated.
type Policy int

const (
	// PolicyPooled: the expense was funded from pooled household money, so
	// nobody owes anything.
	PolicyPooled Policy = iota + 1

	// PolicyChargePrimary: the payer spent personal money and a designated
	// primary holder exists who is not the payer; the primary holder is
	// charged the full amount.
	PolicyChargePrimary

	// PolicyEqualSplit: the amount is split equally among all household
	// members except the payer.
	PolicyEqualSplit

	// PolicyExplicit: the caller supplied obligations directly; policy logic
	// is bypassed and the entries are only validated.
	PolicyExplicit
)

// DecidePolicy picks the policy for an expense without explicit obligations.
//
// personalMoney reports whether the payer spent their own money rather than
// pooled household funds. primaryHolderID is empty when the household has no
// designated primary holder.
func DecidePolicy(personalMoney bool, payerID, primaryHolderID string) Policy {
	if !personalMoney {
		return PolicyPooled
	}
	if primaryHolderID != "" && primaryHolderID != payerID {
		return PolicyChargePrimary
	}
	return PolicyEqualSplit
}

// Allocate computes obligations for the given policy. memberIDs must be the
// household member list in join order; remainder cents from equal splits are
// handed out in that order.
func Allocate(total decimal.Decimal, payerID string, memberIDs []string, policy Policy, primaryHolderID string) ([]models.Obligation, error) {
	if total.IsNegative() {
		return nil, apperr.Validation("amount must not be negative")
	}

	switch policy {
	case PolicyPooled:
		return nil, nil
	case PolicyChargePrimary:
		return []models.Obligation{{UserID: primaryHolderID, Amount: total.Round(2)}}, nil
	case PolicyEqualSplit:
		return EqualSplit(total, payerID, memberIDs)
	default:
		return nil, apperr.Validation("unknown allocation policy")
	}
}

// EqualSplit splits total equally among all members except the payer,
// distributing remainder cents one by one to the earliest members so the
// obligation amounts sum to the total exactly.
//
// With no members besides the payer the result is empty.
func EqualSplit(total decimal.Decimal, payerID string, memberIDs []string) ([]models.Obligation, error) {
	if total.IsNegative() {
		return nil, apperr.Validation("amount must not be negative")
	}

	var others []string
	for _, id := range memberIDs {
		if id != payerID {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return nil, nil
	}

	n := decimal.NewFromInt(int64(len(others)))
	// Truncate, not round: the base share rounds down and the lost cents are
	// redistributed below.
	base := total.Div(n).Truncate(2)
	remainder := total.Sub(base.Mul(n)).Mul(decimal.NewFromInt(100)).Round(0).IntPart()

	cent := decimal.New(1, -2)
	obligations := make([]models.Obligation, len(others))
	for i, uid := range others {
		amount := base
		if int64(i) < remainder {
			amount = amount.Add(cent)
		}
		obligations[i] = models.Obligation{UserID: uid, Amount: amount}
	}
	return obligations, nil
}

// ValidateExplicit checks caller-supplied obligations: every entry must
// reference a distinct current household member and carry a non-negative
// amount, and the entries together must not exceed the expense total.
func ValidateExplicit(obligations []models.Obligation, total decimal.Decimal, memberIDs []string) error {
	members := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		members[id] = true
	}

	seen := make(map[string]bool, len(obligations))
	sum := decimal.Zero
	for _, o := range obligations {
		if o.UserID == "" {
			return apperr.Validation("each obligation must include a user")
		}
		if !members[o.UserID] {
			return apperr.Validation("obligation user %s is not a household member", o.UserID)
		}
		if seen[o.UserID] {
			return apperr.Validation("duplicate obligation for user %s", o.UserID)
		}
		seen[o.UserID] = true
		if o.Amount.IsNegative() {
			return apperr.Validation("obligation amount must not be negative")
		}
		sum = sum.Add(o.Amount)
	}
	if sum.GreaterThan(total) {
		return apperr.Validation("obligations total %s exceeds expense amount %s", sum.StringFixed(2), total.StringFixed(2))
	}
	return nil
}
