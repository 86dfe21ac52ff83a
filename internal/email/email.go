// Package email defines the outbound mail collaborator.
//
// Mail goes out after the enclosing operation has committed; a send failure
// is logged by the caller and never rolls ledger or household state back.
package email

import (
	"context"
	"log/slog"
)

// Mailer sends account and household mail.
type Mailer interface {
	// SendRegistered mails a freshly registered account.
	SendRegistered(ctx context.Context, to, name string) error

	// SendInvite mails a join link for a household.
	SendInvite(ctx context.Context, to, inviterName, householdName, joinLink string) error

	// SendWelcome mails a new member after they join.
	SendWelcome(ctx context.Context, to, householdName string) error
}

// LogMailer logs mail instead of sending it. Used in development and tests;
// swap in a real SMTP-backed implementation via the same interface.
type LogMailer struct{}

func (LogMailer) SendRegistered(_ context.Context, to, name string) error {
	slog.Info("registration email", "to", to, "name", name)
	return nil
}

func (LogMailer) SendInvite(_ context.Context, to, inviterName, householdName, joinLink string) error {
	slog.Info("invite email",
		"to", to,
		"inviter", inviterName,
		"household", householdName,
		"link", joinLink,
	)
	return nil
}

func (LogMailer) SendWelcome(_ context.Context, to, householdName string) error {
	slog.Info("welcome email", "to", to, "household", householdName)
	return nil
}
