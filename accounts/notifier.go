package accounts

import (
	"context"
	"log/slog"
)

// Notifier delivers the Discord verification link to a user.
type Notifier interface {
	SendVerificationDM(ctx context.Context, discordID, accountName, token string) error
}

// Mailer sends transactional email.
type Mailer interface {
	SendEmailAddressRegistrationConfirmation(ctx context.Context, emailAddress, accountName string) error
}

// LogMailer records outgoing email in the log instead of delivering it.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendEmailAddressRegistrationConfirmation(ctx context.Context, emailAddress, accountName string) error {
	m.Logger.InfoContext(ctx, "registration confirmation email",
		"email", emailAddress,
		"account", accountName,
	)
	return nil
}

// LogNotifier records verification tokens in the log. It stands in for the
// Discord bot when no bot token is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) SendVerificationDM(ctx context.Context, discordID, accountName, token string) error {
	n.Logger.InfoContext(ctx, "verification message",
		"discord_id", discordID,
		"account", accountName,
		"token", token,
	)
	return nil
}
