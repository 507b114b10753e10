package identity

import (
	"context"
	"log/slog"
)

// EmailSender delivers account emails (confirmation links, reset links).
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

// LogEmailSender writes messages to the log instead of delivering them.
// Pages that would normally tell the user to check their inbox show the
// link directly when this sender is in use.
type LogEmailSender struct{}

func (LogEmailSender) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	slog.InfoContext(ctx, "Email not delivered, logging instead", "to", to, "subject", subject, "body", htmlBody)
	return nil
}
