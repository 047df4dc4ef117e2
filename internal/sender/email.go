package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/addisbazaar/platform/internal/domain"
	apperrors "github.com/addisbazaar/platform/pkg/errors"
)

// EmailConfig holds SendGrid settings.
type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// EmailSender delivers codes via SendGrid.
type EmailSender struct {
	client *sendgrid.Client
	cfg    EmailConfig
	logger *slog.Logger
}

// NewEmailSender creates a SendGrid-backed email sender.
func NewEmailSender(cfg EmailConfig, logger *slog.Logger) *EmailSender {
	return &EmailSender{
		client: sendgrid.NewSendClient(cfg.APIKey),
		cfg:    cfg,
		logger: logger,
	}
}

func subjectFor(purpose domain.OtpPurpose) string {
	switch purpose {
	case domain.PurposePasswordReset:
		return "Reset your AddisBazaar password"
	default:
		return "Verify your AddisBazaar account"
	}
}

// Send dispatches one verification email.
func (s *EmailSender) Send(ctx context.Context, identifier domain.Identifier, code string, purpose domain.OtpPurpose) error {
	from := mail.NewEmail(s.cfg.FromName, s.cfg.FromEmail)
	to := mail.NewEmail("", identifier.Value)
	body := messageFor(code, purpose)
	message := mail.NewSingleEmail(from, subjectFor(purpose), to, body, body)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Warn("email dispatch failed",
			slog.String("purpose", string(purpose)),
			slog.String("error", err.Error()),
		)
		return apperrors.Unavailable("email provider unreachable", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("email provider rejected request: status %d", resp.StatusCode)
	}

	s.logger.Debug("email dispatched", slog.String("purpose", string(purpose)))
	return nil
}
