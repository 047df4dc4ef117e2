package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/addisbazaar/platform/internal/domain"
	apperrors "github.com/addisbazaar/platform/pkg/errors"
	"github.com/addisbazaar/platform/pkg/httpclient"
)

// SMSConfig holds SMS gateway settings.
type SMSConfig struct {
	GatewayURL string
	Token      string
	SenderID   string
}

// SMSSender delivers codes through an HTTP SMS gateway behind a circuit
// breaker, so a degraded gateway sheds load instead of queueing requests.
type SMSSender struct {
	client *httpclient.CircuitBreakerClient
	cfg    SMSConfig
	logger *slog.Logger
}

// NewSMSSender creates an SMS sender over the given circuit-breaker client.
func NewSMSSender(client *httpclient.CircuitBreakerClient, cfg SMSConfig, logger *slog.Logger) *SMSSender {
	return &SMSSender{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

type smsRequest struct {
	To       string `json:"to"`
	Message  string `json:"message"`
	SenderID string `json:"sender_id"`
}

// Send dispatches one SMS. Gateway and breaker failures surface as
// SERVICE_UNAVAILABLE so callers classify them as transient.
func (s *SMSSender) Send(ctx context.Context, identifier domain.Identifier, code string, purpose domain.OtpPurpose) error {
	payload, err := json.Marshal(smsRequest{
		To:       identifier.Value,
		Message:  messageFor(code, purpose),
		SenderID: s.cfg.SenderID,
	})
	if err != nil {
		return fmt.Errorf("marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		s.logger.Warn("sms dispatch failed",
			slog.String("purpose", string(purpose)),
			slog.String("error", err.Error()),
		)
		return apperrors.Unavailable("sms gateway unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("sms gateway rejected request: status %d: %s", resp.StatusCode, string(body))
	}

	s.logger.Debug("sms dispatched", slog.String("purpose", string(purpose)))
	return nil
}
