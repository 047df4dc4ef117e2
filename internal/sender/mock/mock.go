// Package mock provides an in-memory sender for development and tests.
package mock

import (
	"context"
	"log/slog"
	"sync"

	"github.com/addisbazaar/platform/internal/domain"
)

// Sent records one dispatched code.
type Sent struct {
	Identifier domain.Identifier
	Code       string
	Purpose    domain.OtpPurpose
}

// Sender records every dispatched code instead of delivering it. In
// development mode it logs the code so the flow can be exercised end to end
// without an SMS gateway or SendGrid account.
type Sender struct {
	mu     sync.Mutex
	sent   []Sent
	err    error
	logger *slog.Logger
}

// New creates a recording sender. Logger may be nil.
func New(logger *slog.Logger) *Sender {
	return &Sender{logger: logger}
}

// Send records the dispatch, or returns the configured failure.
func (s *Sender) Send(ctx context.Context, identifier domain.Identifier, code string, purpose domain.OtpPurpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.sent = append(s.sent, Sent{Identifier: identifier, Code: code, Purpose: purpose})
	if s.logger != nil {
		s.logger.Info("mock otp dispatched",
			slog.String("identifier", identifier.Value),
			slog.String("code", code),
			slog.String("purpose", string(purpose)),
		)
	}
	return nil
}

// Fail makes subsequent Send calls return err. Pass nil to clear.
func (s *Sender) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Sent returns a copy of all recorded dispatches.
func (s *Sender) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Sent, len(s.sent))
	copy(out, s.sent)
	return out
}

// Last returns the most recent dispatch, or false when nothing was sent.
func (s *Sender) Last() (Sent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return Sent{}, false
	}
	return s.sent[len(s.sent)-1], true
}
