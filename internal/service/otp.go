package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/addisbazaar/platform/internal/domain"
	"github.com/addisbazaar/platform/internal/repository"
	"github.com/addisbazaar/platform/internal/sender"
	apperrors "github.com/addisbazaar/platform/pkg/errors"
)

// codeDigits is the length of generated one-time codes.
const codeDigits = 6

// OtpService issues and verifies single-use, time-boxed codes per
// (identifier, purpose) pair.
type OtpService struct {
	otpRepo        repository.OtpRepository
	dispatcher     sender.Sender
	ttl            time.Duration
	resendCooldown time.Duration
	devMode        bool
	logger         *slog.Logger
}

// NewOtpService creates a new OTP challenge service. In development mode the
// generated code is returned to the caller alongside the challenge ID. A
// resendCooldown of zero disables resend throttling.
func NewOtpService(
	otpRepo repository.OtpRepository,
	dispatcher sender.Sender,
	ttl time.Duration,
	resendCooldown time.Duration,
	devMode bool,
	logger *slog.Logger,
) *OtpService {
	return &OtpService{
		otpRepo:        otpRepo,
		dispatcher:     dispatcher,
		ttl:            ttl,
		resendCooldown: resendCooldown,
		devMode:        devMode,
		logger:         logger,
	}
}

// IssueResult holds the outcome of issuing a challenge. DevCode is populated
// only in development mode.
type IssueResult struct {
	ChallengeID string `json:"challenge_id"`
	ExpiresAt   string `json:"expires_at"`
	DevCode     string `json:"dev_code,omitempty"`
}

// Issue generates a code, persists a pending challenge, and dispatches it
// over the channel matching the identifier kind. Any prior pending challenge
// for the same (identifier, purpose) pair is superseded: only the newest
// challenge is verifiable. Dispatch is attempted once; this guarantees the
// message left for the provider, not that it was delivered.
func (s *OtpService) Issue(ctx context.Context, identifier domain.Identifier, purpose domain.OtpPurpose) (*IssueResult, error) {
	if !domain.IsValidOtpPurpose(purpose) {
		return nil, fmt.Errorf("unknown otp purpose %q", purpose)
	}

	now := time.Now().UTC()
	if s.resendCooldown > 0 {
		prior, err := s.otpRepo.GetNewest(ctx, identifier.Value, purpose)
		switch {
		case err == nil:
			if prior.Status == domain.OtpPending && now.Sub(prior.IssuedAt) < s.resendCooldown {
				return nil, domain.ErrOtpResendTooSoon
			}
		case errors.Is(err, apperrors.ErrNotFound):
			// no prior challenge, proceed
		default:
			return nil, err
		}
	}

	code, err := generateCode()
	if err != nil {
		return nil, fmt.Errorf("generate otp code: %w", err)
	}
	challenge := &domain.OtpChallenge{
		ID:         uuid.New().String(),
		Identifier: identifier.Value,
		Purpose:    purpose,
		Code:       code,
		Status:     domain.OtpPending,
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.ttl),
	}

	if err := s.otpRepo.Create(ctx, challenge); err != nil {
		return nil, fmt.Errorf("persist otp challenge: %w", err)
	}

	if err := s.dispatcher.Send(ctx, identifier, code, purpose); err != nil {
		return nil, fmt.Errorf("dispatch otp: %w", err)
	}

	s.logger.InfoContext(ctx, "otp challenge issued",
		slog.String("challenge_id", challenge.ID),
		slog.String("purpose", string(purpose)),
	)

	result := &IssueResult{
		ChallengeID: challenge.ID,
		ExpiresAt:   challenge.ExpiresAt.Format(time.RFC3339),
	}
	if s.devMode {
		result.DevCode = code
	}

	return result, nil
}

// Verify checks the submitted code against the newest challenge for
// (identifier, purpose) and consumes it. Consumption is a compare-and-set on
// the challenge status, so of two concurrent verify calls with the correct
// code exactly one succeeds; the other observes OTP_ALREADY_USED. A replay
// against an already-consumed challenge also reports OTP_ALREADY_USED rather
// than not-found.
func (s *OtpService) Verify(ctx context.Context, identifier domain.Identifier, code string, purpose domain.OtpPurpose) error {
	challenge, err := s.otpRepo.GetNewest(ctx, identifier.Value, purpose)
	if err != nil {
		return err
	}

	switch challenge.Status {
	case domain.OtpVerified:
		return domain.ErrOtpAlreadyUsed
	case domain.OtpExpired:
		return domain.ErrOtpExpired
	case domain.OtpSuperseded:
		return domain.ErrOtpNotFound
	}

	if challenge.IsExpired(time.Now().UTC()) {
		return domain.ErrOtpExpired
	}

	if challenge.Code != code {
		return domain.ErrOtpMismatch
	}

	consumed, err := s.otpRepo.ConsumePending(ctx, challenge.ID)
	if err != nil {
		return fmt.Errorf("consume otp challenge: %w", err)
	}
	if !consumed {
		return domain.ErrOtpAlreadyUsed
	}

	s.logger.InfoContext(ctx, "otp challenge verified",
		slog.String("challenge_id", challenge.ID),
		slog.String("purpose", string(purpose)),
	)

	return nil
}

// ExpireStale marks pending challenges past their expiry as expired. Called
// periodically by the background sweep.
func (s *OtpService) ExpireStale(ctx context.Context) (int64, error) {
	return s.otpRepo.ExpireStale(ctx, time.Now().UTC())
}

// generateCode returns a uniformly random numeric code of codeDigits digits.
func generateCode() (string, error) {
	max := big.NewInt(1)
	for range codeDigits {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%0*d", codeDigits, n), nil
}
