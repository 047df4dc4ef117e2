// Package retry provides a bounded, exponential-backoff executor for remote
// operations. Only failures classified as transient are retried; domain
// failures propagate to the caller immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	apperrors "github.com/addisbazaar/platform/pkg/errors"
)

// Kind classifies a failure for retry purposes.
type Kind int

const (
	// KindDomain failures will not succeed on retry (validation, auth, conflict).
	KindDomain Kind = iota
	// KindTransient failures are likely to succeed on retry (network, connection).
	KindTransient
)

// connPatterns are error message fragments that indicate a transient
// connection problem rather than a SQL or business-rule error.
var connPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"connect: connection",
	"dial tcp",
	"EOF",
	"connection timed out",
	"server closed the connection unexpectedly",
	"could not connect",
}

// Classify reports whether the given error is transient or domain. Context
// cancellation is never transient: the caller gave up, retrying is pointless.
func Classify(err error) Kind {
	if err == nil {
		return KindDomain
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindDomain
	}

	// Typed application errors are domain failures unless explicitly marked
	// unavailable (the constructor for unreachable dependencies).
	if errors.Is(err, apperrors.ErrServiceUnavail) {
		return KindTransient
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return KindDomain
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	msg := err.Error()
	for _, p := range connPatterns {
		if strings.Contains(msg, p) {
			return KindTransient
		}
	}

	return KindDomain
}

// IsTransient reports whether the error classifies as transient. It sees
// through ExhaustedError, so a terminal retry failure still reports true.
func IsTransient(err error) bool {
	var ex *ExhaustedError
	if errors.As(err, &ex) {
		return true
	}
	return Classify(err) == KindTransient
}

// ExhaustedError is returned when all attempts failed with transient errors.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

const (
	// DefaultMaxAttempts bounds the retry budget.
	DefaultMaxAttempts = 3
	defaultBaseWait    = 1 * time.Second
	jitterFraction     = 0.25
)

// Policy controls the retry schedule.
type Policy struct {
	MaxAttempts int
	BaseWait    time.Duration
}

// DefaultPolicy returns the standard 3-attempt, 1s/2s/4s schedule.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseWait: defaultBaseWait}
}

// backoff returns the wait before retry attempt (0-indexed). Jitter is
// additive only, so each wait is at least the scheduled base and the
// cumulative delay never undercuts the schedule.
func (p Policy) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.BaseWait << attempt // 1s, 2s, 4s
	jitter := time.Duration(float64(base) * jitterFraction * rand.Float64()) // #nosec G404 -- non-cryptographic jitter
	return base + jitter
}

// Do executes op, retrying transient failures per the policy. Domain failures
// return immediately without retry. When the budget is exhausted the last
// transient failure is returned wrapped in an ExhaustedError.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseWait <= 0 {
		p.BaseWait = defaultBaseWait
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("retry canceled: %w", ctx.Err())
			case <-time.After(p.backoff(attempt - 1)):
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if Classify(err) == KindDomain {
			return zero, err
		}
		lastErr = err
	}

	return zero, &ExhaustedError{Attempts: p.MaxAttempts, Last: lastErr}
}
