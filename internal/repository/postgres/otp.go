package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/addisbazaar/platform/internal/domain"
	"github.com/addisbazaar/platform/pkg/database"
)

// OtpRepository implements repository.OtpRepository using PostgreSQL.
type OtpRepository struct {
	pool database.DBTX
}

// NewOtpRepository creates a new PostgreSQL-backed OTP challenge repository.
func NewOtpRepository(pool database.DBTX) *OtpRepository {
	return &OtpRepository{pool: pool}
}

// Create inserts a pending challenge and supersedes any prior pending
// challenge for the same (identifier, purpose) pair. Both writes happen in
// one transaction so a concurrent verify never sees two pending challenges.
func (r *OtpRepository) Create(ctx context.Context, c *domain.OtpChallenge) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	supersede := `
		UPDATE otp_challenges
		SET status = 'superseded'
		WHERE identifier = $1 AND purpose = $2 AND status = 'pending'`

	if _, err := tx.Exec(ctx, supersede, c.Identifier, c.Purpose); err != nil {
		return fmt.Errorf("supersede pending challenges: %w", err)
	}

	insert := `
		INSERT INTO otp_challenges (id, identifier, purpose, code, status, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := tx.Exec(ctx, insert,
		c.ID,
		c.Identifier,
		c.Purpose,
		c.Code,
		c.Status,
		c.IssuedAt,
		c.ExpiresAt,
	); err != nil {
		return fmt.Errorf("insert otp challenge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetNewest retrieves the most recently issued challenge for the
// (identifier, purpose) pair regardless of status, so callers can
// distinguish a consumed challenge from one that never existed.
func (r *OtpRepository) GetNewest(ctx context.Context, identifier string, purpose domain.OtpPurpose) (*domain.OtpChallenge, error) {
	query := `
		SELECT id, identifier, purpose, code, status, issued_at, expires_at
		FROM otp_challenges
		WHERE identifier = $1 AND purpose = $2
		ORDER BY issued_at DESC
		LIMIT 1`

	var c domain.OtpChallenge
	err := r.pool.QueryRow(ctx, query, identifier, purpose).Scan(
		&c.ID,
		&c.Identifier,
		&c.Purpose,
		&c.Code,
		&c.Status,
		&c.IssuedAt,
		&c.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOtpNotFound
		}
		return nil, fmt.Errorf("scan otp challenge: %w", err)
	}

	return &c, nil
}

// ConsumePending transitions a challenge from pending to verified. The
// status predicate makes the transition a compare-and-set: of two concurrent
// verify calls, exactly one observes a row change.
func (r *OtpRepository) ConsumePending(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE otp_challenges
		SET status = 'verified', verified_at = $1
		WHERE id = $2 AND status = 'pending'`

	ct, err := r.pool.Exec(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("consume otp challenge: %w", err)
	}

	return ct.RowsAffected() == 1, nil
}

// ExpireStale marks pending challenges past their expiry as expired.
func (r *OtpRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE otp_challenges
		SET status = 'expired'
		WHERE status = 'pending' AND expires_at < $1`

	ct, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire stale otp challenges: %w", err)
	}

	return ct.RowsAffected(), nil
}
