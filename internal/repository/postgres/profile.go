package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/addisbazaar/platform/internal/domain"
	"github.com/addisbazaar/platform/pkg/database"
	apperrors "github.com/addisbazaar/platform/pkg/errors"
)

// ProfileRepository implements repository.ProfileRepository using PostgreSQL.
type ProfileRepository struct {
	pool database.DBTX
}

// NewProfileRepository creates a new PostgreSQL-backed profile repository.
func NewProfileRepository(pool database.DBTX) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// Create inserts a new profile into the database.
func (r *ProfileRepository) Create(ctx context.Context, p *domain.Profile) error {
	query := `
		INSERT INTO profiles (id, identifier, password_hash, full_name, account_type, company_name, role, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.Identifier,
		p.PasswordHash,
		p.FullName,
		p.AccountType,
		p.CompanyName,
		p.Role,
		p.IsVerified,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateIdentity
		}
		return fmt.Errorf("insert profile: %w", err)
	}

	return nil
}

// GetByID retrieves a profile by its ID.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	query := `
		SELECT id, identifier, password_hash, full_name, account_type, company_name, role, is_verified, created_at, updated_at
		FROM profiles
		WHERE id = $1`

	return r.scanProfile(ctx, query, id)
}

// GetByIdentifier retrieves a profile by its canonical identity key.
func (r *ProfileRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Profile, error) {
	query := `
		SELECT id, identifier, password_hash, full_name, account_type, company_name, role, is_verified, created_at, updated_at
		FROM profiles
		WHERE identifier = $1`

	return r.scanProfile(ctx, query, identifier)
}

// MarkVerified flips the profile's verified flag.
func (r *ProfileRepository) MarkVerified(ctx context.Context, id string) error {
	query := `UPDATE profiles SET is_verified = TRUE, updated_at = $1 WHERE id = $2`

	ct, err := r.pool.Exec(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark profile verified: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("profile", id)
	}

	return nil
}

// UpdatePassword replaces the stored credential hash.
func (r *ProfileRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE profiles SET password_hash = $1, updated_at = $2 WHERE id = $3`

	ct, err := r.pool.Exec(ctx, query, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update profile password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("profile", id)
	}

	return nil
}

// scanProfile is a helper that executes a query expected to return a single profile row.
func (r *ProfileRepository) scanProfile(ctx context.Context, query string, args ...any) (*domain.Profile, error) {
	var p domain.Profile

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&p.ID,
		&p.Identifier,
		&p.PasswordHash,
		&p.FullName,
		&p.AccountType,
		&p.CompanyName,
		&p.Role,
		&p.IsVerified,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}

	return &p, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
