package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addisbazaar/platform/internal/domain"
	"github.com/addisbazaar/platform/pkg/database"
)

func newOtpTestRepo(t *testing.T) (*OtpRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewOtpRepository(mock)
	return repo, mock
}

func sampleChallenge() *domain.OtpChallenge {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.OtpChallenge{
		ID:         "otp-001",
		Identifier: "+251911223344",
		Purpose:    domain.PurposeRegistration,
		Code:       "482913",
		Status:     domain.OtpPending,
		IssuedAt:   now,
		ExpiresAt:  now.Add(10 * time.Minute),
	}
}

func otpColumns() []string {
	return []string{"id", "identifier", "purpose", "code", "status", "issued_at", "expires_at"}
}

// --- Create Tests ---

func TestOtpRepository_Create_SupersedesPriorPending(t *testing.T) {
	repo, mock := newOtpTestRepo(t)
	defer mock.Close()

	c := sampleChallenge()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE otp_challenges").
		WithArgs(c.Identifier, c.Purpose).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO otp_challenges").
		WithArgs(c.ID, c.Identifier, c.Purpose, c.Code, c.Status, c.IssuedAt, c.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), c)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOtpRepository_Create_InsertFails_RollsBack(t *testing.T) {
	repo, mock := newOtpTestRepo(t)
	defer mock.Close()

	c := sampleChallenge()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE otp_challenges").
		WithArgs(c.Identifier, c.Purpose).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("INSERT INTO otp_challenges").
		WithArgs(c.ID, c.Identifier, c.Purpose, c.Code, c.Status, c.IssuedAt, c.ExpiresAt).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), c)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- GetNewest Tests ---

func TestOtpRepository_GetNewest_Success(t *testing.T) {
	repo, mock := newOtpTestRepo(t)
	defer mock.Close()

	c := sampleChallenge()

	mock.ExpectQuery("SELECT .+ FROM otp_challenges").
		WithArgs(c.Identifier, c.Purpose).
		WillReturnRows(pgxmock.NewRows(otpColumns()).AddRow(
			c.ID, c.Identifier, c.Purpose, c.Code, c.Status, c.IssuedAt, c.ExpiresAt,
		))

	got, err := repo.GetNewest(context.Background(), c.Identifier, c.Purpose)

	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.Code, got.Code)
	assert.Equal(t, domain.OtpPending, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOtpRepository_GetNewest_SeesConsumedChallenge(t *testing.T) {
	// The lookup carries no status filter, so a consumed challenge stays
	// visible and the service can report it as already used.
	repo, mock := newOtpTestRepo(t)
	defer mock.Close()

	c := sampleChallenge()
	c.Status = domain.OtpVerified

	mock.ExpectQuery("SELECT .+ FROM otp_challenges").
		WithArgs(c.Identifier, c.Purpose).
		WillReturnRows(pgxmock.NewRows(otpColumns()).AddRow(
			c.ID, c.Identifier, c.Purpose, c.Code, c.Status, c.IssuedAt, c.ExpiresAt,
		))

	got, err := repo.GetNewest(context.Background(), c.Identifier, c.Purpose)

	require.NoError(t, err)
	assert.Equal(t, domain.OtpVerified, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOtpRepository_GetNewest_NotFound(t *testing.T) {
	repo, mock := newOtpTestRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM otp_challenges").
		WithArgs("+251911223344", domain.PurposeRegistration).
		WillReturnRows(pgxmock.NewRows(otpColumns()))

	_, err := repo.GetNewest(context.Background(), "+251911223344", domain.PurposeRegistration)

	assert.ErrorIs(t, err, domain.ErrOtpNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- ConsumePending Tests ---

func TestOtpRepository_ConsumePending_FirstCallWins(t *testing.T) {
	repo, mock := newOtpTestRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE otp_challenges").
		WithArgs(pgxmock.AnyArg(), "otp-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	consumed, err := repo.ConsumePending(context.Background(), "otp-001")

	require.NoError(t, err)
	assert.True(t, consumed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOtpRepository_ConsumePending_AlreadyConsumed(t *testing.T) {
	// The status predicate matches no row once the challenge left pending.
	repo, mock := newOtpTestRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE otp_challenges").
		WithArgs(pgxmock.AnyArg(), "otp-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	consumed, err := repo.ConsumePending(context.Background(), "otp-001")

	require.NoError(t, err)
	assert.False(t, consumed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- ExpireStale Tests ---

func TestOtpRepository_ExpireStale(t *testing.T) {
	repo, mock := newOtpTestRepo(t)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectExec("UPDATE otp_challenges").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.ExpireStale(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
