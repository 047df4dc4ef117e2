package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/addisbazaar/platform/internal/domain"
	"github.com/addisbazaar/platform/pkg/database"
)

func newSubscriptionTestRepo(t *testing.T) (*SubscriptionRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewSubscriptionRepository(mock)
	return repo, mock
}

func sampleSubscription() *domain.Subscription {
	now := time.Now().UTC().Truncate(time.Microsecond)
	end := now.AddDate(0, 1, 0)
	return &domain.Subscription{
		ID:           "sub-001",
		UserID:       "user-001",
		PlanID:       "plan-001",
		Status:       domain.SubscriptionActive,
		StartDate:    now,
		EndDate:      &end,
		ListingsUsed: 0,
		AutoRenew:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func subscriptionColumnNames() []string {
	return []string{
		"id", "user_id", "plan_id", "status", "start_date", "end_date",
		"listings_used", "auto_renew", "cancelled_at", "created_at", "updated_at",
	}
}

func subscriptionRow(s *domain.Subscription) *pgxmock.Rows {
	return pgxmock.NewRows(subscriptionColumnNames()).AddRow(
		s.ID, s.UserID, s.PlanID, s.Status, s.StartDate, s.EndDate,
		s.ListingsUsed, s.AutoRenew, s.CancelledAt, s.CreatedAt, s.UpdatedAt,
	)
}

// --- Subscribe Tests ---

func TestSubscriptionRepository_Subscribe_Success(t *testing.T) {
	repo, mock := newSubscriptionTestRepo(t)
	defer mock.Close()

	s := sampleSubscription()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM user_subscriptions").
		WithArgs(s.UserID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO user_subscriptions").
		WithArgs(
			s.ID, s.UserID, s.PlanID, s.Status, s.StartDate, s.EndDate,
			s.ListingsUsed, s.AutoRenew, pgxmock.AnyArg(),
		).
		WillReturnRows(subscriptionRow(s))
	mock.ExpectCommit()

	got, err := repo.Subscribe(context.Background(), s)

	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, domain.SubscriptionActive, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_Subscribe_AlreadyActive(t *testing.T) {
	// An existing active row short-circuits before any write.
	repo, mock := newSubscriptionTestRepo(t)
	defer mock.Close()

	s := sampleSubscription()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM user_subscriptions").
		WithArgs(s.UserID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("sub-existing"))
	mock.ExpectRollback()

	_, err := repo.Subscribe(context.Background(), s)

	assert.ErrorIs(t, err, domain.ErrSubscriptionAlreadyActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_Subscribe_UniqueIndexBackstop(t *testing.T) {
	// A concurrent writer activating between the lock and the upsert trips
	// the partial unique index instead of producing a second active row.
	repo, mock := newSubscriptionTestRepo(t)
	defer mock.Close()

	s := sampleSubscription()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM user_subscriptions").
		WithArgs(s.UserID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery("INSERT INTO user_subscriptions").
		WithArgs(
			s.ID, s.UserID, s.PlanID, s.Status, s.StartDate, s.EndDate,
			s.ListingsUsed, s.AutoRenew, pgxmock.AnyArg(),
		).
		WillReturnError(fmt.Errorf("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"))
	mock.ExpectRollback()

	_, err := repo.Subscribe(context.Background(), s)

	assert.ErrorIs(t, err, domain.ErrSubscriptionAlreadyActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- GetByID / GetActiveByUserID Tests ---

func TestSubscriptionRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newSubscriptionTestRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM user_subscriptions").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(subscriptionColumnNames()))

	_, err := repo.GetByID(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_GetActiveByUserID_Success(t *testing.T) {
	repo, mock := newSubscriptionTestRepo(t)
	defer mock.Close()

	s := sampleSubscription()

	mock.ExpectQuery("SELECT .+ FROM user_subscriptions").
		WithArgs(s.UserID).
		WillReturnRows(subscriptionRow(s))

	got, err := repo.GetActiveByUserID(context.Background(), s.UserID)

	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Update Tests ---

func TestSubscriptionRepository_Update_Success(t *testing.T) {
	repo, mock := newSubscriptionTestRepo(t)
	defer mock.Close()

	s := sampleSubscription()
	now := time.Now().UTC()
	s.Status = domain.SubscriptionCancelled
	s.CancelledAt = &now
	s.AutoRenew = false

	mock.ExpectExec("UPDATE user_subscriptions").
		WithArgs(
			s.Status, s.StartDate, s.EndDate, s.ListingsUsed,
			s.AutoRenew, s.CancelledAt, pgxmock.AnyArg(), s.ID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Update(context.Background(), s)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_Update_NotFound(t *testing.T) {
	repo, mock := newSubscriptionTestRepo(t)
	defer mock.Close()

	s := sampleSubscription()

	mock.ExpectExec("UPDATE user_subscriptions").
		WithArgs(
			s.Status, s.StartDate, s.EndDate, s.ListingsUsed,
			s.AutoRenew, s.CancelledAt, pgxmock.AnyArg(), s.ID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), s)

	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- ActivatePending Tests ---

func TestSubscriptionRepository_ActivatePending_Success(t *testing.T) {
	repo, mock := newSubscriptionTestRepo(t)
	defer mock.Close()

	end := time.Now().UTC().AddDate(0, 1, 0)

	mock.ExpectExec("UPDATE user_subscriptions").
		WithArgs(pgxmock.AnyArg(), &end, "sub-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.ActivatePending(context.Background(), "sub-001", &end)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_ActivatePending_NotPending(t *testing.T) {
	repo, mock := newSubscriptionTestRepo(t)
	defer mock.Close()

	mock.ExpectExec("UPDATE user_subscriptions").
		WithArgs(pgxmock.AnyArg(), (*time.Time)(nil), "sub-001").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.ActivatePending(context.Background(), "sub-001", nil)

	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// --- Reporting Tests ---

func TestSubscriptionRepository_CountActiveByPlan(t *testing.T) {
	repo, mock := newSubscriptionTestRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM membership_plans").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "count", "price"}).
			AddRow("plan-001", "Premium Monthly", 12, 499.0).
			AddRow("plan-002", "Free", 45, 0.0))

	counts, err := repo.CountActiveByPlan(context.Background())

	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, "Premium Monthly", counts[0].PlanName)
	assert.Equal(t, 12, counts[0].Subscribers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_ExpireLapsed(t *testing.T) {
	repo, mock := newSubscriptionTestRepo(t)
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectExec("UPDATE user_subscriptions").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := repo.ExpireLapsed(context.Background(), now)

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
