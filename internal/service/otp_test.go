package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/addisbazaar/platform/internal/domain"
	sendermock "github.com/addisbazaar/platform/internal/sender/mock"
	apperrors "github.com/addisbazaar/platform/pkg/errors"
	"github.com/addisbazaar/platform/pkg/retry"
)

// --- Mock OTP Repository ---

type mockOtpRepository struct {
	mock.Mock
}

func (m *mockOtpRepository) Create(ctx context.Context, challenge *domain.OtpChallenge) error {
	args := m.Called(ctx, challenge)
	return args.Error(0)
}

func (m *mockOtpRepository) GetNewest(ctx context.Context, identifier string, purpose domain.OtpPurpose) (*domain.OtpChallenge, error) {
	args := m.Called(ctx, identifier, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OtpChallenge), args.Error(1)
}

func (m *mockOtpRepository) ConsumePending(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockOtpRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// --- Helpers ---

func phoneIdentifier() domain.Identifier {
	return domain.Identifier{Kind: domain.IdentifierPhone, Value: "+251911223344"}
}

func newTestOtpService(repo *mockOtpRepository, dispatcher *sendermock.Sender) *OtpService {
	return NewOtpService(repo, dispatcher, 10*time.Minute, 0, true, newTestLogger())
}

func pendingChallenge(code string, purpose domain.OtpPurpose) *domain.OtpChallenge {
	now := time.Now().UTC()
	return &domain.OtpChallenge{
		ID:         "challenge-1",
		Identifier: "+251911223344",
		Purpose:    purpose,
		Code:       code,
		Status:     domain.OtpPending,
		IssuedAt:   now,
		ExpiresAt:  now.Add(10 * time.Minute),
	}
}

// --- Issue Tests ---

func TestOtpIssue_Success(t *testing.T) {
	repo := new(mockOtpRepository)
	dispatcher := sendermock.New(nil)
	svc := newTestOtpService(repo, dispatcher)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*domain.OtpChallenge")).Return(nil)

	result, err := svc.Issue(ctx, phoneIdentifier(), domain.PurposeRegistration)

	require.NoError(t, err)
	assert.NotEmpty(t, result.ChallengeID)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), result.DevCode)

	expiry, parseErr := time.Parse(time.RFC3339, result.ExpiresAt)
	require.NoError(t, parseErr)
	assert.WithinDuration(t, time.Now().UTC().Add(10*time.Minute), expiry, 5*time.Second)

	last, ok := dispatcher.Last()
	require.True(t, ok)
	assert.Equal(t, result.DevCode, last.Code)
	assert.Equal(t, domain.PurposeRegistration, last.Purpose)

	repo.AssertExpectations(t)
}

func TestOtpIssue_ResendCooldownThrottles(t *testing.T) {
	repo := new(mockOtpRepository)
	dispatcher := sendermock.New(nil)
	svc := NewOtpService(repo, dispatcher, 10*time.Minute, time.Minute, true, newTestLogger())
	ctx := context.Background()

	prior := pendingChallenge("123456", domain.PurposeRegistration)
	prior.IssuedAt = time.Now().UTC().Add(-10 * time.Second)
	repo.On("GetNewest", ctx, "+251911223344", domain.PurposeRegistration).Return(prior, nil)

	_, err := svc.Issue(ctx, phoneIdentifier(), domain.PurposeRegistration)

	assert.ErrorIs(t, err, domain.ErrOtpResendTooSoon)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	_, sent := dispatcher.Last()
	assert.False(t, sent)
}

func TestOtpIssue_ResendAllowedAfterCooldown(t *testing.T) {
	repo := new(mockOtpRepository)
	dispatcher := sendermock.New(nil)
	svc := NewOtpService(repo, dispatcher, 10*time.Minute, time.Minute, true, newTestLogger())
	ctx := context.Background()

	prior := pendingChallenge("123456", domain.PurposeRegistration)
	prior.IssuedAt = time.Now().UTC().Add(-2 * time.Minute)
	repo.On("GetNewest", ctx, "+251911223344", domain.PurposeRegistration).Return(prior, nil)
	repo.On("Create", ctx, mock.AnythingOfType("*domain.OtpChallenge")).Return(nil)

	result, err := svc.Issue(ctx, phoneIdentifier(), domain.PurposeRegistration)

	require.NoError(t, err)
	assert.NotEmpty(t, result.ChallengeID)
	repo.AssertExpectations(t)
}

func TestOtpIssue_HidesCodeOutsideDevelopment(t *testing.T) {
	repo := new(mockOtpRepository)
	dispatcher := sendermock.New(nil)
	svc := NewOtpService(repo, dispatcher, 10*time.Minute, 0, false, newTestLogger())
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*domain.OtpChallenge")).Return(nil)

	result, err := svc.Issue(ctx, phoneIdentifier(), domain.PurposeRegistration)

	require.NoError(t, err)
	assert.Empty(t, result.DevCode)
}

func TestOtpIssue_UnknownPurpose(t *testing.T) {
	repo := new(mockOtpRepository)
	dispatcher := sendermock.New(nil)
	svc := newTestOtpService(repo, dispatcher)

	result, err := svc.Issue(context.Background(), phoneIdentifier(), domain.OtpPurpose("promotion"))

	assert.Nil(t, result)
	assert.Error(t, err)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestOtpIssue_DispatchFailureIsTransient(t *testing.T) {
	repo := new(mockOtpRepository)
	dispatcher := sendermock.New(nil)
	dispatcher.Fail(apperrors.Unavailable("sms gateway unreachable", errors.New("connection refused")))
	svc := newTestOtpService(repo, dispatcher)
	ctx := context.Background()

	repo.On("Create", ctx, mock.AnythingOfType("*domain.OtpChallenge")).Return(nil)

	result, err := svc.Issue(ctx, phoneIdentifier(), domain.PurposeRegistration)

	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
}

// --- Verify Tests ---

func TestOtpVerify_Success(t *testing.T) {
	repo := new(mockOtpRepository)
	svc := newTestOtpService(repo, sendermock.New(nil))
	ctx := context.Background()

	challenge := pendingChallenge("123456", domain.PurposeRegistration)
	repo.On("GetNewest", ctx, "+251911223344", domain.PurposeRegistration).Return(challenge, nil)
	repo.On("ConsumePending", ctx, "challenge-1").Return(true, nil)

	err := svc.Verify(ctx, phoneIdentifier(), "123456", domain.PurposeRegistration)

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestOtpVerify_Mismatch(t *testing.T) {
	repo := new(mockOtpRepository)
	svc := newTestOtpService(repo, sendermock.New(nil))
	ctx := context.Background()

	challenge := pendingChallenge("123456", domain.PurposeRegistration)
	repo.On("GetNewest", ctx, "+251911223344", domain.PurposeRegistration).Return(challenge, nil)

	err := svc.Verify(ctx, phoneIdentifier(), "654321", domain.PurposeRegistration)

	assert.ErrorIs(t, err, domain.ErrOtpMismatch)
	repo.AssertNotCalled(t, "ConsumePending", mock.Anything, mock.Anything)
}

func TestOtpVerify_Expired(t *testing.T) {
	repo := new(mockOtpRepository)
	svc := newTestOtpService(repo, sendermock.New(nil))
	ctx := context.Background()

	challenge := pendingChallenge("123456", domain.PurposeRegistration)
	challenge.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	repo.On("GetNewest", ctx, "+251911223344", domain.PurposeRegistration).Return(challenge, nil)

	err := svc.Verify(ctx, phoneIdentifier(), "123456", domain.PurposeRegistration)

	assert.ErrorIs(t, err, domain.ErrOtpExpired)
	repo.AssertNotCalled(t, "ConsumePending", mock.Anything, mock.Anything)
}

func TestOtpVerify_ReplayRejected(t *testing.T) {
	repo := new(mockOtpRepository)
	svc := newTestOtpService(repo, sendermock.New(nil))
	ctx := context.Background()

	// The challenge row is still readable but another caller won the
	// compare-and-set on its status.
	challenge := pendingChallenge("123456", domain.PurposeRegistration)
	repo.On("GetNewest", ctx, "+251911223344", domain.PurposeRegistration).Return(challenge, nil)
	repo.On("ConsumePending", ctx, "challenge-1").Return(false, nil)

	err := svc.Verify(ctx, phoneIdentifier(), "123456", domain.PurposeRegistration)

	assert.ErrorIs(t, err, domain.ErrOtpAlreadyUsed)
}

func TestOtpVerify_ReplayAfterConsume(t *testing.T) {
	repo := new(mockOtpRepository)
	svc := newTestOtpService(repo, sendermock.New(nil))
	ctx := context.Background()

	// A second verify with the same code lands after the first one consumed
	// the challenge. The caller must learn the code was used, not that no
	// challenge exists.
	challenge := pendingChallenge("123456", domain.PurposeRegistration)
	challenge.Status = domain.OtpVerified
	repo.On("GetNewest", ctx, "+251911223344", domain.PurposeRegistration).Return(challenge, nil)

	err := svc.Verify(ctx, phoneIdentifier(), "123456", domain.PurposeRegistration)

	assert.ErrorIs(t, err, domain.ErrOtpAlreadyUsed)
	repo.AssertNotCalled(t, "ConsumePending", mock.Anything, mock.Anything)
}

func TestOtpVerify_SupersededChallenge(t *testing.T) {
	repo := new(mockOtpRepository)
	svc := newTestOtpService(repo, sendermock.New(nil))
	ctx := context.Background()

	challenge := pendingChallenge("123456", domain.PurposeRegistration)
	challenge.Status = domain.OtpSuperseded
	repo.On("GetNewest", ctx, "+251911223344", domain.PurposeRegistration).Return(challenge, nil)

	err := svc.Verify(ctx, phoneIdentifier(), "123456", domain.PurposeRegistration)

	assert.ErrorIs(t, err, domain.ErrOtpNotFound)
}

func TestOtpIssue_CooldownIgnoresConsumedChallenge(t *testing.T) {
	repo := new(mockOtpRepository)
	dispatcher := sendermock.New(nil)
	svc := NewOtpService(repo, dispatcher, 10*time.Minute, time.Minute, true, newTestLogger())
	ctx := context.Background()

	// The newest challenge was just consumed; only a pending one throttles.
	prior := pendingChallenge("123456", domain.PurposeRegistration)
	prior.Status = domain.OtpVerified
	prior.IssuedAt = time.Now().UTC().Add(-10 * time.Second)
	repo.On("GetNewest", ctx, "+251911223344", domain.PurposeRegistration).Return(prior, nil)
	repo.On("Create", ctx, mock.AnythingOfType("*domain.OtpChallenge")).Return(nil)

	_, err := svc.Issue(ctx, phoneIdentifier(), domain.PurposeRegistration)

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestOtpVerify_NoPendingChallenge(t *testing.T) {
	repo := new(mockOtpRepository)
	svc := newTestOtpService(repo, sendermock.New(nil))
	ctx := context.Background()

	repo.On("GetNewest", ctx, "+251911223344", domain.PurposePasswordReset).
		Return(nil, domain.ErrOtpNotFound)

	err := svc.Verify(ctx, phoneIdentifier(), "123456", domain.PurposePasswordReset)

	assert.ErrorIs(t, err, domain.ErrOtpNotFound)
}

// --- Code Generation Tests ---

func TestGenerateCode_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}$`)
	for range 50 {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}
