package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/addisbazaar/platform/internal/auth"
	"github.com/addisbazaar/platform/internal/cache"
	"github.com/addisbazaar/platform/internal/domain"
	"github.com/addisbazaar/platform/internal/event"
	"github.com/addisbazaar/platform/internal/repository"
	apperrors "github.com/addisbazaar/platform/pkg/errors"
	"github.com/addisbazaar/platform/pkg/retry"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// minPasswordLength is the minimum password length required.
const minPasswordLength = 6

// VerifyPolicy decides what happens when the login verification-status
// lookup exceeds its timeout.
type VerifyPolicy string

const (
	// VerifyProceed treats a timed-out lookup as inconclusive and lets the
	// login continue. Availability over consistency.
	VerifyProceed VerifyPolicy = "proceed"
	// VerifyFail rejects the login when the lookup times out.
	VerifyFail VerifyPolicy = "fail"
)

// FreePlanEnroller enrolls a newly verified account into the free plan.
type FreePlanEnroller interface {
	EnrollFree(ctx context.Context, userID string) error
}

// AuthService brokers identities into sessions: registration with OTP
// verification, login, token refresh, and password reset.
type AuthService struct {
	profileRepo  repository.ProfileRepository
	tokenRepo    repository.RefreshTokenRepository
	otp          *OtpService
	enroller     FreePlanEnroller
	jwtManager   *auth.JWTManager
	sessions     *cache.SessionCache
	producer     *event.Producer
	retryPolicy  retry.Policy
	verifyWait   time.Duration
	verifyPolicy VerifyPolicy
	logger       *slog.Logger
}

// NewAuthService creates a new session broker.
func NewAuthService(
	profileRepo repository.ProfileRepository,
	tokenRepo repository.RefreshTokenRepository,
	otp *OtpService,
	enroller FreePlanEnroller,
	jwtManager *auth.JWTManager,
	sessions *cache.SessionCache,
	producer *event.Producer,
	verifyWait time.Duration,
	verifyPolicy VerifyPolicy,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		profileRepo:  profileRepo,
		tokenRepo:    tokenRepo,
		otp:          otp,
		enroller:     enroller,
		jwtManager:   jwtManager,
		sessions:     sessions,
		producer:     producer,
		retryPolicy:  retry.DefaultPolicy(),
		verifyWait:   verifyWait,
		verifyPolicy: verifyPolicy,
		logger:       logger,
	}
}

// --- Input/Output types ---

// RegisterInput holds the parameters for registering a new account.
type RegisterInput struct {
	Identifier  string
	Password    string
	FullName    string
	AccountType string
	CompanyName string
}

// PendingVerification is returned when a flow requires an OTP round trip
// before a session can be issued.
type PendingVerification struct {
	Identifier  string `json:"identifier"`
	ChallengeID string `json:"challenge_id"`
	ExpiresAt   string `json:"expires_at"`
	DevCode     string `json:"dev_code,omitempty"`
}

// --- Operations ---

// Register creates an unverified account and issues a registration OTP.
// The identifier is normalized before the duplicate check, so all dialing
// variants of one phone number collide on the same account.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*PendingVerification, error) {
	identifier, err := domain.NormalizeIdentifier(input.Identifier)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}
	if input.AccountType == "" {
		input.AccountType = domain.AccountPersonal
	}
	if !domain.IsValidAccountType(input.AccountType) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown account type %q", input.AccountType))
	}
	if input.AccountType == domain.AccountCompany && input.CompanyName == "" {
		return nil, apperrors.InvalidInput("company name is required for company accounts")
	}

	if _, err := s.profileRepo.GetByIdentifier(ctx, identifier.Value); err == nil {
		return nil, domain.ErrDuplicateIdentity
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("check existing profile: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	profile := &domain.Profile{
		ID:           uuid.New().String(),
		Identifier:   identifier.Value,
		PasswordHash: string(hashed),
		FullName:     input.FullName,
		AccountType:  input.AccountType,
		CompanyName:  input.CompanyName,
		Role:         domain.RoleUser,
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.profileRepo.Create(ctx, profile); err != nil {
		return nil, err
	}

	issued, err := s.otp.Issue(ctx, identifier, domain.PurposeRegistration)
	if err != nil {
		return nil, fmt.Errorf("issue registration otp: %w", err)
	}

	if err := s.producer.PublishUserRegistered(ctx, profile); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish identity.registered event",
			slog.String("user_id", profile.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account registered, verification pending",
		slog.String("user_id", profile.ID),
	)

	return &PendingVerification{
		Identifier:  identifier.Value,
		ChallengeID: issued.ChallengeID,
		ExpiresAt:   issued.ExpiresAt,
		DevCode:     issued.DevCode,
	}, nil
}

// CompleteRegistration verifies the registration OTP, marks the account
// verified, enrolls it in the free plan, and issues a session.
func (s *AuthService) CompleteRegistration(ctx context.Context, rawIdentifier, code string) (*domain.Session, error) {
	identifier, err := domain.NormalizeIdentifier(rawIdentifier)
	if err != nil {
		return nil, err
	}

	if err := s.otp.Verify(ctx, identifier, code, domain.PurposeRegistration); err != nil {
		return nil, err
	}

	profile, err := s.profileRepo.GetByIdentifier(ctx, identifier.Value)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrUnknownIdentity
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	if !profile.IsVerified {
		if err := s.profileRepo.MarkVerified(ctx, profile.ID); err != nil {
			return nil, fmt.Errorf("mark profile verified: %w", err)
		}
		profile.IsVerified = true

		if err := s.enroller.EnrollFree(ctx, profile.ID); err != nil {
			s.logger.ErrorContext(ctx, "free plan enrollment failed",
				slog.String("user_id", profile.ID),
				slog.String("error", err.Error()),
			)
		}

		if err := s.producer.PublishUserVerified(ctx, profile); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish identity.verified event",
				slog.String("user_id", profile.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return s.issueSession(ctx, profile)
}

// Login exchanges an identifier and password for a session. The credential
// exchange is retried on transient failures; when the budget is exhausted
// the cached session for this identity is cleared, since it may be stale.
// An unverified account gets a fresh OTP and RequiresVerification instead of
// a session.
func (s *AuthService) Login(ctx context.Context, rawIdentifier, password string) (*domain.Session, error) {
	identifier, err := domain.NormalizeIdentifier(rawIdentifier)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, apperrors.InvalidInput("password is required")
	}

	session, err := retry.Do(ctx, s.retryPolicy, func(ctx context.Context) (*domain.Session, error) {
		return s.loginOnce(ctx, identifier, password)
	})
	if err != nil {
		if retry.IsTransient(err) {
			if clearErr := s.sessions.Clear(ctx, identifier.Value); clearErr != nil {
				s.logger.WarnContext(ctx, "failed to clear cached session",
					slog.String("error", clearErr.Error()),
				)
			}
			return nil, apperrors.Unavailable("login temporarily unavailable", err)
		}
		return nil, err
	}

	return session, nil
}

// loginOnce performs a single credential exchange attempt.
func (s *AuthService) loginOnce(ctx context.Context, identifier domain.Identifier, password string) (*domain.Session, error) {
	profile, err := s.profileRepo.GetByIdentifier(ctx, identifier.Value)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	verified, err := s.verificationStatus(ctx, profile)
	if err != nil {
		return nil, err
	}
	if !verified {
		// Re-issue under the registration purpose so the code completes
		// through the same verify endpoint as first-time registration.
		if _, err := s.otp.Issue(ctx, identifier, domain.PurposeRegistration); err != nil {
			s.logger.WarnContext(ctx, "failed to re-issue verification otp",
				slog.String("user_id", profile.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, domain.ErrRequiresVerification
	}

	return s.issueSession(ctx, profile)
}

// verificationStatus re-reads the verified flag, bounded by the configured
// timeout. On timeout the lookup is inconclusive: the proceed policy trusts
// the profile row already in hand, the fail policy rejects the login.
func (s *AuthService) verificationStatus(ctx context.Context, profile *domain.Profile) (bool, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, s.verifyWait)
	defer cancel()

	fresh, err := s.profileRepo.GetByID(lookupCtx, profile.ID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			if s.verifyPolicy == VerifyFail {
				return false, apperrors.Unavailable("verification status lookup timed out", err)
			}
			s.logger.WarnContext(ctx, "verification lookup timed out, proceeding",
				slog.String("user_id", profile.ID),
			)
			return profile.IsVerified, nil
		}
		return false, fmt.Errorf("verification status lookup: %w", err)
	}

	return fresh.IsVerified, nil
}

// Refresh validates a refresh token and rotates it for a new session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.Session, error) {
	if refreshToken == "" {
		return nil, apperrors.InvalidInput("refresh token is required")
	}

	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired refresh token")
	}

	session, err := retry.Do(ctx, s.retryPolicy, func(ctx context.Context) (*domain.Session, error) {
		return s.refreshOnce(ctx, claims.UserID, refreshToken)
	})
	if err != nil {
		if retry.IsTransient(err) {
			return nil, apperrors.Unavailable("token refresh temporarily unavailable", err)
		}
		return nil, err
	}

	return session, nil
}

func (s *AuthService) refreshOnce(ctx context.Context, userID, refreshToken string) (*domain.Session, error) {
	tokenHash := hashToken(refreshToken)
	stored, err := s.tokenRepo.GetByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("refresh token not found")
		}
		return nil, err
	}
	if stored.IsRevoked() {
		return nil, apperrors.Unauthorized("refresh token has been revoked")
	}
	if time.Now().UTC().After(stored.ExpiresAt) {
		return nil, apperrors.Unauthorized("refresh token has expired")
	}

	if err := s.tokenRepo.Revoke(ctx, tokenHash); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.ErrorContext(ctx, "failed to revoke rotated refresh token",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	profile, err := s.profileRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile for refresh: %w", err)
	}

	return s.issueSession(ctx, profile)
}

// SendPasswordResetOtp issues a password reset OTP. Unlike some flows this
// one reveals account existence: an unknown identifier is an error, no code
// is sent.
func (s *AuthService) SendPasswordResetOtp(ctx context.Context, rawIdentifier string) (*PendingVerification, error) {
	identifier, err := domain.NormalizeIdentifier(rawIdentifier)
	if err != nil {
		return nil, err
	}

	profile, err := s.profileRepo.GetByIdentifier(ctx, identifier.Value)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrUnknownIdentity
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	issued, err := s.otp.Issue(ctx, identifier, domain.PurposePasswordReset)
	if err != nil {
		return nil, fmt.Errorf("issue password reset otp: %w", err)
	}

	s.logger.InfoContext(ctx, "password reset requested",
		slog.String("user_id", profile.ID),
	)

	return &PendingVerification{
		Identifier:  identifier.Value,
		ChallengeID: issued.ChallengeID,
		ExpiresAt:   issued.ExpiresAt,
		DevCode:     issued.DevCode,
	}, nil
}

// CompletePasswordReset verifies the reset OTP, replaces the credential, and
// logs the user in with the new password.
func (s *AuthService) CompletePasswordReset(ctx context.Context, rawIdentifier, code, newPassword string) (*domain.Session, error) {
	identifier, err := domain.NormalizeIdentifier(rawIdentifier)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(newPassword); err != nil {
		return nil, err
	}

	if err := s.otp.Verify(ctx, identifier, code, domain.PurposePasswordReset); err != nil {
		return nil, err
	}

	profile, err := s.profileRepo.GetByIdentifier(ctx, identifier.Value)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, domain.ErrUnknownIdentity
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash new password: %w", err)
	}

	if err := s.profileRepo.UpdatePassword(ctx, profile.ID, string(hashed)); err != nil {
		s.logger.ErrorContext(ctx, "credential update failed",
			slog.String("user_id", profile.ID),
			slog.String("error", err.Error()),
		)
		return nil, domain.ErrCredentialUpdateFailed
	}

	// All outstanding sessions die with the old credential.
	if err := s.tokenRepo.RevokeByUserID(ctx, profile.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke refresh tokens after reset",
			slog.String("user_id", profile.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishPasswordReset(ctx, profile); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish identity.password_reset event",
			slog.String("user_id", profile.ID),
			slog.String("error", err.Error()),
		)
	}

	return s.issueSession(ctx, profile)
}

// Logout revokes the presented refresh token and clears the cached session.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken != "" {
		if err := s.tokenRepo.Revoke(ctx, hashToken(refreshToken)); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("revoke refresh token: %w", err)
		}
	}

	profile, err := s.profileRepo.GetByID(ctx, userID)
	if err == nil {
		if err := s.sessions.Clear(ctx, profile.Identifier); err != nil {
			s.logger.WarnContext(ctx, "failed to clear cached session",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "logged out", slog.String("user_id", userID))
	return nil
}

// issueSession generates a token pair, persists the refresh token hash, and
// caches the session under the identity key.
func (s *AuthService) issueSession(ctx context.Context, profile *domain.Profile) (*domain.Session, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(profile.ID, profile.Identifier, profile.Role)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(profile.ID)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now := time.Now().UTC()
	if err := s.tokenRepo.Create(ctx, profile.ID, hashToken(refreshToken), now.Add(s.jwtManager.RefreshExpiry())); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	session := &domain.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.jwtManager.AccessExpiry()),
	}

	if err := s.sessions.Save(ctx, profile.Identifier, session); err != nil {
		s.logger.WarnContext(ctx, "failed to cache session",
			slog.String("user_id", profile.ID),
			slog.String("error", err.Error()),
		)
	}

	return session, nil
}

// hashToken returns the SHA256 hex digest of the given token string.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// validatePassword checks that the password meets minimum complexity requirements.
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	var hasLetter, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsLetter(ch):
			hasLetter = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return apperrors.InvalidInput("password must contain at least one letter and one digit")
	}

	return nil
}
