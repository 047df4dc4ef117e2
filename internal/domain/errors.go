package domain

import (
	"net/http"

	apperrors "github.com/addisbazaar/platform/pkg/errors"
)

// Typed failures returned by the identity and subscription flows. Handlers
// map these straight to HTTP responses via pkg/errors.
var (
	ErrInvalidIdentifier = &apperrors.AppError{
		Code:    "INVALID_IDENTIFIER",
		Message: "identifier is not a valid email or Ethiopian phone number",
		Status:  http.StatusBadRequest,
		Err:     apperrors.ErrInvalidInput,
	}

	ErrDuplicateIdentity = &apperrors.AppError{
		Code:    "DUPLICATE_IDENTITY",
		Message: "an account with this identifier already exists",
		Status:  http.StatusConflict,
		Err:     apperrors.ErrAlreadyExists,
	}

	ErrOtpExpired = &apperrors.AppError{
		Code:    "OTP_EXPIRED",
		Message: "the verification code has expired, request a new one",
		Status:  http.StatusBadRequest,
		Err:     apperrors.ErrInvalidInput,
	}

	ErrOtpAlreadyUsed = &apperrors.AppError{
		Code:    "OTP_ALREADY_USED",
		Message: "the verification code has already been used",
		Status:  http.StatusConflict,
		Err:     apperrors.ErrConflict,
	}

	ErrOtpMismatch = &apperrors.AppError{
		Code:    "OTP_MISMATCH",
		Message: "the verification code is incorrect",
		Status:  http.StatusBadRequest,
		Err:     apperrors.ErrInvalidInput,
	}

	ErrOtpResendTooSoon = &apperrors.AppError{
		Code:    "OTP_RESEND_TOO_SOON",
		Message: "a verification code was sent recently, wait before requesting another",
		Status:  http.StatusTooManyRequests,
		Err:     apperrors.ErrConflict,
	}

	ErrOtpNotFound = &apperrors.AppError{
		Code:    "OTP_NOT_FOUND",
		Message: "no pending verification code for this identifier",
		Status:  http.StatusNotFound,
		Err:     apperrors.ErrNotFound,
	}

	ErrInvalidCredentials = &apperrors.AppError{
		Code:    "INVALID_CREDENTIALS",
		Message: "identifier or password is incorrect",
		Status:  http.StatusUnauthorized,
		Err:     apperrors.ErrUnauthorized,
	}

	ErrRequiresVerification = &apperrors.AppError{
		Code:    "REQUIRES_VERIFICATION",
		Message: "account is not verified, a new verification code has been sent",
		Status:  http.StatusForbidden,
		Err:     apperrors.ErrForbidden,
	}

	ErrUnknownIdentity = &apperrors.AppError{
		Code:    "UNKNOWN_IDENTITY",
		Message: "no account matches this identifier",
		Status:  http.StatusNotFound,
		Err:     apperrors.ErrNotFound,
	}

	ErrCredentialUpdateFailed = &apperrors.AppError{
		Code:    "CREDENTIAL_UPDATE_FAILED",
		Message: "failed to update the account credential",
		Status:  http.StatusInternalServerError,
		Err:     apperrors.ErrInternal,
	}

	ErrSubscriptionAlreadyActive = &apperrors.AppError{
		Code:    "SUBSCRIPTION_ALREADY_ACTIVE",
		Message: "user already holds an active subscription",
		Status:  http.StatusConflict,
		Err:     apperrors.ErrConflict,
	}

	ErrSubscriptionNotFound = &apperrors.AppError{
		Code:    "SUBSCRIPTION_NOT_FOUND",
		Message: "subscription not found",
		Status:  http.StatusNotFound,
		Err:     apperrors.ErrNotFound,
	}

	ErrPlanNotFound = &apperrors.AppError{
		Code:    "PLAN_NOT_FOUND",
		Message: "membership plan not found",
		Status:  http.StatusNotFound,
		Err:     apperrors.ErrNotFound,
	}
)
