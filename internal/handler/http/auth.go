package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/addisbazaar/platform/internal/service"
	"github.com/addisbazaar/platform/pkg/httputil"
	"github.com/addisbazaar/platform/pkg/middleware"
	"github.com/addisbazaar/platform/pkg/validator"
)

// maxBodySize caps request bodies at 1MB.
const maxBodySize = 1 << 20

// AuthHandler handles HTTP requests for identity endpoints.
type AuthHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for account registration. The
// identifier may be a phone number in any local dialing variant or an email
// address.
type RegisterRequest struct {
	Identifier  string `json:"identifier" validate:"required,min=3,max=255"`
	Password    string `json:"password" validate:"required,min=6"`
	FullName    string `json:"full_name" validate:"required,min=1,max=200"`
	AccountType string `json:"account_type" validate:"omitempty,oneof=personal company"`
	CompanyName string `json:"company_name" validate:"omitempty,max=200"`
}

// VerifyRequest is the JSON request body for OTP verification.
type VerifyRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Code       string `json:"code" validate:"required,len=6,numeric"`
}

// LoginRequest is the JSON request body for login.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// RefreshRequest is the JSON request body for token refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ForgotPasswordRequest is the JSON request body for requesting a reset code.
type ForgotPasswordRequest struct {
	Identifier string `json:"identifier" validate:"required"`
}

// ResetPasswordRequest is the JSON request body for completing a password reset.
type ResetPasswordRequest struct {
	Identifier  string `json:"identifier" validate:"required"`
	Code        string `json:"code" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// LogoutRequest is the JSON request body for logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// decode reads and validates a JSON request body, writing the error response
// itself when the body is malformed or invalid.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return false
	}

	if err := validator.Validate(dst); err != nil {
		httputil.WriteValidationError(w, err)
		return false
	}

	return true
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	pending, err := h.service.Register(r.Context(), service.RegisterInput{
		Identifier:  req.Identifier,
		Password:    req.Password,
		FullName:    req.FullName,
		AccountType: req.AccountType,
		CompanyName: req.CompanyName,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: pending})
}

// Verify handles POST /api/v1/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.service.CompleteRegistration(r.Context(), req.Identifier, req.Code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// ForgotPassword handles POST /api/v1/auth/forgot-password
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	pending, err := h.service.SendPasswordResetOtp(r.Context(), req.Identifier)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: pending})
}

// ResetPassword handles POST /api/v1/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	session, err := h.service.CompletePasswordReset(r.Context(), req.Identifier, req.Code, req.NewPassword)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if !decode(w, r, &req) {
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	if err := h.service.Logout(r.Context(), userID, req.RefreshToken); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"status": "logged_out"}})
}
