package domain

import (
	"time"
)

// Account types supported by the marketplace.
const (
	AccountPersonal = "personal"
	AccountCompany  = "company"
)

// Roles assignable to a profile.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ValidAccountTypes returns all recognized account types.
func ValidAccountTypes() []string {
	return []string{AccountPersonal, AccountCompany}
}

// IsValidAccountType reports whether t is a recognized account type.
func IsValidAccountType(t string) bool {
	return t == AccountPersonal || t == AccountCompany
}

// Profile represents a registered account keyed by its canonical identifier.
type Profile struct {
	ID           string    `json:"id"`
	Identifier   string    `json:"identifier"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	AccountType  string    `json:"account_type"`
	CompanyName  string    `json:"company_name,omitempty"`
	Role         string    `json:"role"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RefreshToken represents a stored refresh token for a session.
type RefreshToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// IsRevoked reports whether the token has been revoked.
func (rt *RefreshToken) IsRevoked() bool {
	return rt.RevokedAt != nil
}

// Session holds the token pair issued to an authenticated client.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}
