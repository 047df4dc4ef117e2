package domain

import (
	"time"
)

// OtpStatus is the lifecycle state of a one-time code challenge.
type OtpStatus string

const (
	OtpPending    OtpStatus = "pending"
	OtpVerified   OtpStatus = "verified"
	OtpExpired    OtpStatus = "expired"
	OtpSuperseded OtpStatus = "superseded"
)

// OtpPurpose scopes a challenge to the flow that issued it.
type OtpPurpose string

const (
	PurposeRegistration  OtpPurpose = "registration"
	PurposePasswordReset OtpPurpose = "password_reset"
)

// IsValidOtpPurpose reports whether p is a recognized challenge purpose.
func IsValidOtpPurpose(p OtpPurpose) bool {
	switch p {
	case PurposeRegistration, PurposePasswordReset:
		return true
	}
	return false
}

// OtpChallenge is a single-use, time-boxed numeric code bound to an
// (identifier, purpose) pair. Only the newest pending challenge for a pair
// is verifiable; issuing a new one supersedes any prior pending challenge.
type OtpChallenge struct {
	ID         string     `json:"id"`
	Identifier string     `json:"identifier"`
	Purpose    OtpPurpose `json:"purpose"`
	Code       string     `json:"-"`
	Status     OtpStatus  `json:"status"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// IsExpired reports whether the challenge is past its expiry at the given time.
func (c *OtpChallenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
