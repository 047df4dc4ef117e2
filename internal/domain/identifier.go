package domain

import (
	"regexp"
	"strings"
)

// IdentifierKind discriminates what a canonical identifier represents.
type IdentifierKind string

const (
	IdentifierEmail IdentifierKind = "email"
	IdentifierPhone IdentifierKind = "phone"
)

// Identifier is a canonical identity key: a lower-cased email or an
// E.164 Ethiopian phone number of the form +251XXXXXXXXX.
type Identifier struct {
	Kind  IdentifierKind `json:"kind"`
	Value string         `json:"value"`
}

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nonPhonePattern = regexp.MustCompile(`[^0-9]`)
)

// NormalizeIdentifier canonicalizes a raw phone or email into a single
// deterministic identity key. It is pure and idempotent: normalizing an
// already-canonical value returns it unchanged.
//
// Emails are trimmed and lower-cased. Phone numbers are reduced to digits
// and rewritten into +251XXXXXXXXX form using the local dialing conventions:
//
//	2510XXXXXXXXX -> 251XXXXXXXXX (double country prefix collapsed)
//	251XXXXXXXXX  -> unchanged when 12 digits
//	0XXXXXXXXX    -> 251XXXXXXXXX when 10 digits
//	9XXXXXXXX     -> 2519XXXXXXXX when 9 digits
//	7XXXXXXXX     -> 2517XXXXXXXX when 9 digits
//
// Input matching neither an email nor any phone rule fails with
// ErrInvalidIdentifier.
func NormalizeIdentifier(raw string) (Identifier, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Identifier{}, ErrInvalidIdentifier
	}

	if emailPattern.MatchString(trimmed) {
		return Identifier{Kind: IdentifierEmail, Value: strings.ToLower(trimmed)}, nil
	}

	digits := nonPhonePattern.ReplaceAllString(trimmed, "")
	switch {
	case strings.HasPrefix(digits, "2510"):
		digits = "251" + digits[4:]
	case strings.HasPrefix(digits, "251") && len(digits) == 12:
		// already canonical
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		digits = "251" + digits[1:]
	case strings.HasPrefix(digits, "9") && len(digits) == 9:
		digits = "251" + digits
	case strings.HasPrefix(digits, "7") && len(digits) == 9:
		digits = "251" + digits
	default:
		return Identifier{}, ErrInvalidIdentifier
	}

	if len(digits) != 12 {
		return Identifier{}, ErrInvalidIdentifier
	}

	return Identifier{Kind: IdentifierPhone, Value: "+" + digits}, nil
}
