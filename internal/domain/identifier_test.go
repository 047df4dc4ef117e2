package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIdentifier_PhoneVariants(t *testing.T) {
	// Every local form of the same subscriber must converge on one key.
	variants := []string{
		"0911223344",
		"911223344",
		"2510911223344",
		"251911223344",
		"+251911223344",
		"0911 22 33 44",
		"+251-911-223-344",
	}

	for _, raw := range variants {
		id, err := NormalizeIdentifier(raw)
		require.NoError(t, err, "input %q", raw)
		assert.Equal(t, IdentifierPhone, id.Kind)
		assert.Equal(t, "+251911223344", id.Value, "input %q", raw)
	}
}

func TestNormalizeIdentifier_SevenPrefixPhone(t *testing.T) {
	id, err := NormalizeIdentifier("711223344")
	require.NoError(t, err)
	assert.Equal(t, "+251711223344", id.Value)

	id, err = NormalizeIdentifier("0711223344")
	require.NoError(t, err)
	assert.Equal(t, "+251711223344", id.Value)
}

func TestNormalizeIdentifier_Email(t *testing.T) {
	id, err := NormalizeIdentifier("  Admin@AddisBazaar.Com ")
	require.NoError(t, err)
	assert.Equal(t, IdentifierEmail, id.Kind)
	assert.Equal(t, "admin@addisbazaar.com", id.Value)
}

func TestNormalizeIdentifier_Idempotent(t *testing.T) {
	inputs := []string{"0911223344", "user@example.com", "+251711223344"}
	for _, raw := range inputs {
		first, err := NormalizeIdentifier(raw)
		require.NoError(t, err)
		second, err := NormalizeIdentifier(first.Value)
		require.NoError(t, err)
		assert.Equal(t, first, second, "input %q", raw)
	}
}

func TestNormalizeIdentifier_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"   ",
		"12345",
		"812345678",      // 9 digits but unknown prefix
		"09112233445",    // 11 digits, too long for local form
		"not-an-email@",  // malformed email
		"@missing.local", // malformed email
		"+14155552671",   // non-Ethiopian number
	}

	for _, raw := range invalid {
		_, err := NormalizeIdentifier(raw)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, "input %q", raw)
	}
}
