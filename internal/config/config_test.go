package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setEnvs is a helper that sets multiple env vars via t.Setenv.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Development_AcceptsDefaultSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "development",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Production_RejectsDefaultSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  "change-this-to-a-secure-secret",
	})

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET must be explicitly set")
}

func TestLoad_Production_RejectsShortSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  "short-but-not-default-secret",
	})

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET must be at least 32 characters")
}

func TestLoad_Production_AcceptsStrongSecret(t *testing.T) {
	strongSecret := "this-is-a-very-secure-secret-key-for-production-use-1234"
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "production",
		"JWT_SECRET":  strongSecret,
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, strongSecret, cfg.JWTSecret)
}

func TestLoad_Defaults(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT": "development",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 10*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 10*time.Second, cfg.LoginVerifyTimeout)
	assert.Equal(t, "proceed", cfg.LoginVerifyPolicy)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestLoad_RejectsUnknownVerifyPolicy(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":         "development",
		"LOGIN_VERIFY_POLICY": "retry",
	})

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "LOGIN_VERIFY_POLICY")
}

func TestPostgresDSN(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":       "development",
		"POSTGRES_HOST":     "db.internal",
		"POSTGRES_PORT":     "5433",
		"POSTGRES_USER":     "svc",
		"POSTGRES_PASSWORD": "pw",
		"POSTGRES_DB_NAME":  "platform",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "postgres://svc:pw@db.internal:5433/platform?sslmode=disable", cfg.PostgresDSN())
}
