package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/addisbazaar/platform/pkg/config"
)

// Config holds all configuration for the platform server.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"addisbazaar"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"addisbazaar_secret"`
	PostgresDB   string `env:"POSTGRES_DB_NAME" envDefault:"platform_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Redis
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`

	// OTP
	OTPTTL            time.Duration `env:"OTP_TTL" envDefault:"10m"`
	OTPResendCooldown time.Duration `env:"OTP_RESEND_COOLDOWN" envDefault:"60s"`

	// Login verification lookup. When the verification-status lookup exceeds
	// the timeout, "proceed" lets the login continue and "fail" rejects it.
	LoginVerifyTimeout time.Duration `env:"LOGIN_VERIFY_TIMEOUT" envDefault:"10s"`
	LoginVerifyPolicy  string        `env:"LOGIN_VERIFY_POLICY" envDefault:"proceed"`

	// SMS gateway
	SMSGatewayURL   string        `env:"SMS_GATEWAY_URL" envDefault:"http://localhost:9010/send"`
	SMSGatewayToken string        `env:"SMS_GATEWAY_TOKEN" envDefault:""`
	SMSSenderID     string        `env:"SMS_SENDER_ID" envDefault:"AddisBazaar"`
	SMSTimeout      time.Duration `env:"SMS_TIMEOUT" envDefault:"10s"`

	// SendGrid
	SendGridAPIKey    string `env:"SENDGRID_API_KEY" envDefault:""`
	SendGridFromEmail string `env:"SENDGRID_FROM_EMAIL" envDefault:"no-reply@addisbazaar.com"`
	SendGridFromName  string `env:"SENDGRID_FROM_NAME" envDefault:"AddisBazaar"`

	// Tracing
	OTLPEndpoint      string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingEnabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	TracingSampleRate float64 `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load platform config: %w", err)
	}
	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}
	if cfg.LoginVerifyPolicy != "proceed" && cfg.LoginVerifyPolicy != "fail" {
		return nil, fmt.Errorf("invalid LOGIN_VERIFY_POLICY %q: must be proceed or fail", cfg.LoginVerifyPolicy)
	}

	// In non-development environments, require an explicitly set, strong JWT secret.
	if cfg.Environment != "development" {
		if cfg.JWTSecret == "change-this-to-a-secure-secret" {
			return nil, fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", cfg.Environment)
		}
		if len(cfg.JWTSecret) < 32 {
			return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters long, got %d", len(cfg.JWTSecret))
		}
	}

	return cfg, nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}

// RedisAddr returns the Redis host:port address.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
