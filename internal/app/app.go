package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/addisbazaar/platform/internal/auth"
	"github.com/addisbazaar/platform/internal/cache"
	"github.com/addisbazaar/platform/internal/config"
	"github.com/addisbazaar/platform/internal/event"
	handler "github.com/addisbazaar/platform/internal/handler/http"
	"github.com/addisbazaar/platform/internal/repository/postgres"
	"github.com/addisbazaar/platform/internal/sender"
	sendermock "github.com/addisbazaar/platform/internal/sender/mock"
	"github.com/addisbazaar/platform/internal/service"
	"github.com/addisbazaar/platform/migrations"
	"github.com/addisbazaar/platform/pkg/database"
	"github.com/addisbazaar/platform/pkg/health"
	"github.com/addisbazaar/platform/pkg/httpclient"
	pkgkafka "github.com/addisbazaar/platform/pkg/kafka"
	"github.com/addisbazaar/platform/pkg/middleware"
	"github.com/addisbazaar/platform/pkg/tracing"
)

// sweepInterval is how often expired OTP challenges and lapsed subscriptions
// are swept.
const sweepInterval = time.Minute

// App wires together all dependencies and runs the platform server.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redisClient    *goredis.Client
	producer       *pkgkafka.Producer
	consumers      []*pkgkafka.Consumer
	otpService     *service.OtpService
	subService     *service.SubscriptionService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "platform",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TracingSampleRate,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.PostgresHost
	pgCfg.Port = cfg.PostgresPort
	pgCfg.User = cfg.PostgresUser
	pgCfg.Password = cfg.PostgresPass
	pgCfg.DBName = cfg.PostgresDB
	pgCfg.SSLMode = cfg.PostgresSSL

	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "platform")

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Initialize Redis for the session cache.
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr()))

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessExpiry, cfg.JWTRefreshExpiry)
	profileRepo := postgres.NewProfileRepository(pool)
	tokenRepo := postgres.NewRefreshTokenRepository(pool)
	otpRepo := postgres.NewOtpRepository(pool)
	planRepo := postgres.NewPlanRepository(pool)
	subRepo := postgres.NewSubscriptionRepository(pool)
	paymentRepo := postgres.NewPaymentRepository(pool)

	eventProducer := event.NewProducer(producer, logger)
	sessions := cache.NewSessionCache(redisClient, cfg.JWTAccessExpiry)

	otpService := service.NewOtpService(otpRepo, newOtpDispatcher(cfg, logger), cfg.OTPTTL, cfg.OTPResendCooldown, cfg.IsDevelopment(), logger)
	subService := service.NewSubscriptionService(subRepo, planRepo, paymentRepo, eventProducer, logger)
	authService := service.NewAuthService(
		profileRepo, tokenRepo, otpService, subService, jwtManager, sessions, eventProducer,
		cfg.LoginVerifyTimeout, service.VerifyPolicy(cfg.LoginVerifyPolicy), logger,
	)

	// Payment event consumers, one per topic.
	consumerHandler := event.NewConsumerHandler(subService, logger)
	var consumers []*pkgkafka.Consumer
	for _, topic := range []string{event.TopicPaymentSucceeded, event.TopicPaymentFailed} {
		consumers = append(consumers, pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: event.ConsumerGroupID,
			Topic:   topic,
		}, consumerHandler.Handle, logger))
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(authService, subService, jwtManager, healthHandler, logger, middleware.CORSConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redisClient:    redisClient,
		producer:       producer,
		consumers:      consumers,
		otpService:     otpService,
		subService:     subService,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// newOtpDispatcher builds the code delivery path. Development mode logs codes
// instead of delivering them, so the flow can be exercised without an SMS
// gateway or SendGrid account.
func newOtpDispatcher(cfg *config.Config, logger *slog.Logger) sender.Sender {
	if cfg.IsDevelopment() {
		return sendermock.New(logger)
	}

	smsClient := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.Config{Timeout: cfg.SMSTimeout, MaxConnsPerHost: 10}),
		httpclient.DefaultCircuitBreakerConfig("sms-gateway"),
		logger,
	)
	sms := sender.NewSMSSender(smsClient, sender.SMSConfig{
		GatewayURL: cfg.SMSGatewayURL,
		Token:      cfg.SMSGatewayToken,
		SenderID:   cfg.SMSSenderID,
	}, logger)

	email := sender.NewEmailSender(sender.EmailConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)

	return sender.NewDispatcher(sms, email)
}

// Run starts the HTTP server, event consumers, and background sweeps, and
// blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	for _, c := range a.consumers {
		go func(c *pkgkafka.Consumer) {
			if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("kafka consumer stopped", slog.String("error", err.Error()))
			}
		}(c)
	}

	go a.runSweeps(ctx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// runSweeps periodically expires stale OTP challenges and lapsed
// subscriptions.
func (a *App) runSweeps(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

			if n, err := a.otpService.ExpireStale(sweepCtx); err != nil {
				a.logger.Error("otp expiry sweep failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.Info("expired stale otp challenges", slog.Int64("count", n))
			}

			if n, err := a.subService.ExpireLapsed(sweepCtx); err != nil {
				a.logger.Error("subscription expiry sweep failed", slog.String("error", err.Error()))
			} else if n > 0 {
				a.logger.Info("expired lapsed subscriptions", slog.Int64("count", n))
			}

			cancel()
		}
	}
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka consumers and producer
// 4. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka consumers and producer.
	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close Redis and PostgreSQL.
	if err := a.redisClient.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
