package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/addisbazaar/platform/internal/auth"
	"github.com/addisbazaar/platform/internal/domain"
	"github.com/addisbazaar/platform/internal/service"
	"github.com/addisbazaar/platform/pkg/health"
	"github.com/addisbazaar/platform/pkg/middleware"
)

// NewRouter creates a chi router with all platform routes registered.
func NewRouter(
	authService *service.AuthService,
	subscriptionService *service.SubscriptionService,
	jwtManager *auth.JWTManager,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig middleware.CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("platform"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Token validator that bridges to our internal JWTManager.
	tokenValidator := func(token string) (*middleware.Claims, error) {
		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			return nil, err
		}
		return &middleware.Claims{
			UserID: claims.UserID,
			Role:   claims.Role,
		}, nil
	}

	authHandler := NewAuthHandler(authService, logger)
	subscriptionHandler := NewSubscriptionHandler(subscriptionService, logger)
	planHandler := NewPlanHandler(subscriptionService, logger)

	// Identity endpoints (public)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/register", authHandler.Register)
		r.Post("/verify", authHandler.Verify)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/reset-password", authHandler.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tokenValidator))
			r.Post("/logout", authHandler.Logout)
		})
	})

	// Plan reference data (reads public, writes admin only)
	r.Route("/api/v1/plans", func(r chi.Router) {
		r.Get("/", planHandler.List)
		r.Get("/{id}", planHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(middleware.Auth(tokenValidator))
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Post("/", planHandler.Create)
		})
	})

	// Membership endpoints (auth required)
	r.Route("/api/v1/subscriptions", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(tokenValidator))

		r.Post("/", subscriptionHandler.Subscribe)
		r.Post("/{id}/cancel", subscriptionHandler.Cancel)
		r.Post("/{id}/renew", subscriptionHandler.Renew)
		r.Get("/me", subscriptionHandler.Current)
		r.Get("/me/quota", subscriptionHandler.Quota)
	})

	// Reporting endpoints (admin only)
	r.Route("/api/v1/reports", func(r chi.Router) {
		r.Use(middleware.Auth(tokenValidator))
		r.Use(middleware.RequireRole(domain.RoleAdmin))

		r.Get("/subscriptions", subscriptionHandler.ListAll)
		r.Get("/subscriptions/active-by-plan", subscriptionHandler.ActiveByPlan)
		r.Get("/revenue", subscriptionHandler.Revenue)
	})

	return r
}
