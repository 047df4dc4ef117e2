package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/addisbazaar/platform/internal/service"
	"github.com/addisbazaar/platform/pkg/httputil"
	"github.com/addisbazaar/platform/pkg/middleware"
	"github.com/addisbazaar/platform/pkg/pagination"
)

// SubscriptionHandler handles HTTP requests for membership endpoints.
type SubscriptionHandler struct {
	service *service.SubscriptionService
	logger  *slog.Logger
}

// NewSubscriptionHandler creates a new subscription HTTP handler.
func NewSubscriptionHandler(svc *service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: svc, logger: logger}
}

// SubscribeRequest is the JSON request body for subscribing to a plan.
type SubscribeRequest struct {
	PlanID string `json:"plan_id" validate:"required,uuid4"`
}

// Subscribe handles POST /api/v1/subscriptions
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if !decode(w, r, &req) {
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	sub, err := h.service.Subscribe(r.Context(), userID, req.PlanID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: sub})
}

// Cancel handles POST /api/v1/subscriptions/{id}/cancel
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	sub, err := h.service.Cancel(r.Context(), userID, id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: sub})
}

// Renew handles POST /api/v1/subscriptions/{id}/renew
func (h *SubscriptionHandler) Renew(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	userID := middleware.UserIDFromContext(r.Context())
	sub, err := h.service.Renew(r.Context(), userID, id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: sub})
}

// Current handles GET /api/v1/subscriptions/me
func (h *SubscriptionHandler) Current(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	sub, err := h.service.Current(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: sub})
}

// Quota handles GET /api/v1/subscriptions/me/quota
func (h *SubscriptionHandler) Quota(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	quota, err := h.service.Remaining(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: quota})
}

// ListAll handles GET /api/v1/reports/subscriptions
func (h *SubscriptionHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	page := pagination.FromRequest(r)
	subs, err := h.service.ListSubscriptions(r.Context(), page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"subscriptions": subs,
		"page":          page.Page,
		"per_page":      page.PerPage,
	}})
}

// ActiveByPlan handles GET /api/v1/reports/subscriptions/active-by-plan
func (h *SubscriptionHandler) ActiveByPlan(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.ActiveByPlan(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: counts})
}

// Revenue handles GET /api/v1/reports/revenue
func (h *SubscriptionHandler) Revenue(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Revenue(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: summary})
}
