package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/addisbazaar/platform/internal/domain"
	"github.com/addisbazaar/platform/internal/service"
	"github.com/addisbazaar/platform/pkg/httputil"
)

// PlanHandler serves membership plan reference data.
type PlanHandler struct {
	service *service.SubscriptionService
	logger  *slog.Logger
}

// NewPlanHandler creates a new plan HTTP handler.
func NewPlanHandler(svc *service.SubscriptionService, logger *slog.Logger) *PlanHandler {
	return &PlanHandler{service: svc, logger: logger}
}

// CreatePlanRequest is the JSON request body for creating a membership plan.
type CreatePlanRequest struct {
	Name         string   `json:"name" validate:"required,min=2,max=100"`
	Description  string   `json:"description" validate:"max=500"`
	Price        float64  `json:"price" validate:"gte=0"`
	BillingCycle string   `json:"billing_cycle" validate:"required,oneof=daily weekly monthly yearly lifetime"`
	MaxListings  *int     `json:"max_listings" validate:"omitempty,gt=0"`
	Features     []string `json:"features"`
	DisplayOrder int      `json:"display_order" validate:"gte=0"`
}

// Create handles POST /api/v1/plans (admin only)
func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if !decode(w, r, &req) {
		return
	}

	plan, err := h.service.CreatePlan(r.Context(), &domain.MembershipPlan{
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		BillingCycle: domain.BillingCycle(req.BillingCycle),
		MaxListings:  req.MaxListings,
		Features:     req.Features,
		DisplayOrder: req.DisplayOrder,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: plan})
}

// List handles GET /api/v1/plans
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.ListPlans(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: plans})
}

// Get handles GET /api/v1/plans/{id}. The path segment is either a plan
// UUID or a plan slug such as "gold".
func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "id")

	var (
		plan *domain.MembershipPlan
		err  error
	)
	if id, parseErr := uuid.Parse(key); parseErr == nil {
		plan, err = h.service.GetPlan(r.Context(), id.String())
	} else {
		plan, err = h.service.GetPlanBySlug(r.Context(), key)
	}
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: plan})
}
