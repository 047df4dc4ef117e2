package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/addisbazaar/platform/internal/domain"
	"github.com/addisbazaar/platform/internal/service"
	"github.com/addisbazaar/platform/pkg/middleware"
)

// --- Mock repositories ---

type mockSubRepo struct {
	mock.Mock
}

func (m *mockSubRepo) Subscribe(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *mockSubRepo) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *mockSubRepo) GetActiveByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *mockSubRepo) Update(ctx context.Context, sub *domain.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *mockSubRepo) ActivatePending(ctx context.Context, id string, endDate *time.Time) error {
	args := m.Called(ctx, id, endDate)
	return args.Error(0)
}

func (m *mockSubRepo) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockSubRepo) List(ctx context.Context, limit, offset int) ([]domain.Subscription, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Subscription), args.Error(1)
}

func (m *mockSubRepo) CountActiveByPlan(ctx context.Context) ([]domain.PlanSubscriberCount, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.PlanSubscriberCount), args.Error(1)
}

type mockPlanRepo struct {
	mock.Mock
}

func (m *mockPlanRepo) Create(ctx context.Context, plan *domain.MembershipPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *mockPlanRepo) GetByID(ctx context.Context, id string) (*domain.MembershipPlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MembershipPlan), args.Error(1)
}

func (m *mockPlanRepo) GetBySlug(ctx context.Context, slug string) (*domain.MembershipPlan, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MembershipPlan), args.Error(1)
}

func (m *mockPlanRepo) GetFreePlan(ctx context.Context) (*domain.MembershipPlan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MembershipPlan), args.Error(1)
}

func (m *mockPlanRepo) ListActive(ctx context.Context) ([]domain.MembershipPlan, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.MembershipPlan), args.Error(1)
}

type mockPaymentRepo struct {
	mock.Mock
}

func (m *mockPaymentRepo) Create(ctx context.Context, tx *domain.PaymentTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *mockPaymentRepo) AggregateRevenue(ctx context.Context) (*domain.RevenueSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RevenueSummary), args.Error(1)
}

// --- Test Helpers ---

const (
	testUserID = "550e8400-e29b-41d4-a716-446655440001"
	testPlanID = "550e8400-e29b-41d4-a716-446655440002"
	testSubID  = "550e8400-e29b-41d4-a716-446655440003"
)

type subscriptionHandlerFixture struct {
	handler     *SubscriptionHandler
	planHandler *PlanHandler
	subRepo     *mockSubRepo
	planRepo    *mockPlanRepo
	paymentRepo *mockPaymentRepo
}

func newSubscriptionHandlerFixture(t *testing.T) *subscriptionHandlerFixture {
	t.Helper()
	logger := handlerTestLogger()
	subRepo := new(mockSubRepo)
	planRepo := new(mockPlanRepo)
	paymentRepo := new(mockPaymentRepo)

	svc := service.NewSubscriptionService(subRepo, planRepo, paymentRepo, handlerTestEventProducer(), logger)

	return &subscriptionHandlerFixture{
		handler:     NewSubscriptionHandler(svc, logger),
		planHandler: NewPlanHandler(svc, logger),
		subRepo:     subRepo,
		planRepo:    planRepo,
		paymentRepo: paymentRepo,
	}
}

// stubTokenValidator injects fixed claims without real token validation.
func stubTokenValidator(userID, role string) middleware.TokenValidator {
	return func(token string) (*middleware.Claims, error) {
		return &middleware.Claims{UserID: userID, Role: role}, nil
	}
}

func setupSubscriptionRouter(f *subscriptionHandlerFixture, userID, role string) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api/v1/subscriptions", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Auth(stubTokenValidator(userID, role)))
		r.Post("/", f.handler.Subscribe)
		r.Post("/{id}/cancel", f.handler.Cancel)
		r.Post("/{id}/renew", f.handler.Renew)
		r.Get("/me", f.handler.Current)
		r.Get("/me/quota", f.handler.Quota)
	})
	r.Route("/api/v1/plans", func(r chi.Router) {
		r.Get("/", f.planHandler.List)
		r.Get("/{id}", f.planHandler.Get)

		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(middleware.Auth(stubTokenValidator(userID, role)))
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Post("/", f.planHandler.Create)
		})
	})
	r.Route("/api/v1/reports", func(r chi.Router) {
		r.Use(middleware.Auth(stubTokenValidator(userID, role)))
		r.Use(middleware.RequireRole(domain.RoleAdmin))
		r.Get("/subscriptions", f.handler.ListAll)
		r.Get("/subscriptions/active-by-plan", f.handler.ActiveByPlan)
		r.Get("/revenue", f.handler.Revenue)
	})
	return r
}

func postJSONAuth(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func getRequest(router http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func monthlyPlan(price float64) *domain.MembershipPlan {
	max := 10
	return &domain.MembershipPlan{
		ID:           testPlanID,
		Name:         "Starter",
		Slug:         "starter",
		Price:        price,
		BillingCycle: domain.CycleMonthly,
		MaxListings:  &max,
		IsActive:     true,
	}
}

// --- Subscribe Tests ---

func TestSubscribeEndpoint_Created(t *testing.T) {
	f := newSubscriptionHandlerFixture(t)
	router := setupSubscriptionRouter(f, testUserID, domain.RoleUser)

	f.planRepo.On("GetByID", mock.Anything, testPlanID).Return(monthlyPlan(0), nil)
	created := &domain.Subscription{
		ID:     testSubID,
		UserID: testUserID,
		PlanID: testPlanID,
		Status: domain.SubscriptionActive,
	}
	f.subRepo.On("Subscribe", mock.Anything, mock.AnythingOfType("*domain.Subscription")).Return(created, nil)

	rec := postJSONAuth(t, router, "/api/v1/subscriptions", map[string]string{"plan_id": testPlanID})

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data := resp.Data.(map[string]any)
	assert.Equal(t, string(domain.SubscriptionActive), data["status"])
}

func TestSubscribeEndpoint_AlreadyActive(t *testing.T) {
	f := newSubscriptionHandlerFixture(t)
	router := setupSubscriptionRouter(f, testUserID, domain.RoleUser)

	f.planRepo.On("GetByID", mock.Anything, testPlanID).Return(monthlyPlan(999), nil)
	f.subRepo.On("Subscribe", mock.Anything, mock.AnythingOfType("*domain.Subscription")).
		Return(nil, domain.ErrSubscriptionAlreadyActive)

	rec := postJSONAuth(t, router, "/api/v1/subscriptions", map[string]string{"plan_id": testPlanID})

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "SUBSCRIPTION_ALREADY_ACTIVE", resp.Error.Code)
}

func TestSubscribeEndpoint_InvalidPlanID(t *testing.T) {
	f := newSubscriptionHandlerFixture(t)
	router := setupSubscriptionRouter(f, testUserID, domain.RoleUser)

	rec := postJSONAuth(t, router, "/api/v1/subscriptions", map[string]string{"plan_id": "not-a-uuid"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Cancel Tests ---

func TestCancelEndpoint_OtherUsersSubscription(t *testing.T) {
	f := newSubscriptionHandlerFixture(t)
	router := setupSubscriptionRouter(f, testUserID, domain.RoleUser)

	other := &domain.Subscription{
		ID:     testSubID,
		UserID: "someone-else",
		PlanID: testPlanID,
		Status: domain.SubscriptionActive,
	}
	f.subRepo.On("GetByID", mock.Anything, testSubID).Return(other, nil)

	rec := postJSONAuth(t, router, "/api/v1/subscriptions/"+testSubID+"/cancel", map[string]string{})

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// --- Quota Tests ---

func TestQuotaEndpoint_NoSubscription(t *testing.T) {
	f := newSubscriptionHandlerFixture(t)
	router := setupSubscriptionRouter(f, testUserID, domain.RoleUser)

	f.subRepo.On("GetActiveByUserID", mock.Anything, testUserID).Return(nil, domain.ErrSubscriptionNotFound)

	rec := getRequest(router, "/api/v1/subscriptions/me/quota", "token")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(0), data["remaining"])
	assert.Equal(t, false, data["unlimited"])
}

// --- Plan Tests ---

func TestPlansEndpoint_ListIsPublic(t *testing.T) {
	f := newSubscriptionHandlerFixture(t)
	router := setupSubscriptionRouter(f, testUserID, domain.RoleUser)

	f.planRepo.On("ListActive", mock.Anything).Return([]domain.MembershipPlan{*monthlyPlan(0)}, nil)

	rec := getRequest(router, "/api/v1/plans", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPlansEndpoint_GetBySlug(t *testing.T) {
	f := newSubscriptionHandlerFixture(t)
	router := setupSubscriptionRouter(f, testUserID, domain.RoleUser)

	f.planRepo.On("GetBySlug", mock.Anything, "gold").Return(monthlyPlan(1499), nil)

	rec := getRequest(router, "/api/v1/plans/gold", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1499), data["price"])
}

func TestPlansEndpoint_CreateForAdmin(t *testing.T) {
	f := newSubscriptionHandlerFixture(t)
	router := setupSubscriptionRouter(f, testUserID, domain.RoleAdmin)

	f.planRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.MembershipPlan")).Return(nil)

	rec := postJSONAuth(t, router, "/api/v1/plans", map[string]any{
		"name":          "Silver Plus",
		"price":         799,
		"billing_cycle": "monthly",
		"max_listings":  20,
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "silver-plus", data["slug"])
	assert.NotEmpty(t, data["id"])
}

func TestPlansEndpoint_CreateRequiresAdminRole(t *testing.T) {
	f := newSubscriptionHandlerFixture(t)
	router := setupSubscriptionRouter(f, testUserID, domain.RoleUser)

	rec := postJSONAuth(t, router, "/api/v1/plans", map[string]any{
		"name":          "Silver Plus",
		"price":         799,
		"billing_cycle": "monthly",
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	f.planRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// --- Reporting Tests ---

func TestReportsEndpoint_RequiresAdminRole(t *testing.T) {
	f := newSubscriptionHandlerFixture(t)
	router := setupSubscriptionRouter(f, testUserID, domain.RoleUser)

	rec := getRequest(router, "/api/v1/reports/revenue", "token")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReportsEndpoint_RevenueForAdmin(t *testing.T) {
	f := newSubscriptionHandlerFixture(t)
	router := setupSubscriptionRouter(f, testUserID, domain.RoleAdmin)

	f.paymentRepo.On("AggregateRevenue", mock.Anything).
		Return(&domain.RevenueSummary{TotalRevenue: 2998, TransactionCount: 2}, nil)

	rec := getRequest(router, "/api/v1/reports/revenue", "token")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(2998), data["total_revenue"])
}

func TestReportsEndpoint_ListSubscriptionsPaginated(t *testing.T) {
	f := newSubscriptionHandlerFixture(t)
	router := setupSubscriptionRouter(f, testUserID, domain.RoleAdmin)

	subs := []domain.Subscription{{ID: testSubID, UserID: testUserID, PlanID: testPlanID, Status: domain.SubscriptionActive}}
	f.subRepo.On("List", mock.Anything, 10, 10).Return(subs, nil)

	rec := getRequest(router, "/api/v1/reports/subscriptions?page=2&per_page=10", "token")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(2), data["page"])
	assert.Len(t, data["subscriptions"], 1)
	f.subRepo.AssertExpectations(t)
}

func TestReportsEndpoint_ActiveByPlanForAdmin(t *testing.T) {
	f := newSubscriptionHandlerFixture(t)
	router := setupSubscriptionRouter(f, testUserID, domain.RoleAdmin)

	counts := []domain.PlanSubscriberCount{{PlanID: testPlanID, PlanName: "Starter", Subscribers: 12}}
	f.subRepo.On("CountActiveByPlan", mock.Anything).Return(counts, nil)

	rec := getRequest(router, "/api/v1/reports/subscriptions/active-by-plan", "token")

	assert.Equal(t, http.StatusOK, rec.Code)
}
