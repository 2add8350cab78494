package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-match-backend/internal/domain"
	"github.com/tbourn/go-match-backend/internal/http/middleware"
	"github.com/tbourn/go-match-backend/internal/quota"
	"github.com/tbourn/go-match-backend/internal/services"
)

// ---------- func-field fakes ----------

type fakeDemands struct {
	create func(ctx context.Context, in services.CreateDemandInput) (*domain.Demand, error)
	get    func(ctx context.Context, requesterID, id string) (*services.DemandView, error)
	list   func(ctx context.Context, requesterID, userID string) ([]domain.Demand, error)
	stats  func(ctx context.Context, userID string) (int64, *time.Time, error)
}

func (f *fakeDemands) Create(ctx context.Context, in services.CreateDemandInput) (*domain.Demand, error) {
	return f.create(ctx, in)
}
func (f *fakeDemands) Get(ctx context.Context, requesterID, id string) (*services.DemandView, error) {
	return f.get(ctx, requesterID, id)
}
func (f *fakeDemands) ListByUser(ctx context.Context, requesterID, userID string) ([]domain.Demand, error) {
	return f.list(ctx, requesterID, userID)
}
func (f *fakeDemands) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return f.stats(ctx, userID)
}

type fakeMatcher struct {
	search func(ctx context.Context, userID, q string) (*services.SearchResult, error)
	quota  func(ctx context.Context, userID string) (quota.Decision, error)
}

func (f *fakeMatcher) Search(ctx context.Context, userID, q string) (*services.SearchResult, error) {
	return f.search(ctx, userID, q)
}
func (f *fakeMatcher) Quota(ctx context.Context, userID string) (quota.Decision, error) {
	return f.quota(ctx, userID)
}

type fakeApps struct {
	create       func(ctx context.Context, in services.CreateApplicationInput) (*domain.Supply, error)
	get          func(ctx context.Context, requesterID, id string) (*domain.Supply, error)
	listByDemand func(ctx context.Context, requesterID, demandID string) ([]domain.Supply, error)
	listByUser   func(ctx context.Context, requesterID, userID string) ([]domain.Supply, error)
	del          func(ctx context.Context, requesterID, id string) error
}

func (f *fakeApps) CreateApplication(ctx context.Context, in services.CreateApplicationInput) (*domain.Supply, error) {
	return f.create(ctx, in)
}
func (f *fakeApps) Get(ctx context.Context, requesterID, id string) (*domain.Supply, error) {
	return f.get(ctx, requesterID, id)
}
func (f *fakeApps) ListByDemand(ctx context.Context, requesterID, demandID string) ([]domain.Supply, error) {
	return f.listByDemand(ctx, requesterID, demandID)
}
func (f *fakeApps) ListByUser(ctx context.Context, requesterID, userID string) ([]domain.Supply, error) {
	return f.listByUser(ctx, requesterID, userID)
}
func (f *fakeApps) Delete(ctx context.Context, requesterID, id string) error {
	return f.del(ctx, requesterID, id)
}

type fakePayments struct {
	create func(ctx context.Context, userID, demandID string) (*services.IntentResult, error)
	verify func(ctx context.Context, userID, paymentID string) (*services.VerifyResult, error)
}

func (f *fakePayments) CreateIntent(ctx context.Context, userID, demandID string) (*services.IntentResult, error) {
	return f.create(ctx, userID, demandID)
}
func (f *fakePayments) Verify(ctx context.Context, userID, paymentID string) (*services.VerifyResult, error) {
	return f.verify(ctx, userID, paymentID)
}

// memIdem is an in-memory IdempotencyStore.
type memIdem struct {
	recs map[string]domain.Idempotency
	puts int
}

func newMemIdem() *memIdem { return &memIdem{recs: map[string]domain.Idempotency{}} }

func (m *memIdem) Get(_ context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	rec, found := m.recs[userID+"|"+scope+"|"+key]
	if !found || !rec.ExpiresAt.After(now) {
		return nil, nil
	}
	return &rec, nil
}

func (m *memIdem) Put(_ context.Context, userID, scope, key, resourceID string, status int, now time.Time, ttl time.Duration) error {
	m.puts++
	m.recs[userID+"|"+scope+"|"+key] = domain.Idempotency{
		UserID: userID, Scope: scope, Key: key, ResourceID: resourceID,
		Status: status, CreatedAt: now, ExpiresAt: now.Add(ttl),
	}
	return nil
}

// ---------- router + request helpers ----------

// newTestRouter mounts h's routes behind the header-based identity middleware.
func newTestRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header("X-Request-ID", "rid-test"); c.Next() })
	r.Use(middleware.Auth(middleware.AuthOptions{}))

	r.POST("/demands", h.CreateDemand)
	r.GET("/demands/:id", h.GetDemand)
	r.GET("/demands/user/:userId", h.ListUserDemands)
	r.GET("/search", h.Search)
	r.GET("/search/quota", h.SearchQuota)
	r.POST("/applications",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{Scope: ScopeApplications}, nil),
		h.CreateApplication)
	r.GET("/supplies/:id", h.GetSupply)
	r.DELETE("/supplies/:id", h.DeleteSupply)
	r.GET("/supplies/demand/:demandId", h.ListDemandSupplies)
	r.GET("/supplies/user/:userId", h.ListUserSupplies)
	r.POST("/payment-intents", h.CreatePaymentIntent)
	r.POST("/payment-intents/verify", h.VerifyPaymentIntent)
	return r
}

type reqOpt func(*http.Request)

func asUser(uid string) reqOpt {
	return func(r *http.Request) { r.Header.Set(middleware.HeaderUserID, uid) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func do(t *testing.T, r http.Handler, method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, isString := body.(string); isString {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return er
}
