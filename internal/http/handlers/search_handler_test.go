package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/tbourn/go-match-backend/internal/domain"
	"github.com/tbourn/go-match-backend/internal/quota"
	"github.com/tbourn/go-match-backend/internal/services"
)

func TestSearch_OKAndQuotaExceeded(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	reset := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	calls := 0
	matcher := &fakeMatcher{
		search: func(_ context.Context, userID, q string) (*services.SearchResult, error) {
			calls++
			if calls > 1 {
				return nil, &services.QuotaExceededError{Decision: quota.Decision{Remaining: 0, Total: 10, ResetAt: reset}}
			}
			return &services.SearchResult{
				Matches: []services.MatchResult{{Demand: domain.Demand{ID: "d1"}, Score: 0.9}},
				Quota:   quota.Decision{Allowed: true, Remaining: 9, Total: 10, ResetAt: reset},
			}, nil
		},
	}
	h := New(nil, matcher, nil, nil).WithClock(func() time.Time { return now })
	r := newTestRouter(h)

	w := do(t, r, http.MethodGet, "/search?q=looking+for+a+go+developer", nil, asUser("u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Count != 1 || resp.RateLimit.Remaining != 9 || resp.RateLimit.Total != 10 {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if w.Header().Get("X-RateLimit-Remaining") != "9" {
		t.Fatalf("missing quota headers: %v", w.Header())
	}

	w = do(t, r, http.MethodGet, "/search?q=looking+for+a+go+developer", nil, asUser("u1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("want 429, got %d", w.Code)
	}
	var qe QuotaErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &qe); err != nil {
		t.Fatalf("json: %v", err)
	}
	if qe.Code != ErrCodeQuotaExceeded || qe.RateLimit.Remaining != 0 || !qe.RateLimit.ResetAt.Equal(reset) {
		t.Fatalf("unexpected 429 body: %+v", qe)
	}
	if got := w.Header().Get("Retry-After"); got != "32400" {
		t.Fatalf("Retry-After = %q; want 32400", got)
	}
}

func TestSearch_RequiresUserAndMapsOutage(t *testing.T) {
	matcher := &fakeMatcher{
		search: func(context.Context, string, string) (*services.SearchResult, error) {
			return nil, services.ErrStoreUnavailable
		},
	}
	r := newTestRouter(New(nil, matcher, nil, nil))

	if w := do(t, r, http.MethodGet, "/search?q=x", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: want 401, got %d", w.Code)
	}
	// ?userId= is accepted as identity when JWT is disabled.
	w := do(t, r, http.MethodGet, "/search?q=x&userId=u1", nil)
	if w.Code != http.StatusServiceUnavailable || decodeErr(t, w).Code != ErrCodeStoreUnavailable {
		t.Fatalf("outage: got %d %s", w.Code, w.Body.String())
	}
}

func TestSearchQuota(t *testing.T) {
	matcher := &fakeMatcher{
		quota: func(_ context.Context, userID string) (quota.Decision, error) {
			return quota.Decision{Remaining: 4, Total: 10}, nil
		},
	}
	r := newTestRouter(New(nil, matcher, nil, nil))
	w := do(t, r, http.MethodGet, "/search/quota", nil, asUser("u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	var d map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("json: %v", err)
	}
	if d["remaining"] != float64(4) || d["total"] != float64(10) {
		t.Fatalf("unexpected body: %v", d)
	}
	if _, leaked := d["Allowed"]; leaked {
		t.Fatalf("allowed must not be serialized")
	}
}
