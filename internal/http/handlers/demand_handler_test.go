package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/tbourn/go-match-backend/internal/domain"
	"github.com/tbourn/go-match-backend/internal/services"
)

func TestCreateDemand(t *testing.T) {
	var got services.CreateDemandInput
	demands := &fakeDemands{
		create: func(_ context.Context, in services.CreateDemandInput) (*domain.Demand, error) {
			got = in
			if in.Days > 180 {
				return nil, &services.ValidationError{Field: "days", Reason: "must be between 1 and 180"}
			}
			return &domain.Demand{ID: "d1", UserID: in.UserID, Content: in.Content}, nil
		},
	}
	r := newTestRouter(New(demands, nil, nil, nil))

	body := CreateDemandRequest{Content: "need a plumber", Days: 7, Email: "a@b.io"}
	w := do(t, r, http.MethodPost, "/demands", body, asUser("u1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", w.Code, w.Body.String())
	}
	if got.UserID != "u1" || got.Days != 7 || got.Email != "a@b.io" {
		t.Fatalf("input not forwarded: %+v", got)
	}
	var created CreateDemandResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil || created.Demand.ID != "d1" || created.Demand.UserID != "u1" {
		t.Fatalf("body = %s (%v)", w.Body.String(), err)
	}
	if loc := w.Header().Get("Location"); loc != "/demands/d1" {
		t.Fatalf("Location = %q", loc)
	}

	body.Days = 365
	w = do(t, r, http.MethodPost, "/demands", body, asUser("u1"))
	if w.Code != http.StatusBadRequest || decodeErr(t, w).Code != ErrCodeValidation {
		t.Fatalf("want 400 validation_error, got %d %s", w.Code, w.Body.String())
	}

	if w := do(t, r, http.MethodPost, "/demands", body); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: want 401, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/demands", "{", asUser("u1")); w.Code != http.StatusBadRequest || decodeErr(t, w).Code != ErrCodeBadRequest {
		t.Fatalf("bad json: got %d", w.Code)
	}
}

func TestGetDemand_AnonymousAndNotFound(t *testing.T) {
	var requester string
	demands := &fakeDemands{
		get: func(_ context.Context, requesterID, id string) (*services.DemandView, error) {
			requester = requesterID
			if id != "d1" {
				return nil, services.ErrNotFound
			}
			return &services.DemandView{Demand: domain.Demand{ID: "d1"}, IsExpired: true}, nil
		},
	}
	r := newTestRouter(New(demands, nil, nil, nil))

	w := do(t, r, http.MethodGet, "/demands/d1", nil)
	if w.Code != http.StatusOK || requester != "" {
		t.Fatalf("anonymous read: code=%d requester=%q", w.Code, requester)
	}
	var view services.DemandView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil || !view.IsExpired || view.Demand.ID != "d1" {
		t.Fatalf("body = %s (%v)", w.Body.String(), err)
	}

	if w := do(t, r, http.MethodGet, "/demands/d2", nil, asUser("u1")); w.Code != http.StatusNotFound || requester != "u1" {
		t.Fatalf("missing: code=%d requester=%q", w.Code, requester)
	}
}

func TestListUserDemands_ETagAndOwnership(t *testing.T) {
	newest := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	listed := 0
	demands := &fakeDemands{
		stats: func(_ context.Context, userID string) (int64, *time.Time, error) {
			return 3, &newest, nil
		},
		list: func(_ context.Context, requesterID, userID string) ([]domain.Demand, error) {
			listed++
			if requesterID != userID {
				return nil, services.ErrForbidden
			}
			return []domain.Demand{{ID: "a"}, {ID: "b"}, {ID: "c"}}, nil
		},
	}
	r := newTestRouter(New(demands, nil, nil, nil))

	w := do(t, r, http.MethodGet, "/demands/user/u1?page=2&page_size=2", nil, asUser("u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	var resp ListDemandsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Demands) != 1 || resp.Demands[0].ID != "c" || resp.Pagination.Total != 3 || resp.Pagination.HasNext {
		t.Fatalf("unexpected page: %+v", resp)
	}

	w = do(t, r, http.MethodGet, "/demands/user/u1", nil, asUser("u1"), withHeader("If-None-Match", etag))
	if w.Code != http.StatusNotModified || listed != 1 {
		t.Fatalf("conditional GET: code=%d listed=%d", w.Code, listed)
	}

	w = do(t, r, http.MethodGet, "/demands/user/u1", nil, asUser("u2"), withHeader("If-None-Match", etag))
	if w.Code != http.StatusForbidden || w.Header().Get("ETag") != "" {
		t.Fatalf("stranger: code=%d etag=%q", w.Code, w.Header().Get("ETag"))
	}
}
