package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestIdempotencyHelpers_Defaults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("expected no key")
	}
	if IsReplay(c) || IsRateBypass(c) || IdempotencyScope(c) != "" {
		t.Fatalf("expected zero state")
	}
	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("non-string key must be ignored")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("non-bool replay must be false")
	}
}

func newIdemRouter(t *testing.T, user string, opts IdempotencyOptions, lookup IdempotencyLookup, h gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if user != "" {
		r.Use(func(c *gin.Context) { c.Set(UserIDKey, user); c.Next() })
	}
	r.POST("/applications", IdempotencyValidator(opts, lookup), h)
	return r
}

func postWithKey(r http.Handler, key string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/applications", nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyValidator_NoHeader(t *testing.T) {
	called := false
	lookup := func(context.Context, string, string, string, time.Time) (bool, error) {
		called = true
		return true, nil
	}
	r := newIdemRouter(t, "u1", IdempotencyOptions{Scope: "applications"}, lookup, func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			t.Fatalf("key should be absent")
		}
		c.Status(http.StatusCreated)
	})
	if w := postWithKey(r, ""); w.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d", w.Code)
	}
	if called {
		t.Fatalf("lookup must not run without a key")
	}
}

func TestIdempotencyValidator_RejectsBadKeys(t *testing.T) {
	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"too long", IdempotencyOptions{MaxLen: 5}, "abcdef"},
		{"custom pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc123"},
		{"default pattern", IdempotencyOptions{}, "has space"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newIdemRouter(t, "u1", tc.opts, nil, func(c *gin.Context) {
				t.Fatalf("handler must not run")
			})
			w := postWithKey(r, tc.key)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("want 400, got %d", w.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("json: %v", err)
			}
			if body["code"] != "bad_idempotency_key" {
				t.Fatalf("unexpected body: %v", body)
			}
		})
	}
}

func TestIdempotencyValidator_LookupMissAndHit(t *testing.T) {
	fixed := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	stored := map[string]bool{"u1|applications|k-hit": true}
	lookup := func(_ context.Context, userID, scope, key string, now time.Time) (bool, error) {
		if !now.Equal(fixed) {
			t.Fatalf("unexpected now %v", now)
		}
		return stored[userID+"|"+scope+"|"+key], nil
	}
	opts := IdempotencyOptions{Scope: "applications", Now: func() time.Time { return fixed }}

	var replay, bypass bool
	var scope string
	r := newIdemRouter(t, "u1", opts, lookup, func(c *gin.Context) {
		replay, bypass, scope = IsReplay(c), IsRateBypass(c), IdempotencyScope(c)
		c.Status(http.StatusOK)
	})

	postWithKey(r, "k-miss")
	if replay || bypass || scope != "applications" {
		t.Fatalf("miss: replay=%v bypass=%v scope=%q", replay, bypass, scope)
	}
	postWithKey(r, "k-hit")
	if !replay || !bypass {
		t.Fatalf("hit: replay=%v bypass=%v", replay, bypass)
	}
}

func TestIdempotencyValidator_AnonymousAndLookupError(t *testing.T) {
	calls := 0
	lookup := func(context.Context, string, string, string, time.Time) (bool, error) {
		calls++
		return false, errors.New("db down")
	}
	r := newIdemRouter(t, "", IdempotencyOptions{}, lookup, func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); !ok {
			t.Fatalf("key should still be stashed")
		}
		c.Status(http.StatusOK)
	})
	if w := postWithKey(r, "k1"); w.Code != http.StatusOK || calls != 0 {
		t.Fatalf("anonymous: code=%d calls=%d", w.Code, calls)
	}

	r = newIdemRouter(t, "u1", IdempotencyOptions{}, lookup, func(c *gin.Context) {
		if IsReplay(c) {
			t.Fatalf("lookup error must not mark replay")
		}
		c.Status(http.StatusOK)
	})
	if w := postWithKey(r, "k1"); w.Code != http.StatusOK || calls != 1 {
		t.Fatalf("error path: code=%d calls=%d", w.Code, calls)
	}
}
