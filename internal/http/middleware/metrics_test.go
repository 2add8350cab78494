package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetrics_CountsRoutesAndErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg, "test")

	r := gin.New()
	r.Use(m.Handler())
	r.GET("/demands/:id", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.GET("/search", func(c *gin.Context) {
		SetErrorCode(c, "quota_exceeded")
		c.Status(http.StatusTooManyRequests)
	})

	for _, p := range []string{"/demands/1", "/demands/2", "/search", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/demands/:id", "200")); got != 2 {
		t.Fatalf("route counter = %v; want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/nope", "404")); got != 1 {
		t.Fatalf("fallback path counter = %v; want 1", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("/search", "quota_exceeded")); got != 1 {
		t.Fatalf("coded error counter = %v; want 1", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("/nope", "404")); got != 1 {
		t.Fatalf("uncoded error counter = %v; want 1", got)
	}
	if got := testutil.ToFloat64(m.inflight); got != 0 {
		t.Fatalf("inflight = %v; want 0", got)
	}
}

func TestNewHTTPMetrics_ReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewHTTPMetrics(reg, "test")
	b := NewHTTPMetrics(reg, "test")
	if a.requests != b.requests || a.errors != b.errors {
		t.Fatalf("second registration should reuse collectors")
	}
}
