package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedactor_Patterns(t *testing.T) {
	r := NewRedactor("session")
	cases := map[string]string{
		"email=a.b+tag@example.com":                   "email=[REDACTED]",
		"client_secret=pi_123_secret_abc&x=1":         "client_secret=[REDACTED]&x=1",
		"contact me at bob@example.org":               "contact me at [REDACTED:email]",
		"call +1 212-555-1212 now":                    "call [REDACTED:phone] now",
		"intent pi_3Nabc123 pending":                  "intent [REDACTED:payment] pending",
		"id 123e4567-e89b-12d3-a456-426614174000":     "id [REDACTED:id]",
		"session=abc&page=2":                          "session=[REDACTED]&page=2",
		"nothing sensitive":                           "nothing sensitive",
	}
	for in, want := range cases {
		if got := r.Redact(in); got != want {
			t.Fatalf("Redact(%q) = %q; want %q", in, got, want)
		}
	}
	var zero *Redactor
	if got := zero.Redact("x@y.io"); got != "[REDACTED:email]" {
		t.Fatalf("nil redactor should still apply patterns: %q", got)
	}
}

func TestRedactingLogger_LevelsAndScrubbing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogs(t)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Header(requestIDHeader, "rid-resp")
		c.Set(UserIDKey, "u1")
		c.Next()
	})
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/ok/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/err", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	req := httptest.NewRequest(http.MethodGet, "/ok/7?payment_intent_id=pi_abc&q=hello", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-Api-Key", "shhh")
	req.Header.Set("X-Contact", "mail a@b.com")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/err", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("json: %v", err)
	}
	if first["level"] != "info" || first["path"] != "/ok/:id" || first["request_id"] != "rid-resp" || first["user_id"] != "u1" {
		t.Fatalf("unexpected first line: %v", first)
	}
	if q := first["query"].(string); strings.Contains(q, "pi_abc") || !strings.Contains(q, "q=hello") {
		t.Fatalf("query not scrubbed: %q", q)
	}
	hdrs := first["headers"].(map[string]any)
	if hdrs["Authorization"] != "[REDACTED]" || hdrs["X-Api-Key"] != "[REDACTED]" || hdrs["X-Contact"] != "mail [REDACTED:email]" {
		t.Fatalf("headers not scrubbed: %v", hdrs)
	}
	if !strings.Contains(lines[1], `"level":"warn"`) || !strings.Contains(lines[2], `"level":"error"`) {
		t.Fatalf("levels wrong:\n%s\n%s", lines[1], lines[2])
	}
}
