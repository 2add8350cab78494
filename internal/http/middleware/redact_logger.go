// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. It never logs
// bodies and scrubs contact details and payment secrets from the query
// string and header values it does log:
//
//   - emails and phone numbers (contact fields of demands and supplies)
//   - Stripe-style payment intent ids and client secrets
//   - values of sensitive query keys (client_secret, payment_intent_id, ...)
//   - Authorization, Cookie, Set-Cookie and any extra configured headers
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are replaced with "[REDACTED]" (case-insensitive), in
	// addition to Authorization, Cookie and Set-Cookie.
	MaskHeaders []string
	// MaskQueryKeys are query parameters whose values are always masked, in
	// addition to the built-in payment and contact keys.
	MaskQueryKeys []string
}

var (
	uuidRE = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	// pi_xxx and pi_xxx_secret_yyy
	paymentRE = regexp.MustCompile(`\b(?:pi|seti|ch|cs)_[A-Za-z0-9]+(?:_secret_[A-Za-z0-9]+)?\b`)
	emailRE   = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE   = regexp.MustCompile(`\+?\b(?:\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)

	defaultMaskedQueryKeys = []string{
		"client_secret", "payment_intent_id", "payment_confirmation_id",
		"email", "phone", "token",
	}
)

// Redactor scrubs free text. The zero value only applies the patterns.
type Redactor struct {
	keyRE *regexp.Regexp
}

// NewRedactor builds a Redactor that also masks the values of keys.
func NewRedactor(keys ...string) *Redactor {
	all := append(append([]string{}, defaultMaskedQueryKeys...), keys...)
	quoted := make([]string, 0, len(all))
	for _, k := range all {
		if k = strings.TrimSpace(k); k != "" {
			quoted = append(quoted, regexp.QuoteMeta(k))
		}
	}
	return &Redactor{keyRE: regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)=[^&\s]*`)}
}

// Redact returns s with sensitive values replaced. Keyed values go first,
// then payment ids, ids, emails and finally phone numbers, whose pattern is
// the loosest.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	if r != nil && r.keyRE != nil {
		s = r.keyRE.ReplaceAllString(s, "$1=[REDACTED]")
	}
	s = paymentRE.ReplaceAllString(s, "[REDACTED:payment]")
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	s = phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
	return s
}

// RedactingLogger writes one structured access log line per request:
// info for 2xx/3xx, warn for 4xx and error for 5xx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	red := NewRedactor(opts.MaskQueryKeys...)

	maskHeaders := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		safeQuery := red.Redact(truncate(c.Request.URL.RawQuery, 2048))
		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = red.Redact(strings.Join(vv, ", "))
		}

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		uid, _ := c.Get(UserIDKey)

		ev := log.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", red.Redact(c.Errors.String()))
		}

		ev.
			Str("request_id", reqID).
			Str("user_id", asString(uid)).
			Str("method", c.Request.Method).
			Str("path", route).
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
