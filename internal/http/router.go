// Package httpapi wires the HTTP transport (Gin) to the marketplace services,
// middleware and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-match-backend/internal/config"
	"github.com/tbourn/go-match-backend/internal/domain"
	"github.com/tbourn/go-match-backend/internal/http/handlers"
	"github.com/tbourn/go-match-backend/internal/http/middleware"
	"github.com/tbourn/go-match-backend/internal/repo"
)

// Deps are the collaborators RegisterRoutes mounts.
type Deps struct {
	DB       *gorm.DB
	Demands  handlers.DemandService
	Matcher  handlers.SearchService
	Apps     handlers.ApplicationService
	Payments handlers.PaymentService

	// Registerer and Gatherer default to the Prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// Now defaults to time.Now.
	Now func() time.Time
}

// idempotencyStore adapts the repository free functions to
// handlers.IdempotencyStore.
type idempotencyStore struct{ db *gorm.DB }

// Get proxies repo.GetIdempotency; a missing record is (nil, nil).
func (s idempotencyStore) Get(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, userID, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// Put proxies repo.CreateIdempotency. A concurrent duplicate is not an error.
func (s idempotencyStore) Put(ctx context.Context, userID, scope, key, resourceID string, status int, now time.Time, ttl time.Duration) error {
	_, err := repo.CreateIdempotency(ctx, s.db, userID, scope, key, resourceID, status, now, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order matters:
//  1. RequestID: generate/propagate correlation id (first, so traces and logs carry it)
//  2. OpenTelemetry: trace everything
//  3. RedactingLogger: one scrubbed access line per request
//  4. Recovery: panics become the JSON 500 envelope
//  5. Body size limit
//  6. Security headers and CORS
//  7. gzip
//  8. Metrics, then /health, /ready, /metrics and /swagger (not authenticated, not limited)
//  9. Auth, request-scoped Logger, edge rate limiter
//
// POST /applications additionally runs the idempotency validator.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	r.Use(middleware.RequestID())
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key", "Stripe-Signature"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	apiBase := cfg.APIBasePath
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		EnablePolicy:    true,
		NoStorePrefixes: []string{apiBase + "/demands", apiBase + "/supplies", apiBase + "/payment-intents"},
	}))
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	metrics := middleware.NewHTTPMetrics(deps.Registerer, "match")
	r.Use(metrics.Handler())

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", readiness(deps.DB))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.Use(middleware.Auth(middleware.AuthOptions{Secret: cfg.JWTSecret}))
	r.Use(middleware.Logger())
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		RPS:   cfg.RateRPS,
		Burst: cfg.RateBurst,
		Key:   middleware.KeyByUserOrIP(),
	})
	r.Use(rl.Handler())

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(deps.Demands, deps.Matcher, deps.Apps, deps.Payments).WithClock(now)
	var lookup middleware.IdempotencyLookup
	if deps.DB != nil {
		store := idempotencyStore{db: deps.DB}
		h.WithIdempotency(store, cfg.IdempotencyTTL)
		lookup = func(ctx context.Context, userID, scope, key string, at time.Time) (bool, error) {
			rec, err := store.Get(ctx, userID, scope, key, at)
			return rec != nil, err
		}
	}
	idem := middleware.IdempotencyValidator(middleware.IdempotencyOptions{
		MaxLen: 200,
		Scope:  handlers.ScopeApplications,
		Now:    now,
	}, lookup)

	api := groupWithPrefix(r, apiBase)
	{
		// Demands
		api.POST("/demands", h.CreateDemand)
		api.GET("/demands/:id", h.GetDemand)
		api.GET("/demands/user/:userId", h.ListUserDemands)

		// Search
		api.GET("/search", h.Search)
		api.GET("/search/quota", h.SearchQuota)

		// Payments
		api.POST("/payment-intents", h.CreatePaymentIntent)
		api.POST("/payment-intents/verify", h.VerifyPaymentIntent)

		// Applications
		api.POST("/applications", idem, h.CreateApplication)
		api.GET("/supplies/:id", h.GetSupply)
		api.DELETE("/supplies/:id", h.DeleteSupply)
		api.GET("/supplies/demand/:demandId", h.ListDemandSupplies)
		api.GET("/supplies/user/:userId", h.ListUserSupplies)
	}
}

// corsMiddleware returns the CORS posture: allow all origins when none are
// configured, otherwise echo allow-listed origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderUserID, middleware.HeaderIdempotencyKey,
	}
	exposeHeaders := []string{
		"X-Request-ID", "Content-Length", "ETag", "Retry-After",
		middleware.HeaderIdempotencyReplayed,
		"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
	}
	methods := []string{"GET", "POST", "DELETE", "OPTIONS"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			// Force ACAO: * even without an Origin header (simple health checks).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    exposeHeaders,
				AllowCredentials: false,
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// readiness pings the database. Without a database it always reports ready.
func readiness(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
				err = sqlDB.PingContext(ctx)
				cancel()
			}
			if err != nil {
				handlers.Fail(c, http.StatusServiceUnavailable, "not_ready", "database unavailable")
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// limitBody caps request bodies at maxBytes; larger bodies fail to read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
