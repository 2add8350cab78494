// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, storage backends, search quota, payments, events and observability.
package config

import (
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-match-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN
}

// RedisConfig holds connection settings for the Redis counter store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SearchConfig configures the daily-quota semantic search.
type SearchConfig struct {
	DailyQuota   int    // searches per user per UTC day
	TopK         int    // nearest neighbours requested from the index
	CounterStore string // memory|redis
	PeekFailOpen bool   // report full quota when the counter store is down
	VectorStore  string // memory|opensearch
}

// OpenSearchConfig holds the k-NN index connection settings.
type OpenSearchConfig struct {
	URL      string
	Username string
	Password string
	Index    string
}

// EmbeddingConfig selects and configures the embedding function.
type EmbeddingConfig struct {
	Provider     string // hash|http
	URL          string
	APIKey       string
	Model        string
	Dimension    int
	ResponsePath string // gjson path to the vector in the provider response
}

// PaymentConfig configures the payment confirmation service.
type PaymentConfig struct {
	Provider      string // memory|stripe
	StripeKey     string
	StripeAPIBase string
	FeeCents      int64
	Currency      string
}

// EventsConfig configures the post-commit event sink.
type EventsConfig struct {
	Sink        string // none|sqs
	AWSRegion   string
	AWSEndpoint string
	AWSKeyID    string
	AWSSecret   string
	QueueURL    string
}

// UsersConfig selects how user ids are checked against known accounts.
type UsersConfig struct {
	Directory string // none|db
	URL       string // Postgres DSN of the account store; empty reuses the main database
	Table     string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int    // bytes
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage and collaborators
	Database   DatabaseConfig
	Redis      RedisConfig
	Search     SearchConfig
	OpenSearch OpenSearchConfig
	Embedding  EmbeddingConfig
	Payment    PaymentConfig
	Events     EventsConfig
	Users      UsersConfig

	// ExternalCallTimeout bounds every call to a counter store, embedder,
	// vector index or payment provider.
	ExternalCallTimeout time.Duration

	// JWTSecret enables bearer-token authentication when non-empty.
	JWTSecret string

	// MaintenanceSchedule is a cron spec; empty disables the worker.
	MaintenanceSchedule string

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		Database: DatabaseConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "app.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},
		Search: SearchConfig{
			DailyQuota:   getint("SEARCH_DAILY_QUOTA", 10),
			TopK:         getint("SEARCH_TOP_K", 10),
			CounterStore: strings.ToLower(getenv("COUNTER_STORE", "memory")),
			PeekFailOpen: getbool("QUOTA_PEEK_FAIL_OPEN", true),
			VectorStore:  strings.ToLower(getenv("VECTOR_STORE", "memory")),
		},
		OpenSearch: OpenSearchConfig{
			URL:      getenv("OPENSEARCH_URL", "http://localhost:9200"),
			Username: getenv("OPENSEARCH_USERNAME", ""),
			Password: getenv("OPENSEARCH_PASSWORD", ""),
			Index:    getenv("OPENSEARCH_INDEX", "demands"),
		},
		Embedding: EmbeddingConfig{
			Provider:     strings.ToLower(getenv("EMBEDDER", "hash")),
			URL:          getenv("EMBEDDING_URL", ""),
			APIKey:       getenv("EMBEDDING_API_KEY", ""),
			Model:        getenv("EMBEDDING_MODEL", "bge-base-en-v1.5"),
			Dimension:    getint("EMBEDDING_DIM", 768),
			ResponsePath: getenv("EMBEDDING_RESPONSE_PATH", "data.0.embedding"),
		},
		Payment: PaymentConfig{
			Provider:      strings.ToLower(getenv("PAYMENT_PROVIDER", "memory")),
			StripeKey:     getenv("STRIPE_SECRET_KEY", ""),
			StripeAPIBase: getenv("STRIPE_API_BASE", "https://api.stripe.com"),
			FeeCents:      int64(getint("APPLICATION_FEE_CENTS", 1000)),
			Currency:      strings.ToLower(getenv("APPLICATION_FEE_CURRENCY", "usd")),
		},
		Events: EventsConfig{
			Sink:        strings.ToLower(getenv("EVENTS_SINK", "none")),
			AWSRegion:   getenv("AWS_REGION", "us-east-1"),
			AWSEndpoint: getenv("AWS_ENDPOINT_URL", ""),
			AWSKeyID:    getenv("AWS_ACCESS_KEY_ID", ""),
			AWSSecret:   getenv("AWS_SECRET_ACCESS_KEY", ""),
			QueueURL:    getenv("SQS_APPLICATIONS_QUEUE_URL", ""),
		},
		Users: UsersConfig{
			Directory: strings.ToLower(getenv("USER_DIRECTORY", "none")),
			URL:       getenv("USER_DIRECTORY_URL", ""),
			Table:     getenv("USER_DIRECTORY_TABLE", "users"),
		},

		ExternalCallTimeout: getdur("EXTERNAL_CALL_TIMEOUT", 5*time.Second),
		JWTSecret:           getenv("JWT_SECRET_KEY", ""),
		MaintenanceSchedule: strings.TrimSpace(getenvAllowEmpty("MAINTENANCE_SCHEDULE", "@every 1h")),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-match-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if err := cfg.validateStorage(); err != nil {
		return cfg, err
	}
	if err := cfg.validateCollaborators(); err != nil {
		return cfg, err
	}
	if cfg.ExternalCallTimeout <= 0 {
		return cfg, errors.New("EXTERNAL_CALL_TIMEOUT must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

func (cfg Config) validateStorage() error {
	switch cfg.Database.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.Database.URL) == "" {
			return errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}

	switch cfg.Search.CounterStore {
	case "memory":
	case "redis":
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return errors.New("REDIS_ADDR is required when COUNTER_STORE=redis")
		}
	default:
		return errors.New("COUNTER_STORE must be one of: memory, redis")
	}

	switch cfg.Search.VectorStore {
	case "memory":
	case "opensearch":
		if strings.TrimSpace(cfg.OpenSearch.URL) == "" || strings.TrimSpace(cfg.OpenSearch.Index) == "" {
			return errors.New("OPENSEARCH_URL and OPENSEARCH_INDEX are required when VECTOR_STORE=opensearch")
		}
	default:
		return errors.New("VECTOR_STORE must be one of: memory, opensearch")
	}

	if cfg.Search.DailyQuota < 1 {
		return errors.New("SEARCH_DAILY_QUOTA must be >= 1")
	}
	if cfg.Search.TopK < 1 || cfg.Search.TopK > 100 {
		return errors.New("SEARCH_TOP_K must be in [1,100]")
	}
	return nil
}

func (cfg Config) validateCollaborators() error {
	switch cfg.Embedding.Provider {
	case "hash":
	case "http":
		if strings.TrimSpace(cfg.Embedding.URL) == "" {
			return errors.New("EMBEDDING_URL is required when EMBEDDER=http")
		}
	default:
		return errors.New("EMBEDDER must be one of: hash, http")
	}
	if cfg.Embedding.Dimension < 1 {
		return errors.New("EMBEDDING_DIM must be >= 1")
	}

	switch cfg.Payment.Provider {
	case "memory":
	case "stripe":
		if strings.TrimSpace(cfg.Payment.StripeKey) == "" {
			return errors.New("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return errors.New("PAYMENT_PROVIDER must be one of: memory, stripe")
	}
	if cfg.Payment.FeeCents <= 0 {
		return errors.New("APPLICATION_FEE_CENTS must be > 0")
	}

	switch cfg.Events.Sink {
	case "none":
	case "sqs":
		if strings.TrimSpace(cfg.Events.QueueURL) == "" {
			return errors.New("SQS_APPLICATIONS_QUEUE_URL is required when EVENTS_SINK=sqs")
		}
	default:
		return errors.New("EVENTS_SINK must be one of: none, sqs")
	}

	switch cfg.Users.Directory {
	case "none":
	case "db":
		if !tableName.MatchString(cfg.Users.Table) {
			return errors.New("USER_DIRECTORY_TABLE must be a plain table name")
		}
	default:
		return errors.New("USER_DIRECTORY must be one of: none, db")
	}
	return nil
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

// getenvAllowEmpty returns def only when k is unset, so an explicit empty
// value can switch a feature off.
func getenvAllowEmpty(k, def string) string {
	if v, ok := os.LookupEnv(k); ok {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
