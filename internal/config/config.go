// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the submission database path, rate
// limiting thresholds, the downstream webhook endpoint, and observability.
//
// The configuration is read exactly once at process start and injected into
// every component; no component reads the environment at call time.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
//
// AllowedOrigins is the explicit allow-list of browser origins that may call
// the intake endpoint. An empty list is a development convenience that allows
// any origin; production deployments are expected to set it.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// WebhookConfig defines the downstream intake webhook and its retry policy.
type WebhookConfig struct {
	// URL is the external endpoint that receives normalized submissions.
	// When empty the submit endpoint answers 503 rather than crashing;
	// the operator is expected to set WEBHOOK_URL.
	URL string

	// MaxRetries is the number of delivery attempts per submission (>= 1).
	MaxRetries int

	// Timeout bounds a single outbound HTTP attempt.
	Timeout time.Duration

	// Backoff is the initial delay between attempts. The dispatcher doubles
	// it per retry, capped by the overall request deadline.
	Backoff time.Duration
}

// RateLimitConfig defines the two abuse-control layers enforced per request.
type RateLimitConfig struct {
	// EmailLimit caps submissions per email inside Window. Checked against
	// the persisted submission history, so it survives restarts.
	EmailLimit int

	// Window is the rolling window for the email limit.
	Window time.Duration

	// IPLimit caps submissions per client IP per Window. Enforced by a
	// process-local counter (or Redis when configured); best effort only.
	IPLimit int

	// RedisAddr, when non-empty, switches the IP layer to a shared Redis
	// counter so horizontally scaled instances enforce one limit.
	RedisAddr string
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-waitlist-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route

	// App
	DBPath       string // SQLite path for the submission store
	MaxBodyBytes int64  // request body cap for the submit endpoint

	// Idempotency
	IdempotencyGranularity time.Duration // timestamp bucket folded into the key

	// Abuse control
	RateLimit RateLimitConfig

	// Downstream delivery
	Webhook WebhookConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),

		// App
		DBPath:       getenv("DB_PATH", "waitlist.db"),
		MaxBodyBytes: int64(getint("MAX_BODY_BYTES", 10<<10)),

		// Idempotency
		IdempotencyGranularity: getdur("IDEMPOTENCY_GRANULARITY", time.Minute),

		// Abuse control
		RateLimit: RateLimitConfig{
			EmailLimit: getint("EMAIL_RATE_LIMIT", 5),
			Window:     getdur("RATE_WINDOW", time.Hour),
			IPLimit:    getint("IP_RATE_LIMIT", 20),
			RedisAddr:  getenv("REDIS_ADDR", ""),
		},

		// Downstream delivery
		Webhook: WebhookConfig{
			URL:        getenv("WEBHOOK_URL", ""),
			MaxRetries: getint("WEBHOOK_MAX_RETRIES", 2),
			Timeout:    getdur("WEBHOOK_TIMEOUT", 10*time.Second),
			Backoff:    getdur("WEBHOOK_BACKOFF", time.Second),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-waitlist-backend"),
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
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.MaxBodyBytes <= 0 {
		return cfg, errors.New("MAX_BODY_BYTES must be > 0")
	}
	if cfg.IdempotencyGranularity <= 0 {
		return cfg, errors.New("IDEMPOTENCY_GRANULARITY must be > 0")
	}
	if cfg.RateLimit.EmailLimit < 1 {
		return cfg, errors.New("EMAIL_RATE_LIMIT must be >= 1")
	}
	if cfg.RateLimit.IPLimit < 1 {
		return cfg, errors.New("IP_RATE_LIMIT must be >= 1")
	}
	if cfg.RateLimit.Window <= 0 {
		return cfg, errors.New("RATE_WINDOW must be > 0")
	}
	if cfg.Webhook.MaxRetries < 1 {
		return cfg, errors.New("WEBHOOK_MAX_RETRIES must be >= 1")
	}
	if cfg.Webhook.Timeout <= 0 {
		return cfg, errors.New("WEBHOOK_TIMEOUT must be > 0")
	}
	if cfg.Webhook.Backoff < 0 {
		return cfg, errors.New("WEBHOOK_BACKOFF must be >= 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
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
