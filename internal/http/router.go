// Package httpapi wires the HTTP transport (Gin) to the intake service,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Gzip + metrics
//  6. Origin allow-list (reject unknown origins outright), then CORS headers
//  7. Security headers
//
// The body size cap and the IP rate limiter apply to the submit route only,
// so health checks and metrics scrapes are never throttled.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-waitlist-backend/internal/config"
	"github.com/tbourn/go-waitlist-backend/internal/http/handlers"
	"github.com/tbourn/go-waitlist-backend/internal/http/middleware"
	"github.com/tbourn/go-waitlist-backend/internal/services"
	"github.com/tbourn/go-waitlist-backend/internal/validation"
	"github.com/tbourn/go-waitlist-backend/internal/webhook"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and returns it ready to serve.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with PII redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Api-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Compression and Prometheus metrics
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 6) Origin policy: hard-reject unknown origins, then standard CORS
	// negotiation for the rest. Preflights are always answered.
	r.Use(middleware.OriginAllowList(cfg.CORS.AllowedOrigins))
	r.Use(corsFor(cfg.CORS))

	// 7) Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (env-gated)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: intake service ← validator/dispatcher/db
	intake := services.NewIntakeService(
		db,
		validation.New(),
		webhook.NewDispatcher(cfg.Webhook),
		cfg,
	)
	h := handlers.New(intake)

	// The submit route gets its own body cap and the per-IP counter; the
	// cors middleware above answers its OPTIONS preflight.
	r.POST("/waitlist-submit",
		limitBody(cfg.MaxBodyBytes),
		middleware.IPRateLimit(originCounter(cfg.RateLimit)),
		h.SubmitWaitlist,
	)
}

// corsFor builds the gin-contrib/cors configuration for the allow-list.
// An empty list allows any origin, which keeps local development friction
// free; production sets CORS_ALLOWED_ORIGINS.
func corsFor(cc config.CORSConfig) gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cc.AllowedOrigins) == 0 {
		base.AllowAllOrigins = true
		return cors.New(base)
	}
	base.AllowOrigins = cc.AllowedOrigins
	return cors.New(base)
}

// originCounter selects the per-IP counter store: Redis when configured so
// scaled-out instances share one limit, otherwise the process-local buckets.
func originCounter(rl config.RateLimitConfig) middleware.CounterStore {
	if rl.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: rl.RedisAddr})
		return middleware.NewRedisStore(rdb, rl.IPLimit, rl.Window)
	}
	return middleware.NewMemoryStore(rl.IPLimit, rl.Window)
}

// limitBody caps the request body size using http.MaxBytesReader so oversized
// payloads fail before JSON parsing buffers them.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
