package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/vantage-run/optigate/config"
	"github.com/vantage-run/optigate/handler"
	gwmw "github.com/vantage-run/optigate/middleware"
	"github.com/vantage-run/optigate/ratelimit"
)

// NewRouter returns a configured chi Router with the full middleware
// chain and the three-endpoint API surface mounted.
func NewRouter(
	cfg *config.Config,
	appLogger zerolog.Logger,
	gatewayHandler *handler.GatewayHandler,
	healthHandler *handler.HealthHandler,
	limiter *ratelimit.Limiter,
) http.Handler {
	r := chi.NewRouter()

	// 1. CORS — must be first so preflight responses succeed
	r.Use(gwmw.PermissiveCORSMiddleware)

	// 2. Security headers
	r.Use(gwmw.SecurityHeadersMiddleware)

	// 3. Request ID injection
	r.Use(gwmw.RequestIDMiddleware)

	// 4. Panic recovery
	r.Use(chimw.Recoverer)

	// 5. Request logger
	r.Use(mwRequestLogger(appLogger))

	// 6. Body size limit
	r.Use(mwMaxBodySize(cfg.MaxBodyBytes))

	// --- Health endpoint (no rate limiting) ---
	r.Get("/health", healthHandler.Health)

	// --- Gateway endpoints (rate limited) ---
	rateLimitMW := gwmw.NewRateLimitMiddleware(limiter, appLogger)
	r.Group(func(r chi.Router) {
		r.Use(rateLimitMW.Handler)
		r.Post("/gateway", gatewayHandler.Gateway)
		r.Post("/mcp/gateway", gatewayHandler.MCPGateway)
	})

	return r
}

// mwMaxBodySize returns middleware that limits the request body size.
func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && r.ContentLength > maxBytes {
				http.Error(w, `{"detail":"request body too large"}`, http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func mwRequestLogger(appLogger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			dur := time.Since(start)
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", r.Header.Get("X-Request-ID")).
				Int("status", rw.Status()).
				Dur("duration", dur).
				Msg("request completed")
		})
	}
}
