package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/vantage-run/optigate/ratelimit"
)

// RateLimitMiddleware wraps a limiter as chi-compatible middleware,
// keyed by X-User-ID if present, else remote address.
type RateLimitMiddleware struct {
	limiter *ratelimit.Limiter
	logger  zerolog.Logger
}

func NewRateLimitMiddleware(limiter *ratelimit.Limiter, logger zerolog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, logger: logger}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-User-ID")
		if key == "" {
			key = r.RemoteAddr
		}

		allowed, retryAfter := m.limiter.IsAllowed(key)
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"detail":"rate limit exceeded, retry after %d seconds"}`, retryAfter)
			m.logger.Warn().Str("key", key).Int("retry_after", retryAfter).Msg("rate limit exceeded")
			return
		}

		sw := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		if sw.status == http.StatusOK {
			m.limiter.Record(key)
		}
	})
}

type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
