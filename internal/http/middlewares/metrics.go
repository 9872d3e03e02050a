package middlewares

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/epicauth/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// WithMetrics instrumenta requests HTTP (contador y latencia). The path label
// is the chi route pattern, so unmatched paths collapse into one series.
func WithMetrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)

			path := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					path = p
				}
			}
			method := strings.ToUpper(r.Method)
			metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			metrics.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		})
	}
}
