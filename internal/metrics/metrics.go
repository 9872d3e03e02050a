// Package metrics holds the Prometheus collectors shared by the key caches,
// the verifier, the login service and the HTTP layer. It lives in its own
// package so none of those has to import another just to count.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JWKSFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "epicauth_jwks_fetch_total",
		Help: "Key-store downloads by source and result (ok, not_modified, error)",
	}, []string{"source", "result"})

	JWKSFetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "epicauth_jwks_fetch_duration_seconds",
		Help:    "Latency of key-store downloads",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	JWKSKeys = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "epicauth_jwks_keys",
		Help: "Number of keys in the cached set",
	}, []string{"source"})

	TokenVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "epicauth_token_verifications_total",
		Help: "Token verifications by interface and result (ok, absent, no_subject, malformed, unsupported_alg, invalid_key, bad_signature, expired, unknown_kid, key_store_unavailable, error)",
	}, []string{"interface", "result"})

	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "epicauth_logins_total",
		Help: "Login attempts by result (ok, no_identity, contract_violation, rejected)",
	}, []string{"result"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Requests processed by method, route and status",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latency of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		JWKSFetches, JWKSFetchDuration, JWKSKeys,
		TokenVerifications, Logins,
		HTTPRequests, HTTPRequestDuration,
	}
}

// Register registers every collector on reg (default registerer if nil).
// Registering twice is not an error.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// Handler serves the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one key-store download.
func ObserveFetch(source, result string, elapsed time.Duration) {
	JWKSFetches.WithLabelValues(source, result).Inc()
	JWKSFetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}
