/**
 * @description
 * Prometheus collectors for the credits service and the chi middleware that records per-route HTTP metrics.
 */
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CheckoutSessionsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "confito",
			Name:      "checkout_sessions_created_total",
			Help:      "Number of checkout sessions created, by credit package",
		},
		[]string{"package_id"},
	)

	PaymentVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "confito",
			Name:      "payment_verifications_total",
			Help:      "Number of payment verifications, by outcome",
		},
		[]string{"outcome"},
	)

	CreditsGranted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "confito",
			Name:      "credits_granted_total",
			Help:      "Total credits granted from settled purchases",
		},
	)

	LedgerBalanceDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "confito",
			Name:      "ledger_balance_drift_profiles",
			Help:      "Profiles whose cached balance differed from the ledger at the last reconciliation",
		},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "confito",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "confito",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CheckoutSessionsCreated,
			PaymentVerifications,
			CreditsGranted,
			LedgerBalanceDrift,
			HTTPRequests,
			HTTPRequestDuration,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request counts and latency keyed by the matched chi route pattern.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
