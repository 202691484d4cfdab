// Package metrics provides Prometheus instrumentation for the portfolio
// service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CyclesTotal counts reconciliation cycles, partitioned by outcome.
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_cycles_total",
		Help: "Total number of reconciliation cycles run",
	}, []string{"outcome"})

	// TradesTotal counts buy/sell notifications emitted per cycle.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_trades_total",
		Help: "Total number of trades emitted in notification batches",
	}, []string{"side"})

	// PortfolioValue tracks the normalized total value of the ledger.
	PortfolioValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portfolio_total_value",
		Help: "Capital-normalized total portfolio value",
	})

	// PortfolioOverdraft tracks the excess beyond the capital base.
	PortfolioOverdraft = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portfolio_overdraft",
		Help: "Portfolio value in excess of the capital base",
	})

	// ActivePositions tracks the number of currently held tickers.
	ActivePositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portfolio_active_positions",
		Help: "Number of currently held positions",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portfolio_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
