// Package metrics exposes Prometheus metrics on a dedicated listener,
// separate from the API port.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "certapi"

var (
	// RequestsTotal counts processed API requests by action and reply
	// status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Processed API requests by action and reply status.",
	}, []string{"action", "status"})

	// RateLimitedTotal counts requests denied by the rate limiter.
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests denied by the rate limiter.",
	})

	// SystemErrorsTotal counts system-tier failures (broken store data,
	// store faults). These should stay at zero.
	SystemErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "system_errors_total",
		Help:      "Internal failures translated to generic error replies.",
	})
)

// MetricsServer serves the Prometheus scrape endpoint.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for the given listen address. pkgName is
// recorded as a build-info label.
func New(pkgName, listenAddr string) (*MetricsServer, error) {
	buildInfo := promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"package"})
	buildInfo.WithLabelValues(pkgName).Set(1)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:    listenAddr,
			Handler: mux,
		},
	}, nil
}

// ListenAndServe blocks serving the scrape endpoint.
func (m *MetricsServer) ListenAndServe() error {
	return m.srv.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
