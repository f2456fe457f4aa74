package admin

import (
	"net/http"
	"time"

	"github.com/maxpoletaev/treenet/internal/telemetry"
)

// NewMetricsServer returns an HTTP server exposing the Prometheus metrics
// at /metrics.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
