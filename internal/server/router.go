package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tracklight-systems/tracklight/internal/handlers"
)

// NewRouter constructs a ServeMux with collector API routes registered.
func NewRouter(h *handlers.CollectHandler) http.Handler {
	mux := http.NewServeMux()

	// Beacon intake
	mux.HandleFunc("/api/v1/collect", h.HandleCollect)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
