// Package server wires HTTP handlers into a ServeMux for the relay via
// routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// It sets up handlers for the bootstrap page, health check, WebSocket endpoint
// and, when enabled, metrics.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.IndexHandler)
	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	if s.cfg.MetricsEnabled {
		mux.HandleFunc("/metrics", s.MetricsHandler)
	}
	return mux
}
