// Package server binds a Hub and a Config into the relay's HTTP surface via
// the Server type.
package server

import (
	"log/slog"

	"github.com/gorilla/websocket"
)

// Server owns the hub and the settings its HTTP handlers need. It holds no
// package-level state, so tests can run several side by side.
type Server struct {
	cfg      Config
	hub      *Hub
	origins  originPolicy
	upgrader websocket.Upgrader
}

// New creates a Server for cfg. A nil cfg uses defaults; a nil hub gets a
// fresh one.
func New(cfg *Config, hub *Hub) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	if hub == nil {
		hub = NewHub()
	}

	s := &Server{
		cfg:     cfg.Sanitize(),
		hub:     hub,
		origins: newOriginPolicy(cfg.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}

// Hub returns the server's hub for shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Config returns a copy of the active configuration.
func (s *Server) Config() Config {
	cfg := s.cfg
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// StartHub runs the hub's event loop in a separate goroutine.
// This should be called before starting the HTTP server.
func (s *Server) StartHub() {
	go s.hub.Run()
	slog.Info("hub started and ready to manage WebSocket connections")
}
