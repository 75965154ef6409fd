// Package server implements the broadcast chat relay: a connection Registry,
// a Dispatcher that fans events out to registry snapshots, the Hub event loop
// that binds connection lifecycle to both, and the HTTP and WebSocket surface.
//
// The implementation is organized into specialized files for configuration,
// registry, dispatch, hub management, clients, routing, and HTTP handlers.
package server
