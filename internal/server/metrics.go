// Package server tracks relay runtime statistics and exposes them in
// Prometheus text format.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks hub runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	TotalConnections   atomic.Int64 // lifetime WebSocket connections accepted
	TotalDisconnects   atomic.Int64
	Registrations      atomic.Int64 // register events handled, overwrites included
	ChatMessages       atomic.Int64 // chat messages relayed
	Deliveries         atomic.Int64 // events queued to a peer
	DroppedDeliveries  atomic.Int64 // events skipped because a peer queue was full or closed
	MalformedEnvelopes atomic.Int64
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// MetricsSnapshot is a point-in-time view of all counters.
type MetricsSnapshot struct {
	Uptime             string
	ActiveConnections  int
	TotalConnections   int64
	TotalDisconnects   int64
	Registrations      int64
	ChatMessages       int64
	Deliveries         int64
	DroppedDeliveries  int64
	MalformedEnvelopes int64
}

// Snapshot returns the counters along with the live connection count.
func (m *Metrics) Snapshot(active int) MetricsSnapshot {
	return MetricsSnapshot{
		Uptime:             time.Since(m.startTime).Truncate(time.Second).String(),
		ActiveConnections:  active,
		TotalConnections:   m.TotalConnections.Load(),
		TotalDisconnects:   m.TotalDisconnects.Load(),
		Registrations:      m.Registrations.Load(),
		ChatMessages:       m.ChatMessages.Load(),
		Deliveries:         m.Deliveries.Load(),
		DroppedDeliveries:  m.DroppedDeliveries.Load(),
		MalformedEnvelopes: m.MalformedEnvelopes.Load(),
	}
}

// LogSummary writes a metrics summary to the logger.
func (m *Metrics) LogSummary(active int) {
	s := m.Snapshot(active)
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"chat_msgs", s.ChatMessages,
		"deliveries", s.Deliveries,
		"dropped", s.DroppedDeliveries,
	)
}

func (m *Metrics) delivered() {
	if m != nil {
		m.Deliveries.Add(1)
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.DroppedDeliveries.Add(1)
	}
}

// WritePrometheus writes all counters in Prometheus text exposition format.
func (m *Metrics) WritePrometheus(w http.ResponseWriter, active int) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	_, _ = fmt.Fprintf(w, "# HELP chatrelay_uptime_seconds Server uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE chatrelay_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "chatrelay_uptime_seconds %f\n", time.Since(m.startTime).Seconds())

	write("chatrelay_connections_active", "Current tracked WebSocket connections.", "gauge", int64(active))
	write("chatrelay_connections_total", "Lifetime WebSocket connections accepted.", "counter",
		m.TotalConnections.Load())
	write("chatrelay_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())
	write("chatrelay_registrations_total", "Register events handled.", "counter",
		m.Registrations.Load())
	write("chatrelay_chat_messages_total", "Chat messages relayed.", "counter",
		m.ChatMessages.Load())
	write("chatrelay_deliveries_total", "Events queued to connections.", "counter",
		m.Deliveries.Load())
	write("chatrelay_deliveries_dropped_total", "Events skipped for full or closed queues.", "counter",
		m.DroppedDeliveries.Load())
	write("chatrelay_malformed_frames_total", "Inbound frames that were not event envelopes.", "counter",
		m.MalformedEnvelopes.Load())
}
