// Package server fans encoded events out to registry snapshots through the
// Dispatcher type.
package server

import (
	"log/slog"
)

// Dispatcher delivers events to connections tracked by a Registry. Delivery
// is best effort: a peer whose queue is full or closed is skipped and the
// rest still receive the event.
type Dispatcher struct {
	registry *Registry
	metrics  *Metrics
}

// NewDispatcher creates a Dispatcher over registry. metrics may be nil.
func NewDispatcher(registry *Registry, metrics *Metrics) *Dispatcher {
	return &Dispatcher{registry: registry, metrics: metrics}
}

// BroadcastToAll delivers evt to every connection in a registry snapshot
// taken now, and returns how many peers accepted it.
func (d *Dispatcher) BroadcastToAll(evt Event) int {
	payload, ok := d.encode(evt)
	if !ok {
		return 0
	}

	peers := d.registry.Peers()
	slog.Debug("broadcasting event", "event", evt.Name, "targets", len(peers))

	delivered := 0
	for _, p := range peers {
		if d.deliver(p, evt.Name, payload) {
			delivered++
		}
	}
	return delivered
}

// SendToOne delivers evt to a single connection.
func (d *Dispatcher) SendToOne(id string, evt Event) bool {
	p, ok := d.registry.Peer(id)
	if !ok {
		slog.Debug("send to untracked connection skipped", "event", evt.Name, "conn", id)
		return false
	}

	payload, ok := d.encode(evt)
	if !ok {
		return false
	}
	return d.deliver(p, evt.Name, payload)
}

func (d *Dispatcher) encode(evt Event) ([]byte, bool) {
	payload, err := evt.Encode()
	if err != nil {
		slog.Error("encode event", "event", evt.Name, "err", err)
		return nil, false
	}
	return payload, true
}

func (d *Dispatcher) deliver(p Peer, name string, payload []byte) bool {
	if p.Send(payload) {
		d.metrics.delivered()
		return true
	}
	d.metrics.dropped()
	slog.Debug("delivery skipped", "event", name, "conn", p.ID())
	return false
}
