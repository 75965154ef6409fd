// Package server coordinates connection lifecycle events for the relay via
// the Hub type: every connect, register, chat message and disconnect first
// mutates the Registry and then asks the Dispatcher to notify peers.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub serializes lifecycle events from all connections through a single
// event loop, so every recipient observes them in the same order.
type Hub struct {
	registry   *Registry
	dispatcher *Dispatcher
	metrics    *Metrics
	now        func() time.Time

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub with its own Registry, Dispatcher and Metrics,
// stamping chat messages with the system clock.
func NewHub() *Hub {
	return NewHubWithClock(time.Now)
}

// NewHubWithClock creates a Hub that stamps chat messages using now.
func NewHubWithClock(now func() time.Time) *Hub {
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	registry := NewRegistry()
	metrics := NewMetrics()
	return &Hub{
		registry:   registry,
		dispatcher: NewDispatcher(registry, metrics),
		metrics:    metrics,
		now:        now,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Metrics returns the hub's runtime counters.
func (h *Hub) Metrics() *Metrics {
	return h.metrics
}

// Register hands a newly accepted client to the hub. It returns false once
// the hub is shutting down.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister tells the hub a client's connection has closed. Unregistering a
// client twice is harmless.
func (h *Hub) Unregister(c *Client) bool {
	select {
	case h.unregister <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// HandleFrame decodes a raw client frame and queues it for the event loop.
// Frames that are not event envelopes are logged and dropped.
func (h *Hub) HandleFrame(c *Client, raw []byte) bool {
	name, fields, err := decodeInbound(raw)
	if err != nil {
		h.metrics.MalformedEnvelopes.Add(1)
		slog.Warn("ignoring malformed frame", "conn", c.ID(), "addr", c.addr, "err", err)
		return false
	}

	select {
	case h.inbound <- inboundEvent{client: c, name: name, fields: fields}:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Run starts the hub's main event loop. It should be called in a separate
// goroutine and returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				slog.Warn("received nil client registration; skipping")
				continue
			}
			h.handleConnect(client)

		case client := <-h.unregister:
			if client == nil {
				continue
			}
			h.handleDisconnect(client)

		case ev := <-h.inbound:
			h.handleInbound(ev)
		}
	}
}

func (h *Hub) handleConnect(client *Client) {
	h.registry.Add(client)
	h.metrics.TotalConnections.Add(1)
	slog.Info("client connected", "conn", client.id, "addr", client.addr, "total", h.registry.Count())

	h.dispatcher.SendToOne(client.id, Event{
		Name: EventConnected,
		Data: ConnectedPayload{Message: WelcomeMessage},
	})

	if client.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) handleDisconnect(client *Client) {
	if p, ok := h.registry.Peer(client.id); !ok || p != Peer(client) {
		client.close()
		return
	}

	username, registered := h.registry.Remove(client.id)
	client.close()
	h.metrics.TotalDisconnects.Add(1)

	if !registered {
		username = UnknownUsername
	}
	remaining := h.registry.Count()
	slog.Info("client disconnected", "conn", client.id, "username", username, "total", remaining)

	h.dispatcher.BroadcastToAll(Event{
		Name: EventUsersUpdate,
		Data: UsersUpdatePayload{Count: remaining},
	})
}

func (h *Hub) handleInbound(ev inboundEvent) {
	if _, live := h.registry.Peer(ev.client.id); !live {
		slog.Debug("event from untracked connection dropped", "event", ev.name, "conn", ev.client.id)
		return
	}

	switch ev.name {
	case EventRegister:
		h.handleRegister(ev.client, stringField(ev.fields, "username"))
	case EventChatMessage:
		h.handleChatMessage(ev.client, stringField(ev.fields, "message"))
	default:
		slog.Debug("ignoring unknown event", "event", ev.name, "conn", ev.client.id)
	}
}

func (h *Hub) handleRegister(client *Client, requested string) {
	username := h.registry.SetUsername(client.id, requested)
	h.metrics.Registrations.Add(1)
	slog.Info("user registered", "conn", client.id, "username", username)

	h.dispatcher.SendToOne(client.id, Event{
		Name: EventUsersList,
		Data: UsersListPayload{UsersOnline: h.registry.Usernames()},
	})
	h.dispatcher.BroadcastToAll(Event{
		Name: EventUserJoined,
		Data: UserJoinedPayload{Username: username},
	})
}

func (h *Hub) handleChatMessage(client *Client, message string) {
	username, ok := h.registry.Username(client.id)
	if !ok {
		username = UnknownUsername
	}
	h.metrics.ChatMessages.Add(1)
	slog.Info("chat message", "username", username, "message", message)

	h.dispatcher.BroadcastToAll(Event{
		Name: EventChatMessage,
		Data: ChatMessagePayload{
			Username:  username,
			Message:   message,
			Timestamp: h.now().Format(time.RFC3339Nano),
		},
	})
}

// shutdownClients closes every tracked connection and its outbound queue.
func (h *Hub) shutdownClients() {
	slog.Info("shutting down all client connections")

	peers := h.registry.Peers()
	for _, p := range peers {
		client, ok := p.(*Client)
		if !ok {
			continue
		}
		client.close()
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				slog.Warn("error closing client connection", "addr", client.addr, "err", err)
			}
		}
	}

	slog.Info("closed client connections", "count", len(peers))
}

// Shutdown stops the event loop, closes all client connections and waits for
// their goroutines. It returns context.DeadlineExceeded if they do not finish
// within timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("initiating hub shutdown")
	h.cancel()

	deadline := time.After(timeout)

	select {
	case <-h.done:
	case <-deadline:
		slog.Warn("hub shutdown timeout reached before event loop stopped")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.metrics.LogSummary(h.registry.Count())
		slog.Info("hub shutdown completed successfully")
		return nil
	case <-deadline:
		slog.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
