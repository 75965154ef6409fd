// Package server manages individual WebSocket clients, handling read/write
// pumps and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client represents a WebSocket connection in the chat system. It owns the
// connection, an outbound queue drained by the write pump and the remote
// address used in logs.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	maxMessageSize int64

	mu     sync.Mutex
	closed bool
}

// NewClient creates a Client with a fresh connection id. cfg supplies the
// read limit and queue size; nil means defaults.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg *Config) *Client {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := cfg.Sanitize()
	if conn != nil {
		conn.SetReadLimit(sanitized.MaxMessageSize)
	}

	return &Client{
		id:             uuid.NewString(),
		conn:           conn,
		send:           make(chan []byte, sanitized.SendBufferSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: sanitized.MaxMessageSize,
	}
}

// ID returns the connection id assigned on accept.
func (c *Client) ID() string {
	return c.id
}

// Send queues payload for the write pump without blocking. It returns false
// if the queue is full or the client has been closed.
func (c *Client) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// GetSendChan returns the client's outbound queue.
// This channel is read-only from the caller's perspective.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// close marks the client closed and closes its queue so the write pump
// sends a close frame and exits.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("error setting initial read deadline", "addr", c.addr, "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			slog.Warn("error setting read deadline in pong handler", "addr", c.addr, "err", err)
		}
		return nil
	})
}

// logReadError reports why the read loop stopped at the appropriate level.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		slog.Warn("message exceeded maximum size", "addr", c.addr, "limit", c.maxMessageSize)

	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		slog.Debug("client disconnected", "conn", c.id, "addr", c.addr, "err", err)

	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		slog.Debug("client connection closed", "conn", c.id, "addr", c.addr, "err", err)

	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		slog.Warn("unexpected WebSocket close", "addr", c.addr, "err", err)

	default:
		slog.Debug("WebSocket read ended", "addr", c.addr, "err", err)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Warn("error closing connection in readPump", "addr", c.addr, "err", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		c.hub.HandleFrame(c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		slog.Warn("error closing connection in writePump", "addr", c.addr, "err", err)
	}
}

// handleMessage writes one event per text frame and returns false if the
// connection should be closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Warn("error setting write deadline", "addr", c.addr, "err", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			slog.Warn("error writing message", "addr", c.addr, "err", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	err := c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil && !isExpectedCloseError(err) {
		slog.Debug("error writing close message", "addr", c.addr, "err", err)
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Warn("error setting write deadline for ping", "addr", c.addr, "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		slog.Debug("error writing ping message", "addr", c.addr, "err", err)
		return false
	}
	return true
}
