package server_test

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/gorilla/websocket"
)

const testOriginURL = "http://localhost:5000"

// startTestServer runs a Server with a live hub behind httptest. customize may
// adjust the configuration before the server is built.
func startTestServer(t *testing.T, customize func(cfg *server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()
	cfg := server.NewConfig()
	if customize != nil {
		customize(cfg)
	}

	srv := server.New(cfg, nil)
	srv.StartHub()

	testServer := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(func() {
		testServer.Close()
		if err := srv.Hub().Shutdown(2 * time.Second); err != nil {
			t.Logf("hub shutdown: %v", err)
		}
	})
	return srv, testServer
}

func buildWebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

func dial(t *testing.T, testServer *httptest.Server) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	header := http.Header{}
	header.Set("Origin", testOriginURL)

	conn, resp, err := dialer.Dial(buildWebSocketURL(testServer.URL), header)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// connect dials and consumes the welcome event.
func connect(t *testing.T, testServer *httptest.Server) *websocket.Conn {
	t.Helper()
	conn := dial(t, testServer)
	var welcome server.ConnectedPayload
	readEvent(t, conn, server.EventConnected, &welcome)
	if welcome.Message == "" {
		t.Error("Expected a non-empty welcome message")
	}
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("Failed to send %s: %v", event, err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn, name string, into any) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	var env server.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("Failed to read %s: %v", name, err)
	}
	if env.Event != name {
		t.Fatalf("Expected event %s, got %s (%s)", name, env.Event, env.Data)
	}
	if into != nil {
		if err := json.Unmarshal(env.Data, into); err != nil {
			t.Fatalf("Failed to decode %s payload: %v", name, err)
		}
	}
}

// expectNoMessage must be the last read on conn: a read that times out
// leaves a gorilla connection unusable.
func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, but received %s", raw)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

// register sends a register event and checks the registrant's roster and
// the join notice seen by everyone in peers (registrant included).
func register(t *testing.T, conn *websocket.Conn, name string, peers ...*websocket.Conn) []string {
	t.Helper()
	emit(t, conn, server.EventRegister, map[string]string{"username": name})

	var list server.UsersListPayload
	readEvent(t, conn, server.EventUsersList, &list)

	for _, peer := range append([]*websocket.Conn{conn}, peers...) {
		var joined server.UserJoinedPayload
		readEvent(t, peer, server.EventUserJoined, &joined)
		if joined.Username != name {
			t.Errorf("Expected user_joined %q, got %q", name, joined.Username)
		}
	}
	return list.UsersOnline
}

func closeClient(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		t.Logf("close frame: %v", err)
	}
	_ = conn.Close()
}
