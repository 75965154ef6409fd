// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, metrics and the bootstrap client page.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// HealthStatus is the body served by the health endpoint.
type HealthStatus struct {
	Status      string `json:"status"`
	UsersOnline int    `json:"users_online"`
}

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the connection, creates a Client and
// hands it to the hub, which sends the welcome event and starts the pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "err", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, &s.cfg)
	if !s.hub.Register(client) {
		_ = conn.Close()
	}
}

// HealthHandler reports liveness and the number of tracked connections.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := HealthStatus{Status: "healthy", UsersOnline: s.hub.registry.Count()}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Warn("error writing health response", "err", err)
	}
}

// MetricsHandler writes hub counters in Prometheus text exposition format.
func (s *Server) MetricsHandler(w http.ResponseWriter, _ *http.Request) {
	s.hub.metrics.WritePrometheus(w, s.hub.registry.Count())
}

// IndexHandler serves the bootstrap page: a minimal browser client that
// connects to /ws, registers as WebUser and shows the online count and chat.
func (s *Server) IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprint(w, indexPage); err != nil {
		slog.Warn("error writing HTML response", "err", err)
	}
}

const indexPage = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Relay</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; text-align: center; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            margin: 10px auto;
            max-width: 600px;
            overflow-y: scroll;
            padding: 10px;
            text-align: left;
        }
        input[type="text"] { width: 300px; padding: 5px; }
    </style>
</head>
<body>
    <h1>Chat Relay</h1>
    <div id="status">Status: connecting...</div>
    <div id="users">Users: 0</div>
    <div id="messages"></div>
    <input type="text" id="messageInput" placeholder="Type a message..." disabled>
    <button id="sendButton" disabled>Send</button>

    <script>
        const statusDiv = document.getElementById('status');
        const usersDiv = document.getElementById('users');
        const messagesDiv = document.getElementById('messages');
        const input = document.getElementById('messageInput');
        const button = document.getElementById('sendButton');
        const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
        const ws = new WebSocket(scheme + location.host + '/ws');

        function emit(event, data) {
            ws.send(JSON.stringify({event: event, data: data}));
        }

        function addLine(text) {
            const line = document.createElement('div');
            line.textContent = text;
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function send() {
            const message = input.value.trim();
            if (message) {
                emit('chat_message', {message: message});
                input.value = '';
            }
        }

        ws.onopen = function() {
            statusDiv.textContent = 'Status: CONNECTED';
            input.disabled = false;
            button.disabled = false;
            emit('register', {username: 'WebUser'});
        };

        ws.onmessage = function(frame) {
            const env = JSON.parse(frame.data);
            const data = env.data || {};
            switch (env.event) {
                case 'connected':
                    addLine(data.message);
                    break;
                case 'users_list':
                    usersDiv.textContent = 'Users: ' + data.users_online.length;
                    break;
                case 'users_update':
                    usersDiv.textContent = 'Users: ' + data.count;
                    break;
                case 'user_joined':
                    addLine(data.username + ' joined');
                    break;
                case 'chat_message':
                    addLine('[' + data.timestamp + '] ' + data.username + ': ' + data.message);
                    break;
            }
        };

        ws.onclose = function() {
            statusDiv.textContent = 'Status: DISCONNECTED';
            input.disabled = true;
            button.disabled = true;
        };

        button.addEventListener('click', send);
        input.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                send();
            }
        });
    </script>
</body>
</html>`
