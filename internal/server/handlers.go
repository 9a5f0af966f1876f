// Package server exposes the HTTP surface: the WebSocket upgrade endpoint,
// a health check, and a built-in browser page for poking at the protocol.
package server

import (
	"fmt"
	"net/http"
)

// WebSocketHandler upgrades the request and hands the connection to the
// lifecycle: attach, then pumps. The first frame the client sends must be
// the registration handshake.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "WebSocket endpoint only accepts GET requests", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	c := NewClient(conn, s, r.RemoteAddr)
	if !s.attach(c) {
		s.logger.Warn("rejecting connection during shutdown", "addr", r.RemoteAddr)
		_ = conn.Close()
		return
	}

	s.logger.Info("connection accepted", "connection", c.id, "addr", c.addr)
	s.serveClient(c)
}

// HealthHandler reports liveness in plain text.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "chatrelay server is running!")
}

// TestPageHandler serves a small HTML page speaking the relay protocol:
// register, then action-wrapped requests.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		s.logger.Error("writing test page failed", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>chatrelay test</title>
    <style>
        body { font-family: monospace; margin: 20px; }
        #log { border: 1px solid #ccc; height: 320px; padding: 8px; overflow-y: scroll; margin: 10px 0; background: #f9f9f9; }
        input { width: 280px; padding: 4px; margin-right: 6px; }
        button { padding: 4px 12px; }
        .err { color: #b00; }
        .sys { color: #888; }
    </style>
</head>
<body>
    <h1>chatrelay</h1>
    <div>
        <input id="username" placeholder="username">
        <button onclick="connect()">Connect</button>
    </div>
    <div>
        <input id="input" placeholder="message, or /create /join /leave /rooms /users" disabled>
        <button id="send" onclick="submitLine()" disabled>Send</button>
    </div>
    <div id="log"></div>

    <script>
        let ws = null;
        const log = document.getElementById('log');

        function append(text, cls) {
            const line = document.createElement('div');
            if (cls) line.className = cls;
            line.textContent = text;
            log.appendChild(line);
            log.scrollTop = log.scrollHeight;
        }

        function connect() {
            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = () => {
                ws.send(JSON.stringify({username: document.getElementById('username').value}));
                document.getElementById('input').disabled = false;
                document.getElementById('send').disabled = false;
            };
            ws.onmessage = (ev) => {
                const msg = JSON.parse(ev.data);
                if (msg.action === 'receive_message') {
                    append('[' + msg.data.room_name + '] ' + msg.data.username + ': ' + msg.data.message);
                } else if (msg.action === 'list_rooms') {
                    append('rooms: ' + JSON.stringify(msg.data.rooms), 'sys');
                } else if (msg.action === 'error') {
                    append('error: ' + msg.data.error, 'err');
                } else {
                    append(msg.data.message, 'sys');
                }
            };
            ws.onclose = () => append('disconnected', 'sys');
        }

        function submitLine() {
            const input = document.getElementById('input');
            const line = input.value.trim();
            input.value = '';
            if (!line || !ws) return;
            let msg;
            if (line.startsWith('/create ')) {
                msg = {action: 'create_room', data: {room_name: line.slice(8)}};
            } else if (line.startsWith('/join ')) {
                msg = {action: 'join_room', data: {room_name: line.slice(6)}};
            } else if (line === '/leave') {
                msg = {action: 'leave_room', data: {}};
            } else if (line === '/rooms') {
                msg = {action: 'list_rooms', data: {}};
            } else if (line.startsWith('/users')) {
                msg = {action: 'list_users', data: {room_name: line.slice(7)}};
            } else {
                msg = {action: 'send_message', data: {message: line}};
            }
            ws.send(JSON.stringify(msg));
        }

        document.getElementById('input').addEventListener('keypress', (e) => {
            if (e.key === 'Enter') submitLine();
        });
    </script>
</body>
</html>`
