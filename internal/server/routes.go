// Package server wires the HTTP handlers into a ServeMux.
package server

import "net/http"

// Routes returns the relay's HTTP mux: health check at the root, the
// WebSocket endpoint, and the browser test page.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/test", s.TestPageHandler)
	return mux
}
