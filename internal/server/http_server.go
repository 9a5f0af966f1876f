// Package server constructs and stops the HTTP listener carrying the
// WebSocket endpoint.
package server

import (
	"context"
	"net/http"
	"time"
)

// CreateServer builds the HTTP server with production timeout defaults.
// ReadTimeout only covers the upgrade request; hijacked WebSocket
// connections manage their own deadlines.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer begins listening and blocks until the server exits.
func StartServer(server *http.Server) error {
	return server.ListenAndServe()
}

// ShutdownServer stops accepting new requests and waits for in-flight
// handlers up to the timeout.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return server.Shutdown(ctx)
}
