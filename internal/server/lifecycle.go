// Package server coordinates connection lifecycles for the relay: tracking
// live clients, running the welcome sequence after registration, resolving
// delivery failures through the normal disconnect path, and draining
// everything on shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Server is the aggregate behind every connection: the shared state, the
// dispatcher and broadcaster operating on it, and the set of live clients
// (registered or still in handshake) for shutdown coordination.
type Server struct {
	cfg         *Config
	logger      *slog.Logger
	state       *State
	broadcaster *Broadcaster
	dispatcher  *Dispatcher
	origins     *originPolicy
	upgrader    websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewServer wires the state aggregate, dispatcher, and broadcaster together
// under one configuration.
func NewServer(cfg *Config, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		state:   NewState(cfg.DefaultRoom),
		origins: newOriginPolicy(cfg.AllowedOrigins, logger),
		clients: make(map[*Client]struct{}),
	}
	s.broadcaster = NewBroadcaster(s.state, logger)
	s.dispatcher = NewDispatcher(s.state, s, logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	return s
}

// State exposes the aggregate for inspection (listings, tests).
func (s *Server) State() *State {
	return s.state
}

// attach adds a client to the live set. It reports false when the server is
// already shutting down and no new connections are accepted.
func (s *Server) attach(c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

// serveClient starts the pump goroutines for an attached client.
func (s *Server) serveClient(c *Client) {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		c.readPump()
	}()
}

// disconnect is the single teardown path for a connection, no matter who
// triggers it: the read pump on closure, the broadcaster on delivery
// failure, or shutdown. It is idempotent. For registered connections it
// unregisters the session, announces the departure to the vacated room, and
// refreshes everyone's room list.
func (s *Server) disconnect(c *Client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	c.closed = true
	s.mu.Unlock()

	// Close the queue after releasing the lock. The write pump flushes
	// whatever is still queued, a handshake rejection included, says
	// goodbye with a close frame, and only then closes the underlying
	// connection, which unblocks the read pump.
	close(c.send)

	sess, ok := s.state.Unregister(c)
	if !ok {
		// Handshake never completed; nothing to announce.
		s.logger.Debug("anonymous connection cleaned up", "connection", c.id)
		return
	}

	s.logger.Info("client unregistered",
		"connection", c.id, "username", sess.Username, "room", sess.CurrentRoom)
	s.Fanout(sess.CurrentRoom,
		NewSystemNotice(sess.CurrentRoom, fmt.Sprintf("%s left the chat", sess.Username)), "")
	s.AnnounceRooms()
}

// welcome runs the post-registration sequence: the direct success reply,
// the join notice to the default room, the room list for the newcomer, and
// the refreshed room list for everyone else.
func (s *Server) welcome(c *Client, sess Session) {
	c.sendMessage(NewSuccessMessage(
		fmt.Sprintf("welcome %s", sess.Username),
		map[string]any{"username": sess.Username, "room": sess.CurrentRoom},
	))
	s.Fanout(sess.CurrentRoom,
		NewSystemNotice(sess.CurrentRoom, fmt.Sprintf("%s joined the chat", sess.Username)),
		sess.Username)
	c.sendMessage(NewRoomListMessage(s.state.ListRooms()))
	s.AnnounceRooms()
}

// Fanout broadcasts to a room and resolves every delivery failure by
// running the failed connection through the disconnect path, which in turn
// produces its departure notice. Cleanup happens strictly after the
// fan-out, never mid-iteration.
func (s *Server) Fanout(roomName string, msg Message, exclude string) {
	for _, failed := range s.broadcaster.Broadcast(roomName, msg, exclude) {
		s.disconnect(failed)
	}
}

// AnnounceRooms pushes the current room directory to every registered
// client, mirroring the push sent after room creation and disconnects.
func (s *Server) AnnounceRooms() {
	msg := NewRoomListMessage(s.state.ListRooms())
	payload, err := msg.Encode()
	if err != nil {
		s.logger.Error("encoding room list failed", "error", err)
		return
	}

	var failed []*Client
	for _, c := range s.state.Connections() {
		if !c.trySend(payload) {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		s.disconnect(c)
	}
}

// Shutdown stops accepting connections, closes every live client, and waits
// for the pump goroutines to drain, up to the timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.closing = true
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	s.logger.Info("closing client connections", "count", len(clients))
	for _, c := range clients {
		s.disconnect(c)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("server shutdown complete")
		return nil
	case <-time.After(timeout):
		s.logger.Warn("server shutdown timed out")
		return context.DeadlineExceeded
	}
}
