// Package server manages individual WebSocket connections: the handshake
// that claims an identity, the read pump feeding the dispatcher, the write
// pump with keepalive pings, and teardown on close or fatal error.
package server

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// readTimeout bounds the wait for the next inbound frame; the pong
	// handler extends it, so a live but quiet connection stays open.
	readTimeout = 60 * time.Second

	// pingInterval must undercut readTimeout with margin for transit.
	pingInterval = 54 * time.Second

	// writeTimeout bounds a single outbound write.
	writeTimeout = 10 * time.Second

	// sendBufferSize is the per-connection outbound queue. A recipient
	// that lets it fill up is treated as a delivery failure.
	sendBufferSize = 256
)

// Client is the server-side handle for one live connection. The Client is
// exclusively owned by the goroutines serving it; everything else refers to
// it only through the registry.
type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	server  *Server
	addr    string
	limiter *tokenBucket

	// closed is guarded by server.mu and flips exactly once, when the
	// client leaves the server's client set.
	closed bool
}

// NewClient wraps an accepted WebSocket connection. The connection may be
// nil in tests that only exercise registry and dispatch behavior.
func NewClient(conn *websocket.Conn, srv *Server, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(srv.cfg.MaxMessageSize)
	}
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		server:  srv,
		addr:    addr,
		limiter: newTokenBucket(srv.cfg.RateLimitBurst, srv.cfg.RateLimitRefillInterval),
	}
}

// trySend queues a payload for delivery without blocking. It reports false
// when the client has been torn down or its buffer is full; callers treat
// that as a delivery failure.
func (c *Client) trySend(payload []byte) bool {
	c.server.mu.RLock()
	defer c.server.mu.RUnlock()

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

// sendMessage encodes and queues a direct reply. Failures are not surfaced
// to the peer: a connection that cannot accept its own reply is dying and
// the read pump will tear it down shortly.
func (c *Client) sendMessage(msg Message) {
	payload, err := msg.Encode()
	if err != nil {
		c.server.logger.Error("encoding reply failed", "connection", c.id, "error", err)
		return
	}
	if !c.trySend(payload) {
		c.server.logger.Debug("dropping reply for closed connection", "connection", c.id)
	}
}

// setupRead applies the read deadline and arms the pong handler that keeps
// extending it while the peer answers pings.
func (c *Client) setupRead() {
	if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		c.server.logger.Error("setting read deadline failed", "connection", c.id, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			c.server.logger.Error("setting read deadline failed", "connection", c.id, "error", err)
		}
		return nil
	})
}

// readPump runs the whole inbound side of the connection lifecycle:
// handshake, then the receive loop, then teardown. It exits on the first
// read error; the deferred disconnect performs unregistration and the
// departure notice exactly once.
func (c *Client) readPump() {
	defer func() {
		c.server.disconnect(c)
	}()

	c.setupRead()

	if !c.handshake() {
		return
	}

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.limiter.allow() {
			c.server.logger.Warn("rate limit exceeded, discarding frame",
				"connection", c.id, "addr", c.addr)
			continue
		}

		c.handleFrame(payload)
	}
}

// handshake consumes the registration frame and claims the username. Both
// failure modes (missing name, name taken) answer with an error reply and
// report false, after which the connection is closed without ever having
// been registered.
func (c *Client) handshake() bool {
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		c.logReadError(err)
		return false
	}

	username, err := decodeRegistration(payload)
	if err != nil {
		c.server.logger.Warn("handshake rejected", "connection", c.id, "reason", err)
		c.sendMessage(NewErrorMessage(err.Error()))
		return false
	}

	sess, err := c.server.state.Register(c, username)
	if err != nil {
		c.server.logger.Warn("handshake rejected",
			"connection", c.id, "username", username, "reason", err)
		c.sendMessage(NewErrorMessage(fmt.Sprintf("username '%s' is already taken", username)))
		return false
	}

	c.server.logger.Info("client registered",
		"connection", c.id, "username", username, "addr", c.addr)
	c.limiter.arm()
	c.server.welcome(c, sess)
	return true
}

// handleFrame decodes one post-handshake frame and dispatches it. Every
// frame gets exactly one direct reply; malformed payloads get an error reply
// and the loop continues.
func (c *Client) handleFrame(payload []byte) {
	msg, err := DecodeMessage(payload)
	if err != nil {
		c.sendMessage(NewErrorMessage(err.Error()))
		return
	}
	c.sendMessage(c.server.dispatcher.Dispatch(c, msg))
}

// logReadError records why the read loop stopped, keeping routine closures
// out of the error level.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.server.logger.Warn("frame exceeded size limit",
			"connection", c.id, "limit", c.server.cfg.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure),
		errors.Is(err, io.EOF),
		isExpectedCloseError(err):
		c.server.logger.Info("client disconnected", "connection", c.id, "addr", c.addr)
	default:
		c.server.logger.Error("websocket read failed",
			"connection", c.id, "addr", c.addr, "error", err)
	}
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with periodic pings. It exits when the send channel is closed by
// teardown or when any write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.server.logger.Error("closing connection failed", "connection", c.id, "error", err)
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if !ok {
				// Teardown closed the queue; say goodbye properly.
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

			// Drain whatever queued up behind this frame.
			for i := len(c.send); i > 0; i-- {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// isExpectedCloseError reports whether an error is part of a normal
// connection shutdown rather than something worth an error-level log.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	text := err.Error()
	return strings.Contains(text, "use of closed network connection") ||
		strings.Contains(text, "websocket: close sent") ||
		strings.Contains(text, "broken pipe")
}
