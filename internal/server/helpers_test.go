package server

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestServer builds a relay with default config and a silent logger.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(DefaultConfig(), NewLogger("error", io.Discard))
}

// newTestClient attaches a connection-less client, enough to exercise
// registry, dispatch, and broadcast behavior.
func newTestClient(t *testing.T, s *Server) *Client {
	t.Helper()
	c := NewClient(nil, s, "test-addr")
	require.True(t, s.attach(c))
	return c
}

// registerTestClient attaches and registers a client under the given name.
func registerTestClient(t *testing.T, s *Server, username string) *Client {
	t.Helper()
	c := newTestClient(t, s)
	_, err := s.state.Register(c, username)
	require.NoError(t, err)
	return c
}

// receiveMessage pops the next queued frame off a client's send buffer.
func receiveMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case payload := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("expected a delivered message, got none")
		return Message{}
	}
}

// requireNoMessage asserts nothing is queued for the client.
func requireNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected delivery: %s", payload)
	default:
	}
}

// drainMessages empties a client's send buffer.
func drainMessages(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}
