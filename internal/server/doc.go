// Package server implements the chatrelay core: a concurrent session/room
// registry and message-dispatch engine behind a WebSocket transport.
//
// The implementation is organized into specialized files for the wire
// protocol, the state aggregate, dispatch, broadcast, connection lifecycle,
// and HTTP wiring to keep each concern independently testable.
package server
