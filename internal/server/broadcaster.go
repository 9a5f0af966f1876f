// Package server fans messages out to room members. Delivery is two-phase:
// snapshot the membership, attempt every delivery independently, and only
// then hand the failures back for cleanup, so the member set is never
// mutated while it is being iterated.
package server

import "log/slog"

// Broadcaster delivers one encoded message to every member of a room as
// observed at broadcast start. It never mutates registry or room state
// itself; connections that refuse delivery are returned to the caller, which
// resolves them through the normal disconnect path.
type Broadcaster struct {
	state  *State
	logger *slog.Logger
}

// NewBroadcaster creates a broadcaster reading membership from state.
func NewBroadcaster(state *State, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{state: state, logger: logger}
}

// Broadcast sends msg to the members of roomName, skipping exclude (usually
// the sender). A member whose send buffer is full or whose connection is
// already closed does not stall delivery to the others; it is collected and
// returned once the fan-out is complete.
func (b *Broadcaster) Broadcast(roomName string, msg Message, exclude string) []*Client {
	payload, err := msg.Encode()
	if err != nil {
		b.logger.Error("encoding broadcast failed", "room", roomName, "error", err)
		return nil
	}

	var failed []*Client
	for _, member := range b.state.MembersOf(roomName) {
		if member == exclude {
			continue
		}
		c, ok := b.state.ConnFor(member)
		if !ok {
			// Member unregistered between snapshot and delivery; the
			// disconnect path already cleaned it up.
			continue
		}
		if !c.trySend(payload) {
			b.logger.Warn("broadcast delivery failed",
				"room", roomName,
				"recipient", member,
				"connection", c.id)
			failed = append(failed, c)
		}
	}
	return failed
}
