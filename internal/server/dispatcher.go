// Package server routes decoded inbound messages to the handler for their
// action. The action set is closed: unknown identifiers are answered with an
// error reply instead of falling through to some default behavior, and a
// panicking handler is caught at the dispatch boundary so one bad request
// can never take down other connections.
package server

import (
	"fmt"
	"log/slog"
)

// Notifier is the side channel handlers use to reach beyond their direct
// reply: room fan-outs and server-wide room-list announcements. The Server
// implements it; tests may substitute their own.
type Notifier interface {
	// Fanout broadcasts msg to roomName, excluding the named member, and
	// resolves any delivery failures.
	Fanout(roomName string, msg Message, exclude string)

	// AnnounceRooms pushes the current room directory to every
	// registered client.
	AnnounceRooms()
}

// handlerFunc processes one validated-sender action and produces the direct
// reply for it. Side effects on other connections go through the Notifier.
type handlerFunc func(sess Session, msg Message) Message

// Dispatcher maps action identifiers onto their handlers.
type Dispatcher struct {
	state    *State
	notifier Notifier
	logger   *slog.Logger
	handlers map[string]handlerFunc
}

// NewDispatcher builds the dispatch table over the given state aggregate.
func NewDispatcher(state *State, notifier Notifier, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{state: state, notifier: notifier, logger: logger}
	d.handlers = map[string]handlerFunc{
		ActionCreateRoom:  d.handleCreateRoom,
		ActionJoinRoom:    d.handleJoinRoom,
		ActionLeaveRoom:   d.handleLeaveRoom,
		ActionSendMessage: d.handleSendMessage,
		ActionListRooms:   d.handleListRooms,
		ActionListUsers:   d.handleListUsers,
	}
	return d
}

// Dispatch routes one inbound envelope from a connection and returns the
// direct reply. Messages from connections without a bound session are
// rejected before any handler runs. An unexpected panic inside a handler is
// converted into a generic error reply; the connection's receive loop
// continues.
func (d *Dispatcher) Dispatch(c *Client, msg Message) (reply Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				"action", msg.Action,
				"connection", c.id,
				"panic", r)
			reply = NewErrorMessage("internal server error")
		}
	}()

	sess, ok := d.state.SessionByConn(c)
	if !ok {
		return NewErrorMessage("not registered")
	}

	handler, ok := d.handlers[msg.Action]
	if !ok {
		d.logger.Warn("unknown action", "action", msg.Action, "username", sess.Username)
		return NewErrorMessage(fmt.Sprintf("unknown action: %s", msg.Action))
	}
	return handler(sess, msg)
}

func (d *Dispatcher) handleCreateRoom(sess Session, msg Message) Message {
	roomName := msg.StringField("room_name")
	if roomName == "" {
		return NewErrorMessage("room name required")
	}

	if !d.state.CreateRoom(roomName) {
		return NewErrorMessage(fmt.Sprintf("room '%s' already exists", roomName))
	}

	d.logger.Info("room created", "room", roomName, "creator", sess.Username)
	d.notifier.AnnounceRooms()
	return NewSuccessMessage(
		fmt.Sprintf("room '%s' created", roomName),
		map[string]any{"room_name": roomName},
	)
}

func (d *Dispatcher) handleJoinRoom(sess Session, msg Message) Message {
	roomName := msg.StringField("room_name")
	if roomName == "" {
		return NewErrorMessage("room name required")
	}

	oldRoom, ok := d.state.JoinRoom(sess.Username, roomName)
	if !ok {
		return NewErrorMessage(fmt.Sprintf("room '%s' does not exist", roomName))
	}

	if oldRoom != roomName {
		d.logger.Info("room joined", "username", sess.Username, "room", roomName, "from", oldRoom)
		d.notifier.Fanout(oldRoom,
			NewSystemNotice(oldRoom, fmt.Sprintf("%s left the room", sess.Username)),
			sess.Username)
		d.notifier.Fanout(roomName,
			NewSystemNotice(roomName, fmt.Sprintf("%s joined the room", sess.Username)),
			sess.Username)
	}
	return NewSuccessMessage(
		fmt.Sprintf("you joined room '%s'", roomName),
		map[string]any{"room_name": roomName},
	)
}

func (d *Dispatcher) handleLeaveRoom(sess Session, msg Message) Message {
	oldRoom, ok := d.state.LeaveRoom(sess.Username)
	if !ok {
		return NewErrorMessage("you are already in the default room")
	}

	d.logger.Info("room left", "username", sess.Username, "room", oldRoom)
	d.notifier.Fanout(oldRoom,
		NewSystemNotice(oldRoom, fmt.Sprintf("%s left the room", sess.Username)),
		sess.Username)
	return NewSuccessMessage(
		fmt.Sprintf("you left room '%s'", oldRoom),
		map[string]any{"old_room": oldRoom, "new_room": d.state.DefaultRoom()},
	)
}

func (d *Dispatcher) handleSendMessage(sess Session, msg Message) Message {
	text := msg.StringField("message")
	if text == "" {
		return NewErrorMessage("message cannot be empty")
	}

	d.logger.Info("chat message", "room", sess.CurrentRoom, "username", sess.Username)
	d.notifier.Fanout(sess.CurrentRoom,
		NewChatMessage(sess.CurrentRoom, sess.Username, text),
		sess.Username)
	return NewSuccessMessage("message sent", nil)
}

func (d *Dispatcher) handleListRooms(Session, Message) Message {
	return NewRoomListMessage(d.state.ListRooms())
}

func (d *Dispatcher) handleListUsers(_ Session, msg Message) Message {
	roomName := msg.StringField("room_name")
	if roomName == "" {
		roomName = d.state.DefaultRoom()
	}

	users := d.state.MembersOf(roomName)
	return NewSuccessMessage(
		fmt.Sprintf("users in '%s'", roomName),
		map[string]any{"room_name": roomName, "users": users},
	)
}
