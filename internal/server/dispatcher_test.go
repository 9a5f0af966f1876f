package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRejectsUnregisteredSender(t *testing.T) {
	s := newTestServer(t)
	c := newTestClient(t, s)

	reply := s.dispatcher.Dispatch(c, NewMessage(ActionListRooms, nil))
	assert.Equal(t, ActionError, reply.Action)
	assert.Equal(t, "not registered", reply.StringField("error"))
}

func TestDispatchRejectsUnknownAction(t *testing.T) {
	s := newTestServer(t)
	c := registerTestClient(t, s, "alice")

	reply := s.dispatcher.Dispatch(c, NewMessage("teleport", nil))
	assert.Equal(t, ActionError, reply.Action)
	assert.Equal(t, "unknown action: teleport", reply.StringField("error"))
}

func TestDispatchRecoversFromHandlerPanic(t *testing.T) {
	s := newTestServer(t)
	c := registerTestClient(t, s, "alice")

	s.dispatcher.handlers["explode"] = func(Session, Message) Message {
		panic("boom")
	}

	reply := s.dispatcher.Dispatch(c, NewMessage("explode", nil))
	assert.Equal(t, ActionError, reply.Action)
	assert.Equal(t, "internal server error", reply.StringField("error"))

	// The connection survives and keeps dispatching.
	reply = s.dispatcher.Dispatch(c, NewMessage(ActionListRooms, nil))
	assert.Equal(t, ActionListRooms, reply.Action)
}

func TestCreateRoom(t *testing.T) {
	s := newTestServer(t)
	alice := registerTestClient(t, s, "alice")
	bob := registerTestClient(t, s, "bob")

	reply := s.dispatcher.Dispatch(alice, NewMessage(ActionCreateRoom,
		map[string]any{"room_name": "dev"}))
	require.Equal(t, ActionSuccess, reply.Action)
	assert.Equal(t, "room 'dev' created", reply.StringField("message"))
	assert.Equal(t, "dev", reply.StringField("room_name"))

	// Everyone, creator included, gets the refreshed room directory.
	for _, c := range []*Client{alice, bob} {
		push := receiveMessage(t, c)
		assert.Equal(t, ActionListRooms, push.Action)
		rooms, ok := push.Data["rooms"].(map[string]any)
		require.True(t, ok)
		assert.Contains(t, rooms, "dev")
	}
}

func TestCreateRoomValidation(t *testing.T) {
	s := newTestServer(t)
	alice := registerTestClient(t, s, "alice")

	reply := s.dispatcher.Dispatch(alice, NewMessage(ActionCreateRoom, nil))
	assert.Equal(t, ActionError, reply.Action)
	assert.Equal(t, "room name required", reply.StringField("error"))

	reply = s.dispatcher.Dispatch(alice, NewMessage(ActionCreateRoom,
		map[string]any{"room_name": "dev"}))
	require.Equal(t, ActionSuccess, reply.Action)
	drainMessages(alice)

	reply = s.dispatcher.Dispatch(alice, NewMessage(ActionCreateRoom,
		map[string]any{"room_name": "dev"}))
	assert.Equal(t, ActionError, reply.Action)
	assert.Equal(t, "room 'dev' already exists", reply.StringField("error"))
	requireNoMessage(t, alice)
}

func TestJoinRoomNotifiesBothRooms(t *testing.T) {
	s := newTestServer(t)
	alice := registerTestClient(t, s, "alice")
	bob := registerTestClient(t, s, "bob")
	carol := registerTestClient(t, s, "carol")

	require.True(t, s.state.CreateRoom("dev"))
	_, ok := s.state.JoinRoom("carol", "dev")
	require.True(t, ok)

	reply := s.dispatcher.Dispatch(alice, NewMessage(ActionJoinRoom,
		map[string]any{"room_name": "dev"}))
	require.Equal(t, ActionSuccess, reply.Action)
	assert.Equal(t, "you joined room 'dev'", reply.StringField("message"))
	assert.Equal(t, "dev", reply.StringField("room_name"))

	// Bob, left behind in general, hears the departure.
	departure := receiveMessage(t, bob)
	assert.Equal(t, ActionReceiveMessage, departure.Action)
	assert.Equal(t, SystemUsername, departure.StringField("username"))
	assert.Equal(t, "alice left the room", departure.StringField("message"))
	assert.Equal(t, "general", departure.StringField("room_name"))

	// Carol, already in dev, hears the arrival.
	arrival := receiveMessage(t, carol)
	assert.Equal(t, ActionReceiveMessage, arrival.Action)
	assert.Equal(t, "alice joined the room", arrival.StringField("message"))
	assert.Equal(t, "dev", arrival.StringField("room_name"))

	// The mover only gets the direct reply, no notice about themselves.
	requireNoMessage(t, alice)
}

func TestJoinRoomSameRoomProducesNoNotices(t *testing.T) {
	s := newTestServer(t)
	alice := registerTestClient(t, s, "alice")
	bob := registerTestClient(t, s, "bob")

	reply := s.dispatcher.Dispatch(alice, NewMessage(ActionJoinRoom,
		map[string]any{"room_name": "general"}))
	assert.Equal(t, ActionSuccess, reply.Action)
	requireNoMessage(t, bob)
}

func TestJoinRoomUnknownRoom(t *testing.T) {
	s := newTestServer(t)
	alice := registerTestClient(t, s, "alice")

	reply := s.dispatcher.Dispatch(alice, NewMessage(ActionJoinRoom,
		map[string]any{"room_name": "nowhere"}))
	assert.Equal(t, ActionError, reply.Action)
	assert.Equal(t, "room 'nowhere' does not exist", reply.StringField("error"))
}

func TestLeaveRoom(t *testing.T) {
	s := newTestServer(t)
	alice := registerTestClient(t, s, "alice")
	bob := registerTestClient(t, s, "bob")

	require.True(t, s.state.CreateRoom("dev"))
	_, ok := s.state.JoinRoom("alice", "dev")
	require.True(t, ok)
	_, ok = s.state.JoinRoom("bob", "dev")
	require.True(t, ok)

	reply := s.dispatcher.Dispatch(alice, NewMessage(ActionLeaveRoom, nil))
	require.Equal(t, ActionSuccess, reply.Action)
	assert.Equal(t, "dev", reply.StringField("old_room"))
	assert.Equal(t, "general", reply.StringField("new_room"))

	notice := receiveMessage(t, bob)
	assert.Equal(t, "alice left the room", notice.StringField("message"))

	sess, _ := s.state.SessionByName("alice")
	assert.Equal(t, "general", sess.CurrentRoom)
}

func TestLeaveRoomFromDefaultRoom(t *testing.T) {
	s := newTestServer(t)
	alice := registerTestClient(t, s, "alice")

	reply := s.dispatcher.Dispatch(alice, NewMessage(ActionLeaveRoom, nil))
	assert.Equal(t, ActionError, reply.Action)
	assert.Equal(t, "you are already in the default room", reply.StringField("error"))
}

func TestSendMessageReachesRoomMembersOnly(t *testing.T) {
	s := newTestServer(t)
	alice := registerTestClient(t, s, "alice")
	bob := registerTestClient(t, s, "bob")
	carol := registerTestClient(t, s, "carol")

	require.True(t, s.state.CreateRoom("dev"))
	_, ok := s.state.JoinRoom("carol", "dev")
	require.True(t, ok)

	reply := s.dispatcher.Dispatch(alice, NewMessage(ActionSendMessage,
		map[string]any{"message": "hello"}))
	require.Equal(t, ActionSuccess, reply.Action)
	assert.Equal(t, "message sent", reply.StringField("message"))

	delivered := receiveMessage(t, bob)
	assert.Equal(t, ActionReceiveMessage, delivered.Action)
	assert.Equal(t, "alice", delivered.StringField("username"))
	assert.Equal(t, "hello", delivered.StringField("message"))
	assert.Equal(t, "general", delivered.StringField("room_name"))
	assert.NotEmpty(t, delivered.Timestamp)

	// The sender only gets the direct reply; other rooms hear nothing.
	requireNoMessage(t, alice)
	requireNoMessage(t, carol)
}

func TestSendMessageRejectsEmptyText(t *testing.T) {
	s := newTestServer(t)
	alice := registerTestClient(t, s, "alice")

	reply := s.dispatcher.Dispatch(alice, NewMessage(ActionSendMessage, nil))
	assert.Equal(t, ActionError, reply.Action)
	assert.Equal(t, "message cannot be empty", reply.StringField("error"))
}

func TestListRooms(t *testing.T) {
	s := newTestServer(t)
	alice := registerTestClient(t, s, "alice")
	require.True(t, s.state.CreateRoom("dev"))

	reply := s.dispatcher.Dispatch(alice, NewMessage(ActionListRooms, nil))
	require.Equal(t, ActionListRooms, reply.Action)
	rooms, ok := reply.Data["rooms"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"general": 1, "dev": 0}, rooms)
}

func TestListUsers(t *testing.T) {
	s := newTestServer(t)
	alice := registerTestClient(t, s, "alice")
	registerTestClient(t, s, "bob")

	// Without a room name the default room is assumed.
	reply := s.dispatcher.Dispatch(alice, NewMessage(ActionListUsers, nil))
	require.Equal(t, ActionSuccess, reply.Action)
	assert.Equal(t, "general", reply.StringField("room_name"))
	users, ok := reply.Data["users"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users)

	require.True(t, s.state.CreateRoom("dev"))
	reply = s.dispatcher.Dispatch(alice, NewMessage(ActionListUsers,
		map[string]any{"room_name": "dev"}))
	require.Equal(t, ActionSuccess, reply.Action)
	users, ok = reply.Data["users"].([]string)
	require.True(t, ok)
	assert.Empty(t, users)

	// An unknown room lists as empty rather than failing.
	reply = s.dispatcher.Dispatch(alice, NewMessage(ActionListUsers,
		map[string]any{"room_name": "nowhere"}))
	assert.Equal(t, ActionSuccess, reply.Action)
}
