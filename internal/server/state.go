// Package server tracks which connection belongs to which identity and which
// identity belongs to which room. All of that state lives in the State
// aggregate and is mutated only under its single mutex, so registration
// uniqueness and membership consistency hold under arbitrary interleavings.
package server

import (
	"errors"
	"sync"

	"github.com/samber/lo"
)

// ErrNameTaken reports a registration attempt with a username that already
// has an active session.
var ErrNameTaken = errors.New("username already taken")

// Session is the identity bound to exactly one connection: the claimed
// username and the room it currently occupies. State hands out copies, never
// pointers into its own maps.
type Session struct {
	Username    string
	CurrentRoom string
}

// State owns the session-by-username map, the connection<->username mapping,
// and the room membership sets. Every mutation and every snapshot goes
// through its mutex; no partially applied transition (for example a username
// registered but not yet a member of the default room) is ever observable.
type State struct {
	mu          sync.Mutex
	defaultRoom string
	sessions    map[string]*Session            // username -> session
	users       map[*Client]string             // connection -> username
	conns       map[string]*Client             // username -> connection
	rooms       map[string]map[string]struct{} // room name -> member usernames
}

// NewState creates the aggregate with the default room already present.
// The default room is never deleted, even when empty.
func NewState(defaultRoom string) *State {
	return &State{
		defaultRoom: defaultRoom,
		sessions:    make(map[string]*Session),
		users:       make(map[*Client]string),
		conns:       make(map[string]*Client),
		rooms: map[string]map[string]struct{}{
			defaultRoom: {},
		},
	}
}

// DefaultRoom returns the name of the distinguished startup room.
func (s *State) DefaultRoom() string {
	return s.defaultRoom
}

// Register performs the atomic check-and-insert of a new session. It fails
// with ErrNameTaken iff the username is already active. On success the
// session starts in the default room; the registration and the default-room
// join are a single step.
func (s *State) Register(c *Client, username string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.sessions[username]; taken {
		return Session{}, ErrNameTaken
	}

	sess := &Session{Username: username, CurrentRoom: s.defaultRoom}
	s.sessions[username] = sess
	s.users[c] = username
	s.conns[username] = c
	s.rooms[s.defaultRoom][username] = struct{}{}
	return *sess, nil
}

// Unregister removes the session bound to the connection and drops its room
// membership. It reports false for connections that never completed the
// handshake, which is not an error: failed handshakes take the same
// teardown path.
func (s *State) Unregister(c *Client) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username, ok := s.users[c]
	if !ok {
		return Session{}, false
	}

	sess := s.sessions[username]
	delete(s.sessions, username)
	delete(s.users, c)
	delete(s.conns, username)
	if members, ok := s.rooms[sess.CurrentRoom]; ok {
		delete(members, username)
	}
	return *sess, true
}

// SessionByConn looks up the session bound to a connection.
func (s *State) SessionByConn(c *Client) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username, ok := s.users[c]
	if !ok {
		return Session{}, false
	}
	return *s.sessions[username], true
}

// SessionByName looks up the session owning a username.
func (s *State) SessionByName(username string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[username]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// ConnFor resolves the connection currently bound to a username.
func (s *State) ConnFor(username string) (*Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[username]
	return c, ok
}

// CreateRoom adds an empty room. It returns false and changes nothing when
// the name is already in use. Rooms live for the rest of the process;
// deletion is deliberately unsupported.
func (s *State) CreateRoom(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[name]; exists {
		return false
	}
	s.rooms[name] = make(map[string]struct{})
	return true
}

// JoinRoom moves a session into targetRoom, returning the room it occupied
// before. It fails when the username has no session or the room does not
// exist. Joining the current room is a successful no-op. The leave/switch/
// join sequence is atomic with respect to every other State operation.
func (s *State) JoinRoom(username, targetRoom string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[username]
	if !ok {
		return "", false
	}
	if _, exists := s.rooms[targetRoom]; !exists {
		return "", false
	}

	oldRoom := sess.CurrentRoom
	if oldRoom == targetRoom {
		return oldRoom, true
	}

	if members, ok := s.rooms[oldRoom]; ok {
		delete(members, username)
	}
	s.rooms[targetRoom][username] = struct{}{}
	sess.CurrentRoom = targetRoom
	return oldRoom, true
}

// LeaveRoom sends a session back to the default room and returns the room it
// left. A session already in the default room has nothing to leave; that
// case reports false and mutates nothing, no matter how often it is retried.
func (s *State) LeaveRoom(username string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[username]
	if !ok || sess.CurrentRoom == s.defaultRoom {
		return "", false
	}

	oldRoom := sess.CurrentRoom
	if members, ok := s.rooms[oldRoom]; ok {
		delete(members, username)
	}
	s.rooms[s.defaultRoom][username] = struct{}{}
	sess.CurrentRoom = s.defaultRoom
	return oldRoom, true
}

// MembersOf returns a point-in-time copy of a room's member set. Unknown
// rooms yield an empty slice. Callers must treat the copy as already stale.
func (s *State) MembersOf(roomName string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.rooms[roomName]
	if !ok {
		return []string{}
	}
	return lo.Keys(members)
}

// ListRooms returns a consistent snapshot of every room and its current
// occupancy, the default room included even when empty.
func (s *State) ListRooms() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lo.MapValues(s.rooms, func(members map[string]struct{}, _ string) int {
		return len(members)
	})
}

// Connections returns a snapshot of every registered connection, used for
// pushes addressed to the whole server such as room-list updates.
func (s *State) Connections() []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lo.Keys(s.users)
}
