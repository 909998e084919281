// Package server tracks which connection belongs to which user and room via
// the Presence type, the process-local source of truth for room membership.
package server

import (
	"sort"
	"sync"
)

// User is the presence record for one live connection. A connection has at
// most one User at any time; the record is created on joinRoom and removed
// when the connection closes.
type User struct {
	ID       string
	Username string
	Room     string

	seq uint64
}

// Presence is the authoritative mapping from connection identity to User for
// a single server process. All operations are safe for concurrent use; the
// hub additionally serializes every mutation through its event loop so a
// roster snapshot always reflects the store state immediately after the
// triggering join or leave.
type Presence struct {
	mu    sync.RWMutex
	users map[string]User
	seq   uint64
}

// NewPresence creates an empty presence store. Each hub owns its own
// instance, so multiple isolated server instances can run in one process.
func NewPresence() *Presence {
	return &Presence{users: make(map[string]User)}
}

// Join inserts a User keyed by the connection identity. A prior entry for
// the same identity is overwritten, which makes duplicate join events safe.
func (p *Presence) Join(id, username, room string) User {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	user := User{ID: id, Username: username, Room: room, seq: p.seq}
	p.users[id] = user
	return user
}

// Get looks up the User for a connection identity. A missing entry is a
// normal outcome, for example a chat message racing a disconnect.
func (p *Presence) Get(id string) (User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	user, ok := p.users[id]
	return user, ok
}

// Leave removes and returns the User for a connection identity. It reports
// false if no entry exists, so duplicate disconnect signals degrade to
// no-ops for the caller.
func (p *Presence) Leave(id string) (User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	user, ok := p.users[id]
	if !ok {
		return User{}, false
	}
	delete(p.users, id)
	return user, true
}

// UsersInRoom returns the current members of a room in join order. Rooms are
// never materialized; membership is always derived from the user table.
func (p *Presence) UsersInRoom(room string) []RoomUser {
	p.mu.RLock()

	members := make([]User, 0, len(p.users))
	for _, user := range p.users {
		if user.Room == room {
			members = append(members, user)
		}
	}
	p.mu.RUnlock()

	sort.Slice(members, func(i, j int) bool {
		return members[i].seq < members[j].seq
	})

	users := make([]RoomUser, 0, len(members))
	for _, member := range members {
		users = append(users, RoomUser{ID: member.ID, Username: member.Username})
	}
	return users
}
