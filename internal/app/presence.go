package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

type connEntry struct {
	user   *domain.User
	signal core.SignalConnection
	rooms  map[domain.RoomName]struct{}
}

// Registry is the authoritative mapping of room name to connection set and
// connection to identity. All mutation goes through its methods; no
// membership may outlive its owning connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[core.ConnID]*connEntry
	rooms map[domain.RoomName]map[core.ConnID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[core.ConnID]*connEntry),
		rooms: make(map[domain.RoomName]map[core.ConnID]struct{}),
	}
}

// Register admits an authenticated connection and joins it to its role room
// and personal room. The opposite role room is told the user came online.
func (r *Registry) Register(id core.ConnID, user *domain.User, signal core.SignalConnection) {
	r.mu.Lock()
	r.conns[id] = &connEntry{
		user:   user,
		signal: signal,
		rooms:  make(map[domain.RoomName]struct{}),
	}
	r.joinLocked(domain.RoleRoom(user.Role), id)
	r.joinLocked(domain.PersonalRoom(user.ID), id)
	r.mu.Unlock()

	log.Info().Str("module", "app.presence").Str("conn", string(id)).Str("user", string(user.ID)).Msg("connection registered")
	r.emitPresence(core.EvtUserOnline, user)
}

// Unregister removes the connection from every room it joined and drops the
// identity binding. The opposite role room is told the user went offline.
func (r *Registry) Unregister(id core.ConnID) (*domain.User, bool) {
	r.mu.Lock()
	entry, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	for room := range entry.rooms {
		r.leaveLocked(room, id)
	}
	delete(r.conns, id)
	r.mu.Unlock()

	log.Info().Str("module", "app.presence").Str("conn", string(id)).Str("user", string(entry.user.ID)).Msg("connection unregistered")
	r.emitPresence(core.EvtUserOffline, entry.user)
	return entry.user, true
}

// Join is idempotent; joining a room the connection already belongs to is a
// no-op. Unknown connections are ignored.
func (r *Registry) Join(room domain.RoomName, id core.ConnID) {
	r.mu.Lock()
	r.joinLocked(room, id)
	r.mu.Unlock()
}

// Leave is idempotent; leaving a room the connection is not in is a no-op.
func (r *Registry) Leave(room domain.RoomName, id core.ConnID) {
	r.mu.Lock()
	r.leaveLocked(room, id)
	r.mu.Unlock()
}

func (r *Registry) joinLocked(room domain.RoomName, id core.ConnID) {
	entry, ok := r.conns[id]
	if !ok {
		return
	}
	if _, in := entry.rooms[room]; in {
		return
	}
	entry.rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[core.ConnID]struct{})
		r.rooms[room] = members
	}
	members[id] = struct{}{}
}

func (r *Registry) leaveLocked(room domain.RoomName, id core.ConnID) {
	if entry, ok := r.conns[id]; ok {
		delete(entry.rooms, room)
	}
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// emitPresence tells the opposite role room about this user's connectivity.
// This is the sole mechanism by which one user class learns about the other.
func (r *Registry) emitPresence(event string, user *domain.User) {
	frame, err := core.Encode(event, map[string]domain.UserID{"userId": user.ID})
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Msg("encode presence event")
		return
	}
	r.Broadcast(domain.RoleRoom(user.Role.Opposite()), frame, "")
}

// UserOf returns the identity bound to a connection.
func (r *Registry) UserOf(id core.ConnID) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return entry.user, true
}

// MembersOf is a snapshot of distinct identities in a room. It may race with
// concurrent joins and leaves; the result is advisory.
func (r *Registry) MembersOf(room domain.RoomName) []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[domain.UserID]struct{})
	out := make([]domain.UserID, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		entry, ok := r.conns[id]
		if !ok {
			continue
		}
		if _, dup := seen[entry.user.ID]; dup {
			continue
		}
		seen[entry.user.ID] = struct{}{}
		out = append(out, entry.user.ID)
	}
	return out
}

// IdentityInRoom reports whether the user has at least one live connection
// in the room.
func (r *Registry) IdentityInRoom(room domain.RoomName, user domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id := range r.rooms[room] {
		if entry, ok := r.conns[id]; ok && entry.user.ID == user {
			return true
		}
	}
	return false
}

// OnlineUsers returns the distinct user ids currently connected in a role
// room.
func (r *Registry) OnlineUsers(role domain.Role) []domain.UserID {
	return r.MembersOf(domain.RoleRoom(role))
}

// Broadcast fans a frame out to every connection in the room except the
// given one. Slow consumers are dropped, not waited on.
func (r *Registry) Broadcast(room domain.RoomName, frame core.Frame, except core.ConnID) (sent int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dropped := 0
	for id := range r.rooms[room] {
		if id == except {
			continue
		}
		entry, ok := r.conns[id]
		if !ok {
			continue
		}
		if err := entry.signal.TrySend(frame); err != nil {
			dropped++
			continue
		}
		sent++
	}
	if dropped > 0 {
		log.Warn().Str("module", "app.presence").Str("room", string(room)).Int("dropped", dropped).Msg("broadcast dropped slow consumers")
	}
	return sent
}

// SendTo delivers a frame to a single connection.
func (r *Registry) SendTo(id core.ConnID, frame core.Frame) error {
	r.mu.RLock()
	entry, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}
	return entry.signal.TrySend(frame)
}

// SendToUser delivers a frame to every connection in the user's personal
// room.
func (r *Registry) SendToUser(user domain.UserID, frame core.Frame) int {
	return r.Broadcast(domain.PersonalRoom(user), frame, "")
}

// RoomsOf returns a snapshot of the rooms a connection has joined.
func (r *Registry) RoomsOf(id core.ConnID) []domain.RoomName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.conns[id]
	if !ok {
		return nil
	}
	out := make([]domain.RoomName, 0, len(entry.rooms))
	for room := range entry.rooms {
		out = append(out, room)
	}
	return out
}
