package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sablev/huddle/internal/domain"
)

// SessionTable owns the thread id to call-session mapping. A session exists
// if and only if its participant set is non-empty, and there is at most one
// session per thread at any time. The table never exposes its map; the
// coordinator iterates through RemoveUserFromAll.
type SessionTable struct {
	mu       sync.Mutex
	sessions map[domain.ThreadID]*domain.CallSession
}

func NewSessionTable() *SessionTable {
	return &SessionTable{sessions: make(map[domain.ThreadID]*domain.CallSession)}
}

// StartOrJoin moves ABSENT -> ACTIVE on the first signal for a thread, and
// adds the user on subsequent ones. Adding an existing participant is a
// no-op. Returns whether a new session was created.
func (t *SessionTable) StartOrJoin(threadID domain.ThreadID, user domain.UserID, kind domain.CallKind) (created bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[threadID]
	if !ok {
		t.sessions[threadID] = &domain.CallSession{
			ThreadID:     threadID,
			Kind:         kind,
			InitiatorID:  user,
			Participants: map[domain.UserID]struct{}{user: {}},
			StartedAt:    time.Now(),
		}
		log.Info().Str("module", "app.session").Str("thread", string(threadID)).Str("initiator", string(user)).Str("kind", string(kind)).Msg("call session started")
		return true
	}
	sess.Participants[user] = struct{}{}
	return false
}

// Leave removes the user from the session's participant set. A leave for a
// user not in the set is a no-op; this is the duplicate-leave guard against
// double-teardown races. emptied reports the ACTIVE -> ABSENT transition.
func (t *SessionTable) Leave(threadID domain.ThreadID, user domain.UserID) (removed, emptied bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[threadID]
	if !ok {
		return false, false
	}
	if _, in := sess.Participants[user]; !in {
		return false, false
	}
	delete(sess.Participants, user)
	if len(sess.Participants) == 0 {
		delete(t.sessions, threadID)
		log.Info().Str("module", "app.session").Str("thread", string(threadID)).Msg("call session emptied")
		return true, true
	}
	return true, false
}

// End removes the session outright regardless of remaining participants.
func (t *SessionTable) End(threadID domain.ThreadID) (existed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[threadID]; !ok {
		return false
	}
	delete(t.sessions, threadID)
	log.Info().Str("module", "app.session").Str("thread", string(threadID)).Msg("call session ended")
	return true
}

// Get returns a copy of the session; the participant set is cloned so
// callers cannot mutate table state.
func (t *SessionTable) Get(threadID domain.ThreadID) (domain.CallSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.sessions[threadID]
	if !ok {
		return domain.CallSession{}, false
	}
	cp := *sess
	cp.Participants = make(map[domain.UserID]struct{}, len(sess.Participants))
	for p := range sess.Participants {
		cp.Participants[p] = struct{}{}
	}
	return cp, true
}

// SessionsOf returns the threads whose sessions the user participates in.
func (t *SessionTable) SessionsOf(user domain.UserID) []domain.ThreadID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.ThreadID
	for id, sess := range t.sessions {
		if _, in := sess.Participants[user]; in {
			out = append(out, id)
		}
	}
	return out
}

// Snapshot lists active sessions for the REST surface.
func (t *SessionTable) Snapshot() []domain.CallSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.CallSession, 0, len(t.sessions))
	for _, sess := range t.sessions {
		cp := *sess
		cp.Participants = nil
		out = append(out, cp)
	}
	return out
}
