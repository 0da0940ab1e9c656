package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

// callRoom holds one meeting's media resources. Every entry must be closed,
// not merely dropped, before removal; the router is closed only when all
// three maps are simultaneously empty.
type callRoom struct {
	router     core.Router
	transports map[core.ConnID]core.Transport
	producers  map[core.ConnID]core.Producer
	consumers  map[core.ConnID][]core.Consumer
}

func (r *callRoom) empty() bool {
	return len(r.transports) == 0 && len(r.producers) == 0 && len(r.consumers) == 0
}

// CallRoomManager is the meeting id to media-resource bookkeeping. Handles
// are collected under the lock and closed outside it, each close bounded by
// the teardown timeout so one stalled engine call cannot block disconnect
// cleanup.
type CallRoomManager struct {
	mu       sync.Mutex
	rooms    map[domain.MeetingID]*callRoom
	teardown time.Duration
}

func NewCallRoomManager(teardown time.Duration) *CallRoomManager {
	return &CallRoomManager{
		rooms:    make(map[domain.MeetingID]*callRoom),
		teardown: teardown,
	}
}

// EnsureRoom records the router handle for a meeting, once.
func (m *CallRoomManager) EnsureRoom(meeting domain.MeetingID, router core.Router) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[meeting]; ok {
		return
	}
	m.rooms[meeting] = &callRoom{
		router:     router,
		transports: make(map[core.ConnID]core.Transport),
		producers:  make(map[core.ConnID]core.Producer),
		consumers:  make(map[core.ConnID][]core.Consumer),
	}
	log.Info().Str("module", "app.callroom").Str("meeting", string(meeting)).Msg("call room created")
}

func (m *CallRoomManager) Router(meeting domain.MeetingID) (core.Router, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[meeting]
	if !ok {
		return nil, false
	}
	return room.router, true
}

func (m *CallRoomManager) Transport(meeting domain.MeetingID, conn core.ConnID) (core.Transport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[meeting]
	if !ok {
		return nil, false
	}
	t, ok := room.transports[conn]
	return t, ok
}

func (m *CallRoomManager) AddTransport(meeting domain.MeetingID, conn core.ConnID, t core.Transport) {
	m.mu.Lock()
	room, ok := m.rooms[meeting]
	var old core.Transport
	if ok {
		old = room.transports[conn]
		room.transports[conn] = t
	}
	m.mu.Unlock()
	if old != nil {
		m.closeWithTimeout("transport", func() error { return old.Close() })
	}
}

func (m *CallRoomManager) AddProducer(meeting domain.MeetingID, conn core.ConnID, p core.Producer) {
	m.mu.Lock()
	room, ok := m.rooms[meeting]
	var old core.Producer
	if ok {
		old = room.producers[conn]
		room.producers[conn] = p
	}
	m.mu.Unlock()
	if old != nil {
		m.closeWithTimeout("producer", func() error { return old.Close() })
	}
}

func (m *CallRoomManager) AddConsumer(meeting domain.MeetingID, conn core.ConnID, c core.Consumer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[meeting]; ok {
		room.consumers[conn] = append(room.consumers[conn], c)
	}
}

// ProducersExcept snapshots the producers of every other connection in the
// meeting, for consume negotiation.
func (m *CallRoomManager) ProducersExcept(meeting domain.MeetingID, conn core.ConnID) map[core.ConnID]core.Producer {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[meeting]
	if !ok {
		return nil
	}
	out := make(map[core.ConnID]core.Producer, len(room.producers))
	for id, p := range room.producers {
		if id == conn {
			continue
		}
		out[id] = p
	}
	return out
}

// RemoveConnection closes and deletes the connection's own transport,
// producer and consumer entries, never another connection's. If all three
// maps end up empty the router is closed and the room deleted; emptied
// reports that.
func (m *CallRoomManager) RemoveConnection(meeting domain.MeetingID, conn core.ConnID) (emptied bool) {
	m.mu.Lock()
	room, ok := m.rooms[meeting]
	if !ok {
		m.mu.Unlock()
		return false
	}
	t := room.transports[conn]
	p := room.producers[conn]
	cs := room.consumers[conn]
	delete(room.transports, conn)
	delete(room.producers, conn)
	delete(room.consumers, conn)
	var router core.Router
	if room.empty() {
		router = room.router
		delete(m.rooms, meeting)
		emptied = true
	}
	m.mu.Unlock()

	if t != nil {
		m.closeWithTimeout("transport", func() error { return t.Close() })
	}
	if p != nil {
		m.closeWithTimeout("producer", func() error { return p.Close() })
	}
	for _, c := range cs {
		c := c
		m.closeWithTimeout("consumer", func() error { return c.Close() })
	}
	if router != nil {
		m.closeWithTimeout("router", func() error { return router.Close() })
		log.Info().Str("module", "app.callroom").Str("meeting", string(meeting)).Msg("call room emptied")
	}
	return emptied
}

// RemoveConnectionAll removes the connection's resources from every meeting
// and returns the meetings that became empty as a result.
func (m *CallRoomManager) RemoveConnectionAll(conn core.ConnID) []domain.MeetingID {
	m.mu.Lock()
	meetings := make([]domain.MeetingID, 0, len(m.rooms))
	for meeting, room := range m.rooms {
		if _, ok := room.transports[conn]; ok {
			meetings = append(meetings, meeting)
			continue
		}
		if _, ok := room.producers[conn]; ok {
			meetings = append(meetings, meeting)
			continue
		}
		if _, ok := room.consumers[conn]; ok {
			meetings = append(meetings, meeting)
		}
	}
	m.mu.Unlock()

	var emptied []domain.MeetingID
	for _, meeting := range meetings {
		if m.RemoveConnection(meeting, conn) {
			emptied = append(emptied, meeting)
		}
	}
	return emptied
}

// CloseRoom tears a meeting down outright: transports, then producers, then
// consumers, then the router. Closing an absent room is a no-op.
func (m *CallRoomManager) CloseRoom(meeting domain.MeetingID) {
	m.mu.Lock()
	room, ok := m.rooms[meeting]
	if ok {
		delete(m.rooms, meeting)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	for _, t := range room.transports {
		t := t
		m.closeWithTimeout("transport", func() error { return t.Close() })
	}
	for _, p := range room.producers {
		p := p
		m.closeWithTimeout("producer", func() error { return p.Close() })
	}
	for _, cs := range room.consumers {
		for _, c := range cs {
			c := c
			m.closeWithTimeout("consumer", func() error { return c.Close() })
		}
	}
	m.closeWithTimeout("router", func() error { return room.router.Close() })
	log.Info().Str("module", "app.callroom").Str("meeting", string(meeting)).Msg("call room closed")
}

// Size reports the number of live call rooms.
func (m *CallRoomManager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// closeWithTimeout runs a close call with a bound so disconnect cleanup can
// proceed even when the engine stalls; the registry entries are already gone
// by the time we get here, so a timed-out close only leaks the one resource,
// which is logged for out-of-band retry.
func (m *CallRoomManager) closeWithTimeout(label string, fn func() error) {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Str("module", "app.callroom").Str("resource", label).Msg("close failed")
		}
	case <-time.After(m.teardown):
		log.Warn().Str("module", "app.callroom").Str("resource", label).Dur("timeout", m.teardown).Msg("close timed out, proceeding")
	}
}
