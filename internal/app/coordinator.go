package app

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

// SharedMeeting is the single global meeting id used when per-thread rooms
// are disabled. Calls from unrelated threads collide in this mode; it exists
// only for compatibility.
const SharedMeeting domain.MeetingID = "global"

// Coordinator owns the call-session lifecycle and the meeting-to-resources
// mapping. All shared state lives behind the SessionTable, CallRoomManager
// and Registry it composes; event handlers never touch those maps directly.
type Coordinator struct {
	Registry *Registry
	Sessions *SessionTable
	Rooms    *CallRoomManager
	Engine   core.MediaEngine

	PerThreadRooms bool
	Teardown       time.Duration
}

func NewCoordinator(reg *Registry, engine core.MediaEngine, perThreadRooms bool, teardown time.Duration) *Coordinator {
	return &Coordinator{
		Registry:       reg,
		Sessions:       NewSessionTable(),
		Rooms:          NewCallRoomManager(teardown),
		Engine:         engine,
		PerThreadRooms: perThreadRooms,
		Teardown:       teardown,
	}
}

// MeetingFor maps a thread to its media meeting.
func (c *Coordinator) MeetingFor(threadID domain.ThreadID) domain.MeetingID {
	if c.PerThreadRooms {
		return domain.MeetingID(threadID)
	}
	return SharedMeeting
}

// StartOrJoinCall drives ABSENT -> ACTIVE on the first signal for a thread
// and adds the participant otherwise. Session creation is announced to the
// thread room as call:active.
func (c *Coordinator) StartOrJoinCall(ctx context.Context, threadID domain.ThreadID, user domain.UserID, kind domain.CallKind) error {
	created := c.Sessions.StartOrJoin(threadID, user, kind)
	if !created {
		return nil
	}

	if _, err := c.ensureRouter(ctx, c.MeetingFor(threadID)); err != nil {
		// Roll the fresh session back so a failed engine call cannot leave
		// an ACTIVE session with no media room behind it.
		c.Sessions.Leave(threadID, user)
		return fmt.Errorf("%w: create room: %w", domain.ErrResource, err)
	}

	frame, err := core.Encode(core.EvtCallActive, map[string]any{
		"threadId":    threadID,
		"callType":    kind,
		"initiatorId": user,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Msg("encode call:active")
		return nil
	}
	c.Registry.Broadcast(domain.ThreadRoom(threadID), frame, "")
	return nil
}

// LeaveCall removes the participant; a leave for a user not in the session
// is a no-op. The instant the set empties, the meeting is torn down.
func (c *Coordinator) LeaveCall(threadID domain.ThreadID, user domain.UserID) {
	_, emptied := c.Sessions.Leave(threadID, user)
	if emptied {
		c.teardownMeeting(threadID)
	}
}

// EndCall removes the session outright and tears the meeting down.
func (c *Coordinator) EndCall(threadID domain.ThreadID) {
	if c.Sessions.End(threadID) {
		c.teardownMeeting(threadID)
	}
}

// teardownMeeting is the only path that releases a meeting's media
// resources. It is unconditional and idempotent: closing an already-closed
// or absent room is a no-op.
func (c *Coordinator) teardownMeeting(threadID domain.ThreadID) {
	meeting := c.MeetingFor(threadID)
	c.Rooms.CloseRoom(meeting)
	c.closeEngineRoom(meeting)

	if frame, err := core.Encode(core.EvtCallEnded, map[string]any{"threadId": threadID}); err == nil {
		c.Registry.Broadcast(domain.ThreadRoom(threadID), frame, "")
	}
}

// DropConnection runs the disconnect-triggered cleanup for one connection:
// its media resources in every meeting, then the identity's membership in
// every session. Runs on error-caused disconnects too.
func (c *Coordinator) DropConnection(conn core.ConnID, user domain.UserID) {
	for _, meeting := range c.Rooms.RemoveConnectionAll(conn) {
		c.closeEngineRoom(meeting)
	}
	for _, threadID := range c.Sessions.SessionsOf(user) {
		c.LeaveCall(threadID, user)
	}
}

func (c *Coordinator) closeEngineRoom(meeting domain.MeetingID) {
	done := make(chan error, 1)
	go func() { done <- c.Engine.CloseRoom(meeting) }()
	select {
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Str("meeting", string(meeting)).Msg("engine close room")
		}
	case <-time.After(c.Teardown):
		log.Warn().Str("module", "app.coordinator").Str("meeting", string(meeting)).Msg("engine close room timed out, proceeding")
	}
}

// Relay forwards a signaling payload point-to-point without interpreting it,
// attaching the sender's identity. The payload reaches every connection in
// the target's personal room.
func (c *Coordinator) Relay(event string, from *domain.User, to domain.UserID, payload json.RawMessage) error {
	body := make(map[string]any)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &body); err != nil {
			return fmt.Errorf("bad %s payload: %w", event, err)
		}
	}
	body["from"] = from.ID
	frame, err := core.Encode(event, body)
	if err != nil {
		return err
	}
	c.Registry.SendToUser(to, frame)
	return nil
}

// Offer relays an offer and, as a side effect, drives the call state
// machine: the first offer in a thread is the de-facto call start.
func (c *Coordinator) Offer(ctx context.Context, from *domain.User, to domain.UserID, threadID domain.ThreadID, kind domain.CallKind, payload json.RawMessage) error {
	if !kind.Valid() {
		kind = domain.CallVideo
	}
	if err := c.StartOrJoinCall(ctx, threadID, from.ID, kind); err != nil {
		return err
	}
	return c.Relay(core.EvtOffer, from, to, payload)
}

// ensureRouter creates the engine room on first use and records its handle.
func (c *Coordinator) ensureRouter(ctx context.Context, meeting domain.MeetingID) (core.Router, error) {
	if router, ok := c.Rooms.Router(meeting); ok {
		return router, nil
	}
	router, err := c.Engine.CreateRoomIfAbsent(ctx, meeting)
	if err != nil {
		return nil, err
	}
	c.Rooms.EnsureRoom(meeting, router)
	return router, nil
}

// RTPCapabilities answers the router capability query, creating the meeting
// room on first use.
func (c *Coordinator) RTPCapabilities(ctx context.Context, threadID domain.ThreadID) (core.Frame, error) {
	router, err := c.ensureRouter(ctx, c.MeetingFor(threadID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	return router.RTPCapabilities(), nil
}

// EnsureTransport returns the connection's transport for the meeting,
// creating it on first use. Send and receive share one transport.
func (c *Coordinator) EnsureTransport(ctx context.Context, threadID domain.ThreadID, conn core.ConnID) (core.Transport, error) {
	meeting := c.MeetingFor(threadID)
	if t, ok := c.Rooms.Transport(meeting, conn); ok {
		return t, nil
	}
	if _, err := c.ensureRouter(ctx, meeting); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrResource, err)
	}
	t, err := c.Engine.CreateTransport(ctx, meeting)
	if err != nil {
		return nil, fmt.Errorf("%w: create transport: %w", domain.ErrResource, err)
	}
	c.Rooms.AddTransport(meeting, conn, t)
	return t, nil
}

// ConnectTransport applies the client's connection parameters.
func (c *Coordinator) ConnectTransport(threadID domain.ThreadID, conn core.ConnID, params core.Frame) (core.Transport, error) {
	t, ok := c.Rooms.Transport(c.MeetingFor(threadID), conn)
	if !ok {
		return nil, fmt.Errorf("%w: transport", domain.ErrNotFound)
	}
	if err := t.Connect(params); err != nil {
		return nil, fmt.Errorf("%w: connect transport: %w", domain.ErrResource, err)
	}
	return t, nil
}

// Produce attaches an outbound media endpoint to the connection's transport.
func (c *Coordinator) Produce(ctx context.Context, threadID domain.ThreadID, conn core.ConnID, kind domain.CallKind, params core.Frame) (core.Producer, error) {
	meeting := c.MeetingFor(threadID)
	t, ok := c.Rooms.Transport(meeting, conn)
	if !ok {
		return nil, fmt.Errorf("%w: transport", domain.ErrNotFound)
	}
	p, err := c.Engine.Produce(ctx, t, kind, params)
	if err != nil {
		return nil, fmt.Errorf("%w: produce: %w", domain.ErrResource, err)
	}
	c.Rooms.AddProducer(meeting, conn, p)
	return p, nil
}

// ConsumeAll negotiates a consumer against every other connection's producer
// in the meeting. Incompatible producers are skipped, not errors, and one
// producer's failure does not abort the siblings.
func (c *Coordinator) ConsumeAll(ctx context.Context, threadID domain.ThreadID, conn core.ConnID, capabilities core.Frame) ([]core.Frame, error) {
	meeting := c.MeetingFor(threadID)
	t, ok := c.Rooms.Transport(meeting, conn)
	if !ok {
		return nil, fmt.Errorf("%w: transport", domain.ErrNotFound)
	}
	descriptors := make([]core.Frame, 0)
	for from, p := range c.Rooms.ProducersExcept(meeting, conn) {
		consumer, err := c.Engine.Consume(ctx, t, p, capabilities)
		if err != nil {
			log.Error().Err(err).Str("module", "app.coordinator").Str("producer_conn", string(from)).Msg("consume failed, skipping producer")
			continue
		}
		if consumer == nil {
			// Capability negotiation incompatible: nothing to relay.
			continue
		}
		c.Rooms.AddConsumer(meeting, conn, consumer)
		descriptors = append(descriptors, consumer.Descriptor())
	}
	return descriptors, nil
}
