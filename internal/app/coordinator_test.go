package app_test

import (
	"context"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sablev/huddle/internal/app"
	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

func newCoordinator(t *testing.T) (*app.Coordinator, *app.Registry, *fakeEngine) {
	t.Helper()
	reg := app.NewRegistry()
	engine := newFakeEngine()
	return app.NewCoordinator(reg, engine, true, 100*time.Millisecond), reg, engine
}

func TestCoordinatorStartBroadcastsCallActive(t *testing.T) {
	coord, reg, _ := newCoordinator(t)
	watcher := &fakeConn{}
	reg.Register("c1", mustUser("bob", domain.RoleUser), watcher)
	reg.Join(domain.ThreadRoom("t1"), "c1")

	require.NoError(t, coord.StartOrJoinCall(context.Background(), "t1", "alice", domain.CallVideo))

	active := watcher.events(core.EvtCallActive)
	require.Len(t, active, 1)
	var payload struct {
		ThreadID    domain.ThreadID `json:"threadId"`
		CallType    domain.CallKind `json:"callType"`
		InitiatorID domain.UserID   `json:"initiatorId"`
	}
	require.NoError(t, json.Unmarshal(active[0].Data, &payload))
	assert.Equal(t, domain.ThreadID("t1"), payload.ThreadID)
	assert.Equal(t, domain.CallVideo, payload.CallType)
	assert.Equal(t, domain.UserID("alice"), payload.InitiatorID)

	// joining does not re-announce
	require.NoError(t, coord.StartOrJoinCall(context.Background(), "t1", "bob", domain.CallVideo))
	assert.Len(t, watcher.events(core.EvtCallActive), 1)
}

func TestCoordinatorStartRollsBackOnEngineFailure(t *testing.T) {
	coord, _, engine := newCoordinator(t)
	engine.failCreate = true

	err := coord.StartOrJoinCall(context.Background(), "t1", "alice", domain.CallAudio)
	require.ErrorIs(t, err, domain.ErrResource)
	_, ok := coord.Sessions.Get("t1")
	assert.False(t, ok, "failed start must not leave an active session")
}

func TestCoordinatorLastLeaveClosesRoomOnce(t *testing.T) {
	coord, _, engine := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, coord.StartOrJoinCall(ctx, "t1", "alice", domain.CallAudio))
	require.NoError(t, coord.StartOrJoinCall(ctx, "t1", "bob", domain.CallAudio))

	coord.LeaveCall("t1", "alice")
	assert.Zero(t, engine.closesOf("t1"))

	coord.LeaveCall("t1", "bob")
	assert.Equal(t, 1, engine.closesOf("t1"))

	// duplicate leave after teardown must not close the room again
	coord.LeaveCall("t1", "bob")
	assert.Equal(t, 1, engine.closesOf("t1"))
}

func TestCoordinatorEndCall(t *testing.T) {
	coord, reg, engine := newCoordinator(t)
	watcher := &fakeConn{}
	reg.Register("c1", mustUser("bob", domain.RoleUser), watcher)
	reg.Join(domain.ThreadRoom("t1"), "c1")

	ctx := context.Background()
	require.NoError(t, coord.StartOrJoinCall(ctx, "t1", "alice", domain.CallAudio))
	require.NoError(t, coord.StartOrJoinCall(ctx, "t1", "bob", domain.CallAudio))

	coord.EndCall("t1")
	assert.Equal(t, 1, engine.closesOf("t1"))
	_, ok := coord.Sessions.Get("t1")
	assert.False(t, ok)
	assert.Len(t, watcher.events(core.EvtCallEnded), 1)

	coord.EndCall("t1") // idempotent
	assert.Equal(t, 1, engine.closesOf("t1"))
}

func TestCoordinatorOfferStartsCallAndRelays(t *testing.T) {
	coord, reg, _ := newCoordinator(t)
	target := &fakeConn{}
	reg.Register("c-bob", mustUser("bob", domain.RoleAgent), target)

	alice := mustUser("alice", domain.RoleUser)
	payload := json.RawMessage(`{"to":"bob","threadId":"t1","type":"video","offer":{"sdp":"x"}}`)
	require.NoError(t, coord.Offer(context.Background(), alice, "bob", "t1", domain.CallVideo, payload))

	sess, ok := coord.Sessions.Get("t1")
	require.True(t, ok, "first offer starts the call")
	assert.Equal(t, domain.UserID("alice"), sess.InitiatorID)

	offers := target.events(core.EvtOffer)
	require.Len(t, offers, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(offers[0].Data, &got))
	assert.Equal(t, "alice", got["from"], "relay attaches sender identity")
	assert.Equal(t, "t1", got["threadId"])
}

func TestCoordinatorDropConnectionCleansEverything(t *testing.T) {
	coord, _, engine := newCoordinator(t)
	ctx := context.Background()

	require.NoError(t, coord.StartOrJoinCall(ctx, "t1", "alice", domain.CallVideo))
	tr, err := coord.EnsureTransport(ctx, "t1", "conn-a")
	require.NoError(t, err)
	_, err = coord.Produce(ctx, "t1", "conn-a", domain.CallVideo, nil)
	require.NoError(t, err)

	coord.DropConnection("conn-a", "alice")

	_, ok := coord.Sessions.Get("t1")
	assert.False(t, ok, "session absent after initiator disconnect")
	assert.Zero(t, coord.Rooms.Size(), "no media handles remain")
	assert.GreaterOrEqual(t, engine.closesOf("t1"), 1, "engine room closed")
	assert.Equal(t, 1, engine.log.count(tr.ID()), "transport closed exactly once")

	// a second disconnect-triggered cleanup is a no-op
	coord.DropConnection("conn-a", "alice")
}

func TestCoordinatorTransportReusedForBothDirections(t *testing.T) {
	coord, _, _ := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, coord.StartOrJoinCall(ctx, "t1", "alice", domain.CallAudio))

	t1, err := coord.EnsureTransport(ctx, "t1", "c1")
	require.NoError(t, err)
	t2, err := coord.EnsureTransport(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, t1.ID(), t2.ID())
}

func TestCoordinatorConsumeSkipsIncompatibleProducers(t *testing.T) {
	coord, _, engine := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, coord.StartOrJoinCall(ctx, "t1", "alice", domain.CallAudio))

	_, err := coord.EnsureTransport(ctx, "t1", "c-alice")
	require.NoError(t, err)
	_, err = coord.Produce(ctx, "t1", "c-alice", domain.CallAudio, nil)
	require.NoError(t, err)

	_, err = coord.EnsureTransport(ctx, "t1", "c-carol")
	require.NoError(t, err)
	pc, err := coord.Produce(ctx, "t1", "c-carol", domain.CallAudio, nil)
	require.NoError(t, err)
	engine.incompatible[pc.ID()] = true

	_, err = coord.EnsureTransport(ctx, "t1", "c-bob")
	require.NoError(t, err)
	descriptors, err := coord.ConsumeAll(ctx, "t1", "c-bob", nil)
	require.NoError(t, err)
	assert.Len(t, descriptors, 1, "incompatible producer skipped without error")
}

func TestCoordinatorSharedMeetingMode(t *testing.T) {
	reg := app.NewRegistry()
	engine := newFakeEngine()
	coord := app.NewCoordinator(reg, engine, false, 100*time.Millisecond)

	assert.Equal(t, app.SharedMeeting, coord.MeetingFor("t1"))
	assert.Equal(t, app.SharedMeeting, coord.MeetingFor("t2"))
}

func TestCoordinatorConnectTransportRequiresCreate(t *testing.T) {
	coord, _, _ := newCoordinator(t)
	_, err := coord.ConnectTransport("t1", "c1", core.Frame(`{"sdp":"x"}`))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
