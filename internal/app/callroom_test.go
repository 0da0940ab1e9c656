package app_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sablev/huddle/internal/app"
	"github.com/sablev/huddle/internal/domain"
)

func TestCallRoomRemoveConnectionClosesOwnResources(t *testing.T) {
	log := &closeLog{}
	m := app.NewCallRoomManager(time.Second)
	m.EnsureRoom("m1", &fakeHandle{id: "router", log: log})

	m.AddTransport("m1", "c1", &fakeHandle{id: "t1", log: log})
	m.AddProducer("m1", "c1", &fakeHandle{id: "p1", log: log})
	m.AddConsumer("m1", "c1", &fakeHandle{id: "co1", log: log})
	m.AddTransport("m1", "c2", &fakeHandle{id: "t2", log: log})

	emptied := m.RemoveConnection("m1", "c1")
	assert.False(t, emptied, "c2 still holds a transport")

	closed := log.all()
	assert.ElementsMatch(t, []string{"t1", "p1", "co1"}, closed)
	assert.Zero(t, log.count("t2"), "another connection's resources must survive")
	assert.Zero(t, log.count("router"))

	emptied = m.RemoveConnection("m1", "c2")
	assert.True(t, emptied)
	assert.Equal(t, 1, log.count("t2"))
	assert.Equal(t, 1, log.count("router"), "router closes when all maps empty")
	assert.Zero(t, m.Size())
}

func TestCallRoomRemoveConnectionAbsentRoom(t *testing.T) {
	m := app.NewCallRoomManager(time.Second)
	assert.False(t, m.RemoveConnection("nope", "c1"))
}

func TestCallRoomCloseOrder(t *testing.T) {
	log := &closeLog{}
	m := app.NewCallRoomManager(time.Second)
	m.EnsureRoom("m1", &fakeHandle{id: "router", log: log})
	m.AddTransport("m1", "c1", &fakeHandle{id: "transport", log: log})
	m.AddProducer("m1", "c1", &fakeHandle{id: "producer", log: log})
	m.AddConsumer("m1", "c1", &fakeHandle{id: "consumer", log: log})

	m.CloseRoom("m1")

	require.Equal(t, []string{"transport", "producer", "consumer", "router"}, log.all())
	assert.Zero(t, m.Size())

	// closing again is a no-op
	m.CloseRoom("m1")
	assert.Len(t, log.all(), 4)
}

func TestCallRoomReplacedHandleIsClosed(t *testing.T) {
	log := &closeLog{}
	m := app.NewCallRoomManager(time.Second)
	m.EnsureRoom("m1", &fakeHandle{id: "router", log: log})

	m.AddProducer("m1", "c1", &fakeHandle{id: "old", log: log})
	m.AddProducer("m1", "c1", &fakeHandle{id: "new", log: log})
	assert.Equal(t, 1, log.count("old"), "replaced producer must not leak")
	assert.Zero(t, log.count("new"))
}

func TestCallRoomStalledCloseDoesNotBlockTeardown(t *testing.T) {
	log := &closeLog{}
	m := app.NewCallRoomManager(20 * time.Millisecond)
	m.EnsureRoom("m1", &fakeHandle{id: "router", log: log})
	block := make(chan struct{})
	m.AddTransport("m1", "c1", &fakeHandle{id: "stuck", log: log, block: block})

	done := make(chan struct{})
	go func() {
		m.RemoveConnection("m1", "c1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("teardown blocked on a stalled close")
	}
	close(block)
	assert.Zero(t, m.Size(), "registry state removed despite stalled close")
}

func TestCallRoomRemoveConnectionAll(t *testing.T) {
	log := &closeLog{}
	m := app.NewCallRoomManager(time.Second)
	m.EnsureRoom("m1", &fakeHandle{id: "r1", log: log})
	m.EnsureRoom("m2", &fakeHandle{id: "r2", log: log})
	m.AddTransport("m1", "c1", &fakeHandle{id: "t1", log: log})
	m.AddTransport("m2", "c1", &fakeHandle{id: "t2", log: log})
	m.AddTransport("m2", "c2", &fakeHandle{id: "t3", log: log})

	emptied := m.RemoveConnectionAll("c1")
	assert.Equal(t, []domain.MeetingID{"m1"}, emptied)
	assert.Equal(t, 1, log.count("t1"))
	assert.Equal(t, 1, log.count("t2"))
	assert.Zero(t, log.count("t3"))
	assert.Equal(t, 1, m.Size())
}
