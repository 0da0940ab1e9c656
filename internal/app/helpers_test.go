package app_test

import (
	"context"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

// fakeConn records every frame delivered to it.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return context.DeadlineExceeded
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) events(name string) []core.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []core.Envelope
	for _, f := range c.frames {
		env, err := core.Decode(f)
		if err != nil {
			continue
		}
		if env.Event == name {
			out = append(out, env)
		}
	}
	return out
}

// fakeHandle implements every media handle interface and records closes in
// a shared ordered log.
type closeLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *closeLog) record(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, s)
}

func (l *closeLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *closeLog) count(s string) int {
	n := 0
	for _, e := range l.all() {
		if e == s {
			n++
		}
	}
	return n
}

type fakeHandle struct {
	id    string
	kind  domain.CallKind
	log   *closeLog
	block chan struct{} // non-nil: Close blocks until channel closes
}

func (h *fakeHandle) ID() string            { return h.id }
func (h *fakeHandle) Kind() domain.CallKind { return h.kind }
func (h *fakeHandle) Descriptor() core.Frame {
	b, _ := json.Marshal(map[string]string{"id": h.id})
	return core.Frame(b)
}
func (h *fakeHandle) Connect(core.Frame) error { return nil }
func (h *fakeHandle) RTPCapabilities() core.Frame {
	return core.Frame(`{"codecs":[]}`)
}
func (h *fakeHandle) Close() error {
	if h.block != nil {
		<-h.block
	}
	h.log.record(h.id)
	return nil
}

// fakeEngine hands out fakeHandles and counts room closes.
type fakeEngine struct {
	mu           sync.Mutex
	log          *closeLog
	roomCloses   map[domain.MeetingID]int
	nextID       int
	incompatible map[string]bool // producer ids whose consume yields nil
	failCreate   bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		log:          &closeLog{},
		roomCloses:   make(map[domain.MeetingID]int),
		incompatible: make(map[string]bool),
	}
}

func (e *fakeEngine) handle(prefix string, kind domain.CallKind) *fakeHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	return &fakeHandle{id: prefix, kind: kind, log: e.log}
}

func (e *fakeEngine) CreateRoomIfAbsent(_ context.Context, meeting domain.MeetingID) (core.Router, error) {
	if e.failCreate {
		return nil, context.DeadlineExceeded
	}
	return e.handle("router:"+string(meeting), ""), nil
}

func (e *fakeEngine) CreateTransport(_ context.Context, meeting domain.MeetingID) (core.Transport, error) {
	return e.handle("transport:"+string(meeting), ""), nil
}

func (e *fakeEngine) Produce(_ context.Context, t core.Transport, kind domain.CallKind, _ core.Frame) (core.Producer, error) {
	return e.handle("producer:"+t.ID(), kind), nil
}

func (e *fakeEngine) Consume(_ context.Context, t core.Transport, p core.Producer, _ core.Frame) (core.Consumer, error) {
	e.mu.Lock()
	skip := e.incompatible[p.ID()]
	e.mu.Unlock()
	if skip {
		return nil, nil
	}
	return e.handle("consumer:"+p.ID(), p.Kind()), nil
}

func (e *fakeEngine) CloseRoom(meeting domain.MeetingID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.roomCloses[meeting]++
	return nil
}

func (e *fakeEngine) closesOf(meeting domain.MeetingID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roomCloses[meeting]
}

// recordNotifier counts notifications per user.
type recordNotifier struct {
	mu    sync.Mutex
	calls map[domain.UserID]int
}

func newRecordNotifier() *recordNotifier {
	return &recordNotifier{calls: make(map[domain.UserID]int)}
}

func (n *recordNotifier) Notify(_ context.Context, user domain.UserID, _, _, _ string, _ map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[user]++
	return nil
}

func (n *recordNotifier) count(user domain.UserID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[user]
}

func mustUser(id string, role domain.Role) *domain.User {
	u, err := domain.NewUser(domain.UserID(id), id, role)
	if err != nil {
		panic(err)
	}
	return u
}
