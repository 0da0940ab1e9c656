// Package sfu implements core.MediaEngine on pion/webrtc: one peer
// connection per participant, RTP relayed from remote tracks to local
// static tracks without transcoding.
package sfu

import (
	"context"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

type engineRoom struct {
	mu         sync.Mutex
	closed     bool
	transports map[string]*transport
}

type Engine struct {
	cfg webrtc.Configuration

	mu    sync.Mutex
	rooms map[domain.MeetingID]*engineRoom
}

var _ core.MediaEngine = (*Engine)(nil)

func NewEngine(stunServers []string) *Engine {
	cfg := webrtc.Configuration{}
	if len(stunServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}
	return &Engine{
		cfg:   cfg,
		rooms: make(map[domain.MeetingID]*engineRoom),
	}
}

// capabilities is the codec set every room advertises. Relaying is
// codec-agnostic beyond matching mime types, so the set is static.
var capabilities = []webrtc.RTPCodecCapability{
	{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
	{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
}

func (e *Engine) CreateRoomIfAbsent(_ context.Context, meeting domain.MeetingID) (core.Router, error) {
	e.mu.Lock()
	if _, ok := e.rooms[meeting]; !ok {
		e.rooms[meeting] = &engineRoom{transports: make(map[string]*transport)}
		log.Info().Str("module", "sfu").Str("meeting", string(meeting)).Msg("engine room created")
	}
	e.mu.Unlock()
	return &router{engine: e, meeting: meeting}, nil
}

func (e *Engine) room(meeting domain.MeetingID) (*engineRoom, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	room, ok := e.rooms[meeting]
	return room, ok
}

func (e *Engine) CreateTransport(_ context.Context, meeting domain.MeetingID) (core.Transport, error) {
	room, ok := e.room(meeting)
	if !ok {
		return nil, domain.ErrNotFound
	}
	t, err := newTransport(e.cfg, meeting)
	if err != nil {
		return nil, err
	}
	room.mu.Lock()
	if room.closed {
		room.mu.Unlock()
		t.Close()
		return nil, domain.ErrNotFound
	}
	room.transports[t.id] = t
	room.mu.Unlock()
	return t, nil
}

func (e *Engine) Produce(_ context.Context, t core.Transport, kind domain.CallKind, _ core.Frame) (core.Producer, error) {
	tr, ok := t.(*transport)
	if !ok {
		return nil, domain.ErrResource
	}
	return newProducer(tr, kind), nil
}

// Consume attaches a local static track mirroring the producer's media to
// the subscriber's transport. A capability set that does not cover the
// producer's codec yields (nil, nil): no media to relay, not an error.
func (e *Engine) Consume(_ context.Context, t core.Transport, p core.Producer, caps core.Frame) (core.Consumer, error) {
	tr, ok := t.(*transport)
	if !ok {
		return nil, domain.ErrResource
	}
	prod, ok := p.(*producer)
	if !ok {
		return nil, domain.ErrResource
	}
	codec := prod.codec()
	if !capsAllow(caps, codec.MimeType) {
		return nil, nil
	}
	c, err := newConsumer(tr, prod, codec)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	return c, nil
}

func (e *Engine) CloseRoom(meeting domain.MeetingID) error {
	e.mu.Lock()
	room, ok := e.rooms[meeting]
	if ok {
		delete(e.rooms, meeting)
	}
	e.mu.Unlock()
	if !ok {
		return nil
	}

	room.mu.Lock()
	room.closed = true
	transports := make([]*transport, 0, len(room.transports))
	for _, t := range room.transports {
		transports = append(transports, t)
	}
	room.transports = make(map[string]*transport)
	room.mu.Unlock()

	for _, t := range transports {
		if err := t.Close(); err != nil {
			log.Error().Err(err).Str("module", "sfu").Str("meeting", string(meeting)).Msg("close transport")
		}
	}
	log.Info().Str("module", "sfu").Str("meeting", string(meeting)).Msg("engine room closed")
	return nil
}

// router is the per-meeting handle the coordinator stores.
type router struct {
	engine  *Engine
	meeting domain.MeetingID
}

func (r *router) RTPCapabilities() core.Frame {
	b, err := json.Marshal(map[string]any{"codecs": capabilities})
	if err != nil {
		return core.Frame(`{"codecs":[]}`)
	}
	return core.Frame(b)
}

func (r *router) Close() error {
	return r.engine.CloseRoom(r.meeting)
}

// capsAllow checks a client capability set against a mime type. An empty or
// unparseable set means "accept anything".
func capsAllow(caps core.Frame, mimeType string) bool {
	if len(caps) == 0 {
		return true
	}
	var parsed struct {
		Codecs []struct {
			MimeType string `json:"mimeType"`
		} `json:"codecs"`
	}
	if err := json.Unmarshal(caps, &parsed); err != nil || len(parsed.Codecs) == 0 {
		return true
	}
	for _, c := range parsed.Codecs {
		if c.MimeType == mimeType {
			return true
		}
	}
	return false
}
