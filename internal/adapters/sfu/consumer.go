package sfu

import (
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/sablev/huddle/internal/core"
)

type trackState int32

const (
	trackStateOk trackState = iota
	trackStateMuted
	trackStateDelete
)

// outTrack is one outgoing track to a subscriber. The relay loop checks the
// state flag before every write, so marking delete detaches it without
// locking the hot path.
type outTrack struct {
	track *webrtc.TrackLocalStaticRTP
	state atomic.Int32
}

func newOutTrack(track *webrtc.TrackLocalStaticRTP) *outTrack {
	return &outTrack{track: track}
}

func (ot *outTrack) State() trackState { return trackState(ot.state.Load()) }
func (ot *outTrack) MarkMuted()        { ot.state.Store(int32(trackStateMuted)) }
func (ot *outTrack) MarkDelete()       { ot.state.Store(int32(trackStateDelete)) }

// consumer mirrors one producer's media onto a subscriber's transport.
type consumer struct {
	id     string
	prod   *producer
	sub    *transport
	sender *webrtc.RTPSender
	ot     *outTrack
	once   sync.Once
}

var _ core.Consumer = (*consumer)(nil)

func newConsumer(sub *transport, prod *producer, codec webrtc.RTPCodecCapability) (*consumer, error) {
	id := uuid.NewString()
	local, err := webrtc.NewTrackLocalStaticRTP(codec, string(prod.kind), prod.id)
	if err != nil {
		return nil, err
	}
	sender, err := sub.pc.AddTrack(local)
	if err != nil {
		return nil, err
	}
	c := &consumer{
		id:     id,
		prod:   prod,
		sub:    sub,
		sender: sender,
		ot:     newOutTrack(local),
	}
	if !prod.addOut(id, c.ot) {
		// Producer closed between negotiation and attach.
		_ = sub.pc.RemoveTrack(sender)
		return nil, nil
	}
	return c, nil
}

func (c *consumer) ID() string { return c.id }

func (c *consumer) Descriptor() core.Frame {
	b, err := json.Marshal(map[string]any{
		"id":         c.id,
		"producerId": c.prod.id,
		"kind":       c.prod.kind,
	})
	if err != nil {
		return core.Frame(`{}`)
	}
	return core.Frame(b)
}

func (c *consumer) Close() error {
	var err error
	c.once.Do(func() {
		c.prod.removeOut(c.id)
		err = c.sub.pc.RemoveTrack(c.sender)
	})
	return err
}
