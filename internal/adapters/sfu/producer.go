package sfu

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

// producer relays RTP from the remote track of its transport to every
// subscribed out-track. The relay loop starts as soon as the remote track
// arrives and stops when the track errors or the producer closes.
type producer struct {
	id   string
	kind domain.CallKind
	src  *transport

	mu      sync.RWMutex
	out     map[string]*outTrack
	closed  bool
	srcCaps *webrtc.RTPCodecCapability

	stop chan struct{}
	once sync.Once
}

var _ core.Producer = (*producer)(nil)

func newProducer(src *transport, kind domain.CallKind) *producer {
	p := &producer{
		id:   uuid.NewString(),
		kind: kind,
		src:  src,
		out:  make(map[string]*outTrack),
		stop: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *producer) ID() string            { return p.id }
func (p *producer) Kind() domain.CallKind { return p.kind }

// codec reports the negotiated capability, falling back to the default for
// the kind while the remote track has not arrived yet.
func (p *producer) codec() webrtc.RTPCodecCapability {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.srcCaps != nil {
		return *p.srcCaps
	}
	if p.kind == domain.CallVideo {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
}

func (p *producer) run() {
	var track *webrtc.TrackRemote
	select {
	case <-p.stop:
		return
	case t, ok := <-p.src.awaitTrack(p.kind):
		if !ok || t == nil {
			return
		}
		track = t
	}

	caps := track.Codec().RTPCodecCapability
	p.mu.Lock()
	p.srcCaps = &caps
	p.mu.Unlock()

	logger := log.With().Str("module", "sfu").Str("producer", p.id).Logger()
	logger.Info().Str("kind", string(p.kind)).Msg("relay started")

	for {
		select {
		case <-p.stop:
			p.markAllDelete()
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("relay source ended")
			p.markAllDelete()
			return
		}
		p.forward(pkt, &logger)
	}
}

func (p *producer) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	p.mu.RLock()
	snapshot := make(map[string]*outTrack, len(p.out))
	for id, ot := range p.out {
		snapshot[id] = ot
	}
	p.mu.RUnlock()

	var dirty []string
	for id, ot := range snapshot {
		switch ot.State() {
		case trackStateDelete:
			dirty = append(dirty, id)
		case trackStateOk:
			if err := ot.track.WriteRTP(pkt); err != nil {
				logger.Error().Err(err).Str("consumer", id).Msg("relay write failed, dropping out-track")
				ot.MarkDelete()
				dirty = append(dirty, id)
			}
		}
	}
	if len(dirty) > 0 {
		p.mu.Lock()
		for _, id := range dirty {
			delete(p.out, id)
		}
		p.mu.Unlock()
	}
}

func (p *producer) addOut(id string, ot *outTrack) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.out[id] = ot
	return true
}

func (p *producer) removeOut(id string) {
	p.mu.Lock()
	if ot, ok := p.out[id]; ok {
		ot.MarkDelete()
		delete(p.out, id)
	}
	p.mu.Unlock()
}

func (p *producer) markAllDelete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ot := range p.out {
		ot.MarkDelete()
	}
}

func (p *producer) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.stop)
		p.markAllDelete()
	})
	return nil
}
