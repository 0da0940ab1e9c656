package sfu

import (
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

// transport wraps one peer connection. It carries both directions: remote
// tracks arrive here for producers, local static tracks are attached here
// for consumers.
type transport struct {
	id      string
	meeting domain.MeetingID
	pc      *webrtc.PeerConnection

	mu        sync.Mutex
	closed    bool
	waiters   map[domain.CallKind][]chan *webrtc.TrackRemote
	arrived   map[domain.CallKind]*webrtc.TrackRemote
	onceClose sync.Once
}

var _ core.Transport = (*transport)(nil)

func newTransport(cfg webrtc.Configuration, meeting domain.MeetingID) (*transport, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	t := &transport{
		id:      uuid.NewString(),
		meeting: meeting,
		pc:      pc,
		waiters: make(map[domain.CallKind][]chan *webrtc.TrackRemote),
		arrived: make(map[domain.CallKind]*webrtc.TrackRemote),
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t.deliverTrack(track)
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "sfu").Str("transport", t.id).Str("state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed {
			_ = t.Close()
		}
	})
	return t, nil
}

func (t *transport) ID() string { return t.id }

// Descriptor returns what the client needs on the wire: the transport id
// and, once connected, the local SDP answer.
func (t *transport) Descriptor() core.Frame {
	desc := map[string]any{"id": t.id}
	if local := t.pc.LocalDescription(); local != nil {
		desc["sdp"] = local.SDP
		desc["type"] = local.Type.String()
	}
	b, err := json.Marshal(desc)
	if err != nil {
		return core.Frame(fmt.Sprintf(`{"id":%q}`, t.id))
	}
	return core.Frame(b)
}

// Connect applies the client's parameters: an SDP offer. The answer waits
// for gathering to complete so the descriptor carries usable candidates.
func (t *transport) Connect(params core.Frame) error {
	var p struct {
		SDP string `json:"sdp"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.SDP == "" {
		return fmt.Errorf("bad transport parameters")
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: p.SDP}
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return err
	}
	<-gatherComplete
	return nil
}

func (t *transport) Close() error {
	var err error
	t.onceClose.Do(func() {
		t.mu.Lock()
		t.closed = true
		for _, chans := range t.waiters {
			for _, ch := range chans {
				close(ch)
			}
		}
		t.waiters = make(map[domain.CallKind][]chan *webrtc.TrackRemote)
		t.mu.Unlock()
		err = t.pc.Close()
	})
	return err
}

func kindOf(track *webrtc.TrackRemote) domain.CallKind {
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		return domain.CallVideo
	}
	return domain.CallAudio
}

func (t *transport) deliverTrack(track *webrtc.TrackRemote) {
	kind := kindOf(track)
	t.mu.Lock()
	t.arrived[kind] = track
	chans := t.waiters[kind]
	t.waiters[kind] = nil
	t.mu.Unlock()
	for _, ch := range chans {
		ch <- track
		close(ch)
	}
}

// awaitTrack returns a channel that yields the remote track of the given
// kind, immediately if it already arrived. The channel is closed without a
// value when the transport closes first.
func (t *transport) awaitTrack(kind domain.CallKind) <-chan *webrtc.TrackRemote {
	ch := make(chan *webrtc.TrackRemote, 1)
	t.mu.Lock()
	if track, ok := t.arrived[kind]; ok {
		t.mu.Unlock()
		ch <- track
		close(ch)
		return ch
	}
	if t.closed {
		t.mu.Unlock()
		close(ch)
		return ch
	}
	t.waiters[kind] = append(t.waiters[kind], ch)
	t.mu.Unlock()
	return ch
}
