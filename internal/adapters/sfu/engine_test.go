package sfu

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sablev/huddle/internal/core"
)

func TestCapsAllow(t *testing.T) {
	cases := []struct {
		name string
		caps string
		mime string
		want bool
	}{
		{"empty accepts anything", ``, webrtc.MimeTypeVP8, true},
		{"no codec list accepts anything", `{"codecs":[]}`, webrtc.MimeTypeOpus, true},
		{"garbage accepts anything", `not json`, webrtc.MimeTypeVP8, true},
		{"listed mime accepted", `{"codecs":[{"mimeType":"video/VP8"}]}`, webrtc.MimeTypeVP8, true},
		{"unlisted mime rejected", `{"codecs":[{"mimeType":"audio/opus"}]}`, webrtc.MimeTypeVP8, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, capsAllow(core.Frame(tc.caps), tc.mime))
		})
	}
}

func TestOutTrackStateTransitions(t *testing.T) {
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", "relay",
	)
	require.NoError(t, err)

	ot := newOutTrack(track)
	assert.Equal(t, trackStateOk, ot.State())

	ot.MarkMuted()
	assert.Equal(t, trackStateMuted, ot.State())

	ot.MarkDelete()
	assert.Equal(t, trackStateDelete, ot.State())
}

func TestRouterCapabilitiesListStaticCodecs(t *testing.T) {
	e := NewEngine(nil)
	r, err := e.CreateRoomIfAbsent(context.Background(), "m1")
	require.NoError(t, err)

	caps := r.RTPCapabilities()
	assert.True(t, capsAllow(caps, webrtc.MimeTypeOpus))
	assert.True(t, capsAllow(caps, webrtc.MimeTypeVP8))
	assert.False(t, capsAllow(caps, webrtc.MimeTypeH264))
}
