package ws

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

func (g *Gateway) handleOffer(ctx context.Context, user *domain.User, c *wsConn, data json.RawMessage) {
	p, ok := decode[struct {
		To       domain.UserID   `json:"to"`
		ThreadID domain.ThreadID `json:"threadId"`
		Type     domain.CallKind `json:"type"`
	}](data)
	if !ok || p.To == "" || p.ThreadID == "" {
		g.sendError(c, "bad payload")
		return
	}
	if err := g.Coordinator.Offer(ctx, user, p.To, p.ThreadID, p.Type, data); err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("thread", string(p.ThreadID)).Msg("offer")
		g.emitErr(c, err)
	}
}

func (g *Gateway) handleRelay(event string, user *domain.User, c *wsConn, data json.RawMessage) {
	p, ok := decode[struct {
		To domain.UserID `json:"to"`
	}](data)
	if !ok || p.To == "" {
		g.sendError(c, "bad payload")
		return
	}
	if err := g.Coordinator.Relay(event, user, p.To, data); err != nil {
		g.emitErr(c, err)
	}
}

func (g *Gateway) handleCallEnd(user *domain.User, c *wsConn, data json.RawMessage) {
	p, ok := decode[struct {
		ThreadID  domain.ThreadID  `json:"threadId"`
		MeetingID domain.MeetingID `json:"meetingId"`
	}](data)
	if !ok {
		g.sendError(c, "bad payload")
		return
	}
	threadID := p.ThreadID
	if threadID == "" {
		threadID = domain.ThreadID(p.MeetingID)
	}
	if threadID == "" {
		g.sendError(c, "bad payload")
		return
	}
	sess, ok := g.Coordinator.Sessions.Get(threadID)
	if !ok {
		g.emitErr(c, domain.ErrNotFound)
		return
	}
	if _, in := sess.Participants[user.ID]; !in {
		g.emitErr(c, domain.ErrAccessDenied)
		return
	}
	g.Coordinator.EndCall(threadID)
}

// meetingPayload addresses a media-negotiation event. threadId selects the
// meeting when per-thread rooms are enabled; the shared room needs none.
type meetingPayload struct {
	ThreadID domain.ThreadID `json:"threadId"`
}

func (g *Gateway) threadForMedia(p meetingPayload, c *wsConn) (domain.ThreadID, bool) {
	if p.ThreadID == "" && g.Coordinator.PerThreadRooms {
		g.sendError(c, "bad payload")
		return "", false
	}
	return p.ThreadID, true
}

func (g *Gateway) handleRTPCapabilities(ctx context.Context, user *domain.User, c *wsConn, data json.RawMessage) {
	p, _ := decode[meetingPayload](data)
	threadID, ok := g.threadForMedia(p, c)
	if !ok {
		return
	}
	caps, err := g.Coordinator.RTPCapabilities(ctx, threadID)
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("user", string(user.ID)).Msg("rtp capabilities")
		g.emitErr(c, err)
		return
	}
	g.reply(c, core.EvtRTPCapabilities, json.RawMessage(caps))
}

func (g *Gateway) handleCreateTransport(ctx context.Context, connID core.ConnID, c *wsConn, data json.RawMessage, replyEvent string) {
	p, _ := decode[meetingPayload](data)
	threadID, ok := g.threadForMedia(p, c)
	if !ok {
		return
	}
	t, err := g.Coordinator.EnsureTransport(ctx, threadID, connID)
	if err != nil {
		g.emitErr(c, err)
		return
	}
	g.reply(c, replyEvent, json.RawMessage(t.Descriptor()))
}

func (g *Gateway) handleConnectTransport(connID core.ConnID, c *wsConn, data json.RawMessage) {
	p, _ := decode[meetingPayload](data)
	threadID, ok := g.threadForMedia(p, c)
	if !ok {
		return
	}
	t, err := g.Coordinator.ConnectTransport(threadID, connID, core.Frame(data))
	if err != nil {
		g.emitErr(c, err)
		return
	}
	g.reply(c, core.EvtTransportConnected, json.RawMessage(t.Descriptor()))
}

func (g *Gateway) handleProduce(ctx context.Context, connID core.ConnID, c *wsConn, data json.RawMessage) {
	p, ok := decode[struct {
		meetingPayload
		Kind domain.CallKind `json:"kind"`
	}](data)
	if !ok || !p.Kind.Valid() {
		g.sendError(c, "bad payload")
		return
	}
	threadID, ok := g.threadForMedia(p.meetingPayload, c)
	if !ok {
		return
	}
	prod, err := g.Coordinator.Produce(ctx, threadID, connID, p.Kind, core.Frame(data))
	if err != nil {
		g.emitErr(c, err)
		return
	}
	g.reply(c, core.EvtProduced, map[string]string{"id": prod.ID()})
}

func (g *Gateway) handleConsume(ctx context.Context, connID core.ConnID, c *wsConn, data json.RawMessage) {
	p, ok := decode[struct {
		meetingPayload
		RTPCapabilities json.RawMessage `json:"rtpCapabilities"`
	}](data)
	if !ok {
		g.sendError(c, "bad payload")
		return
	}
	threadID, ok := g.threadForMedia(p.meetingPayload, c)
	if !ok {
		return
	}
	descriptors, err := g.Coordinator.ConsumeAll(ctx, threadID, connID, core.Frame(p.RTPCapabilities))
	if err != nil {
		g.emitErr(c, err)
		return
	}
	out := make([]json.RawMessage, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, json.RawMessage(d))
	}
	g.reply(c, core.EvtConsumed, map[string]any{"consumers": out})
}
