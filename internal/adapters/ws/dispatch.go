package ws

import (
	"context"
	"errors"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

func (g *Gateway) handleEvent(ctx context.Context, connID core.ConnID, user *domain.User, c *wsConn, data core.Frame) {
	env, err := core.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("conn", string(connID)).Msg("bad frame")
		g.sendError(c, "bad frame")
		return
	}

	switch env.Event {
	case core.EvtJoinThread:
		g.handleJoinThread(ctx, connID, user, c, env.Data)
	case core.EvtLeaveThread:
		g.handleLeaveThread(connID, user, c, env.Data)
	case core.EvtMessage:
		g.handleMessage(ctx, connID, user, c, env.Data)
	case core.EvtStartTyping:
		g.handleTyping(connID, user, c, env.Data, true)
	case core.EvtStopTyping:
		g.handleTyping(connID, user, c, env.Data, false)
	case core.EvtMarkRead:
		g.handleMarkRead(ctx, connID, user, c, env.Data)
	case core.EvtGetOnlineUsers:
		g.handleGetOnlineUsers(user, c)
	case core.EvtOffer:
		g.handleOffer(ctx, user, c, env.Data)
	case core.EvtAnswer:
		g.handleRelay(core.EvtAnswer, user, c, env.Data)
	case core.EvtICECandidate:
		g.handleRelay(core.EvtICECandidate, user, c, env.Data)
	case core.EvtCallEnd:
		g.handleCallEnd(user, c, env.Data)
	case core.EvtGetRTPCapabilities:
		g.handleRTPCapabilities(ctx, user, c, env.Data)
	case core.EvtCreateTransport:
		g.handleCreateTransport(ctx, connID, c, env.Data, core.EvtTransportCreated)
	case core.EvtCreateRecvTransport:
		g.handleCreateTransport(ctx, connID, c, env.Data, core.EvtRecvTransportCreated)
	case core.EvtConnectTransport, core.EvtConnectRecvTransport:
		g.handleConnectTransport(connID, c, env.Data)
	case core.EvtProduce:
		g.handleProduce(ctx, connID, c, env.Data)
	case core.EvtConsume:
		g.handleConsume(ctx, connID, c, env.Data)
	default:
		log.Warn().Str("module", "ws").Str("event", env.Event).Msg("unknown event")
		g.sendError(c, "unknown event")
	}
}

// sendError emits the single user-visible error event. Other parties never
// see anything for an operation that failed before its broadcast step.
func (g *Gateway) sendError(c *wsConn, message string) {
	frame, err := core.Encode(core.EvtError, map[string]string{"message": message})
	if err != nil {
		return
	}
	_ = c.TrySend(frame)
}

// emitErr maps the error taxonomy onto a wire message.
func (g *Gateway) emitErr(c *wsConn, err error) {
	switch {
	case errors.Is(err, domain.ErrAccessDenied):
		g.sendError(c, "access denied")
	case errors.Is(err, domain.ErrNotFound):
		g.sendError(c, "not found")
	case errors.Is(err, domain.ErrResource):
		g.sendError(c, "signaling failed")
	case errors.Is(err, domain.ErrStore):
		g.sendError(c, "temporarily unavailable")
	default:
		g.sendError(c, "operation failed")
	}
}

func (g *Gateway) reply(c *wsConn, event string, data any) {
	frame, err := core.Encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("event", event).Msg("encode reply")
		return
	}
	_ = c.TrySend(frame)
}

func decode[T any](data json.RawMessage) (T, bool) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}
