package ws

import (
	"context"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

type threadPayload struct {
	ThreadID domain.ThreadID `json:"threadId"`
}

func (g *Gateway) handleJoinThread(ctx context.Context, connID core.ConnID, user *domain.User, c *wsConn, data json.RawMessage) {
	p, ok := decode[threadPayload](data)
	if !ok || p.ThreadID == "" {
		g.sendError(c, "bad payload")
		return
	}
	if err := g.Chat.JoinThread(ctx, user, connID, p.ThreadID); err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("user", string(user.ID)).Str("thread", string(p.ThreadID)).Msg("join thread")
		g.emitErr(c, err)
	}
}

func (g *Gateway) handleLeaveThread(connID core.ConnID, user *domain.User, c *wsConn, data json.RawMessage) {
	p, ok := decode[threadPayload](data)
	if !ok || p.ThreadID == "" {
		g.sendError(c, "bad payload")
		return
	}
	g.Chat.LeaveThread(user, connID, p.ThreadID)
}

func (g *Gateway) handleMessage(ctx context.Context, connID core.ConnID, user *domain.User, c *wsConn, data json.RawMessage) {
	p, ok := decode[struct {
		ThreadID domain.ThreadID `json:"threadId"`
		Text     string          `json:"text"`
	}](data)
	if !ok || p.ThreadID == "" || p.Text == "" {
		g.sendError(c, "bad payload")
		return
	}
	if _, err := g.Chat.SendMessage(ctx, user, connID, p.ThreadID, p.Text); err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("user", string(user.ID)).Str("thread", string(p.ThreadID)).Msg("send message")
		g.emitErr(c, err)
	}
}

func (g *Gateway) handleTyping(connID core.ConnID, user *domain.User, c *wsConn, data json.RawMessage, start bool) {
	p, ok := decode[threadPayload](data)
	if !ok || p.ThreadID == "" {
		g.sendError(c, "bad payload")
		return
	}
	g.Chat.Typing(user, connID, p.ThreadID, start)
}

func (g *Gateway) handleMarkRead(ctx context.Context, connID core.ConnID, user *domain.User, c *wsConn, data json.RawMessage) {
	p, ok := decode[threadPayload](data)
	if !ok || p.ThreadID == "" {
		g.sendError(c, "bad payload")
		return
	}
	if err := g.Chat.MarkRead(ctx, user, connID, p.ThreadID); err != nil {
		g.emitErr(c, err)
	}
}

func (g *Gateway) handleGetOnlineUsers(user *domain.User, c *wsConn) {
	role := user.Role.Opposite()
	g.reply(c, core.EvtOnlineUsers, map[string]any{
		"role":    role,
		"userIds": g.Registry.OnlineUsers(role),
	})
}
