package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sablev/huddle/internal/app"
	"github.com/sablev/huddle/internal/config"
	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway authenticates a connection exactly once at open, then runs the
// read/write pumps. Events on one connection dispatch in arrival order;
// different connections run concurrently.
type Gateway struct {
	Resolver    core.IdentityResolver
	Registry    *app.Registry
	Chat        *app.ChatService
	Coordinator *app.Coordinator
	Cfg         *config.Config
}

func NewGateway(resolver core.IdentityResolver, reg *app.Registry, chat *app.ChatService, coord *app.Coordinator, cfg *config.Config) *Gateway {
	return &Gateway{
		Resolver:    resolver,
		Registry:    reg,
		Chat:        chat,
		Coordinator: coord,
		Cfg:         cfg,
	}
}

func credentialFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// HandleConnection is the WS endpoint. A bad credential rejects the
// connection before any registry or coordinator state exists.
func (g *Gateway) HandleConnection(ctx context.Context, c *gin.Context) {
	user, err := g.Resolver.Verify(c.Request.Context(), credentialFrom(c))
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("connection rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth error"})
		return
	}

	wsc, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("ws upgrade")
		return
	}

	connID := core.ConnID(uuid.NewString())
	conn := newWSConn(wsc, 64)
	g.Registry.Register(connID, user, conn)
	log.Info().Str("module", "ws").Str("conn", string(connID)).Str("user", string(user.ID)).Str("role", string(user.Role)).Msg("connection admitted")

	if frame, err := core.Encode(core.EvtInit, map[string]core.ConnID{"connectionId": connID}); err == nil {
		_ = conn.TrySend(frame)
	}

	ctx, cancel := context.WithCancel(ctx)
	go g.writePump(ctx, cancel, conn)
	go g.readPump(ctx, cancel, connID, user, conn)
}

func (g *Gateway) writePump(ctx context.Context, cancel context.CancelFunc, c *wsConn) {
	ticker := time.NewTicker(g.Cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(g.Cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(g.Cfg.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump owns disconnect cleanup. Its defer runs on clean closes and on
// error-caused disconnects alike, synchronously with respect to further
// events on this connection.
func (g *Gateway) readPump(ctx context.Context, cancel context.CancelFunc, connID core.ConnID, user *domain.User, c *wsConn) {
	defer func() {
		log.Info().Str("module", "ws").Str("conn", string(connID)).Msg("connection closing")
		g.Coordinator.DropConnection(connID, user.ID)
		g.Registry.Unregister(connID)
		cancel()
		c.Close()
	}()

	readWindow := g.Cfg.PingPeriod + g.Cfg.WriteTimeout
	c.conn.SetReadLimit(g.Cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(readWindow))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	limiter := rate.NewLimiter(rate.Limit(g.Cfg.EventRate), g.Cfg.EventBurst)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "ws").Str("conn", string(connID)).Msg("readPump read error")
			return
		}
		if !limiter.Allow() {
			g.sendError(c, "rate limited")
			continue
		}
		g.handleEvent(ctx, connID, user, c, core.Frame(data))
	}
}
