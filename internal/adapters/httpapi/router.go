// Package httpapi wires the gin router: the WS endpoint plus a small
// read-only REST surface over presence and call sessions.
package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/sablev/huddle/internal/adapters/ws"
	"github.com/sablev/huddle/internal/app"
	"github.com/sablev/huddle/internal/config"
	"github.com/sablev/huddle/internal/core"
	"github.com/sablev/huddle/internal/domain"
)

func SetupRouter(ctx context.Context, cfg *config.Config, gw *ws.Gateway, reg *app.Registry, coord *app.Coordinator, store core.ThreadStore) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// GET /api/online?role=USER returns an advisory presence snapshot.
	api.GET("/online", func(c *gin.Context) {
		role := domain.Role(c.DefaultQuery("role", string(domain.RoleUser)))
		if !role.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"role":    role,
			"userIds": reg.OnlineUsers(role),
		})
	})

	// GET /api/sessions lists active call sessions.
	api.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": coord.Sessions.Snapshot()})
	})

	// GET /api/threads/:id/messages?page=0&pageSize=20
	api.GET("/threads/:id/messages", func(c *gin.Context) {
		threadID := domain.ThreadID(c.Param("id"))
		page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
		msgs, err := store.PaginateMessages(c.Request.Context(), threadID, page, pageSize)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"threadId": threadID, "messages": msgs})
	})

	// GET /api/threads/:id/unread?user= returns the badge count.
	api.GET("/threads/:id/unread", func(c *gin.Context) {
		threadID := domain.ThreadID(c.Param("id"))
		user := domain.UserID(c.Query("user"))
		if user == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "user required"})
			return
		}
		count, err := store.UnreadCount(c.Request.Context(), threadID, user)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"threadId": threadID, "user": user, "unread": count})
	})

	api.GET("/ws", func(c *gin.Context) {
		gw.HandleConnection(ctx, c)
	})

	log.Info().Str("module", "httpapi").Msg("router setup")
	return r
}
