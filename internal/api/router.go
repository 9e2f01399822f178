package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"greendrake/chat/internal/api/handlers"
	"greendrake/chat/internal/api/middleware"
	"greendrake/chat/internal/auth"
	"greendrake/chat/internal/config"
	"greendrake/chat/internal/email"
	"greendrake/chat/internal/logging"
	"greendrake/chat/internal/realtime"
	"greendrake/chat/internal/services"
	"greendrake/chat/internal/storage"
)

// Deps are the long-lived components the public router needs. Storage may be nil
// when attachment uploads are not configured.
type Deps struct {
	Chat    services.IChatService
	Hub     *realtime.Hub
	Emitter realtime.Emitter
	Gateway *auth.Gateway
	Limiter *middleware.SendLimiter
	Storage storage.IS3Storage
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	r := gin.New()

	// Apply global middleware first (order matters)
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORSMiddleware(cfg.CorsAllowedOrigin))

	restThreadHandler := handlers.NewRestThreadHandler(deps.Chat, deps.Storage)
	socketHandler := handlers.NewSocketHandler(cfg, deps.Hub, deps.Emitter, deps.Chat, deps.Gateway, deps.Limiter)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// The handshake resolves its own credential so it can accept ?token=
		v1.GET("/ws", socketHandler.ServeWS)

		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(deps.Gateway))
		{
			authRequired.POST("/threads", restThreadHandler.OpenThread)
			authRequired.GET("/threads", restThreadHandler.ListThreads)
			authRequired.GET("/threads/:id", restThreadHandler.GetThread)
			authRequired.GET("/threads/:id/messages", restThreadHandler.ListMessages)
			authRequired.POST("/threads/:id/messages", deps.Limiter.Limit(), restThreadHandler.SendMessage)
			authRequired.DELETE("/threads/:id/messages/:messageId", restThreadHandler.DeleteMessage)
			authRequired.POST("/threads/:id/read", restThreadHandler.MarkRead)
			authRequired.POST("/threads/:id/delivered", restThreadHandler.MarkDelivered)
			authRequired.POST("/threads/:id/attachments", restThreadHandler.CreateAttachmentUpload)
			authRequired.GET("/unread-count", restThreadHandler.UnreadCount)
		}
	}

	return r
}

const (
	testEmailPolls    = 10
	testEmailInterval = 200 * time.Millisecond
)

// SetupServiceRouter configures the internal service engine: metrics, health,
// and the test-support JSON API. rdb may be nil, in which case getTestEmail
// reports that no mock mailbox is available.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		if rdb != nil {
			if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "redis unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": cfg.RunMode})
	})

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			logging.Info().Msg("shutdown requested via service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				logging.Warn().Msg("shutdown already signalled")
			}
		case "getTestEmail":
			getTestEmail(c, rdb, req.Arguments)
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}

// getTestEmail polls the mock mailbox for [kind, address] and consumes the entry.
func getTestEmail(c *gin.Context, rdb *redis.Client, rawArgs json.RawMessage) {
	var args []string
	if err := json.Unmarshal(rawArgs, &args); err != nil || len(args) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [kind, email]"})
		return
	}
	if rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Mock mailbox not available"})
		return
	}
	kind, to := args[0], args[1]
	key := email.MockEmailKey(to, kind)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	for i := 0; i < testEmailPolls; i++ {
		msg, err := email.GetMockEmail(ctx, rdb, to, kind)
		if err == nil {
			rdb.Del(ctx, key)
			c.JSON(http.StatusOK, gin.H{"success": true, "data": msg})
			return
		}
		if !errors.Is(err, redis.Nil) {
			logging.Error().Err(err).Str("key", key).Msg("service API: reading mock email failed")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
			return
		}

		select {
		case <-ctx.Done():
			i = testEmailPolls
		case <-time.After(testEmailInterval):
		}
	}

	c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found for key %s", key)})
}
