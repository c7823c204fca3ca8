package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/talkwire/talkwire-server/internal/auth"
	"github.com/talkwire/talkwire-server/internal/config"
	"github.com/talkwire/talkwire-server/internal/core"
	"github.com/talkwire/talkwire-server/internal/store"
)

// NewServer builds the HTTP server: REST API plus the WebSocket endpoint.
func NewServer(hub *core.Hub, st store.Store, authService *auth.Service, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	api := NewAPIHandlers(authService, logger)
	conversations := NewConversationHandlers(st, logger)

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	router.POST("/api/register", api.Register)
	router.POST("/api/login", api.Login)

	authorized := router.Group("/api", AuthMiddleware(authService, logger))
	authorized.GET("/conversations", conversations.List)
	authorized.POST("/conversations", conversations.Create)
	authorized.GET("/conversations/:id/messages", conversations.Messages)

	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, st, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
