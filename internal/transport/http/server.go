package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatline/chatline-server/internal/auth"
	"github.com/chatline/chatline-server/internal/config"
	"github.com/chatline/chatline-server/internal/core"
	"github.com/chatline/chatline-server/internal/metrics"
	"github.com/chatline/chatline-server/internal/store"
)

// NewServer builds the HTTP server: REST API, websocket endpoint, health,
// and metrics.
func NewServer(engine *core.Engine, registry *core.Registry, clients *ClientTable, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	apiHandlers := NewAPIHandlers(authService, logger)
	roomHandlers := NewRoomHandlers(st, registry, logger)
	userHandlers := NewUserHandlers(st, logger)
	messageHandlers := NewMessageHandlers(st, engine, cfg.HistoryLimit, logger)

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	router.POST("/api/register", apiHandlers.Register)
	router.POST("/api/login", apiHandlers.Login)

	authed := router.Group("/api", AuthMiddleware(authService, logger))
	authed.POST("/rooms", roomHandlers.CreateRoom)
	authed.GET("/rooms", roomHandlers.ListRooms)
	authed.GET("/rooms/:id", roomHandlers.GetRoom)
	authed.GET("/rooms/:id/messages", messageHandlers.ListRoomMessages)
	authed.GET("/users", userHandlers.ListUsers)
	authed.GET("/users/:id", userHandlers.GetUser)
	authed.PUT("/users/:id", userHandlers.UpdateUser)
	authed.DELETE("/users/:id", userHandlers.DeleteUser)
	authed.PUT("/messages/:id", messageHandlers.UpdateMessage)
	authed.DELETE("/messages/:id", messageHandlers.DeleteMessage)

	router.GET("/ws", gin.WrapH(NewWSHandler(engine, registry, clients, authService, st, cfg, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
