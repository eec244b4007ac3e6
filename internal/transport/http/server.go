package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/olegsharov/converse-server/internal/auth"
	"github.com/olegsharov/converse-server/internal/config"
	"github.com/olegsharov/converse-server/internal/core"
	"github.com/olegsharov/converse-server/internal/observability"
	"github.com/olegsharov/converse-server/internal/store"
)

// NewServer assembles the HTTP surface: health and metrics endpoints, the
// REST API and the WebSocket entry point. The stop channel ends background
// workers like the rate limiter reset loop.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg config.Config, logger *zerolog.Logger, stop <-chan struct{}) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))
	r.Use(observability.HTTPMetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := NewAPI(authService, st, logger)

	limiter := newRateLimiter(cfg.AuthRateLimit)
	limiter.startReset(stop)

	public := r.Group("/api")
	public.POST("/register", limiter.middleware(), api.register)
	public.POST("/login", limiter.middleware(), api.login)

	authed := r.Group("/api")
	authed.Use(AuthMiddleware(authService, logger))
	authed.GET("/identities/search", api.searchIdentities)
	authed.POST("/rooms", api.createRoom)
	authed.GET("/rooms", api.listRooms)
	authed.POST("/rooms/:id/members", api.addRoomMember)
	authed.GET("/rooms/:id/messages", api.listRoomMessages)
	authed.POST("/conversations", api.createConversation)
	authed.GET("/conversations", api.listConversations)
	authed.GET("/conversations/:id/messages", api.listConversationMessages)

	r.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
