package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/learnwire/internal/auth"
	"github.com/vovakirdan/learnwire/internal/config"
	"github.com/vovakirdan/learnwire/internal/core"
	"github.com/vovakirdan/learnwire/internal/store"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Hub      *core.Hub
	Auth     *auth.Service
	Verifier IdentityVerifier
	Users    store.UserStore
}

// NewServer builds the HTTP server: the WebSocket gateway on /ws and the gin
// router for everything else. /ws must not go through gin: its writer refuses
// to hijack once websocket.Accept has written the header.
func NewServer(cfg config.Config, deps Deps, logger *zerolog.Logger) *stdhttp.Server {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps.Hub, deps.Verifier, WSOptions{
		AdmissionTimeout:   cfg.AdmissionTimeout,
		MaxMessageBytes:    cfg.MaxMessageBytes,
		OutboundBuffer:     cfg.OutboundBuffer,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		AllowedOrigins:     cfg.AllowedOrigins,
	}, logger))
	mux.Handle("/", NewRouter(deps, logger))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter wires the health and REST routes onto a gin engine.
func NewRouter(deps Deps, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	health := NewHealthHandlers(deps.Hub)
	router.GET("/health", health.Health)
	router.GET("/stats", health.Stats)

	apiHandlers := NewAPIHandlers(deps.Auth, logger)
	userHandlers := NewUserHandlers(deps.Users, deps.Hub, logger)
	notificationHandlers := NewNotificationHandlers(deps.Hub, logger)

	api := router.Group("/api")
	api.POST("/auth/register", apiHandlers.Register)
	api.POST("/auth/login", apiHandlers.Login)

	authed := api.Group("")
	authed.Use(AuthMiddleware(deps.Verifier, logger))
	authed.GET("/me", userHandlers.Me)
	authed.GET("/users/:id/presence", userHandlers.Presence)
	authed.POST("/notifications", notificationHandlers.Send)

	return router
}
