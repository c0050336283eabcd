package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dmaksimov/beatlink-server/internal/auth"
	"github.com/dmaksimov/beatlink-server/internal/config"
	"github.com/dmaksimov/beatlink-server/internal/multiplayer"
	"github.com/dmaksimov/beatlink-server/internal/store"
)

// NewServer wires the gin router and returns the HTTP server.
func NewServer(hub *multiplayer.Hub, registry *GroupRegistry, jwtCfg *auth.JWTConfig, db store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	api := NewAPIHandlers(db, jwtCfg, logger)
	ws := NewWSHandler(hub, registry, jwtCfg, logger)

	router.GET("/healthz", api.Healthz)
	router.POST("/api/token", api.IssueToken)

	authed := router.Group("/api", AuthMiddleware(jwtCfg, logger))
	authed.GET("/rooms/:id", api.GetRoom)

	router.GET("/ws", ws.Handle)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func contextWithTimeout(c *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), d)
}
