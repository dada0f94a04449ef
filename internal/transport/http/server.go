package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Mangamer21/Aquadroom-portofoon/internal/config"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/core"
	"github.com/Mangamer21/Aquadroom-portofoon/internal/store"
)

// WSPath is where the websocket endpoint is mounted.
const WSPath = "/ws"

// NewServer builds the HTTP server: the websocket endpoint on a plain mux and
// the read-only REST surface on gin. st may be nil when the session audit is disabled.
func NewServer(hub *core.Hub, st store.SessionStore, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(hub, st, logger)
	api := router.Group("/api")
	{
		api.GET("/channels", apiHandlers.Channels)
		api.GET("/channels/:id", apiHandlers.Channel)
		api.GET("/presence", apiHandlers.Presence)
		api.GET("/stats", apiHandlers.Stats)
		api.GET("/sessions", apiHandlers.Sessions)
		api.GET("/sessions/:id", apiHandlers.Session)
	}

	// The websocket endpoint hijacks the connection itself and must not go
	// through gin's ResponseWriter.
	mux := stdhttp.NewServeMux()
	mux.Handle(WSPath, NewWSHandler(hub, st, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
