// Package httpapi exposes a small, read-only operational surface
// alongside the TCP lobby protocol: a health check and a snapshot of the
// open lobbies, for dashboards and liveness probes. It never mutates the
// registry.
package httpapi

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/openrts/masterserver/internal/core"
)

// NewServer builds the operational HTTP server bound to addr.
func NewServer(addr string, registry *core.Registry, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(loggerMiddleware(logger), gin.Recovery())

	router.GET("/health", healthHandler)
	router.GET("/debug/games", gamesHandler(registry))

	return &stdhttp.Server{
		Addr:    addr,
		Handler: router,
	}
}

func healthHandler(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, gin.H{"status": "ok"})
}

func gamesHandler(registry *core.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, gin.H{"games": registry.GameList()})
	}
}

func loggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
