package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer builds the status/control HTTP server.
func NewServer(addr string, h *Handlers, metrics http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(h, metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// NewRouter registers every route on a fresh gin engine
func NewRouter(h *Handlers, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", h.Health)
	router.GET("/status", h.Status)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	api := router.Group("/api")
	{
		api.GET("/watchlist", h.ListWatchlist)
		api.POST("/watchlist", h.AddSymbols)
		api.DELETE("/watchlist/:symbol", h.RemoveSymbol)
		api.POST("/watchlist/:symbol/favorite", h.ToggleFavorite)
		api.POST("/reconnect", h.Reconnect)
		api.POST("/disconnect", h.Disconnect)
		api.POST("/messages", h.SendMessage)
		api.GET("/settings", h.ListSettings)
		api.PUT("/settings/:key", h.UpdateSetting)
	}

	return router
}

// requestLogger logs one line per request at debug level
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)))
	}
}
