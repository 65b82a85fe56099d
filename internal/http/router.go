// Package httpapi wires the operational HTTP surface (Gin) of the bot. The
// user-facing transport is Telegram; this server only exposes liveness,
// readiness, and Prometheus metrics for the deployment around it.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/ddanshin/go-homework-bot/internal/config"
	"github.com/ddanshin/go-homework-bot/internal/http/middleware"
)

// RegisterRoutes attaches middleware and the ops endpoints to the given Gin
// engine.
//
// Observe runs before Recovery so recovered panics still produce an access
// log line and a metrics sample.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(middleware.Observe())
	r.Use(middleware.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Liveness: the process is up.
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: the database answers.
	r.GET("/readyz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "message": "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"code": "method_not_allowed", "message": "method not allowed"})
	})
}

// NewServer builds the ops HTTP server with the configured timeouts.
func NewServer(r *gin.Engine, cfg config.Config) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
