package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	store Pinger
	log   *slog.Logger
}

// NewHealthController accepts a nil store for backends without a remote
// dependency.
func NewHealthController(store Pinger, log *slog.Logger) *HealthController {
	return &HealthController{store: store, log: log}
}

func (c *HealthController) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", c.health)
	r.GET("/ready", c.ready)
}

func (c *HealthController) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (c *HealthController) ready(ctx *gin.Context) {
	if c.store != nil {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		if err := c.store.Ping(pingCtx); err != nil {
			c.log.Error("store not ready", "error", err)
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": "store unavailable"})
			return
		}
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}
