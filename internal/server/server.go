package server

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BatmanBruc/bat-bot-referral/internal/config"
)

type Controller interface {
	RegisterRoutes(router *gin.Engine)
}

func NewRouter(log *slog.Logger, requestLogging bool, controllers ...Controller) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), RecoveryLogger(log))
	if requestLogging {
		router.Use(RequestLogger(log))
	}
	for _, controller := range controllers {
		controller.RegisterRoutes(router)
	}
	return router
}

func NewHTTPServer(cfg config.HTTPConfig, log *slog.Logger, controllers ...Controller) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	return &http.Server{
		Handler:           NewRouter(log, cfg.RequestLogging, controllers...),
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
