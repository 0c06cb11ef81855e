package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BatmanBruc/bat-bot-referral/internal/referral"
)

type CallbackProcessor interface {
	HandleCallback(ctx context.Context, body []byte, signature string) (*referral.Result, error)
}

type CallbackController struct {
	processor    CallbackProcessor
	maxBodyBytes int64
	log          *slog.Logger
}

func NewCallbackController(processor CallbackProcessor, maxBodyBytes int64, log *slog.Logger) *CallbackController {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 64 << 10
	}
	return &CallbackController{processor: processor, maxBodyBytes: maxBodyBytes, log: log}
}

func (c *CallbackController) RegisterRoutes(router *gin.Engine) {
	router.POST("/offers/callback", c.handleCallback)
}

func (c *CallbackController) handleCallback(ctx *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ctx.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": "body too large"})
			return
		}
		ctx.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unreadable body"})
		return
	}

	res, err := c.processor.HandleCallback(ctx.Request.Context(), body, ctx.GetHeader(referral.SignatureHeader))
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, gin.H{"ok": true, "result": res.Outcome})
	case referral.IsKind(err, referral.KindAuth):
		c.log.WarnContext(ctx.Request.Context(), "callback signature rejected",
			"event", "security",
			"request_id", requestID(ctx),
			"client_ip", ctx.ClientIP(),
		)
		ctx.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "forbidden"})
	case referral.IsKind(err, referral.KindValidation):
		ctx.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid callback"})
	default:
		c.log.ErrorContext(ctx.Request.Context(), "callback failed",
			"request_id", requestID(ctx),
			"state", stateOf(res),
			"error", err,
		)
		ctx.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
	}
}

func stateOf(res *referral.Result) string {
	if res == nil {
		return ""
	}
	return string(res.State)
}
