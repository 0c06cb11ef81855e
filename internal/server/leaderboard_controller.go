package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BatmanBruc/bat-bot-referral/internal/referral"
	"github.com/BatmanBruc/bat-bot-referral/types"
)

type LeaderboardReader interface {
	TopN(ctx context.Context, n int) ([]*types.LeaderboardEntry, error)
}

type UserReader interface {
	Get(ctx context.Context, id string) (*types.User, error)
}

type LeaderboardController struct {
	board LeaderboardReader
	users UserReader
	log   *slog.Logger
}

func NewLeaderboardController(board LeaderboardReader, users UserReader, log *slog.Logger) *LeaderboardController {
	return &LeaderboardController{board: board, users: users, log: log}
}

func (c *LeaderboardController) RegisterRoutes(router *gin.Engine) {
	router.GET("/leaderboard/top/:n", c.top)
	router.GET("/users/:id", c.user)
}

type rankedEntry struct {
	Rank        int       `json:"rank"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Points      int64     `json:"points"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *LeaderboardController) top(ctx *gin.Context) {
	n, err := strconv.Atoi(ctx.Param("n"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "n must be an integer"})
		return
	}
	entries, err := c.board.TopN(ctx.Request.Context(), referral.ClampTopN(n))
	if err != nil {
		c.log.ErrorContext(ctx.Request.Context(), "leaderboard query failed", "request_id", requestID(ctx), "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
		return
	}
	out := make([]rankedEntry, len(entries))
	for i, e := range entries {
		out[i] = rankedEntry{
			Rank:        i + 1,
			UserID:      e.UserID,
			DisplayName: e.DisplayName,
			Points:      e.Points,
			UpdatedAt:   e.UpdatedAt,
		}
	}
	ctx.JSON(http.StatusOK, out)
}

type userView struct {
	ID                string    `json:"id"`
	DisplayName       string    `json:"display_name,omitempty"`
	Points            int64     `json:"points"`
	CompletedInstalls int64     `json:"completed_installs"`
	TaskCompleted     bool      `json:"task_completed"`
	Referred          bool      `json:"referred"`
	JoinedAt          time.Time `json:"joined_at"`
}

func (c *LeaderboardController) user(ctx *gin.Context) {
	u, err := c.users.Get(ctx.Request.Context(), ctx.Param("id"))
	if errors.Is(err, types.ErrNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "user not found"})
		return
	}
	if err != nil {
		c.log.ErrorContext(ctx.Request.Context(), "user lookup failed", "request_id", requestID(ctx), "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal error"})
		return
	}
	ctx.JSON(http.StatusOK, userView{
		ID:                u.ID,
		DisplayName:       u.DisplayName,
		Points:            u.Points,
		CompletedInstalls: u.CompletedInstalls,
		TaskCompleted:     u.TaskCompleted,
		Referred:          u.HasReferrer(),
		JoinedAt:          u.JoinedAt,
	})
}
