package referral

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BatmanBruc/bat-bot-referral/types"
)

// Resolver links a user to at most one referrer, on first contact.
type Resolver struct {
	users *Users
	board *Leaderboard
	log   *slog.Logger
}

func NewResolver(users *Users, board *Leaderboard, log *slog.Logger) *Resolver {
	return &Resolver{users: users, board: board, log: log}
}

// RegisterOrTouch creates the user on first contact or fills in the
// referrer and display name if they are still unset. Repeated calls never
// change a referrer or name once stored. A candidate equal to userID is
// dropped.
func (r *Resolver) RegisterOrTouch(ctx context.Context, userID, displayName, referrerCandidate string) (*types.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, newError(KindValidation, "register", errors.New("user id is required"))
	}
	name := strings.TrimSpace(displayName)
	candidate := strings.TrimSpace(referrerCandidate)
	if candidate == userID {
		candidate = ""
	}

	created := false
	user, err := r.users.update(ctx, userID, func(u *types.User, exists bool) bool {
		created = !exists
		changed := !exists
		if u.Referrer == "" && candidate != "" {
			u.Referrer = candidate
			changed = true
		}
		if u.DisplayName == "" && name != "" {
			u.DisplayName = name
			changed = true
		}
		return changed
	})
	if err != nil {
		return nil, newError(KindStoreFault, "register", err)
	}

	if _, err := r.board.Credit(ctx, userID, 0, user.DisplayName); err != nil {
		return nil, newError(KindStoreFault, "register leaderboard", err)
	}

	if created {
		r.log.InfoContext(ctx, "user registered",
			"user_id", userID,
			"referrer", user.Referrer,
		)
	}
	return user, nil
}
