package referral

import (
	"context"
	"errors"

	"github.com/BatmanBruc/bat-bot-referral/types"
)

const (
	MinTopN     = 1
	MaxTopN     = 100
	DefaultTopN = 10
)

// Leaderboard is the denormalized ranking under leaderboard/{id}.
type Leaderboard struct {
	store types.KeyValueStore
}

func NewLeaderboard(store types.KeyValueStore) *Leaderboard {
	return &Leaderboard{store: store}
}

func ClampTopN(n int) int {
	if n < MinTopN {
		return MinTopN
	}
	if n > MaxTopN {
		return MaxTopN
	}
	return n
}

// Credit adds delta to the entry, creating it if absent, and fills the
// display name only while it is unset. A zero delta on an existing entry
// with nothing to fill is a no-op.
func (b *Leaderboard) Credit(ctx context.Context, userID string, delta int64, nameHint string) (*types.LeaderboardEntry, error) {
	if delta < 0 {
		return nil, errors.New("negative leaderboard delta")
	}
	e, err := b.store.CompareAndSet(ctx, types.Key(types.CollectionLeaderboard, userID), func(cur *types.Entry) (*types.Mutation, error) {
		entry := &types.LeaderboardEntry{UserID: userID}
		if cur != nil {
			decoded, err := decodeBoardEntry(cur)
			if err != nil {
				return nil, err
			}
			entry = decoded
			if delta == 0 && (entry.DisplayName != "" || nameHint == "") {
				return nil, types.ErrNoChange
			}
		}
		entry.Points += delta
		if entry.DisplayName == "" && nameHint != "" {
			entry.DisplayName = nameHint
		}
		return encodeBoardEntry(entry)
	})
	if err != nil {
		return nil, err
	}
	return decodeBoardEntry(e)
}

func (b *Leaderboard) Get(ctx context.Context, userID string) (*types.LeaderboardEntry, error) {
	e, err := b.store.Get(ctx, types.Key(types.CollectionLeaderboard, userID))
	if err != nil {
		return nil, err
	}
	return decodeBoardEntry(e)
}

// TopN returns at most n entries by points descending, ties by user id.
func (b *Leaderboard) TopN(ctx context.Context, n int) ([]*types.LeaderboardEntry, error) {
	return b.query(ctx, ClampTopN(n))
}

func (b *Leaderboard) All(ctx context.Context) ([]*types.LeaderboardEntry, error) {
	return b.query(ctx, 0)
}

func (b *Leaderboard) query(ctx context.Context, limit int) ([]*types.LeaderboardEntry, error) {
	entries, err := b.store.Query(ctx, types.Prefix(types.CollectionLeaderboard), types.OrderScoreDesc, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*types.LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		entry, err := decodeBoardEntry(e)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}
