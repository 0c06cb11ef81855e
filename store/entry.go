package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/BatmanBruc/bat-bot-referral/types"
)

const DefaultMaxRetries = 16

// nextEntry builds the committed form of m on top of cur. Commit timestamps
// never go backwards for a key, even if the clock source does.
func nextEntry(key string, cur *types.Entry, m *types.Mutation, now time.Time) *types.Entry {
	e := &types.Entry{
		Key:       key,
		Value:     append([]byte(nil), m.Value...),
		Score:     m.Score,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cur != nil {
		e.Version = cur.Version + 1
		e.CreatedAt = cur.CreatedAt
		if !now.After(cur.UpdatedAt) {
			e.UpdatedAt = cur.UpdatedAt.Add(time.Microsecond)
		}
	}
	return e
}

func collectionFromPrefix(prefix string) (string, error) {
	c := strings.TrimSuffix(prefix, "/")
	if c == "" || strings.Contains(c, "/") {
		return "", fmt.Errorf("unsupported query prefix %q", prefix)
	}
	return c, nil
}

func normalizeRetries(n int) int {
	if n <= 0 {
		return DefaultMaxRetries
	}
	return n
}
