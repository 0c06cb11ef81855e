package referral

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/bat-bot-referral/store"
)

func TestClampTopN(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, 1}, {0, 1}, {1, 1}, {10, 10}, {100, 100}, {101, 100}, {5000, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampTopN(tt.in), "ClampTopN(%d)", tt.in)
	}
}

func TestLeaderboard_CreditFillsNameOnce(t *testing.T) {
	ctx := context.Background()
	board := NewLeaderboard(store.NewMemoryStore())

	e, err := board.Credit(ctx, "A", 2, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Points)
	assert.Empty(t, e.DisplayName)
	first := e.UpdatedAt

	e, err = board.Credit(ctx, "A", 1, "Alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.Points)
	assert.Equal(t, "Alice", e.DisplayName)
	assert.True(t, e.UpdatedAt.After(first))

	e, err = board.Credit(ctx, "A", 1, "Mallory")
	require.NoError(t, err)
	assert.Equal(t, "Alice", e.DisplayName)
	assert.Equal(t, int64(4), e.Points)
}

func TestLeaderboard_ZeroDeltaIsNoop(t *testing.T) {
	ctx := context.Background()
	board := NewLeaderboard(store.NewMemoryStore())

	e, err := board.Credit(ctx, "A", 0, "Alice")
	require.NoError(t, err)
	stamp := e.UpdatedAt

	e, err = board.Credit(ctx, "A", 0, "Other")
	require.NoError(t, err)
	assert.Equal(t, stamp, e.UpdatedAt)
	assert.Equal(t, "Alice", e.DisplayName)
}

func TestLeaderboard_RejectsNegativeDelta(t *testing.T) {
	board := NewLeaderboard(store.NewMemoryStore())
	_, err := board.Credit(context.Background(), "A", -1, "")
	assert.Error(t, err)
}

func TestLeaderboard_TopN(t *testing.T) {
	ctx := context.Background()
	board := NewLeaderboard(store.NewMemoryStore())
	for id, pts := range map[string]int64{"u1": 3, "u2": 7, "u3": 3, "u4": 0, "u5": 10} {
		_, err := board.Credit(ctx, id, pts, "")
		require.NoError(t, err)
	}

	top, err := board.TopN(ctx, 4)
	require.NoError(t, err)
	require.Len(t, top, 4)
	ids := []string{top[0].UserID, top[1].UserID, top[2].UserID, top[3].UserID}
	assert.Equal(t, []string{"u5", "u2", "u1", "u3"}, ids)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].Points, top[i].Points)
	}

	again, err := board.TopN(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, top, again)

	one, err := board.TopN(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestLeaderboard_ConcurrentCredits(t *testing.T) {
	ctx := context.Background()
	board := NewLeaderboard(store.NewMemoryStore())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := board.Credit(ctx, "A", 1, fmt.Sprintf("name-%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	e, err := board.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(50), e.Points)
	assert.NotEmpty(t, e.DisplayName)
}
