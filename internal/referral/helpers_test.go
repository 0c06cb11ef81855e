package referral

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/bat-bot-referral/store"
	"github.com/BatmanBruc/bat-bot-referral/types"
)

const testSecret = "provider-secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, kv types.KeyValueStore) *Service {
	t.Helper()
	if kv == nil {
		kv = store.NewMemoryStore()
	}
	return NewService(kv, Config{CompletionAward: 1, CallbackSecret: testSecret}, discardLogger())
}

func callbackBody(t *testing.T, installID, userRefID, status string) []byte {
	t.Helper()
	body := map[string]string{"installId": installID, "userRefId": userRefID}
	if status != "" {
		body["providerStatus"] = status
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return data
}

func sign(body []byte) string {
	return NewVerifier(testSecret).Sign(body)
}

func points(t *testing.T, svc *Service, id string) (user, board int64) {
	t.Helper()
	ctx := context.Background()
	u, err := svc.Users.Get(ctx, id)
	if err == nil {
		user = u.Points
	} else {
		require.ErrorIs(t, err, types.ErrNotFound)
	}
	b, err := svc.Board.Get(ctx, id)
	if err == nil {
		board = b.Points
	} else {
		require.ErrorIs(t, err, types.ErrNotFound)
	}
	return user, board
}

// flakyStore fails compare-and-set on keys with the given prefix while
// armed.
type flakyStore struct {
	types.KeyValueStore
	prefix string
	armed  bool
}

var errStoreDown = errors.New("store unavailable")

func (f *flakyStore) CompareAndSet(ctx context.Context, key string, fn types.UpdateFunc) (*types.Entry, error) {
	if f.armed && strings.HasPrefix(key, f.prefix) {
		return nil, errStoreDown
	}
	return f.KeyValueStore.CompareAndSet(ctx, key, fn)
}
