package referral

import (
	"context"

	"github.com/BatmanBruc/bat-bot-referral/types"
)

// Ledger is the idempotency barrier: one installs/{id} record per install,
// written with create-if-absent and never modified afterwards.
type Ledger struct {
	store types.KeyValueStore
}

func NewLedger(store types.KeyValueStore) *Ledger {
	return &Ledger{store: store}
}

// TryCommit reports false when the install was already recorded.
func (l *Ledger) TryCommit(ctx context.Context, installID, userRefID, status string) (bool, error) {
	m, err := encodeInstall(&types.InstallRecord{
		InstallID:      installID,
		UserRefID:      userRefID,
		ProviderStatus: status,
	})
	if err != nil {
		return false, err
	}
	return l.store.CreateIfAbsent(ctx, types.Key(types.CollectionInstalls, installID), m)
}

func (l *Ledger) Get(ctx context.Context, installID string) (*types.InstallRecord, error) {
	e, err := l.store.Get(ctx, types.Key(types.CollectionInstalls, installID))
	if err != nil {
		return nil, err
	}
	return decodeInstall(e)
}

func (l *Ledger) List(ctx context.Context) ([]*types.InstallRecord, error) {
	entries, err := l.store.Query(ctx, types.Prefix(types.CollectionInstalls), types.OrderKeyAsc, 0)
	if err != nil {
		return nil, err
	}
	out := make([]*types.InstallRecord, 0, len(entries))
	for _, e := range entries {
		r, err := decodeInstall(e)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
