package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BatmanBruc/bat-bot-referral/types"
)

// MemoryStore is an in-process KeyValueStore. Update functions run under the
// store lock, so every operation is linearized per store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*types.Entry
	now     func() time.Time
	last    time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*types.Entry),
		now:     time.Now,
	}
}

// tick returns a commit timestamp strictly after the previous one.
func (s *MemoryStore) tick() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func copyEntry(e *types.Entry) *types.Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Value = append([]byte(nil), e.Value...)
	return &c
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*types.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, types.ErrNotFound
	}
	return copyEntry(e), nil
}

func (s *MemoryStore) CreateIfAbsent(ctx context.Context, key string, m types.Mutation) (bool, error) {
	if _, _, ok := types.SplitKey(key); !ok {
		return false, fmt.Errorf("invalid key %q", key)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return false, nil
	}
	s.entries[key] = nextEntry(key, nil, &m, s.tick())
	return true, nil
}

func (s *MemoryStore) CompareAndSet(ctx context.Context, key string, fn types.UpdateFunc) (*types.Entry, error) {
	if _, _, ok := types.SplitKey(key); !ok {
		return nil, fmt.Errorf("invalid key %q", key)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.entries[key]
	m, err := fn(copyEntry(cur))
	if errors.Is(err, types.ErrNoChange) {
		if cur == nil {
			return nil, types.ErrNotFound
		}
		return copyEntry(cur), nil
	}
	if err != nil {
		return nil, err
	}
	next := nextEntry(key, cur, m, s.tick())
	s.entries[key] = next
	return copyEntry(next), nil
}

func (s *MemoryStore) Query(ctx context.Context, prefix string, order types.Order, limit int) ([]*types.Entry, error) {
	collection, err := collectionFromPrefix(prefix)
	if err != nil {
		return nil, err
	}
	prefix = types.Prefix(collection)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]*types.Entry, 0)
	for k, e := range s.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, copyEntry(e))
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if order == types.OrderScoreDesc && out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
