package types

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrConflict = errors.New("compare-and-set retries exhausted")
	ErrNoChange = errors.New("no change")
)

const (
	CollectionUsers       = "users"
	CollectionLeaderboard = "leaderboard"
	CollectionInstalls    = "installs"
	CollectionPrefs       = "prefs"
)

// Entry is a stored value together with the metadata the store assigns on
// commit. Version, CreatedAt and UpdatedAt are never set by callers.
type Entry struct {
	Key       string
	Value     []byte
	Score     int64
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Mutation is the caller side of a write: the new value and its sort score.
type Mutation struct {
	Value []byte
	Score int64
}

// UpdateFunc computes the next value from the current one. current is nil
// when the key does not exist. Returning ErrNoChange leaves the key as is.
// The function may run several times and must not have side effects.
type UpdateFunc func(current *Entry) (*Mutation, error)

type Order int

const (
	OrderScoreDesc Order = iota
	OrderKeyAsc
)

type KeyValueStore interface {
	Get(ctx context.Context, key string) (*Entry, error)
	CreateIfAbsent(ctx context.Context, key string, m Mutation) (bool, error)
	CompareAndSet(ctx context.Context, key string, fn UpdateFunc) (*Entry, error)
	Query(ctx context.Context, prefix string, order Order, limit int) ([]*Entry, error)
}

func Key(collection, id string) string {
	return collection + "/" + id
}

func Prefix(collection string) string {
	return collection + "/"
}

// SplitKey returns the collection and id parts of "collection/id".
func SplitKey(key string) (collection, id string, ok bool) {
	collection, id, ok = strings.Cut(key, "/")
	if !ok || collection == "" || id == "" {
		return "", "", false
	}
	return collection, id, true
}
