package referral

import (
	"context"
	"errors"

	"github.com/BatmanBruc/bat-bot-referral/types"
)

// Users is the User Store: users/{id} records mutated only through
// compare-and-set.
type Users struct {
	store types.KeyValueStore
}

func NewUsers(store types.KeyValueStore) *Users {
	return &Users{store: store}
}

func (u *Users) Get(ctx context.Context, id string) (*types.User, error) {
	e, err := u.store.Get(ctx, types.Key(types.CollectionUsers, id))
	if err != nil {
		return nil, err
	}
	return decodeUser(e)
}

// List returns every user ordered by id.
func (u *Users) List(ctx context.Context) ([]*types.User, error) {
	entries, err := u.store.Query(ctx, types.Prefix(types.CollectionUsers), types.OrderKeyAsc, 0)
	if err != nil {
		return nil, err
	}
	out := make([]*types.User, 0, len(entries))
	for _, e := range entries {
		user, err := decodeUser(e)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, nil
}

// mutateFunc edits user in place and reports whether anything changed.
// exists is false for a fresh placeholder. It may be called more than once.
type mutateFunc func(user *types.User, exists bool) bool

// update applies fn atomically. When fn reports no change for a missing
// user the record is not created and types.ErrNotFound is returned.
func (u *Users) update(ctx context.Context, id string, fn mutateFunc) (*types.User, error) {
	e, err := u.store.CompareAndSet(ctx, types.Key(types.CollectionUsers, id), func(cur *types.Entry) (*types.Mutation, error) {
		user := &types.User{ID: id}
		if cur != nil {
			decoded, err := decodeUser(cur)
			if err != nil {
				return nil, err
			}
			user = decoded
		}
		if !fn(user, cur != nil) {
			return nil, types.ErrNoChange
		}
		return encodeUser(user)
	})
	if err != nil {
		return nil, err
	}
	return decodeUser(e)
}

func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}
