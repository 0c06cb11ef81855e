package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/BatmanBruc/bat-bot-referral/types"
)

const OptionLang = "lang"

// UserOptions keeps per-user chat preferences in prefs/, on whichever
// backend the rest of the data lives.
type UserOptions struct {
	kv types.KeyValueStore
}

func NewUserOptions(kv types.KeyValueStore) *UserOptions {
	return &UserOptions{kv: kv}
}

func optionsKey(userID int64) string {
	return types.Key(types.CollectionPrefs, strconv.FormatInt(userID, 10))
}

func (s *UserOptions) GetUserOptions(ctx context.Context, userID int64) (map[string]string, error) {
	e, err := s.kv.Get(ctx, optionsKey(userID))
	if errors.Is(err, types.ErrNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeOptions(e)
}

// SetUserOption stores value under name. An empty value removes the option.
func (s *UserOptions) SetUserOption(ctx context.Context, userID int64, name, value string) error {
	_, err := s.kv.CompareAndSet(ctx, optionsKey(userID), func(cur *types.Entry) (*types.Mutation, error) {
		options := map[string]string{}
		if cur != nil {
			decoded, err := decodeOptions(cur)
			if err != nil {
				return nil, err
			}
			options = decoded
		}
		if options[name] == value {
			return nil, types.ErrNoChange
		}
		if value == "" {
			delete(options, name)
		} else {
			options[name] = value
		}
		data, err := json.Marshal(options)
		if err != nil {
			return nil, err
		}
		return &types.Mutation{Value: data}, nil
	})
	if errors.Is(err, types.ErrNotFound) {
		return nil
	}
	return err
}

func decodeOptions(e *types.Entry) (map[string]string, error) {
	options := map[string]string{}
	if len(e.Value) == 0 {
		return options, nil
	}
	if err := json.Unmarshal(e.Value, &options); err != nil {
		return nil, fmt.Errorf("decode options %s: %w", e.Key, err)
	}
	return options, nil
}
