package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/BatmanBruc/bat-bot-referral/types"
)

const (
	fieldValue   = "v"
	fieldScore   = "s"
	fieldVersion = "ver"
	fieldCreated = "c"
	fieldUpdated = "u"
)

// RedisKV keeps every key as a hash and maintains two sorted sets per
// collection: one by negated score, one by id. All writes go through
// WATCH/MULTI/EXEC so that a concurrent writer forces a retry.
type RedisKV struct {
	client     *RedisClient
	maxRetries int
}

func NewRedisKV(client *RedisClient, maxRetries int) *RedisKV {
	return &RedisKV{
		client:     client,
		maxRetries: normalizeRetries(maxRetries),
	}
}

func (s *RedisKV) dataKey(key string) string {
	return s.client.generateKey("kv", key)
}

func (s *RedisKV) scoreIndex(collection string) string {
	return s.client.generateKey("idx", collection, "score")
}

func (s *RedisKV) keyIndex(collection string) string {
	return s.client.generateKey("idx", collection, "keys")
}

func (s *RedisKV) Get(ctx context.Context, key string) (*types.Entry, error) {
	e, err := s.read(ctx, s.client.client, key)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, types.ErrNotFound
	}
	return e, nil
}

func (s *RedisKV) CreateIfAbsent(ctx context.Context, key string, m types.Mutation) (bool, error) {
	if _, _, ok := types.SplitKey(key); !ok {
		return false, fmt.Errorf("invalid key %q", key)
	}
	dk := s.dataKey(key)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		created := false
		err := s.client.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := s.read(ctx, tx, key)
			if err != nil {
				return err
			}
			if cur != nil {
				return nil
			}
			now, err := tx.Time(ctx).Result()
			if err != nil {
				return fmt.Errorf("redis time: %w", err)
			}
			next := nextEntry(key, nil, &m, now)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return s.write(ctx, pipe, next)
			})
			if err != nil {
				return err
			}
			created = true
			return nil
		}, dk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, err
		}
		return created, nil
	}
	return false, types.ErrConflict
}

func (s *RedisKV) CompareAndSet(ctx context.Context, key string, fn types.UpdateFunc) (*types.Entry, error) {
	if _, _, ok := types.SplitKey(key); !ok {
		return nil, fmt.Errorf("invalid key %q", key)
	}
	dk := s.dataKey(key)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var result *types.Entry
		err := s.client.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := s.read(ctx, tx, key)
			if err != nil {
				return err
			}
			m, err := fn(cur)
			if errors.Is(err, types.ErrNoChange) {
				if cur == nil {
					return types.ErrNotFound
				}
				result = cur
				return nil
			}
			if err != nil {
				return err
			}
			now, err := tx.Time(ctx).Result()
			if err != nil {
				return fmt.Errorf("redis time: %w", err)
			}
			next := nextEntry(key, cur, m, now)
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return s.write(ctx, pipe, next)
			})
			if err != nil {
				return err
			}
			result = next
			return nil
		}, dk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, types.ErrConflict
}

func (s *RedisKV) Query(ctx context.Context, prefix string, order types.Order, limit int) ([]*types.Entry, error) {
	collection, err := collectionFromPrefix(prefix)
	if err != nil {
		return nil, err
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	index := s.scoreIndex(collection)
	if order == types.OrderKeyAsc {
		index = s.keyIndex(collection)
	}
	ids, err := s.client.client.ZRange(ctx, index, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	if len(ids) == 0 {
		return []*types.Entry{}, nil
	}

	pipe := s.client.client.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.dataKey(types.Key(collection, id)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis pipeline: %w", err)
	}

	out := make([]*types.Entry, 0, len(ids))
	for i, id := range ids {
		fields, err := cmds[i].Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		e, err := decodeHash(types.Key(collection, id), fields)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisKV) read(ctx context.Context, c redis.Cmdable, key string) (*types.Entry, error) {
	fields, err := c.HGetAll(ctx, s.dataKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodeHash(key, fields)
}

func (s *RedisKV) write(ctx context.Context, pipe redis.Pipeliner, e *types.Entry) error {
	collection, id, _ := types.SplitKey(e.Key)
	pipe.HSet(ctx, s.dataKey(e.Key),
		fieldValue, e.Value,
		fieldScore, e.Score,
		fieldVersion, e.Version,
		fieldCreated, e.CreatedAt.UnixNano(),
		fieldUpdated, e.UpdatedAt.UnixNano(),
	)
	pipe.ZAdd(ctx, s.scoreIndex(collection), &redis.Z{Score: float64(-e.Score), Member: id})
	pipe.ZAdd(ctx, s.keyIndex(collection), &redis.Z{Score: 0, Member: id})
	return nil
}

func decodeHash(key string, fields map[string]string) (*types.Entry, error) {
	parse := func(name string) (int64, error) {
		v, err := strconv.ParseInt(fields[name], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt field %s of %s: %w", name, key, err)
		}
		return v, nil
	}
	score, err := parse(fieldScore)
	if err != nil {
		return nil, err
	}
	version, err := parse(fieldVersion)
	if err != nil {
		return nil, err
	}
	created, err := parse(fieldCreated)
	if err != nil {
		return nil, err
	}
	updated, err := parse(fieldUpdated)
	if err != nil {
		return nil, err
	}
	return &types.Entry{
		Key:       key,
		Value:     []byte(fields[fieldValue]),
		Score:     score,
		Version:   version,
		CreatedAt: time.Unix(0, created).UTC(),
		UpdatedAt: time.Unix(0, updated).UTC(),
	}, nil
}
