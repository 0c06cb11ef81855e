package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/BatmanBruc/bat-bot-referral/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

type PostgresOptions struct {
	DSN      string
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// PostgresStore is a KeyValueStore on a single kv table. Compare-and-set
// is expressed as a version-guarded UPDATE; a zero row count means another
// writer committed first and the update function is re-run.
type PostgresStore struct {
	pool       *pgxpool.Pool
	maxRetries int
}

func NewPostgresStore(ctx context.Context, opts PostgresOptions, maxRetries int) (*PostgresStore, error) {
	dsn := strings.TrimSpace(opts.DSN)
	if dsn == "" {
		dsn = buildPostgresDSN(opts)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{pool: pool, maxRetries: normalizeRetries(maxRetries)}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func buildPostgresDSN(opts PostgresOptions) string {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(opts.Port)
	if port == "" {
		port = "5432"
	}
	db := strings.TrimSpace(opts.Database)
	if db == "" {
		db = "bot_referral"
	}
	user := strings.TrimSpace(opts.User)
	if user == "" {
		user = "bot_referral"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", urlEscape(user), urlEscape(opts.Password), host, port, db)
}

func urlEscape(s string) string {
	r := strings.NewReplacer(
		"%", "%25",
		":", "%3A",
		"/", "%2F",
		"@", "%40",
		"?", "%3F",
		"#", "%23",
		"[", "%5B",
		"]", "%5D",
	)
	return r.Replace(s)
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

const selectEntry = `
SELECT key, value, score, version, created_at, updated_at
FROM kv
`

func scanEntry(row pgx.Row) (*types.Entry, error) {
	var e types.Entry
	if err := row.Scan(&e.Key, &e.Value, &e.Score, &e.Version, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*types.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	e, err := scanEntry(s.pool.QueryRow(ctx, selectEntry+`WHERE key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, key string, m types.Mutation) (bool, error) {
	collection, _, ok := types.SplitKey(key)
	if !ok {
		return false, fmt.Errorf("invalid key %q", key)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tag, err := s.pool.Exec(ctx, `
INSERT INTO kv (key, collection, value, score)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO NOTHING
`, key, collection, bytesOrEmpty(m.Value), m.Score)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CompareAndSet(ctx context.Context, key string, fn types.UpdateFunc) (*types.Entry, error) {
	collection, _, ok := types.SplitKey(key)
	if !ok {
		return nil, fmt.Errorf("invalid key %q", key)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		cur, err := s.Get(ctx, key)
		if errors.Is(err, types.ErrNotFound) {
			cur = nil
		} else if err != nil {
			return nil, err
		}

		m, err := fn(cur)
		if errors.Is(err, types.ErrNoChange) {
			if cur == nil {
				return nil, types.ErrNotFound
			}
			return cur, nil
		}
		if err != nil {
			return nil, err
		}

		var next *types.Entry
		if cur == nil {
			next, err = scanEntry(s.pool.QueryRow(ctx, `
INSERT INTO kv (key, collection, value, score)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO NOTHING
RETURNING key, value, score, version, created_at, updated_at
`, key, collection, bytesOrEmpty(m.Value), m.Score))
		} else {
			next, err = scanEntry(s.pool.QueryRow(ctx, `
UPDATE kv
SET value = $2,
    score = $3,
    version = version + 1,
    updated_at = GREATEST(clock_timestamp(), updated_at + INTERVAL '1 microsecond')
WHERE key = $1 AND version = $4
RETURNING key, value, score, version, created_at, updated_at
`, key, bytesOrEmpty(m.Value), m.Score, cur.Version))
		}
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return next, nil
	}
	return nil, types.ErrConflict
}

// bytesOrEmpty keeps a nil value from being sent as NULL.
func bytesOrEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func (s *PostgresStore) Query(ctx context.Context, prefix string, order types.Order, limit int) ([]*types.Entry, error) {
	collection, err := collectionFromPrefix(prefix)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	orderBy := "ORDER BY score DESC, key ASC"
	if order == types.OrderKeyAsc {
		orderBy = "ORDER BY key ASC"
	}
	query := selectEntry + "WHERE collection = $1 " + orderBy
	args := []any{collection}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*types.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
