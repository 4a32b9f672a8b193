package postgres

import (
	"context"
	"fmt"

	"cryptoSignalBot/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_store (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store implements ports.Storage as a key-value table in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger ports.Logger
}

// Config holds the connection settings.
type Config struct {
	DSN    string
	Logger ports.Logger
}

// NewStore connects to the database and creates the table if needed.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required for postgres store")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: postgres DSN is empty", ports.ErrConfigurationError)
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrDBConnection, errors.Wrap(err, "create pool"))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", ports.ErrDBConnection, errors.Wrap(err, "ping"))
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "initialize schema")
	}

	cfg.Logger.Info(ctx, "Postgres store ready")
	return &Store{pool: pool, logger: cfg.Logger}, nil
}

// Load returns the value stored under key.
func (s *Store) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ports.ErrQueryFailed, errors.Wrapf(err, "load %q", key))
	}
	return value, true, nil
}

// Save upserts value under key.
func (s *Store) Save(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("%w: %w", ports.ErrUpdateFailed, errors.Wrapf(err, "save %q", key))
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrDeleteFailed, errors.Wrapf(err, "delete %q", key))
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.logger.Info(context.Background(), "Closing postgres connection pool")
	s.pool.Close()
	return nil
}
