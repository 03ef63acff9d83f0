package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitbuilder587/translation-pipeline/internal/failure"
)

type DB struct {
	Pool *pgxpool.Pool
}

type PoolConfig struct {
	MaxConns          int32
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

func New(ctx context.Context, connString string) (*DB, error) {
	return NewWithConfig(ctx, connString, PoolConfig{})
}

func NewWithConfig(ctx context.Context, connString string, pc PoolConfig) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, failure.Tag(failure.KindConfigurationInvalid, fmt.Errorf("parse database url: %w", err))
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}
	if pc.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = pc.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storageErr("create pool", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storageErr("ping database", err)
	}

	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return storageErr("ping database", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS manual_reviews (
    id           TEXT PRIMARY KEY,
    request_id   TEXT NOT NULL,
    source_text  TEXT NOT NULL,
    output       TEXT NOT NULL DEFAULT '',
    source_lang  TEXT NOT NULL DEFAULT '',
    target_lang  TEXT NOT NULL DEFAULT '',
    reason       TEXT NOT NULL,
    failure_kind TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'pending',
    resolution   TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS manual_reviews_pending_idx
    ON manual_reviews (created_at) WHERE status = 'pending';
`

// Migrate создает таблицы, повторный вызов безопасен
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return storageErr("migrate", err)
	}
	return nil
}

// storageErr помечает ошибку базы как storage_failed, отмену оставляет как есть
func storageErr(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrapped
	}
	return failure.Tag(failure.KindStorageFailed, wrapped)
}

// isDuplicateError - нарушение уникальности в PostgreSQL
func isDuplicateError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
