package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"availwatch/internal/config"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
)

// KV is the minimal key/value contract behind the Gateway.
type KV interface {
	// GetValues reads all keys in one consistent snapshot; absent keys are omitted.
	GetValues(ctx context.Context, keys ...string) (map[string]string, error)
	// PutValues writes all pairs atomically.
	PutValues(ctx context.Context, values map[string]string) error
}

// SampleStore defines operations for check history persistence.
type SampleStore interface {
	InsertSample(ctx context.Context, sample CheckSample) error
	ListSamplesBetween(ctx context.Context, from, to time.Time) ([]CheckSample, error)
	ListRecentSamples(ctx context.Context, limit int) ([]CheckSample, error)
	CountSamples(ctx context.Context) (int64, error)
}

// EpisodeStore defines operations for alert episode auditing.
type EpisodeStore interface {
	InsertEpisode(ctx context.Context, episode EpisodeRecord) error
	ListRecentEpisodes(ctx context.Context, limit int) ([]EpisodeRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Backend is what every concrete store provides.
type Backend interface {
	KV
	SampleStore
	EpisodeStore
	EnsureSchema(ctx context.Context) error
	Close() error
}

// Open builds the backend selected by configuration and ensures its schema.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.StorageDriver() {
	case "postgres":
		pool, poolErr := NewPool(ctx, cfg.Database)
		if poolErr != nil {
			return nil, poolErr
		}
		backend = NewPostgresStore(pool)
	case "sqlite":
		backend, err = NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
	case "memory":
		backend = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if err := backend.EnsureSchema(ctx); err != nil {
		_ = backend.Close()
		return nil, err
	}
	return backend, nil
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}
