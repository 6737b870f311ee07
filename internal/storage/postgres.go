package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"availwatch/internal/status"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS monitor_state (
        key        TEXT PRIMARY KEY,
        value      TEXT NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE TABLE IF NOT EXISTS check_samples (
        id             BIGSERIAL PRIMARY KEY,
        checked_at     TIMESTAMPTZ NOT NULL,
        status         TEXT NOT NULL,
        trigger_source TEXT NOT NULL,
        price          NUMERIC,
        currency       TEXT NOT NULL DEFAULT '',
        test_mode      BOOLEAN NOT NULL DEFAULT false,
        error          TEXT
    );`,
	`CREATE INDEX IF NOT EXISTS check_samples_checked_at_idx ON check_samples (checked_at);`,
	`CREATE TABLE IF NOT EXISTS alert_episodes (
        id                 UUID PRIMARY KEY,
        previous_status    TEXT NOT NULL,
        triggering_status  TEXT NOT NULL,
        notification_count INTEGER NOT NULL,
        urgent             BOOLEAN NOT NULL,
        detected_at        TIMESTAMPTZ NOT NULL
    );`,
}

const (
	pgSelectStateSQL = `SELECT key, value FROM monitor_state WHERE key = ANY($1);`

	pgUpsertStateSQL = `INSERT INTO monitor_state (key, value, updated_at)
    VALUES ($1, $2, now())
    ON CONFLICT (key) DO UPDATE
    SET value = EXCLUDED.value,
        updated_at = EXCLUDED.updated_at;`

	pgInsertSampleSQL = `INSERT INTO check_samples (
        checked_at,
        status,
        trigger_source,
        price,
        currency,
        test_mode,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    );`

	pgSampleColumns = `id,
        checked_at,
        status,
        trigger_source,
        price::text,
        currency,
        test_mode,
        error`

	pgListSamplesBetweenSQL = `SELECT ` + pgSampleColumns + `
    FROM check_samples
    WHERE checked_at >= $1
      AND checked_at < $2
    ORDER BY checked_at;`

	pgListRecentSamplesSQL = `SELECT ` + pgSampleColumns + `
    FROM check_samples
    ORDER BY checked_at DESC
    LIMIT $1;`

	pgCountSamplesSQL = `SELECT COUNT(*) FROM check_samples;`

	pgInsertEpisodeSQL = `INSERT INTO alert_episodes (
        id,
        previous_status,
        triggering_status,
        notification_count,
        urgent,
        detected_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (id) DO NOTHING;`

	pgListRecentEpisodesSQL = `SELECT
        id::text,
        previous_status,
        triggering_status,
        notification_count,
        urgent,
        detected_at
    FROM alert_episodes
    ORDER BY detected_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PostgresStore persists monitor state, history and episodes in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// 解锁失败时连接归还后会话结束，锁随之释放
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// GetValues reads the requested keys in a single statement.
func (s *PostgresStore) GetValues(ctx context.Context, keys ...string) (map[string]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, pgSelectStateSQL, keys)
	if err != nil {
		return nil, fmt.Errorf("select monitor state: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string, len(keys))
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return values, nil
}

// PutValues upserts every pair inside one transaction.
func (s *PostgresStore) PutValues(ctx context.Context, values map[string]string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for key, value := range values {
			if _, err := tx.Exec(ctx, pgUpsertStateSQL, key, value); err != nil {
				return fmt.Errorf("upsert %s: %w", key, err)
			}
		}
		return nil
	})
}

// InsertSample appends one check observation.
func (s *PostgresStore) InsertSample(ctx context.Context, sample CheckSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var price interface{}
	if sample.Price.Valid {
		price = sample.Price.Decimal.String()
	}

	var errMsg interface{}
	if sample.Error != nil {
		errMsg = *sample.Error
	}

	_, execErr := pool.Exec(ctx, pgInsertSampleSQL,
		sample.CheckedAt,
		sample.Status.StorageKey(),
		sample.Trigger,
		price,
		sample.Currency,
		sample.TestMode,
		errMsg,
	)
	if execErr != nil {
		return fmt.Errorf("insert check sample: %w", execErr)
	}
	return nil
}

// ListSamplesBetween lists samples within a time window.
func (s *PostgresStore) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]CheckSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListSamplesBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples between: %w", queryErr)
	}
	defer rows.Close()
	return collectPgSamples(rows, 0)
}

// ListRecentSamples lists the most recent samples, newest first.
func (s *PostgresStore) ListRecentSamples(ctx context.Context, limit int) ([]CheckSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListRecentSamplesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent samples: %w", queryErr)
	}
	defer rows.Close()
	return collectPgSamples(rows, limit)
}

// CountSamples counts stored samples.
func (s *PostgresStore) CountSamples(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, pgCountSamplesSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count samples: %w", scanErr)
	}
	return count, nil
}

// InsertEpisode records a detected upgrade.
func (s *PostgresStore) InsertEpisode(ctx context.Context, episode EpisodeRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, pgInsertEpisodeSQL,
		episode.ID,
		episode.Previous.StorageKey(),
		episode.Triggering.StorageKey(),
		episode.Count,
		episode.Urgent,
		episode.DetectedAt,
	)
	if execErr != nil {
		return fmt.Errorf("insert episode: %w", execErr)
	}
	return nil
}

// ListRecentEpisodes lists the latest episodes, newest first.
func (s *PostgresStore) ListRecentEpisodes(ctx context.Context, limit int) ([]EpisodeRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, pgListRecentEpisodesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent episodes: %w", queryErr)
	}
	defer rows.Close()

	episodes := make([]EpisodeRecord, 0, limit)
	for rows.Next() {
		var (
			rec                  EpisodeRecord
			previous, triggering string
		)
		if err := rows.Scan(&rec.ID, &previous, &triggering, &rec.Count, &rec.Urgent, &rec.DetectedAt); err != nil {
			return nil, err
		}
		rec.Previous = status.Parse(previous)
		rec.Triggering = status.Parse(triggering)
		episodes = append(episodes, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return episodes, nil
}

func collectPgSamples(rows pgx.Rows, capacity int) ([]CheckSample, error) {
	samples := make([]CheckSample, 0, capacity)
	for rows.Next() {
		var (
			sample    CheckSample
			statusKey string
			price     sql.NullString
			errMsg    sql.NullString
		)
		if err := rows.Scan(
			&sample.ID,
			&sample.CheckedAt,
			&statusKey,
			&sample.Trigger,
			&price,
			&sample.Currency,
			&sample.TestMode,
			&errMsg,
		); err != nil {
			return nil, err
		}
		if err := fillSample(&sample, statusKey, price, errMsg); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

var (
	_ Backend        = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
)
