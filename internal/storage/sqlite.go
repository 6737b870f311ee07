package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"availwatch/internal/status"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS monitor_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS check_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		checked_at INTEGER NOT NULL,
		status TEXT NOT NULL,
		trigger_source TEXT NOT NULL,
		price TEXT,
		currency TEXT NOT NULL DEFAULT '',
		test_mode INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_check_samples_checked_at ON check_samples(checked_at);

	CREATE TABLE IF NOT EXISTS alert_episodes (
		id TEXT PRIMARY KEY,
		previous_status TEXT NOT NULL,
		triggering_status TEXT NOT NULL,
		notification_count INTEGER NOT NULL,
		urgent INTEGER NOT NULL,
		detected_at INTEGER NOT NULL
	);
	`

const sqliteSampleColumns = `id, checked_at, status, trigger_source, price, currency, test_mode, error`

// SQLiteStore keeps everything in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	// WAL 模式 + busy timeout，CLI 与守护进程可同时访问
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// EnsureSchema creates tables and indexes.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// GetValues reads the requested keys inside one read transaction.
func (s *SQLiteStore) GetValues(ctx context.Context, keys ...string) (map[string]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return values, nil
	}

	query := "SELECT key, value FROM monitor_state WHERE key IN (?" + repeatPlaceholders(len(keys)-1) + ")"
	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select monitor state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, rows.Err()
}

// PutValues upserts every pair inside one transaction.
func (s *SQLiteStore) PutValues(ctx context.Context, values map[string]string) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for key, value := range values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO monitor_state (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now); err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// InsertSample appends one check observation.
func (s *SQLiteStore) InsertSample(ctx context.Context, sample CheckSample) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	var price sql.NullString
	if sample.Price.Valid {
		price = sql.NullString{String: sample.Price.Decimal.String(), Valid: true}
	}
	var errMsg sql.NullString
	if sample.Error != nil {
		errMsg = sql.NullString{String: *sample.Error, Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO check_samples (checked_at, status, trigger_source, price, currency, test_mode, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sample.CheckedAt.UnixMilli(), sample.Status.StorageKey(), sample.Trigger, price, sample.Currency, sample.TestMode, errMsg)
	if err != nil {
		return fmt.Errorf("insert check sample: %w", err)
	}
	return nil
}

// ListSamplesBetween lists samples within [from, to).
func (s *SQLiteStore) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]CheckSample, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		"SELECT "+sqliteSampleColumns+" FROM check_samples WHERE checked_at >= ? AND checked_at < ? ORDER BY checked_at",
		from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list samples between: %w", err)
	}
	defer rows.Close()
	return collectSQLiteSamples(rows)
}

// ListRecentSamples lists the most recent samples, newest first.
func (s *SQLiteStore) ListRecentSamples(ctx context.Context, limit int) ([]CheckSample, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		"SELECT "+sqliteSampleColumns+" FROM check_samples ORDER BY checked_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list recent samples: %w", err)
	}
	defer rows.Close()
	return collectSQLiteSamples(rows)
}

// CountSamples counts stored samples.
func (s *SQLiteStore) CountSamples(ctx context.Context) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM check_samples").Scan(&count); err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return count, nil
}

// InsertEpisode records a detected upgrade.
func (s *SQLiteStore) InsertEpisode(ctx context.Context, episode EpisodeRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alert_episodes (id, previous_status, triggering_status, notification_count, urgent, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, episode.ID, episode.Previous.StorageKey(), episode.Triggering.StorageKey(), episode.Count, episode.Urgent, episode.DetectedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

// ListRecentEpisodes lists the latest episodes, newest first.
func (s *SQLiteStore) ListRecentEpisodes(ctx context.Context, limit int) ([]EpisodeRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, previous_status, triggering_status, notification_count, urgent, detected_at
		FROM alert_episodes ORDER BY detected_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent episodes: %w", err)
	}
	defer rows.Close()

	var episodes []EpisodeRecord
	for rows.Next() {
		var (
			rec                  EpisodeRecord
			previous, triggering string
			detectedAt           int64
		)
		if err := rows.Scan(&rec.ID, &previous, &triggering, &rec.Count, &rec.Urgent, &detectedAt); err != nil {
			return nil, err
		}
		rec.Previous = status.Parse(previous)
		rec.Triggering = status.Parse(triggering)
		rec.DetectedAt = time.UnixMilli(detectedAt).UTC()
		episodes = append(episodes, rec)
	}
	return episodes, rows.Err()
}

func collectSQLiteSamples(rows *sql.Rows) ([]CheckSample, error) {
	var samples []CheckSample
	for rows.Next() {
		var (
			sample    CheckSample
			checkedAt int64
			statusKey string
			price     sql.NullString
			errMsg    sql.NullString
		)
		if err := rows.Scan(&sample.ID, &checkedAt, &statusKey, &sample.Trigger, &price, &sample.Currency, &sample.TestMode, &errMsg); err != nil {
			return nil, err
		}
		sample.CheckedAt = time.UnixMilli(checkedAt).UTC()
		if err := fillSample(&sample, statusKey, price, errMsg); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func fillSample(sample *CheckSample, statusKey string, price, errMsg sql.NullString) error {
	sample.Status = status.Parse(statusKey)
	if price.Valid {
		value, err := decimal.NewFromString(price.String)
		if err != nil {
			return fmt.Errorf("parse price: %w", err)
		}
		sample.Price = decimal.NewNullDecimal(value)
	}
	if errMsg.Valid {
		msg := errMsg.String
		sample.Error = &msg
	}
	return nil
}

func repeatPlaceholders(n int) string {
	out := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		out = append(out, ", ?"...)
	}
	return string(out)
}

var _ Backend = (*SQLiteStore)(nil)
