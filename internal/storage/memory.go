package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a process-local backend. State is lost on exit.
type MemoryStore struct {
	mu       sync.RWMutex
	values   map[string]string
	samples  []CheckSample
	episodes []EpisodeRecord
	nextID   int64
}

// NewMemoryStore returns an empty in-memory backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) EnsureSchema(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) GetValues(ctx context.Context, keys ...string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(keys))
	for _, key := range keys {
		if value, ok := m.values[key]; ok {
			out[key] = value
		}
	}
	return out, nil
}

func (m *MemoryStore) PutValues(ctx context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, value := range values {
		m.values[key] = value
	}
	return nil
}

func (m *MemoryStore) InsertSample(ctx context.Context, sample CheckSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	sample.ID = m.nextID
	m.samples = append(m.samples, sample)
	return nil
}

func (m *MemoryStore) ListSamplesBetween(ctx context.Context, from, to time.Time) ([]CheckSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []CheckSample
	for _, sample := range m.samples {
		if !sample.CheckedAt.Before(from) && sample.CheckedAt.Before(to) {
			out = append(out, sample)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckedAt.Before(out[j].CheckedAt) })
	return out, nil
}

func (m *MemoryStore) ListRecentSamples(ctx context.Context, limit int) ([]CheckSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]CheckSample, len(m.samples))
	copy(out, m.samples)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckedAt.After(out[j].CheckedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountSamples(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.samples)), nil
}

func (m *MemoryStore) InsertEpisode(ctx context.Context, episode EpisodeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.episodes {
		if existing.ID == episode.ID {
			return nil
		}
	}
	m.episodes = append(m.episodes, episode)
	return nil
}

func (m *MemoryStore) ListRecentEpisodes(ctx context.Context, limit int) ([]EpisodeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]EpisodeRecord, len(m.episodes))
	copy(out, m.episodes)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Backend = (*MemoryStore)(nil)
