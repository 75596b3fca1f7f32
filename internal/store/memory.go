package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is used when no redis is configured. Records do not expire.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]SessionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]SessionRecord)}
}

func (m *MemoryStore) Save(_ context.Context, rec *SessionRecord) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return ErrInvalidRecord
	}
	cp := *rec
	cp.Moves = append([]string(nil), rec.Moves...)
	m.mu.Lock()
	m.sessions[rec.ID] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (*SessionRecord, error) {
	m.mu.RLock()
	rec, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	rec.Moves = append([]string(nil), rec.Moves...)
	return &rec, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ActiveIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, rec := range m.sessions {
		if !rec.Finished() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) Close() error { return nil }
