package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. Used by tests and by deployments that do
// not configure a database.
type Memory struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
	apps map[string]*ApplicationRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		runs: make(map[string]*RunRecord),
		apps: make(map[string]*ApplicationRecord),
	}
}

func (m *Memory) CreateRun(_ context.Context, rec *RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.runs[cp.ID] = &cp
	return nil
}

func (m *Memory) UpdateRunStatus(_ context.Context, id, status string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	if errMsg != "" {
		rec.Error = &errMsg
	}
	switch status {
	case "running":
		now := time.Now().UTC()
		rec.StartedAt = &now
	case "completed", "stopped", "failed":
		now := time.Now().UTC()
		rec.CompletedAt = &now
	}
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) CreateApplication(_ context.Context, rec *ApplicationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.apps[cp.ID] = &cp
	return nil
}

func (m *Memory) UpdateApplicationStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.apps[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	if status == AppStatusSubmitted {
		now := time.Now().UTC()
		rec.AppliedAt = &now
	}
	return nil
}

func (m *Memory) ListApplications(_ context.Context, runID string) ([]*ApplicationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ApplicationRecord
	for _, rec := range m.apps {
		if rec.RunID == runID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) HasApplied(_ context.Context, url string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.apps {
		if rec.URL == url && rec.Status == AppStatusSubmitted {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CountApplicationsToday(_ context.Context, platform string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	count := 0
	for _, rec := range m.apps {
		if rec.Platform != platform || rec.Status != AppStatusSubmitted {
			continue
		}
		if rec.AppliedAt != nil && !rec.AppliedAt.Before(midnight) {
			count++
		}
	}
	return count, nil
}
