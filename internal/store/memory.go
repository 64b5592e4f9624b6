package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"servicepulse/internal/models"
)

// Memory is a map-backed Store. It backs the test suite and small
// single-node deployments that run without Postgres.
type Memory struct {
	mu       sync.RWMutex
	services map[uuid.UUID]*models.Service
	results  map[uuid.UUID][]*models.CheckResult
}

func NewMemory() *Memory {
	return &Memory{
		services: make(map[uuid.UUID]*models.Service),
		results:  make(map[uuid.UUID][]*models.CheckResult),
	}
}

func (m *Memory) GetService(_ context.Context, id uuid.UUID) (*models.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *svc
	return &cp, nil
}

func (m *Memory) ListServices(_ context.Context) ([]*models.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Service, 0, len(m.services))
	for _, svc := range m.services {
		cp := *svc
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) ListDueServices(_ context.Context, now time.Time) ([]*models.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*models.Service
	for _, svc := range m.services {
		if !svc.IsActive || svc.Status == models.StatusPaused {
			continue
		}
		if isDue(svc, now) {
			cp := *svc
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (m *Memory) SaveService(_ context.Context, svc *models.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *svc
	m.services[svc.ID] = &cp
	return nil
}

func (m *Memory) DeleteService(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.services[id]; !ok {
		return ErrNotFound
	}
	delete(m.services, id)
	delete(m.results, id)
	return nil
}

func (m *Memory) AppendCheckResult(_ context.Context, result *models.CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *result
	m.results[result.ServiceID] = append(m.results[result.ServiceID], &cp)
	return nil
}

func (m *Memory) ListCheckResults(_ context.Context, serviceID uuid.UUID, limit int) ([]*models.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.results[serviceID]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	// Most recent first.
	out := make([]*models.CheckResult, 0, limit)
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *history[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) CountCheckResults(_ context.Context, serviceID uuid.UUID, since time.Time) (int64, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total, healthy int64
	for _, r := range m.results[serviceID] {
		if r.CheckedAt.Before(since) {
			continue
		}
		total++
		if r.IsHealthy {
			healthy++
		}
	}
	return total, healthy, nil
}

func (m *Memory) PruneCheckResults(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pruned int64
	for id, history := range m.results {
		kept := history[:0]
		for _, r := range history {
			if r.CheckedAt.Before(olderThan) {
				pruned++
				continue
			}
			kept = append(kept, r)
		}
		m.results[id] = kept
	}
	return pruned, nil
}
