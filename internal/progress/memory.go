package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/domain"
)

// Memory is a mutex-guarded in-process Tracker with the same
// semantics as the durable implementation. Suitable for tests and
// single-instance deployments; concurrent pollers see consistent
// snapshots.
type Memory struct {
	mu        sync.RWMutex
	retention time.Duration
	now       func() time.Time
	records   map[string]domain.ImportProgress
}

// NewMemory creates an in-memory tracker. Completed records expire
// after the retention window; zero disables expiry.
func NewMemory(retention time.Duration) *Memory {
	return &Memory{
		retention: retention,
		now:       time.Now,
		records:   make(map[string]domain.ImportProgress),
	}
}

func (m *Memory) Create(ctx context.Context, id, fileName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked()

	if _, exists := m.records[id]; exists {
		return fmt.Errorf("import %s already registered", id)
	}
	m.records[id] = domain.ImportProgress{
		ImportID:  id,
		FileName:  fileName,
		Percent:   0,
		Step:      "created",
		UpdatedAt: m.now(),
	}
	return nil
}

func (m *Memory) SetProgress(ctx context.Context, id string, percent int, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.records[id]
	if !exists {
		return ErrNotFound
	}
	if record.Completed {
		return ErrCompleted
	}

	percent = clampPercent(percent)
	if percent > record.Percent {
		record.Percent = percent
	}
	record.Step = step
	record.UpdatedAt = m.now()
	m.records[id] = record
	return nil
}

func (m *Memory) Finalize(ctx context.Context, id string, result domain.ImportResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.records[id]
	if !exists {
		return ErrNotFound
	}
	if record.Completed {
		if record.Result != nil && record.Result.Equal(result) {
			return nil
		}
		return ErrCompleted
	}

	record.Percent = 100
	record.Step = "completed"
	if !result.Success {
		record.Step = "failed"
	}
	record.Completed = true
	record.Result = &result
	record.UpdatedAt = m.now()
	m.records[id] = record
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (domain.ImportProgress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.records[id]
	if !exists || m.expired(record) {
		return domain.ImportProgress{}, ErrNotFound
	}
	return record, nil
}

func (m *Memory) expired(record domain.ImportProgress) bool {
	if m.retention <= 0 || !record.Completed {
		return false
	}
	return m.now().Sub(record.UpdatedAt) > m.retention
}

func (m *Memory) sweepLocked() {
	for id, record := range m.records {
		if m.expired(record) {
			delete(m.records, id)
		}
	}
}

var _ Tracker = (*Memory)(nil)
