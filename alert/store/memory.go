// Package store provides in-process TriggerStore implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/cashflow-engine/alert"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	triggers map[alert.Key]alert.Trigger
}

func NewMemory() *Memory {
	return &Memory{
		triggers: make(map[alert.Key]alert.Trigger),
	}
}

// FindOrCreate is atomic under the write lock, so it never reports
// ErrDuplicateTrigger.
func (m *Memory) FindOrCreate(ctx context.Context, t alert.Trigger) (alert.Trigger, bool, error) {
	if err := ctx.Err(); err != nil {
		return alert.Trigger{}, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.Key()
	if existing, ok := m.triggers[key]; ok {
		return existing, false, nil
	}
	m.triggers[key] = t
	return t, true, nil
}

func (m *Memory) Find(ctx context.Context, key alert.Key) (alert.Trigger, error) {
	if err := ctx.Err(); err != nil {
		return alert.Trigger{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.triggers[key]
	if !ok {
		return alert.Trigger{}, alert.ErrTriggerNotFound
	}
	return t, nil
}

func (m *Memory) Touch(ctx context.Context, key alert.Key, at time.Time) (alert.Trigger, error) {
	if err := ctx.Err(); err != nil {
		return alert.Trigger{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.triggers[key]
	if !ok {
		return alert.Trigger{}, alert.ErrTriggerNotFound
	}
	t.TriggeredAt = at.UTC()
	m.triggers[key] = t
	return t, nil
}

func (m *Memory) List(ctx context.Context, budgetID int64) ([]alert.Trigger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []alert.Trigger
	for k, t := range m.triggers {
		if k.BudgetID == budgetID {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].ReferenceMonth.Equal(result[j].ReferenceMonth) {
			return result[i].ReferenceMonth.Before(result[j].ReferenceMonth)
		}
		return result[i].Threshold < result[j].Threshold
	})
	return result, nil
}

var _ alert.TriggerStore = (*Memory)(nil)
