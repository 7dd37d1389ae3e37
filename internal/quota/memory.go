package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is an in-process Ledger for tests and single-instance dev.
type MemoryLedger struct {
	mu   sync.Mutex
	used map[memoryKey]int
	now  Clock
}

type memoryKey struct {
	key string
	day string
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty ledger. A nil clock uses time.Now.
func NewMemoryLedger(now Clock) *MemoryLedger {
	if now == nil {
		now = time.Now
	}
	return &MemoryLedger{used: make(map[memoryKey]int), now: now}
}

func (m *MemoryLedger) Consume(_ context.Context, key string, limit int) (Decision, error) {
	if key == "" {
		return Decision{}, ErrEmptyIdentity
	}
	if limit == 0 {
		return denied(limit), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := memoryKey{key: key, day: DayString(m.now())}
	used := m.used[k]
	if limit > 0 && used >= limit {
		return NewDecision(false, used, limit), nil
	}
	used++
	m.used[k] = used
	return NewDecision(true, used, limit), nil
}

func (m *MemoryLedger) Release(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyIdentity
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := memoryKey{key: key, day: DayString(m.now())}
	if m.used[k] > 0 {
		m.used[k]--
	}
	return nil
}

func (m *MemoryLedger) Used(_ context.Context, key string) (int, error) {
	if key == "" {
		return 0, ErrEmptyIdentity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used[memoryKey{key: key, day: DayString(m.now())}], nil
}

// Rows reports how many (identity, day) rows exist for key across all days.
func (m *MemoryLedger) Rows(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.used {
		if k.key == key {
			n++
		}
	}
	return n
}
