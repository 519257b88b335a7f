package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNoStateChange is returned when no change was ever recorded for a kind.
var ErrNoStateChange = errors.New("no state change recorded")

// Change is one process state transition.
type Change struct {
	Kind       string    `json:"kind"`
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	State      string    `json:"state"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Store persists state changes and answers the latest change per kind.
// Implementations must be safe for concurrent use.
type Store interface {
	Record(ctx context.Context, c Change) error
	LastStateChange(ctx context.Context, kind string) (time.Time, error)
	Close() error
}

// Memory is an in-process Store. Changes are kept per kind, ordered by time.
type Memory struct {
	mu      sync.RWMutex
	changes map[string][]Change
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{changes: make(map[string][]Change)}
}

func (m *Memory) Record(_ context.Context, c Change) error {
	if c.Kind == "" {
		return errors.New("state change requires a kind")
	}
	if c.OccurredAt.IsZero() {
		c.OccurredAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append(m.changes[c.Kind], c)
	sort.SliceStable(list, func(i, j int) bool { return list[i].OccurredAt.Before(list[j].OccurredAt) })
	m.changes[c.Kind] = list
	return nil
}

func (m *Memory) LastStateChange(_ context.Context, kind string) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.changes[kind]
	if len(list) == 0 {
		return time.Time{}, ErrNoStateChange
	}
	return list[len(list)-1].OccurredAt, nil
}

// Changes returns a copy of the recorded changes of kind, oldest first.
func (m *Memory) Changes(kind string) []Change {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Change(nil), m.changes[kind]...)
}

func (m *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
