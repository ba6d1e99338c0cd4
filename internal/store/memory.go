package store

import (
	"context"
	"slices"
	"sync"

	"github.com/dvcrn/turmeric/internal/coordinator"
)

// Memory keeps entries for the lifetime of the process. It is the default
// store and what lets Reload keep cached payloads.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]coordinator.Entry
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]coordinator.Entry)}
}

func (m *Memory) Load(ctx context.Context) ([]coordinator.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]coordinator.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		e.Payload = slices.Clone(e.Payload)
		out = append(out, e)
	}
	return out, nil
}

func (m *Memory) Save(ctx context.Context, entry coordinator.Entry) error {
	entry.Payload = slices.Clone(entry.Payload)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Resource] = entry
	return nil
}

func (m *Memory) Close() error {
	return nil
}
