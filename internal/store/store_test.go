//go:build !js || !wasm

package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvcrn/turmeric/internal/coordinator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entryStore interface {
	coordinator.Store
	Close() error
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) entryStore{
		"memory": func(t *testing.T) entryStore { return NewMemory() },
		"sqlite": func(t *testing.T) entryStore {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"), "cook@example.com")
			require.NoError(t, err)
			return s
		},
	}

	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()

			entries, err := s.Load(ctx)
			require.NoError(t, err)
			assert.Empty(t, entries)

			at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
			require.NoError(t, s.Save(ctx, coordinator.Entry{Resource: "groceries", Payload: json.RawMessage(`{"result":[1]}`), FetchedAt: at}))
			require.NoError(t, s.Save(ctx, coordinator.Entry{Resource: "meals", Payload: json.RawMessage(`{"result":[]}`), FetchedAt: at}))
			require.NoError(t, s.Save(ctx, coordinator.Entry{Resource: "groceries", Payload: json.RawMessage(`{"result":[1,2]}`), FetchedAt: at.Add(time.Hour)}))

			entries, err = s.Load(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 2)

			byName := map[string]coordinator.Entry{}
			for _, e := range entries {
				byName[e.Resource] = e
			}
			assert.JSONEq(t, `{"result":[1,2]}`, string(byName["groceries"].Payload))
			assert.True(t, at.Add(time.Hour).Equal(byName["groceries"].FetchedAt))
			assert.True(t, at.Equal(byName["meals"].FetchedAt))
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	s, err := OpenSQLite(path, "cook@example.com")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, coordinator.Entry{Resource: "meals", Payload: json.RawMessage(`{"result":[]}`), FetchedAt: at}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, "cook@example.com")
	require.NoError(t, err)
	defer s.Close()
	entries, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "meals", entries[0].Resource)

	other, err := OpenSQLite(path, "baker@example.com")
	require.NoError(t, err)
	defer other.Close()
	entries, err = other.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "accounts are isolated")
}

func TestMemoryCopiesPayloads(t *testing.T) {
	m := NewMemory()
	payload := json.RawMessage(`{"a":1}`)
	require.NoError(t, m.Save(context.Background(), coordinator.Entry{Resource: "meals", Payload: payload}))
	payload[2] = 'b'

	entries, err := m.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(entries[0].Payload))
}
