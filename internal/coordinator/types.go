package coordinator

import (
	"context"
	"encoding/json"
	"time"
)

// Fetcher retrieves one resource's payload
type Fetcher interface {
	Fetch(ctx context.Context, resource string) (json.RawMessage, error)
}

// Store persists last-good entries across restarts. Implementations must be
// safe for concurrent use.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entry Entry) error
}

// Resource is a polled endpoint and its refresh cadence
type Resource struct {
	Name     string
	Interval time.Duration
}

// Entry is the last successful fetch of a resource. FetchedAt is the start
// of the tick that produced it.
type Entry struct {
	Resource  string          `json:"resource"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Snapshot is an immutable view of every resource fetched so far.
// Resources that never succeeded have no entry.
type Snapshot struct {
	Entries   map[string]Entry `json:"entries"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Get returns the entry for resource, if it was ever fetched
func (s *Snapshot) Get(resource string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	e, ok := s.Entries[resource]
	return e, ok
}

// Update is sent to subscribers after every tick
type Update struct {
	Snapshot *Snapshot
	// Changed lists resources whose payload differs from the previous one
	Changed []string
	Err     error
}

// ResourceStatus describes one resource's schedule
type ResourceStatus struct {
	Name        string        `json:"name"`
	Interval    time.Duration `json:"interval"`
	LastSuccess time.Time     `json:"last_success"`
	NextDue     time.Time     `json:"next_due"`
	Items       int           `json:"items"`
}

// Status is the observability view of the coordinator
type Status struct {
	LastTick  time.Time        `json:"last_tick"`
	LastError string           `json:"last_error,omitempty"`
	Resources []ResourceStatus `json:"resources"`

	// Filled in by the owner of the session, not the coordinator
	Account        string     `json:"account,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
}

// Healthy reports whether the last tick succeeded
func (s Status) Healthy() bool {
	return s.LastError == ""
}
