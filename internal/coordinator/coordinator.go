package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dvcrn/turmeric/internal/paprika"
	"github.com/rs/zerolog"
	"github.com/yudai/gojsondiff"
	"golang.org/x/sync/errgroup"
)

// ErrStopped is returned by ticks on a stopped coordinator
var ErrStopped = errors.New("coordinator is stopped")

// Coordinator polls a fixed set of resources, each on its own interval, from
// a single scheduler that ticks at the shortest interval.
type Coordinator struct {
	resources []Resource
	fetcher   Fetcher
	store     Store
	logger    zerolog.Logger
	now       func() time.Time

	// tickMu serializes ticks: scheduled, first and forced
	tickMu   sync.Mutex
	snapshot atomic.Pointer[Snapshot]

	// life is cancelled by Stop and bounds every tick, manual ones included
	life    context.Context
	kill    context.CancelFunc
	stopped atomic.Bool

	mu       sync.RWMutex
	lastTick time.Time
	lastErr  error
	subs     map[int]chan Update
	nextSub  int

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithStore persists every successful entry and enables Restore
func WithStore(store Store) Option {
	return func(c *Coordinator) { c.store = store }
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// New creates a coordinator for resources. Names must be unique and every
// interval positive.
func New(fetcher Fetcher, resources []Resource, opts ...Option) (*Coordinator, error) {
	if fetcher == nil {
		return nil, errors.New("coordinator: fetcher is required")
	}
	if len(resources) == 0 {
		return nil, errors.New("coordinator: at least one resource is required")
	}

	seen := make(map[string]bool, len(resources))
	for _, r := range resources {
		if r.Name == "" {
			return nil, errors.New("coordinator: resource name is empty")
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("coordinator: duplicate resource %q", r.Name)
		}
		if r.Interval <= 0 {
			return nil, fmt.Errorf("coordinator: resource %q has non-positive interval %s", r.Name, r.Interval)
		}
		seen[r.Name] = true
	}

	life, kill := context.WithCancel(context.Background())
	c := &Coordinator{
		life:      life,
		kill:      kill,
		resources: slices.Clone(resources),
		fetcher:   fetcher,
		logger:    zerolog.Nop(),
		now:       time.Now,
		subs:      make(map[int]chan Update),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.snapshot.Store(&Snapshot{Entries: map[string]Entry{}})
	return c, nil
}

// TickInterval is the scheduler period, the shortest resource interval
func (c *Coordinator) TickInterval() time.Duration {
	shortest := c.resources[0].Interval
	for _, r := range c.resources[1:] {
		if r.Interval < shortest {
			shortest = r.Interval
		}
	}
	return shortest
}

// Resources returns the configured resources
func (c *Coordinator) Resources() []Resource {
	return slices.Clone(c.resources)
}

// Snapshot returns the current snapshot. It is never nil and must not be modified.
func (c *Coordinator) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

// Refresh runs one tick: every due resource is fetched concurrently and
// resources that are not due are left alone.
func (c *Coordinator) Refresh(ctx context.Context) (*Snapshot, error) {
	return c.tick(ctx, false)
}

// ForceRefresh runs one tick treating every resource as due
func (c *Coordinator) ForceRefresh(ctx context.Context) (*Snapshot, error) {
	return c.tick(ctx, true)
}

type result struct {
	resource string
	payload  json.RawMessage
	err      error
}

func (c *Coordinator) tick(ctx context.Context, force bool) (*Snapshot, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	prev := c.snapshot.Load()
	if c.stopped.Load() {
		return prev, ErrStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(c.life, cancel)()

	now := c.now()

	var due []Resource
	for _, r := range c.resources {
		if force || isDue(prev, r, now) {
			due = append(due, r)
		}
	}

	if len(due) == 0 {
		c.logger.Debug().Msg("No resource due, skipping tick")
		c.finishTick(now, prev, nil, nil)
		return prev, nil
	}

	results := make([]result, len(due))
	// Plain Group, no derived context: a failed fetch never cancels its
	// sibling. Fetch errors are kept per resource in results, so the
	// closures never return one and Wait has nothing to report.
	var g errgroup.Group
	for i, r := range due {
		g.Go(func() error {
			payload, err := c.fetcher.Fetch(ctx, r.Name)
			results[i] = result{resource: r.Name, payload: payload, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if c.stopped.Load() {
		c.logger.Debug().Msg("Coordinator stopped mid-tick, discarding results")
		return prev, ErrStopped
	}

	entries := make(map[string]Entry, len(prev.Entries)+len(results))
	for k, v := range prev.Entries {
		entries[k] = v
	}

	var (
		errs    []error
		changed []string
		updated []Entry
	)
	for _, res := range results {
		if res.err != nil {
			c.logger.Warn().Err(res.err).Str("resource", res.resource).Msg("Resource refresh failed")
			errs = append(errs, res.err)
			continue
		}

		old, hadOld := prev.Entries[res.resource]
		entry := Entry{Resource: res.resource, Payload: res.payload, FetchedAt: now}
		entries[res.resource] = entry
		updated = append(updated, entry)

		if !hadOld || c.payloadChanged(res.resource, old.Payload, res.payload) {
			changed = append(changed, res.resource)
		}

		c.logger.Info().
			Str("resource", res.resource).
			Int("items", paprika.ItemCount(res.payload)).
			Bool("changed", slices.Contains(changed, res.resource)).
			Msg("Resource refreshed")
	}

	next := prev
	if len(updated) > 0 {
		next = &Snapshot{Entries: entries, UpdatedAt: now}
		c.snapshot.Store(next)
		c.persist(ctx, updated)
	}

	err := errors.Join(errs...)
	c.finishTick(now, next, changed, err)
	return next, err
}

func isDue(s *Snapshot, r Resource, now time.Time) bool {
	e, ok := s.Get(r.Name)
	if !ok || e.FetchedAt.IsZero() {
		return true
	}
	return now.Sub(e.FetchedAt) >= r.Interval
}

func (c *Coordinator) payloadChanged(resource string, prev, next []byte) bool {
	diff, err := gojsondiff.New().Compare(prev, next)
	if err != nil {
		// gojsondiff only handles object roots
		return !bytes.Equal(prev, next)
	}
	if !diff.Modified() {
		return false
	}
	c.logger.Debug().
		Str("resource", resource).
		Int("deltas", len(diff.Deltas())).
		Msg("Payload changed")
	return true
}

func (c *Coordinator) persist(ctx context.Context, entries []Entry) {
	if c.store == nil {
		return
	}
	for _, e := range entries {
		if err := c.store.Save(ctx, e); err != nil {
			c.logger.Error().Err(err).Str("resource", e.Resource).Msg("Failed to persist entry")
		}
	}
}

func (c *Coordinator) finishTick(now time.Time, snap *Snapshot, changed []string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTick = now
	c.lastErr = err

	// Sends never block, and holding mu keeps Subscribe's cancel from
	// closing a channel mid-send.
	update := Update{Snapshot: snap, Changed: changed, Err: err}
	for _, ch := range c.subs {
		select {
		case ch <- update:
		default:
			c.logger.Debug().Msg("Subscriber is behind, dropping update")
		}
	}
}

// Subscribe returns a channel receiving an Update after every tick, and a
// function that unsubscribes and closes it. Slow subscribers miss updates.
func (c *Coordinator) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Restore seeds the snapshot from the store so a restart keeps both the
// last-good payloads and the cadence. Unknown resources are ignored.
func (c *Coordinator) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	loaded, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored entries: %w", err)
	}

	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	prev := c.snapshot.Load()
	entries := make(map[string]Entry, len(prev.Entries))
	for k, v := range prev.Entries {
		entries[k] = v
	}

	var updatedAt time.Time
	for _, e := range loaded {
		if !c.known(e.Resource) || len(e.Payload) == 0 {
			continue
		}
		if cur, ok := entries[e.Resource]; ok && !e.FetchedAt.After(cur.FetchedAt) {
			continue
		}
		entries[e.Resource] = e
		if e.FetchedAt.After(updatedAt) {
			updatedAt = e.FetchedAt
		}
		c.logger.Debug().
			Str("resource", e.Resource).
			Time("fetched_at", e.FetchedAt).
			Msg("Restored entry")
	}
	if updatedAt.Before(prev.UpdatedAt) {
		updatedAt = prev.UpdatedAt
	}

	c.snapshot.Store(&Snapshot{Entries: entries, UpdatedAt: updatedAt})
	return nil
}

func (c *Coordinator) known(name string) bool {
	return slices.ContainsFunc(c.resources, func(r Resource) bool { return r.Name == name })
}

// Status reports the last tick and each resource's schedule
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	st := Status{LastTick: c.lastTick}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	c.mu.RUnlock()

	snap := c.snapshot.Load()
	now := c.now()
	for _, r := range c.resources {
		rs := ResourceStatus{Name: r.Name, Interval: r.Interval, NextDue: now, Items: -1}
		if e, ok := snap.Get(r.Name); ok {
			rs.LastSuccess = e.FetchedAt
			rs.NextDue = e.FetchedAt.Add(r.Interval)
			rs.Items = paprika.ItemCount(e.Payload)
		}
		st.Resources = append(st.Resources, rs)
	}
	return st
}

// LastError returns the failure of the most recent tick, if any
func (c *Coordinator) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}
