package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dvcrn/turmeric/internal/auth"
	"github.com/dvcrn/turmeric/internal/config"
	"github.com/dvcrn/turmeric/internal/coordinator"
	"github.com/dvcrn/turmeric/internal/credentials"
	"github.com/dvcrn/turmeric/internal/paprika"
	"github.com/dvcrn/turmeric/internal/server"
	"github.com/dvcrn/turmeric/internal/store"
	"github.com/rs/zerolog"
)

var (
	// ErrNotReady means the first refresh failed; the scheduler was not started
	ErrNotReady = errors.New("not ready: first refresh failed")
	// ErrStopped is returned by operations on an app after Stop
	ErrStopped = errors.New("app is stopped")
)

// Store is a coordinator store the app owns and closes on Stop
type Store interface {
	coordinator.Store
	io.Closer
}

// Options are the optional collaborators of an App
type Options struct {
	HTTPClient auth.HTTPClient
	// Store defaults to an in-memory store
	Store Store
	// Clock defaults to time.Now
	Clock func() time.Time
	// NoScheduler skips the background loop; refreshes then only happen
	// through Refresh and ForceRefresh, as on Workers
	NoScheduler bool
	Logger      zerolog.Logger
}

// App is the lifecycle around one Paprika account: setup, first refresh,
// scheduled refreshes, forced refreshes, reload and teardown.
type App struct {
	opts    Options
	logger  zerolog.Logger
	account string
	session *auth.Session
	fetcher *paprika.Fetcher

	// opMu is held shared by Refresh and ForceRefresh and exclusively by
	// Reload, so a manual tick always runs on the coordinator it was given.
	opMu sync.RWMutex

	mu       sync.RWMutex
	cfg      *config.Config
	coord    *coordinator.Coordinator
	unsub    func()
	restored bool
	started  bool
	stopped  bool

	subsMu  sync.Mutex
	subs    map[int]chan coordinator.Update
	nextSub int
}

// New validates cfg and credentials and wires the app. No network I/O
// happens until Start or Refresh.
func New(cfg *config.Config, creds credentials.CredentialsFetcher, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, config.ErrMissingCredentials
	}
	c, err := creds.GetCredentials()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = server.NewHTTPClient(opts.Logger)
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	account := c.UniqueID()
	logger := opts.Logger.With().Str("account", account).Logger()

	authenticator := auth.NewAuthenticator(opts.HTTPClient, cfg.LoginURLs, logger)
	session := auth.NewSession(authenticator, creds, cfg.APIToken, logger)

	a := &App{
		opts:    opts,
		logger:  logger,
		account: account,
		session: session,
		fetcher: paprika.NewFetcher(opts.HTTPClient, session, cfg.BaseURL, logger),
		cfg:     cfg,
		subs:    make(map[int]chan coordinator.Update),
	}

	coord, unsub, err := a.newCoordinator(cfg)
	if err != nil {
		return nil, err
	}
	a.coord, a.unsub = coord, unsub
	return a, nil
}

func (a *App) newCoordinator(cfg *config.Config) (*coordinator.Coordinator, func(), error) {
	coord, err := coordinator.New(a.fetcher, []coordinator.Resource{
		{Name: paprika.Groceries, Interval: cfg.GroceriesInterval()},
		{Name: paprika.Meals, Interval: cfg.MealsInterval()},
	},
		coordinator.WithClock(a.opts.Clock),
		coordinator.WithStore(a.opts.Store),
		coordinator.WithLogger(a.logger),
	)
	if err != nil {
		return nil, nil, err
	}

	updates, unsub := coord.Subscribe()
	go a.forward(updates)
	return coord, unsub, nil
}

// Account is the lower-cased email the app polls for
func (a *App) Account() string {
	return a.account
}

// Start logs in when no token was supplied, restores stored entries, runs
// the first refresh and starts the scheduler. Credentials the login
// endpoints turned down surface as auth.ErrInvalidCredentials and are final.
// Every other failure, a login outage included, is ErrNotReady.
func (a *App) Start(ctx context.Context) error {
	if _, err := a.Refresh(ctx); err != nil {
		if errors.Is(err, ErrStopped) || rejectedAtLogin(err) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return ErrStopped
	}
	a.started = true
	if !a.opts.NoScheduler {
		a.coord.Start()
	}

	a.logger.Info().
		Dur("tick_interval", a.coord.TickInterval()).
		Msg("✅ Paprika sync ready")
	return nil
}

// rejectedAtLogin reports whether the initial login was refused. A refusal
// during re-authentication mid-fetch is a runtime failure and does not count.
func rejectedAtLogin(err error) bool {
	return errors.Is(err, auth.ErrInvalidCredentials) && !errors.Is(err, paprika.ErrReauthFailed)
}

// Refresh runs a regular tick, logging in and restoring first if needed
func (a *App) Refresh(ctx context.Context) (*coordinator.Snapshot, error) {
	a.opMu.RLock()
	defer a.opMu.RUnlock()

	coord, err := a.prepare(ctx)
	if err != nil {
		return nil, err
	}
	return stoppedAs(coord.Refresh(ctx))
}

// ForceRefresh fetches every resource now, regardless of schedule
func (a *App) ForceRefresh(ctx context.Context) (*coordinator.Snapshot, error) {
	a.opMu.RLock()
	defer a.opMu.RUnlock()

	coord, err := a.prepare(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Info().Msg("🔄 Forced refresh of all resources")
	return stoppedAs(coord.ForceRefresh(ctx))
}

// stoppedAs maps a tick cut short by Stop to ErrStopped
func stoppedAs(snap *coordinator.Snapshot, err error) (*coordinator.Snapshot, error) {
	if errors.Is(err, coordinator.ErrStopped) {
		return snap, ErrStopped
	}
	return snap, err
}

func (a *App) prepare(ctx context.Context) (*coordinator.Coordinator, error) {
	a.mu.RLock()
	stopped, coord, restored := a.stopped, a.coord, a.restored
	a.mu.RUnlock()

	if stopped {
		return nil, ErrStopped
	}

	if !a.session.HasToken() {
		if _, err := a.session.Login(ctx); err != nil {
			return nil, err
		}
	}

	if !restored {
		if err := coord.Restore(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Could not restore stored entries, starting empty")
		}
		a.mu.Lock()
		a.restored = true
		a.mu.Unlock()
	}
	return coord, nil
}

// Stop halts the scheduler, cancels any in-flight refresh and closes the
// store. No tick runs and nothing is written after Stop returns.
func (a *App) Stop() error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	coord := a.coord
	a.mu.Unlock()

	coord.Stop()
	// Wait out manual refreshes and a reload that may have swapped in a
	// newer coordinator meanwhile.
	a.opMu.Lock()
	coord, unsub := a.current(), a.unsubscriber()
	a.opMu.Unlock()
	coord.Stop()
	unsub()

	a.subsMu.Lock()
	for id, ch := range a.subs {
		close(ch)
		delete(a.subs, id)
	}
	a.subsMu.Unlock()

	if err := a.opts.Store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	a.logger.Info().Msg("Paprika sync stopped")
	return nil
}

// Reload applies new options: the scheduler is rebuilt with the new
// intervals while the session token and cached entries are kept. Refreshes
// wait for the reload to finish.
func (a *App) Reload(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.opMu.Lock()
	defer a.opMu.Unlock()

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return ErrStopped
	}
	old, oldUnsub := a.coord, a.unsub
	a.mu.Unlock()

	coord, unsub, err := a.newCoordinator(cfg)
	if err != nil {
		return err
	}
	old.Stop()
	oldUnsub()

	// The store may have missed a save, so carry the old snapshot over first
	for _, e := range old.Snapshot().Entries {
		if err := a.opts.Store.Save(ctx, e); err != nil {
			a.logger.Warn().Err(err).Str("resource", e.Resource).Msg("Could not carry entry over")
		}
	}
	if err := coord.Restore(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("Could not restore entries on reload")
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		coord.Stop()
		unsub()
		return ErrStopped
	}
	a.coord, a.unsub = coord, unsub
	a.cfg = cfg
	a.restored = true
	started := a.started
	a.mu.Unlock()

	a.logger.Info().
		Int("groceries_refresh", cfg.GroceriesRefresh).
		Int("meals_refresh", cfg.MealsRefresh).
		Msg("Configuration reloaded")

	if _, err := coord.Refresh(ctx); err != nil && !errors.Is(err, coordinator.ErrStopped) {
		a.logger.Warn().Err(err).Msg("Refresh after reload failed")
	}
	if started && !a.opts.NoScheduler {
		coord.Start()
	}
	return nil
}

func (a *App) current() *coordinator.Coordinator {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.coord
}

func (a *App) unsubscriber() func() {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.unsub
}

// Config returns the active configuration
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Snapshot returns the current snapshot, never nil
func (a *App) Snapshot() *coordinator.Snapshot {
	return a.current().Snapshot()
}

// Status reports the schedule along with the account and token expiry
func (a *App) Status() coordinator.Status {
	st := a.current().Status()
	st.Account = a.account
	if exp, ok := a.session.ExpiresAt(); ok {
		st.TokenExpiresAt = &exp
	}
	return st
}

// Subscribe receives an update after every tick, across reloads
func (a *App) Subscribe() (<-chan coordinator.Update, func()) {
	ch := make(chan coordinator.Update, 1)

	a.subsMu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	a.subsMu.Unlock()

	return ch, func() {
		a.subsMu.Lock()
		defer a.subsMu.Unlock()
		if _, ok := a.subs[id]; ok {
			delete(a.subs, id)
			close(ch)
		}
	}
}

func (a *App) forward(updates <-chan coordinator.Update) {
	for u := range updates {
		a.subsMu.Lock()
		for _, ch := range a.subs {
			select {
			case ch <- u:
			default:
			}
		}
		a.subsMu.Unlock()
	}
}
