// Package orchestrator ties a state store to its repository and sync channel:
// it hydrates the store on start, persists every local change, broadcasts
// it to other clients and reloads when another client reports a change.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/erazemk/oskrba/internal/metrics"
	"github.com/erazemk/oskrba/internal/model"
	"github.com/erazemk/oskrba/internal/repository"
	"github.com/erazemk/oskrba/internal/state"
	"github.com/erazemk/oskrba/internal/syncchan"
)

// DefaultTimeout bounds every repository and channel operation.
const DefaultTimeout = 10 * time.Second

// ErrClosed is returned by operations on a closed orchestrator.
var ErrClosed = errors.New("orchestrator closed")

// OpenChannelFunc opens the sync channel, delivering remote messages to handler.
type OpenChannelFunc func(ctx context.Context, handler syncchan.Handler) (syncchan.Channel, error)

// Config holds the collaborators of an Orchestrator. Store and Resolver are
// required.
type Config struct {
	Store    *state.Store
	Resolver *repository.Resolver
	// OpenChannel is optional; without it changes are not broadcast.
	OpenChannel OpenChannelFunc
	// Seed produces the state used when loading fails. Defaults to the
	// resolver's seed.
	Seed    func() model.AppState
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Timeout time.Duration
	Now     func() time.Time
}

// SyncInfo describes the last synchronization with the repository.
type SyncInfo struct {
	Syncing      bool
	LastSyncedAt time.Time
	Source       repository.Source
	Error        string
}

// Orchestrator keeps a store in sync with its repository.
type Orchestrator struct {
	store    *state.Store
	resolver *repository.Resolver
	open     OpenChannelFunc
	seed     func() model.AppState
	logger   *slog.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
	now      func() time.Time

	// hydrateMu serializes hydrations so the skip flags below belong to
	// exactly one Hydrate dispatch.
	hydrateMu sync.Mutex

	mu          sync.Mutex
	info        SyncInfo
	inflight    int
	skipHydrate bool
	skipRemote  bool
	started     bool
	closed      bool
	channel     syncchan.Channel
	unsubscribe func()

	saves  sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an orchestrator. Nothing is loaded until Start.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		store:    cfg.Store,
		resolver: cfg.Resolver,
		open:     cfg.OpenChannel,
		seed:     cfg.Seed,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
	}
	if o.seed == nil {
		o.seed = cfg.Resolver.Seed
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	if o.now == nil {
		o.now = time.Now
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())
	return o
}

// Start loads the state into the store, starts persisting changes and opens
// the sync channel. A failed load is not fatal: the store is hydrated with a
// seed and the error is recorded in SyncInfo.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.started {
		o.mu.Unlock()
		return errors.New("orchestrator already started")
	}
	o.started = true
	o.mu.Unlock()

	// A failed load is recorded in SyncInfo.
	_ = o.load(ctx, false)

	unsubscribe := o.store.Subscribe(o.onChange)
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	o.unsubscribe = unsubscribe
	o.mu.Unlock()

	if o.open == nil {
		return nil
	}
	openCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	ch, err := o.open(openCtx, o.onRemote)
	if err != nil {
		o.logger.Warn("sync channel unavailable", "error", err)
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		ch.Close()
		return ErrClosed
	}
	o.channel = ch
	return nil
}

// Dispatch validates a and applies it to the store. Validation and reduction
// see the same state. The resulting change is persisted and broadcast in the
// background.
func (o *Orchestrator) Dispatch(a state.Action) error {
	_, err := o.store.DispatchIf(state.Validate, a)
	return err
}

// State returns the current state.
func (o *Orchestrator) State() model.AppState {
	return o.store.State()
}

// Refresh reloads the state from the repository. On failure the store keeps
// its current state and the error is recorded and returned.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	if o.isClosed() {
		return ErrClosed
	}
	return o.load(ctx, true)
}

// Reset replaces the state with a fresh seed, clears the repository and
// persists the seed.
func (o *Orchestrator) Reset(ctx context.Context) error {
	if o.isClosed() {
		return ErrClosed
	}
	fresh := o.seed()
	o.hydrate(fresh, false)

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	o.setSyncing()

	err := o.resolver.Clear(ctx)
	if err != nil {
		o.logger.Warn("clearing repository", "error", err)
	}
	saveErr := o.resolver.Save(ctx, fresh)
	o.metrics.Save(saveErr)
	if err = errors.Join(err, saveErr); err != nil {
		o.finishSync("", err)
		return fmt.Errorf("resetting state: %w", err)
	}
	o.finishSync(repository.SourceSeed, nil)
	o.broadcast(ctx)
	o.logger.Info("state reset to seed")
	return nil
}

// SyncInfo returns the current synchronization status.
func (o *Orchestrator) SyncInfo() SyncInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.info
}

// Wait blocks until every background save has finished.
func (o *Orchestrator) Wait() {
	o.saves.Wait()
}

// Close stops listening for changes, waits for pending saves and closes the
// sync channel.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	unsubscribe, ch := o.unsubscribe, o.channel
	o.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	o.saves.Wait()
	o.cancel()
	if ch != nil {
		if err := ch.Close(); err != nil {
			return fmt.Errorf("closing sync channel: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// load fetches the state and hydrates the store. With keepOnError the store
// is left alone when loading fails; otherwise it is hydrated with a seed.
func (o *Orchestrator) load(ctx context.Context, keepOnError bool) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	o.setSyncing()
	res, err := o.resolver.LoadDataState(ctx)
	if err != nil {
		o.metrics.LoadFailed()
		o.logger.Error("loading state", "error", err)
		if keepOnError {
			o.finishSync("", err)
			return err
		}
		o.hydrate(o.seed(), false)
		o.finishSync(repository.SourceSeed, err)
		return err
	}

	o.metrics.Load(string(res.Source))
	o.hydrate(res.State, false)
	o.finishSync(res.Source, nil)
	o.logger.Debug("state loaded", "source", res.Source, "items", len(res.State.Items))
	return nil
}

// hydrate replaces the store's state without persisting or broadcasting the
// change.
func (o *Orchestrator) hydrate(s model.AppState, remote bool) {
	o.hydrateMu.Lock()
	defer o.hydrateMu.Unlock()

	o.mu.Lock()
	if remote {
		o.skipRemote = true
	} else {
		o.skipHydrate = true
	}
	o.mu.Unlock()

	o.store.Dispatch(state.Hydrate{State: s})

	o.mu.Lock()
	o.skipHydrate, o.skipRemote = false, false
	o.mu.Unlock()
}

// onChange persists and broadcasts a store change unless it came from one
// of our own hydrations.
func (o *Orchestrator) onChange(c state.Change) {
	o.mu.Lock()
	if _, ok := c.Action.(state.Hydrate); ok && (o.skipHydrate || o.skipRemote) {
		o.skipHydrate, o.skipRemote = false, false
		o.mu.Unlock()
		return
	}
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.saves.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.saves.Done()
		o.persist(c.Next, c.Action.Kind())
	}()
}

func (o *Orchestrator) persist(s model.AppState, kind string) {
	ctx, cancel := context.WithTimeout(o.ctx, o.timeout)
	defer cancel()

	o.setSyncing()
	err := o.resolver.Save(ctx, s)
	o.metrics.Save(err)
	if err != nil {
		o.logger.Error("saving state", "action", kind, "error", err)
		o.finishSync("", err)
		return
	}
	o.finishSync("", nil)
	o.broadcast(ctx)
}

func (o *Orchestrator) broadcast(ctx context.Context) {
	o.mu.Lock()
	ch := o.channel
	o.mu.Unlock()
	if ch == nil {
		return
	}
	if err := ch.Notify(ctx); err != nil && !errors.Is(err, syncchan.ErrClosed) {
		o.logger.Warn("broadcasting state update", "error", err)
	}
}

// onRemote reloads after another client saved. The reload neither persists
// nor broadcasts.
func (o *Orchestrator) onRemote(msg syncchan.Message) {
	if o.isClosed() {
		return
	}
	o.logger.Debug("remote update", "origin", msg.OriginID, "at", msg.At)

	ctx, cancel := context.WithTimeout(o.ctx, o.timeout)
	defer cancel()

	o.setSyncing()
	res, err := o.resolver.LoadDataState(ctx)
	if err != nil {
		o.metrics.LoadFailed()
		o.logger.Warn("reloading after remote update", "error", err)
		o.finishSync("", err)
		return
	}
	o.metrics.Load(string(res.Source))
	o.hydrate(res.State, true)
	o.finishSync(res.Source, nil)
}

// setSyncing marks the start of a repository operation. Syncing stays true
// until every started operation has finished.
func (o *Orchestrator) setSyncing() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inflight++
	o.info.Syncing = true
}

// finishSync ends a repository operation. On success the error is cleared
// and the sync time recorded; an empty source keeps the previous one.
func (o *Orchestrator) finishSync(source repository.Source, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inflight--
	o.info.Syncing = o.inflight > 0
	if source != "" {
		o.info.Source = source
	}
	if err != nil {
		o.info.Error = err.Error()
		return
	}
	o.info.Error = ""
	o.info.LastSyncedAt = o.now()
}
