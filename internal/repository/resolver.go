package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/erazemk/oskrba/internal/model"
	"github.com/erazemk/oskrba/internal/seed"
)

// Result is a loaded state and where it came from.
type Result struct {
	State  model.AppState
	Source Source
}

// Resolver picks the repository to use and applies the fallback chain:
// a custom repository if one is set, otherwise the remote store backed by an
// in-memory cache of the last good state and an optional persisted snapshot.
type Resolver struct {
	remote   Repository
	snapshot Repository
	seed     func() model.AppState
	logger   *slog.Logger

	mu     sync.Mutex
	custom Repository
	cache  *model.AppState
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSnapshot mirrors every good state into snap and consults it when the
// remote store fails and nothing is cached in memory.
func WithSnapshot(snap Repository) ResolverOption {
	return func(r *Resolver) { r.snapshot = snap }
}

// WithSeed sets the function producing the default dataset.
func WithSeed(fn func() model.AppState) ResolverOption {
	return func(r *Resolver) { r.seed = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// WithCustom installs a custom repository from the start.
func WithCustom(repo Repository) ResolverOption {
	return func(r *Resolver) { r.custom = repo }
}

// NewResolver creates a resolver over remote.
func NewResolver(remote Repository, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		remote: remote,
		seed:   func() model.AppState { return seed.New(time.Now()) },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetCustom replaces the remote chain with repo. A nil repo restores it.
func (r *Resolver) SetCustom(repo Repository) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom = repo
}

// Seed returns a fresh default dataset.
func (r *Resolver) Seed() model.AppState {
	return r.seed()
}

// Cached returns the last state loaded from or saved to the remote store.
func (r *Resolver) Cached() (model.AppState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		return model.AppState{}, false
	}
	return r.cache.Clone(), true
}

func (r *Resolver) customRepo() Repository {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.custom
}

func (r *Resolver) setCache(s *model.AppState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s == nil {
		r.cache = nil
		return
	}
	c := s.Clone()
	r.cache = &c
}

// LoadDataState loads the current state and reports its source. When the
// remote store fails and neither the in-memory cache nor the snapshot has a
// state, the returned error wraps ErrUnreachable.
func (r *Resolver) LoadDataState(ctx context.Context) (Result, error) {
	if custom := r.customRepo(); custom != nil {
		st, err := custom.Load(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("loading from custom repository: %w", err)
		}
		if st == nil {
			return Result{State: r.seed(), Source: SourceCustom}, nil
		}
		return Result{State: *st, Source: SourceCustom}, nil
	}

	if r.remote == nil {
		return Result{}, fmt.Errorf("%w: no repository configured", ErrUnreachable)
	}

	st, err := r.remote.Load(ctx)
	if err == nil && st != nil {
		r.setCache(st)
		r.mirror(ctx, *st)
		return Result{State: *st, Source: SourceRemote}, nil
	}

	if err == nil {
		fresh := r.seed()
		if err := r.remote.Save(ctx, fresh); err != nil {
			r.logger.Warn("storing seed state remotely", "error", err)
		}
		r.setCache(&fresh)
		r.mirror(ctx, fresh)
		return Result{State: fresh, Source: SourceSeed}, nil
	}

	r.logger.Warn("remote load failed, trying cache", "error", err)
	if cached, ok := r.Cached(); ok {
		return Result{State: cached, Source: SourceCache}, nil
	}
	if r.snapshot != nil {
		snap, snapErr := r.snapshot.Load(ctx)
		if snapErr != nil {
			r.logger.Warn("loading snapshot", "error", snapErr)
		} else if snap != nil {
			r.setCache(snap)
			return Result{State: *snap, Source: SourceCache}, nil
		}
	}
	return Result{}, fmt.Errorf("loading state: %w: %w", ErrUnreachable, err)
}

// Save persists state. On the remote chain the in-memory cache and the
// snapshot are updated before the network write, so a later failed load in
// this session still sees state. Remote errors are returned.
func (r *Resolver) Save(ctx context.Context, state model.AppState) error {
	if custom := r.customRepo(); custom != nil {
		if err := custom.Save(ctx, state); err != nil {
			return fmt.Errorf("saving to custom repository: %w", err)
		}
		return nil
	}
	if r.remote == nil {
		return fmt.Errorf("%w: no repository configured", ErrUnreachable)
	}

	r.setCache(&state)
	r.mirror(ctx, state)
	if err := r.remote.Save(ctx, state); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

// Clear removes the stored state together with the cache and snapshot.
func (r *Resolver) Clear(ctx context.Context) error {
	if custom := r.customRepo(); custom != nil {
		if err := custom.Clear(ctx); err != nil {
			return fmt.Errorf("clearing custom repository: %w", err)
		}
		return nil
	}

	r.setCache(nil)
	var errs []error
	if r.snapshot != nil {
		if err := r.snapshot.Clear(ctx); err != nil {
			r.logger.Warn("clearing snapshot", "error", err)
		}
	}
	if r.remote != nil {
		if err := r.remote.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("clearing state: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Resolver) mirror(ctx context.Context, state model.AppState) {
	if r.snapshot == nil {
		return
	}
	if err := r.snapshot.Save(ctx, state); err != nil {
		r.logger.Warn("updating snapshot", "error", err)
	}
}
