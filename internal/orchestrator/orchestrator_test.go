package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/oskrba/internal/db"
	"github.com/erazemk/oskrba/internal/localstore"
	"github.com/erazemk/oskrba/internal/model"
	"github.com/erazemk/oskrba/internal/repository"
	"github.com/erazemk/oskrba/internal/seed"
	"github.com/erazemk/oskrba/internal/state"
	"github.com/erazemk/oskrba/internal/syncchan"
)

var (
	t0         = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	errNetwork = errors.New("connection refused")
	quiet      = slog.New(slog.NewTextHandler(io.Discard, nil))
)

// fixedSeed returns the same seed on every call.
func fixedSeed() func() model.AppState {
	s := seed.New(t0)
	return func() model.AppState { return s.Clone() }
}

func storedState() model.AppState {
	s := model.AppState{
		Users: []model.User{
			{ID: "u-admin", Username: "boss", Role: model.RoleAdmin},
			{ID: "u-staff", Username: "staff", Role: model.RoleUser},
		},
		Items: []model.Item{{ID: "i-pen", Name: "Pen", Unit: model.UnitEach, Stock: 40, Threshold: 10}},
	}
	s.Normalize()
	return s
}

func newStore() *state.Store {
	var mu sync.Mutex
	n := 0
	r := state.Reducer{
		Now: func() time.Time { return t0.Add(time.Hour) },
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return "gen-" + string(rune('a'+n))
		},
	}
	return state.NewStore(model.AppState{}, r)
}

type harness struct {
	orch   *Orchestrator
	store  *state.Store
	remote *repository.Memory
	seed   func() model.AppState
}

func newHarness(t *testing.T, remote *repository.Memory, open OpenChannelFunc) *harness {
	t.Helper()
	seedFn := fixedSeed()
	store := newStore()
	orch := New(Config{
		Store:       store,
		Resolver:    repository.NewResolver(remote, repository.WithSeed(seedFn), repository.WithLogger(quiet)),
		OpenChannel: open,
		Seed:        seedFn,
		Logger:      quiet,
		Timeout:     time.Second,
		Now:         func() time.Time { return t0 },
	})
	t.Cleanup(func() { orch.Close() })
	return &harness{orch: orch, store: store, remote: remote, seed: seedFn}
}

func TestStartHydratesFromRemote(t *testing.T) {
	stored := storedState()
	h := newHarness(t, repository.NewMemory(&stored), nil)

	require.NoError(t, h.orch.Start(context.Background()))
	h.orch.Wait()

	assert.Equal(t, stored, h.store.State())
	assert.Equal(t, SyncInfo{LastSyncedAt: t0, Source: repository.SourceRemote}, h.orch.SyncInfo())

	_, saves, _ := h.remote.Calls()
	assert.Zero(t, saves, "hydration must not be persisted")
}

func TestStartSeedsWhenUnreachable(t *testing.T) {
	remote := repository.NewMemory(nil)
	remote.FailLoads(errNetwork)
	h := newHarness(t, remote, nil)

	require.NoError(t, h.orch.Start(context.Background()))
	h.orch.Wait()

	assert.Equal(t, h.seed(), h.store.State())
	info := h.orch.SyncInfo()
	assert.Equal(t, repository.SourceSeed, info.Source)
	assert.Contains(t, info.Error, "connection refused")
	assert.False(t, info.Syncing)
	assert.True(t, info.LastSyncedAt.IsZero())

	_, saves, _ := remote.Calls()
	assert.Zero(t, saves)
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t, repository.NewMemory(nil), nil)
	require.NoError(t, h.orch.Start(context.Background()))
	assert.Error(t, h.orch.Start(context.Background()))
}

func TestDispatchPersists(t *testing.T) {
	stored := storedState()
	h := newHarness(t, repository.NewMemory(&stored), nil)
	require.NoError(t, h.orch.Start(context.Background()))

	require.NoError(t, h.orch.Dispatch(state.AdjustInventory{ItemID: "i-pen", NewStock: 12, ActorID: "u-admin"}))
	h.orch.Wait()

	persisted := h.remote.Stored()
	require.NotNil(t, persisted)
	pen, ok := persisted.FindItem("i-pen")
	require.True(t, ok)
	assert.Equal(t, 12, pen.Stock)
	assert.Equal(t, h.store.State(), *persisted)
	assert.Empty(t, h.orch.SyncInfo().Error)
}

func TestDispatchRejectsLastAdminRemoval(t *testing.T) {
	stored := storedState()
	h := newHarness(t, repository.NewMemory(&stored), nil)
	require.NoError(t, h.orch.Start(context.Background()))

	err := h.orch.Dispatch(state.RemoveUser{ID: "u-admin", ActorID: "u-admin"})
	assert.ErrorIs(t, err, state.ErrLastAdmin)
	h.orch.Wait()

	_, ok := h.store.State().FindUser("u-admin")
	assert.True(t, ok)
	_, saves, _ := h.remote.Calls()
	assert.Zero(t, saves)
}

func TestConcurrentAdminRemovalKeepsOneAdmin(t *testing.T) {
	stored := storedState()
	stored.Users[1].Role = model.RoleAdmin
	h := newHarness(t, repository.NewMemory(&stored), nil)
	require.NoError(t, h.orch.Start(context.Background()))
	h.orch.Wait()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"u-admin", "u-staff"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.orch.Dispatch(state.RemoveUser{ID: id, ActorID: id})
		}()
	}
	wg.Wait()
	h.orch.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, state.ErrLastAdmin)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, h.store.State().AdminCount())
	assert.Equal(t, 1, h.remote.Stored().AdminCount())
}

func TestNoOpDispatchIsNotPersisted(t *testing.T) {
	stored := storedState()
	h := newHarness(t, repository.NewMemory(&stored), nil)
	require.NoError(t, h.orch.Start(context.Background()))

	require.NoError(t, h.orch.Dispatch(state.DeleteItem{ID: "missing", ActorID: "u-admin"}))
	h.orch.Wait()

	_, saves, _ := h.remote.Calls()
	assert.Zero(t, saves)
}

func TestSaveFailureIsRecorded(t *testing.T) {
	stored := storedState()
	h := newHarness(t, repository.NewMemory(&stored), nil)
	require.NoError(t, h.orch.Start(context.Background()))

	h.remote.FailSaves(errNetwork)
	require.NoError(t, h.orch.Dispatch(state.AdjustInventory{ItemID: "i-pen", NewStock: 1, ActorID: "u-admin"}))
	h.orch.Wait()

	info := h.orch.SyncInfo()
	assert.Contains(t, info.Error, "connection refused")
	assert.False(t, info.Syncing)

	// The local change stays.
	pen, _ := h.store.State().FindItem("i-pen")
	assert.Equal(t, 1, pen.Stock)

	// The next successful save clears the error.
	h.remote.FailSaves(nil)
	require.NoError(t, h.orch.Dispatch(state.AdjustInventory{ItemID: "i-pen", NewStock: 2, ActorID: "u-admin"}))
	h.orch.Wait()
	assert.Empty(t, h.orch.SyncInfo().Error)
}

func TestRefresh(t *testing.T) {
	stored := storedState()
	h := newHarness(t, repository.NewMemory(&stored), nil)
	ctx := context.Background()
	require.NoError(t, h.orch.Start(ctx))

	// Another writer changes the stored state.
	changed := stored.Clone()
	changed.Items[0].Stock = 7
	require.NoError(t, h.remote.Save(ctx, changed))

	require.NoError(t, h.orch.Refresh(ctx))
	h.orch.Wait()
	assert.Equal(t, changed, h.store.State())

	_, saves, _ := h.remote.Calls()
	assert.Equal(t, 1, saves, "refresh must not write back")
}

func TestRefreshFailureKeepsState(t *testing.T) {
	stored := storedState()
	remote := repository.NewMemory(nil)
	h := newHarness(t, remote, nil)
	ctx := context.Background()
	require.NoError(t, h.orch.Start(ctx))
	before := h.store.State()

	remote.FailLoads(errNetwork)
	// With a cached state the resolver still answers.
	require.NoError(t, h.orch.Refresh(ctx))
	assert.Equal(t, repository.SourceCache, h.orch.SyncInfo().Source)

	// Without one the error surfaces and the store is untouched.
	bare := newHarness(t, repository.NewMemory(&stored), nil)
	require.NoError(t, bare.orch.Start(ctx))
	bare.remote.FailLoads(errNetwork)
	bare.orch.resolver.Clear(ctx)
	err := bare.orch.Refresh(ctx)
	assert.ErrorIs(t, err, repository.ErrUnreachable)
	info := bare.orch.SyncInfo()
	assert.Equal(t, repository.SourceRemote, info.Source)
	assert.NotEmpty(t, info.Error)
	assert.Equal(t, stored, bare.store.State())

	assert.Equal(t, before, h.store.State())
}

func TestReset(t *testing.T) {
	stored := storedState()
	h := newHarness(t, repository.NewMemory(&stored), nil)
	ctx := context.Background()
	require.NoError(t, h.orch.Start(ctx))
	require.NoError(t, h.orch.Dispatch(state.ClearAuditLogs{ActorID: "u-admin"}))
	h.orch.Wait()

	require.NoError(t, h.orch.Reset(ctx))
	h.orch.Wait()

	assert.Equal(t, h.seed(), h.store.State())
	require.NotNil(t, h.remote.Stored())
	assert.Equal(t, h.seed(), *h.remote.Stored())
	_, saves, clears := h.remote.Calls()
	assert.Equal(t, 1, clears)
	assert.Equal(t, 2, saves, "one save for the dispatch, one for the reset")
	assert.Equal(t, repository.SourceSeed, h.orch.SyncInfo().Source)
}

func TestResetFailure(t *testing.T) {
	stored := storedState()
	h := newHarness(t, repository.NewMemory(&stored), nil)
	ctx := context.Background()
	require.NoError(t, h.orch.Start(ctx))

	h.remote.FailSaves(errNetwork)
	err := h.orch.Reset(ctx)
	assert.ErrorIs(t, err, errNetwork)
	assert.Equal(t, h.seed(), h.store.State())
	assert.NotEmpty(t, h.orch.SyncInfo().Error)
}

func TestClose(t *testing.T) {
	stored := storedState()
	h := newHarness(t, repository.NewMemory(&stored), nil)
	ctx := context.Background()
	require.NoError(t, h.orch.Start(ctx))
	require.NoError(t, h.orch.Close())
	require.NoError(t, h.orch.Close())

	h.store.Dispatch(state.ClearAuditLogs{ActorID: "u-admin"})
	h.orch.Wait()
	_, saves, _ := h.remote.Calls()
	assert.Zero(t, saves)

	assert.ErrorIs(t, h.orch.Refresh(ctx), ErrClosed)
	assert.ErrorIs(t, h.orch.Reset(ctx), ErrClosed)
	assert.ErrorIs(t, h.orch.Start(ctx), ErrClosed)
}

// blockingRepo blocks every call until release is closed or the context ends.
type blockingRepo struct {
	release chan struct{}
	entered chan struct{}
}

func (b *blockingRepo) wait(ctx context.Context) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *blockingRepo) Load(ctx context.Context) (*model.AppState, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}
	s := storedState()
	return &s, nil
}

func (b *blockingRepo) Save(ctx context.Context, _ model.AppState) error { return b.wait(ctx) }
func (b *blockingRepo) Clear(ctx context.Context) error                 { return b.wait(ctx) }

func TestHungLoadTimesOut(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	seedFn := fixedSeed()
	orch := New(Config{
		Store:    newStore(),
		Resolver: repository.NewResolver(repo, repository.WithSeed(seedFn), repository.WithLogger(quiet)),
		Logger:   quiet,
		Timeout:  50 * time.Millisecond,
	})
	defer orch.Close()

	require.NoError(t, orch.Start(context.Background()))
	info := orch.SyncInfo()
	assert.False(t, info.Syncing)
	assert.Equal(t, repository.SourceSeed, info.Source)
	assert.Contains(t, info.Error, context.DeadlineExceeded.Error())
	assert.Equal(t, seedFn(), orch.State())
}

func TestSyncingWhileSaveInFlight(t *testing.T) {
	repo := &blockingRepo{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	store := newStore()
	orch := New(Config{
		Store:    store,
		Resolver: repository.NewResolver(repo, repository.WithSeed(fixedSeed()), repository.WithLogger(quiet)),
		Logger:   quiet,
		Timeout:  5 * time.Second,
	})
	defer orch.Close()

	close(repo.release)
	require.NoError(t, orch.Start(context.Background()))
	assert.False(t, orch.SyncInfo().Syncing)

	repo.release = make(chan struct{})
	<-repo.entered // drain the load's signal
	require.NoError(t, orch.Dispatch(state.ClearAuditLogs{ActorID: "u-admin"}))

	select {
	case <-repo.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("save did not start")
	}
	assert.True(t, orch.SyncInfo().Syncing)

	close(repo.release)
	orch.Wait()
	assert.False(t, orch.SyncInfo().Syncing)
}

// countingRepo counts saves on top of a shared local repository.
type countingRepo struct {
	repository.Repository
	mu    sync.Mutex
	saves int
}

func (c *countingRepo) Save(ctx context.Context, s model.AppState) error {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.Repository.Save(ctx, s)
}

func (c *countingRepo) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

func openFileStorage(t *testing.T, path string) *localstore.Storage {
	t.Helper()
	database, err := db.Open(path)
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(database))
	storage := localstore.New(database, localstore.WithPollInterval(20*time.Millisecond), localstore.WithLogger(quiet))
	t.Cleanup(func() {
		storage.Close()
		database.Close()
	})
	return storage
}

func TestCrossClientSync(t *testing.T) {
	t.Run("shared handle", func(t *testing.T) {
		storage := localstore.New(db.NewTestDB(t))
		testCrossClientSync(t, storage, storage)
	})
	t.Run("separate processes", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "local.sqlite3")
		testCrossClientSync(t, openFileStorage(t, path), openFileStorage(t, path))
	})
}

func testCrossClientSync(t *testing.T, storageA, storageB *localstore.Storage) {
	ctx := context.Background()
	stored := storedState()
	require.NoError(t, repository.NewLocal(storageA, quiet).Save(ctx, stored))

	newClient := func(id string, storage *localstore.Storage) (*Orchestrator, *countingRepo) {
		repo := &countingRepo{Repository: repository.NewLocal(storage, quiet)}
		seedFn := fixedSeed()
		orch := New(Config{
			Store:    newStore(),
			Resolver: repository.NewResolver(repo, repository.WithSeed(seedFn), repository.WithLogger(quiet)),
			OpenChannel: func(ctx context.Context, h syncchan.Handler) (syncchan.Channel, error) {
				return syncchan.Open(ctx, syncchan.Options{Storage: storage, InstanceID: id, Logger: quiet}, h)
			},
			Logger:  quiet,
			Timeout: time.Second,
		})
		t.Cleanup(func() { orch.Close() })
		require.NoError(t, orch.Start(ctx))
		return orch, repo
	}

	a, repoA := newClient("tab-a", storageA)
	b, repoB := newClient("tab-b", storageB)
	assert.Equal(t, stored, b.State())

	require.NoError(t, a.Dispatch(state.AdjustInventory{ItemID: "i-pen", NewStock: 3, ActorID: "u-admin"}))
	a.Wait()

	require.Eventually(t, func() bool {
		pen, _ := b.State().FindItem("i-pen")
		return pen.Stock == 3
	}, 2*time.Second, 10*time.Millisecond)
	// Audit meta goes through JSON, so compare the parts that survive it exactly.
	assert.Equal(t, a.State().Items, b.State().Items)
	assert.Len(t, b.State().AuditLogs, len(a.State().AuditLogs))

	// Give a looping client time to misbehave.
	time.Sleep(200 * time.Millisecond)
	a.Wait()
	b.Wait()
	assert.Equal(t, 1, repoA.count())
	assert.Zero(t, repoB.count(), "a remote reload must not be persisted")
}
