package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/erazemk/oskrba/internal/auth"
	"github.com/erazemk/oskrba/internal/config"
	"github.com/erazemk/oskrba/internal/localstore"
	"github.com/erazemk/oskrba/internal/metrics"
	"github.com/erazemk/oskrba/internal/model"
	"github.com/erazemk/oskrba/internal/orchestrator"
	"github.com/erazemk/oskrba/internal/repository"
	"github.com/erazemk/oskrba/internal/state"
	"github.com/erazemk/oskrba/internal/syncchan"
)

var errNotSignedIn = errors.New("not signed in, run 'oskrba login' first")

// client is one running instance of the inventory client: local storage,
// the store and the orchestrator keeping it in sync.
type client struct {
	db      *sql.DB
	storage *localstore.Storage
	redis   *redis.Client
	store   *state.Store
	orch    *orchestrator.Orchestrator
	metrics *metrics.Metrics
}

// openClient opens local storage, wires the repository chain and sync
// channel from cfg and loads the state.
func openClient(ctx context.Context, cfg config.Config) (*client, error) {
	database, err := openDB(cfg.LocalPath)
	if err != nil {
		return nil, err
	}

	c := &client{db: database, storage: localstore.New(database), metrics: metrics.New()}
	logger := slog.Default()
	local := repository.NewLocal(c.storage, logger)

	var resolver *repository.Resolver
	if cfg.RemoteURL != "" {
		remote := repository.NewHTTP(cfg.RemoteURL,
			repository.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			repository.WithToken(cfg.Token),
			repository.WithHTTPLogger(logger),
		)
		resolver = repository.NewResolver(remote, repository.WithSnapshot(local), repository.WithLogger(logger))
	} else {
		resolver = repository.NewResolver(local, repository.WithLogger(logger))
	}

	if cfg.RedisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	opts := syncchan.Options{
		Redis:   c.redis,
		AMQPURL: cfg.AMQPURL,
		Storage: c.storage,
		Name:    cfg.Channel,
		Logger:  logger,
		Metrics: c.metrics,
	}

	c.store = state.NewStore(model.AppState{}, state.Reducer{})
	c.orch = orchestrator.New(orchestrator.Config{
		Store:    c.store,
		Resolver: resolver,
		OpenChannel: func(ctx context.Context, h syncchan.Handler) (syncchan.Channel, error) {
			return syncchan.Open(ctx, opts, h)
		},
		Logger:  logger,
		Metrics: c.metrics,
		Timeout: cfg.Timeout,
	})
	if err := c.orch.Start(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// currentUser returns the signed-in user.
func (c *client) currentUser(ctx context.Context) (model.User, error) {
	u, ok, err := auth.CurrentUser(ctx, c.storage, c.orch.State())
	if err != nil {
		return model.User{}, err
	}
	if !ok {
		return model.User{}, errNotSignedIn
	}
	return u, nil
}

// Close waits for pending saves and releases every resource.
func (c *client) Close() error {
	err := errors.Join(c.orch.Close(), c.storage.Close())
	if c.redis != nil {
		err = errors.Join(err, c.redis.Close())
	}
	return errors.Join(err, c.db.Close())
}
