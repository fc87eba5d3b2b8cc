package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/erazemk/oskrba/internal/localstore"
	"github.com/erazemk/oskrba/internal/model"
)

// StateKey is the local storage key of the state snapshot.
const StateKey = "oskrba:app-state"

// Local stores the state as a single JSON value in local storage.
type Local struct {
	storage *localstore.Storage
	key     string
	logger  *slog.Logger
}

// NewLocal creates a repository backed by storage under StateKey.
func NewLocal(storage *localstore.Storage, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{storage: storage, key: StateKey, logger: logger}
}

// Load returns the stored snapshot. A corrupt snapshot is removed and
// reported as no state.
func (l *Local) Load(ctx context.Context) (*model.AppState, error) {
	raw, ok, err := l.storage.Get(ctx, l.key)
	if err != nil {
		return nil, fmt.Errorf("loading local state: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var st model.AppState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		l.logger.Warn("discarding corrupt local state", "key", l.key, "error", err)
		if err := l.storage.Remove(ctx, l.key); err != nil {
			l.logger.Warn("removing corrupt local state", "key", l.key, "error", err)
		}
		return nil, nil
	}
	st.Normalize()
	return &st, nil
}

// Save replaces the stored snapshot.
func (l *Local) Save(ctx context.Context, state model.AppState) error {
	state.Normalize()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	if err := l.storage.Set(ctx, l.key, string(data)); err != nil {
		return fmt.Errorf("saving local state: %w", err)
	}
	return nil
}

// Clear removes the stored snapshot.
func (l *Local) Clear(ctx context.Context) error {
	if err := l.storage.Remove(ctx, l.key); err != nil {
		return fmt.Errorf("clearing local state: %w", err)
	}
	return nil
}
