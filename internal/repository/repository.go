// Package repository persists the application state. Every backend
// implements Repository; Resolver layers the fallback chain on top.
package repository

import (
	"context"
	"errors"

	"github.com/erazemk/oskrba/internal/model"
)

// Repository loads, saves and clears the whole application state.
// Load returns a nil state and a nil error when nothing has been stored yet.
type Repository interface {
	Load(ctx context.Context) (*model.AppState, error)
	Save(ctx context.Context, state model.AppState) error
	Clear(ctx context.Context) error
}

// Source tells where a loaded state came from.
type Source string

// Sources.
const (
	SourceRemote Source = "remote"
	SourceCustom Source = "custom"
	SourceCache  Source = "cache"
	SourceSeed   Source = "seed"
)

// ErrUnreachable is returned when the remote store fails and no cached
// state is available.
var ErrUnreachable = errors.New("repository unreachable")
