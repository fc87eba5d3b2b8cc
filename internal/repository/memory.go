package repository

import (
	"context"
	"sync"

	"github.com/erazemk/oskrba/internal/model"
)

// Memory keeps the state in memory. Failures can be injected, which makes it
// the usual custom repository in tests.
type Memory struct {
	mu       sync.Mutex
	state    *model.AppState
	loadErr  error
	saveErr  error
	clearErr error
	loads    int
	saves    int
	clears   int
}

// NewMemory creates a repository holding initial, which may be nil.
func NewMemory(initial *model.AppState) *Memory {
	m := &Memory{}
	if initial != nil {
		c := initial.Clone()
		m.state = &c
	}
	return m
}

// Load returns a copy of the stored state.
func (m *Memory) Load(context.Context) (*model.AppState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.state == nil {
		return nil, nil
	}
	c := m.state.Clone()
	return &c, nil
}

// Save stores a copy of state.
func (m *Memory) Save(_ context.Context, state model.AppState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	c := state.Clone()
	m.state = &c
	return nil
}

// Clear drops the stored state.
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	if m.clearErr != nil {
		return m.clearErr
	}
	m.state = nil
	return nil
}

// FailLoads makes subsequent loads return err. A nil err restores normal behavior.
func (m *Memory) FailLoads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// FailSaves makes subsequent saves return err.
func (m *Memory) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// FailClears makes subsequent clears return err.
func (m *Memory) FailClears(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearErr = err
}

// Stored returns a copy of the stored state, or nil.
func (m *Memory) Stored() *model.AppState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil
	}
	c := m.state.Clone()
	return &c
}

// Calls returns how many times each method has been called.
func (m *Memory) Calls() (loads, saves, clears int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads, m.saves, m.clears
}
