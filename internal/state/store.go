package state

import (
	"sync"

	"github.com/erazemk/oskrba/internal/model"
)

// Change describes one applied action. Prev and Next are snapshots owned by
// the listener.
type Change struct {
	Action Action
	Prev   model.AppState
	Next   model.AppState
}

// Store owns the single live AppState of a client. All mutations go through
// Dispatch; reductions are serialized.
type Store struct {
	mu        sync.Mutex
	reducer   Reducer
	state     model.AppState
	listeners []listener
	nextID    int
}

type listener struct {
	id int
	fn func(Change)
}

// NewStore creates a store holding initial.
func NewStore(initial model.AppState, reducer Reducer) *Store {
	initial = initial.Clone()
	return &Store{reducer: reducer, state: initial}
}

// State returns a copy of the current state.
func (s *Store) State() model.AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Dispatch applies a and returns the resulting state. Listeners are called
// after the state has been replaced, in registration order, unless the action
// was a no-op.
func (s *Store) Dispatch(a Action) model.AppState {
	next, _ := s.DispatchIf(nil, a)
	return next
}

// DispatchIf is Dispatch guarded by check, which sees the state a would be
// reduced against and runs in the same critical section as the reduction.
// If check fails the state is left alone and its error is returned. check
// must not call back into the store.
func (s *Store) DispatchIf(check func(model.AppState, Action) error, a Action) (model.AppState, error) {
	if h, ok := a.(Hydrate); ok {
		a = Hydrate{State: h.State.Clone()}
	}

	s.mu.Lock()
	prev := s.state
	if check != nil {
		if err := check(prev, a); err != nil {
			s.mu.Unlock()
			return prev.Clone(), err
		}
	}
	next, changed := s.reducer.reduce(prev, a)
	s.state = next
	listeners := append([]listener(nil), s.listeners...)
	s.mu.Unlock()

	if changed {
		for _, l := range listeners {
			l.fn(Change{Action: a, Prev: prev.Clone(), Next: next.Clone()})
		}
	}
	return next.Clone(), nil
}

// Subscribe registers fn to be called after every state change. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}
