// Package localstore is a persistent key/value store shared by every client
// using the same database file. Writes raise change events, delivered to all
// subscribers after the write commits.
//
// Subscribers on the writing handle are notified synchronously. Every write
// is also recorded in a change feed, which each subscribed handle polls to
// pick up writes made through other handles, including other processes.
package localstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/oskrba/internal/store"
)

const (
	// DefaultPollInterval is how often a handle checks the change feed for
	// writes made elsewhere.
	DefaultPollInterval = 200 * time.Millisecond

	// changeRetention is how long feed entries are kept. Pollers that fall
	// further behind than this miss events.
	changeRetention = time.Minute
)

// Event describes a change to one key. Removed is set when the key was
// deleted, in which case NewValue is empty. Remote is set for changes made
// through another handle.
type Event struct {
	Key      string
	OldValue string
	NewValue string
	Removed  bool
	Remote   bool
}

// Storage is a SQLite-backed key/value store with change notification.
type Storage struct {
	db       *sql.DB
	origin   string
	interval time.Duration
	logger   *slog.Logger

	// writeMu serializes writes so local events are raised in commit order.
	writeMu sync.Mutex

	mu      sync.Mutex
	subs    map[int]func(Event)
	nextID  int
	closed  bool
	stop    chan struct{}
	stopped chan struct{}
}

// Option configures a Storage.
type Option func(*Storage)

// WithPollInterval sets how often the change feed is polled.
func WithPollInterval(d time.Duration) Option {
	return func(s *Storage) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger used for polling errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Storage) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wraps db, which must already have the schema applied.
func New(db *sql.DB, opts ...Option) *Storage {
	s := &Storage{
		db:       db,
		origin:   uuid.NewString(),
		interval: DefaultPollInterval,
		logger:   slog.Default(),
		subs:     make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value under key and whether it exists.
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	return store.GetValue(ctx, s.db, key)
}

// Set stores value under key and notifies subscribers.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old, _, err := store.GetValue(ctx, s.db, key)
	if err != nil {
		return err
	}
	ev := Event{Key: key, OldValue: old, NewValue: value}
	wrote, err := s.write(ctx, ev, func(tx *sql.Tx) (bool, error) {
		return true, store.SetValue(ctx, tx, key, value)
	})
	if err != nil || !wrote {
		return err
	}
	s.emit(ev)
	return nil
}

// Remove deletes key. Subscribers are only notified if a value existed.
func (s *Storage) Remove(ctx context.Context, key string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	old, ok, err := store.GetValue(ctx, s.db, key)
	if err != nil || !ok {
		return err
	}
	ev := Event{Key: key, OldValue: old, Removed: true}
	wrote, err := s.write(ctx, ev, func(tx *sql.Tx) (bool, error) {
		return store.DeleteValue(ctx, tx, key)
	})
	if err != nil || !wrote {
		return err
	}
	s.emit(ev)
	return nil
}

// write runs fn and records ev in the change feed in one transaction. The
// feed entry is only written if fn reports a change.
func (s *Storage) write(ctx context.Context, ev Event, fn func(*sql.Tx) (bool, error)) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting write of %q: %w", ev.Key, err)
	}
	defer tx.Rollback()

	changed, err := fn(tx)
	if err != nil || !changed {
		return false, err
	}
	now := time.Now()
	if _, err := store.AppendChange(ctx, tx, store.KVChange{
		Key:      ev.Key,
		OldValue: ev.OldValue,
		NewValue: ev.NewValue,
		Removed:  ev.Removed,
		Origin:   s.origin,
		At:       now,
	}); err != nil {
		return false, err
	}
	if err := store.PruneChanges(ctx, tx, now.Add(-changeRetention)); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing write of %q: %w", ev.Key, err)
	}
	return true, nil
}

// Subscribe registers fn for change events. Local callbacks run
// synchronously on the writer's goroutine and must not write to the storage
// themselves; remote ones run on the polling goroutine. The returned function
// removes the subscription.
func (s *Storage) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	if len(s.subs) == 1 && !s.closed {
		s.startPolling()
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; !ok {
			return
		}
		delete(s.subs, id)
		if len(s.subs) == 0 {
			s.stopPolling()
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (s *Storage) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close stops polling the change feed. It does not close the database.
func (s *Storage) Close() error {
	s.mu.Lock()
	s.closed = true
	stopped := s.stopped
	s.stopPolling()
	s.mu.Unlock()

	if stopped != nil {
		<-stopped
	}
	return nil
}

func (s *Storage) emit(ev Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// startPolling starts a poller that reports feed entries written after this
// call. s.mu must be held.
func (s *Storage) startPolling() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval*10)
	cursor, err := store.LastChangeSeq(ctx, s.db)
	cancel()
	if err != nil {
		s.logger.Warn("reading change feed position", "error", err)
		cursor = -1
	}

	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.poll(cursor, s.stop, s.stopped)
}

// stopPolling signals the running poller to exit. s.mu must be held.
func (s *Storage) stopPolling() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
		s.stopped = nil
	}
}

func (s *Storage) poll(cursor int64, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.interval*10)
		if cursor < 0 {
			seq, err := store.LastChangeSeq(ctx, s.db)
			cancel()
			if err != nil {
				s.logger.Debug("reading change feed position", "error", err)
				continue
			}
			cursor = seq
			continue
		}
		changes, err := store.ChangesSince(ctx, s.db, cursor)
		cancel()
		if err != nil {
			s.logger.Debug("polling change feed", "error", err)
			continue
		}

		for _, c := range changes {
			cursor = c.Seq
			if c.Origin == s.origin {
				continue
			}
			select {
			case <-stop:
				return
			default:
			}
			s.emit(Event{
				Key:      c.Key,
				OldValue: c.OldValue,
				NewValue: c.NewValue,
				Removed:  c.Removed,
				Remote:   true,
			})
		}
	}
}
