package syncchan

import (
	"context"
	"fmt"
	"sync"

	"github.com/erazemk/oskrba/internal/localstore"
)

// storageQueueSize bounds pending storage events. Extra events are dropped;
// a receiver only needs one to reload.
const storageQueueSize = 16

type storageChannel struct {
	base
	storage     *localstore.Storage
	unsubscribe func()

	events    chan []byte
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func openStorage(b base, storage *localstore.Storage) *storageChannel {
	c := &storageChannel{
		base:    b,
		storage: storage,
		events:  make(chan []byte, storageQueueSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	// Local storage callbacks run while the writer holds the storage lock, so
	// the handler runs on a separate goroutine where it may read and write.
	// Writes from other handles arrive through the storage's change feed.
	c.unsubscribe = storage.Subscribe(c.onEvent)
	go c.run()
	return c
}

func (c *storageChannel) onEvent(ev localstore.Event) {
	if ev.Key != SentinelKey || ev.Removed {
		return
	}
	select {
	case c.events <- []byte(ev.NewValue):
	default:
		c.logger.Debug("sync event queue full, dropping event")
	}
}

func (c *storageChannel) run() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			return
		case data := <-c.events:
			c.deliver(data)
		}
	}
}

func (c *storageChannel) Backend() string { return BackendStorage }

// Notify writes the message under the sentinel key and removes it again.
// Every write carries a fresh timestamp, so each one raises an event, on this
// handle directly and on other handles once they poll the change feed.
func (c *storageChannel) Notify(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	data, err := c.encode()
	if err != nil {
		return err
	}
	if err := c.storage.Set(ctx, SentinelKey, string(data)); err != nil {
		return fmt.Errorf("writing sync key: %w", err)
	}
	if err := c.storage.Remove(ctx, SentinelKey); err != nil {
		return fmt.Errorf("removing sync key: %w", err)
	}
	c.metrics.Message("sent")
	return nil
}

func (c *storageChannel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.unsubscribe()
		close(c.quit)
		<-c.done
	})
	return nil
}
