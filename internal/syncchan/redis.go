package syncchan

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

type redisChannel struct {
	base
	client *redis.Client
	pubsub *redis.PubSub

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
}

func openRedis(ctx context.Context, b base, client *redis.Client) (*redisChannel, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	ps := client.Subscribe(ctx, b.name)
	// Wait for the subscription to be confirmed so no message published
	// after Open returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", b.name, err)
	}

	c := &redisChannel{base: b, client: client, pubsub: ps, done: make(chan struct{})}
	msgs := ps.Channel()
	go func() {
		defer close(c.done)
		for msg := range msgs {
			c.deliver([]byte(msg.Payload))
		}
	}()
	return c, nil
}

func (c *redisChannel) Backend() string { return BackendRedis }

func (c *redisChannel) Notify(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	data, err := c.encode()
	if err != nil {
		return err
	}
	if err := c.client.Publish(ctx, c.name, data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", c.name, err)
	}
	c.metrics.Message("sent")
	return nil
}

func (c *redisChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		err = c.pubsub.Close()
		<-c.done
	})
	return err
}
