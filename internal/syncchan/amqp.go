package syncchan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const amqpDialTimeout = 5 * time.Second

type amqpChannel struct {
	base
	conn *amqp.Connection
	ch   *amqp.Channel

	// pubMu serializes publishes on ch and guards closed.
	pubMu  sync.Mutex
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

func openAMQP(ctx context.Context, b base, url string) (*amqpChannel, error) {
	timeout := amqpDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	deliveries, err := subscribeFanout(ch, b.name)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	c := &amqpChannel{base: b, conn: conn, ch: ch, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for d := range deliveries {
			c.deliver(d.Body)
		}
	}()
	return c, nil
}

// subscribeFanout declares the exchange and binds a private queue to it.
// The queue is exclusive and auto-deleted, so it disappears with the
// connection.
func subscribeFanout(ch *amqp.Channel, exchange string) (<-chan amqp.Delivery, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, false, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declaring queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return nil, fmt.Errorf("binding queue %s: %w", q.Name, err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consuming queue %s: %w", q.Name, err)
	}
	return deliveries, nil
}

func (c *amqpChannel) Backend() string { return BackendAMQP }

func (c *amqpChannel) Notify(ctx context.Context) error {
	data, err := c.encode()
	if err != nil {
		return err
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	if c.closed {
		return ErrClosed
	}
	err = c.ch.PublishWithContext(ctx, c.name, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        data,
	})
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", c.name, err)
	}
	c.metrics.Message("sent")
	return nil
}

func (c *amqpChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.pubMu.Lock()
		c.closed = true
		c.pubMu.Unlock()

		// Closing the channel closes the deliveries channel.
		err = errors.Join(c.ch.Close(), c.conn.Close())
		<-c.done
	})
	return err
}
