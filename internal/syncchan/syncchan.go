// Package syncchan notifies other clients that the stored state changed.
//
// A channel is opened over the best backend available: Redis Pub/Sub, an
// AMQP fanout exchange, or change events on the shared local storage. Every
// message carries the sender's instance id and receivers drop their own
// messages.
package syncchan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/erazemk/oskrba/internal/localstore"
	"github.com/erazemk/oskrba/internal/metrics"
)

// DefaultName is the Redis channel and AMQP exchange name.
const DefaultName = "oskrba.state"

// SentinelKey is the local storage key written to raise a storage event.
const SentinelKey = "oskrba:sync"

// TypeStateUpdated is the only message type.
const TypeStateUpdated = "state-updated"

// Backend names.
const (
	BackendRedis   = "redis"
	BackendAMQP    = "amqp"
	BackendStorage = "storage"
	BackendNone    = "none"
)

// ErrClosed is returned by Notify after Close.
var ErrClosed = errors.New("sync channel closed")

// Message is the wire format of a notification.
type Message struct {
	Type     string    `json:"type"`
	At       time.Time `json:"at"`
	OriginID string    `json:"originId"`
}

// Handler receives messages sent by other instances. It runs on the
// channel's receive goroutine.
type Handler func(Message)

// Channel broadcasts state updates.
type Channel interface {
	// Notify tells every other instance that the state was updated.
	Notify(ctx context.Context) error
	// Backend names the transport in use.
	Backend() string
	// InstanceID is the origin id stamped on outgoing messages.
	InstanceID() string
	// Close stops delivery. The handler is not called after Close returns.
	Close() error
}

// Options selects and configures the backend. Backends are tried in the
// order Redis, AMQP, Storage; the first that works is used.
type Options struct {
	Redis      *redis.Client
	AMQPURL    string
	Storage    *localstore.Storage
	Name       string
	InstanceID string
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Open connects to the first usable backend. When none is configured or
// reachable a channel that sends nothing is returned.
func Open(ctx context.Context, opts Options, handler Handler) (Channel, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	b := base{
		id:      opts.InstanceID,
		name:    opts.Name,
		handler: handler,
		logger:  opts.Logger.With("instance", opts.InstanceID),
		metrics: opts.Metrics,
	}

	if opts.Redis != nil {
		ch, err := openRedis(ctx, b, opts.Redis)
		if err == nil {
			b.logger.Info("sync channel open", "backend", BackendRedis, "channel", opts.Name)
			return ch, nil
		}
		b.logger.Warn("redis unavailable", "error", err)
	}
	if opts.AMQPURL != "" {
		ch, err := openAMQP(ctx, b, opts.AMQPURL)
		if err == nil {
			b.logger.Info("sync channel open", "backend", BackendAMQP, "exchange", opts.Name)
			return ch, nil
		}
		b.logger.Warn("amqp unavailable", "error", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("opening sync channel: %w", err)
	}
	if opts.Storage != nil {
		b.logger.Info("sync channel open", "backend", BackendStorage, "key", SentinelKey)
		return openStorage(b, opts.Storage), nil
	}
	b.logger.Info("sync channel open", "backend", BackendNone)
	return noop{id: b.id}, nil
}

// base holds what every backend shares.
type base struct {
	id      string
	name    string
	handler Handler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func (b base) InstanceID() string { return b.id }

func (b base) encode() ([]byte, error) {
	data, err := json.Marshal(Message{Type: TypeStateUpdated, At: time.Now().UTC(), OriginID: b.id})
	if err != nil {
		return nil, fmt.Errorf("encoding sync message: %w", err)
	}
	return data, nil
}

// deliver decodes data and passes it to the handler unless it is malformed,
// of an unknown type or sent by this instance.
func (b base) deliver(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		b.logger.Warn("dropping malformed sync message", "error", err)
		b.metrics.Message("ignored")
		return
	}
	if msg.Type != TypeStateUpdated || msg.OriginID == b.id {
		b.metrics.Message("ignored")
		return
	}
	b.metrics.Message("received")
	b.logger.Debug("sync message received", "origin", msg.OriginID, "at", msg.At)
	if b.handler != nil {
		b.handler(msg)
	}
}

type noop struct{ id string }

func (noop) Notify(context.Context) error { return nil }
func (noop) Backend() string              { return BackendNone }
func (n noop) InstanceID() string         { return n.id }
func (noop) Close() error                 { return nil }
