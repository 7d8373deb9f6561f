// Package redisbus wraps two long-lived Redis connections — one used
// exclusively for publishing, one exclusively for subscribing — behind a
// small event bus API. Delivery is fire-and-forget pub/sub: a subscriber
// that connects after a publish never sees that message.
package redisbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotReady is returned when the bus is used before Connect has
// completed, or when WaitReady exhausts its retries.
var ErrNotReady = fmt.Errorf("event bus not ready")

// Config holds the bus connection settings. RetryAttempts and RetryDelay
// bound the WaitReady polling loop: a fixed number of attempts with a
// fixed linear delay between them.
type Config struct {
	Addr          string
	RetryAttempts int
	RetryDelay    time.Duration
}

// Message is a single inbound pub/sub message: the channel it arrived on
// and its raw payload. Within one subscribe connection, messages are
// delivered in broker order; there is no ordering across channels.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription is a handle on an active subscribe stream.
type Subscription interface {
	// Messages returns the inbound message stream. The channel is closed
	// when the subscription is closed or the connection is lost for good.
	Messages() <-chan Message

	// Close unsubscribes and releases the stream.
	Close() error
}

// Bus is an event bus client over Redis pub/sub. It is constructed once
// at startup and passed by reference to every component that needs it;
// there is no package-level singleton.
type Bus struct {
	cfg        Config
	publisher  *redis.Client
	subscriber *redis.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	ready bool
}

// New creates a Bus with its two client connections configured but not
// yet verified. Call Connect before using the bus.
func New(cfg Config, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bus{
		cfg:        cfg,
		publisher:  redis.NewClient(&redis.Options{Addr: cfg.Addr}),
		subscriber: redis.NewClient(&redis.Options{Addr: cfg.Addr}),
		logger:     logger.With(slog.String("component", "redis_bus")),
	}
}

// Connect verifies both connections against the broker. Components that
// depend on the bus must not proceed if Connect fails.
func (b *Bus) Connect(ctx context.Context) error {
	if err := b.publisher.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis publisher connection failed: %w", err)
	}
	if err := b.subscriber.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis subscriber connection failed: %w", err)
	}

	b.mu.Lock()
	b.ready = true
	b.mu.Unlock()

	b.logger.Info("connected to redis", slog.String("addr", b.cfg.Addr))
	return nil
}

// Ready reports whether Connect has completed successfully.
func (b *Bus) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ready
}

// WaitReady blocks until the bus is ready, polling with the configured
// fixed retry count and linear delay. Returns ErrNotReady wrapped in a
// timeout error after exhausting retries, or the context error if the
// context is canceled first.
func (b *Bus) WaitReady(ctx context.Context) error {
	for attempt := 1; attempt <= b.cfg.RetryAttempts; attempt++ {
		if b.Ready() {
			return nil
		}

		// The final attempt fails immediately; there is no point
		// sleeping with no check left to run afterwards.
		if attempt == b.cfg.RetryAttempts {
			break
		}

		b.logger.Debug("waiting for redis connection",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", b.cfg.RetryAttempts))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.cfg.RetryDelay):
		}
	}

	return fmt.Errorf("%w: timed out after %d attempts", ErrNotReady, b.cfg.RetryAttempts)
}

// Publish sends the payload to all current subscribers of the channel.
// There is no delivery guarantee and no persistence.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	if !b.Ready() {
		return ErrNotReady
	}

	if err := b.publisher.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish on %s failed: %w", channel, err)
	}
	return nil
}

// Subscribe registers interest in the given channels on the dedicated
// subscribe connection and returns the message stream. go-redis
// re-establishes the underlying connection and its subscriptions after a
// broker reconnect.
func (b *Bus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	if !b.Ready() {
		return nil, ErrNotReady
	}

	pubsub := b.subscriber.Subscribe(ctx, channels...)

	// Confirm the subscription was created before handing out the stream.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}

	sub := &subscription{
		pubsub: pubsub,
		out:    make(chan Message),
	}
	go sub.pump()

	return sub, nil
}

// Close tears down both connections best-effort, swallowing close-time
// errors. The bus cannot be reused afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	b.ready = false
	b.mu.Unlock()

	if err := b.publisher.Close(); err != nil {
		b.logger.Warn("error closing redis publisher", slog.String("error", err.Error()))
	}
	if err := b.subscriber.Close(); err != nil {
		b.logger.Warn("error closing redis subscriber", slog.String("error", err.Error()))
	}
}

// subscription adapts a go-redis PubSub to the Subscription interface.
type subscription struct {
	pubsub *redis.PubSub
	out    chan Message
}

// pump converts the go-redis message stream into Messages and closes the
// outbound channel when the stream ends.
func (s *subscription) pump() {
	defer close(s.out)
	for msg := range s.pubsub.Channel() {
		s.out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}
	}
}

func (s *subscription) Messages() <-chan Message {
	return s.out
}

func (s *subscription) Close() error {
	return s.pubsub.Close()
}
