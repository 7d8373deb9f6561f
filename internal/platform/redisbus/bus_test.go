package redisbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newUnconnectedBus(attempts int, delay time.Duration) *Bus {
	return New(Config{
		Addr:          "localhost:0",
		RetryAttempts: attempts,
		RetryDelay:    delay,
	}, nil)
}

func TestBusReady(t *testing.T) {
	b := newUnconnectedBus(1, time.Millisecond)
	assert.False(t, b.Ready(), "a bus must not report ready before Connect")
}

func TestBusWaitReady(t *testing.T) {
	t.Run("returns immediately when already ready", func(t *testing.T) {
		b := newUnconnectedBus(1, time.Hour)
		b.mu.Lock()
		b.ready = true
		b.mu.Unlock()

		assert.NoError(t, b.WaitReady(context.Background()))
	})

	t.Run("fails with ErrNotReady after exhausting retries", func(t *testing.T) {
		b := newUnconnectedBus(3, time.Millisecond)

		start := time.Now()
		err := b.WaitReady(context.Background())

		assert.ErrorIs(t, err, ErrNotReady)
		assert.GreaterOrEqual(t, time.Since(start), 2*time.Millisecond,
			"each attempt but the last must wait the configured delay")
	})

	t.Run("does not sleep after the final attempt", func(t *testing.T) {
		b := newUnconnectedBus(2, 50*time.Millisecond)

		start := time.Now()
		err := b.WaitReady(context.Background())
		elapsed := time.Since(start)

		assert.ErrorIs(t, err, ErrNotReady)
		assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
		assert.Less(t, elapsed, 100*time.Millisecond,
			"exhaustion must cost one delay between two attempts, not a trailing one")
	})

	t.Run("honors context cancellation mid-wait", func(t *testing.T) {
		b := newUnconnectedBus(5, time.Hour)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		err := b.WaitReady(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("picks up readiness flipped while waiting", func(t *testing.T) {
		b := newUnconnectedBus(50, time.Millisecond)

		go func() {
			time.Sleep(5 * time.Millisecond)
			b.mu.Lock()
			b.ready = true
			b.mu.Unlock()
		}()

		assert.NoError(t, b.WaitReady(context.Background()))
	})
}

func TestBusGuardsBeforeConnect(t *testing.T) {
	b := newUnconnectedBus(1, time.Millisecond)

	err := b.Publish(context.Background(), "TASK_CREATED", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = b.Subscribe(context.Background(), "TASK_CREATED")
	assert.ErrorIs(t, err, ErrNotReady)
}
