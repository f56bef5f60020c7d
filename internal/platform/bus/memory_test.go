package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBus() *Memory {
	return NewMemory(MemoryConfig{MaxAttempts: 3, RetryBaseDelay: time.Millisecond}, testLogger())
}

func TestMemoryBusDeliversToAllGroups(t *testing.T) {
	b := testBus()
	ctx := context.Background()

	received := make(chan string, 2)
	for _, group := range []string{"audit", "recurrence"} {
		g := group
		_, err := b.Subscribe(ctx, "task.lifecycle", g, func(ctx context.Context, d Delivery) error {
			received <- g + ":" + string(d.Payload)
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, b.Publish(ctx, "task.lifecycle", "task-1", []byte("hello")))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-received:
			got[msg] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}
	assert.True(t, got["audit:hello"])
	assert.True(t, got["recurrence:hello"])
}

func TestMemoryBusPerKeyOrdering(t *testing.T) {
	b := testBus()
	ctx := context.Background()

	var mu sync.Mutex
	perKey := map[string][]string{}
	done := make(chan struct{}, 40)

	_, err := b.Subscribe(ctx, "task.lifecycle", "g", func(ctx context.Context, d Delivery) error {
		mu.Lock()
		perKey[d.Key] = append(perKey[d.Key], string(d.Payload))
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, b.Publish(ctx, "task.lifecycle", "a", []byte{byte('0' + i)}))
		require.NoError(t, b.Publish(ctx, "task.lifecycle", "b", []byte{byte('0' + i)}))
	}

	for i := 0; i < 40; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for deliveries")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, key := range []string{"a", "b"} {
		require.Len(t, perKey[key], 20)
		for i := 1; i < len(perKey[key]); i++ {
			assert.Greater(t, perKey[key][i], perKey[key][i-1],
				"deliveries for key %q must preserve publish order", key)
		}
	}
}

func TestMemoryBusRedeliversOnHandlerError(t *testing.T) {
	b := testBus()
	ctx := context.Background()

	attempts := make(chan int, 3)
	_, err := b.Subscribe(ctx, "task.lifecycle", "g", func(ctx context.Context, d Delivery) error {
		attempts <- d.Attempt
		if d.Attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "task.lifecycle", "k", []byte("x")))

	var seen []int
	for i := 0; i < 2; i++ {
		select {
		case a := <-attempts:
			seen = append(seen, a)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for redelivery")
		}
	}
	assert.Equal(t, []int{1, 2}, seen)
}

func TestMemoryBusParksAfterMaxAttempts(t *testing.T) {
	b := testBus()
	ctx := context.Background()

	calls := make(chan int, 4)
	_, err := b.Subscribe(ctx, "task.lifecycle", "g", func(ctx context.Context, d Delivery) error {
		calls <- d.Attempt
		return errors.New("permanent")
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "task.lifecycle", "k", []byte("x")))

	for i := 0; i < 3; i++ {
		select {
		case <-calls:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for attempt")
		}
	}

	// Exhausted the attempt bound: no further deliveries.
	select {
	case a := <-calls:
		t.Fatalf("unexpected delivery attempt %d after parking", a)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBusDuplicateGroupRejected(t *testing.T) {
	b := testBus()
	ctx := context.Background()

	noop := func(ctx context.Context, d Delivery) error { return nil }
	_, err := b.Subscribe(ctx, "t", "g", noop)
	require.NoError(t, err)

	_, err = b.Subscribe(ctx, "t", "g", noop)
	assert.Error(t, err)
}

func TestMemoryBusCloseStopsDelivery(t *testing.T) {
	b := testBus()
	ctx := context.Background()

	received := make(chan struct{}, 1)
	sub, err := b.Subscribe(ctx, "t", "g", func(ctx context.Context, d Delivery) error {
		received <- struct{}{}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	require.NoError(t, b.Publish(ctx, "t", "k", []byte("x")))

	select {
	case <-received:
		t.Fatal("delivery after Close")
	case <-time.After(50 * time.Millisecond):
	}
}
