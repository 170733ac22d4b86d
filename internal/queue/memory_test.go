package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, []byte(`{"provider":"openai"}`)))

	items, err := q.DequeueWithTimeout(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"provider":"openai"}`, string(items[0]))
}

func TestMemoryQueue_BatchLimit(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	ctx := context.Background()
	for i := 0; i < 25; i++ {
		require.NoError(t, q.Enqueue(ctx, []byte(fmt.Sprintf("%d", i))))
	}

	items, err := q.DequeueWithTimeout(ctx, 10, time.Second)
	require.NoError(t, err)
	assert.Len(t, items, 10)
	assert.Equal(t, "0", string(items[0]))

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, length)
}

func TestMemoryQueue_DequeueTimeout(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	start := time.Now()
	items, err := q.DequeueWithTimeout(context.Background(), 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestMemoryQueue_ContextCancelled(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.DequeueWithTimeout(ctx, 10, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueue_Full(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.Capacity = 2
	q := NewMemoryQueue(cfg)
	defer q.Close()

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, []byte("a")))
	require.NoError(t, q.Enqueue(ctx, []byte("b")))
	assert.ErrorIs(t, q.Enqueue(ctx, []byte("c")), ErrQueueFull)
}

func TestMemoryQueue_Closed(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	ctx := context.Background()
	assert.ErrorIs(t, q.Enqueue(ctx, []byte("x")), ErrQueueClosed)

	_, err := q.DequeueWithTimeout(ctx, 1, time.Millisecond)
	assert.ErrorIs(t, err, ErrQueueClosed)

	_, err = q.Length(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryQueue_Concurrent(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for p := 0; p < 5; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = q.Enqueue(ctx, []byte(fmt.Sprintf("%d-%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	total := 0
	for total < 100 {
		items, err := q.DequeueWithTimeout(ctx, 30, 100*time.Millisecond)
		require.NoError(t, err)
		require.NotEmpty(t, items)
		total += len(items)
	}
	assert.Equal(t, 100, total)
}

func TestMemoryDeadLetterQueue(t *testing.T) {
	dlq := NewMemoryDeadLetterQueue()
	ctx := context.Background()

	require.NoError(t, dlq.Add(ctx, []byte("first"), errors.New("s3 unavailable")))
	require.NoError(t, dlq.Add(ctx, []byte("second"), nil))

	items, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", string(items[0].Payload))
	assert.Equal(t, "s3 unavailable", items[0].Error)
	assert.Empty(t, items[1].Error)
	assert.NotEqual(t, items[0].ID, items[1].ID)

	require.NoError(t, dlq.Remove(ctx, items[0].ID))
	assert.ErrorIs(t, dlq.Remove(ctx, items[0].ID), ErrItemNotFound)

	items, err = dlq.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, dlq.Close())
	assert.ErrorIs(t, dlq.Add(ctx, []byte("late"), nil), ErrQueueClosed)
}

func TestNew_SelectsMemoryBackend(t *testing.T) {
	q, dlq, err := New(DefaultConfig("test"))
	require.NoError(t, err)
	defer q.Close()
	defer dlq.Close()

	assert.IsType(t, &MemoryQueue{}, q)
	assert.IsType(t, &MemoryDeadLetterQueue{}, dlq)
}
