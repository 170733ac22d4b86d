package logging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unified_gateway/internal/queue"
)

type fakeBatchWriter struct {
	mu       sync.Mutex
	batches  [][]*LogRecord
	failures int // number of calls to fail before succeeding; -1 fails forever
	calls    int
}

func (w *fakeBatchWriter) WriteBatch(ctx context.Context, records []*LogRecord) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failures < 0 || w.calls <= w.failures {
		return "", errors.New("upload failed")
	}
	w.batches = append(w.batches, records)
	return "key", nil
}

func (w *fakeBatchWriter) written() []*LogRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*LogRecord
	for _, b := range w.batches {
		out = append(out, b...)
	}
	return out
}

func (w *fakeBatchWriter) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func testSinkConfig() *queue.Config {
	cfg := queue.DefaultConfig("dispatch-log-test")
	cfg.BatchSize = 10
	cfg.BatchTimeout = 20 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func record(id string) *LogRecord {
	return &LogRecord{
		Timestamp: time.Now(),
		RequestID: id,
		Provider:  "openai",
		Model:     "gpt-4",
		Target:    "openai/gpt-4",
		Outcome:   "success",
		Usage:     map[string]int{"total_tokens": 12},
	}
}

func TestNoopSink(t *testing.T) {
	sink := NewNoopSink()
	assert.NoError(t, sink.Enqueue(record("req-1")))
	assert.NoError(t, sink.Shutdown(context.Background()))
}

func TestBufferedSink_FlushesBatches(t *testing.T) {
	cfg := testSinkConfig()
	writer := &fakeBatchWriter{}
	sink := NewBufferedSink(queue.NewMemoryQueue(cfg), queue.NewMemoryDeadLetterQueue(), writer, cfg)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, sink.Enqueue(record(id)))
	}

	assert.Eventually(t, func() bool {
		return len(writer.written()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sink.Shutdown(context.Background()))

	got := writer.written()
	assert.Equal(t, "a", got[0].RequestID)
	assert.Equal(t, "openai/gpt-4", got[0].Target)
	assert.Equal(t, 12, got[0].Usage["total_tokens"])
}

func TestBufferedSink_RetriesThenSucceeds(t *testing.T) {
	cfg := testSinkConfig()
	writer := &fakeBatchWriter{failures: 2}
	dlq := queue.NewMemoryDeadLetterQueue()
	sink := NewBufferedSink(queue.NewMemoryQueue(cfg), dlq, writer, cfg)
	defer sink.Shutdown(context.Background())

	require.NoError(t, sink.Enqueue(record("retry")))

	assert.Eventually(t, func() bool {
		return len(writer.written()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, writer.callCount())

	parked, err := dlq.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, parked)
}

func TestBufferedSink_DeadLettersAfterRetries(t *testing.T) {
	cfg := testSinkConfig()
	writer := &fakeBatchWriter{failures: -1}
	dlq := queue.NewMemoryDeadLetterQueue()
	sink := NewBufferedSink(queue.NewMemoryQueue(cfg), dlq, writer, cfg)
	defer sink.Shutdown(context.Background())

	require.NoError(t, sink.Enqueue(record("doomed")))

	var parked []queue.DeadLetterItem
	assert.Eventually(t, func() bool {
		items, err := dlq.List(context.Background(), 0)
		if err != nil {
			return false
		}
		parked = items
		return len(items) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Len(t, parked, 1)
	assert.Contains(t, string(parked[0].Payload), `"request_id":"doomed"`)
	assert.Equal(t, "upload failed", parked[0].Error)
	assert.Equal(t, cfg.MaxRetries+1, writer.callCount())
}

func TestBufferedSink_ShutdownDrainsQueue(t *testing.T) {
	cfg := testSinkConfig()
	cfg.BatchTimeout = time.Hour
	writer := &fakeBatchWriter{}
	q := queue.NewMemoryQueue(cfg)
	sink := NewBufferedSink(q, queue.NewMemoryDeadLetterQueue(), writer, cfg)

	for i := 0; i < 25; i++ {
		require.NoError(t, sink.Enqueue(record("drain")))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Shutdown(ctx))

	assert.Len(t, writer.written(), 25)
	assert.NoError(t, sink.Shutdown(ctx), "second shutdown is a no-op")
	assert.ErrorIs(t, sink.Enqueue(record("late")), queue.ErrQueueClosed)
}

func TestBufferedSink_FullQueueDoesNotBlock(t *testing.T) {
	cfg := testSinkConfig()
	cfg.Capacity = 1
	cfg.BatchTimeout = time.Hour
	writer := &fakeBatchWriter{failures: -1}
	cfg.MaxRetries = 0
	sink := NewBufferedSink(queue.NewMemoryQueue(cfg), nil, writer, cfg)
	defer sink.Shutdown(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			_ = sink.Enqueue(record("flood"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestBufferedSink_RedisQueue(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := testSinkConfig()
	cfg.UseRedis = true
	cfg.RedisAddr = mr.Addr()
	cfg.BatchTimeout = 50 * time.Millisecond

	q, dlq, err := queue.New(cfg)
	require.NoError(t, err)

	writer := &fakeBatchWriter{}
	sink := NewBufferedSink(q, dlq, writer, cfg)

	require.NoError(t, sink.Enqueue(record("redis-1")))
	require.NoError(t, sink.Enqueue(record("redis-2")))

	assert.Eventually(t, func() bool {
		return len(writer.written()) == 2
	}, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Shutdown(ctx))
}
