package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"unified_gateway/internal/queue"
	"unified_gateway/internal/utils"
)

// BatchWriter persists a batch of records and returns where they went.
type BatchWriter interface {
	WriteBatch(ctx context.Context, records []*LogRecord) (string, error)
}

// BufferedSink queues records and flushes them to a BatchWriter in batches
// from a single background goroutine. Batches that still fail after
// MaxRetries attempts are parked in the dead letter queue.
type BufferedSink struct {
	queue  queue.Queue
	dlq    queue.DeadLetterQueue
	writer BatchWriter
	config *queue.Config
	logger *utils.Logger

	loopCtx    context.Context
	cancelLoop context.CancelFunc
	done       chan struct{}
	shutdown   sync.Once
}

// NewBufferedSink starts the flush loop. The sink owns q and dlq and closes
// them on Shutdown.
func NewBufferedSink(q queue.Queue, dlq queue.DeadLetterQueue, writer BatchWriter, config *queue.Config) *BufferedSink {
	if config == nil {
		config = queue.DefaultConfig("dispatch-log")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &BufferedSink{
		queue:      q,
		dlq:        dlq,
		writer:     writer,
		config:     config,
		logger:     utils.NewLogger("dispatch-sink"),
		loopCtx:    ctx,
		cancelLoop: cancel,
		done:       make(chan struct{}),
	}

	go s.run()
	return s
}

// Enqueue serializes rec onto the queue. It never blocks on a full memory queue.
func (s *BufferedSink) Enqueue(rec *LogRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal log record: %w", err)
	}
	if err := s.queue.Enqueue(context.Background(), data); err != nil {
		return fmt.Errorf("failed to enqueue log record: %w", err)
	}
	return nil
}

// Shutdown stops the flush loop, drains what is left in the queue and
// closes the queues. It is safe to call more than once.
func (s *BufferedSink) Shutdown(ctx context.Context) error {
	var err error
	s.shutdown.Do(func() {
		s.cancelLoop()
		select {
		case <-s.done:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}

		for {
			items, derr := s.queue.DequeueWithTimeout(ctx, s.config.BatchSize, 10*time.Millisecond)
			if derr != nil || len(items) == 0 {
				break
			}
			s.flush(ctx, items)
		}

		if cerr := s.queue.Close(); cerr != nil {
			err = cerr
		}
		if s.dlq != nil {
			_ = s.dlq.Close()
		}
	})
	return err
}

func (s *BufferedSink) run() {
	defer close(s.done)

	for {
		items, err := s.queue.DequeueWithTimeout(s.loopCtx, s.config.BatchSize, s.config.BatchTimeout)
		if s.loopCtx.Err() != nil {
			if len(items) > 0 {
				s.flush(context.Background(), items)
			}
			return
		}
		if err != nil {
			s.logger.Error("Failed to dequeue log records", "error", err)
			select {
			case <-time.After(time.Second):
			case <-s.loopCtx.Done():
			}
			continue
		}
		if len(items) == 0 {
			continue
		}
		s.flush(context.Background(), items)
	}
}

// flush decodes payloads and writes them, retrying with doubling backoff.
func (s *BufferedSink) flush(ctx context.Context, items [][]byte) {
	records := make([]*LogRecord, 0, len(items))
	payloads := make([][]byte, 0, len(items))
	for _, item := range items {
		var rec LogRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			s.deadLetter(ctx, item, fmt.Errorf("malformed record: %w", err))
			continue
		}
		records = append(records, &rec)
		payloads = append(payloads, item)
	}
	if len(records) == 0 {
		return
	}

	backoff := s.config.RetryBackoff
	var lastErr error
retry:
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr = ctx.Err()
				break retry
			}
			backoff *= 2
		}

		key, err := s.writer.WriteBatch(ctx, records)
		if err == nil {
			s.logger.Debug("Flushed dispatch records", "key", key, "count", len(records))
			return
		}
		lastErr = err
		s.logger.Warn("Failed to write dispatch records", "attempt", attempt+1, "error", err)
	}

	for _, p := range payloads {
		s.deadLetter(ctx, p, lastErr)
	}
}

func (s *BufferedSink) deadLetter(ctx context.Context, payload []byte, cause error) {
	if s.dlq == nil {
		s.logger.Error("Dropping dispatch record", "error", cause)
		return
	}
	if err := s.dlq.Add(ctx, payload, cause); err != nil {
		s.logger.Error("Failed to park dispatch record", "error", err)
	}
}
