// Package queue buffers serialized records between request handlers and
// background writers. Two backends share one interface:
//
//   - MemoryQueue: bounded channel, lost on restart, no dependencies.
//   - RedisQueue: Redis list, survives restarts and is shared by replicas.
//
// Items are opaque byte payloads (JSON in practice) so both backends hand
// back exactly what was enqueued.
package queue

import (
	"context"
	"time"
)

// Queue defines the interface for message queuing
type Queue interface {
	// Enqueue adds a payload to the queue
	Enqueue(ctx context.Context, payload []byte) error

	// DequeueWithTimeout waits up to timeout for the first payload, then
	// drains up to maxItems without blocking. An empty result means timeout.
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([][]byte, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue
	Close() error
}

// DeadLetterQueue keeps payloads that could not be delivered.
type DeadLetterQueue interface {
	Add(ctx context.Context, payload []byte, err error) error
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)
	Remove(ctx context.Context, id string) error
	Close() error
}

// DeadLetterItem is a payload parked after delivery failed.
type DeadLetterItem struct {
	ID        string    `json:"id"`
	Payload   []byte    `json:"payload"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds queue configuration
type Config struct {
	// QueueName is the name/key for the queue
	QueueName string

	// Capacity bounds the in-memory backend
	Capacity int

	// BatchSize is the maximum number of items handed to a consumer at once
	BatchSize int

	// BatchTimeout is how long a consumer waits for a partial batch
	BatchTimeout time.Duration

	// MaxRetries is how many times a consumer retries a failed batch
	MaxRetries int

	// RetryBackoff is the initial backoff between retries; it doubles each attempt
	RetryBackoff time.Duration

	UseRedis      bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		QueueName:    queueName,
		Capacity:     10000,
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
	}
}

// New builds the backend selected by config.
func New(config *Config) (Queue, DeadLetterQueue, error) {
	if config == nil {
		config = DefaultConfig("default")
	}
	if !config.UseRedis {
		return NewMemoryQueue(config), NewMemoryDeadLetterQueue(), nil
	}

	q, err := NewRedisQueue(config)
	if err != nil {
		return nil, nil, err
	}
	dlq, err := NewRedisDeadLetterQueue(config)
	if err != nil {
		_ = q.Close()
		return nil, nil, err
	}
	return q, dlq, nil
}
