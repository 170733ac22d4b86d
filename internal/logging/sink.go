package logging

import (
	"context"
	"time"
)

// LogRecord describes one completion dispatch. It never carries credentials
// or message contents.
type LogRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	RequestID  string         `json:"request_id"`
	Provider   string         `json:"provider"`
	Model      string         `json:"model"`
	Target     string         `json:"target,omitempty"`
	Outcome    string         `json:"outcome"`
	ProviderMs int64          `json:"provider_ms"`
	GatewayMs  int64          `json:"gateway_ms"`
	Usage      map[string]int `json:"usage,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Sink receives dispatch records from the gateway.
type Sink interface {
	Enqueue(rec *LogRecord) error
	Shutdown(ctx context.Context) error
}

// NoopSink discards records.
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(rec *LogRecord) error {
	return nil
}

func (s *NoopSink) Shutdown(ctx context.Context) error {
	return nil
}
