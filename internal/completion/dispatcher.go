// Package completion validates chat-completion requests against the provider
// registry and relays them to the upstream completion client.
package completion

import (
	"context"
	"time"

	"github.com/google/uuid"

	"unified_gateway/internal/logging"
	"unified_gateway/internal/metrics"
	"unified_gateway/internal/providers"
	"unified_gateway/internal/utils"
)

// ProviderRegistry is the read-only view of provider configuration the
// dispatcher needs. *providers.Registry implements it.
type ProviderRegistry interface {
	ListActivatedProviders() []string
	IsConfigured(provider string) bool
	HasModel(provider, model string) bool
	GetAvailableModels(provider string) []string
	GetDispatchCredentials(provider string) map[string]string
	Definitions() []providers.Definition
}

// Dispatcher executes one completion per call. It holds no per-request
// state, so a single instance serves all concurrent requests.
type Dispatcher struct {
	registry ProviderRegistry
	client   Client
	sink     logging.Sink
	metrics  metrics.Recorder
	logger   *utils.Logger
	now      func() time.Time
}

type Option func(*Dispatcher)

// WithSink sends one record per dispatch to sink.
func WithSink(sink logging.Sink) Option {
	return func(d *Dispatcher) {
		if sink != nil {
			d.sink = sink
		}
	}
}

// WithMetrics reports dispatch outcomes to rec.
func WithMetrics(rec metrics.Recorder) Option {
	return func(d *Dispatcher) {
		if rec != nil {
			d.metrics = rec
		}
	}
}

func New(registry ProviderRegistry, client Client, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		client:   client,
		sink:     logging.NewNoopSink(),
		metrics:  metrics.Noop{},
		logger:   utils.NewLogger("dispatcher"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Target builds the dispatch identifier understood by the completion client.
func Target(provider, model string) string {
	return provider + "/" + model
}

// CreateCompletion validates the provider and model, then performs exactly
// one upstream call. Validation failures never reach the client.
func (d *Dispatcher) CreateCompletion(ctx context.Context, req Request) (*Response, error) {
	start := d.now()
	rec := &logging.LogRecord{
		Timestamp: start.UTC(),
		RequestID: uuid.NewString(),
		Provider:  req.Provider,
		Model:     req.Model,
	}

	if !d.registry.IsConfigured(req.Provider) {
		err := &ProviderNotConfiguredError{Provider: req.Provider}
		d.finish(rec, metrics.OutcomeNotConfigured, start, 0, nil, err)
		return nil, err
	}
	if !d.registry.HasModel(req.Provider, req.Model) {
		err := &ModelNotAvailableError{Provider: req.Provider, Model: req.Model}
		d.finish(rec, metrics.OutcomeModelUnavailable, start, 0, nil, err)
		return nil, err
	}

	call := Call{
		Model:       Target(req.Provider, req.Model),
		Messages:    req.Messages,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
		Credentials: d.registry.GetDispatchCredentials(req.Provider),
	}
	if req.Temperature != nil {
		call.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		call.MaxTokens = *req.MaxTokens
	}
	rec.Target = call.Model

	callStart := d.now()
	result, err := d.client.Complete(ctx, call)
	providerTime := d.now().Sub(callStart)
	if err == nil && (result == nil || len(result.Choices) == 0) {
		err = ErrEmptyCompletion
	}
	if err != nil {
		upstreamErr := &UpstreamError{Target: call.Model, Err: err}
		d.logger.Error("Completion failed", "target", call.Model, "error", err)
		d.finish(rec, metrics.OutcomeUpstreamError, start, providerTime, nil, upstreamErr)
		return nil, upstreamErr
	}

	usage := make(map[string]int, len(result.Usage))
	for k, v := range result.Usage {
		usage[k] = v
	}

	d.finish(rec, metrics.OutcomeSuccess, start, providerTime, usage, nil)
	return &Response{
		ResponseText: result.Choices[0].Message.Content,
		Usage:        usage,
	}, nil
}

// finish emits the dispatch record and metrics. Sink failures are logged only.
func (d *Dispatcher) finish(rec *logging.LogRecord, outcome string, start time.Time, providerTime time.Duration, usage map[string]int, err error) {
	rec.Outcome = outcome
	rec.ProviderMs = providerTime.Milliseconds()
	rec.GatewayMs = d.now().Sub(start).Milliseconds() - rec.ProviderMs
	rec.Usage = usage
	if err != nil {
		rec.Error = err.Error()
	}

	// Rejected names come straight from the client and must not become labels.
	provider, model := rec.Provider, rec.Model
	switch outcome {
	case metrics.OutcomeNotConfigured:
		provider, model = metrics.UnknownLabel, metrics.UnknownLabel
	case metrics.OutcomeModelUnavailable:
		model = metrics.UnknownLabel
	}
	d.metrics.ObserveDispatch(provider, model, outcome, providerTime, usage)
	if serr := d.sink.Enqueue(rec); serr != nil {
		d.logger.Warn("Failed to record dispatch", "request_id", rec.RequestID, "error", serr)
	}
}

// ListProviders reports every catalog provider in catalog order. Configured
// providers carry their resolved models, the rest their catalog defaults.
func (d *Dispatcher) ListProviders() []ProviderInfo {
	defs := d.registry.Definitions()
	out := make([]ProviderInfo, 0, len(defs))
	for _, def := range defs {
		info := ProviderInfo{Name: def.Name}
		if d.registry.IsConfigured(def.Name) {
			info.Models = d.registry.GetAvailableModels(def.Name)
			info.IsConfigured = true
		} else {
			info.Models = append([]string{}, def.Models...)
		}
		out = append(out, info)
	}
	return out
}

// ListModels returns the models of a configured provider.
func (d *Dispatcher) ListModels(provider string) ([]string, error) {
	if !d.registry.IsConfigured(provider) {
		return nil, &ProviderNotConfiguredError{Provider: provider}
	}
	return d.registry.GetAvailableModels(provider), nil
}

func (d *Dispatcher) HealthCheck() Health {
	return Health{
		Status:              "healthy",
		ConfiguredProviders: d.registry.ListActivatedProviders(),
	}
}
