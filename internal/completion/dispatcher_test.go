package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unified_gateway/internal/logging"
	"unified_gateway/internal/metrics"
	"unified_gateway/internal/providers"
)

type recordingClient struct {
	mu     sync.Mutex
	calls  []Call
	result *Result
	err    error
}

func (c *recordingClient) Complete(ctx context.Context, call Call) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

func (c *recordingClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type recordingSink struct {
	mu      sync.Mutex
	records []*logging.LogRecord
	err     error
}

func (s *recordingSink) Enqueue(rec *logging.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

func (s *recordingSink) Shutdown(ctx context.Context) error { return nil }

func registryFromEnv(env map[string]string) *providers.Registry {
	return providers.NewRegistry(providers.DefaultCatalog(), func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
}

func okResult(text string) *Result {
	return &Result{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: text}, FinishReason: "stop"}},
		Usage:   map[string]int{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
	}
}

func userHi() []Message {
	return []Message{{Role: "user", Content: "hi"}}
}

func TestCreateCompletion_AppliesDefaults(t *testing.T) {
	client := &recordingClient{result: okResult("hello")}
	d := New(registryFromEnv(map[string]string{"OPENAI_API_KEY": "sk-test"}), client)

	resp, err := d.CreateCompletion(context.Background(), Request{
		Provider: "openai",
		Model:    "gpt-4",
		Messages: userHi(),
	})
	require.NoError(t, err)

	assert.Equal(t, "hello", resp.ResponseText)
	assert.Equal(t, map[string]int{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}, resp.Usage)

	require.Len(t, client.calls, 1)
	call := client.calls[0]
	assert.Equal(t, "openai/gpt-4", call.Model)
	assert.Equal(t, 0.7, call.Temperature)
	assert.Equal(t, 1000, call.MaxTokens)
	assert.Equal(t, userHi(), call.Messages)
	assert.Equal(t, map[string]string{"api_key": "sk-test"}, call.Credentials)
}

func TestCreateCompletion_ExplicitParameters(t *testing.T) {
	client := &recordingClient{result: okResult("ok")}
	d := New(registryFromEnv(map[string]string{"GROQ_API_KEY": "gsk"}), client)

	temp := 0.0
	maxTokens := 42
	_, err := d.CreateCompletion(context.Background(), Request{
		Provider:    "groq",
		Model:       "mixtral-8x7b-32768",
		Messages:    userHi(),
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	require.NoError(t, err)

	require.Len(t, client.calls, 1)
	assert.Equal(t, 0.0, client.calls[0].Temperature, "explicit zero is kept")
	assert.Equal(t, 42, client.calls[0].MaxTokens)
}

func TestCreateCompletion_ProviderNotConfigured(t *testing.T) {
	client := &recordingClient{result: okResult("unused")}
	d := New(registryFromEnv(map[string]string{"OPENAI_API_KEY": "sk-test"}), client)

	_, err := d.CreateCompletion(context.Background(), Request{
		Provider: "anthropic",
		Model:    "claude-2",
		Messages: userHi(),
	})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrProviderNotConfigured)
	var pnc *ProviderNotConfiguredError
	require.ErrorAs(t, err, &pnc)
	assert.Equal(t, "anthropic", pnc.Provider)
	assert.Equal(t, "Provider anthropic not configured", err.Error())
	assert.Zero(t, client.callCount())
}

func TestCreateCompletion_UnknownProviderChecksProviderFirst(t *testing.T) {
	client := &recordingClient{}
	d := New(registryFromEnv(nil), client)

	_, err := d.CreateCompletion(context.Background(), Request{Provider: "nope", Model: "nonexistent-model"})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
	assert.NotErrorIs(t, err, ErrModelNotAvailable)
	assert.Zero(t, client.callCount())
}

func TestCreateCompletion_ModelNotAvailable(t *testing.T) {
	client := &recordingClient{result: okResult("unused")}
	d := New(registryFromEnv(map[string]string{"OPENAI_API_KEY": "sk-test"}), client)

	for _, model := range []string{"nonexistent-model", "GPT-4", "gpt-4 "} {
		_, err := d.CreateCompletion(context.Background(), Request{
			Provider: "openai",
			Model:    model,
			Messages: userHi(),
		})
		assert.ErrorIs(t, err, ErrModelNotAvailable, model)
	}

	_, err := d.CreateCompletion(context.Background(), Request{Provider: "openai", Model: "nonexistent-model"})
	assert.Equal(t, "Model nonexistent-model not available for provider openai", err.Error())
	assert.Zero(t, client.callCount())
}

func TestCreateCompletion_UpstreamFailure(t *testing.T) {
	client := &recordingClient{err: errors.New("401 invalid api key")}
	d := New(registryFromEnv(map[string]string{"OPENAI_API_KEY": "sk-test"}), client)

	_, err := d.CreateCompletion(context.Background(), Request{
		Provider: "openai",
		Model:    "gpt-4",
		Messages: userHi(),
	})
	require.Error(t, err)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "openai/gpt-4", upstream.Target)
	assert.Equal(t, "401 invalid api key", err.Error())
	assert.Equal(t, 1, client.callCount(), "no retries")
}

func TestCreateCompletion_EmptyChoicesIsUpstreamFailure(t *testing.T) {
	client := &recordingClient{result: &Result{}}
	d := New(registryFromEnv(map[string]string{"OPENAI_API_KEY": "sk-test"}), client)

	_, err := d.CreateCompletion(context.Background(), Request{Provider: "openai", Model: "gpt-4", Messages: userHi()})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestCreateCompletion_MissingUsageIsEmptyMap(t *testing.T) {
	client := &recordingClient{result: &Result{Choices: []Choice{{Message: Message{Content: "x"}}}}}
	d := New(registryFromEnv(map[string]string{"OPENAI_API_KEY": "sk-test"}), client)

	resp, err := d.CreateCompletion(context.Background(), Request{Provider: "openai", Model: "gpt-4", Messages: userHi()})
	require.NoError(t, err)
	assert.NotNil(t, resp.Usage)
	assert.Empty(t, resp.Usage)
}

func TestCreateCompletion_MergesOnlyPresentCredentials(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		provider string
		model    string
		expected map[string]string
	}{
		{
			name:     "azure with all fields",
			env:      map[string]string{"AZURE_API_KEY": "az", "AZURE_API_BASE": "https://x.openai.azure.com", "AZURE_API_VERSION": "2024-02-01"},
			provider: "azure",
			model:    "azure-gpt-4",
			expected: map[string]string{"api_key": "az", "api_base": "https://x.openai.azure.com", "api_version": "2024-02-01"},
		},
		{
			name:     "azure without secondaries",
			env:      map[string]string{"AZURE_API_KEY": "az"},
			provider: "azure",
			model:    "azure-gpt-4",
			expected: map[string]string{"api_key": "az"},
		},
		{
			name:     "aws with empty region",
			env:      map[string]string{"AWS_ACCESS_KEY_ID": "AKIA", "AWS_SECRET_ACCESS_KEY": "secret", "AWS_REGION": ""},
			provider: "aws",
			model:    "anthropic.claude-v2",
			expected: map[string]string{"api_key": "AKIA", "api_secret": "secret"},
		},
		{
			name:     "cloudflare",
			env:      map[string]string{"CLOUDFLARE_API_KEY": "cf", "CLOUDFLARE_ACCOUNT_ID": "acct"},
			provider: "cloudflare",
			model:    "@cf/meta/llama-2-7b-chat-int8",
			expected: map[string]string{"api_key": "cf", "account_id": "acct"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &recordingClient{result: okResult("ok")}
			d := New(registryFromEnv(tt.env), client)

			_, err := d.CreateCompletion(context.Background(), Request{Provider: tt.provider, Model: tt.model, Messages: userHi()})
			require.NoError(t, err)
			require.Len(t, client.calls, 1)
			assert.Equal(t, tt.expected, client.calls[0].Credentials)
			for k, v := range client.calls[0].Credentials {
				assert.NotEmpty(t, v, k)
			}
		})
	}
}

func TestCreateCompletion_EmitsDispatchRecords(t *testing.T) {
	sink := &recordingSink{err: errors.New("queue full")}
	client := &recordingClient{result: okResult("hi")}
	d := New(registryFromEnv(map[string]string{"OPENAI_API_KEY": "sk-secret"}), client, WithSink(sink))

	_, err := d.CreateCompletion(context.Background(), Request{Provider: "openai", Model: "gpt-4", Messages: userHi()})
	require.NoError(t, err, "sink failures do not fail the request")
	_, _ = d.CreateCompletion(context.Background(), Request{Provider: "openai", Model: "bad"})
	_, _ = d.CreateCompletion(context.Background(), Request{Provider: "cohere", Model: "command"})

	require.Len(t, sink.records, 3)

	ok := sink.records[0]
	assert.Equal(t, metrics.OutcomeSuccess, ok.Outcome)
	assert.Equal(t, "openai/gpt-4", ok.Target)
	assert.Equal(t, 5, ok.Usage["total_tokens"])
	assert.NotEmpty(t, ok.RequestID)
	assert.Empty(t, ok.Error)

	assert.Equal(t, metrics.OutcomeModelUnavailable, sink.records[1].Outcome)
	assert.Empty(t, sink.records[1].Target)
	assert.Equal(t, metrics.OutcomeNotConfigured, sink.records[2].Outcome)

	assert.NotEqual(t, sink.records[0].RequestID, sink.records[1].RequestID)
}

func TestCreateCompletion_ReportsMetrics(t *testing.T) {
	m := metrics.New()
	client := &recordingClient{err: errors.New("timeout")}
	d := New(registryFromEnv(map[string]string{"OPENAI_API_KEY": "sk"}), client, WithMetrics(m))

	_, _ = d.CreateCompletion(context.Background(), Request{Provider: "openai", Model: "gpt-4"})

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() != "gateway_dispatch_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["outcome"] == metrics.OutcomeUpstreamError && labels["model"] == "gpt-4" {
				found = true
				assert.Equal(t, 1.0, metric.GetCounter().GetValue())
			}
		}
	}
	assert.True(t, found)
}

func TestCreateCompletion_RejectedNamesAreNotLabels(t *testing.T) {
	m := metrics.New()
	d := New(registryFromEnv(map[string]string{"OPENAI_API_KEY": "sk"}), &recordingClient{}, WithMetrics(m))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := d.CreateCompletion(ctx, Request{Provider: fmt.Sprintf("p%d", i), Model: fmt.Sprintf("m%d", i)})
		require.ErrorIs(t, err, ErrProviderNotConfigured)
		_, err = d.CreateCompletion(ctx, Request{Provider: "openai", Model: fmt.Sprintf("m%d", i)})
		require.ErrorIs(t, err, ErrModelNotAvailable)
	}

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var series []map[string]string
	for _, mf := range families {
		if mf.GetName() != "gateway_dispatch_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			assert.Equal(t, 50.0, metric.GetCounter().GetValue())
			series = append(series, labels)
		}
	}

	assert.ElementsMatch(t, []map[string]string{
		{"provider": metrics.UnknownLabel, "model": metrics.UnknownLabel, "outcome": metrics.OutcomeNotConfigured},
		{"provider": "openai", "model": metrics.UnknownLabel, "outcome": metrics.OutcomeModelUnavailable},
	}, series)
}

func TestListProviders(t *testing.T) {
	d := New(registryFromEnv(map[string]string{"OPENAI_API_KEY": "sk-test"}), &recordingClient{})

	list := d.ListProviders()
	require.Len(t, list, len(providers.DefaultCatalog()))

	configured := 0
	for _, p := range list {
		if p.IsConfigured {
			configured++
		}
		assert.NotEmpty(t, p.Models, p.Name)
	}
	assert.Equal(t, 1, configured)
	assert.Equal(t, ProviderInfo{Name: "openai", Models: []string{"gpt-3.5-turbo", "gpt-4"}, IsConfigured: true}, list[0])
	assert.Equal(t, "anthropic", list[1].Name)
	assert.False(t, list[1].IsConfigured)
}

func TestListModels(t *testing.T) {
	d := New(registryFromEnv(map[string]string{"OPENAI_API_KEY": "sk-test"}), &recordingClient{})

	models, err := d.ListModels("openai")
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-3.5-turbo", "gpt-4"}, models)

	_, err = d.ListModels("anthropic")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestHealthCheck(t *testing.T) {
	d := New(registryFromEnv(nil), &recordingClient{})
	h := d.HealthCheck()
	assert.Equal(t, "healthy", h.Status)
	assert.NotNil(t, h.ConfiguredProviders)
	assert.Empty(t, h.ConfiguredProviders)

	d = New(registryFromEnv(map[string]string{"GROQ_API_KEY": "g", "OPENAI_API_KEY": "o"}), &recordingClient{})
	assert.Equal(t, []string{"openai", "groq"}, d.HealthCheck().ConfiguredProviders)
}

func TestConcurrentDispatch(t *testing.T) {
	client := &recordingClient{result: okResult("ok")}
	d := New(registryFromEnv(map[string]string{"OPENAI_API_KEY": "sk"}), client)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.CreateCompletion(context.Background(), Request{Provider: "openai", Model: "gpt-4", Messages: userHi()})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, client.callCount())
}

func TestClientFunc(t *testing.T) {
	var got Call
	d := New(registryFromEnv(map[string]string{"OPENAI_API_KEY": "sk"}), ClientFunc(func(ctx context.Context, call Call) (*Result, error) {
		got = call
		return okResult("fn"), nil
	}))

	resp, err := d.CreateCompletion(context.Background(), Request{Provider: "openai", Model: "gpt-3.5-turbo"})
	require.NoError(t, err)
	assert.Equal(t, "fn", resp.ResponseText)
	assert.Equal(t, "openai/gpt-3.5-turbo", got.Model)
}
