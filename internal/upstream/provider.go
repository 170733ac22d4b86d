// Package upstream implements the multi-provider completion client: it
// routes a "<provider>/<model>" dispatch target to a vendor adapter built
// from the credentials that come with the call.
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"unified_gateway/internal/completion"
)

const defaultTimeout = 60 * time.Second

// ChatRequest is a normalized request for one vendor. Model is the vendor's
// own model id, without the provider prefix.
type ChatRequest struct {
	Model       string
	Messages    []completion.Message
	Temperature float64
	MaxTokens   int
}

// Provider is implemented by each vendor adapter.
type Provider interface {
	// Type returns the catalog provider name the adapter serves.
	Type() string

	Chat(ctx context.Context, req ChatRequest) (*completion.Result, error)
}

// ProviderConfig is what a ProviderCreator gets to build an adapter.
type ProviderConfig struct {
	Type        string
	Credentials map[string]string // api_key plus any configured secondary fields
	HTTPClient  *http.Client
}

// ProviderCreator builds an adapter for one call.
type ProviderCreator func(config ProviderConfig) (Provider, error)

// HTTPError is a non-2xx answer from a vendor API.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// ProviderFactory maps provider names to adapter constructors.
type ProviderFactory struct {
	mu       sync.RWMutex
	creators map[string]ProviderCreator
}

// NewProviderFactory registers every built-in adapter. bedrock is the
// SDK backed creator for the "aws" provider.
func NewProviderFactory(bedrock ProviderCreator) *ProviderFactory {
	f := &ProviderFactory{
		creators: make(map[string]ProviderCreator),
	}

	for name := range openAICompatible {
		f.Register(name, NewOpenAICompatibleProvider)
	}
	f.Register("anthropic", NewAnthropicProvider)
	if bedrock != nil {
		f.Register("aws", bedrock)
	}

	return f
}

// Register registers a provider creator for a specific type
func (f *ProviderFactory) Register(providerType string, creator ProviderCreator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[providerType] = creator
}

// CreateProvider creates a new provider instance based on the configuration
func (f *ProviderFactory) CreateProvider(config ProviderConfig) (Provider, error) {
	f.mu.RLock()
	creator, exists := f.creators[config.Type]
	f.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no completion adapter for provider %q", config.Type)
	}

	provider, err := creator(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", config.Type, err)
	}

	return provider, nil
}

// SupportedTypes returns the registered provider names, sorted.
func (f *ProviderFactory) SupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.creators))
	for t := range f.creators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// NewHTTPClient is the shared client for all header authenticated vendors.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
