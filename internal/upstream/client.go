package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"unified_gateway/internal/completion"
	"unified_gateway/internal/utils"
)

// Client implements completion.Client over the built-in vendor adapters.
type Client struct {
	factory    *ProviderFactory
	httpClient *http.Client
	logger     *utils.Logger
}

// NewClient builds a client whose HTTP calls time out after timeout.
func NewClient(timeout time.Duration) *Client {
	return NewClientWithFactory(NewProviderFactory(NewBedrockCreator(nil)), NewHTTPClient(timeout))
}

func NewClientWithFactory(factory *ProviderFactory, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	return &Client{
		factory:    factory,
		httpClient: httpClient,
		logger:     utils.NewLogger("upstream"),
	}
}

// SplitTarget splits "<provider>/<model>" at the first slash. Model ids may
// contain further slashes.
func SplitTarget(target string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(target, "/")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("invalid dispatch target %q", target)
	}
	return provider, model, nil
}

func (c *Client) Complete(ctx context.Context, call completion.Call) (*completion.Result, error) {
	providerType, model, err := SplitTarget(call.Model)
	if err != nil {
		return nil, err
	}

	provider, err := c.factory.CreateProvider(ProviderConfig{
		Type:        providerType,
		Credentials: call.Credentials,
		HTTPClient:  c.httpClient,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := provider.Chat(ctx, ChatRequest{
		Model:       model,
		Messages:    call.Messages,
		Temperature: call.Temperature,
		MaxTokens:   call.MaxTokens,
	})
	c.logger.Debug("Upstream call finished", "provider", providerType, "model", model, "latency", time.Since(start), "error", err)
	return result, err
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
