package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"unified_gateway/internal/completion"
	"unified_gateway/internal/providers"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// AnthropicProvider speaks the Anthropic Messages API.
type AnthropicProvider struct {
	baseURL string
	auth    Authenticator
	client  *http.Client
}

func NewAnthropicProvider(config ProviderConfig) (Provider, error) {
	apiKey := config.Credentials[providers.CredentialAPIKey]
	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for anthropic provider")
	}

	baseURL := anthropicDefaultBaseURL
	if base := config.Credentials[string(providers.FieldAPIBase)]; base != "" {
		baseURL = base
	}

	client := config.HTTPClient
	if client == nil {
		client = NewHTTPClient(0)
	}

	return &AnthropicProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    NewSimpleAPIKeyAuth(apiKey, "x-api-key", ""),
		client:  client,
	}, nil
}

func (p *AnthropicProvider) Type() string {
	return "anthropic"
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// mapAnthropicRequest moves system turns into the top-level system field.
func mapAnthropicRequest(req ChatRequest) anthropicRequest {
	var system []string
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	return anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      strings.Join(system, "\n"),
		Messages:    messages,
		Temperature: req.Temperature,
	}
}

func anthropicFinishReason(stop string) string {
	switch stop {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	default:
		return stop
	}
}

func (p *AnthropicProvider) Chat(ctx context.Context, req ChatRequest) (*completion.Result, error) {
	body, err := json.Marshal(mapAnthropicRequest(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	if err := applyAuth(ctx, p.auth, httpReq); err != nil {
		return nil, err
	}

	respBody, err := doJSON(p.client, httpReq, "anthropic")
	if err != nil {
		return nil, err
	}

	var decoded anthropicResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("anthropic: failed to decode response: %w", err)
	}

	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &completion.Result{
		Choices: []completion.Choice{{
			Message:      completion.Message{Role: "assistant", Content: text.String()},
			FinishReason: anthropicFinishReason(decoded.StopReason),
		}},
		Usage: map[string]int{
			"prompt_tokens":     decoded.Usage.InputTokens,
			"completion_tokens": decoded.Usage.OutputTokens,
			"total_tokens":      decoded.Usage.InputTokens + decoded.Usage.OutputTokens,
		},
	}, nil
}
