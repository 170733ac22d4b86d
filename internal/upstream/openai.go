package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"

	"unified_gateway/internal/completion"
	"unified_gateway/internal/providers"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	azureDefaultVersion  = "2024-02-01"

	// maxResponseBody bounds how much of a vendor answer is read.
	maxResponseBody = 8 << 20
)

// compatEndpoint describes a vendor that speaks the OpenAI chat completions
// protocol.
type compatEndpoint struct {
	// baseURL resolves the API root from the call credentials.
	baseURL func(creds map[string]string) (string, error)
	// chatURL builds the full endpoint; nil means baseURL + "/chat/completions".
	chatURL func(base, model string, creds map[string]string) string
	auth    func(apiKey string) Authenticator
}

func fixedBase(def string) func(map[string]string) (string, error) {
	return func(creds map[string]string) (string, error) {
		if base := creds[string(providers.FieldAPIBase)]; base != "" {
			return base, nil
		}
		return def, nil
	}
}

func requiredField(provider string, field providers.Field, build func(string) string) func(map[string]string) (string, error) {
	return func(creds map[string]string) (string, error) {
		v := creds[string(field)]
		if v == "" {
			return "", fmt.Errorf("%s requires %s to be configured", provider, field)
		}
		return build(v), nil
	}
}

func bearer(apiKey string) Authenticator { return NewBearerAuth(apiKey) }

var openAICompatible = map[string]compatEndpoint{
	"openai": {baseURL: fixedBase(openAIDefaultBaseURL), auth: bearer},
	"azure": {
		baseURL: requiredField("azure", providers.FieldAPIBase, func(v string) string { return v }),
		chatURL: func(base, model string, creds map[string]string) string {
			version := creds[string(providers.FieldAPIVersion)]
			if version == "" {
				version = azureDefaultVersion
			}
			return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
				strings.TrimRight(base, "/"), url.PathEscape(model), url.QueryEscape(version))
		},
		auth: func(apiKey string) Authenticator { return NewSimpleAPIKeyAuth(apiKey, "api-key", "") },
	},
	"groq":        {baseURL: fixedBase("https://api.groq.com/openai/v1"), auth: bearer},
	"together":    {baseURL: fixedBase("https://api.together.xyz/v1"), auth: bearer},
	"cohere":      {baseURL: fixedBase("https://api.cohere.ai/compatibility/v1"), auth: bearer},
	"huggingface": {baseURL: fixedBase("https://router.huggingface.co/v1"), auth: bearer},
	"ai21":        {baseURL: fixedBase("https://api.ai21.com/studio/v1"), auth: bearer},
	"cloudflare": {
		baseURL: requiredField("cloudflare", providers.FieldAccountID, func(account string) string {
			return "https://api.cloudflare.com/client/v4/accounts/" + url.PathEscape(account) + "/ai/v1"
		}),
		auth: bearer,
	},
	"ibm": {
		baseURL: requiredField("ibm", providers.FieldAPIBase, func(v string) string { return v }),
		auth:    bearer,
	},
}

// OpenAICompatibleProvider talks to any vendor in openAICompatible.
type OpenAICompatibleProvider struct {
	providerType string
	endpoint     compatEndpoint
	baseURL      string
	creds        map[string]string
	auth         Authenticator
	client       *http.Client
}

func NewOpenAICompatibleProvider(config ProviderConfig) (Provider, error) {
	endpoint, ok := openAICompatible[config.Type]
	if !ok {
		return nil, fmt.Errorf("%s is not an OpenAI compatible provider", config.Type)
	}

	apiKey := config.Credentials[providers.CredentialAPIKey]
	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for %s provider", config.Type)
	}

	baseURL, err := endpoint.baseURL(config.Credentials)
	if err != nil {
		return nil, err
	}

	client := config.HTTPClient
	if client == nil {
		client = NewHTTPClient(0)
	}

	return &OpenAICompatibleProvider{
		providerType: config.Type,
		endpoint:     endpoint,
		baseURL:      strings.TrimRight(baseURL, "/"),
		creds:        config.Credentials,
		auth:         endpoint.auth(apiKey),
		client:       client,
	}, nil
}

func (p *OpenAICompatibleProvider) Type() string {
	return p.providerType
}

type openAIChatRequest struct {
	Model       string               `json:"model"`
	Messages    []completion.Message `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message      completion.Message `json:"message"`
		FinishReason string             `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
}

func (p *OpenAICompatibleProvider) chatURL(model string) string {
	if p.endpoint.chatURL != nil {
		return p.endpoint.chatURL(p.baseURL, model, p.creds)
	}
	return p.baseURL + "/chat/completions"
}

// Chat sends one non-streaming chat completion.
func (p *OpenAICompatibleProvider) Chat(ctx context.Context, req ChatRequest) (*completion.Result, error) {
	body, err := json.Marshal(openAIChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL(req.Model), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if err := applyAuth(ctx, p.auth, httpReq); err != nil {
		return nil, err
	}

	respBody, err := doJSON(p.client, httpReq, p.providerType)
	if err != nil {
		return nil, err
	}

	var decoded openAIChatResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("%s: failed to decode response: %w", p.providerType, err)
	}

	result := &completion.Result{
		Choices: make([]completion.Choice, 0, len(decoded.Choices)),
		Usage:   extractUsage(decoded.Usage),
	}
	for _, c := range decoded.Choices {
		result.Choices = append(result.Choices, completion.Choice{
			Message:      c.Message,
			FinishReason: c.FinishReason,
		})
	}
	return result, nil
}

// doJSON executes req and returns the body of a 2xx answer.
func doJSON(client *http.Client, req *http.Request, provider string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// extractUsage keeps the integer counters of a usage object and drops
// nested breakdowns.
func extractUsage(raw map[string]any) map[string]int {
	usage := make(map[string]int, len(raw))
	for k, v := range raw {
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			continue
		}
		usage[k] = int(f)
	}
	return usage
}
