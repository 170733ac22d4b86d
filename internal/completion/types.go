package completion

import "context"

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the body of POST /chat/completions. Temperature and MaxTokens
// are pointers so that an explicit zero is kept apart from "not sent".
type Request struct {
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

// Response is what the gateway returns for a successful completion.
type Response struct {
	ResponseText string         `json:"response"`
	Usage        map[string]int `json:"usage"`
}

// ProviderInfo is one entry of the provider listing.
type ProviderInfo struct {
	Name         string   `json:"name"`
	Models       []string `json:"models"`
	IsConfigured bool     `json:"is_configured"`
}

// Health is the liveness report.
type Health struct {
	Status              string   `json:"status"`
	ConfiguredProviders []string `json:"configured_providers"`
}

// Call is the normalized argument set handed to a Client. Model is the
// dispatch target "<provider>/<model>". Credentials holds only the fields
// the provider actually has configured.
type Call struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Credentials map[string]string
}

// Choice is one completion alternative returned by a provider.
type Choice struct {
	Message      Message
	FinishReason string
}

// Result is the raw outcome of a Client call.
type Result struct {
	Choices []Choice
	Usage   map[string]int
}

// Client executes completion calls against upstream providers.
type Client interface {
	Complete(ctx context.Context, call Call) (*Result, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, call Call) (*Result, error)

func (f ClientFunc) Complete(ctx context.Context, call Call) (*Result, error) {
	return f(ctx, call)
}
