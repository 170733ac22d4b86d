package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"unified_gateway/internal/completion"
	"unified_gateway/internal/providers"
)

const bedrockDefaultRegion = "us-east-1"

// ConverseAPI is the part of the Bedrock runtime client the adapter uses.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockSettings identifies one Bedrock client.
type BedrockSettings struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	HTTPClient      *http.Client
}

// BedrockClientFunc builds a Converse client for the given settings.
type BedrockClientFunc func(ctx context.Context, settings BedrockSettings) (ConverseAPI, error)

// NewBedrockClient uses static credentials when both halves of the key pair
// are configured and the default AWS credential chain otherwise.
func NewBedrockClient(ctx context.Context, settings BedrockSettings) (ConverseAPI, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(settings.Region)}
	if settings.AccessKeyID != "" && settings.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.AccessKeyID, settings.SecretAccessKey, ""),
		))
	}
	if settings.HTTPClient != nil {
		opts = append(opts, config.WithHTTPClient(settings.HTTPClient))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

// NewBedrockCreator returns the ProviderCreator for the "aws" provider.
// Clients are cached per region and key pair since loading AWS config is
// not free.
func NewBedrockCreator(newClient BedrockClientFunc) ProviderCreator {
	if newClient == nil {
		newClient = NewBedrockClient
	}
	cache := &bedrockClientCache{newClient: newClient, clients: make(map[BedrockSettings]ConverseAPI)}

	return func(cfg ProviderConfig) (Provider, error) {
		settings := BedrockSettings{
			Region:          cfg.Credentials[string(providers.FieldRegion)],
			AccessKeyID:     cfg.Credentials[providers.CredentialAPIKey],
			SecretAccessKey: cfg.Credentials[string(providers.FieldAPISecret)],
			HTTPClient:      cfg.HTTPClient,
		}
		if settings.AccessKeyID == "" {
			return nil, fmt.Errorf("api_key is required for aws provider")
		}
		if settings.Region == "" {
			settings.Region = bedrockDefaultRegion
		}
		return &BedrockProvider{settings: settings, cache: cache}, nil
	}
}

type bedrockClientCache struct {
	mu        sync.Mutex
	newClient BedrockClientFunc
	clients   map[BedrockSettings]ConverseAPI
}

func (c *bedrockClientCache) get(ctx context.Context, settings BedrockSettings) (ConverseAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[settings]; ok {
		return client, nil
	}
	client, err := c.newClient(ctx, settings)
	if err != nil {
		return nil, err
	}
	c.clients[settings] = client
	return client, nil
}

// BedrockProvider calls the Bedrock Converse API, which gives one request
// shape for every hosted model family.
type BedrockProvider struct {
	settings BedrockSettings
	cache    *bedrockClientCache
}

func (p *BedrockProvider) Type() string {
	return "aws"
}

func mapConverseInput(req ChatRequest) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(req.Model),
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(int32(req.MaxTokens)),
			Temperature: aws.Float32(float32(req.Temperature)),
		},
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: m.Content})
		case "assistant":
			input.Messages = append(input.Messages, types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		default:
			input.Messages = append(input.Messages, types.Message{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
			})
		}
	}
	return input
}

func converseFinishReason(reason types.StopReason) string {
	switch reason {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return "stop"
	case types.StopReasonMaxTokens:
		return "length"
	default:
		return string(reason)
	}
}

func (p *BedrockProvider) Chat(ctx context.Context, req ChatRequest) (*completion.Result, error) {
	client, err := p.cache.get(ctx, p.settings)
	if err != nil {
		return nil, fmt.Errorf("aws: %w", err)
	}

	out, err := client.Converse(ctx, mapConverseInput(req))
	if err != nil {
		return nil, fmt.Errorf("aws: converse failed: %w", err)
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, fmt.Errorf("aws: unexpected converse output %T", out.Output)
	}

	var text strings.Builder
	for _, block := range msg.Value.Content {
		if t, ok := block.(*types.ContentBlockMemberText); ok {
			text.WriteString(t.Value)
		}
	}

	result := &completion.Result{
		Choices: []completion.Choice{{
			Message:      completion.Message{Role: "assistant", Content: text.String()},
			FinishReason: converseFinishReason(out.StopReason),
		}},
		Usage: map[string]int{},
	}
	if u := out.Usage; u != nil {
		result.Usage["prompt_tokens"] = int(aws.ToInt32(u.InputTokens))
		result.Usage["completion_tokens"] = int(aws.ToInt32(u.OutputTokens))
		result.Usage["total_tokens"] = int(aws.ToInt32(u.TotalTokens))
	}
	return result, nil
}
