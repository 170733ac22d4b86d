package upstream

import (
	"context"
	"fmt"
	"net/http"
)

// Authenticator handles authentication for a provider.
// Header based vendors use SimpleAPIKeyAuth; SDK based ones (Bedrock)
// authenticate inside the SDK client instead.
type Authenticator interface {
	Authenticate(ctx context.Context) (AuthContext, error)
}

// AuthContext applies authentication to an outgoing request.
type AuthContext interface {
	ApplyToRequest(ctx context.Context, req any) error
}

// SimpleAPIKeyAuth puts an API key into a single request header.
type SimpleAPIKeyAuth struct {
	apiKey     string
	headerName string // e.g., "Authorization", "api-key", "x-api-key"
	prefix     string // e.g., "Bearer "
}

// NewSimpleAPIKeyAuth creates a header authenticator. An empty headerName
// means "Authorization: Bearer <key>".
func NewSimpleAPIKeyAuth(apiKey, headerName, prefix string) *SimpleAPIKeyAuth {
	if headerName == "" {
		headerName = "Authorization"
		prefix = "Bearer "
	}

	return &SimpleAPIKeyAuth{
		apiKey:     apiKey,
		headerName: headerName,
		prefix:     prefix,
	}
}

// NewBearerAuth is the OpenAI style "Authorization: Bearer <key>".
func NewBearerAuth(apiKey string) *SimpleAPIKeyAuth {
	return NewSimpleAPIKeyAuth(apiKey, "", "")
}

func (a *SimpleAPIKeyAuth) Authenticate(ctx context.Context) (AuthContext, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	return &SimpleAPIKeyAuthContext{
		apiKey:     a.apiKey,
		headerName: a.headerName,
		prefix:     a.prefix,
	}, nil
}

// SimpleAPIKeyAuthContext holds the auth context for API key authentication
type SimpleAPIKeyAuthContext struct {
	apiKey     string
	headerName string
	prefix     string
}

// ApplyToRequest adds the API key to the HTTP request
func (c *SimpleAPIKeyAuthContext) ApplyToRequest(ctx context.Context, req any) error {
	httpReq, ok := req.(*http.Request)
	if !ok {
		return fmt.Errorf("expected *http.Request, got %T", req)
	}

	httpReq.Header.Set(c.headerName, c.prefix+c.apiKey)
	return nil
}

// applyAuth authenticates and decorates req in one step.
func applyAuth(ctx context.Context, auth Authenticator, req *http.Request) error {
	authCtx, err := auth.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if err := authCtx.ApplyToRequest(ctx, req); err != nil {
		return fmt.Errorf("failed to apply auth: %w", err)
	}
	return nil
}
