package llm

import (
	"context"
	"fmt"
	"sync"
)

// Provider names accepted in models.ModelConfig.Provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// MultiProviderClient implements Client by dispatching to the appropriate
// provider based on the request's ModelConfig.Provider field. Provider
// clients are created on first use.
type MultiProviderClient struct {
	mu        sync.Mutex
	providers map[string]Client
	factories map[string]func() Client
}

// NewMultiProviderClient creates a client that can dispatch to every
// supported provider.
func NewMultiProviderClient() *MultiProviderClient {
	return &MultiProviderClient{
		providers: map[string]Client{},
		factories: map[string]func() Client{
			ProviderAnthropic: func() Client { return NewAnthropicClient() },
			ProviderOpenAI:    func() Client { return NewOpenAIClient() },
			ProviderGemini:    func() Client { return NewGeminiClient() },
		},
	}
}

// WithProvider registers (or replaces) the client used for a provider name.
func (c *MultiProviderClient) WithProvider(name string, client Client) *MultiProviderClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = client
	return c
}

// Stream dispatches to the provider named in req.Model.Provider.
func (c *MultiProviderClient) Stream(ctx context.Context, req Request, onEvent func(StreamEvent)) (Response, error) {
	client, err := c.provider(req.Model.Provider)
	if err != nil {
		return Response{}, err
	}
	return client.Stream(ctx, req, onEvent)
}

// Complete dispatches to the provider named in req.Model.Provider.
func (c *MultiProviderClient) Complete(ctx context.Context, req Request) (Response, error) {
	client, err := c.provider(req.Model.Provider)
	if err != nil {
		return Response{}, err
	}
	return client.Complete(ctx, req)
}

// Close releases provider clients that hold resources.
func (c *MultiProviderClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var first error
	for _, p := range c.providers {
		if closer, ok := p.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (c *MultiProviderClient) provider(name string) (Client, error) {
	// Default to Anthropic if provider not specified.
	if name == "" {
		name = ProviderAnthropic
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.providers[name]; ok {
		return p, nil
	}
	factory, ok := c.factories[name]
	if !ok {
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: anthropic, openai, gemini)", name)
	}
	p := factory()
	c.providers[name] = p
	return p, nil
}

// NewClient creates the client for a single provider.
func NewClient(provider string) (Client, error) {
	switch provider {
	case ProviderAnthropic, "":
		return NewAnthropicClient(), nil
	case ProviderOpenAI:
		return NewOpenAIClient(), nil
	case ProviderGemini:
		return NewGeminiClient(), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: anthropic, openai, gemini)", provider)
	}
}
