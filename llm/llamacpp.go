package llm

import "context"

// llamaCppProvider talks to a llama.cpp server, the reference implementation
// of grammar-constrained sampling.
type llamaCppProvider struct {
	base openAICompatClient
}

// NewLlamaCpp creates a provider for a llama.cpp server.
func NewLlamaCpp(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	return &llamaCppProvider{base: newOpenAICompatClient(cfg)}
}

func (p *llamaCppProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return p.base.chat(ctx, req)
}
