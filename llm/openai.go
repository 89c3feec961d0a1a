package llm

import "context"

// openAIProvider implements Provider for the OpenAI API. The hosted API
// does not accept GBNF grammars, so output is unconstrained and relies on
// the response parser's fallbacks.
type openAIProvider struct {
	base openAICompatClient
}

// NewOpenAI creates a provider for OpenAI.
func NewOpenAI(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	return &openAIProvider{base: newOpenAICompatClient(cfg)}
}

func (p *openAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Grammar = ""
	return p.base.chat(ctx, req)
}
