package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider is the interface for text generation.
type Provider interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// Grammar is a GBNF grammar constraining the output. It is sent as the
	// top-level "grammar" field understood by llama.cpp servers; servers
	// without grammar support ignore it.
	Grammar string `json:"grammar,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System builds a system message.
func System(content string) Message { return Message{Role: "system", Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: "user", Content: content} }

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider" env:"TXT2KGX_LLM_PROVIDER"` // llamacpp, ollama, lmstudio, openai, custom
	Model    string `json:"model" yaml:"model" env:"MODEL_NAME"`
	BaseURL  string `json:"base_url" yaml:"base_url" env:"OAI_COMPATIBLE_BASE_URL"`
	APIKey   string `json:"api_key" yaml:"api_key" env:"OAI_COMPATIBLE_API_KEY"`
	// MaxRetries is the number of extra attempts on transient failures.
	MaxRetries int `json:"max_retries" yaml:"max_retries" env:"TXT2KGX_LLM_MAX_RETRIES"`
	// Timeout bounds a single HTTP attempt. Zero uses DefaultTimeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" env:"TXT2KGX_LLM_TIMEOUT"`
}

// DefaultTimeout is generous because reasoning models on local servers may
// think for minutes before the payload starts.
const DefaultTimeout = 10 * time.Minute

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "llamacpp":
		return NewLlamaCpp(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	case "lmstudio":
		return NewLMStudio(cfg), nil
	case "openai":
		return NewOpenAI(cfg), nil
	case "custom":
		return NewOpenAICompat(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
