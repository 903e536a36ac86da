package llm

import (
	"context"
	"fmt"
)

// Provider is the interface for model invocation. Implementations return the
// raw text content of the model's reply; JSON extraction and schema
// validation happen in the client layer.
type Provider interface {
	// Invoke sends a single-turn prompt and returns the raw model output.
	Invoke(ctx context.Context, prompt, model string) (string, error)
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // openai, anthropic, stub
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// NewProvider creates an LLM provider from configuration. An empty provider
// name selects the deterministic stub so the pipeline works offline.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	case "stub", "":
		return NewStub(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
