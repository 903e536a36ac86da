package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// anthropicProvider calls the Anthropic messages API.
type anthropicProvider struct {
	cfg    Config
	client *http.Client
}

// NewAnthropic creates a provider backed by the Anthropic messages API.
func NewAnthropic(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	return &anthropicProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type anthropicRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (p *anthropicProvider) Invoke(ctx context.Context, prompt, model string) (string, error) {
	if model == "" {
		model = p.cfg.Model
	}

	body := anthropicRequest{
		Model:     model,
		MaxTokens: 4096,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("anthropic-version", "2023-06-01")
	if p.cfg.APIKey != "" {
		header.Set("x-api-key", p.cfg.APIKey)
	}

	respBody, err := doPost(ctx, p.client, p.cfg.BaseURL+"/v1/messages", header, body)
	if err != nil {
		return "", err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decoding messages response: %w", err)
	}
	for _, c := range resp.Content {
		if c.Type == "text" {
			return c.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in response")
}
