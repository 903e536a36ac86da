package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrValidationExhausted is returned when the model cannot produce output
// matching the schema within the configured retry budget.
var ErrValidationExhausted = errors.New("llm: validation retries exhausted")

// Client formats prompts, invokes the provider, and enforces output schemas.
type Client struct {
	provider   Provider
	model      string
	maxRetries int
}

// NewClient creates a schema-validating client. maxRetries is the number of
// correction attempts after the first response fails validation.
func NewClient(provider Provider, model string, maxRetries int) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{provider: provider, model: model, maxRetries: maxRetries}
}

// Call formats the named template, invokes the model, and decodes the reply
// into T. Parse and validation failures trigger a correction prompt carrying
// the error, the schema description, and the start of the failed response.
// Transport errors are returned as-is: retrying those is the provider's job.
func Call[T any, PT interface {
	*T
	Output
}](ctx context.Context, c *Client, templateName string, vars map[string]string) (*T, error) {
	tmpl, err := LookupTemplate(templateName)
	if err != nil {
		return nil, err
	}
	prompt, err := tmpl.Format(vars)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		raw, err := c.provider.Invoke(ctx, prompt, c.model)
		if err != nil {
			return nil, fmt.Errorf("invoking %s: %w", templateName, err)
		}

		out := PT(new(T))
		parseErr := decodeInto(raw, out)
		if parseErr == nil {
			parseErr = out.Validate()
		}
		if parseErr == nil {
			return (*T)(out), nil
		}
		lastErr = parseErr

		if attempt == c.maxRetries {
			break
		}

		slog.Warn("llm: response failed validation, retrying with correction",
			"template", templateName,
			"attempt", attempt+1,
			"error", parseErr,
		)
		correction, err := LookupTemplate("correction")
		if err != nil {
			return nil, err
		}
		prompt, err = correction.Format(map[string]string{
			"error_message":      parseErr.Error(),
			"schema_description": out.SchemaDescription(),
			"previous_response":  truncate(raw, 1000),
		})
		if err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s: %v", ErrValidationExhausted, templateName, lastErr)
}

func decodeInto(raw string, out Output) error {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("decoding JSON: %w", err)
	}
	return nil
}

// ExtractJSON pulls a JSON object out of model text. Tries the raw text,
// then a ```json fence, then any fence, then the outermost brace span.
func ExtractJSON(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	for _, fence := range []string{"```json", "```"} {
		if i := strings.Index(trimmed, fence); i >= 0 {
			rest := trimmed[i+len(fence):]
			if j := strings.Index(rest, "```"); j >= 0 {
				candidate := strings.TrimSpace(rest[:j])
				if json.Valid([]byte(candidate)) {
					return candidate, nil
				}
			}
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no JSON object found in response")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
