// Package llm unifies the supported text-generation backends behind one call
// contract with usage accounting and cost estimation. Provider failures never
// escape as errors: every call returns a Response whose Success flag carries
// the outcome.
package llm

import (
	"context"
	"time"
)

// Options configures a provider backend. Zero values fall back to the
// provider's defaults and environment variables.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Response is the uniform result of one provider call. A failed call has
// empty content and zero token counts; a successful call carries the
// provider-reported usage.
type Response struct {
	Content      string `json:"content"`
	TokensInput  int    `json:"tokens_input"`
	TokensOutput int    `json:"tokens_output"`
	Model        string `json:"model"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// failure builds the canonical failed Response shape.
func failure(model, message string) Response {
	return Response{Model: model, Success: false, Error: message}
}

// Provider wraps one externally hosted text-generation API.
type Provider interface {
	// Generate produces a completion for the prompt. Transport and provider
	// errors are converted into a failed Response, never returned as errors.
	Generate(ctx context.Context, prompt, systemPrompt string, maxTokens int, temperature float64) Response

	// IsAvailable reports whether credentials are configured. It does not
	// verify reachability or key validity.
	IsAvailable() bool

	// Model returns the model id the provider will call.
	Model() string
}
