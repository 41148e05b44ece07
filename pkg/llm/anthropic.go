package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"
	anthropicEnvKey     = "ANTHROPIC_API_KEY"
)

// AnthropicDefaultModel is used when no model id is configured.
const AnthropicDefaultModel = "claude-3-haiku-20240307"

// AnthropicModels lists the selectable Anthropic model ids.
var AnthropicModels = []string{
	"claude-3-haiku-20240307",
	"claude-3-sonnet-20240229",
	"claude-3-5-sonnet-20241022",
	"claude-3-opus-20240229",
}

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropicProvider creates an Anthropic provider. An empty apiKey falls
// back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicProvider(opts Options) *AnthropicProvider {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(anthropicEnvKey)
	}

	model := opts.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &AnthropicProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    anthropicBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// IsAvailable reports whether an API key is configured.
func (p *AnthropicProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// Model returns the configured model id.
func (p *AnthropicProvider) Model() string {
	return p.model
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate calls the Messages API and converts any failure into a failed
// Response.
func (p *AnthropicProvider) Generate(ctx context.Context, prompt, systemPrompt string, maxTokens int, temperature float64) Response {
	if !p.IsAvailable() {
		return failure(p.model, "API key Anthropic non configurée")
	}

	reqBody := anthropicRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      systemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return failure(p.model, fmt.Sprintf("failed to marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return failure(p.model, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return failure(p.model, fmt.Sprintf("anthropic API error: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(p.model, fmt.Sprintf("failed to read response: %v", err))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return failure(p.model, fmt.Sprintf("failed to parse response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("anthropic API returned status %d", resp.StatusCode)
		if parsed.Error != nil {
			msg = fmt.Sprintf("%s: %s", msg, parsed.Error.Message)
		}
		return failure(p.model, msg)
	}

	if len(parsed.Content) == 0 {
		return failure(p.model, "empty response from anthropic")
	}

	return Response{
		Content:      parsed.Content[0].Text,
		TokensInput:  parsed.Usage.InputTokens,
		TokensOutput: parsed.Usage.OutputTokens,
		Model:        p.model,
		Success:      true,
	}
}
