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
	openAIBaseURL = "https://api.openai.com/v1"
	openAIEnvKey  = "OPENAI_API_KEY"
)

// OpenAIDefaultModel is used when no model id is configured.
const OpenAIDefaultModel = "gpt-4o-mini"

// OpenAIModels lists the selectable OpenAI model ids.
var OpenAIModels = []string{
	"gpt-4o-mini",
	"gpt-4o",
	"gpt-4-turbo",
	"gpt-3.5-turbo",
}

// OpenAIProvider calls the OpenAI chat completions API. With a custom base
// URL it also serves any OpenAI-compatible self-hosted endpoint.
type OpenAIProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIProvider creates an OpenAI provider. An empty apiKey falls back to
// the OPENAI_API_KEY environment variable; an empty base URL uses the
// official endpoint.
func NewOpenAIProvider(opts Options) *OpenAIProvider {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(openAIEnvKey)
	}

	model := opts.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// IsAvailable reports whether an API key is configured.
func (p *OpenAIProvider) IsAvailable() bool {
	return p.apiKey != ""
}

// Model returns the configured model id.
func (p *OpenAIProvider) Model() string {
	return p.model
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Generate calls the chat completions API and converts any failure into a
// failed Response.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt, systemPrompt string, maxTokens int, temperature float64) Response {
	if !p.IsAvailable() {
		return failure(p.model, "API key OpenAI non configurée")
	}

	var messages []openAIMessage
	if systemPrompt != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: prompt})

	reqBody := openAIRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return failure(p.model, fmt.Sprintf("failed to marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return failure(p.model, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return failure(p.model, fmt.Sprintf("openai API error: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(p.model, fmt.Sprintf("failed to read response: %v", err))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return failure(p.model, fmt.Sprintf("failed to parse response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("openai API returned status %d", resp.StatusCode)
		if parsed.Error != nil {
			msg = fmt.Sprintf("%s: %s", msg, parsed.Error.Message)
		}
		return failure(p.model, msg)
	}

	if len(parsed.Choices) == 0 {
		return failure(p.model, "empty response from openai")
	}

	return Response{
		Content:      parsed.Choices[0].Message.Content,
		TokensInput:  parsed.Usage.PromptTokens,
		TokensOutput: parsed.Usage.CompletionTokens,
		Model:        p.model,
		Success:      true,
	}
}
