package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fhir-dataset-forge/internal/domain"
)

// ProviderLabels maps provider identifiers to display labels.
var ProviderLabels = map[string]string{
	domain.ProviderNumih:     "Numih (Multi-modèles)",
	domain.ProviderAnthropic: "Anthropic (Claude)",
	domain.ProviderOpenAI:    "OpenAI (GPT)",
}

// ModelsForProvider returns the selectable model ids for a provider, or an
// empty slice for an unknown one.
func ModelsForProvider(provider string) []string {
	switch strings.ToLower(provider) {
	case domain.ProviderNumih:
		return append([]string(nil), NumihModels...)
	case domain.ProviderAnthropic:
		return append([]string(nil), AnthropicModels...)
	case domain.ProviderOpenAI:
		return append([]string(nil), OpenAIModels...)
	}
	return nil
}

// Client routes generation requests to one configured provider backend,
// optionally through a response cache and a resilience guard.
type Client struct {
	provider string
	backend  Provider
	cache    *ResponseCache
	logger   *logrus.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithResponseCache attaches a Redis response cache to the client.
func WithResponseCache(cache *ResponseCache) ClientOption {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithGuard wraps the backend with a rate limiter and circuit breaker.
func WithGuard(config GuardConfig) ClientOption {
	return func(c *Client) {
		c.backend = NewGuardedProvider(c.backend, config, c.logger)
	}
}

// NewClient creates a unified client for the named provider.
func NewClient(provider string, opts Options, logger *logrus.Logger, clientOpts ...ClientOption) (*Client, error) {
	providerLower := strings.ToLower(provider)

	var backend Provider
	switch providerLower {
	case domain.ProviderNumih:
		backend = NewNumihProvider(opts)
	case domain.ProviderAnthropic:
		backend = NewAnthropicProvider(opts)
	case domain.ProviderOpenAI:
		backend = NewOpenAIProvider(opts)
	default:
		return nil, &domain.UnknownProviderError{
			Provider:  provider,
			Available: domain.KnownProviders,
		}
	}

	if logger == nil {
		logger = logrus.New()
	}

	c := &Client{
		provider: providerLower,
		backend:  backend,
		logger:   logger,
	}
	for _, opt := range clientOpts {
		opt(c)
	}
	return c, nil
}

// Provider returns the configured provider identifier.
func (c *Client) Provider() string {
	return c.provider
}

// Model returns the model id of the configured backend.
func (c *Client) Model() string {
	return c.backend.Model()
}

// IsAvailable reports whether the backend has credentials configured.
func (c *Client) IsAvailable() bool {
	return c.backend.IsAvailable()
}

// Generate produces a completion, serving it from the cache when one is
// attached and the same request was already answered.
func (c *Client) Generate(ctx context.Context, prompt, systemPrompt string, maxTokens int, temperature float64) Response {
	if c.cache != nil {
		cached, hit, err := c.cache.Get(ctx, c.provider, c.Model(), prompt, systemPrompt, maxTokens, temperature)
		if err != nil {
			c.logger.WithError(err).Warn("Response cache lookup failed")
		} else if hit {
			c.logger.WithFields(logrus.Fields{
				"provider": c.provider,
				"model":    c.Model(),
			}).Debug("Response served from cache")
			return cached
		}
	}

	resp := c.backend.Generate(ctx, prompt, systemPrompt, maxTokens, temperature)

	if c.cache != nil && resp.Success {
		if err := c.cache.Set(ctx, c.provider, c.Model(), prompt, systemPrompt, maxTokens, temperature, resp, 0); err != nil {
			c.logger.WithError(err).Warn("Failed to cache response")
		}
	}

	return resp
}

// GenerateInstructionVariation rephrases a base instruction in natural
// French while preserving its meaning.
func (c *Client) GenerateInstructionVariation(ctx context.Context, baseInstruction, contextHint string) Response {
	hint := ""
	if contextHint != "" {
		hint = fmt.Sprintf("Contexte: %s", contextHint)
	}

	prompt := fmt.Sprintf(`Reformule cette instruction médicale de manière naturelle et légèrement différente.
Garde le même sens mais varie la formulation.

Instruction originale: %s
%s

Réponds UNIQUEMENT avec l'instruction reformulée, sans explication.`, baseInstruction, hint)

	return c.Generate(ctx, prompt, "Tu es un expert en rédaction médicale française.", 200, 0.8)
}

// GenerateOutput produces the model answer for a training example by filling
// the template's {instruction} and {context} placeholders.
func (c *Client) GenerateOutput(ctx context.Context, instruction, patientContext, templatePrompt, systemPrompt string) Response {
	prompt := strings.NewReplacer(
		"{instruction}", instruction,
		"{context}", patientContext,
	).Replace(templatePrompt)

	return c.Generate(ctx, prompt, systemPrompt, 1500, 0.7)
}
