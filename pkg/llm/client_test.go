package llm

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhir-dataset-forge/internal/domain"
)

func TestNewClient_KnownProviders(t *testing.T) {
	for _, provider := range domain.KnownProviders {
		client, err := NewClient(provider, Options{APIKey: "k"}, nil)
		require.NoError(t, err, provider)
		assert.Equal(t, provider, client.Provider())
		assert.True(t, client.IsAvailable())
		assert.NotEmpty(t, client.Model())
	}
}

func TestNewClient_CaseInsensitive(t *testing.T) {
	client, err := NewClient("Anthropic", Options{APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderAnthropic, client.Provider())
	assert.Equal(t, AnthropicDefaultModel, client.Model())
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient("mistral", Options{APIKey: "k"}, nil)
	require.Error(t, err)

	var unknown *domain.UnknownProviderError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "mistral", unknown.Provider)
	assert.Equal(t, domain.KnownProviders, unknown.Available)
}

func TestModelsForProvider(t *testing.T) {
	assert.Equal(t, AnthropicModels, ModelsForProvider("anthropic"))
	assert.Equal(t, OpenAIModels, ModelsForProvider("openai"))
	assert.Equal(t, NumihModels, ModelsForProvider("numih"))
	assert.Equal(t, OpenAIModels, ModelsForProvider("OpenAI"))
	assert.Nil(t, ModelsForProvider("mistral"))
}

func TestModelsForProvider_ReturnsCopy(t *testing.T) {
	models := ModelsForProvider("openai")
	models[0] = "tampered"
	assert.Equal(t, OpenAIDefaultModel, OpenAIModels[0])
}

func TestProviderLabels(t *testing.T) {
	assert.Equal(t, "Anthropic (Claude)", ProviderLabels[domain.ProviderAnthropic])
	assert.Equal(t, "OpenAI (GPT)", ProviderLabels[domain.ProviderOpenAI])
	assert.Equal(t, "Numih (Multi-modèles)", ProviderLabels[domain.ProviderNumih])
}

func TestGenerate_MissingAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	client, err := NewClient("anthropic", Options{}, logrus.New())
	require.NoError(t, err)
	assert.False(t, client.IsAvailable())

	resp := client.Generate(context.Background(), "prompt", "", 100, 0.7)
	assert.False(t, resp.Success)
	assert.Equal(t, "API key Anthropic non configurée", resp.Error)
}
