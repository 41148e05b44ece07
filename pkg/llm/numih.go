package llm

import "os"

const (
	numihBaseURL = "https://apigpt.mynumih.fr/v1"
	numihEnvKey  = "NUMIH_API_KEY"
)

// NumihDefaultModel is the model served by the NumiH France endpoint.
const NumihDefaultModel = "jpacifico/Chocolatine-2-14B-Instruct-v2.0.3"

// NumihModels lists the models available on the NumiH endpoint.
var NumihModels = []string{NumihDefaultModel}

// NewNumihProvider creates a provider for the NumiH France hosted endpoint,
// an OpenAI-compatible API serving French medical models. An empty apiKey
// falls back to the NUMIH_API_KEY environment variable.
func NewNumihProvider(opts Options) *OpenAIProvider {
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv(numihEnvKey)
	}
	if opts.Model == "" {
		opts.Model = NumihDefaultModel
	}
	if opts.BaseURL == "" {
		opts.BaseURL = numihBaseURL
	}
	return NewOpenAIProvider(opts)
}
