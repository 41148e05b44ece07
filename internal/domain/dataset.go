package domain

import (
	"fmt"
	"time"
)

// Use-case identifiers for the four supported training-data generation tasks.
const (
	UseCaseClinicalSummary         = "clinical_summary"
	UseCaseDiagnosisPrediction     = "diagnosis_prediction"
	UseCaseMedicalQA               = "medical_qa"
	UseCaseTreatmentRecommendation = "treatment_recommendation"
)

// KnownUseCases lists the registered use-case identifiers in display order.
var KnownUseCases = []string{
	UseCaseClinicalSummary,
	UseCaseDiagnosisPrediction,
	UseCaseMedicalQA,
	UseCaseTreatmentRecommendation,
}

// Output format identifiers.
const (
	FormatAlpaca   = "alpaca"
	FormatShareGPT = "sharegpt"
	FormatOpenAI   = "openai"
	FormatChatML   = "chatml"
)

// KnownFormats lists the registered output format identifiers.
var KnownFormats = []string{FormatAlpaca, FormatShareGPT, FormatOpenAI, FormatChatML}

// Provider identifiers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderNumih     = "numih"
)

// KnownProviders lists the registered text-generation backends.
var KnownProviders = []string{ProviderNumih, ProviderAnthropic, ProviderOpenAI}

// DatasetConfig holds the generation parameters for one dataset build.
type DatasetConfig struct {
	UseCases            []string `json:"use_cases"`
	OutputFormat        string   `json:"output_format"`
	ExamplesPerPatient  int      `json:"examples_per_patient"`
	Provider            string   `json:"provider"`
	Model               string   `json:"model"`
	APIKey              string   `json:"api_key"`
	BaseURL             string   `json:"base_url,omitempty"`
	IncludeSystemPrompt bool     `json:"include_system_prompt"`
	Language            string   `json:"language"`
	Temperature         float64  `json:"temperature"`
	MaxOutputTokens     int      `json:"max_output_tokens"`
	VaryInstructions    bool     `json:"vary_instructions"`
}

// DefaultDatasetConfig returns a config with the same defaults the dashboard
// pre-selects.
func DefaultDatasetConfig() DatasetConfig {
	return DatasetConfig{
		OutputFormat:        FormatAlpaca,
		ExamplesPerPatient:  5,
		Provider:            ProviderAnthropic,
		Model:               "claude-3-haiku-20240307",
		IncludeSystemPrompt: true,
		Language:            "fr",
		Temperature:         0.7,
		MaxOutputTokens:     1500,
		VaryInstructions:    true,
	}
}

// Validate checks the configuration and returns a list of human-readable
// errors. Generation must not start while the list is non-empty.
func (c DatasetConfig) Validate() []string {
	var errs []string

	if len(c.UseCases) == 0 {
		errs = append(errs, "Au moins un cas d'usage doit être sélectionné")
	}
	for _, uc := range c.UseCases {
		if !contains(KnownUseCases, uc) {
			errs = append(errs, fmt.Sprintf("Cas d'usage '%s' inconnu", uc))
		}
	}
	if c.OutputFormat != "" && !contains(KnownFormats, c.OutputFormat) {
		errs = append(errs, fmt.Sprintf("Format de sortie '%s' inconnu", c.OutputFormat))
	}
	if c.Provider != "" && !contains(KnownProviders, c.Provider) {
		errs = append(errs, fmt.Sprintf("Provider LLM '%s' inconnu", c.Provider))
	}
	if c.ExamplesPerPatient < 1 {
		errs = append(errs, "Au moins 1 exemple par patient requis")
	}
	if c.APIKey == "" {
		errs = append(errs, "Clé API requise")
	}

	return errs
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// GeneratedExample is one produced training record. It is created exactly
// once per successful generation attempt and never mutated afterwards.
type GeneratedExample struct {
	UseCase        string            `json:"use_case"`
	Instruction    string            `json:"instruction"`
	InputContext   string            `json:"input_context"`
	Output         string            `json:"output"`
	PatientID      string            `json:"patient_id"`
	PatientName    string            `json:"patient_name"`
	TokensUsed     int               `json:"tokens_used"`
	GenerationTime float64           `json:"generation_time"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// errorLogCap bounds the number of retained error strings; failures past the
// cap are still counted but their messages are dropped.
const errorLogCap = 10

// DatasetStats accumulates counters during one build run.
type DatasetStats struct {
	TotalExamples      int            `json:"total_examples"`
	SuccessfulExamples int            `json:"successful_examples"`
	FailedExamples     int            `json:"failed_examples"`
	TotalTokensInput   int            `json:"total_tokens_input"`
	TotalTokensOutput  int            `json:"total_tokens_output"`
	TotalTime          float64        `json:"total_time"`
	ExamplesByUseCase  map[string]int `json:"examples_by_use_case"`
	Errors             []string       `json:"errors"`
}

// NewDatasetStats returns a zeroed stats accumulator.
func NewDatasetStats() DatasetStats {
	return DatasetStats{ExamplesByUseCase: make(map[string]int)}
}

// AddError appends an error message, silently dropping it once the cap is
// reached.
func (s *DatasetStats) AddError(msg string) {
	if len(s.Errors) < errorLogCap {
		s.Errors = append(s.Errors, msg)
	}
}

// RunStatistics is the read-only snapshot exposed after (or during) a run.
type RunStatistics struct {
	TotalExamples     int            `json:"total_examples"`
	Successful        int            `json:"successful"`
	Failed            int            `json:"failed"`
	SuccessRate       float64        `json:"success_rate"`
	TokensInput       int            `json:"tokens_input"`
	TokensOutput      int            `json:"tokens_output"`
	TokensTotal       int            `json:"tokens_total"`
	TimeSeconds       float64        `json:"time_seconds"`
	ExamplesPerSecond float64        `json:"examples_per_second"`
	ByUseCase         map[string]int `json:"by_use_case"`
	Errors            []string       `json:"errors"`
	EstimatedCost     float64        `json:"estimated_cost_usd"`
}

// Run is one persisted dataset build.
type Run struct {
	ID           string        `json:"id"`
	CreatedAt    time.Time     `json:"created_at"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	OutputFormat string        `json:"output_format"`
	UseCases     []string      `json:"use_cases"`
	Patients     int           `json:"patients"`
	Stats        RunStatistics `json:"stats"`
}
