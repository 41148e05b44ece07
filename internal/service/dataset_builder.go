package service

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fhir-dataset-forge/internal/domain"
	"github.com/fhir-dataset-forge/internal/export"
	"github.com/fhir-dataset-forge/internal/template"
	"github.com/fhir-dataset-forge/pkg/fhir"
	"github.com/fhir-dataset-forge/pkg/llm"
)

// Generator is the slice of the LLM client the builder depends on.
type Generator interface {
	GenerateInstructionVariation(ctx context.Context, baseInstruction, contextHint string) llm.Response
	GenerateOutput(ctx context.Context, instruction, patientContext, templatePrompt, systemPrompt string) llm.Response
	Provider() string
	Model() string
}

// ProgressFunc receives build progress: a French status message, a fraction
// in [0,1], and the example just produced (nil between examples).
type ProgressFunc func(message string, progress float64, current map[string]interface{})

// DatasetBuilder orchestrates one dataset generation run: it renders patient
// contexts, cycles use cases fairly across examples, calls the LLM and
// accumulates statistics. A builder is not safe for concurrent use; create
// one per run.
type DatasetBuilder struct {
	config         domain.DatasetConfig
	contextBuilder *ContextBuilder
	contextCache   *ContextCache
	formatter      export.Formatter
	client         Generator
	logger         *logrus.Logger
	rng            *rand.Rand

	stats    domain.DatasetStats
	examples []domain.GeneratedExample
}

// BuilderOption customizes a DatasetBuilder.
type BuilderOption func(*DatasetBuilder)

// WithContextCache reuses rendered patient contexts across runs.
func WithContextCache(cache *ContextCache) BuilderOption {
	return func(b *DatasetBuilder) {
		b.contextCache = cache
	}
}

// WithRand fixes the random source, making use-case cycling and instruction
// picks reproducible.
func WithRand(rng *rand.Rand) BuilderOption {
	return func(b *DatasetBuilder) {
		b.rng = rng
	}
}

// WithContextBuilder replaces the default context builder.
func WithContextBuilder(cb *ContextBuilder) BuilderOption {
	return func(b *DatasetBuilder) {
		b.contextBuilder = cb
	}
}

// NewDatasetBuilder creates a builder for the given configuration. The
// output format must name a registered formatter.
func NewDatasetBuilder(config domain.DatasetConfig, client Generator, logger *logrus.Logger, opts ...BuilderOption) (*DatasetBuilder, error) {
	formatter, err := export.New(config.OutputFormat)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = logrus.New()
	}

	b := &DatasetBuilder{
		config:         config,
		contextBuilder: NewContextBuilder(0, 0),
		formatter:      formatter,
		client:         client,
		logger:         logger,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		stats:          domain.NewDatasetStats(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// BuildDataset generates examples for every patient bundle. Validation
// failures abort before any provider call; afterwards each failed example is
// recorded and generation continues. Cancellation is honored between
// example slots and returns the examples produced so far.
func (b *DatasetBuilder) BuildDataset(ctx context.Context, bundles []*fhir.Bundle, progress ProgressFunc) ([]domain.GeneratedExample, error) {
	if errs := b.config.Validate(); len(errs) > 0 {
		return nil, domain.NewPipelineError(domain.ErrValidation,
			"configuration invalide", strings.Join(errs, "; "))
	}

	b.examples = nil
	b.stats = domain.NewDatasetStats()
	start := time.Now()

	totalSteps := len(bundles) * b.config.ExamplesPerPatient
	currentStep := 0

	cycle := newUseCaseCycle(b.config.UseCases, b.rng)

	b.logger.WithFields(logrus.Fields{
		"patients":             len(bundles),
		"examples_per_patient": b.config.ExamplesPerPatient,
		"use_cases":            b.config.UseCases,
		"provider":             b.client.Provider(),
		"model":                b.client.Model(),
	}).Info("Starting dataset generation")

	for patientIdx, bundle := range bundles {
		patientID, patientName := extractPatientInfo(bundle)
		if patientID == "" {
			patientID = fmt.Sprintf("patient_%d", patientIdx)
		}

		fullContext, compactContext := b.buildContexts(patientID, bundle)

		if progress != nil {
			progress(
				fmt.Sprintf("Patient %d/%d: %s", patientIdx+1, len(bundles), patientName),
				float64(currentStep)/float64(totalSteps),
				nil,
			)
		}

		for i := 0; i < b.config.ExamplesPerPatient; i++ {
			if err := ctx.Err(); err != nil {
				b.stats.TotalTime = time.Since(start).Seconds()
				return b.examples, err
			}

			currentStep++
			useCase := cycle.next()

			example := b.generateExample(ctx, useCase, fullContext, compactContext, patientID, patientName)
			if example != nil {
				b.examples = append(b.examples, *example)
				b.stats.SuccessfulExamples++
				b.stats.ExamplesByUseCase[useCase]++

				if progress != nil {
					progress(
						fmt.Sprintf("Exemple %d/%d: %s", currentStep, totalSteps, useCase),
						float64(currentStep)/float64(totalSteps),
						map[string]interface{}{
							"use_case":       useCase,
							"instruction":    preview(example.Instruction, 100),
							"output_preview": preview(example.Output, 200),
						},
					)
				}
			} else {
				b.stats.FailedExamples++
			}

			b.stats.TotalExamples++
		}
	}

	b.stats.TotalTime = time.Since(start).Seconds()

	if progress != nil {
		progress("Génération terminée!", 1.0, nil)
	}

	b.logger.WithFields(logrus.Fields{
		"total":      b.stats.TotalExamples,
		"successful": b.stats.SuccessfulExamples,
		"failed":     b.stats.FailedExamples,
		"duration":   b.stats.TotalTime,
	}).Info("Dataset generation finished")

	return b.examples, nil
}

// buildContexts renders (or recalls) the two context variants for a patient.
func (b *DatasetBuilder) buildContexts(patientID string, bundle *fhir.Bundle) (string, string) {
	if b.contextCache != nil {
		if full, compact, ok := b.contextCache.Get(patientID); ok {
			return full, compact
		}
	}

	full := b.contextBuilder.BuildFullContext(bundle)
	compact := b.contextBuilder.BuildCompactContext(bundle)

	if b.contextCache != nil {
		b.contextCache.Put(patientID, full, compact)
	}
	return full, compact
}

// generateExample produces one training example, or nil on failure. Failures
// are recorded in the run statistics and never abort the run.
func (b *DatasetBuilder) generateExample(ctx context.Context, useCase, fullContext, compactContext, patientID, patientName string) *domain.GeneratedExample {
	tmpl, err := template.Get(useCase)
	if err != nil {
		b.stats.AddError(fmt.Sprintf("Patient %s: %v", patientID, err))
		return nil
	}

	start := time.Now()

	// Q&A examples use the compact context to keep prompts short.
	patientContext := fullContext
	if useCase == domain.UseCaseMedicalQA {
		patientContext = compactContext
	}

	instruction := tmpl.RandomInstruction(b.rng)

	if b.config.VaryInstructions && b.rng.Float64() > 0.5 {
		variation := b.client.GenerateInstructionVariation(ctx, instruction, useCase)
		if variation.Success && variation.Content != "" {
			instruction = strings.TrimSpace(variation.Content)
			b.stats.TotalTokensInput += variation.TokensInput
			b.stats.TotalTokensOutput += variation.TokensOutput
		}
	}

	resp := b.client.GenerateOutput(ctx, instruction, patientContext, tmpl.LLMPromptTemplate, tmpl.SystemPrompt)
	if !resp.Success {
		b.stats.AddError(fmt.Sprintf("LLM error for %s: %s", patientID, resp.Error))
		b.logger.WithFields(logrus.Fields{
			"patient_id": patientID,
			"use_case":   useCase,
			"error":      resp.Error,
		}).Warn("Example generation failed")
		return nil
	}

	b.stats.TotalTokensInput += resp.TokensInput
	b.stats.TotalTokensOutput += resp.TokensOutput

	return &domain.GeneratedExample{
		UseCase:        useCase,
		Instruction:    instruction,
		InputContext:   patientContext,
		Output:         resp.Content,
		PatientID:      patientID,
		PatientName:    patientName,
		TokensUsed:     resp.TokensInput + resp.TokensOutput,
		GenerationTime: time.Since(start).Seconds(),
		Metadata: map[string]string{
			"model":     resp.Model,
			"template":  useCase,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}
}

// Examples returns the examples produced by the last run.
func (b *DatasetBuilder) Examples() []domain.GeneratedExample {
	return b.examples
}

// Statistics returns a snapshot of the last run's counters.
func (b *DatasetBuilder) Statistics() domain.RunStatistics {
	stats := domain.RunStatistics{
		TotalExamples: b.stats.TotalExamples,
		Successful:    b.stats.SuccessfulExamples,
		Failed:        b.stats.FailedExamples,
		TokensInput:   b.stats.TotalTokensInput,
		TokensOutput:  b.stats.TotalTokensOutput,
		TokensTotal:   b.stats.TotalTokensInput + b.stats.TotalTokensOutput,
		TimeSeconds:   b.stats.TotalTime,
		ByUseCase:     b.stats.ExamplesByUseCase,
		Errors:        b.stats.Errors,
	}

	if b.stats.TotalExamples > 0 {
		stats.SuccessRate = float64(b.stats.SuccessfulExamples) / float64(b.stats.TotalExamples) * 100
	}
	if b.stats.TotalTime > 0 {
		stats.ExamplesPerSecond = float64(b.stats.SuccessfulExamples) / b.stats.TotalTime
	}
	// Cost is derived from the tokens the provider actually reported, not
	// from the pre-run per-example averages.
	stats.EstimatedCost = llm.EstimateCost(
		b.client.Provider(),
		b.client.Model(),
		b.stats.TotalTokensInput,
		b.stats.TotalTokensOutput,
	)

	return stats
}

// FormatExamples renders examples in the configured output format. A nil
// slice formats the last run's examples.
func (b *DatasetBuilder) FormatExamples(examples []domain.GeneratedExample) ([]export.Record, error) {
	if examples == nil {
		examples = b.examples
	}

	records := make([]export.Record, 0, len(examples))
	for _, example := range examples {
		tmpl, err := template.Get(example.UseCase)
		if err != nil {
			return nil, err
		}

		systemPrompt := ""
		if b.config.IncludeSystemPrompt {
			systemPrompt = tmpl.SystemPrompt
		}

		records = append(records, b.formatter.Format(
			example.Instruction, example.InputContext, example.Output, systemPrompt))
	}
	return records, nil
}

// ExportJSONL writes the formatted dataset to filepath in JSONL, creating
// parent directories as needed. It returns the written path.
func (b *DatasetBuilder) ExportJSONL(path string, examples []domain.GeneratedExample) (string, error) {
	records, err := b.FormatExamples(examples)
	if err != nil {
		return "", err
	}

	content, err := b.formatter.FormatBatch(records)
	if err != nil {
		return "", err
	}

	if err := writeFile(path, content); err != nil {
		return "", err
	}
	return path, nil
}

// ExportJSON writes the formatted dataset to filepath as a pretty-printed
// JSON array. It returns the written path.
func (b *DatasetBuilder) ExportJSON(path string, examples []domain.GeneratedExample) (string, error) {
	records, err := b.FormatExamples(examples)
	if err != nil {
		return "", err
	}

	content, err := export.EncodeJSON(records)
	if err != nil {
		return "", err
	}

	if err := writeFile(path, content); err != nil {
		return "", err
	}
	return path, nil
}

// Preview formats the first n generated examples.
func (b *DatasetBuilder) Preview(n int) ([]export.Record, error) {
	if n > len(b.examples) {
		n = len(b.examples)
	}
	return b.FormatExamples(b.examples[:n])
}

func writeFile(path, content string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.NewPipelineError(domain.ErrEnvironment,
				"failed to create output directory", err.Error())
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return domain.NewPipelineError(domain.ErrEnvironment,
			"failed to write dataset file", err.Error())
	}
	return nil
}

// useCaseCycle deals use cases in shuffled rounds so every selected use case
// appears equally often over a run.
type useCaseCycle struct {
	useCases []string
	queue    []string
	rng      *rand.Rand
}

func newUseCaseCycle(useCases []string, rng *rand.Rand) *useCaseCycle {
	return &useCaseCycle{useCases: useCases, rng: rng}
}

func (c *useCaseCycle) next() string {
	if len(c.queue) == 0 {
		c.queue = append([]string(nil), c.useCases...)
		c.rng.Shuffle(len(c.queue), func(i, j int) {
			c.queue[i], c.queue[j] = c.queue[j], c.queue[i]
		})
	}
	uc := c.queue[0]
	c.queue = c.queue[1:]
	return uc
}

// extractPatientInfo pulls the patient id and display name from a bundle.
func extractPatientInfo(bundle *fhir.Bundle) (string, string) {
	set := fhir.GroupByType(bundle)
	p := set.Patient()
	if p == nil {
		return "", "Patient"
	}

	name := ""
	if len(p.Name) > 0 {
		name = p.Name[0].Full()
	}
	if name == "" {
		name = "Patient"
	}
	return p.ID, name
}

// preview truncates s to max runes, marking the cut with an ellipsis.
func preview(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// GenerationEstimate projects the resources needed for a run before it
// starts.
type GenerationEstimate struct {
	TotalExamples         int     `json:"total_examples"`
	UseCases              int     `json:"use_cases"`
	EstimatedInputTokens  int     `json:"estimated_input_tokens"`
	EstimatedOutputTokens int     `json:"estimated_output_tokens"`
	EstimatedTotalTokens  int     `json:"estimated_total_tokens"`
	EstimatedCostUSD      float64 `json:"estimated_cost_usd"`
	EstimatedTimeSeconds  float64 `json:"estimated_time_seconds"`
	EstimatedTimeDisplay  string  `json:"estimated_time_display"`
}

// secondsPerExample is the observed average wall time of one generation.
const secondsPerExample = 2.5

// EstimateGeneration projects token usage, cost and duration for a planned
// run.
func EstimateGeneration(numPatients, examplesPerPatient int, useCases []string, provider, model string) GenerationEstimate {
	totalExamples := numPatients * examplesPerPatient

	cost := llm.EstimateDatasetCost(provider, model, totalExamples, 0, 0)
	seconds := float64(totalExamples) * secondsPerExample

	return GenerationEstimate{
		TotalExamples:         totalExamples,
		UseCases:              len(useCases),
		EstimatedInputTokens:  cost.TotalInputTokens,
		EstimatedOutputTokens: cost.TotalOutputTokens,
		EstimatedTotalTokens:  cost.TotalInputTokens + cost.TotalOutputTokens,
		EstimatedCostUSD:      cost.TotalCost,
		EstimatedTimeSeconds:  seconds,
		EstimatedTimeDisplay:  FormatDuration(seconds),
	}
}

// FormatDuration renders a duration in short French text.
func FormatDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d secondes", int(seconds))
	case seconds < 3600:
		return fmt.Sprintf("%d min %d sec", int(seconds)/60, int(seconds)%60)
	default:
		return fmt.Sprintf("%dh %dmin", int(seconds)/3600, (int(seconds)%3600)/60)
	}
}
