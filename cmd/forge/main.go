// Command forge generates a fine-tuning dataset from a directory of FHIR
// patient bundles without going through the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/fhir-dataset-forge/internal/domain"
	"github.com/fhir-dataset-forge/internal/loader"
	"github.com/fhir-dataset-forge/internal/service"
	"github.com/fhir-dataset-forge/pkg/llm"
)

func main() {
	var (
		bundlesDir = flag.String("bundles", "", "directory of FHIR bundle JSON files (required)")
		output     = flag.String("output", "dataset.jsonl", "output file path")
		format     = flag.String("format", domain.FormatAlpaca, "output format: alpaca, sharegpt, openai, chatml")
		useCases   = flag.String("use-cases", strings.Join(domain.KnownUseCases, ","), "comma-separated use cases")
		provider   = flag.String("provider", domain.ProviderAnthropic, "LLM provider: numih, anthropic, openai")
		model      = flag.String("model", "", "model id (provider default when empty)")
		apiKey     = flag.String("api-key", "", "API key (falls back to the provider's environment variable)")
		perPatient = flag.Int("examples-per-patient", 5, "examples to generate per patient")
		noVary     = flag.Bool("no-vary", false, "disable instruction paraphrasing")
		asJSON     = flag.Bool("json", false, "write a JSON array instead of JSONL")
		estimate   = flag.Bool("estimate", false, "print an estimate and exit without generating")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *bundlesDir == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	bundles, err := loader.NewLoader(logger).LoadDir(*bundlesDir)
	if err != nil {
		log.Fatalf("Failed to load bundles: %v", err)
	}

	selected := strings.Split(*useCases, ",")
	for i := range selected {
		selected[i] = strings.TrimSpace(selected[i])
	}

	if *estimate {
		est := service.EstimateGeneration(len(bundles), *perPatient, selected, *provider, *model)
		fmt.Printf("Exemples: %d\n", est.TotalExamples)
		fmt.Printf("Tokens estimés: %d\n", est.EstimatedTotalTokens)
		fmt.Printf("Coût estimé: %.4f USD\n", est.EstimatedCostUSD)
		fmt.Printf("Durée estimée: %s\n", est.EstimatedTimeDisplay)
		return
	}

	key := *apiKey
	if key == "" {
		key = keyFromEnv(*provider)
	}

	cfg := domain.DefaultDatasetConfig()
	cfg.UseCases = selected
	cfg.OutputFormat = *format
	cfg.ExamplesPerPatient = *perPatient
	cfg.Provider = *provider
	cfg.Model = *model
	cfg.APIKey = key
	cfg.VaryInstructions = !*noVary

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, "erreur:", e)
		}
		os.Exit(2)
	}

	client, err := llm.NewClient(cfg.Provider, llm.Options{APIKey: cfg.APIKey, Model: cfg.Model}, logger)
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	builder, err := service.NewDatasetBuilder(cfg, client, logger)
	if err != nil {
		log.Fatalf("Failed to create builder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Interrupted, finishing current example...")
		cancel()
	}()

	progress := func(message string, fraction float64, _ map[string]interface{}) {
		fmt.Printf("\r[%3.0f%%] %-60s", fraction*100, message)
	}

	examples, err := builder.BuildDataset(ctx, bundles, progress)
	fmt.Println()
	if err != nil && len(examples) == 0 {
		log.Fatalf("Generation failed: %v", err)
	}

	var path string
	if *asJSON {
		path, err = builder.ExportJSON(*output, examples)
	} else {
		path, err = builder.ExportJSONL(*output, examples)
	}
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}

	stats := builder.Statistics()
	fmt.Printf("Dataset écrit: %s\n", path)
	fmt.Printf("Exemples: %d réussis, %d échoués (%.1f%%)\n",
		stats.Successful, stats.Failed, stats.SuccessRate)
	fmt.Printf("Tokens: %d entrée, %d sortie\n", stats.TokensInput, stats.TokensOutput)
	fmt.Printf("Coût estimé: %.4f USD\n", stats.EstimatedCost)
}

func keyFromEnv(provider string) string {
	switch provider {
	case domain.ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case domain.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case domain.ProviderNumih:
		return os.Getenv("NUMIH_API_KEY")
	}
	return ""
}
