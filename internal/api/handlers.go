package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fhir-dataset-forge/internal/domain"
	"github.com/fhir-dataset-forge/internal/export"
	"github.com/fhir-dataset-forge/internal/loader"
	"github.com/fhir-dataset-forge/internal/service"
	"github.com/fhir-dataset-forge/internal/template"
	"github.com/fhir-dataset-forge/pkg/fhir"
	"github.com/fhir-dataset-forge/pkg/llm"
)

// Run lifecycle states.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

type runState struct {
	status   string
	progress float64
	message  string
	cancel   context.CancelFunc
}

// runRegistry tracks in-flight runs so status queries and cancellation work
// before a run reaches the store.
type runRegistry struct {
	mu   sync.Mutex
	runs map[string]*runState
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[string]*runState)}
}

func (r *runRegistry) start(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[id] = &runState{status: RunStatusRunning, cancel: cancel}
}

func (r *runRegistry) update(id, message string, progress float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.runs[id]; ok {
		state.message = message
		state.progress = progress
	}
}

func (r *runRegistry) finish(id, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.runs[id]; ok {
		state.status = status
		state.cancel = nil
	}
}

func (r *runRegistry) get(id string) (status, message string, progress float64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.runs[id]
	if !ok {
		return "", "", 0, false
	}
	return state.status, state.message, state.progress, true
}

func (r *runRegistry) cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.runs[id]
	if !ok || state.cancel == nil {
		return false
	}
	state.cancel()
	state.status = RunStatusCancelled
	state.cancel = nil
	return true
}

type createRunRequest struct {
	Config     domain.DatasetConfig `json:"config"`
	Bundles    []fhir.Bundle        `json:"bundles"`
	BundlesDir string               `json:"bundles_dir"`
}

// handleCreateRun validates the request, starts generation in the background
// and returns the run id immediately.
func (s *Server) handleCreateRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	cfg := s.applyProviderDefaults(req.Config)

	if errs := cfg.Validate(); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": errs})
		return
	}

	var bundles []*fhir.Bundle
	switch {
	case len(req.Bundles) > 0:
		for i := range req.Bundles {
			bundles = append(bundles, &req.Bundles[i])
		}
	case req.BundlesDir != "":
		loaded, err := loader.NewLoader(s.logger).LoadDir(req.BundlesDir)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		bundles = loaded
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "bundles or bundles_dir is required"})
		return
	}

	client, err := s.newLLMClient(cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gen := s.configManager.GetGenerationConfig()
	builderOpts := []service.BuilderOption{
		service.WithContextBuilder(service.NewContextBuilder(gen.MaxObservations, gen.MaxItemsPerCategory)),
	}
	if s.contexts != nil {
		builderOpts = append(builderOpts, service.WithContextCache(s.contexts))
	}
	builder, err := service.NewDatasetBuilder(cfg, client, s.logger, builderOpts...)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runID := uuid.New().String()
	runCtx, cancel := context.WithCancel(context.Background())
	s.runs.start(runID, cancel)

	go s.executeRun(runCtx, runID, cfg, builder, bundles)

	c.JSON(http.StatusAccepted, gin.H{
		"run_id": runID,
		"status": RunStatusRunning,
	})
}

// applyProviderDefaults fills request gaps from the server configuration.
func (s *Server) applyProviderDefaults(cfg domain.DatasetConfig) domain.DatasetConfig {
	provider := s.configManager.GetProviderConfig()

	if cfg.Provider == "" {
		cfg.Provider = provider.Name
	}
	if cfg.Model == "" {
		cfg.Model = provider.Model
	}
	if cfg.APIKey == "" {
		cfg.APIKey = provider.APIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = provider.BaseURL
	}
	return cfg
}

func (s *Server) newLLMClient(cfg domain.DatasetConfig) (*llm.Client, error) {
	provider := s.configManager.GetProviderConfig()

	opts := llm.Options{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: provider.Timeout,
	}

	var clientOpts []llm.ClientOption
	if provider.Breaker {
		clientOpts = append(clientOpts, llm.WithGuard(llm.GuardConfig{
			RateLimit: provider.RateLimit,
			Burst:     provider.Burst,
		}))
	}
	if s.responses != nil {
		clientOpts = append(clientOpts, llm.WithResponseCache(s.responses))
	}

	return llm.NewClient(cfg.Provider, opts, s.logger, clientOpts...)
}

// executeRun drives one generation to completion and persists the result.
func (s *Server) executeRun(ctx context.Context, runID string, cfg domain.DatasetConfig, builder *service.DatasetBuilder, bundles []*fhir.Bundle) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("run_id", runID).Errorf("Run panicked: %v", r)
			s.runs.finish(runID, RunStatusFailed)
		}
	}()

	progress := func(message string, fraction float64, current map[string]interface{}) {
		s.runs.update(runID, message, fraction)
		s.hub.Publish(ProgressEvent{
			RunID:    runID,
			Status:   RunStatusRunning,
			Message:  message,
			Progress: fraction,
			Current:  current,
		})
	}

	examples, err := builder.BuildDataset(ctx, bundles, progress)

	status := RunStatusCompleted
	if err != nil {
		if ctx.Err() != nil {
			status = RunStatusCancelled
		} else {
			status = RunStatusFailed
		}
		s.logger.WithError(err).WithField("run_id", runID).Warn("Run did not complete")
	}

	run := &domain.Run{
		ID:           runID,
		CreatedAt:    time.Now().UTC(),
		Provider:     cfg.Provider,
		Model:        cfg.Model,
		OutputFormat: cfg.OutputFormat,
		UseCases:     cfg.UseCases,
		Patients:     len(bundles),
		Stats:        builder.Statistics(),
	}

	if len(examples) > 0 || status == RunStatusCompleted {
		if err := s.store.SaveRun(context.Background(), run, examples); err != nil {
			s.logger.WithError(err).WithField("run_id", runID).Error("Failed to persist run")
			status = RunStatusFailed
		}
	}

	s.runs.finish(runID, status)
	s.hub.Publish(ProgressEvent{
		RunID:    runID,
		Status:   status,
		Message:  "Génération terminée!",
		Progress: 1.0,
	})
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	runs, err := s.store.ListRuns(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(c *gin.Context) {
	id := c.Param("id")

	// In-flight runs are reported from the registry.
	if status, message, progress, ok := s.runs.get(id); ok && status == RunStatusRunning {
		c.JSON(http.StatusOK, gin.H{
			"id":       id,
			"status":   status,
			"message":  message,
			"progress": progress,
		})
		return
	}

	run, err := s.store.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	status := RunStatusCompleted
	if st, _, _, ok := s.runs.get(id); ok {
		status = st
	}

	c.JSON(http.StatusOK, gin.H{"id": run.ID, "status": status, "run": run})
}

func (s *Server) handleGetExamples(c *gin.Context) {
	id := c.Param("id")

	examples, err := s.store.GetExamples(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"examples": examples, "count": len(examples)})
}

// handleExportRun streams a stored run as a dataset file. The "as" query
// selects the envelope: jsonl (default) or json.
func (s *Server) handleExportRun(c *gin.Context) {
	id := c.Param("id")

	run, err := s.store.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	examples, err := s.store.GetExamples(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	includeSystem := c.DefaultQuery("system", "true") == "true"

	records, err := formatRecords(run.OutputFormat, examples, includeSystem)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var content, filename, contentType string
	switch c.DefaultQuery("as", "jsonl") {
	case "json":
		content, err = export.EncodeJSON(records)
		filename = "dataset-" + id + ".json"
		contentType = "application/json"
	default:
		content, err = export.EncodeJSONL(records)
		filename = "dataset-" + id + ".jsonl"
		contentType = "application/x-ndjson"
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, []byte(content))
}

func (s *Server) handleDeleteRun(c *gin.Context) {
	id := c.Param("id")

	if s.runs.cancel(id) {
		c.JSON(http.StatusOK, gin.H{"id": id, "status": RunStatusCancelled})
		return
	}

	if err := s.store.DeleteRun(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

func (s *Server) handleProgressStream(c *gin.Context) {
	id := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "websocket upgrade failed"})
		return
	}

	s.hub.Subscribe(id, conn)

	// Reads only serve to detect the peer going away.
	go func() {
		defer s.hub.Unsubscribe(id, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

type estimateRequest struct {
	NumPatients        int      `json:"num_patients"`
	ExamplesPerPatient int      `json:"examples_per_patient"`
	UseCases           []string `json:"use_cases"`
	Provider           string   `json:"provider"`
	Model              string   `json:"model"`
}

func (s *Server) handleEstimate(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	estimate := service.EstimateGeneration(
		req.NumPatients, req.ExamplesPerPatient, req.UseCases, req.Provider, req.Model)

	c.JSON(http.StatusOK, estimate)
}

func (s *Server) handleUseCases(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"use_cases": template.UseCaseInfo()})
}

func (s *Server) handleFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"formats": export.AvailableFormats()})
}

func (s *Server) handleProviders(c *gin.Context) {
	providers := make([]gin.H, 0, len(domain.KnownProviders))
	for _, p := range domain.KnownProviders {
		providers = append(providers, gin.H{
			"id":     p,
			"label":  llm.ProviderLabels[p],
			"models": llm.ModelsForProvider(p),
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": providers})
}

// formatRecords renders stored examples in a run's configured format.
func formatRecords(format string, examples []domain.GeneratedExample, includeSystem bool) ([]export.Record, error) {
	formatter, err := export.New(format)
	if err != nil {
		return nil, err
	}

	records := make([]export.Record, 0, len(examples))
	for _, example := range examples {
		tmpl, err := template.Get(example.UseCase)
		if err != nil {
			return nil, err
		}

		systemPrompt := ""
		if includeSystem {
			systemPrompt = tmpl.SystemPrompt
		}

		records = append(records, formatter.Format(
			example.Instruction, example.InputContext, example.Output, systemPrompt))
	}
	return records, nil
}
