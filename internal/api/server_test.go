package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhir-dataset-forge/internal/domain"
)

type fakeConfigManager struct {
	config *domain.Config
}

func newFakeConfigManager() *fakeConfigManager {
	return &fakeConfigManager{
		config: &domain.Config{
			Server: domain.ServerConfig{Host: "127.0.0.1", Port: 8080},
			Provider: domain.ProviderConfig{
				Name:      domain.ProviderAnthropic,
				RateLimit: 2.0,
				Burst:     1,
			},
			Generation: domain.GenerationConfig{
				ExamplesPerPatient: 5,
				OutputFormat:       domain.FormatAlpaca,
				UseCases:           domain.KnownUseCases,
			},
			Store:   domain.StoreConfig{Driver: "sqlite", Path: ":memory:"},
			Cache:   domain.CacheConfig{ContextEntries: 128},
			Logging: domain.LoggingConfig{Level: "error", Format: "json"},
		},
	}
}

func (f *fakeConfigManager) GetConfig() *domain.Config                 { return f.config }
func (f *fakeConfigManager) GetServerConfig() *domain.ServerConfig     { return &f.config.Server }
func (f *fakeConfigManager) GetProviderConfig() *domain.ProviderConfig { return &f.config.Provider }
func (f *fakeConfigManager) GetGenerationConfig() *domain.GenerationConfig {
	return &f.config.Generation
}
func (f *fakeConfigManager) GetStoreConfig() *domain.StoreConfig { return &f.config.Store }
func (f *fakeConfigManager) Reload() error                       { return nil }
func (f *fakeConfigManager) Validate() error                     { return nil }
func (f *fakeConfigManager) IsProduction() bool                  { return false }
func (f *fakeConfigManager) IsDevelopment() bool                 { return true }

type fakeRunStore struct {
	runs     map[string]*domain.Run
	examples map[string][]domain.GeneratedExample
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		runs:     make(map[string]*domain.Run),
		examples: make(map[string][]domain.GeneratedExample),
	}
}

func (f *fakeRunStore) SaveRun(_ context.Context, run *domain.Run, examples []domain.GeneratedExample) error {
	f.runs[run.ID] = run
	f.examples[run.ID] = examples
	return nil
}

func (f *fakeRunStore) GetRun(_ context.Context, id string) (*domain.Run, error) {
	return f.runs[id], nil
}

func (f *fakeRunStore) ListRuns(_ context.Context, limit, _ int) ([]*domain.Run, error) {
	var result []*domain.Run
	for _, run := range f.runs {
		if len(result) == limit {
			break
		}
		result = append(result, run)
	}
	return result, nil
}

func (f *fakeRunStore) GetExamples(_ context.Context, runID string) ([]domain.GeneratedExample, error) {
	return f.examples[runID], nil
}

func (f *fakeRunStore) DeleteRun(_ context.Context, id string) error {
	delete(f.runs, id)
	delete(f.examples, id)
	return nil
}

func (f *fakeRunStore) Close() error { return nil }

func newTestServer(t *testing.T) (*Server, *fakeRunStore) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	store := newFakeRunStore()
	return NewServer(newFakeConfigManager(), store, logger), store
}

func TestNewServer_CacheWiring(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	server, _ := newTestServer(t)
	assert.NotNil(t, server.contexts, "context cache follows cache.context_entries")
	assert.Nil(t, server.responses, "response cache stays off when disabled")

	// An unreachable Redis degrades to running without the response cache.
	manager := newFakeConfigManager()
	manager.config.Cache.Enabled = true
	manager.config.Cache.RedisURL = "not-a-redis-url"
	server = NewServer(manager, newFakeRunStore(), logger)
	assert.Nil(t, server.responses)
	assert.NotNil(t, server.contexts)

	manager = newFakeConfigManager()
	manager.config.Cache.ContextEntries = 0
	server = NewServer(manager, newFakeRunStore(), logger)
	assert.Nil(t, server.contexts)
}

func doRequest(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
}

func TestUseCasesCatalog(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/usecases", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	useCases := body["use_cases"].([]interface{})
	assert.Len(t, useCases, len(domain.KnownUseCases))
}

func TestFormatsCatalog(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/formats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	formats := body["formats"].([]interface{})
	assert.Len(t, formats, len(domain.KnownFormats))
}

func TestProvidersCatalog(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	providers := body["providers"].([]interface{})
	require.Len(t, providers, len(domain.KnownProviders))

	first := providers[0].(map[string]interface{})
	assert.Equal(t, domain.ProviderNumih, first["id"])
	assert.Equal(t, "Numih (Multi-modèles)", first["label"])
	assert.NotEmpty(t, first["models"])
}

func TestEstimate(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodPost, "/api/v1/estimate", map[string]interface{}{
		"num_patients":         10,
		"examples_per_patient": 5,
		"use_cases":            []string{domain.UseCaseMedicalQA},
		"provider":             "openai",
		"model":                "gpt-4o-mini",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(50), body["total_examples"])
	assert.Equal(t, float64(50*2000), body["estimated_input_tokens"])
	assert.Equal(t, "2 min 5 sec", body["estimated_time_display"])
}

func TestCreateRun_InvalidConfig(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs", map[string]interface{}{
		"config": map[string]interface{}{
			"use_cases": []string{"surgical_planning"},
		},
		"bundles": []map[string]interface{}{{"resourceType": "Bundle"}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	errs := body["errors"].([]interface{})
	assert.NotEmpty(t, errs)

	joined := make([]string, 0, len(errs))
	for _, e := range errs {
		joined = append(joined, e.(string))
	}
	assert.Contains(t, strings.Join(joined, "; "), "Cas d'usage 'surgical_planning' inconnu")
}

func TestCreateRun_MissingBundles(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodPost, "/api/v1/runs", map[string]interface{}{
		"config": map[string]interface{}{
			"use_cases": []string{domain.UseCaseMedicalQA},
			"api_key":   "k",
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Contains(t, body["error"], "bundles or bundles_dir is required")
}

func TestGetRun_NotFound(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRun_Stored(t *testing.T) {
	server, store := newTestServer(t)

	store.runs["run-1"] = &domain.Run{
		ID:           "run-1",
		CreatedAt:    time.Now().UTC(),
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		OutputFormat: domain.FormatAlpaca,
	}

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/run-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "run-1", body["id"])
	assert.Equal(t, RunStatusCompleted, body["status"])
}

func TestListRuns(t *testing.T) {
	server, store := newTestServer(t)
	store.runs["run-1"] = &domain.Run{ID: "run-1"}

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["count"])
}

func TestExportRun(t *testing.T) {
	server, store := newTestServer(t)

	store.runs["run-1"] = &domain.Run{ID: "run-1", OutputFormat: domain.FormatAlpaca}
	store.examples["run-1"] = []domain.GeneratedExample{
		{
			UseCase:      domain.UseCaseMedicalQA,
			Instruction:  "Question?",
			InputContext: "Patient: X",
			Output:       "Réponse.",
		},
	}

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/run-1/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "dataset-run-1.jsonl")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "Question?", record["instruction"])
	assert.Equal(t, "Réponse.", record["output"])
}

func TestExportRun_JSONEnvelope(t *testing.T) {
	server, store := newTestServer(t)

	store.runs["run-1"] = &domain.Run{ID: "run-1", OutputFormat: domain.FormatOpenAI}
	store.examples["run-1"] = []domain.GeneratedExample{
		{UseCase: domain.UseCaseMedicalQA, Instruction: "Q", Output: "R"},
	}

	rec := doRequest(t, server, http.MethodGet, "/api/v1/runs/run-1/export?as=json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Contains(t, records[0], "messages")
}

func TestDeleteRun(t *testing.T) {
	server, store := newTestServer(t)
	store.runs["run-1"] = &domain.Run{ID: "run-1"}

	rec := doRequest(t, server, http.MethodDelete, "/api/v1/runs/run-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["deleted"])
	assert.NotContains(t, store.runs, "run-1")
}

func TestSecurityHeaders(t *testing.T) {
	server, _ := newTestServer(t)

	rec := doRequest(t, server, http.MethodGet, "/health", nil)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}
