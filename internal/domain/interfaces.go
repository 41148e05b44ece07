package domain

import (
	"context"
)

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetProviderConfig() *ProviderConfig
	GetGenerationConfig() *GenerationConfig
	GetStoreConfig() *StoreConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}

// RunStore persists dataset build runs and their generated examples
type RunStore interface {
	SaveRun(ctx context.Context, run *Run, examples []GeneratedExample) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	GetExamples(ctx context.Context, runID string) ([]GeneratedExample, error)
	DeleteRun(ctx context.Context, id string) error
	Close() error
}
