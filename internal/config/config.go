// Package config loads the application configuration from file, environment
// and defaults, in that order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/fhir-dataset-forge/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// Set configuration file name and paths
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/fhir-dataset-forge/")

	// Set environment variable prefix and enable automatic env binding
	viper.SetEnvPrefix("FORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	m.setDefaults()

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	// Unmarshal configuration into struct
	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Provider defaults
	viper.SetDefault("provider.name", domain.ProviderAnthropic)
	viper.SetDefault("provider.model", "")
	viper.SetDefault("provider.api_key", "")
	viper.SetDefault("provider.base_url", "")
	viper.SetDefault("provider.timeout", "60s")
	viper.SetDefault("provider.rate_limit", 2.0)
	viper.SetDefault("provider.burst", 1)
	viper.SetDefault("provider.breaker", true)

	// Generation defaults
	viper.SetDefault("generation.examples_per_patient", 5)
	viper.SetDefault("generation.output_format", domain.FormatAlpaca)
	viper.SetDefault("generation.use_cases", domain.KnownUseCases)
	viper.SetDefault("generation.temperature", 0.7)
	viper.SetDefault("generation.max_output_tokens", 1500)
	viper.SetDefault("generation.vary_instructions", true)
	viper.SetDefault("generation.include_system_prompt", true)
	viper.SetDefault("generation.max_observations", 20)
	viper.SetDefault("generation.max_items_per_category", 10)

	// Store defaults
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.path", "./data/runs.db")
	viper.SetDefault("store.url", "")
	viper.SetDefault("store.migrations_path", "./migrations")

	// Cache defaults
	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "24h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")
	viper.SetDefault("cache.context_entries", 256)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetProviderConfig returns the default LLM provider configuration
func (m *Manager) GetProviderConfig() *domain.ProviderConfig {
	return &m.config.Provider
}

// GetGenerationConfig returns the default generation parameters
func (m *Manager) GetGenerationConfig() *domain.GenerationConfig {
	return &m.config.Generation
}

// GetStoreConfig returns the run store configuration
func (m *Manager) GetStoreConfig() *domain.StoreConfig {
	return &m.config.Store
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	// Validate provider configuration
	validProviders := map[string]bool{}
	for _, p := range domain.KnownProviders {
		validProviders[p] = true
	}
	if !validProviders[strings.ToLower(config.Provider.Name)] {
		return fmt.Errorf("invalid provider: %s", config.Provider.Name)
	}

	// Validate store configuration
	switch config.Store.Driver {
	case "sqlite":
		if config.Store.Path == "" {
			return fmt.Errorf("store path is required for sqlite")
		}
	case "postgres":
		if config.Store.URL == "" {
			return fmt.Errorf("store URL is required for postgres")
		}
	default:
		return fmt.Errorf("invalid store driver: %s", config.Store.Driver)
	}

	// Validate cache configuration
	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when the cache is enabled")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(viper.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(viper.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
