package domain

import "time"

// Config represents the complete application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Provider    ProviderConfig   `mapstructure:"provider"`
	Generation  GenerationConfig `mapstructure:"generation"`
	Store       StoreConfig      `mapstructure:"store"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the HTTP API server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// ProviderConfig holds the default text-generation backend settings
type ProviderConfig struct {
	Name      string        `mapstructure:"name"`
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
	Breaker   bool          `mapstructure:"breaker"`
}

// GenerationConfig holds the default dataset-generation parameters
type GenerationConfig struct {
	ExamplesPerPatient  int      `mapstructure:"examples_per_patient"`
	OutputFormat        string   `mapstructure:"output_format"`
	UseCases            []string `mapstructure:"use_cases"`
	Temperature         float64  `mapstructure:"temperature"`
	MaxOutputTokens     int      `mapstructure:"max_output_tokens"`
	VaryInstructions    bool     `mapstructure:"vary_instructions"`
	IncludeSystemPrompt bool     `mapstructure:"include_system_prompt"`
	MaxObservations     int      `mapstructure:"max_observations"`
	MaxItemsPerCategory int      `mapstructure:"max_items_per_category"`
}

// StoreConfig holds the run-persistence settings
type StoreConfig struct {
	Driver         string `mapstructure:"driver"`
	Path           string `mapstructure:"path"`
	URL            string `mapstructure:"url"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// CacheConfig holds the optional provider-response cache settings and the
// size of the in-memory patient context cache.
type CacheConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	RedisURL       string        `mapstructure:"redis_url"`
	DefaultTTL     time.Duration `mapstructure:"default_ttl"`
	PoolSize       int           `mapstructure:"pool_size"`
	PoolTimeout    time.Duration `mapstructure:"pool_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	ContextEntries int           `mapstructure:"context_entries"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
