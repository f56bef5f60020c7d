// Package config loads and validates application configuration from
// environment variables (TASKFLOW_ prefix) and an optional config file.
package config

// Config holds all application configuration, grouped by concern.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Store  StoreConfig  `mapstructure:"store" validate:"required"`
	Bus    BusConfig    `mapstructure:"bus" validate:"required"`
	Dedup  DedupConfig  `mapstructure:"dedup" validate:"required"`
	LLM    LLMConfig    `mapstructure:"llm"`
}

// ServerConfig contains the HTTP server settings.
type ServerConfig struct {
	Port            int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout_seconds" validate:"gte=0"`
}

// StoreConfig selects and configures the task/audit store backend.
type StoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver      string `mapstructure:"driver" validate:"required,oneof=memory postgres"`
	DatabaseURL string `mapstructure:"database_url" validate:"required_if=Driver postgres,omitempty,url"`
}

// BusConfig selects and configures the event bus backend.
type BusConfig struct {
	// Driver is "memory" or "nats".
	Driver  string `mapstructure:"driver" validate:"required,oneof=memory nats"`
	NATSURL string `mapstructure:"nats_url" validate:"required_if=Driver nats"`
}

// DedupConfig selects the consumer dedup backend and its retention.
type DedupConfig struct {
	// Driver is "memory", "postgres", or "redis". The postgres driver
	// shares the store's database.
	Driver         string `mapstructure:"driver" validate:"required,oneof=memory postgres redis"`
	RedisURL       string `mapstructure:"redis_url" validate:"required_if=Driver redis"`
	RetentionHours int    `mapstructure:"retention_hours" validate:"required,gt=0"`

	// SweepSchedule is the cron expression for pruning expired keys on
	// backends without native expiry.
	SweepSchedule string `mapstructure:"sweep_schedule" validate:"required"`
}

// LLMConfig contains the natural-language interpreter settings. The chat
// endpoint is disabled when no API key is configured.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`
	ModelName         string `mapstructure:"model_name"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0"`
}

// ChatEnabled reports whether the natural-language surface is configured.
func (c LLMConfig) ChatEnabled() bool {
	return c.GeminiAPIKey != ""
}
