package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional config.yaml in the working
// directory and from TASKFLOW_-prefixed environment variables, with the
// environment taking precedence. The result is validated before it is
// returned.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TASKFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		// Config files are optional; the environment alone is a complete
		// source.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// bindEnvKeys binds every config key explicitly. AutomaticEnv only
// resolves keys viper already knows about, so keys without defaults
// (database URLs, API keys) would otherwise never be read from the
// environment during Unmarshal.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"server.port",
		"server.log_level",
		"server.shutdown_timeout_seconds",
		"store.driver",
		"store.database_url",
		"bus.driver",
		"bus.nats_url",
		"dedup.driver",
		"dedup.redis_url",
		"dedup.retention_hours",
		"dedup.sweep_schedule",
		"llm.gemini_api_key",
		"llm.model_name",
		"llm.max_retries",
		"llm.retry_delay_seconds",
	}
	for _, key := range keys {
		// BindEnv only errors on an empty key.
		_ = v.BindEnv(key)
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout_seconds", 15)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("bus.driver", "memory")

	v.SetDefault("dedup.driver", "memory")
	v.SetDefault("dedup.retention_hours", 168)
	v.SetDefault("dedup.sweep_schedule", "@hourly")

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
}
