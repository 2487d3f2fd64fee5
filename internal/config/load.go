package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads application configuration from environment variables and an
// optional config.yaml in the working directory, applies defaults, and
// validates the result. Environment variables use the PURLIN_ prefix with
// underscores replacing the dots of nested keys (server.port becomes
// PURLIN_SERVER_PORT) and take precedence over file values.
//
// It returns the populated Config or an error when reading, unmarshaling,
// or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults leave the native engine off and point the standard engine
	// at a local SQLite file, so the server runs with no configuration.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_file", "")
	v.SetDefault("database.native_url", "")
	v.SetDefault("database.standard_url", "sqlite://./purlin.db")
	v.SetDefault("database.pool.size", 5)
	v.SetDefault("database.pool.overflow", 2)
	v.SetDefault("database.pool.acquire_timeout", "10s")
	v.SetDefault("database.pool.recycle", "600s")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("PURLIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
