package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// LogFile, when set, duplicates log output to this path with
	// size-based rotation.
	LogFile string `mapstructure:"log_file"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	// NativeURL is the PostgreSQL URL of the native engine. Leaving it
	// empty runs the application on the standard engine alone.
	NativeURL string `mapstructure:"native_url" validate:"omitempty,startswith=postgres"`

	// StandardURL is the database/sql engine URL: a postgres:// URL or a
	// SQLite location such as sqlite://./purlin.db.
	StandardURL string `mapstructure:"standard_url" validate:"required"`

	Pool PoolConfig `mapstructure:"pool"`
}

// PoolConfig bounds both connection pools. Zero values fall back to the
// library defaults: 5 connections, 2 overflow, a 10s acquisition timeout
// and 600s connection recycling.
type PoolConfig struct {
	Size           int32         `mapstructure:"size" validate:"gte=0"`
	Overflow       int32         `mapstructure:"overflow" validate:"gte=0"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" validate:"gte=0"`
	Recycle        time.Duration `mapstructure:"recycle" validate:"gte=0"`
}
