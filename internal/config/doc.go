// Package config handles configuration loading, parsing, and validation.
// Settings come from PURLIN_-prefixed environment variables and an optional
// config.yaml, with sensible defaults so the server starts unconfigured. It
// provides type-safe access to application settings while keeping
// configuration details separate from business logic.
package config
