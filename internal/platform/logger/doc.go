// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured
// JSON logging with configurable log levels and optional size-based file
// rotation. Context helpers attach request-scoped loggers so that lower
// layers log with the caller's attributes.
package logger
