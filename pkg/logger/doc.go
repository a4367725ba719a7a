// Package logger provides structured logging with configurable log levels.
// It wraps the standard log/slog package and picks a JSON or text handler
// based on the runtime environment.
package logger
