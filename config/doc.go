// Package config loads and validates the gateway configuration from a
// YAML file and environment variables using viper. Validation covers
// the server address, logging level, circuit-breaker and retry
// settings, backend declarations, and the fallback chain.
package config
