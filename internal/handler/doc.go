// Package handler implements the HTTP endpoints of the gateway:
// generation, experiment management, breaker inspection, and health.
package handler
