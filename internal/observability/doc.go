// Package observability provides the bridge's structured logger and its
// Prometheus metrics.
package observability
