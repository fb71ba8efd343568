// Package runctl talks to the run engine: the service that actually executes
// streaming agent runs. The coordinator drives it through the Controller
// interface; the HTTP implementation is the production path.
package runctl

import (
	"context"
	"time"

	"github.com/gamebyte/switchboard/coordinator"
	"github.com/gamebyte/switchboard/types"
)

// Controller starts, stops and inspects agent runs.
type Controller interface {
	coordinator.RunController

	// GetRun fetches the engine's current view of a run.
	GetRun(ctx context.Context, runID string) (*types.Run, error)
}

// Config tunes the HTTP run controller.
type Config struct {
	// BaseURL is the run engine's API root, e.g. "http://engine:8080".
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIKey authenticates to the engine when set.
	APIKey string `json:"api_key" yaml:"api_key"`

	// ServiceTokenSecret, when set, signs a short-lived service JWT attached
	// to every request instead of the static API key.
	ServiceTokenSecret string `json:"service_token_secret" yaml:"service_token_secret"`

	// ServiceTokenTTL is the lifetime of signed service tokens.
	ServiceTokenTTL time.Duration `json:"service_token_ttl" yaml:"service_token_ttl"`

	// Timeout bounds a single request attempt.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxRetries is the number of retry attempts for retryable failures.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryBackoff is the initial backoff, doubled each attempt.
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retry_backoff"`

	// RateLimit caps outgoing requests per second; 0 disables limiting.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`

	// RateBurst is the limiter's burst size.
	RateBurst int `json:"rate_burst" yaml:"rate_burst"`
}

// DefaultConfig returns the default run controller configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:         "http://localhost:8080",
		ServiceTokenTTL: 5 * time.Minute,
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    200 * time.Millisecond,
		RateLimit:       50,
		RateBurst:       100,
	}
}
