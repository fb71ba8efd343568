// Package stream delivers a run's incremental output events to the
// coordinator. Two transports are supported: server-sent events over plain
// HTTP and WebSocket. Both yield one ordered channel per run that closes
// after the terminal event.
package stream

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gamebyte/switchboard/coordinator"
)

// Transport selects the streaming transport.
type Transport string

const (
	TransportSSE       Transport = "sse"
	TransportWebSocket Transport = "websocket"
)

// Config tunes the stream subscribers.
type Config struct {
	// Transport picks the wire protocol.
	Transport Transport `json:"transport" yaml:"transport"`

	// BaseURL is the run engine's API root. SSE uses it as-is; the WebSocket
	// subscriber rewrites the scheme to ws/wss.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIKey authenticates to the engine when set.
	APIKey string `json:"api_key" yaml:"api_key"`

	// Buffer is the per-run event channel capacity.
	Buffer int `json:"buffer" yaml:"buffer"`

	// DialTimeout bounds establishing the stream connection.
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
}

// DefaultConfig returns the default stream configuration.
func DefaultConfig() Config {
	return Config{
		Transport:   TransportSSE,
		BaseURL:     "http://localhost:8080",
		Buffer:      64,
		DialTimeout: 10 * time.Second,
	}
}

// New creates a subscriber for the configured transport.
func New(config Config, logger *zap.Logger) (coordinator.StreamSubscriber, error) {
	switch config.Transport {
	case TransportSSE, "":
		return NewSSESubscriber(config, logger), nil
	case TransportWebSocket:
		return NewWSSubscriber(config, logger), nil
	default:
		return nil, fmt.Errorf("unsupported stream transport: %s", config.Transport)
	}
}
