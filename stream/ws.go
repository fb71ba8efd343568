package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/gamebyte/switchboard/types"
)

// WSSubscriber consumes a run's event stream over WebSocket.
type WSSubscriber struct {
	config Config
	logger *zap.Logger
}

// NewWSSubscriber creates a WebSocket subscriber.
func NewWSSubscriber(config Config, logger *zap.Logger) *WSSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Buffer <= 0 {
		config.Buffer = DefaultConfig().Buffer
	}
	return &WSSubscriber{
		config: config,
		logger: logger.With(zap.String("component", "ws_subscriber")),
	}
}

// wsURL rewrites the configured base URL to the ws scheme.
func (s *WSSubscriber) wsURL(runID string) string {
	base := strings.TrimRight(s.config.BaseURL, "/")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return fmt.Sprintf("%s/v1/runs/%s/stream", base, runID)
}

// Subscribe dials the run's WebSocket stream and returns its event channel.
func (s *WSSubscriber) Subscribe(ctx context.Context, runID string) (<-chan types.StreamEvent, error) {
	dialCtx := ctx
	if s.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.config.DialTimeout)
		defer cancel()
	}

	opts := &websocket.DialOptions{}
	if s.config.APIKey != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + s.config.APIKey}}
	}

	conn, _, err := websocket.Dial(dialCtx, s.wsURL(runID), opts)
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "websocket dial failed").
			WithCause(err).WithRetryable(true)
	}
	// Event payloads can carry whole tool argument blobs.
	conn.SetReadLimit(4 * 1024 * 1024)

	events := make(chan types.StreamEvent, s.config.Buffer)
	go s.read(ctx, runID, conn, events)
	return events, nil
}

func (s *WSSubscriber) read(ctx context.Context, runID string, conn *websocket.Conn, events chan<- types.StreamEvent) {
	defer close(events)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return
			}
			s.logger.Warn("websocket read failed",
				zap.String("run_id", runID),
				zap.Error(err),
			)
			select {
			case events <- types.ErrorEvent(runID, types.NewError(types.ErrStreamClosed, "stream interrupted").WithCause(err)):
			case <-ctx.Done():
			}
			return
		}

		var ev types.StreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Warn("dropping malformed stream event",
				zap.String("run_id", runID),
				zap.Error(err),
			)
			continue
		}
		if ev.RunID == "" {
			ev.RunID = runID
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
		if ev.Terminal() {
			return
		}
	}
}
