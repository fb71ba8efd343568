package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/gamebyte/switchboard/types"
)

// SSESubscriber consumes a run's event stream as server-sent events.
type SSESubscriber struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewSSESubscriber creates an SSE subscriber.
func NewSSESubscriber(config Config, logger *zap.Logger) *SSESubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Buffer <= 0 {
		config.Buffer = DefaultConfig().Buffer
	}
	return &SSESubscriber{
		config: config,
		// Streaming responses stay open for the run's lifetime, so the
		// client itself carries no timeout; cancellation comes from ctx.
		client: &http.Client{},
		logger: logger.With(zap.String("component", "sse_subscriber")),
	}
}

// Subscribe opens the run's SSE stream and returns its event channel. The
// channel closes when the stream ends or ctx is cancelled.
func (s *SSESubscriber) Subscribe(ctx context.Context, runID string) (<-chan types.StreamEvent, error) {
	url := fmt.Sprintf("%s/v1/runs/%s/stream", strings.TrimRight(s.config.BaseURL, "/"), runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to create stream request").WithCause(err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "stream connect failed").
			WithCause(err).WithRetryable(true)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, types.NewError(types.ErrNotFound, "run stream not found").WithHTTPStatus(resp.StatusCode)
		}
		return nil, types.NewError(types.ErrUnavailable, "stream connect rejected").
			WithHTTPStatus(resp.StatusCode).WithRetryable(resp.StatusCode >= 500)
	}

	events := make(chan types.StreamEvent, s.config.Buffer)
	go s.read(ctx, runID, resp, events)
	return events, nil
}

// read parses SSE frames until the stream ends. A transport failure
// mid-stream surfaces as a terminal error event so the consumer can mark the
// run failed rather than hang.
func (s *SSESubscriber) read(ctx context.Context, runID string, resp *http.Response, events chan<- types.StreamEvent) {
	defer close(events)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		// Blank line terminates one SSE frame.
		if line == "" {
			if data.Len() > 0 {
				ev, ok := s.decode(runID, data.String())
				data.Reset()
				if !ok {
					continue
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
			continue
		}

		switch {
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// Comment / keep-alive.
		default:
			// "event:" and "id:" fields are informational; the payload
			// carries its own type tag.
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.logger.Warn("stream read failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		select {
		case events <- types.ErrorEvent(runID, types.NewError(types.ErrStreamClosed, "stream interrupted").WithCause(err)):
		case <-ctx.Done():
		}
	}
}

func (s *SSESubscriber) decode(runID, payload string) (types.StreamEvent, bool) {
	var ev types.StreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		s.logger.Warn("dropping malformed stream event",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return types.StreamEvent{}, false
	}
	if ev.RunID == "" {
		ev.RunID = runID
	}
	return ev, true
}
