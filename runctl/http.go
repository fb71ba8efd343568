package runctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gamebyte/switchboard/coordinator"
	"github.com/gamebyte/switchboard/types"
)

// HTTPController drives a run engine over its REST API.
type HTTPController struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewHTTPController creates a controller for the engine at config.BaseURL.
func NewHTTPController(config Config, logger *zap.Logger) *HTTPController {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultConfig().RetryBackoff
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = int(config.RateLimit)
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &HTTPController{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: limiter,
		logger:  logger.With(zap.String("component", "runctl")),
	}
}

type startRunRequest struct {
	AgentID  string                   `json:"agent_id"`
	Settings types.GenerationSettings `json:"settings"`
}

type runResponse struct {
	RunID          string          `json:"run_id"`
	ConversationID string          `json:"conversation_id"`
	AgentID        string          `json:"agent_id"`
	Status         types.RunStatus `json:"status"`
	StartedAt      time.Time       `json:"started_at"`
}

func (r *runResponse) toRun() *types.Run {
	return &types.Run{
		RunID:          r.RunID,
		ConversationID: r.ConversationID,
		AgentID:        r.AgentID,
		Status:         r.Status,
		StartedAt:      r.StartedAt,
	}
}

// StartRun asks the engine to begin a streaming run.
func (c *HTTPController) StartRun(ctx context.Context, conversationID string, opts coordinator.StartOptions) (*types.Run, error) {
	body, err := json.Marshal(startRunRequest{
		AgentID:  opts.AgentID,
		Settings: opts.Settings,
	})
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to encode start request").WithCause(err)
	}

	url := fmt.Sprintf("%s/v1/conversations/%s/runs", strings.TrimRight(c.config.BaseURL, "/"), conversationID)

	var run *types.Run
	err = c.doWithRetry(ctx, func() error {
		resp, err := c.do(ctx, http.MethodPost, url, body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return mapEngineError(resp.StatusCode, readErrorMessage(resp.Body))
		}

		var rr runResponse
		if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
			return types.NewError(types.ErrUnavailable, "malformed engine response").
				WithCause(err).WithRetryable(true)
		}
		run = rr.toRun()
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("run started",
		zap.String("run_id", run.RunID),
		zap.String("agent_id", run.AgentID),
	)
	return run, nil
}

// StopRun asks the engine to stop a run. A run the engine no longer knows is
// treated as already stopped.
func (c *HTTPController) StopRun(ctx context.Context, runID string) error {
	url := fmt.Sprintf("%s/v1/runs/%s/stop", strings.TrimRight(c.config.BaseURL, "/"), runID)

	return c.doWithRetry(ctx, func() error {
		resp, err := c.do(ctx, http.MethodPost, url, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil
		}
		if resp.StatusCode >= 400 {
			return mapEngineError(resp.StatusCode, readErrorMessage(resp.Body))
		}
		return nil
	})
}

// GetRun fetches the engine's view of a run.
func (c *HTTPController) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	url := fmt.Sprintf("%s/v1/runs/%s", strings.TrimRight(c.config.BaseURL, "/"), runID)

	var run *types.Run
	err := c.doWithRetry(ctx, func() error {
		resp, err := c.do(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return mapEngineError(resp.StatusCode, readErrorMessage(resp.Body))
		}

		var rr runResponse
		if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
			return types.NewError(types.ErrUnavailable, "malformed engine response").
				WithCause(err).WithRetryable(true)
		}
		run = rr.toRun()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// do issues a single authenticated request.
func (c *HTTPController) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrTimeout, "rate limiter wait aborted").WithCause(err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to create request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	if c.config.ServiceTokenSecret != "" {
		token, err := c.signServiceToken()
		if err != nil {
			return nil, types.NewError(types.ErrInternalError, "failed to sign service token").WithCause(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	} else if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "engine unreachable").
			WithCause(err).WithRetryable(true).WithHTTPStatus(http.StatusBadGateway)
	}
	return resp, nil
}

// doWithRetry retries retryable failures with exponential backoff.
func (c *HTTPController) doWithRetry(ctx context.Context, fn func() error) error {
	backoff := c.config.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return types.NewError(types.ErrTimeout, "request aborted").WithCause(ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
			c.logger.Warn("retrying engine request",
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !types.IsRetryable(err) {
			return err
		}
	}
	return lastErr
}

// signServiceToken creates a short-lived HS256 service token.
func (c *HTTPController) signServiceToken() (string, error) {
	ttl := c.config.ServiceTokenTTL
	if ttl <= 0 {
		ttl = DefaultConfig().ServiceTokenTTL
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    "switchboard",
		Subject:   "run-controller",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.config.ServiceTokenSecret))
}

// mapEngineError maps an engine HTTP status to a structured error with the
// appropriate retry marker.
func mapEngineError(status int, msg string) *types.Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return types.NewError(types.ErrAuthentication, msg).WithHTTPStatus(status)
	case http.StatusPaymentRequired:
		return types.NewError(types.ErrQuotaExceeded, msg).WithHTTPStatus(status)
	case http.StatusTooManyRequests:
		msgLower := strings.ToLower(msg)
		if strings.Contains(msgLower, "quota") || strings.Contains(msgLower, "credit") {
			return types.NewError(types.ErrQuotaExceeded, msg).WithHTTPStatus(status)
		}
		return types.NewError(types.ErrRateLimited, msg).WithHTTPStatus(status).WithRetryable(true)
	case http.StatusNotFound:
		return types.NewError(types.ErrNotFound, msg).WithHTTPStatus(status)
	case http.StatusBadRequest:
		return types.NewError(types.ErrInvalidArgument, msg).WithHTTPStatus(status)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return types.NewError(types.ErrUnavailable, msg).WithHTTPStatus(status).WithRetryable(true)
	default:
		e := types.NewError(types.ErrUnavailable, msg).WithHTTPStatus(status)
		if status >= 500 {
			e = e.WithRetryable(true)
		}
		return e
	}
}

// readErrorMessage extracts an error message from a response body, falling
// back to the raw text.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(body)
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return string(data)
}

// Ensure HTTPController implements Controller
var _ Controller = (*HTTPController)(nil)
