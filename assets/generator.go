package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gamebyte/switchboard/types"
)

// Config tunes the asset generator client.
type Config struct {
	// BaseURL is the image service's API root.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIKey authenticates to the image service.
	APIKey string `json:"api_key" yaml:"api_key"`

	// Timeout bounds a synchronous generation request. Batches that the
	// service cannot complete inside it come back as an async workflow.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the default generator configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:9090",
		Timeout: 60 * time.Second,
	}
}

// Generator turns validated generate_asset requests into assets by calling
// the image service.
type Generator struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewGenerator creates an asset generator client.
func NewGenerator(config Config, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Generator{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With(zap.String("component", "asset_generator")),
	}
}

type generateResponse struct {
	Files      []AssetFile `json:"files,omitempty"`
	WorkflowID string      `json:"workflow_id,omitempty"`
	Expected   int         `json:"expected,omitempty"`
	Error      struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate submits a generation request. Invalid requests return an error;
// every other outcome, including service failure, is one of the Result
// variants so the caller always has a tool output to render.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (Result, error) {
	req = req.withDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	g.logger.Info("generating visual assets",
		zap.Int("count", req.NumberOfImages),
		zap.String("aspect_ratio", req.AspectRatio),
	)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to encode generation request").WithCause(err)
	}

	url := strings.TrimRight(g.config.BaseURL, "/") + "/v1/assets/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to create generation request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.config.APIKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger.Error("asset generation request failed", zap.Error(err))
		return Failed{Reason: "image service unreachable", Err: err}, nil
	}
	defer resp.Body.Close()

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil && resp.StatusCode < 400 {
		return Failed{Reason: "malformed image service response", Err: err}, nil
	}

	switch {
	case resp.StatusCode == http.StatusAccepted:
		if gr.WorkflowID == "" {
			return Failed{Reason: "image service accepted the job without a workflow id"}, nil
		}
		return AsyncWorkflowStarted{WorkflowID: gr.WorkflowID, Expected: req.NumberOfImages}, nil

	case resp.StatusCode >= 400:
		reason := gr.Error.Message
		if reason == "" {
			reason = fmt.Sprintf("image service returned status %d", resp.StatusCode)
		}
		g.logger.Error("asset generation rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("reason", reason),
		)
		return Failed{Reason: reason}, nil

	default:
		if len(gr.Files) == 0 {
			return Failed{Reason: "no visual assets were generated"}, nil
		}
		if len(gr.Files) != req.NumberOfImages {
			g.logger.Warn("asset count mismatch",
				zap.Int("expected", req.NumberOfImages),
				zap.Int("got", len(gr.Files)),
			)
		}
		return ImmediateResult{Files: gr.Files}, nil
	}
}
