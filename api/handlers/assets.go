package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gamebyte/switchboard/assets"
	"github.com/gamebyte/switchboard/types"
)

// AssetHandler exposes visual asset generation over HTTP.
type AssetHandler struct {
	generator *assets.Generator
	logger    *zap.Logger
}

// NewAssetHandler creates an asset handler.
func NewAssetHandler(generator *assets.Generator, logger *zap.Logger) *AssetHandler {
	return &AssetHandler{
		generator: generator,
		logger:    logger.With(zap.String("component", "asset_handler")),
	}
}

// AssetResponse reports the outcome of a generation request. Exactly one of
// Files and WorkflowID is populated on success; Status distinguishes the
// variants.
type AssetResponse struct {
	Status     string             `json:"status"` // "completed", "accepted", "failed"
	Files      []assets.AssetFile `json:"files,omitempty"`
	WorkflowID string             `json:"workflow_id,omitempty"`
	Expected   int                `json:"expected,omitempty"`
	Summary    string             `json:"summary"`
}

// HandleGenerate handles POST /v1/assets/generate. Generation service
// failures are reported in the response body, mirroring how the tool surfaces
// them to agents; only invalid requests are HTTP errors.
func (h *AssetHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req assets.GenerateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	result, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		WriteAnyError(w, r, err, h.logger)
		return
	}

	switch res := result.(type) {
	case assets.ImmediateResult:
		WriteSuccess(w, r, AssetResponse{
			Status:  "completed",
			Files:   res.Files,
			Summary: res.Summary(),
		})
	case assets.AsyncWorkflowStarted:
		WriteJSON(w, http.StatusAccepted, Response{
			Success: true,
			Data: AssetResponse{
				Status:     "accepted",
				WorkflowID: res.WorkflowID,
				Expected:   res.Expected,
				Summary:    res.Summary(),
			},
			Timestamp: time.Now(),
		})
	case assets.Failed:
		h.logger.Warn("asset generation failed",
			zap.String("reason", res.Reason),
			zap.Error(res.Err),
		)
		WriteSuccess(w, r, AssetResponse{
			Status:  "failed",
			Summary: res.Summary(),
		})
	default:
		WriteError(w, r, types.NewError(types.ErrInternalError, "unknown generation result"), h.logger)
	}
}
