package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gamebyte/switchboard/api"
	"github.com/gamebyte/switchboard/coordinator"
	"github.com/gamebyte/switchboard/store"
	"github.com/gamebyte/switchboard/types"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200

	// eventWatchBuffer bounds per-client event backlog; a stalled client
	// drops events rather than stalling the relay.
	eventWatchBuffer = 64
)

/// ConversationHandler serves the conversation surface: handoffs, stops,
// settings, state, and message history.
type ConversationHandler struct {
	manager *coordinator.Manager
	store   store.ConversationStore
	logger  *zap.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(manager *coordinator.Manager, st store.ConversationStore, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{
		manager: manager,
		store:   st,
		logger:  logger.With(zap.String("component", "conversation_handler")),
	}
}

// conversationID pulls the {id} path value and rejects blanks.
func (h *ConversationHandler) conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidArgument, "conversation id must not be empty"), h.logger)
		return "", false
	}
	return id, true
}

// HandleHandoff handles POST /v1/conversations/{id}/handoff.
func (h *ConversationHandler) HandleHandoff(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.HandoffRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	ctx := types.WithConversationID(r.Context(), id)
	result, err := h.manager.Get(id).RequestHandoff(ctx, types.HandoffRequest{
		TargetAgentID:  req.TargetAgentID,
		HandoffMessage: req.HandoffMessage,
		Overrides:      req.Overrides,
	})
	if err != nil {
		WriteAnyError(w, r, err, h.logger)
		return
	}

	resp := api.HandoffResponse{Run: result.Run}
	if result.PersistWarning != nil {
		resp.PersistWarning = result.PersistWarning.Error()
	}
	WriteSuccess(w, r, resp)
}

// HandleStop handles POST /v1/conversations/{id}/stop. Stopping an idle
// conversation is a no-op, never an error.
func (h *ConversationHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	if c, exists := h.manager.Lookup(id); exists {
		c.Stop(r.Context())
	}

	WriteSuccess(w, r, api.StopResponse{
		ConversationID: id,
		StoppedAt:      time.Now(),
	})
}

// HandleSettings handles PATCH /v1/conversations/{id}/settings. The patch
// only touches local conversation state; a running turn is unaffected.
func (h *ConversationHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.SettingsRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.ReasoningEffort != nil && !req.ReasoningEffort.Valid() {
		WriteError(w, r, types.Errorf(types.ErrInvalidArgument, "unknown reasoning effort %q", *req.ReasoningEffort), h.logger)
		return
	}

	c := h.manager.Get(id)
	c.UpdateSettings(req.Patch())
	WriteSuccess(w, r, c.Settings())
}

// HandleGetSettings handles GET /v1/conversations/{id}/settings.
func (h *ConversationHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	c, exists := h.manager.Lookup(id)
	if !exists {
		WriteError(w, r, types.Errorf(types.ErrNotFound, "conversation %s not found", id), h.logger)
		return
	}
	WriteSuccess(w, r, c.Settings())
}

// HandleEvents handles GET /v1/conversations/{id}/events: a server-sent event
// stream of the conversation's run events, across handoffs, until the client
// disconnects.
func (h *ConversationHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		WriteError(w, r, types.NewError(types.ErrInternalError, "streaming unsupported by connection"), h.logger)
		return
	}

	events, cancel := h.manager.Get(id).Watch(eventWatchBuffer)
	defer cancel()

	// The server's WriteTimeout would sever the stream mid-conversation;
	// lift the deadline for this response only.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("write deadline not adjustable", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			// SSE comment line keeps intermediaries from closing the stream.
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("failed to encode stream event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// HandleState handles GET /v1/conversations/{id}.
func (h *ConversationHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	c, exists := h.manager.Lookup(id)
	if !exists {
		WriteError(w, r, types.Errorf(types.ErrNotFound, "conversation %s not found", id), h.logger)
		return
	}

	WriteSuccess(w, r, api.ConversationState{
		ConversationID: id,
		ActiveRun:      c.ActiveRun(),
		ActiveAgentID:  c.ActiveAgentID(),
		Settings:       c.Settings(),
		MessageCount:   len(c.Messages()),
	})
}

// HandleMessages handles GET /v1/conversations/{id}/messages with cursor
// pagination over the persisted history.
func (h *ConversationHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	limit := defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, r, types.Errorf(types.ErrInvalidArgument, "invalid limit %q", raw), h.logger)
			return
		}
		if n > maxPageLimit {
			n = maxPageLimit
		}
		limit = n
	}
	cursor := r.URL.Query().Get("cursor")

	messages, next, err := h.store.ListMessages(r.Context(), id, cursor, limit)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrPersistence, "failed to list messages").WithCause(err), h.logger)
		return
	}

	WriteSuccess(w, r, api.MessagesResponse{Messages: messages, NextCursor: next})
}

// HandleDelete handles DELETE /v1/conversations/{id}. The active run is
// stopped, the coordinator dropped, and the persisted history removed.
func (h *ConversationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}

	h.manager.Remove(id)

	removed, err := h.store.DeleteConversation(r.Context(), id)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrPersistence, "failed to delete conversation").WithCause(err), h.logger)
		return
	}

	h.logger.Info("conversation deleted",
		zap.String("conversation_id", id),
		zap.Int("removed", removed),
	)
	WriteSuccess(w, r, api.DeleteResponse{ConversationID: id, Removed: removed})
}
