package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/gamebyte/switchboard/internal/metrics"
	"github.com/gamebyte/switchboard/types"
)

// MessageStore is the slice of the message store the coordinator needs.
type MessageStore interface {
	// AppendMessage persists a message and returns it with the canonical
	// server-assigned ID and timestamps.
	AppendMessage(ctx context.Context, conversationID string, role types.Role, content string) (*types.Message, error)
}

// RunController starts and stops streaming agent executions.
type RunController interface {
	StartRun(ctx context.Context, conversationID string, opts StartOptions) (*types.Run, error)
	// StopRun is idempotent; stopping an already-terminated run is not an error.
	StopRun(ctx context.Context, runID string) error
}

// StreamSubscriber attaches to a running execution and yields incremental
// events until a terminal event. The channel closes when the stream ends; a
// closed stream is not restartable.
type StreamSubscriber interface {
	Subscribe(ctx context.Context, runID string) (<-chan types.StreamEvent, error)
}

// StartOptions are the options passed to the run controller when starting a
// run. Settings carries the resolved generation settings after the
// preservation merge.
type StartOptions struct {
	AgentID  string                   `json:"agent_id"`
	Settings types.GenerationSettings `json:"settings"`
}

// Config tunes coordinator behavior.
type Config struct {
	// StopTimeout bounds how long a best-effort stop of the previous run may
	// block a handoff. Past the deadline the stop continues fire-and-forget.
	StopTimeout time.Duration `yaml:"stop_timeout" json:"stop_timeout"`

	// DefaultSettings seeds a fresh conversation's generation settings.
	DefaultSettings types.GenerationSettings `yaml:"default_settings" json:"default_settings"`
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		StopTimeout:     3 * time.Second,
		DefaultSettings: types.DefaultGenerationSettings(),
	}
}

// Result reports the outcome of a successful handoff. PersistWarning is set
// when the hand-off message could not be saved; the optimistic local copy is
// kept and the handoff proceeded regardless.
type Result struct {
	Run            *types.Run
	PersistWarning error
}

// Coordinator enforces the core invariant: at most one run is active per
// conversation at any time. All public methods are safe for concurrent use,
// but overlapping handoffs on the same conversation are rejected rather than
// queued.
type Coordinator struct {
	conversationID string
	store          MessageStore
	runs           RunController
	streams        StreamSubscriber
	logger         *zap.Logger
	collector      *metrics.Collector
	tokens         types.Tokenizer
	config         Config

	mu            sync.Mutex
	settings      types.GenerationSettings
	activeRun     *types.Run
	activeAgentID string
	messages      []types.Message
	inFlight      bool
	assistantIdx  int // index of the in-progress assistant message, -1 if none
	relayCancel   context.CancelFunc
	watchers      map[uint64]chan types.StreamEvent
	watcherSeq    uint64
}

// New creates a coordinator for one conversation. The collector and tokens
// arguments may be nil.
func New(conversationID string, store MessageStore, runs RunController, streams StreamSubscriber, config Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultConfig().StopTimeout
	}
	settings := config.DefaultSettings
	if settings.ModelName == "" {
		settings = types.DefaultGenerationSettings()
	}
	return &Coordinator{
		conversationID: conversationID,
		store:          store,
		runs:           runs,
		streams:        streams,
		config:         config,
		settings:       settings,
		assistantIdx:   -1,
		logger: logger.With(
			zap.String("component", "coordinator"),
			zap.String("conversation_id", conversationID),
		),
	}
}

// WithCollector attaches a metrics collector.
func (c *Coordinator) WithCollector(collector *metrics.Collector) *Coordinator {
	c.collector = collector
	return c
}

// WithTokenizer attaches a tokenizer used to measure hand-off message sizes.
func (c *Coordinator) WithTokenizer(tokens types.Tokenizer) *Coordinator {
	c.tokens = tokens
	return c
}

// ConversationID returns the conversation this coordinator owns.
func (c *Coordinator) ConversationID() string {
	return c.conversationID
}

// Settings returns a copy of the current generation settings.
func (c *Coordinator) Settings() types.GenerationSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// ActiveRun returns a copy of the active run, or nil when idle.
func (c *Coordinator) ActiveRun() *types.Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeRun == nil {
		return nil
	}
	run := *c.activeRun
	return &run
}

// ActiveAgentID returns the agent bound to the active run, or the last agent
// that spoke when idle.
func (c *Coordinator) ActiveAgentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeAgentID
}

// Messages returns a snapshot of the local message sequence in creation order.
func (c *Coordinator) Messages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// UpdateSettings merges the patch into the conversation settings. Pure local
// state mutation; takes effect on the next run start. An in-flight run is
// unaffected.
func (c *Coordinator) UpdateSettings(patch types.SettingsPatch) {
	if patch.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = c.settings.Merge(patch)
	c.logger.Debug("settings updated",
		zap.String("model", c.settings.ModelName),
		zap.Bool("thinking", c.settings.ThinkingEnabled),
		zap.String("effort", string(c.settings.ReasoningEffort)),
	)
}

// RequestHandoff ends the active agent's turn and starts the target agent on
// this conversation. Validation failures mutate nothing and issue no network
// calls. A second handoff while one is in flight is rejected with
// HANDOFF_IN_PROGRESS. A failed stop of the previous run is logged and never
// blocks the handoff; a failed message persist keeps the optimistic local
// message and still starts the new run; only a failed run start aborts, in
// which case the conversation is left idle.
func (c *Coordinator) RequestHandoff(ctx context.Context, req types.HandoffRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	target := strings.TrimSpace(req.TargetAgentID)

	tracer := otel.Tracer("switchboard/coordinator")
	ctx, span := tracer.Start(ctx, "coordinator.handoff")
	span.SetAttributes(
		attribute.String("conversation.id", c.conversationID),
		attribute.String("agent.target", target),
	)
	defer span.End()

	start := time.Now()

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		c.record("rejected", start)
		return nil, types.NewError(types.ErrHandoffInProgress, "a handoff is already in flight for this conversation").
			WithRetryable(true)
	}
	c.inFlight = true
	prev := c.activeRun
	c.activeRun = nil
	c.finalizeAssistantLocked()
	if cancel := c.relayCancel; cancel != nil {
		c.relayCancel = nil
		cancel()
	}
	settings := c.settings
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	// Step 1: stop the previous run, best effort, bounded.
	if prev.Active() {
		c.stopRun(ctx, prev.RunID)
	}

	// Step 2: optimistic local append, then persist.
	var persistWarning error
	if msg := strings.TrimSpace(req.HandoffMessage); msg != "" {
		persistWarning = c.appendHandoffMessage(ctx, msg)
	}

	// Step 3: start the target agent's run with carried-over settings.
	if req.Overrides != nil {
		settings = settings.Merge(*req.Overrides)
	}
	run, err := c.runs.StartRun(ctx, c.conversationID, StartOptions{
		AgentID:  target,
		Settings: settings,
	})
	if err != nil {
		c.logger.Error("run start failed",
			zap.String("target_agent", target),
			zap.Error(err),
		)
		c.record("start_failed", start)
		return nil, types.NewError(types.ErrRunStartFailed, "failed to switch agents").WithCause(err)
	}

	// Steps 4: rebind state and attach the stream.
	c.mu.Lock()
	c.activeRun = run
	c.activeAgentID = target
	c.mu.Unlock()

	c.attach(run)

	c.logger.Info("handoff complete",
		zap.String("target_agent", target),
		zap.String("run_id", run.RunID),
		zap.Duration("duration", time.Since(start)),
	)
	c.record("success", start)
	return &Result{Run: run, PersistWarning: persistWarning}, nil
}

// Stop requests a stop of the active run and clears it locally regardless of
// whether the stop call succeeds: local state reflects user intent, so the
// conversation never sticks in "running" after a user-initiated stop.
// Idempotent; never returns an error.
func (c *Coordinator) Stop(ctx context.Context) {
	c.mu.Lock()
	run := c.activeRun
	c.activeRun = nil
	c.finalizeAssistantLocked()
	if cancel := c.relayCancel; cancel != nil {
		c.relayCancel = nil
		cancel()
	}
	c.mu.Unlock()

	if !run.Active() {
		return
	}
	c.stopRun(ctx, run.RunID)
}

// Attach binds the coordinator to an already-running execution, for example
// a run started directly by the user rather than through a handoff. Any
// previously attached run is stopped and its relay cancelled first, keeping
// the single-active-run invariant.
func (c *Coordinator) Attach(run *types.Run) {
	if run == nil {
		return
	}
	c.mu.Lock()
	prev := c.activeRun
	if cancel := c.relayCancel; cancel != nil {
		c.relayCancel = nil
		cancel()
	}
	c.activeRun = run
	c.activeAgentID = run.AgentID
	c.finalizeAssistantLocked()
	c.mu.Unlock()

	if prev.Active() && prev.RunID != run.RunID {
		c.stopRun(context.Background(), prev.RunID)
	}
	c.attach(run)
}

// stopRun issues a bounded best-effort stop. On deadline the stop is retried
// once in the background so a slow engine cannot inflate handoff latency.
func (c *Coordinator) stopRun(ctx context.Context, runID string) {
	stopCtx, cancel := context.WithTimeout(ctx, c.config.StopTimeout)
	defer cancel()

	err := c.runs.StopRun(stopCtx, runID)
	if err == nil {
		if c.collector != nil {
			c.collector.RecordRunStop("ok")
		}
		return
	}

	c.logger.Warn("stop run failed, continuing",
		zap.String("run_id", runID),
		zap.Error(err),
	)
	if c.collector != nil {
		c.collector.RecordRunStop("failed")
	}

	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		// Fire and forget: the old run will independently terminate or be
		// orphaned server-side, but give the stop one detached attempt.
		go func() {
			bg, bgCancel := context.WithTimeout(context.Background(), c.config.StopTimeout)
			defer bgCancel()
			_ = c.runs.StopRun(bg, runID)
		}()
	}
}

// appendHandoffMessage applies the optimistic local write, then persists.
// The optimistic copy is never rolled back: visible conversation state takes
// priority over strict consistency with the backing store.
func (c *Coordinator) appendHandoffMessage(ctx context.Context, content string) error {
	local := types.NewUserMessage(c.conversationID, content)
	local.ID = uuid.New().String()

	c.mu.Lock()
	c.messages = append(c.messages, local)
	idx := len(c.messages) - 1
	c.mu.Unlock()

	if c.tokens != nil {
		c.logger.Debug("handoff message queued",
			zap.Int("tokens", c.tokens.CountTokens(content)),
		)
	}

	persisted, err := c.store.AppendMessage(ctx, c.conversationID, types.RoleUser, content)
	if err != nil {
		c.logger.Warn("handoff message persist failed, keeping optimistic copy",
			zap.String("message_id", local.ID),
			zap.Error(err),
		)
		return types.NewError(types.ErrPersistence, "hand-off message not saved").WithCause(err)
	}

	// Roll forward: adopt the canonical ID and timestamps.
	c.mu.Lock()
	if idx < len(c.messages) && c.messages[idx].ID == local.ID {
		c.messages[idx].ID = persisted.ID
		c.messages[idx].CreatedAt = persisted.CreatedAt
		c.messages[idx].UpdatedAt = persisted.UpdatedAt
	}
	c.mu.Unlock()
	return nil
}

// attach subscribes to the run's event stream and starts the relay goroutine.
// A subscribe failure leaves the run in place; events are lost until the
// caller re-attaches, which is preferable to failing a handoff whose run
// already started.
func (c *Coordinator) attach(run *types.Run) {
	relayCtx, cancel := context.WithCancel(context.Background())
	events, err := c.streams.Subscribe(relayCtx, run.RunID)
	if err != nil {
		cancel()
		c.logger.Error("stream subscribe failed",
			zap.String("run_id", run.RunID),
			zap.Error(err),
		)
		return
	}

	c.mu.Lock()
	c.relayCancel = cancel
	c.mu.Unlock()

	go c.relay(relayCtx, run.RunID, events)
}

// relay is the single dispatch point for a run's ordered event channel.
func (c *Coordinator) relay(ctx context.Context, runID string, events <-chan types.StreamEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.streamEnded(runID)
				return
			}
			c.handleEvent(ctx, runID, ev)
			if ev.Terminal() {
				return
			}
		}
	}
}

// streamEnded handles a subscriber channel that closed without a terminal
// event: a clean transport EOF or a remote close. The run's outcome is
// unknown at that point, but it must not stay "running" with nothing left
// to ever finish it.
func (c *Coordinator) streamEnded(runID string) {
	c.mu.Lock()
	if c.activeRun == nil || c.activeRun.RunID != runID {
		c.mu.Unlock()
		return
	}
	c.activeRun.Status = types.RunStopped
	c.activeRun = nil
	c.finalizeAssistantLocked()
	c.mu.Unlock()

	c.logger.Warn("stream ended without terminal event",
		zap.String("run_id", runID),
	)
}

// handleEvent maps one stream event to message mutations. Events for a run
// that is no longer the active run are dropped: a stale stream must never
// mutate state owned by its successor.
func (c *Coordinator) handleEvent(ctx context.Context, runID string, ev types.StreamEvent) {
	if c.collector != nil {
		c.collector.RecordStreamEvent(string(ev.Type))
	}

	c.mu.Lock()
	if c.activeRun == nil || c.activeRun.RunID != runID {
		c.mu.Unlock()
		return
	}
	c.broadcastLocked(ev)

	switch ev.Type {
	case types.EventTextDelta:
		if c.assistantIdx < 0 {
			msg := types.NewAssistantMessage(c.conversationID, ev.Delta)
			msg.ID = uuid.New().String()
			msg.AgentID = c.activeAgentID
			c.messages = append(c.messages, msg)
			c.assistantIdx = len(c.messages) - 1
		} else {
			c.messages[c.assistantIdx].AppendContent(ev.Delta)
		}
		c.mu.Unlock()

	case types.EventToolEvent:
		if ev.Tool != nil && ev.Tool.Name == AgentCallToolName {
			// A handoff tool call always ends the originating run's turn.
			c.activeRun.Status = types.RunStopped
			c.activeRun = nil
			c.finalizeAssistantLocked()
			c.mu.Unlock()

			req, err := ParseAgentCall(ev.Tool.Arguments)
			if err != nil {
				c.logger.Error("bad agent_call arguments", zap.Error(err))
				return
			}
			go func() {
				if _, err := c.RequestHandoff(context.WithoutCancel(ctx), req); err != nil {
					c.logger.Error("tool-initiated handoff failed",
						zap.String("target_agent", req.TargetAgentID),
						zap.Error(err),
					)
				}
			}()
			return
		}
		// Other tools render as tool messages in the sequence.
		if ev.Tool != nil {
			msg := types.NewMessage(c.conversationID, types.RoleTool, string(ev.Tool.Arguments))
			msg.ID = uuid.New().String()
			msg.AgentID = c.activeAgentID
			c.messages = append(c.messages, msg)
		}
		c.mu.Unlock()

	case types.EventStatusChange:
		if ev.Status != nil && c.activeRun.Status.CanTransition(ev.Status.Status) {
			c.activeRun.Status = ev.Status.Status
		}
		if c.activeRun.Status.Terminal() {
			c.activeRun = nil
			c.finalizeAssistantLocked()
		}
		c.mu.Unlock()

	case types.EventError:
		c.activeRun.Status = types.RunFailed
		c.activeRun = nil
		c.finalizeAssistantLocked()
		c.mu.Unlock()
		if ev.Err != nil {
			c.logger.Error("stream error", zap.Error(ev.Err))
		}

	default:
		c.mu.Unlock()
	}
}

// finalizeAssistantLocked seals the in-progress assistant message. Caller
// holds c.mu.
func (c *Coordinator) finalizeAssistantLocked() {
	c.assistantIdx = -1
}

func (c *Coordinator) record(status string, start time.Time) {
	if c.collector != nil {
		c.collector.RecordHandoff(status, time.Since(start))
	}
}
