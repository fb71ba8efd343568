package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gamebyte/switchboard/types"
)

// mockStore implements MessageStore with a function callback.
type mockStore struct {
	mu       sync.Mutex
	appended []types.Message
	appendFn func(ctx context.Context, conversationID string, role types.Role, content string) (*types.Message, error)
}

func (m *mockStore) AppendMessage(ctx context.Context, conversationID string, role types.Role, content string) (*types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendFn != nil {
		msg, err := m.appendFn(ctx, conversationID, role, content)
		if err != nil {
			return nil, err
		}
		m.appended = append(m.appended, *msg)
		return msg, nil
	}
	msg := types.NewMessage(conversationID, role, content)
	msg.ID = "srv-" + content
	m.appended = append(m.appended, msg)
	return &msg, nil
}

func (m *mockStore) calls() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Message, len(m.appended))
	copy(out, m.appended)
	return out
}

type startCall struct {
	conversationID string
	opts           StartOptions
}

// mockRuns implements RunController with function callbacks.
type mockRuns struct {
	mu         sync.Mutex
	startCalls []startCall
	stopCalls  []string
	startFn    func(ctx context.Context, conversationID string, opts StartOptions) (*types.Run, error)
	stopFn     func(ctx context.Context, runID string) error
	nextRunID  int
}

func (m *mockRuns) StartRun(ctx context.Context, conversationID string, opts StartOptions) (*types.Run, error) {
	m.mu.Lock()
	m.startCalls = append(m.startCalls, startCall{conversationID: conversationID, opts: opts})
	fn := m.startFn
	m.nextRunID++
	id := m.nextRunID
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, conversationID, opts)
	}
	return &types.Run{
		RunID:          runID(id),
		ConversationID: conversationID,
		AgentID:        opts.AgentID,
		Status:         types.RunRunning,
	}, nil
}

func (m *mockRuns) StopRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	m.stopCalls = append(m.stopCalls, runID)
	fn := m.stopFn
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, runID)
	}
	return nil
}

func (m *mockRuns) starts() []startCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]startCall, len(m.startCalls))
	copy(out, m.startCalls)
	return out
}

func (m *mockRuns) stops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.stopCalls))
	copy(out, m.stopCalls)
	return out
}

func runID(n int) string {
	return "run-" + string(rune('0'+n))
}

// mockStreams implements StreamSubscriber. By default it hands out an open
// channel the test controls.
type mockStreams struct {
	mu          sync.Mutex
	subscribeFn func(ctx context.Context, runID string) (<-chan types.StreamEvent, error)
	channels    map[string]chan types.StreamEvent
}

func newMockStreams() *mockStreams {
	return &mockStreams{channels: make(map[string]chan types.StreamEvent)}
}

func (m *mockStreams) Subscribe(ctx context.Context, runID string) (<-chan types.StreamEvent, error) {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, runID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan types.StreamEvent, 16)
	m.channels[runID] = ch
	return ch, nil
}

func (m *mockStreams) channel(runID string) chan types.StreamEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[runID]
}

func newTestCoordinator(t *testing.T) (*Coordinator, *mockStore, *mockRuns, *mockStreams) {
	t.Helper()
	store := &mockStore{}
	runs := &mockRuns{}
	streams := newMockStreams()
	c := New("conv-1", store, runs, streams, DefaultConfig(), zap.NewNop())
	return c, store, runs, streams
}

func TestRequestHandoff_InvalidTarget(t *testing.T) {
	for _, target := range []string{"", "   ", "\t\n"} {
		c, store, runs, _ := newTestCoordinator(t)

		_, err := c.RequestHandoff(context.Background(), types.HandoffRequest{
			TargetAgentID:  target,
			HandoffMessage: "ignored",
		})

		require.Error(t, err)
		assert.Equal(t, types.ErrInvalidArgument, types.GetErrorCode(err))
		// No side effects at all: no collaborator calls, no state mutated.
		assert.Empty(t, store.calls())
		assert.Empty(t, runs.starts())
		assert.Empty(t, runs.stops())
		assert.Empty(t, c.Messages())
		assert.Nil(t, c.ActiveRun())
	}
}

func TestRequestHandoff_Success(t *testing.T) {
	c, _, runs, _ := newTestCoordinator(t)

	res, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "agent-b"})
	require.NoError(t, err)
	require.NotNil(t, res.Run)
	assert.NoError(t, res.PersistWarning)

	active := c.ActiveRun()
	require.NotNil(t, active)
	assert.Equal(t, "agent-b", active.AgentID)
	assert.Equal(t, "agent-b", c.ActiveAgentID())
	assert.Len(t, runs.starts(), 1)
	assert.Empty(t, runs.stops(), "no previous run to stop")
}

func TestRequestHandoff_TrimsTarget(t *testing.T) {
	c, _, runs, _ := newTestCoordinator(t)

	_, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "  agent-b  "})
	require.NoError(t, err)
	assert.Equal(t, "agent-b", runs.starts()[0].opts.AgentID)
	assert.Equal(t, "agent-b", c.ActiveAgentID())
}

func TestRequestHandoff_SettingsRoundTrip(t *testing.T) {
	c, _, runs, _ := newTestCoordinator(t)

	c.UpdateSettings(types.SettingsPatch{
		ThinkingEnabled: ptr(true),
		ReasoningEffort: ptr(types.EffortHigh),
	})

	_, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "agent-b"})
	require.NoError(t, err)

	got := runs.starts()[0].opts.Settings
	assert.True(t, got.ThinkingEnabled)
	assert.Equal(t, types.EffortHigh, got.ReasoningEffort)
	assert.Equal(t, types.DefaultGenerationSettings().ModelName, got.ModelName)

	// Handoff never mutates user preferences, only propagates them.
	after := c.Settings()
	assert.True(t, after.ThinkingEnabled)
	assert.Equal(t, types.EffortHigh, after.ReasoningEffort)
}

func TestRequestHandoff_PerCallOverridesWin(t *testing.T) {
	c, _, runs, _ := newTestCoordinator(t)

	c.UpdateSettings(types.SettingsPatch{ReasoningEffort: ptr(types.EffortLow)})

	_, err := c.RequestHandoff(context.Background(), types.HandoffRequest{
		TargetAgentID: "agent-b",
		Overrides:     &types.SettingsPatch{ReasoningEffort: ptr(types.EffortHigh)},
	})
	require.NoError(t, err)

	assert.Equal(t, types.EffortHigh, runs.starts()[0].opts.Settings.ReasoningEffort)
	// The override applies to the started run only; conversation settings keep
	// the user's choice.
	assert.Equal(t, types.EffortLow, c.Settings().ReasoningEffort)
}

func TestRequestHandoff_MessageOrdering(t *testing.T) {
	c, _, _, streams := newTestCoordinator(t)

	// Seed [m1, m2] via a prior run's stream.
	res, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "writer"})
	require.NoError(t, err)
	ch := streams.channel(res.Run.RunID)
	require.NotNil(t, ch)
	ch <- types.TextDeltaEvent(res.Run.RunID, "m1 text")
	waitFor(t, func() bool { return len(c.Messages()) == 1 })

	_, err = c.RequestHandoff(context.Background(), types.HandoffRequest{
		TargetAgentID:  "agent-b",
		HandoffMessage: "please continue",
	})
	require.NoError(t, err)

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleAssistant, msgs[0].Role)
	assert.Equal(t, types.RoleUser, msgs[1].Role)
	assert.Equal(t, "please continue", msgs[1].Content)
}

func TestRequestHandoff_PersistenceFailureIsolation(t *testing.T) {
	c, store, runs, _ := newTestCoordinator(t)
	store.appendFn = func(context.Context, string, types.Role, string) (*types.Message, error) {
		return nil, errors.New("db down")
	}

	res, err := c.RequestHandoff(context.Background(), types.HandoffRequest{
		TargetAgentID:  "agent-b",
		HandoffMessage: "carry on",
	})

	// Persistence failure is not fatal: the handoff proceeds and the
	// optimistic message stays visible.
	require.NoError(t, err)
	require.Error(t, res.PersistWarning)
	assert.Equal(t, types.ErrPersistence, types.GetErrorCode(res.PersistWarning))

	msgs := c.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "carry on", msgs[0].Content)
	assert.Len(t, runs.starts(), 1)
	require.NotNil(t, c.ActiveRun())
}

func TestRequestHandoff_StopFailureNeverBlocks(t *testing.T) {
	c, _, runs, _ := newTestCoordinator(t)
	runs.stopFn = func(context.Context, string) error {
		return errors.New("engine unreachable")
	}

	_, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "writer"})
	require.NoError(t, err)

	_, err = c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "artist"})
	require.NoError(t, err)

	assert.Len(t, runs.stops(), 1, "stop attempted for the previous run")
	active := c.ActiveRun()
	require.NotNil(t, active)
	assert.Equal(t, "artist", active.AgentID)
}

func TestRequestHandoff_RunStartFailed(t *testing.T) {
	c, _, runs, _ := newTestCoordinator(t)
	runs.startFn = func(context.Context, string, StartOptions) (*types.Run, error) {
		return nil, types.NewError(types.ErrQuotaExceeded, "quota exhausted")
	}

	_, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "agent-b"})

	require.Error(t, err)
	assert.Equal(t, types.ErrRunStartFailed, types.GetErrorCode(err))
	assert.True(t, types.IsCode(errors.Unwrap(err.(*types.Error)), types.ErrQuotaExceeded))
	// Conversation is left idle; no automatic retry.
	assert.Nil(t, c.ActiveRun())
	assert.Len(t, runs.starts(), 1)
}

func TestStop_Idempotent(t *testing.T) {
	c, _, runs, _ := newTestCoordinator(t)

	// Stop with no active run: no-op, no panic, no network.
	c.Stop(context.Background())
	c.Stop(context.Background())
	assert.Empty(t, runs.stops())
	assert.Nil(t, c.ActiveRun())

	_, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "agent-b"})
	require.NoError(t, err)

	c.Stop(context.Background())
	assert.Nil(t, c.ActiveRun())
	c.Stop(context.Background())
	assert.Nil(t, c.ActiveRun())
	assert.Len(t, runs.stops(), 1)
}

func TestStop_ClearsStateEvenWhenStopCallFails(t *testing.T) {
	c, _, runs, _ := newTestCoordinator(t)
	runs.stopFn = func(context.Context, string) error {
		return errors.New("network gone")
	}

	_, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "agent-b"})
	require.NoError(t, err)

	// Local state reflects user intent even when the stop call fails.
	c.Stop(context.Background())
	assert.Nil(t, c.ActiveRun())
}

func TestRequestHandoff_ConcurrentRejection(t *testing.T) {
	c, _, runs, _ := newTestCoordinator(t)

	startEntered := make(chan struct{})
	release := make(chan struct{})
	runs.startFn = func(_ context.Context, conversationID string, opts StartOptions) (*types.Run, error) {
		close(startEntered)
		<-release
		return &types.Run{
			RunID:          "run-slow",
			ConversationID: conversationID,
			AgentID:        opts.AgentID,
			Status:         types.RunRunning,
		}, nil
	}

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "agent-b"})
		firstDone <- err
	}()

	<-startEntered

	// Second handoff while the first's StartRun is pending.
	_, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "agent-c"})
	require.Error(t, err)
	assert.Equal(t, types.ErrHandoffInProgress, types.GetErrorCode(err))

	close(release)
	require.NoError(t, <-firstDone)

	// The first handoff still completes normally.
	active := c.ActiveRun()
	require.NotNil(t, active)
	assert.Equal(t, "agent-b", active.AgentID)
}

func TestRequestHandoff_EndToEnd(t *testing.T) {
	c, store, runs, _ := newTestCoordinator(t)

	c.Attach(&types.Run{
		RunID:          "R1",
		ConversationID: "conv-1",
		AgentID:        "writer",
		Status:         types.RunRunning,
	})
	require.NotNil(t, c.ActiveRun())

	res, err := c.RequestHandoff(context.Background(), types.HandoffRequest{
		TargetAgentID:  "artist",
		HandoffMessage: "please draw this",
	})
	require.NoError(t, err)

	// Old run stopped.
	assert.Equal(t, []string{"R1"}, runs.stops())

	// Hand-off message persisted with role user.
	persisted := store.calls()
	require.Len(t, persisted, 1)
	assert.Equal(t, types.RoleUser, persisted[0].Role)
	assert.Equal(t, "please draw this", persisted[0].Content)

	// New run started with current settings for the target agent.
	starts := runs.starts()
	require.Len(t, starts, 1)
	assert.Equal(t, "conv-1", starts[0].conversationID)
	assert.Equal(t, "artist", starts[0].opts.AgentID)
	assert.Equal(t, c.Settings(), starts[0].opts.Settings)

	// Rebound to the new run under the new agent identity.
	active := c.ActiveRun()
	require.NotNil(t, active)
	assert.Equal(t, res.Run.RunID, active.RunID)
	assert.NotEqual(t, "R1", active.RunID)
	assert.Equal(t, "artist", c.ActiveAgentID())
}

func TestRelay_TextDeltasBuildAssistantMessage(t *testing.T) {
	c, _, _, streams := newTestCoordinator(t)

	res, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "agent-b"})
	require.NoError(t, err)
	ch := streams.channel(res.Run.RunID)
	require.NotNil(t, ch)

	ch <- types.TextDeltaEvent(res.Run.RunID, "Hello")
	ch <- types.TextDeltaEvent(res.Run.RunID, ", world")
	waitFor(t, func() bool {
		msgs := c.Messages()
		return len(msgs) == 1 && msgs[0].Content == "Hello, world"
	})

	msgs := c.Messages()
	assert.Equal(t, types.RoleAssistant, msgs[0].Role)
	assert.Equal(t, "agent-b", msgs[0].AgentID)

	// Completion finalizes the message and clears the active run.
	ch <- types.StatusChangeEvent(res.Run.RunID, types.RunCompleted)
	waitFor(t, func() bool { return c.ActiveRun() == nil })
}

func TestRelay_AgentCallToolTriggersHandoff(t *testing.T) {
	c, store, runs, streams := newTestCoordinator(t)

	res, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "writer"})
	require.NoError(t, err)
	ch := streams.channel(res.Run.RunID)
	require.NotNil(t, ch)

	args, _ := json.Marshal(AgentCallArgs{AgentName: "artist", Message: "draw it"})
	ch <- types.ToolInvokedEvent(res.Run.RunID, AgentCallToolName, args)

	waitFor(t, func() bool {
		active := c.ActiveRun()
		return active != nil && active.AgentID == "artist"
	})

	// The handoff message travelled through the normal path.
	persisted := store.calls()
	require.Len(t, persisted, 1)
	assert.Equal(t, "draw it", persisted[0].Content)
	assert.Len(t, runs.starts(), 2)
	// The originating run ended its turn locally; no network stop was needed
	// for a run the engine already considers finished.
	assert.Empty(t, runs.stops())
}

func TestRelay_StaleStreamEventsDropped(t *testing.T) {
	c, _, _, streams := newTestCoordinator(t)

	first, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "writer"})
	require.NoError(t, err)
	oldCh := streams.channel(first.Run.RunID)

	_, err = c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "artist"})
	require.NoError(t, err)

	// Events from the replaced run must not mutate the new state.
	select {
	case oldCh <- types.TextDeltaEvent(first.Run.RunID, "stale"):
	default:
		// Relay already cancelled; nothing to deliver, which is fine too.
	}
	time.Sleep(20 * time.Millisecond)
	for _, msg := range c.Messages() {
		assert.NotEqual(t, "stale", msg.Content)
	}
}

func TestUpdateSettings_NoNetworkEffect(t *testing.T) {
	c, store, runs, _ := newTestCoordinator(t)

	c.UpdateSettings(types.SettingsPatch{ModelName: ptr("claude-sonnet")})
	c.UpdateSettings(types.SettingsPatch{})

	assert.Empty(t, store.calls())
	assert.Empty(t, runs.starts())
	assert.Empty(t, runs.stops())
	assert.Equal(t, "claude-sonnet", c.Settings().ModelName)
}

func TestManager_OneCoordinatorPerConversation(t *testing.T) {
	store := &mockStore{}
	runs := &mockRuns{}
	streams := newMockStreams()
	mgr := NewManager(store, runs, streams, DefaultConfig(), zap.NewNop())

	a := mgr.Get("conv-a")
	b := mgr.Get("conv-b")
	assert.NotSame(t, a, b)
	assert.Same(t, a, mgr.Get("conv-a"))
	assert.Equal(t, 2, mgr.Len())

	_, ok := mgr.Lookup("conv-a")
	assert.True(t, ok)

	mgr.Remove("conv-a")
	_, ok = mgr.Lookup("conv-a")
	assert.False(t, ok)
	assert.Equal(t, 1, mgr.Len())
}

func ptr[T any](v T) *T { return &v }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRelay_StreamCloseWithoutTerminalClearsRun(t *testing.T) {
	c, _, _, streams := newTestCoordinator(t)

	res, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "writer"})
	require.NoError(t, err)
	ch := streams.channel(res.Run.RunID)
	require.NotNil(t, ch)

	ch <- types.TextDeltaEvent(res.Run.RunID, "partial")
	waitFor(t, func() bool { return len(c.Messages()) == 1 })

	// Transport EOF with no terminal event: the run must not stay active
	// with nothing left to finish it.
	close(ch)
	waitFor(t, func() bool { return c.ActiveRun() == nil })

	// The conversation is usable again.
	_, err = c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "artist"})
	require.NoError(t, err)
}

func TestAttach_ReplacesExistingRun(t *testing.T) {
	c, _, runs, streams := newTestCoordinator(t)

	first, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: "writer"})
	require.NoError(t, err)
	oldCh := streams.channel(first.Run.RunID)
	require.NotNil(t, oldCh)

	external := &types.Run{
		RunID:          "run-external",
		ConversationID: c.ConversationID(),
		AgentID:        "director",
		Status:         types.RunRunning,
	}
	c.Attach(external)

	active := c.ActiveRun()
	require.NotNil(t, active)
	assert.Equal(t, "run-external", active.RunID)
	assert.Equal(t, "director", c.ActiveAgentID())
	assert.Contains(t, runs.stops(), first.Run.RunID)

	// The replaced run's relay is cancelled; its events must not land.
	select {
	case oldCh <- types.TextDeltaEvent(first.Run.RunID, "stale"):
	default:
	}
	time.Sleep(20 * time.Millisecond)
	for _, msg := range c.Messages() {
		assert.NotEqual(t, "stale", msg.Content)
	}
}
