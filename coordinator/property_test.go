package coordinator

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/gamebyte/switchboard/types"
)

// Any interleaving of settings patches followed by a handoff must start the
// run with exactly the merged settings, and must leave the conversation
// settings equal to what the user chose.
func TestHandoffSettingsPropagation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := &mockStore{}
		runs := &mockRuns{}
		c := New("conv-prop", store, runs, newMockStreams(), DefaultConfig(), zap.NewNop())

		want := types.DefaultGenerationSettings()
		patchCount := rapid.IntRange(0, 8).Draw(t, "patches")
		for i := 0; i < patchCount; i++ {
			var patch types.SettingsPatch
			if rapid.Bool().Draw(t, "setModel") {
				m := rapid.SampledFrom([]string{"gpt-4o", "gpt-4o-mini", "claude-sonnet", "o3"}).Draw(t, "model")
				patch.ModelName = &m
			}
			if rapid.Bool().Draw(t, "setThinking") {
				b := rapid.Bool().Draw(t, "thinking")
				patch.ThinkingEnabled = &b
			}
			if rapid.Bool().Draw(t, "setEffort") {
				e := rapid.SampledFrom([]types.ReasoningEffort{
					types.EffortLow, types.EffortMedium, types.EffortHigh,
				}).Draw(t, "effort")
				patch.ReasoningEffort = &e
			}
			c.UpdateSettings(patch)
			want = want.Merge(patch)
		}

		target := rapid.SampledFrom([]string{"writer", "artist", "planner"}).Draw(t, "target")
		_, err := c.RequestHandoff(context.Background(), types.HandoffRequest{TargetAgentID: target})
		if err != nil {
			t.Fatalf("handoff: %v", err)
		}

		starts := runs.starts()
		if len(starts) != 1 {
			t.Fatalf("expected 1 run start, got %d", len(starts))
		}
		if starts[0].opts.Settings != want {
			t.Fatalf("started with %+v, want %+v", starts[0].opts.Settings, want)
		}
		if c.Settings() != want {
			t.Fatalf("conversation settings mutated: %+v, want %+v", c.Settings(), want)
		}
	})
}

// Sequential handoffs always keep at most one active run, stop every run they
// replace, and append hand-off messages in call order.
func TestSequentialHandoffInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := &mockStore{}
		runs := &mockRuns{}
		c := New("conv-prop", store, runs, newMockStreams(), DefaultConfig(), zap.NewNop())

		n := rapid.IntRange(1, 6).Draw(t, "handoffs")
		var wantContents []string
		var prevRunID string
		var wantStops []string
		for i := 0; i < n; i++ {
			req := types.HandoffRequest{
				TargetAgentID: rapid.SampledFrom([]string{"a", "b", "c"}).Draw(t, "target"),
			}
			if rapid.Bool().Draw(t, "withMessage") {
				req.HandoffMessage = rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "message")
				wantContents = append(wantContents, req.HandoffMessage)
			}
			if prevRunID != "" {
				wantStops = append(wantStops, prevRunID)
			}
			res, err := c.RequestHandoff(context.Background(), req)
			if err != nil {
				t.Fatalf("handoff %d: %v", i, err)
			}
			prevRunID = res.Run.RunID
		}

		active := c.ActiveRun()
		if active == nil {
			t.Fatal("no active run after handoffs")
		}
		if active.RunID != prevRunID {
			t.Fatalf("active run %s, want %s", active.RunID, prevRunID)
		}

		stops := runs.stops()
		if len(stops) != len(wantStops) {
			t.Fatalf("stops %v, want %v", stops, wantStops)
		}
		for i := range stops {
			if stops[i] != wantStops[i] {
				t.Fatalf("stops %v, want %v", stops, wantStops)
			}
		}

		var gotContents []string
		for _, m := range c.Messages() {
			if m.Role == types.RoleUser {
				gotContents = append(gotContents, m.Content)
			}
		}
		if len(gotContents) != len(wantContents) {
			t.Fatalf("messages %v, want %v", gotContents, wantContents)
		}
		for i := range gotContents {
			if gotContents[i] != wantContents[i] {
				t.Fatalf("messages %v, want %v", gotContents, wantContents)
			}
		}
	})
}
