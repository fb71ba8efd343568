package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestGenerationSettings_Merge(t *testing.T) {
	base := GenerationSettings{
		ModelName:       "gpt-4o",
		ThinkingEnabled: false,
		ReasoningEffort: EffortMedium,
	}

	t.Run("empty patch changes nothing", func(t *testing.T) {
		assert.Equal(t, base, base.Merge(SettingsPatch{}))
	})

	t.Run("partial patch only touches set fields", func(t *testing.T) {
		got := base.Merge(SettingsPatch{ThinkingEnabled: ptr(true)})
		assert.Equal(t, "gpt-4o", got.ModelName)
		assert.True(t, got.ThinkingEnabled)
		assert.Equal(t, EffortMedium, got.ReasoningEffort)
	})

	t.Run("full patch replaces everything", func(t *testing.T) {
		got := base.Merge(SettingsPatch{
			ModelName:       ptr("claude-sonnet"),
			ThinkingEnabled: ptr(true),
			ReasoningEffort: ptr(EffortHigh),
		})
		assert.Equal(t, GenerationSettings{
			ModelName:       "claude-sonnet",
			ThinkingEnabled: true,
			ReasoningEffort: EffortHigh,
		}, got)
	})

	t.Run("receiver is not mutated", func(t *testing.T) {
		_ = base.Merge(SettingsPatch{ModelName: ptr("other")})
		assert.Equal(t, "gpt-4o", base.ModelName)
	})
}

func TestHandoffRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		wantErr bool
	}{
		{"valid", "agent-b", false},
		{"empty", "", true},
		{"whitespace only", "   \t\n", true},
		{"padded is fine", "  agent-b  ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := HandoffRequest{TargetAgentID: tt.target}.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, ErrInvalidArgument, GetErrorCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReasoningEffort_Valid(t *testing.T) {
	assert.True(t, EffortLow.Valid())
	assert.True(t, EffortHigh.Valid())
	assert.False(t, ReasoningEffort("extreme").Valid())
}
