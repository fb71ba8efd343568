package store

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gamebyte/switchboard/internal/metrics"
	"github.com/gamebyte/switchboard/types"
)

func TestInstrumentedStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegisterer("switchboard_test", reg, zap.NewNop())

	s := Instrument(NewMemoryStore(), TypeMemory, collector)
	defer s.Close()
	ctx := context.Background()

	msg, err := s.AppendMessage(ctx, "conv-1", types.RoleUser, "hello")
	require.NoError(t, err)

	_, _, err = s.ListMessages(ctx, "conv-1", "", 10)
	require.NoError(t, err)

	_, err = s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)

	// Error paths are counted too.
	_, err = s.GetMessage(ctx, "missing")
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() == "switchboard_test_store_operations_total" {
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(4), total)
}

func TestInstrumentNilCollector(t *testing.T) {
	inner := NewMemoryStore()
	assert.Same(t, ConversationStore(inner), Instrument(inner, TypeMemory, nil))
}

func TestJanitor(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	old, err := s.AppendMessage(ctx, "conv-1", types.RoleUser, "stale")
	require.NoError(t, err)
	s.mu.Lock()
	msg := s.messages[old.ID]
	msg.CreatedAt = time.Now().Add(-2 * time.Hour)
	s.messages[old.ID] = msg
	s.mu.Unlock()

	j := NewJanitor(s, CleanupConfig{
		Enabled:   true,
		Interval:  10 * time.Millisecond,
		Retention: time.Hour,
	}, zap.NewNop())
	j.Start()
	defer j.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := s.GetMessage(ctx, old.ID); err != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("janitor did not remove the stale message")
}

func TestJanitorDisabled(t *testing.T) {
	j := NewJanitor(NewMemoryStore(), CleanupConfig{Enabled: false}, nil)
	j.Start()
	j.Stop()
}
