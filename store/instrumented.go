package store

import (
	"context"
	"time"

	"github.com/gamebyte/switchboard/internal/metrics"
	"github.com/gamebyte/switchboard/types"
)

// InstrumentedStore decorates a ConversationStore with Prometheus metrics.
type InstrumentedStore struct {
	inner     ConversationStore
	backend   string
	collector *metrics.Collector
}

// Instrument wraps a store so every operation is measured. A nil collector
// returns the store unchanged.
func Instrument(inner ConversationStore, backend Type, collector *metrics.Collector) ConversationStore {
	if collector == nil {
		return inner
	}
	return &InstrumentedStore{
		inner:     inner,
		backend:   string(backend),
		collector: collector,
	}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.collector.RecordStoreOp(s.backend, op, status, time.Since(start))
}

func (s *InstrumentedStore) AppendMessage(ctx context.Context, conversationID string, role types.Role, content string) (*types.Message, error) {
	start := time.Now()
	msg, err := s.inner.AppendMessage(ctx, conversationID, role, content)
	s.observe("append", start, err)
	return msg, err
}

func (s *InstrumentedStore) ListMessages(ctx context.Context, conversationID string, cursor string, limit int) ([]types.Message, string, error) {
	start := time.Now()
	msgs, next, err := s.inner.ListMessages(ctx, conversationID, cursor, limit)
	s.observe("list", start, err)
	return msgs, next, err
}

func (s *InstrumentedStore) GetMessage(ctx context.Context, messageID string) (*types.Message, error) {
	start := time.Now()
	msg, err := s.inner.GetMessage(ctx, messageID)
	s.observe("get", start, err)
	return msg, err
}

func (s *InstrumentedStore) DeleteConversation(ctx context.Context, conversationID string) (int, error) {
	start := time.Now()
	n, err := s.inner.DeleteConversation(ctx, conversationID)
	s.observe("delete_conversation", start, err)
	return n, err
}

func (s *InstrumentedStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	start := time.Now()
	n, err := s.inner.Cleanup(ctx, olderThan)
	s.observe("cleanup", start, err)
	return n, err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

var _ ConversationStore = (*InstrumentedStore)(nil)
