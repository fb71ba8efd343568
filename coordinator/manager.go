package coordinator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/gamebyte/switchboard/internal/metrics"
	"github.com/gamebyte/switchboard/types"
)

// Manager hands out the single coordinator instance for each conversation.
// Locking is scoped to the registry itself; each coordinator serializes its
// own conversation.
type Manager struct {
	store     MessageStore
	runs      RunController
	streams   StreamSubscriber
	config    Config
	logger    *zap.Logger
	collector *metrics.Collector
	tokens    types.Tokenizer

	mu    sync.RWMutex
	convs map[string]*Coordinator
}

// NewManager creates a coordinator registry sharing one set of collaborators.
func NewManager(store MessageStore, runs RunController, streams StreamSubscriber, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		runs:    runs,
		streams: streams,
		config:  config,
		logger:  logger,
		convs:   make(map[string]*Coordinator),
	}
}

// WithCollector attaches a metrics collector propagated to new coordinators.
func (m *Manager) WithCollector(collector *metrics.Collector) *Manager {
	m.collector = collector
	return m
}

// WithTokenizer attaches a tokenizer propagated to new coordinators.
func (m *Manager) WithTokenizer(tokens types.Tokenizer) *Manager {
	m.tokens = tokens
	return m
}

// Get returns the coordinator for the conversation, creating it on first use.
func (m *Manager) Get(conversationID string) *Coordinator {
	m.mu.RLock()
	c, ok := m.convs[conversationID]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.convs[conversationID]; ok {
		return c
	}
	c = New(conversationID, m.store, m.runs, m.streams, m.config, m.logger)
	if m.collector != nil {
		c.WithCollector(m.collector)
	}
	if m.tokens != nil {
		c.WithTokenizer(m.tokens)
	}
	m.convs[conversationID] = c
	return c
}

// Lookup returns the coordinator if one exists for the conversation.
func (m *Manager) Lookup(conversationID string) (*Coordinator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[conversationID]
	return c, ok
}

// Remove stops the conversation's run and drops the coordinator.
func (m *Manager) Remove(conversationID string) {
	m.mu.Lock()
	c, ok := m.convs[conversationID]
	delete(m.convs, conversationID)
	m.mu.Unlock()
	if ok {
		c.Stop(context.Background())
		c.closeWatchers()
	}
}

// Len returns the number of tracked conversations.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.convs)
}
