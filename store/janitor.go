package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically removes messages past the retention window.
type Janitor struct {
	store  ConversationStore
	config CleanupConfig
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewJanitor creates a cleanup janitor. Start must be called to begin the
// cleanup loop.
func NewJanitor(s ConversationStore, config CleanupConfig, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		store:  s,
		config: config,
		logger: logger.With(zap.String("component", "store_janitor")),
	}
}

// Start launches the cleanup loop. No-op when cleanup is disabled.
func (j *Janitor) Start() {
	if !j.config.Enabled || j.config.Interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.done = make(chan struct{})
	go j.loop(ctx)
}

// Stop terminates the cleanup loop and waits for it to exit.
func (j *Janitor) Stop() {
	if j.cancel == nil {
		return
	}
	j.cancel()
	<-j.done
	j.cancel = nil
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.done)
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := j.store.Cleanup(runCtx, j.config.Retention)
			cancel()
			if err != nil {
				j.logger.Error("cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				j.logger.Info("cleanup removed old messages", zap.Int("removed", removed))
			}
		}
	}
}
