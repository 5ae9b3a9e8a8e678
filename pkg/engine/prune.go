package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PassPruner deletes pass history older than a retention window.
type PassPruner interface {
	PrunePasses(ctx context.Context, retention time.Duration) (int64, error)
}

// RetentionConfig controls pass history pruning. A zero Retention disables it.
type RetentionConfig struct {
	Retention     time.Duration
	CheckInterval time.Duration
}

type PruneWorker struct {
	store  PassPruner
	config RetentionConfig
	logger *slog.Logger
	mu     sync.RWMutex
}

func NewPruneWorker(st PassPruner, cfg RetentionConfig, logger *slog.Logger) *PruneWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PruneWorker{
		store:  st,
		config: cfg,
		logger: logger,
	}
}

func (w *PruneWorker) UpdateConfig(cfg RetentionConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.config = cfg
}

func (w *PruneWorker) Run(ctx context.Context) {
	w.mu.RLock()
	cfg := w.config
	w.mu.RUnlock()

	if cfg.Retention <= 0 {
		w.logger.Info("Pass history pruning disabled")
		return
	}
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = time.Hour
	}

	w.logger.Info("Starting prune worker", "interval", interval.String(), "retention", cfg.Retention.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Prune worker stopping")
			return
		case <-ticker.C:
			w.Prune(ctx)
		}
	}
}

// Prune deletes expired passes once and returns how many were removed.
func (w *PruneWorker) Prune(ctx context.Context) int64 {
	w.mu.RLock()
	retention := w.config.Retention
	w.mu.RUnlock()

	if retention <= 0 {
		return 0
	}
	deleted, err := w.store.PrunePasses(ctx, retention)
	if err != nil {
		w.logger.Error("Prune error", "error", err)
		return 0
	}
	if deleted > 0 {
		w.logger.Info("Pruned pass history", "deleted", deleted, "retention", retention.String())
	}
	return deleted
}
