package worker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Sweeper drops expired in-process state and reports how much it removed
type Sweeper interface {
	Sweep() int
}

// CleanupWorker periodically sweeps advisory in-process state such as
// login lockout counters. Nothing it touches is authoritative.
type CleanupWorker struct {
	mu       sync.Mutex
	sweepers map[string]Sweeper
	logger   *slog.Logger
	interval time.Duration
}

// NewCleanupWorker creates a new cleanup worker
func NewCleanupWorker(logger *slog.Logger, interval time.Duration) *CleanupWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &CleanupWorker{
		sweepers: make(map[string]Sweeper),
		logger:   logger,
		interval: interval,
	}
}

// Register adds a sweeper under name, replacing any previous one
func (w *CleanupWorker) Register(name string, s Sweeper) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sweepers[name] = s
}

// Start runs the sweep loop until ctx is done
func (w *CleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("cleanup worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce sweeps every registered sweeper and returns the total removed
func (w *CleanupWorker) RunOnce() int {
	w.mu.Lock()
	names := make([]string, 0, len(w.sweepers))
	for name := range w.sweepers {
		names = append(names, name)
	}
	sort.Strings(names)
	sweepers := make([]Sweeper, len(names))
	for i, name := range names {
		sweepers[i] = w.sweepers[name]
	}
	w.mu.Unlock()

	total := 0
	for i, s := range sweepers {
		n := s.Sweep()
		if n > 0 {
			w.logger.Debug("expired entries swept",
				slog.String("sweeper", names[i]),
				slog.Int("removed", n),
			)
		}
		total += n
	}
	return total
}
