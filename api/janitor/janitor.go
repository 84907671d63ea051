// Package janitor periodically removes job workspaces left behind by
// processes that died mid-deployment.
package janitor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"quickdeploy/api/workspace"
)

type Sweeper interface {
	Sweep(maxAge time.Duration) (int, error)
}

var _ Sweeper = (*workspace.Manager)(nil)

type Janitor struct {
	cron   *cron.Cron
	ws     Sweeper
	maxAge time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	removed int
}

// New schedules a sweep of directories older than maxAge. maxAge must
// exceed the longest possible job, or live workspaces could be removed.
func New(ws Sweeper, schedule string, maxAge time.Duration, logger *slog.Logger) (*Janitor, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("janitor: max age must be positive, got %s", maxAge)
	}
	if logger == nil {
		logger = slog.Default()
	}
	j := &Janitor{
		cron:   cron.New(),
		ws:     ws,
		maxAge: maxAge,
		logger: logger,
	}
	if _, err := j.cron.AddFunc(schedule, j.RunOnce); err != nil {
		return nil, fmt.Errorf("janitor: schedule %q: %w", schedule, err)
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("janitor: started", "max_age", j.maxAge)
}

func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("janitor: stopped")
}

// RunOnce sweeps immediately.
func (j *Janitor) RunOnce() {
	n, err := j.ws.Sweep(j.maxAge)
	j.mu.Lock()
	j.removed += n
	j.mu.Unlock()
	if err != nil {
		j.logger.Warn("janitor: sweep failed", "removed", n, "error", err)
		return
	}
	if n > 0 {
		j.logger.Info("janitor: removed stale workspaces", "count", n)
	}
}

// Removed reports the total number of directories swept so far.
func (j *Janitor) Removed() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.removed
}
