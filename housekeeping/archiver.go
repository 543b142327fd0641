// Package housekeeping runs periodic maintenance against the project store.
package housekeeping

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/denusbtw/projecthub-sub000/audit"
	"github.com/denusbtw/projecthub-sub000/metrics"
	"github.com/denusbtw/projecthub-sub000/store"
	"go.uber.org/zap"
)

// DefaultInterval is used when Archiver is given a non-positive interval.
const DefaultInterval = time.Hour

// Run records the result of a single archive pass.
type Run struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Archived  int64         `json:"archived"`
	Error     string        `json:"error,omitempty"`
}

// Archiver moves projects whose end date has passed to the archived status.
type Archiver struct {
	projects store.ProjectStore
	audit    *audit.Recorder
	metrics  *metrics.Collector
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last *Run
}

// NewArchiver creates an Archiver. m and logger may be nil.
func NewArchiver(stores store.Stores, interval time.Duration, m *metrics.Collector, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Archiver{
		projects: stores.Projects,
		audit:    audit.NewRecorder(stores.Audit, logger),
		metrics:  m,
		logger:   logger.Named("housekeeping"),
		interval: interval,
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (a *Archiver) SetClock(now func() time.Time) {
	a.now = now
}

// RunOnce performs a single archive pass.
func (a *Archiver) RunOnce(ctx context.Context) (*Run, error) {
	start := a.now()
	n, err := a.projects.ArchiveEnded(ctx, start)
	run := &Run{StartedAt: start, Duration: time.Since(start), Archived: n}
	if err != nil {
		run.Error = err.Error()
		a.remember(run)
		return run, fmt.Errorf("archive ended projects: %w", err)
	}

	a.metrics.RecordArchived(n)
	if n > 0 {
		if err := a.audit.Record(ctx, audit.Event{
			Action:       audit.ActionProjectsArchived,
			ResourceType: audit.ResourceProject,
			Details:      map[string]any{"count": n, "before": start.Format(time.RFC3339)},
		}); err != nil {
			a.logger.Warn("audit archive pass failed", zap.Error(err))
		}
		a.logger.Info("archived ended projects", zap.Int64("count", n))
	}
	a.remember(run)
	return run, nil
}

// Start runs an archive pass immediately and then every interval until ctx
// is cancelled. It blocks.
func (a *Archiver) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Archiver) tick(ctx context.Context) {
	if _, err := a.RunOnce(ctx); err != nil && ctx.Err() == nil {
		a.logger.Error("archive pass failed", zap.Error(err))
	}
}

// Last returns the most recent run, or nil before the first pass.
func (a *Archiver) Last() *Run {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return nil
	}
	cp := *a.last
	return &cp
}

func (a *Archiver) remember(r *Run) {
	a.mu.Lock()
	a.last = r
	a.mu.Unlock()
}
