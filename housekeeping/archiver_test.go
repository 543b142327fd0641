package housekeeping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/denusbtw/projecthub-sub000/audit"
	"github.com/denusbtw/projecthub-sub000/metrics"
	"github.com/denusbtw/projecthub-sub000/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func seedProject(t *testing.T, s store.Stores, status store.ProjectStatus, end *time.Time) *store.Project {
	t.Helper()
	p := &store.Project{TenantID: uuid.New(), Name: "p", Status: status, EndDate: end}
	if err := s.Projects.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestArchiver_RunOnce(t *testing.T) {
	ctx := context.Background()
	s := store.NewMockStores()
	m := metrics.New()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	ended := seedProject(t, s, store.ProjectStatusActive, &past)
	pending := seedProject(t, s, store.ProjectStatusPending, &past)
	running := seedProject(t, s, store.ProjectStatusActive, &future)
	open := seedProject(t, s, store.ProjectStatusActive, nil)

	a := NewArchiver(s, time.Minute, m, nil)
	a.SetClock(func() time.Time { return now })

	run, err := a.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if run.Archived != 2 {
		t.Fatalf("expected 2 archived, got %d", run.Archived)
	}

	for _, p := range []*store.Project{ended, pending} {
		got, _ := s.Projects.Get(ctx, p.ID)
		if got.Status != store.ProjectStatusArchived || got.CloseDate == nil || !got.CloseDate.Equal(now) {
			t.Errorf("expected %s archived at %v, got %s %v", p.ID, now, got.Status, got.CloseDate)
		}
	}
	for _, p := range []*store.Project{running, open} {
		got, _ := s.Projects.Get(ctx, p.ID)
		if got.Status != store.ProjectStatusActive {
			t.Errorf("expected %s to stay active, got %s", p.ID, got.Status)
		}
	}

	if got := testutil.ToFloat64(m.ProjectsArchived); got != 2 {
		t.Errorf("expected metric 2, got %v", got)
	}
	entries, _ := s.Audit.Query(ctx, store.AuditFilter{Action: string(audit.ActionProjectsArchived)})
	if len(entries) != 1 {
		t.Errorf("expected 1 audit entry, got %d", len(entries))
	}

	// A second pass finds nothing and writes no audit entry.
	run, err = a.RunOnce(ctx)
	if err != nil || run.Archived != 0 {
		t.Fatalf("expected empty second pass, got %+v, %v", run, err)
	}
	entries, _ = s.Audit.Query(ctx, store.AuditFilter{Action: string(audit.ActionProjectsArchived)})
	if len(entries) != 1 {
		t.Errorf("expected audit entries unchanged, got %d", len(entries))
	}
	if last := a.Last(); last == nil || last.Archived != 0 {
		t.Errorf("unexpected last run %+v", last)
	}
}

type failingProjects struct {
	store.ProjectStore
}

func (failingProjects) ArchiveEnded(context.Context, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func TestArchiver_RunOnceError(t *testing.T) {
	s := store.NewMockStores()
	s.Projects = failingProjects{s.Projects}
	a := NewArchiver(s, 0, nil, nil)

	run, err := a.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if run.Error == "" || a.Last().Error == "" {
		t.Error("expected error recorded on run")
	}
	if a.interval != DefaultInterval {
		t.Errorf("expected default interval, got %v", a.interval)
	}
}

func TestArchiver_StartStopsOnCancel(t *testing.T) {
	s := store.NewMockStores()
	past := time.Now().Add(-time.Hour)
	seedProject(t, s, store.ProjectStatusActive, &past)
	a := NewArchiver(s, 10*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for a.Last() == nil {
		select {
		case <-deadline:
			t.Fatal("archiver did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
