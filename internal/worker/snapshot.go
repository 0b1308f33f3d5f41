package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SnapshotGenerator snapshots every configured vault for a date.
type SnapshotGenerator interface {
	GenerateAll(ctx context.Context, date time.Time) error
}

// SnapshotWorker generates vault NAV snapshots on a cron schedule.
type SnapshotWorker struct {
	generator SnapshotGenerator
	schedule  cron.Schedule
	spec      string
	now       func() time.Time
}

// NewSnapshotWorker creates a SnapshotWorker for a standard five-field cron spec.
func NewSnapshotWorker(generator SnapshotGenerator, spec string) (*SnapshotWorker, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot schedule %q: %w", spec, err)
	}
	return &SnapshotWorker{
		generator: generator,
		schedule:  schedule,
		spec:      spec,
		now:       time.Now,
	}, nil
}

// utcDate returns t normalized to midnight UTC.
func utcDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (w *SnapshotWorker) generate(ctx context.Context, label string) {
	if err := w.generator.GenerateAll(ctx, utcDate(w.now())); err != nil {
		slog.Error("SnapshotWorker: "+label+" generation failed", "error", err)
		return
	}
	slog.Info("SnapshotWorker: " + label + " generation completed")
}

// Run generates once on startup and then on every schedule tick.
// It blocks until the context is cancelled and any running generation has returned.
func (w *SnapshotWorker) Run(ctx context.Context) {
	slog.Info("SnapshotWorker: starting", "schedule", w.spec)

	w.generate(ctx, "initial")

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(w.schedule, cron.FuncJob(func() { w.generate(ctx, "scheduled") }))
	c.Start()

	<-ctx.Done()
	slog.Info("SnapshotWorker: shutting down")
	<-c.Stop().Done()
}
