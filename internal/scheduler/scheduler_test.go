package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type countingJob struct {
	name string
	n    atomic.Int32
}

func (j *countingJob) Name() string { return j.name }
func (j *countingJob) Run(ctx context.Context) error {
	j.n.Add(1)
	return nil
}

func TestSchedulerRunsJobOnInterval(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(logger)
	job := &countingJob{name: "counter"}
	s.AddJob(job, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(40 * time.Millisecond)
	cancel()
	s.Stop()

	if job.n.Load() == 0 {
		t.Fatal("expected the job to have run at least once")
	}
}

func TestSchedulerStopHaltsFurtherRuns(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(logger)
	job := &countingJob{name: "counter"}
	s.AddJob(job, 5*time.Millisecond)

	ctx := context.Background()
	s.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	countAtStop := job.n.Load()
	time.Sleep(30 * time.Millisecond)
	if job.n.Load() != countAtStop {
		t.Fatalf("job ran after Stop: count went from %d to %d", countAtStop, job.n.Load())
	}
}
