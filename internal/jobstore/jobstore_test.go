package jobstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/gochain/internal/clock"
	"github.com/jholhewres/gochain/internal/coreerr"
	"github.com/jholhewres/gochain/internal/model"
)

// memStorage is a minimal in-memory ports.JobStorage for tests.
type memStorage struct {
	mu   sync.Mutex
	jobs map[string]*model.ScheduledJob
}

func newMemStorage() *memStorage { return &memStorage{jobs: make(map[string]*model.ScheduledJob)} }

func (m *memStorage) Save(_ context.Context, job *model.ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.JobID] = &cp
	return nil
}

func (m *memStorage) Get(_ context.Context, jobID string) (*model.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, coreerr.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (m *memStorage) LoadScheduled(_ context.Context) ([]*model.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ScheduledJob
	for _, j := range m.jobs {
		if j.Status == model.JobScheduled {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStorage) MarkFailed(_ context.Context, jobID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, coreerr.ErrNotFound)
	}
	j.Status = model.JobFailed
	j.FailureReason = reason
	return nil
}

func TestScheduleRejectsPastFireAt(t *testing.T) {
	c := clock.NewFixed(time.Unix(1000, 0))
	s := New(newMemStorage(), c, nil)
	ok, err := s.Schedule(context.Background(), "job-1", time.Unix(999, 0), "noop", nil)
	if err == nil || ok {
		t.Fatalf("expected rejection of past fireAt, got ok=%v err=%v", ok, err)
	}
}

func TestScheduleRejectsDuplicate(t *testing.T) {
	c := clock.NewFixed(time.Unix(1000, 0))
	s := New(newMemStorage(), c, nil)
	ctx := context.Background()
	ok, err := s.Schedule(ctx, "job-1", time.Unix(2000, 0), "noop", nil)
	if err != nil || !ok {
		t.Fatalf("first schedule: ok=%v err=%v", ok, err)
	}
	ok, err = s.Schedule(ctx, "job-1", time.Unix(3000, 0), "noop", nil)
	if err != nil {
		t.Fatalf("second schedule: unexpected error %v", err)
	}
	if ok {
		t.Fatalf("second schedule of same non-terminal job should fail")
	}
}

// TestHandlerFiresExactlyOnce covers P8: a scheduled job executes its
// handler exactly once when fireAt is reached.
func TestHandlerFiresExactlyOnce(t *testing.T) {
	storage := newMemStorage()
	c := clock.NewFixed(time.Now())
	s := New(storage, c, nil)

	var calls int32
	var mu sync.Mutex
	done := make(chan struct{}, 1)
	s.RegisterHandler("noop", func(ctx context.Context, job *model.ScheduledJob) error {
		mu.Lock()
		calls++
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	})

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	fireAt := c.Now().Add(20 * time.Millisecond)
	ok, err := s.Schedule(ctx, "job-1", fireAt, "noop", nil)
	if err != nil || !ok {
		t.Fatalf("Schedule: ok=%v err=%v", ok, err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never fired")
	}
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected exactly 1 call, got %d", got)
	}

	job, err := storage.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != model.JobExecuted {
		t.Fatalf("expected job EXECUTED, got %s", job.Status)
	}
}

// TestCancelPreventsFire covers P4: a cancelled job's timer never fires its
// handler.
func TestCancelPreventsFire(t *testing.T) {
	storage := newMemStorage()
	c := clock.NewFixed(time.Now())
	s := New(storage, c, nil)

	var calls int32
	s.RegisterHandler("noop", func(ctx context.Context, job *model.ScheduledJob) error {
		calls++
		return nil
	})

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	fireAt := c.Now().Add(30 * time.Millisecond)
	if _, err := s.Schedule(ctx, "job-1", fireAt, "noop", nil); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	ok, err := s.Cancel(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("Cancel: ok=%v err=%v", ok, err)
	}

	time.Sleep(80 * time.Millisecond)
	if calls != 0 {
		t.Fatalf("expected handler not to fire after cancel, got %d calls", calls)
	}

	job, err := storage.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != model.JobCancelled {
		t.Fatalf("expected job CANCELLED, got %s", job.Status)
	}
}

// TestCancelIsIdempotent: cancelling an unarmed/unknown job returns false,
// no error.
func TestCancelIsIdempotent(t *testing.T) {
	s := New(newMemStorage(), clock.Real{}, nil)
	ok, err := s.Cancel(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Cancel missing job: unexpected error %v", err)
	}
	if ok {
		t.Fatalf("Cancel missing job should return false")
	}
}

// TestMissedJobsMarkedFailedOnRestart covers P9: a job whose fireAt has
// passed by the time Start/LoadPersisted runs is marked FAILED with the
// documented reason, under the default mark-failed policy.
func TestMissedJobsMarkedFailedOnRestart(t *testing.T) {
	storage := newMemStorage()
	past := time.Now().Add(-time.Hour)
	storage.jobs["missed-1"] = &model.ScheduledJob{
		JobID:   "missed-1",
		FireAt:  past,
		JobType: "noop",
		Status:  model.JobScheduled,
	}

	s := New(storage, clock.Real{}, nil)
	s.RegisterHandler("noop", func(ctx context.Context, job *model.ScheduledJob) error { return nil })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	job, err := storage.Get(context.Background(), "missed-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != model.JobFailed {
		t.Fatalf("expected missed job FAILED, got %s", job.Status)
	}
	if job.FailureReason != "missed execution due to downtime" {
		t.Fatalf("unexpected failure reason: %q", job.FailureReason)
	}
}

// TestHandlerPanicIsRecoveredAndMarksFailed ensures one bad job can't crash
// the scheduler (G3/idempotent handler contract still holds afterward).
func TestHandlerPanicIsRecoveredAndMarksFailed(t *testing.T) {
	storage := newMemStorage()
	c := clock.NewFixed(time.Now())
	s := New(storage, c, nil)

	s.RegisterHandler("boom", func(ctx context.Context, job *model.ScheduledJob) error {
		panic("kaboom")
	})

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	fireAt := c.Now().Add(10 * time.Millisecond)
	if _, err := s.Schedule(ctx, "job-1", fireAt, "boom", nil); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	job, err := storage.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != model.JobFailed {
		t.Fatalf("expected job FAILED after panic, got %s", job.Status)
	}
}
