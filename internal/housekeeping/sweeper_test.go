package housekeeping

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"keepernest/internal/core"
	"keepernest/pkg/domain"
)

type fakeService struct {
	mu     sync.Mutex
	calls  []time.Time
	actors []domain.Actor
	err    error
	ran    chan struct{}
}

func (f *fakeService) SweepExpired(_ context.Context, actor domain.Actor, now time.Time) (core.SweepReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, now)
	f.actors = append(f.actors, actor)
	f.mu.Unlock()
	if f.ran != nil {
		select {
		case f.ran <- struct{}{}:
		default:
		}
	}
	return core.SweepReport{Expired: []string{"LAP-1"}}, f.err
}

func TestRunOnceUsesSystemActorAndClock(t *testing.T) {
	svc := &fakeService{}
	s := NewSweeper(svc, 0, nil)
	fixed := time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	report, err := s.RunOnce(context.Background())
	if err != nil || len(report.Expired) != 1 {
		t.Fatalf("run once: %+v %v", report, err)
	}
	if s.interval != DefaultInterval {
		t.Fatalf("default interval not applied: %v", s.interval)
	}
	if !svc.calls[0].Equal(fixed) || svc.actors[0] != domain.System {
		t.Fatalf("unexpected call %v %+v", svc.calls, svc.actors)
	}
}

func TestRunOnceReturnsError(t *testing.T) {
	want := errors.New("store down")
	if _, err := NewSweeper(&fakeService{err: want}, time.Minute, nil).RunOnce(context.Background()); !errors.Is(err, want) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	svc := &fakeService{ran: make(chan struct{}, 1)}
	s := NewSweeper(svc, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for i := 0; i < 3; i++ {
		select {
		case <-svc.ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("sweep %d did not run", i+1)
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper did not stop")
	}
}
