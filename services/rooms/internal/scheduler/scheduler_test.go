package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/diagnosis/roomlife/services/rooms/internal/scheduler"
)

type fakeClock interface {
	clockwork.Clock
	Advance(time.Duration)
}

var start = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func newScheduler() (*scheduler.Scheduler, fakeClock) {
	clock := clockwork.NewFakeClockAt(start)
	return scheduler.New(clock), clock
}

func recordFires(ch chan<- string) scheduler.Callback {
	return func(_ context.Context, id string) { ch <- id }
}

func waitFire(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("callback did not fire")
		return ""
	}
}

func expectNoFire(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case id := <-ch:
		t.Fatalf("unexpected callback for %s", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestArmFiresAtDeadline(t *testing.T) {
	s, clock := newScheduler()
	fired := make(chan string, 1)

	if err := s.Arm("b1", start.Add(30*time.Minute), recordFires(fired)); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if d, ok := s.Pending("b1"); !ok || !d.Equal(start.Add(30*time.Minute)) {
		t.Fatalf("Pending = %v %v", d, ok)
	}

	clock.Advance(29 * time.Minute)
	expectNoFire(t, fired)

	clock.Advance(time.Minute)
	if id := waitFire(t, fired); id != "b1" {
		t.Errorf("fired for %s, want b1", id)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after fire, want 0", s.Len())
	}
	if s.Cancel("b1") {
		t.Error("Cancel after fire returned true")
	}
}

func TestCancelPreventsCallback(t *testing.T) {
	s, clock := newScheduler()
	fired := make(chan string, 1)

	_ = s.Arm("b1", start.Add(time.Minute), recordFires(fired))
	if !s.Cancel("b1") {
		t.Fatal("Cancel of pending timer returned false")
	}
	if s.Cancel("b1") {
		t.Error("second Cancel returned true")
	}

	clock.Advance(time.Hour)
	expectNoFire(t, fired)
}

func TestArmReplacesPendingTimer(t *testing.T) {
	s, clock := newScheduler()
	first := make(chan string, 1)
	second := make(chan string, 1)

	_ = s.Arm("b1", start.Add(10*time.Minute), recordFires(first))
	_ = s.Arm("b1", start.Add(20*time.Minute), recordFires(second))
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}

	clock.Advance(15 * time.Minute)
	expectNoFire(t, first)

	clock.Advance(5 * time.Minute)
	waitFire(t, second)
	expectNoFire(t, first)
}

func TestPastDeadlineFiresImmediately(t *testing.T) {
	s, _ := newScheduler()
	fired := make(chan string, 1)

	if err := s.Arm("b1", start.Add(-time.Minute), recordFires(fired)); err != nil {
		t.Fatalf("arm: %v", err)
	}
	waitFire(t, fired)
}

func TestCancelRacesWithFire(t *testing.T) {
	for i := 0; i < 50; i++ {
		s, clock := newScheduler()
		var calls atomic.Int32
		done := make(chan struct{}, 1)

		_ = s.Arm("b1", start.Add(time.Minute), func(context.Context, string) {
			calls.Add(1)
			done <- struct{}{}
		})

		var cancelled bool
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); clock.Advance(time.Minute) }()
		go func() { defer wg.Done(); cancelled = s.Cancel("b1") }()
		wg.Wait()

		if cancelled {
			select {
			case <-done:
				t.Fatalf("iteration %d: callback ran after Cancel returned true", i)
			case <-time.After(20 * time.Millisecond):
			}
		} else {
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatalf("iteration %d: Cancel returned false but callback never ran", i)
			}
		}
		if n := calls.Load(); n > 1 {
			t.Fatalf("iteration %d: callback ran %d times", i, n)
		}
	}
}

func TestShutdownWaitsForInflightAndRejectsArm(t *testing.T) {
	s, clock := newScheduler()
	release := make(chan struct{})
	entered := make(chan struct{})
	var finished atomic.Bool

	_ = s.Arm("slow", start.Add(time.Minute), func(context.Context, string) {
		close(entered)
		<-release
		finished.Store(true)
	})
	other := make(chan string, 1)
	_ = s.Arm("other", start.Add(time.Hour), recordFires(other))

	clock.Advance(time.Minute)
	<-entered

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- s.Shutdown(context.Background()) }()

	select {
	case <-shutdownDone:
		t.Fatal("Shutdown returned while a callback was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	if err := <-shutdownDone; err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !finished.Load() {
		t.Error("in-flight callback did not finish before Shutdown returned")
	}

	clock.Advance(2 * time.Hour)
	expectNoFire(t, other)

	if err := s.Arm("late", start.Add(3*time.Hour), recordFires(other)); !errors.Is(err, scheduler.ErrSchedulerClosed) {
		t.Errorf("Arm after shutdown err = %v", err)
	}
}

func TestShutdownHonoursContext(t *testing.T) {
	s, clock := newScheduler()
	block := make(chan struct{})
	entered := make(chan struct{})
	defer close(block)

	_ = s.Arm("b1", start.Add(time.Minute), func(context.Context, string) {
		close(entered)
		<-block
	})
	clock.Advance(time.Minute)
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown err = %v, want deadline exceeded", err)
	}
}
