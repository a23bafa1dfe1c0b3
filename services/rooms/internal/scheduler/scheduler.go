// Package scheduler arms one-shot deadline callbacks keyed by booking id.
//
// Each booking owns at most one pending timer. Arm replaces whatever was pending for the id and
// Cancel reports whether it stopped the timer before the callback was dispatched: when Cancel
// returns true the callback will never run.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/diagnosis/roomlife/pkg/logger"
)

var ErrSchedulerClosed = errors.New("scheduler closed")

type Callback func(ctx context.Context, bookingID string)

type state int

const (
	statePending state = iota
	stateFired
	stateCancelled
)

type handle struct {
	bookingID string
	deadline  time.Time
	fn        Callback
	timer     clockwork.Timer
	state     state
}

type Scheduler struct {
	clock clockwork.Clock

	mu      sync.Mutex
	pending map[string]*handle
	closed  bool

	inflight sync.WaitGroup
	// base is handed to callbacks and cancelled on Shutdown.
	base   context.Context
	cancel context.CancelFunc
}

func New(clock clockwork.Clock) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:   clock,
		pending: make(map[string]*handle),
		base:    ctx,
		cancel:  cancel,
	}
}

// Arm schedules fn to run for bookingID at deadline, replacing any pending timer for the same
// id. A deadline that has already passed fires right away on its own goroutine.
func (s *Scheduler) Arm(bookingID string, deadline time.Time, fn Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}
	if prev, ok := s.pending[bookingID]; ok {
		s.stopLocked(prev)
	}

	h := &handle{bookingID: bookingID, deadline: deadline, fn: fn}
	s.pending[bookingID] = h

	delay := deadline.Sub(s.clock.Now())
	if delay <= 0 {
		s.dispatchLocked(h)
		return nil
	}
	// fire takes s.mu, so never run it on the clock's own goroutine.
	h.timer = s.clock.AfterFunc(delay, func() { go s.fire(h) })
	logger.Debug("timer armed", "booking_id", bookingID, "deadline", deadline, "delay", delay)
	return nil
}

// Cancel stops the pending timer for bookingID. It returns false when nothing was pending,
// including when the callback has already been dispatched.
func (s *Scheduler) Cancel(bookingID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.pending[bookingID]
	if !ok {
		return false
	}
	s.stopLocked(h)
	return true
}

// Pending returns the deadline of the timer armed for bookingID, if any.
func (s *Scheduler) Pending(bookingID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.pending[bookingID]
	if !ok {
		return time.Time{}, false
	}
	return h.deadline, true
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Shutdown cancels every pending timer, refuses new ones, and waits for callbacks that were
// already dispatched to return or for ctx to end.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for _, h := range s.pending {
			s.stopLocked(h)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

func (s *Scheduler) fire(h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.state != statePending || s.pending[h.bookingID] != h {
		return
	}
	s.dispatchLocked(h)
}

func (s *Scheduler) dispatchLocked(h *handle) {
	h.state = stateFired
	delete(s.pending, h.bookingID)
	s.inflight.Add(1)

	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("timer callback panicked", "booking_id", h.bookingID, "panic", r)
			}
		}()
		h.fn(s.base, h.bookingID)
	}()
}

func (s *Scheduler) stopLocked(h *handle) {
	h.state = stateCancelled
	if h.timer != nil {
		h.timer.Stop()
	}
	if s.pending[h.bookingID] == h {
		delete(s.pending, h.bookingID)
	}
}
