// Package hub fans room and booking events out to in-process listeners.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diagnosis/roomlife/pkg/logger"
	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
)

var ErrHubClosed = errors.New("notification hub closed")

type Listener interface {
	HandleEvent(ctx context.Context, ev domain.Event) error
}

type ListenerFunc func(ctx context.Context, ev domain.Event) error

func (f ListenerFunc) HandleEvent(ctx context.Context, ev domain.Event) error { return f(ctx, ev) }

type Subscription struct {
	ID   uint64
	Name string
}

type subscriber struct {
	sub      Subscription
	listener Listener
}

type Options struct {
	QueueSize       int
	ListenerTimeout time.Duration
	// ReservedSlots is queue space on top of QueueSize that only critical events may use.
	ReservedSlots int
}

// critical reports whether ev may use the reserved slots.
func critical(ev domain.Event) bool {
	return ev.Kind == domain.EventNoShowDetected
}

// Hub queues published events and delivers them from a single dispatcher goroutine, so every
// listener sees events in publish order. Publish never blocks; a full queue drops the event.
// Critical events can still use the reserved slots when routine traffic has filled the queue.
type Hub struct {
	opts  Options
	queue chan domain.Event

	mu     sync.RWMutex
	subs   []subscriber
	nextID uint64
	closed bool

	done chan struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
	critDrop  atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

func New(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.ListenerTimeout <= 0 {
		opts.ListenerTimeout = 2 * time.Second
	}
	if opts.ReservedSlots <= 0 {
		opts.ReservedSlots = 16
	}
	h := &Hub{
		opts:  opts,
		queue: make(chan domain.Event, opts.QueueSize+opts.ReservedSlots),
		done:  make(chan struct{}),
	}
	go h.dispatch()
	return h
}

func (h *Hub) Subscribe(name string, l Listener) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return Subscription{}, ErrHubClosed
	}
	h.nextID++
	sub := Subscription{ID: h.nextID, Name: name}
	h.subs = append(h.subs, subscriber{sub: sub, listener: l})
	logger.Debug("listener subscribed", "subscription_id", sub.ID, "listener", name)
	return sub, nil
}

// Unsubscribe removes the listener. Events already handed to it keep running to completion.
func (h *Hub) Unsubscribe(sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, s := range h.subs {
		if s.sub.ID == sub.ID {
			next := make([]subscriber, 0, len(h.subs)-1)
			next = append(next, h.subs[:i]...)
			h.subs = append(next, h.subs[i+1:]...)
			return
		}
	}
}

func (h *Hub) Publish(ev domain.Event) {
	// Exclusive so the depth check and the send cannot interleave with another publisher.
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		h.dropped.Add(1)
		return
	}
	if !critical(ev) && len(h.queue) >= h.opts.QueueSize {
		h.dropped.Add(1)
		logger.Warn("event dropped, hub queue full", "kind", ev.Kind, "room_id", ev.RoomID, "booking_id", ev.BookingID)
		return
	}
	select {
	case h.queue <- ev:
		h.published.Add(1)
	default:
		h.dropped.Add(1)
		h.critDrop.Add(1)
		logger.Error("critical event dropped, hub reserve exhausted", "kind", ev.Kind, "room_id", ev.RoomID, "booking_id", ev.BookingID)
	}
}

// Close stops accepting events and waits until the queued ones were delivered or ctx ends.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.queue)
	}
	h.mu.Unlock()

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) Metrics() map[string]float64 {
	h.mu.RLock()
	subs := len(h.subs)
	h.mu.RUnlock()

	return map[string]float64{
		"hub_events_published_total":  float64(h.published.Load()),
		"hub_events_dropped_total":    float64(h.dropped.Load()),
		"hub_critical_dropped_total":  float64(h.critDrop.Load()),
		"hub_deliveries_total":        float64(h.delivered.Load()),
		"hub_delivery_failures_total": float64(h.failed.Load()),
		"hub_queue_depth":             float64(len(h.queue)),
		"hub_subscribers":             float64(subs),
	}
}

func (h *Hub) dispatch() {
	defer close(h.done)

	for ev := range h.queue {
		h.mu.RLock()
		subs := append([]subscriber(nil), h.subs...)
		h.mu.RUnlock()

		for _, s := range subs {
			h.deliver(s, ev)
		}
	}
}

// deliver waits at most ListenerTimeout for the listener. A listener that overruns keeps its
// goroutine but no longer holds up the queue.
func (h *Hub) deliver(s subscriber, ev domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.ListenerTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("listener panic: %v", r)
			}
		}()
		result <- s.listener.HandleEvent(ctx, ev)
	}()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		h.failed.Add(1)
		logger.Error("listener failed",
			"subscription_id", s.sub.ID,
			"listener", s.sub.Name,
			"kind", ev.Kind,
			"booking_id", ev.BookingID,
			"error", err,
		)
		return
	}
	h.delivered.Add(1)
}
