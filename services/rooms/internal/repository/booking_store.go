package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
)

type BookingStore interface {
	Put(b domain.Booking) error
	Get(id string) (domain.Booking, error)
	FindActiveForRoom(roomID string, at time.Time) (domain.Booking, bool)
	Overlapping(roomID string, start, end time.Time, excludeID string) []domain.Booking
	NextConfirmedForRoom(roomID string, after time.Time) (domain.Booking, bool)
	List(filter domain.BookingFilter) []domain.Booking

	MarkCheckedIn(id string, at time.Time) (domain.Booking, error)
	MarkNoShow(id string) (domain.Booking, error)
	MarkCancelled(id string) (domain.Booking, error)
	MarkCompleted(id string) (domain.Booking, error)

	SetEndTime(id string, end time.Time) (domain.Booking, error)
	AddDeposit(id string, d domain.Deposit) (domain.Booking, error)
	SettleDeposits(id string, refs []string) (domain.Booking, error)
	SetForfeit(id string, forfeited bool) (domain.Booking, error)
}

// bookingStore keeps bookings in memory, indexed by id and by room. Every read returns a copy.
type bookingStore struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Booking
	byRoom map[string][]string
	clock  clockwork.Clock
}

func NewBookingStore(clock clockwork.Clock) BookingStore {
	return &bookingStore{
		byID:   make(map[string]*domain.Booking),
		byRoom: make(map[string][]string),
		clock:  clock,
	}
}

func (s *bookingStore) Put(b domain.Booking) error {
	if b.ID == "" || b.RoomID == "" {
		return fmt.Errorf("%w: booking id and room id required", domain.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[b.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrBookingExists, b.ID)
	}
	stored := b.Clone()
	s.byID[b.ID] = &stored
	s.byRoom[b.RoomID] = append(s.byRoom[b.RoomID], b.ID)
	return nil
}

func (s *bookingStore) Get(id string) (domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.byID[id]
	if !ok {
		return domain.Booking{}, fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	return b.Clone(), nil
}

// FindActiveForRoom returns the live booking whose window contains at. Windows of live
// bookings never overlap, so there is at most one.
func (s *bookingStore) FindActiveForRoom(roomID string, at time.Time) (domain.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.byRoom[roomID] {
		b := s.byID[id]
		if b.Status.Live() && b.Covers(at) {
			return b.Clone(), true
		}
	}
	return domain.Booking{}, false
}

func (s *bookingStore) Overlapping(roomID string, start, end time.Time, excludeID string) []domain.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Booking
	for _, id := range s.byRoom[roomID] {
		b := s.byID[id]
		if id == excludeID || !b.Status.Live() {
			continue
		}
		if b.Overlaps(start, end) {
			out = append(out, b.Clone())
		}
	}
	return out
}

// NextConfirmedForRoom returns the earliest CONFIRMED booking of the room that ends after the
// given instant.
func (s *bookingStore) NextConfirmedForRoom(roomID string, after time.Time) (domain.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *domain.Booking
	for _, id := range s.byRoom[roomID] {
		b := s.byID[id]
		if b.Status != domain.BookingConfirmed || !b.EndTime.After(after) {
			continue
		}
		if next == nil || b.StartTime.Before(next.StartTime) {
			next = b
		}
	}
	if next == nil {
		return domain.Booking{}, false
	}
	return next.Clone(), true
}

func (s *bookingStore) List(filter domain.BookingFilter) []domain.Booking {
	s.mu.RLock()
	out := make([]domain.Booking, 0)
	for _, b := range s.byID {
		if filter.Match(b) {
			out = append(out, b.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.Booking{}
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out
}

func (s *bookingStore) MarkCheckedIn(id string, at time.Time) (domain.Booking, error) {
	return s.update(id, func(b *domain.Booking) error {
		if b.Status != domain.BookingConfirmed {
			return domain.StatusError(b.Status)
		}
		b.Status = domain.BookingInUse
		b.CheckedIn = true
		b.CheckedInAt = &at
		return nil
	})
}

func (s *bookingStore) MarkNoShow(id string) (domain.Booking, error) {
	return s.update(id, func(b *domain.Booking) error {
		if b.Status != domain.BookingConfirmed {
			return domain.StatusError(b.Status)
		}
		b.Status = domain.BookingNoShow
		return nil
	})
}

func (s *bookingStore) MarkCancelled(id string) (domain.Booking, error) {
	return s.update(id, func(b *domain.Booking) error {
		if b.Status != domain.BookingConfirmed {
			return domain.StatusError(b.Status)
		}
		b.Status = domain.BookingCancelled
		return nil
	})
}

func (s *bookingStore) MarkCompleted(id string) (domain.Booking, error) {
	return s.update(id, func(b *domain.Booking) error {
		if b.Status != domain.BookingInUse {
			if b.Status == domain.BookingConfirmed {
				return domain.ErrNotCheckedIn
			}
			return domain.StatusError(b.Status)
		}
		b.Status = domain.BookingCompleted
		return nil
	})
}

func (s *bookingStore) SetEndTime(id string, end time.Time) (domain.Booking, error) {
	return s.update(id, func(b *domain.Booking) error {
		if !end.After(b.StartTime) {
			return domain.ErrInvalidWindow
		}
		b.EndTime = end
		return nil
	})
}

func (s *bookingStore) AddDeposit(id string, d domain.Deposit) (domain.Booking, error) {
	return s.update(id, func(b *domain.Booking) error {
		b.Deposits = append(b.Deposits, d)
		return nil
	})
}

func (s *bookingStore) SettleDeposits(id string, refs []string) (domain.Booking, error) {
	settled := make(map[string]bool, len(refs))
	for _, ref := range refs {
		settled[ref] = true
	}
	return s.update(id, func(b *domain.Booking) error {
		for i := range b.Deposits {
			if settled[b.Deposits[i].Ref] {
				b.Deposits[i].Settled = true
			}
		}
		return nil
	})
}

// SetForfeit records the outcome of a no-show. It may only run once per booking.
func (s *bookingStore) SetForfeit(id string, forfeited bool) (domain.Booking, error) {
	return s.update(id, func(b *domain.Booking) error {
		if b.Status != domain.BookingNoShow {
			return fmt.Errorf("%w: forfeit requires NO_SHOW, booking is %s", domain.ErrInvalidState, b.Status)
		}
		if b.ForfeitNotified {
			return fmt.Errorf("%w: forfeit already recorded", domain.ErrInvalidState)
		}
		b.DepositForfeited = forfeited
		b.ForfeitNotified = true
		return nil
	})
}

func (s *bookingStore) update(id string, fn func(*domain.Booking) error) (domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byID[id]
	if !ok {
		return domain.Booking{}, fmt.Errorf("%w: %s", domain.ErrBookingNotFound, id)
	}
	next := b.Clone()
	if err := fn(&next); err != nil {
		return domain.Booking{}, err
	}
	next.UpdatedAt = s.clock.Now()
	*b = next
	return next.Clone(), nil
}
