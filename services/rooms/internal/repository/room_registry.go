package repository

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
)

type RoomRegistry interface {
	Add(id string) (domain.Room, error)
	GetRoom(id string) (domain.Room, error)
	List() []domain.Room
	AssignBooking(roomID, bookingID string) error
	ClearBooking(roomID string, to domain.RoomStatus) error
	SetStatus(roomID string, status domain.RoomStatus) error
}

// roomRegistry is an in-memory container. It enforces the room invariant but takes no part
// in timing or notification; multi-step decisions are serialized by the caller's room lock.
type roomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
	clock clockwork.Clock
}

func NewRoomRegistry(clock clockwork.Clock) RoomRegistry {
	return &roomRegistry{
		rooms: make(map[string]*domain.Room),
		clock: clock,
	}
}

func (r *roomRegistry) Add(id string) (domain.Room, error) {
	if id == "" {
		return domain.Room{}, fmt.Errorf("%w: room id required", domain.ErrInvalidState)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[id]; exists {
		return domain.Room{}, fmt.Errorf("%w: %s", domain.ErrRoomExists, id)
	}
	room := &domain.Room{ID: id, Status: domain.RoomAvailable, UpdatedAt: r.clock.Now()}
	r.rooms[id] = room
	return *room, nil
}

func (r *roomRegistry) GetRoom(id string) (domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return domain.Room{}, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
	}
	return *room, nil
}

func (r *roomRegistry) List() []domain.Room {
	r.mu.RLock()
	out := make([]domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, *room)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AssignBooking makes bookingID the room's current booking and marks it RESERVED. Assigning
// the booking that already holds the room is a no-op.
func (r *roomRegistry) AssignBooking(roomID, bookingID string) error {
	if bookingID == "" {
		return fmt.Errorf("%w: booking id required", domain.ErrInvalidState)
	}
	return r.mutate(roomID, func(room *domain.Room) error {
		if room.CurrentBookingID == bookingID {
			return nil
		}
		if room.CurrentBookingID != "" {
			return fmt.Errorf("%w: %s held by %s", domain.ErrRoomAlreadyOccupied, roomID, room.CurrentBookingID)
		}
		room.CurrentBookingID = bookingID
		room.Status = domain.RoomReserved
		return nil
	})
}

// ClearBooking drops the current booking and moves the room to a status that holds none.
func (r *roomRegistry) ClearBooking(roomID string, to domain.RoomStatus) error {
	if _, ok := domain.ParseRoomStatus(string(to)); !ok || to.HoldsBooking() {
		return fmt.Errorf("%w: cannot clear room into %q", domain.ErrIllegalStatus, to)
	}
	return r.mutate(roomID, func(room *domain.Room) error {
		room.CurrentBookingID = ""
		room.Status = to
		return nil
	})
}

func (r *roomRegistry) SetStatus(roomID string, status domain.RoomStatus) error {
	if _, ok := domain.ParseRoomStatus(string(status)); !ok {
		return fmt.Errorf("%w: unknown status %q", domain.ErrIllegalStatus, status)
	}
	return r.mutate(roomID, func(room *domain.Room) error {
		if status.HoldsBooking() != (room.CurrentBookingID != "") {
			return fmt.Errorf("%w: %s to %s with current booking %q", domain.ErrIllegalStatus, room.Status, status, room.CurrentBookingID)
		}
		room.Status = status
		return nil
	})
}

func (r *roomRegistry) mutate(roomID string, fn func(*domain.Room) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrRoomNotFound, roomID)
	}
	next := *room
	if err := fn(&next); err != nil {
		return err
	}
	next.UpdatedAt = r.clock.Now()
	*room = next
	return nil
}
