package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/moby/locker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/diagnosis/roomlife/pkg/config"
	"github.com/diagnosis/roomlife/pkg/logger"
	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
	"github.com/diagnosis/roomlife/services/rooms/internal/payments"
	"github.com/diagnosis/roomlife/services/rooms/internal/repository"
	"github.com/diagnosis/roomlife/services/rooms/internal/scheduler"
)

type CreateBookingRequest struct {
	RoomID    string
	UserID    string
	StartTime time.Time
	EndTime   time.Time
}

// RoomStatusView is the derived status of a room at an arbitrary instant.
type RoomStatusView struct {
	RoomID    string            `json:"room_id"`
	At        time.Time         `json:"at"`
	Status    domain.RoomStatus `json:"status"`
	BookingID string            `json:"booking_id,omitempty"`
}

type LifecycleService interface {
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*domain.Booking, error)
	CheckIn(ctx context.Context, bookingID, userID string) (*domain.Booking, error)
	CheckOut(ctx context.Context, bookingID, userID string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, bookingID, userID string) (*domain.Booking, error)
	ExtendBooking(ctx context.Context, bookingID, userID string, extraMinutes int) (*domain.Booking, error)

	GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error)
	ListBookings(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error)
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	ListRooms(ctx context.Context) ([]domain.Room, error)
	AddRoom(ctx context.Context, roomID string) (*domain.Room, error)
	RoomStatusAt(ctx context.Context, roomID string, at time.Time) (*RoomStatusView, error)

	Shutdown(ctx context.Context) error
	Metrics() map[string]float64
}

// EventPublisher is the notification side of the engine. Publish must not block.
type EventPublisher interface {
	Publish(ev domain.Event)
}

type lifecycleService struct {
	rooms    repository.RoomRegistry
	bookings repository.BookingStore
	catalog  repository.RoomCatalog
	sched    *scheduler.Scheduler
	events   EventPublisher
	gateway  payments.Gateway
	clock    clockwork.Clock
	cfg      config.LifecycleConfig

	locks  *locker.Locker
	tracer trace.Tracer

	checkIns        atomic.Uint64
	noShows         atomic.Uint64
	staleFires      atomic.Uint64
	gatewayFailures atomic.Uint64
}

// NewLifecycleService wires the engine. catalog may be nil, in which case added rooms live only
// in memory.
func NewLifecycleService(
	rooms repository.RoomRegistry,
	bookings repository.BookingStore,
	catalog repository.RoomCatalog,
	sched *scheduler.Scheduler,
	events EventPublisher,
	gateway payments.Gateway,
	clock clockwork.Clock,
	cfg config.LifecycleConfig,
) LifecycleService {
	return &lifecycleService{
		rooms:    rooms,
		bookings: bookings,
		catalog:  catalog,
		sched:    sched,
		events:   events,
		gateway:  gateway,
		clock:    clock,
		cfg:      cfg,
		locks:    locker.New(),
		tracer:   otel.Tracer("roomlife/lifecycle"),
	}
}

func bookingKey(id string) string { return "booking/" + id }
func roomKey(id string) string    { return "room/" + id }

// lock takes the keyed lock and returns its release. Lock order is booking before room.
func (s *lifecycleService) lock(key string) func() {
	s.locks.Lock(key)
	return func() { _ = s.locks.Unlock(key) }
}

func (s *lifecycleService) CreateBooking(ctx context.Context, req CreateBookingRequest) (_ *domain.Booking, err error) {
	ctx, span := s.tracer.Start(ctx, "LifecycleService.CreateBooking", trace.WithAttributes(
		attribute.String("room.id", req.RoomID),
		attribute.String("user.id", req.UserID),
	))
	defer func() { endSpan(span, err) }()

	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user id required", domain.ErrForbidden)
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, domain.ErrInvalidWindow
	}
	if !req.EndTime.After(s.clock.Now()) {
		return nil, domain.ErrWindowInPast
	}
	window := domain.Booking{StartTime: req.StartTime, EndTime: req.EndTime}
	deadline := window.NoShowDeadline(s.cfg.NoShowWindow())
	if !s.clock.Now().Before(deadline) {
		return nil, domain.ErrCheckInClosed
	}
	if _, err := s.rooms.GetRoom(req.RoomID); err != nil {
		return nil, err
	}
	if clash := s.bookings.Overlapping(req.RoomID, req.StartTime, req.EndTime, ""); len(clash) > 0 {
		return nil, fmt.Errorf("%w: room %s is booked by %s in that window", domain.ErrRoomOccupied, req.RoomID, clash[0].ID)
	}

	// No domain state exists yet, so authorize outside the locks and refund if the commit
	// below loses a race.
	auth, err := s.authorize(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if auth.Status == domain.DepositDenied {
		return nil, domain.ErrDepositDenied
	}

	id := uuid.NewString()
	ctx = logger.WithBooking(ctx, id)
	defer s.lock(bookingKey(id))()
	defer s.lock(roomKey(req.RoomID))()

	if clash := s.bookings.Overlapping(req.RoomID, req.StartTime, req.EndTime, ""); len(clash) > 0 {
		s.compensate(ctx, auth.Ref)
		return nil, fmt.Errorf("%w: room %s was booked by %s concurrently", domain.ErrRoomOccupied, req.RoomID, clash[0].ID)
	}

	now := s.clock.Now()
	// Authorization may have taken long enough for the deadline to slip by.
	if !now.Before(deadline) {
		s.compensate(ctx, auth.Ref)
		return nil, domain.ErrCheckInClosed
	}
	b := domain.Booking{
		ID:        id,
		RoomID:    req.RoomID,
		UserID:    req.UserID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Status:    domain.BookingConfirmed,
		Deposits:  []domain.Deposit{{Ref: auth.Ref, Amount: s.cfg.DepositAmount, Status: auth.Status}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.bookings.Put(b); err != nil {
		s.compensate(ctx, auth.Ref)
		return nil, fmt.Errorf("failed to store booking: %w", err)
	}

	if err := s.sched.Arm(id, deadline, s.onNoShowTimeout); err != nil {
		logger.ErrorContext(ctx, "Failed to arm no-show timer", "error", err)
	}
	s.promoteLocked(ctx, req.RoomID)

	logger.InfoContext(ctx, "Booking confirmed",
		"room_id", req.RoomID,
		"user_id", req.UserID,
		"start", req.StartTime,
		"end", req.EndTime,
		"deposit_status", auth.Status,
	)
	return s.snapshot(id)
}

func (s *lifecycleService) CheckIn(ctx context.Context, bookingID, userID string) (_ *domain.Booking, err error) {
	ctx, span := s.startBookingSpan(ctx, "LifecycleService.CheckIn", bookingID)
	defer func() { endSpan(span, err) }()

	defer s.lock(bookingKey(bookingID))()

	b, err := s.ownedBooking(bookingID, userID)
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BookingConfirmed {
		return nil, domain.StatusError(b.Status)
	}
	now := s.clock.Now()
	if opens := b.CheckInOpensAt(s.cfg.Grace()); !now.After(opens) {
		return nil, fmt.Errorf("%w: check-in opens after %s", domain.ErrTooEarly, opens.Format(time.RFC3339))
	}
	if !now.Before(b.EndTime) {
		return nil, domain.ErrBookingEnded
	}

	defer s.lock(roomKey(b.RoomID))()

	room, err := s.rooms.GetRoom(b.RoomID)
	if err != nil {
		return nil, err
	}
	takeOver := false
	if holder := room.CurrentBookingID; holder != "" && holder != b.ID {
		if hb, err := s.bookings.Get(holder); err == nil && hb.Status == domain.BookingInUse {
			return nil, fmt.Errorf("%w: room %s is still in use by %s", domain.ErrRoomOccupied, b.RoomID, holder)
		}
		takeOver = true
	}

	if err := s.settleDeposits(ctx, b, s.gateway.Finalize, "finalize"); err != nil {
		return nil, err
	}

	// The no-show callback may already be waiting on the booking lock; it will find IN_USE.
	s.sched.Cancel(b.ID)

	if _, err := s.bookings.MarkCheckedIn(b.ID, now); err != nil {
		return nil, err
	}
	if takeOver {
		if err := s.rooms.ClearBooking(b.RoomID, domain.RoomAvailable); err != nil {
			logger.ErrorContext(ctx, "Failed to release room from previous holder", "room_id", b.RoomID, "error", err)
		}
	}
	if err := s.rooms.AssignBooking(b.RoomID, b.ID); err != nil {
		logger.ErrorContext(ctx, "Failed to assign room on check-in", "room_id", b.RoomID, "error", err)
	}
	if err := s.rooms.SetStatus(b.RoomID, domain.RoomInUse); err != nil {
		logger.ErrorContext(ctx, "Failed to mark room in use", "room_id", b.RoomID, "error", err)
	}
	if err := s.sched.Arm(b.ID, b.EndTime, s.onSessionEnd); err != nil {
		logger.ErrorContext(ctx, "Failed to arm session end timer", "error", err)
	}

	s.checkIns.Add(1)
	s.publish(domain.EventRoomInUse, b.RoomID, b.ID)
	logger.InfoContext(ctx, "Checked in", "room_id", b.RoomID, "user_id", userID)
	return s.snapshot(b.ID)
}

func (s *lifecycleService) CheckOut(ctx context.Context, bookingID, userID string) (_ *domain.Booking, err error) {
	ctx, span := s.startBookingSpan(ctx, "LifecycleService.CheckOut", bookingID)
	defer func() { endSpan(span, err) }()

	defer s.lock(bookingKey(bookingID))()

	b, err := s.ownedBooking(bookingID, userID)
	if err != nil {
		return nil, err
	}
	if err := s.complete(ctx, b); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Checked out", "room_id", b.RoomID, "user_id", userID)
	return s.snapshot(b.ID)
}

func (s *lifecycleService) CancelBooking(ctx context.Context, bookingID, userID string) (_ *domain.Booking, err error) {
	ctx, span := s.startBookingSpan(ctx, "LifecycleService.CancelBooking", bookingID)
	defer func() { endSpan(span, err) }()

	defer s.lock(bookingKey(bookingID))()

	b, err := s.ownedBooking(bookingID, userID)
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BookingConfirmed {
		return nil, domain.StatusError(b.Status)
	}

	if err := s.settleDeposits(ctx, b, s.gateway.Refund, "refund"); err != nil {
		return nil, err
	}

	s.sched.Cancel(b.ID)
	if _, err := s.bookings.MarkCancelled(b.ID); err != nil {
		return nil, err
	}
	s.releaseAndPromote(ctx, b.RoomID, b.ID, domain.RoomAvailable)

	logger.InfoContext(ctx, "Booking cancelled", "room_id", b.RoomID, "user_id", userID)
	return s.snapshot(b.ID)
}

func (s *lifecycleService) ExtendBooking(ctx context.Context, bookingID, userID string, extraMinutes int) (_ *domain.Booking, err error) {
	ctx, span := s.startBookingSpan(ctx, "LifecycleService.ExtendBooking", bookingID)
	span.SetAttributes(attribute.Int("extension.minutes", extraMinutes))
	defer func() { endSpan(span, err) }()

	defer s.lock(bookingKey(bookingID))()

	b, err := s.ownedBooking(bookingID, userID)
	if err != nil {
		return nil, err
	}
	if !b.Status.Live() {
		return nil, domain.StatusError(b.Status)
	}
	if !s.clock.Now().Before(b.EndTime) {
		return nil, domain.ErrBookingEnded
	}
	extra := time.Duration(extraMinutes) * time.Minute
	if extraMinutes <= 0 || extra%s.cfg.Granularity() != 0 {
		return nil, fmt.Errorf("%w: got %d minutes, unit is %d", domain.ErrInvalidExtension, extraMinutes, s.cfg.ExtensionGranularityMinutes)
	}
	newEnd := b.EndTime.Add(extra)

	defer s.lock(roomKey(b.RoomID))()

	if clash := s.bookings.Overlapping(b.RoomID, b.EndTime, newEnd, b.ID); len(clash) > 0 {
		return nil, fmt.Errorf("%w: extension runs into booking %s", domain.ErrRoomOccupied, clash[0].ID)
	}

	auth, err := s.authorize(ctx, b.UserID)
	if err != nil {
		return nil, err
	}
	if auth.Status == domain.DepositDenied {
		return nil, domain.ErrDepositDenied
	}

	deposit := domain.Deposit{Ref: auth.Ref, Amount: s.cfg.DepositAmount, Status: auth.Status}
	if b.Status == domain.BookingInUse {
		// Already checked in, so the extra time is owed now. Nothing is committed unless it is paid.
		gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		err := s.gateway.Finalize(gctx, auth.Ref)
		cancel()
		if err != nil {
			s.gatewayFailures.Add(1)
			s.compensate(ctx, auth.Ref)
			return nil, asUnavailable("finalize extension deposit "+auth.Ref, err)
		}
		deposit.Settled = true
	}

	if _, err := s.bookings.SetEndTime(b.ID, newEnd); err != nil {
		s.compensate(ctx, auth.Ref)
		return nil, err
	}
	updated, err := s.bookings.AddDeposit(b.ID, deposit)
	if err != nil {
		return nil, err
	}

	switch updated.Status {
	case domain.BookingConfirmed:
		if err := s.sched.Arm(b.ID, updated.NoShowDeadline(s.cfg.NoShowWindow()), s.onNoShowTimeout); err != nil {
			logger.ErrorContext(ctx, "Failed to re-arm no-show timer", "error", err)
		}
	case domain.BookingInUse:
		if err := s.sched.Arm(b.ID, newEnd, s.onSessionEnd); err != nil {
			logger.ErrorContext(ctx, "Failed to re-arm session end timer", "error", err)
		}
	}

	s.publish(domain.EventBookingExtended, b.RoomID, b.ID)
	logger.InfoContext(ctx, "Booking extended", "room_id", b.RoomID, "new_end", newEnd, "extra_minutes", extraMinutes)
	return s.snapshot(b.ID)
}

// onNoShowTimeout runs when the no-show deadline passes. It serializes with CheckIn on the
// booking lock; whichever gets there first decides the outcome and the other sees its result.
func (s *lifecycleService) onNoShowTimeout(ctx context.Context, bookingID string) {
	ctx = logger.WithBooking(ctx, bookingID)
	ctx, span := s.startBookingSpan(ctx, "LifecycleService.onNoShowTimeout", bookingID)
	defer span.End()

	defer s.lock(bookingKey(bookingID))()

	b, err := s.bookings.Get(bookingID)
	if err != nil {
		logger.ErrorContext(ctx, "No-show timer fired for unknown booking", "error", err)
		return
	}
	if b.Status != domain.BookingConfirmed || b.ForfeitNotified {
		s.staleFires.Add(1)
		logger.DebugContext(ctx, "Stale no-show timer ignored", "status", b.Status)
		return
	}
	if deadline := b.NoShowDeadline(s.cfg.NoShowWindow()); s.clock.Now().Before(deadline) {
		s.staleFires.Add(1)
		logger.DebugContext(ctx, "No-show timer fired before current deadline", "deadline", deadline)
		return
	}

	if _, err := s.bookings.MarkNoShow(b.ID); err != nil {
		logger.ErrorContext(ctx, "Failed to mark booking no-show", "error", err)
		return
	}
	freed := s.releaseRoom(ctx, b.RoomID, b.ID, domain.RoomNoShow)

	// Billing trouble must not keep the room out of sync; the deposit stays unforfeited for
	// an out-of-band retry.
	forfeited := true
	if err := s.settleDeposits(ctx, b, s.gateway.Forfeit, "forfeit"); err != nil {
		forfeited = false
		logger.ErrorContext(ctx, "Deposit forfeiture failed", "error", err)
	}
	if len(b.UnsettledDeposits()) == 0 {
		forfeited = false
	}
	if _, err := s.bookings.SetForfeit(b.ID, forfeited); err != nil {
		logger.ErrorContext(ctx, "Failed to record forfeiture", "error", err)
		return
	}

	s.noShows.Add(1)
	s.publish(domain.EventNoShowDetected, b.RoomID, b.ID)
	if freed {
		s.publish(domain.EventRoomAvailable, b.RoomID, "")
	}
	s.promote(ctx, b.RoomID)

	logger.InfoContext(ctx, "Booking marked no-show", "room_id", b.RoomID, "user_id", b.UserID, "deposit_forfeited", forfeited)
}

// onSessionEnd completes a checked-in booking when its window closes.
func (s *lifecycleService) onSessionEnd(ctx context.Context, bookingID string) {
	ctx = logger.WithBooking(ctx, bookingID)
	ctx, span := s.startBookingSpan(ctx, "LifecycleService.onSessionEnd", bookingID)
	defer span.End()

	defer s.lock(bookingKey(bookingID))()

	b, err := s.bookings.Get(bookingID)
	if err != nil {
		logger.ErrorContext(ctx, "Session end fired for unknown booking", "error", err)
		return
	}
	if b.Status != domain.BookingInUse || s.clock.Now().Before(b.EndTime) {
		s.staleFires.Add(1)
		logger.DebugContext(ctx, "Stale session end timer ignored", "status", b.Status, "end", b.EndTime)
		return
	}
	if err := s.complete(ctx, b); err != nil {
		logger.ErrorContext(ctx, "Failed to complete booking", "error", err)
		return
	}
	logger.InfoContext(ctx, "Session ended", "room_id", b.RoomID)
}

// complete moves an IN_USE booking to COMPLETED and hands the room on. Caller holds the booking lock.
func (s *lifecycleService) complete(ctx context.Context, b domain.Booking) error {
	if b.Status != domain.BookingInUse {
		if b.Status == domain.BookingConfirmed {
			return domain.ErrNotCheckedIn
		}
		return domain.StatusError(b.Status)
	}
	s.sched.Cancel(b.ID)
	if _, err := s.bookings.MarkCompleted(b.ID); err != nil {
		return err
	}
	s.publish(domain.EventBookingCompleted, b.RoomID, b.ID)
	s.releaseAndPromote(ctx, b.RoomID, b.ID, domain.RoomAvailable)
	return nil
}

// releaseAndPromote frees the room if bookingID still holds it, announces it, and passes it to
// the next queued booking.
func (s *lifecycleService) releaseAndPromote(ctx context.Context, roomID, bookingID string, via domain.RoomStatus) {
	if s.releaseRoom(ctx, roomID, bookingID, via) {
		s.publish(domain.EventRoomAvailable, roomID, "")
	}
	s.promote(ctx, roomID)
}

// releaseRoom clears the room if bookingID holds it, passing through via, and leaves it
// AVAILABLE. It reports whether the room was freed.
func (s *lifecycleService) releaseRoom(ctx context.Context, roomID, bookingID string, via domain.RoomStatus) bool {
	defer s.lock(roomKey(roomID))()

	room, err := s.rooms.GetRoom(roomID)
	if err != nil || room.CurrentBookingID != bookingID {
		return false
	}
	if err := s.rooms.ClearBooking(roomID, via); err != nil {
		logger.ErrorContext(ctx, "Failed to clear room", "room_id", roomID, "error", err)
		return false
	}
	if via != domain.RoomAvailable {
		if err := s.rooms.SetStatus(roomID, domain.RoomAvailable); err != nil {
			logger.ErrorContext(ctx, "Failed to reopen room", "room_id", roomID, "error", err)
		}
	}
	return true
}

func (s *lifecycleService) promote(ctx context.Context, roomID string) {
	defer s.lock(roomKey(roomID))()
	s.promoteLocked(ctx, roomID)
}

// promoteLocked points the room at the earliest CONFIRMED booking that has not ended, unless an
// IN_USE booking or an earlier confirmed one already holds it. Caller holds the room lock.
func (s *lifecycleService) promoteLocked(ctx context.Context, roomID string) {
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return
	}
	next, ok := s.bookings.NextConfirmedForRoom(roomID, s.clock.Now())
	if !ok || next.ID == room.CurrentBookingID {
		return
	}
	if holder := room.CurrentBookingID; holder != "" {
		hb, err := s.bookings.Get(holder)
		if err == nil && (hb.Status == domain.BookingInUse ||
			(hb.Status == domain.BookingConfirmed && !next.StartTime.Before(hb.StartTime))) {
			return
		}
		if err := s.rooms.ClearBooking(roomID, domain.RoomAvailable); err != nil {
			logger.ErrorContext(ctx, "Failed to clear room for promotion", "room_id", roomID, "error", err)
			return
		}
	}
	if err := s.rooms.AssignBooking(roomID, next.ID); err != nil {
		logger.ErrorContext(ctx, "Failed to assign room", "room_id", roomID, "booking_id", next.ID, "error", err)
		return
	}
	s.publish(domain.EventRoomReserved, roomID, next.ID)
	logger.InfoContext(ctx, "Room reserved", "room_id", roomID, "holder", next.ID)
}

func (s *lifecycleService) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	return s.snapshot(bookingID)
}

func (s *lifecycleService) ListBookings(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.bookings.List(filter), nil
}

func (s *lifecycleService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := s.rooms.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *lifecycleService) ListRooms(ctx context.Context) ([]domain.Room, error) {
	return s.rooms.List(), nil
}

func (s *lifecycleService) AddRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	if roomID == "" {
		return nil, fmt.Errorf("%w: room id required", domain.ErrInvalidState)
	}
	if _, err := s.rooms.GetRoom(roomID); err == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRoomExists, roomID)
	}
	if s.catalog != nil {
		if err := s.catalog.AddRoom(ctx, roomID); err != nil {
			return nil, fmt.Errorf("failed to persist room: %w", err)
		}
	}
	room, err := s.rooms.Add(roomID)
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Room added", "room_id", roomID)
	return &room, nil
}

func (s *lifecycleService) RoomStatusAt(ctx context.Context, roomID string, at time.Time) (*RoomStatusView, error) {
	if _, err := s.rooms.GetRoom(roomID); err != nil {
		return nil, err
	}
	view := &RoomStatusView{RoomID: roomID, At: at, Status: domain.RoomAvailable}
	if b, ok := s.bookings.FindActiveForRoom(roomID, at); ok {
		view.Status = b.Status.RoomStatus()
		view.BookingID = b.ID
	}
	return view, nil
}

// Shutdown stops the timers and waits for callbacks already running.
func (s *lifecycleService) Shutdown(ctx context.Context) error {
	return s.sched.Shutdown(ctx)
}

func (s *lifecycleService) Metrics() map[string]float64 {
	m := map[string]float64{
		"lifecycle_pending_timers":         float64(s.sched.Len()),
		"lifecycle_checkins_total":         float64(s.checkIns.Load()),
		"lifecycle_no_shows_total":         float64(s.noShows.Load()),
		"lifecycle_stale_timer_fires":      float64(s.staleFires.Load()),
		"lifecycle_gateway_failures_total": float64(s.gatewayFailures.Load()),
	}
	for _, st := range []domain.BookingStatus{
		domain.BookingConfirmed, domain.BookingInUse, domain.BookingNoShow, domain.BookingCancelled, domain.BookingCompleted,
	} {
		status := st
		m[fmt.Sprintf("lifecycle_bookings{status=%q}", st)] = float64(len(s.bookings.List(domain.BookingFilter{Status: &status})))
	}
	return m
}

func (s *lifecycleService) ownedBooking(bookingID, userID string) (domain.Booking, error) {
	b, err := s.bookings.Get(bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if !b.IsOwner(userID) {
		return domain.Booking{}, fmt.Errorf("%w: booking %s belongs to another user", domain.ErrForbidden, bookingID)
	}
	return b, nil
}

func (s *lifecycleService) snapshot(bookingID string) (*domain.Booking, error) {
	b, err := s.bookings.Get(bookingID)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *lifecycleService) authorize(ctx context.Context, userID string) (payments.Authorization, error) {
	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	auth, err := s.gateway.Authorize(gctx, userID, s.cfg.DepositAmount)
	if err != nil {
		s.gatewayFailures.Add(1)
		return payments.Authorization{}, asUnavailable("authorize deposit", err)
	}
	return auth, nil
}

// settleDeposits applies op to every unsettled deposit of b and records the ones that went
// through. The first failure stops the run.
func (s *lifecycleService) settleDeposits(ctx context.Context, b domain.Booking, op func(context.Context, string) error, name string) error {
	var done []string
	var opErr error
	for _, ref := range b.UnsettledDeposits() {
		gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		err := op(gctx, ref)
		cancel()
		if err != nil {
			s.gatewayFailures.Add(1)
			opErr = asUnavailable(name+" deposit "+ref, err)
			break
		}
		done = append(done, ref)
	}
	if len(done) > 0 {
		if _, err := s.bookings.SettleDeposits(b.ID, done); err != nil {
			logger.ErrorContext(ctx, "Failed to record settled deposits", "refs", done, "error", err)
		}
	}
	return opErr
}

// compensate releases a hold taken for a booking that was never committed.
func (s *lifecycleService) compensate(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	if err := s.gateway.Refund(gctx, ref); err != nil {
		s.gatewayFailures.Add(1)
		logger.ErrorContext(ctx, "Failed to release uncommitted deposit", "ref", ref, "error", err)
	}
}

func (s *lifecycleService) publish(kind domain.EventKind, roomID, bookingID string) {
	s.events.Publish(domain.Event{Kind: kind, RoomID: roomID, BookingID: bookingID, OccurredAt: s.clock.Now()})
}

func (s *lifecycleService) startBookingSpan(ctx context.Context, name, bookingID string) (context.Context, trace.Span) {
	return s.tracer.Start(logger.WithBooking(ctx, bookingID), name, trace.WithAttributes(attribute.String("booking.id", bookingID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func asUnavailable(op string, err error) error {
	if errors.Is(err, domain.ErrGatewayUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrGatewayUnavailable, err)
}
