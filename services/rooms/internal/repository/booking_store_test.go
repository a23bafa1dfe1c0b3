package repository_test

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/diagnosis/roomlife/services/rooms/internal/domain"
	"github.com/diagnosis/roomlife/services/rooms/internal/repository"
)

var base = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

func booking(id, room string, startMin, endMin int) domain.Booking {
	return domain.Booking{
		ID:        id,
		RoomID:    room,
		UserID:    "u1",
		StartTime: base.Add(time.Duration(startMin) * time.Minute),
		EndTime:   base.Add(time.Duration(endMin) * time.Minute),
		Status:    domain.BookingConfirmed,
		Deposits:  []domain.Deposit{{Ref: "dep-" + id, Amount: 2000, Status: domain.DepositApproved}},
	}
}

func newStore(t *testing.T, bs ...domain.Booking) repository.BookingStore {
	t.Helper()
	store := repository.NewBookingStore(clockwork.NewFakeClockAt(base))
	for _, b := range bs {
		if err := store.Put(b); err != nil {
			t.Fatalf("put %s: %v", b.ID, err)
		}
	}
	return store
}

func TestBookingStore_PutGetReturnsCopies(t *testing.T) {
	store := newStore(t, booking("b1", "R1", 60, 120))

	if err := store.Put(booking("b1", "R1", 200, 260)); !errors.Is(err, domain.ErrBookingExists) {
		t.Errorf("duplicate put err = %v", err)
	}

	got, err := store.Get("b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Deposits[0].Settled = true
	got.Status = domain.BookingCancelled

	again, _ := store.Get("b1")
	if again.Status != domain.BookingConfirmed || again.Deposits[0].Settled {
		t.Errorf("store was mutated through a returned copy: %+v", again)
	}

	if _, err := store.Get("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing booking err = %v", err)
	}
}

func TestBookingStore_OverlapAndActive(t *testing.T) {
	store := newStore(t,
		booking("b1", "R1", 60, 120),
		booking("b2", "R1", 120, 180),
		booking("b3", "R2", 60, 120),
	)

	if got := store.Overlapping("R1", base.Add(90*time.Minute), base.Add(130*time.Minute), ""); len(got) != 2 {
		t.Errorf("overlap across b1/b2 = %d bookings, want 2", len(got))
	}
	if got := store.Overlapping("R1", base.Add(90*time.Minute), base.Add(130*time.Minute), "b1"); len(got) != 1 || got[0].ID != "b2" {
		t.Errorf("overlap excluding b1 = %+v", got)
	}
	if got := store.Overlapping("R1", base, base.Add(60*time.Minute), ""); len(got) != 0 {
		t.Errorf("touching window should not overlap, got %+v", got)
	}

	active, ok := store.FindActiveForRoom("R1", base.Add(120*time.Minute))
	if !ok || active.ID != "b2" {
		t.Errorf("active at 11:00 = %v %v, want b2", active.ID, ok)
	}

	if _, err := store.MarkCancelled("b2"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, ok := store.FindActiveForRoom("R1", base.Add(130*time.Minute)); ok {
		t.Error("cancelled booking still reported active")
	}
	if got := store.Overlapping("R1", base.Add(120*time.Minute), base.Add(180*time.Minute), ""); len(got) != 0 {
		t.Errorf("cancelled booking still overlaps: %+v", got)
	}
}

func TestBookingStore_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(repository.BookingStore)
		apply   func(repository.BookingStore) (domain.Booking, error)
		wantErr error
		want    domain.BookingStatus
	}{
		{
			name:  "check in confirmed",
			apply: func(s repository.BookingStore) (domain.Booking, error) { return s.MarkCheckedIn("b1", base) },
			want:  domain.BookingInUse,
		},
		{
			name:    "check in after no-show",
			prepare: func(s repository.BookingStore) { _, _ = s.MarkNoShow("b1") },
			apply:   func(s repository.BookingStore) (domain.Booking, error) { return s.MarkCheckedIn("b1", base) },
			wantErr: domain.ErrTooLate,
		},
		{
			name:    "no-show after check in",
			prepare: func(s repository.BookingStore) { _, _ = s.MarkCheckedIn("b1", base) },
			apply:   func(s repository.BookingStore) (domain.Booking, error) { return s.MarkNoShow("b1") },
			wantErr: domain.ErrAlreadyCheckedIn,
		},
		{
			name:    "complete before check in",
			apply:   func(s repository.BookingStore) (domain.Booking, error) { return s.MarkCompleted("b1") },
			wantErr: domain.ErrNotCheckedIn,
		},
		{
			name:    "complete in use",
			prepare: func(s repository.BookingStore) { _, _ = s.MarkCheckedIn("b1", base) },
			apply:   func(s repository.BookingStore) (domain.Booking, error) { return s.MarkCompleted("b1") },
			want:    domain.BookingCompleted,
		},
		{
			name:    "cancel twice",
			prepare: func(s repository.BookingStore) { _, _ = s.MarkCancelled("b1") },
			apply:   func(s repository.BookingStore) (domain.Booking, error) { return s.MarkCancelled("b1") },
			wantErr: domain.ErrAlreadyCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t, booking("b1", "R1", 60, 120))
			if tt.prepare != nil {
				tt.prepare(store)
			}
			got, err := tt.apply(store)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
		})
	}
}

func TestBookingStore_ForfeitRecordedOnce(t *testing.T) {
	store := newStore(t, booking("b1", "R1", 60, 120))

	if _, err := store.SetForfeit("b1", true); err == nil {
		t.Fatal("forfeit on CONFIRMED booking should fail")
	}
	if _, err := store.MarkNoShow("b1"); err != nil {
		t.Fatalf("no-show: %v", err)
	}
	got, err := store.SetForfeit("b1", true)
	if err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	if !got.DepositForfeited || !got.ForfeitNotified {
		t.Errorf("forfeit flags = %+v", got)
	}
	if _, err := store.SetForfeit("b1", true); !errors.Is(err, domain.ErrInvalidState) {
		t.Errorf("second forfeit err = %v", err)
	}
}

func TestBookingStore_DepositsAndExtension(t *testing.T) {
	store := newStore(t, booking("b1", "R1", 60, 120))

	if _, err := store.AddDeposit("b1", domain.Deposit{Ref: "dep-x", Amount: 2000, Status: domain.DepositPending}); err != nil {
		t.Fatalf("add deposit: %v", err)
	}
	got, _ := store.Get("b1")
	if refs := got.UnsettledDeposits(); len(refs) != 2 {
		t.Fatalf("unsettled = %v, want 2", refs)
	}

	got, err := store.SettleDeposits("b1", []string{"dep-b1"})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if refs := got.UnsettledDeposits(); len(refs) != 1 || refs[0] != "dep-x" {
		t.Errorf("unsettled after settle = %v", refs)
	}

	if _, err := store.SetEndTime("b1", base); !errors.Is(err, domain.ErrInvalidWindow) {
		t.Errorf("end before start err = %v", err)
	}
	got, err = store.SetEndTime("b1", base.Add(150*time.Minute))
	if err != nil || !got.EndTime.Equal(base.Add(150*time.Minute)) {
		t.Errorf("extend = %v, %v", got.EndTime, err)
	}
}

func TestBookingStore_ListAndNext(t *testing.T) {
	store := newStore(t,
		booking("b3", "R1", 240, 300),
		booking("b1", "R1", 60, 120),
		booking("b2", "R2", 60, 120),
	)
	_, _ = store.MarkCancelled("b1")

	all := store.List(domain.BookingFilter{})
	if len(all) != 3 || all[0].StartTime.After(all[2].StartTime) {
		t.Errorf("List() not sorted by start: %+v", all)
	}

	confirmed := domain.BookingConfirmed
	got := store.List(domain.BookingFilter{RoomID: "R1", Status: &confirmed})
	if len(got) != 1 || got[0].ID != "b3" {
		t.Errorf("filtered list = %+v", got)
	}
	if got := store.List(domain.BookingFilter{Limit: 1, Offset: 1}); len(got) != 1 {
		t.Errorf("paged list = %+v", got)
	}
	if got := store.List(domain.BookingFilter{Offset: 10}); len(got) != 0 {
		t.Errorf("offset past end = %+v", got)
	}

	next, ok := store.NextConfirmedForRoom("R1", base)
	if !ok || next.ID != "b3" {
		t.Errorf("next confirmed = %v %v, want b3", next.ID, ok)
	}
	if _, ok := store.NextConfirmedForRoom("R1", base.Add(300*time.Minute)); ok {
		t.Error("booking that already ended should not be next")
	}
}
