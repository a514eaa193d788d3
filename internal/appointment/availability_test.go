package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func windowInput(day time.Time, h1, m1, h2, m2 int, slot time.Duration) WindowInput {
	return WindowInput{
		Date:         day,
		Start:        time.Duration(h1)*time.Hour + time.Duration(m1)*time.Minute,
		End:          time.Duration(h2)*time.Hour + time.Duration(m2)*time.Minute,
		SlotDuration: slot,
		Available:    true,
	}
}

func TestCreateAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w, err := f.svc.CreateAvailability(ctx, f.doctor, f.clinic, windowInput(tomorrow, 9, 0, 12, 0, 30*time.Minute))
	if err != nil {
		t.Fatalf("CreateAvailability: %v", err)
	}
	if w.DoctorClinicID != f.dc.ID || !w.StartsAt().Equal(hm(tomorrow, 9, 0)) {
		t.Fatalf("unexpected window %+v", w)
	}

	tests := []struct {
		name string
		in   WindowInput
		want error
	}{
		{"same start", windowInput(tomorrow, 9, 0, 10, 0, 15*time.Minute), ErrWindowExists},
		{"overlap", windowInput(tomorrow, 11, 30, 13, 0, 15*time.Minute), ErrWindowOverlap},
		{"enclosing", windowInput(tomorrow, 8, 0, 13, 0, 15*time.Minute), ErrWindowOverlap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAvailability(ctx, f.doctor, f.clinic, tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	// touching windows do not overlap
	if _, err := f.svc.CreateAvailability(ctx, f.doctor, f.clinic, windowInput(tomorrow, 12, 0, 13, 0, 30*time.Minute)); err != nil {
		t.Fatalf("adjacent window rejected: %v", err)
	}
	if _, err := f.svc.CreateAvailability(ctx, f.doctor, uuid.New(), windowInput(tomorrow, 9, 0, 10, 0, 30*time.Minute)); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("unknown pairing: expected ErrNotRegistered, got %v", err)
	}
}

func TestCreateAvailability_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   WindowInput
	}{
		{"start after end", windowInput(tomorrow, 12, 0, 9, 0, 30*time.Minute)},
		{"empty range", windowInput(tomorrow, 9, 0, 9, 0, 30*time.Minute)},
		{"zero slot", windowInput(tomorrow, 9, 0, 10, 0, 0)},
		{"fractional minutes", windowInput(tomorrow, 9, 0, 10, 0, 90*time.Second)},
		{"past midnight", windowInput(tomorrow, 22, 0, 25, 0, 30*time.Minute)},
		{"no date", windowInput(time.Time{}, 9, 0, 10, 0, 30*time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAvailability(context.Background(), f.doctor, f.clinic, tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestUpdateAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.window(tomorrow, 9, 10, 15*time.Minute)
	other := f.window(tomorrow, 14, 15, 15*time.Minute)

	updated, err := f.svc.UpdateAvailability(ctx, w.ID, windowInput(tomorrow, 9, 0, 11, 0, 20*time.Minute))
	if err != nil {
		t.Fatalf("UpdateAvailability: %v", err)
	}
	if updated.End != 11*time.Hour || updated.SlotDuration != 20*time.Minute {
		t.Fatalf("unexpected window %+v", updated)
	}

	if _, err := f.svc.UpdateAvailability(ctx, w.ID, windowInput(tomorrow, 9, 0, 14, 30, 20*time.Minute)); !errors.Is(err, ErrWindowOverlap) {
		t.Fatalf("expected ErrWindowOverlap, got %v", err)
	}
	if _, err := f.svc.UpdateAvailability(ctx, uuid.New(), windowInput(tomorrow, 9, 0, 10, 0, 20*time.Minute)); !errors.Is(err, ErrWindowNotFound) {
		t.Fatalf("expected ErrWindowNotFound, got %v", err)
	}

	// a booking in the old range blocks any change
	f.mustBook(hm(tomorrow, 14, 15))
	if _, err := f.svc.UpdateAvailability(ctx, other.ID, windowInput(tomorrow.AddDate(0, 0, 1), 14, 0, 15, 0, 15*time.Minute)); !errors.Is(err, ErrWindowHasBookings) {
		t.Fatalf("expected ErrWindowHasBookings, got %v", err)
	}
}

func TestUpdateAvailability_NewRangeHoldsBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booked := f.window(tomorrow, 9, 10, 15*time.Minute)
	f.mustBook(hm(tomorrow, 9, 30))

	// the booking outlives its window; no other window may be stretched over it
	later := f.window(tomorrow, 10, 11, 15*time.Minute)
	f.repo.mu.Lock()
	delete(f.repo.windows, booked.ID)
	f.repo.mu.Unlock()

	if _, err := f.svc.UpdateAvailability(ctx, later.ID, windowInput(tomorrow, 9, 0, 11, 0, 15*time.Minute)); !errors.Is(err, ErrWindowHasBookings) {
		t.Fatalf("expected ErrWindowHasBookings, got %v", err)
	}
}

func TestDeleteAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.window(tomorrow, 9, 10, 15*time.Minute)
	a := f.mustBook(hm(tomorrow, 9, 0))

	if err := f.svc.DeleteAvailability(ctx, w.ID); !errors.Is(err, ErrWindowHasBookings) {
		t.Fatalf("expected ErrWindowHasBookings, got %v", err)
	}

	if _, err := f.svc.CancelAppointment(ctx, a.ID, f.patient); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.DeleteAvailability(ctx, w.ID); err != nil {
		t.Fatalf("DeleteAvailability after cancel: %v", err)
	}
	if err := f.svc.DeleteAvailability(ctx, w.ID); !errors.Is(err, ErrWindowNotFound) {
		t.Fatalf("expected ErrWindowNotFound, got %v", err)
	}
}

func TestListAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.window(tomorrow, 9, 10, 15*time.Minute)
	f.window(tomorrow.AddDate(0, 0, 3), 9, 10, 15*time.Minute)
	f.window(tomorrow.AddDate(0, 0, 10), 9, 10, 15*time.Minute)

	got, err := f.svc.ListAvailability(ctx, f.doctor, f.clinic, tomorrow, tomorrow.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("ListAvailability: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d windows, want 2", len(got))
	}

	if _, err := f.svc.ListAvailability(ctx, f.doctor, f.clinic, tomorrow, today); err == nil {
		t.Fatal("expected error for inverted range")
	}
}
