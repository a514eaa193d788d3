package appointment

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestTransition(t *testing.T) {
	base := Appointment{
		ID:            uuid.New(),
		DoctorID:      uuid.New(),
		ClinicID:      uuid.New(),
		PatientID:     uuid.New(),
		ScheduledTime: hm(tomorrow, 9, 0),
		Status:        StatusBooked,
	}
	with := func(status AppointmentStatus, h, m int) Appointment {
		a := base
		a.Status = status
		a.ScheduledTime = hm(tomorrow, h, m)
		return a
	}

	cancelled := with(StatusCancelled, 9, 0)
	completed := with(StatusCompleted, 9, 0)
	rescheduled := with(StatusRescheduled, 9, 30)

	tests := []struct {
		name    string
		old     *Appointment
		next    Appointment
		want    []EventType
		wantErr error
	}{
		{"create booked", nil, base, []EventType{EventBooked}, nil},
		{"create cancelled", nil, cancelled, nil, ErrInvalidStatusTransition},
		{"cancel", &base, cancelled, []EventType{EventCancelled}, nil},
		{"reschedule", &base, rescheduled, []EventType{EventRescheduled}, nil},
		{"complete emits nothing", &base, completed, nil, nil},
		{"no change", &base, base, nil, nil},
		{"time change without reschedule status", &base, with(StatusBooked, 9, 30), nil, ErrInvalidStatusTransition},
		{"status-only reschedule", &base, with(StatusRescheduled, 9, 0), nil, nil},
		{"no resurrection", &cancelled, base, nil, ErrInvalidStatusTransition},
		{"completed is terminal", &completed, cancelled, nil, ErrInvalidStatusTransition},
		{"reschedule again", &rescheduled, with(StatusRescheduled, 10, 0), []EventType{EventRescheduled}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var before Appointment
			if tt.old != nil {
				before = *tt.old
			}

			got, err := Transition(tt.old, tt.next)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.want))
			}
			for i, ev := range got {
				if ev.Type != tt.want[i] {
					t.Errorf("event %d type = %s, want %s", i, ev.Type, tt.want[i])
				}
				if ev.AppointmentID != tt.next.ID || !ev.NewTime.Equal(tt.next.ScheduledTime) {
					t.Errorf("event %d does not describe the new snapshot: %+v", i, ev)
				}
			}
			if tt.old != nil && *tt.old != before {
				t.Fatal("Transition modified its input")
			}
		})
	}
}

func TestTransition_RescheduledCarriesOldTime(t *testing.T) {
	old := Appointment{ID: uuid.New(), ScheduledTime: hm(tomorrow, 9, 0), Status: StatusBooked}
	next := old
	next.Status = StatusRescheduled
	next.ScheduledTime = hm(tomorrow, 11, 0)

	evs, err := Transition(&old, next)
	if err != nil {
		t.Fatal(err)
	}
	if evs[0].OldTime == nil || !evs[0].OldTime.Equal(old.ScheduledTime) {
		t.Fatalf("OldTime = %v, want %s", evs[0].OldTime, old.ScheduledTime)
	}
}

func TestCanTransition(t *testing.T) {
	for _, from := range []AppointmentStatus{StatusCancelled, StatusCompleted} {
		for _, to := range []AppointmentStatus{StatusBooked, StatusCancelled, StatusCompleted, StatusRescheduled} {
			if CanTransition(from, to) {
				t.Errorf("%s is terminal but allows -> %s", from, to)
			}
		}
	}
	if !CanTransition(StatusBooked, StatusRescheduled) || !CanTransition(StatusRescheduled, StatusRescheduled) {
		t.Error("reschedule transitions missing")
	}
}
