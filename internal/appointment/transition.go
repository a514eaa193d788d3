package appointment

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBooked      EventType = "booked"
	EventCancelled   EventType = "cancelled"
	EventRescheduled EventType = "rescheduled"
)

// LifecycleEvent is what the notification side consumes. OldTime is only set for
// rescheduled events.
type LifecycleEvent struct {
	ID            uuid.UUID  `json:"id"`
	Type          EventType  `json:"type"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	ClinicID      uuid.UUID  `json:"clinic_id"`
	OldTime       *time.Time `json:"old_time,omitempty"`
	NewTime       time.Time  `json:"new_time"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// Transition derives the lifecycle events between two snapshots of the same
// appointment. old is nil for a newly created appointment. Neither input is modified.
func Transition(old *Appointment, next Appointment) ([]LifecycleEvent, error) {
	if old == nil {
		if next.Status != StatusBooked {
			return nil, ErrInvalidStatusTransition
		}
		return []LifecycleEvent{newEvent(EventBooked, next, nil)}, nil
	}

	statusChanged := old.Status != next.Status
	timeChanged := !old.ScheduledTime.Equal(next.ScheduledTime)

	if statusChanged && !CanTransition(old.Status, next.Status) {
		return nil, ErrInvalidStatusTransition
	}

	switch {
	case statusChanged && next.Status == StatusCancelled:
		return []LifecycleEvent{newEvent(EventCancelled, next, nil)}, nil
	case timeChanged:
		// rescheduled → rescheduled keeps the status, so the time change alone counts
		if next.Status != StatusRescheduled {
			return nil, ErrInvalidStatusTransition
		}
		if !statusChanged && !CanTransition(old.Status, next.Status) {
			return nil, ErrInvalidStatusTransition
		}
		prev := old.ScheduledTime
		return []LifecycleEvent{newEvent(EventRescheduled, next, &prev)}, nil
	}

	return nil, nil
}

func newEvent(typ EventType, a Appointment, oldTime *time.Time) LifecycleEvent {
	return LifecycleEvent{
		ID:            uuid.New(),
		Type:          typ,
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		PatientID:     a.PatientID,
		ClinicID:      a.ClinicID,
		OldTime:       oldTime,
		NewTime:       a.ScheduledTime,
		OccurredAt:    time.Now(),
	}
}
