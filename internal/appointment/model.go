package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusBooked      AppointmentStatus = "booked"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusCompleted   AppointmentStatus = "completed"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

// Active reports whether an appointment in this status occupies its slot.
func (s AppointmentStatus) Active() bool {
	return s == StatusBooked || s == StatusRescheduled
}

// Allowed transitions:
//
//	booked      → cancelled | completed | rescheduled
//	rescheduled → cancelled | completed | rescheduled
//
// cancelled and completed are terminal.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusBooked:      {StatusCancelled, StatusCompleted, StatusRescheduled},
	StatusRescheduled: {StatusCancelled, StatusCompleted, StatusRescheduled},
	StatusCancelled:   {},
	StatusCompleted:   {},
}

func CanTransition(from, to AppointmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type DoctorClinic struct {
	ID              uuid.UUID
	DoctorID        uuid.UUID
	ClinicID        uuid.UUID
	ConsultationFee *float64
	CreatedAt       time.Time
}

// AvailabilityWindow is a doctor's bookable interval at one clinic on one date.
// Start and End are offsets from midnight of Date in the clinic location.
type AvailabilityWindow struct {
	ID             uuid.UUID
	DoctorClinicID uuid.UUID
	Date           time.Time
	Start          time.Duration
	End            time.Duration
	SlotDuration   time.Duration
	Available      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StartsAt returns the instant the window opens.
func (w AvailabilityWindow) StartsAt() time.Time {
	return atOffset(w.Date, w.Start)
}

// EndsAt returns the instant the window closes (exclusive).
func (w AvailabilityWindow) EndsAt() time.Time {
	return atOffset(w.Date, w.End)
}

type Appointment struct {
	ID            uuid.UUID
	DoctorID      uuid.UUID
	ClinicID      uuid.UUID
	PatientID     uuid.UUID
	ScheduledTime time.Time
	Status        AppointmentStatus
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Slot is a candidate start time derived from a window. Never persisted.
type Slot struct {
	Start time.Time
	Taken bool
}

// Availability is the resolver output for one doctor, clinic and date.
type Availability struct {
	Date      time.Time
	Slots     []Slot
	Total     int
	Available int
	Booked    int
	Message   string
}

// Free returns the start times of slots nobody holds, in order.
func (a *Availability) Free() []time.Time {
	free := make([]time.Time, 0, a.Available)
	for _, s := range a.Slots {
		if !s.Taken {
			free = append(free, s.Start)
		}
	}
	return free
}

// Party selects whose appointments a listing returns.
type Party struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
}

type BookingRequest struct {
	DoctorID      uuid.UUID
	ClinicID      uuid.UUID
	PatientID     uuid.UUID
	ScheduledTime time.Time
	Notes         string
}

// WindowInput carries the doctor-editable fields of an availability window.
type WindowInput struct {
	Date         time.Time
	Start        time.Duration
	End          time.Duration
	SlotDuration time.Duration
	Available    bool
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// dayOf truncates t to midnight in its own location.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// atOffset resolves a wall-clock offset on the given date. time.Date normalises the
// overflowing nanosecond field before zone conversion, so DST days keep the wall-clock reading.
func atOffset(date time.Time, offset time.Duration) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, int(offset), date.Location())
}
