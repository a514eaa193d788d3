package appointment

import (
	"errors"
	"strings"
)

var (
	ErrPastTime         = errors.New("cannot book appointments in the past")
	ErrNotRegistered    = errors.New("doctor is not registered at this clinic")
	ErrNotAvailable     = errors.New("doctor is not available on this date")
	ErrOutOfWindow      = errors.New("scheduled time is outside doctor's availability window")
	ErrMisalignedSlot   = errors.New("scheduled time does not align with slot duration")
	ErrSlotTaken        = errors.New("this slot is already booked")
	ErrAlreadyCancelled = errors.New("appointment is already cancelled")
	ErrPastAppointment  = errors.New("cannot change past appointments")

	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")

	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrClinicNotFound      = errors.New("clinic not found")
	ErrWindowNotFound      = errors.New("availability window not found")

	ErrWindowExists      = errors.New("availability window already exists for this start time")
	ErrWindowOverlap     = errors.New("availability window overlaps an existing window")
	ErrWindowHasBookings = errors.New("availability window has existing appointments")
)

// ValidationError reports malformed input. Never retried.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

func invalid(fields ...string) error {
	return &ValidationError{Fields: fields}
}
