package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Directory is the doctor/clinic lookup the core consumes.
type Directory interface {
	// GetDoctorClinic returns ErrNotRegistered when the pairing does not exist.
	GetDoctorClinic(ctx context.Context, doctorID, clinicID uuid.UUID) (*DoctorClinic, error)
	GetDoctorClinicByID(ctx context.Context, id uuid.UUID) (*DoctorClinic, error)
	// LockDoctorClinic serializes window changes and detaching of one pairing.
	LockDoctorClinic(ctx context.Context, id uuid.UUID) error
	UpsertDoctorClinic(ctx context.Context, doctorID, clinicID uuid.UUID, fee *float64) (*DoctorClinic, error)
	DeleteDoctorClinic(ctx context.Context, id uuid.UUID) error
	ListDoctorClinics(ctx context.Context, doctorID uuid.UUID) ([]DoctorClinic, error)
}

// AvailabilityStore holds availability windows keyed by (doctor clinic, date, start).
type AvailabilityStore interface {
	// ListWindows returns every window of the pairing on date, ordered by start.
	ListWindows(ctx context.Context, doctorClinicID uuid.UUID, date time.Time) ([]AvailabilityWindow, error)
	// LockWindows is ListWindows holding a share lock until the transaction ends.
	LockWindows(ctx context.Context, doctorClinicID uuid.UUID, date time.Time) ([]AvailabilityWindow, error)
	ListWindowsBetween(ctx context.Context, doctorClinicID uuid.UUID, from, to time.Time) ([]AvailabilityWindow, error)
	GetWindow(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error)
	// LockWindow loads a window for update.
	LockWindow(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error)
	CreateWindow(ctx context.Context, w *AvailabilityWindow) error
	UpdateWindow(ctx context.Context, w *AvailabilityWindow) error
	DeleteWindow(ctx context.Context, id uuid.UUID) error
	DeleteWindowsForDoctorClinic(ctx context.Context, doctorClinicID uuid.UUID) (int64, error)
}

// Ledger is the record of appointments; booked and rescheduled rows occupy their slot.
type Ledger interface {
	// BookedTimes returns start times held by booked or rescheduled appointments in [from, to).
	BookedTimes(ctx context.Context, doctorID, clinicID uuid.UUID, from, to time.Time) ([]time.Time, error)
	// SlotHolder returns the active appointment at exactly at, or ErrAppointmentNotFound.
	SlotHolder(ctx context.Context, doctorID, clinicID uuid.UUID, at time.Time) (*Appointment, error)
	CountNonCancelled(ctx context.Context, doctorID, clinicID uuid.UUID, from, to time.Time) (int, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// LockAppointment loads an appointment for update.
	LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListUpcomingByPatient(ctx context.Context, patientID uuid.UUID, from time.Time, limit, offset int) ([]Appointment, error)
	ListUpcomingByDoctor(ctx context.Context, doctorID uuid.UUID, from time.Time, limit, offset int) ([]Appointment, error)
	// ListPast returns appointments scheduled before `before`, newest first: the
	// archived history plus elapsed rows not yet archived. Active rows read as completed.
	ListPast(ctx context.Context, party Party, before time.Time, limit, offset int) ([]Appointment, error)
	// LockActiveFrom loads, for update, the active appointments at or after from.
	LockActiveFrom(ctx context.Context, doctorID, clinicID uuid.UUID, from time.Time) ([]Appointment, error)

	// InsertBooked stores a booked appointment. A concurrent active booking of the
	// same slot makes it fail with ErrSlotTaken.
	InsertBooked(ctx context.Context, a *Appointment) (*Appointment, error)
	// UpdateAppointment writes status and time, conditioned on the current status being from.
	UpdateAppointment(ctx context.Context, id uuid.UUID, from AppointmentStatus, next Appointment) (*Appointment, error)
}

// Repository contains all storage interactions needed by the service.
type Repository interface {
	Directory
	AvailabilityStore
	Ledger

	// InTx runs fn in one transaction; every repository call made with the ctx
	// passed to fn joins it. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
