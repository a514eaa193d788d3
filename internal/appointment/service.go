package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/clinic-appointment-booking/internal/redis"
)

const (
	MsgPastDate       = "Cannot book appointments in the past"
	MsgNoAvailability = "No availability set for this date"
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	events EventEmitter
	log    *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the clinic time zone used for dates and window offsets.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func NewService(repo Repository, locker redisclient.Locker, events EventEmitter, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		locker: locker,
		events: events,
		log:    log,
		loc:    time.UTC,
		now:    time.Now,
	}
	if s.locker == nil {
		s.locker = redisclient.NoopLocker{}
	}
	if s.events == nil {
		s.events = noopEmitter{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

// dateIn is the midnight of d's calendar date in the clinic location.
func (s *Service) dateIn(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, s.loc)
}

// GetAvailability lists the bookable slots of a doctor at a clinic on one date.
func (s *Service) GetAvailability(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time) (*Availability, error) {
	if doctorID == uuid.Nil || clinicID == uuid.Nil || date.IsZero() {
		return nil, invalid("doctor_id, clinic_id and date are required")
	}

	now := s.clock()
	day := s.dateIn(date)
	if day.Before(dayOf(now)) {
		return &Availability{Date: day, Slots: []Slot{}, Message: MsgPastDate}, nil
	}

	dc, err := s.repo.GetDoctorClinic(ctx, doctorID, clinicID)
	if err != nil {
		return nil, fmt.Errorf("load doctor clinic: %w", err)
	}

	windows, err := s.repo.ListWindows(ctx, dc.ID, day)
	if err != nil {
		return nil, fmt.Errorf("load availability windows: %w", err)
	}
	windows = openWindows(windows)
	if len(windows) == 0 {
		return &Availability{Date: day, Slots: []Slot{}, Message: MsgNoAvailability}, nil
	}

	booked, err := s.repo.BookedTimes(ctx, doctorID, clinicID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("load booked times: %w", err)
	}
	taken := make(map[int64]struct{}, len(booked))
	for _, t := range booked {
		taken[t.UnixNano()] = struct{}{}
	}

	res := &Availability{Date: day, Slots: []Slot{}, Booked: len(taken)}
	for _, w := range windows {
		for t := range Slots(w, now) {
			_, isTaken := taken[t.UnixNano()]
			res.Slots = append(res.Slots, Slot{Start: t, Taken: isTaken})
			res.Total++
			if !isTaken {
				res.Available++
			}
		}
	}
	return res, nil
}

func openWindows(windows []AvailabilityWindow) []AvailabilityWindow {
	open := windows[:0:0]
	for _, w := range windows {
		if w.Available {
			open = append(open, w)
		}
	}
	return open
}

// BookAppointment admits a booking if the requested time is a free slot of an
// available window. The checks and the insert commit together.
func (s *Service) BookAppointment(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := validateBooking(req); err != nil {
		return nil, err
	}

	at := req.ScheduledTime.In(s.loc)
	if !at.After(s.clock()) {
		return nil, ErrPastTime
	}

	var created *Appointment
	key := redisclient.SlotKey(req.DoctorID, req.ClinicID, at)
	err := s.locker.WithSlotLock(ctx, key, func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(ctx context.Context) error {
			if err := s.admit(ctx, req.DoctorID, req.ClinicID, at, uuid.Nil); err != nil {
				return err
			}

			a, err := s.repo.InsertBooked(ctx, &Appointment{
				ID:            uuid.New(),
				DoctorID:      req.DoctorID,
				ClinicID:      req.ClinicID,
				PatientID:     req.PatientID,
				ScheduledTime: at,
				Status:        StatusBooked,
				Notes:         req.Notes,
			})
			if err != nil {
				return err
			}
			created = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, nil, *created)
	s.log.Info("appointment booked",
		zap.Stringer("appointment_id", created.ID),
		zap.Stringer("doctor_id", created.DoctorID),
		zap.Stringer("clinic_id", created.ClinicID),
		zap.Time("scheduled_time", created.ScheduledTime),
	)
	return created, nil
}

// admit runs the storage-backed admission checks for at, in order. self is the
// appointment being moved, whose own slot does not count as taken.
func (s *Service) admit(ctx context.Context, doctorID, clinicID uuid.UUID, at time.Time, self uuid.UUID) error {
	dc, err := s.repo.GetDoctorClinic(ctx, doctorID, clinicID)
	if err != nil {
		return fmt.Errorf("load doctor clinic: %w", err)
	}

	windows, err := s.repo.LockWindows(ctx, dc.ID, s.dateIn(at))
	if err != nil {
		return fmt.Errorf("load availability windows: %w", err)
	}
	windows = openWindows(windows)
	if len(windows) == 0 {
		return ErrNotAvailable
	}

	w, ok := windowFor(windows, at)
	if !ok {
		return ErrOutOfWindow
	}
	if !Aligned(w, at) {
		return ErrMisalignedSlot
	}

	holder, err := s.repo.SlotHolder(ctx, doctorID, clinicID, at)
	switch {
	case errors.Is(err, ErrAppointmentNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("check slot: %w", err)
	case holder.ID != self:
		return ErrSlotTaken
	}
	return nil
}

// CancelAppointment cancels a patient's own upcoming appointment. The row is kept.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID, patientID uuid.UUID) (*Appointment, error) {
	var before, after *Appointment

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		a, err := s.lockOwned(ctx, appointmentID, patientID)
		if err != nil {
			return err
		}

		next := *a
		next.Status = StatusCancelled
		if _, err := Transition(a, next); err != nil {
			return err
		}

		updated, err := s.repo.UpdateAppointment(ctx, a.ID, a.Status, next)
		if err != nil {
			return err
		}
		before, after = a, updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, before, *after)
	s.log.Info("appointment cancelled", zap.Stringer("appointment_id", after.ID))
	return after, nil
}

// lockOwned loads the appointment for update and applies the checks shared by
// cancel and reschedule: ownership, not cancelled, not elapsed.
func (s *Service) lockOwned(ctx context.Context, appointmentID, patientID uuid.UUID) (*Appointment, error) {
	a, err := s.repo.LockAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	// someone else's appointment is indistinguishable from a missing one
	if a.PatientID != patientID {
		return nil, ErrAppointmentNotFound
	}
	if a.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if a.ScheduledTime.Before(s.clock()) {
		return nil, ErrPastAppointment
	}
	return a, nil
}

type RescheduleResult struct {
	Appointment  *Appointment
	PreviousTime time.Time
}

// RescheduleAppointment moves an appointment to newTime in place. newTime is
// admitted like a fresh booking; the appointment's current slot is released by
// the same update.
func (s *Service) RescheduleAppointment(ctx context.Context, appointmentID, patientID uuid.UUID, newTime time.Time) (*RescheduleResult, error) {
	if appointmentID == uuid.Nil || patientID == uuid.Nil {
		return nil, invalid("appointment_id and patient_id are required")
	}
	if newTime.IsZero() {
		return nil, invalid("scheduled_time is required")
	}
	at := newTime.In(s.loc)

	// the slot lock key needs the doctor and clinic; the row is re-read under lock below
	current, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	var before, after *Appointment
	key := redisclient.SlotKey(current.DoctorID, current.ClinicID, at)
	err = s.locker.WithSlotLock(ctx, key, func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(ctx context.Context) error {
			a, err := s.lockOwned(ctx, appointmentID, patientID)
			if err != nil {
				return err
			}
			if a.ScheduledTime.Equal(at) {
				return invalid("scheduled_time must differ from the current appointment time")
			}
			if !at.After(s.clock()) {
				return ErrPastTime
			}
			if err := s.admit(ctx, a.DoctorID, a.ClinicID, at, a.ID); err != nil {
				return err
			}

			next := *a
			next.Status = StatusRescheduled
			next.ScheduledTime = at
			if _, err := Transition(a, next); err != nil {
				return err
			}

			updated, err := s.repo.UpdateAppointment(ctx, a.ID, a.Status, next)
			if err != nil {
				return err
			}
			before, after = a, updated
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, before, *after)
	s.log.Info("appointment rescheduled",
		zap.Stringer("appointment_id", after.ID),
		zap.Time("old_time", before.ScheduledTime),
		zap.Time("new_time", after.ScheduledTime),
	)
	return &RescheduleResult{Appointment: after, PreviousTime: before.ScheduledTime}, nil
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	return limit, max(offset, 0)
}

// ListPatientAppointments returns the patient's upcoming non-cancelled appointments.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = page(limit, offset)
	appointments, err := s.repo.ListUpcomingByPatient(ctx, patientID, s.clock(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// ListDoctorAppointments returns the doctor's upcoming non-cancelled
// appointments across all clinics.
func (s *Service) ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = page(limit, offset)
	appointments, err := s.repo.ListUpcomingByDoctor(ctx, doctorID, s.clock(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appointments, nil
}

// ListPastAppointments returns the elapsed appointments of a doctor or a
// patient, newest first. Exactly one of party's ids must be set.
func (s *Service) ListPastAppointments(ctx context.Context, party Party, limit, offset int) ([]Appointment, error) {
	if (party.DoctorID == uuid.Nil) == (party.PatientID == uuid.Nil) {
		return nil, invalid("exactly one of doctor_id and patient_id is required")
	}
	limit, offset = page(limit, offset)
	appointments, err := s.repo.ListPast(ctx, party, s.clock(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list past appointments: %w", err)
	}
	return appointments, nil
}

// ListDoctorClinics returns the clinics the doctor practices at, oldest pairing first.
func (s *Service) ListDoctorClinics(ctx context.Context, doctorID uuid.UUID) ([]DoctorClinic, error) {
	if doctorID == uuid.Nil {
		return nil, invalid("doctor_id is required")
	}
	clinics, err := s.repo.ListDoctorClinics(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list doctor clinics: %w", err)
	}
	return clinics, nil
}

// RegisterDoctorClinic creates the pairing, or updates its fee when it exists.
func (s *Service) RegisterDoctorClinic(ctx context.Context, doctorID, clinicID uuid.UUID, fee *float64) (*DoctorClinic, error) {
	if doctorID == uuid.Nil || clinicID == uuid.Nil {
		return nil, invalid("doctor_id and clinic_id are required")
	}
	if fee != nil && *fee < 0 {
		return nil, invalid("consultation_fee must not be negative")
	}

	dc, err := s.repo.UpsertDoctorClinic(ctx, doctorID, clinicID, fee)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

// DetachDoctorClinic removes a doctor from a clinic. Upcoming active
// appointments are cancelled and every availability window of the pairing is
// deleted in the same transaction. Elapsed appointments are left alone.
func (s *Service) DetachDoctorClinic(ctx context.Context, doctorID, clinicID uuid.UUID) (int, error) {
	type change struct{ before, after Appointment }
	var changes []change

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		dc, err := s.repo.GetDoctorClinic(ctx, doctorID, clinicID)
		if err != nil {
			return fmt.Errorf("load doctor clinic: %w", err)
		}
		if err := s.repo.LockDoctorClinic(ctx, dc.ID); err != nil {
			return fmt.Errorf("lock doctor clinic: %w", err)
		}

		// windows go first so in-flight bookings holding them finish before the scan below
		if _, err := s.repo.DeleteWindowsForDoctorClinic(ctx, dc.ID); err != nil {
			return err
		}

		upcoming, err := s.repo.LockActiveFrom(ctx, doctorID, clinicID, s.clock())
		if err != nil {
			return fmt.Errorf("load upcoming appointments: %w", err)
		}
		for _, a := range upcoming {
			next := a
			next.Status = StatusCancelled
			updated, err := s.repo.UpdateAppointment(ctx, a.ID, a.Status, next)
			if err != nil {
				return fmt.Errorf("cancel appointment %s: %w", a.ID, err)
			}
			changes = append(changes, change{before: a, after: *updated})
		}

		return s.repo.DeleteDoctorClinic(ctx, dc.ID)
	})
	if err != nil {
		return 0, err
	}

	for _, c := range changes {
		s.emit(ctx, &c.before, c.after)
	}
	s.log.Info("doctor detached from clinic",
		zap.Stringer("doctor_id", doctorID),
		zap.Stringer("clinic_id", clinicID),
		zap.Int("cancelled", len(changes)),
	)
	return len(changes), nil
}

// emit derives the lifecycle events of a committed change and hands them off.
func (s *Service) emit(ctx context.Context, before *Appointment, after Appointment) {
	events, err := Transition(before, after)
	if err != nil {
		s.log.Error("derive lifecycle events", zap.Stringer("appointment_id", after.ID), zap.Error(err))
		return
	}
	if len(events) > 0 {
		s.events.Emit(ctx, events...)
	}
}

func validateBooking(req BookingRequest) error {
	var fields []string
	if req.DoctorID == uuid.Nil {
		fields = append(fields, "doctor_id is required")
	}
	if req.ClinicID == uuid.Nil {
		fields = append(fields, "clinic_id is required")
	}
	if req.PatientID == uuid.Nil {
		fields = append(fields, "patient_id is required")
	}
	if req.ScheduledTime.IsZero() {
		fields = append(fields, "scheduled_time is required")
	}
	if len(fields) > 0 {
		return invalid(fields...)
	}
	return nil
}
