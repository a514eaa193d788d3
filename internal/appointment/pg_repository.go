package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-appointment-booking/internal/db"
)

const (
	activeSlotConstraint   = "appointments_active_slot_uq"
	windowSlotConstraint   = "availability_windows_slot_uq"
	patientFKConstraint    = "appointments_patient_id_fkey"
	pairDoctorFKConstraint = "doctor_clinics_doctor_id_fkey"
	pairClinicFKConstraint = "doctor_clinics_clinic_id_fkey"
	windowPairFKConstraint = "availability_windows_doctor_clinic_id_fkey"
)

// PgRepository implements Repository on Postgres. Dates and times are read back
// in loc, the clinic time zone.
type PgRepository struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

func NewPgRepository(pool *pgxpool.Pool, loc *time.Location) *PgRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &PgRepository{pool: pool, loc: loc}
}

func (r *PgRepository) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.InTx(ctx, r.pool, fn)
}

// Helpers

const doctorClinicCols = `id, doctor_id, clinic_id, consultation_fee::float8, created_at`

func scanDoctorClinic(row pgx.Row) (*DoctorClinic, error) {
	var dc DoctorClinic
	err := row.Scan(&dc.ID, &dc.DoctorID, &dc.ClinicID, &dc.ConsultationFee, &dc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotRegistered
		}
		return nil, err
	}
	return &dc, nil
}

const windowCols = `id, doctor_clinic_id, date, start_time, end_time, slot_duration_minutes, is_available, created_at, updated_at`

func (r *PgRepository) scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var (
		w          AvailabilityWindow
		date       time.Time
		start, end pgtype.Time
		minutes    int32
	)
	err := row.Scan(&w.ID, &w.DoctorClinicID, &date, &start, &end, &minutes, &w.Available, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}

	y, m, d := date.Date()
	w.Date = time.Date(y, m, d, 0, 0, 0, 0, r.loc)
	w.Start = time.Duration(start.Microseconds) * time.Microsecond
	w.End = time.Duration(end.Microseconds) * time.Microsecond
	w.SlotDuration = time.Duration(minutes) * time.Minute
	return &w, nil
}

func (r *PgRepository) collectWindows(rows pgx.Rows, err error) ([]AvailabilityWindow, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityWindow
	for rows.Next() {
		w, err := r.scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const appointmentCols = `id, doctor_id, clinic_id, patient_id, scheduled_time, status, notes, created_at, updated_at`

func (r *PgRepository) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.DoctorID, &a.ClinicID, &a.PatientID, &a.ScheduledTime, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	a.ScheduledTime = a.ScheduledTime.In(r.loc)
	return &a, nil
}

func (r *PgRepository) collectAppointments(rows pgx.Rows, err error) ([]Appointment, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// pgDate encodes the calendar date of t as a date parameter.
func pgDate(t time.Time) pgtype.Date {
	y, m, d := t.Date()
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

func pgTimeOfDay(d time.Duration) pgtype.Time {
	return pgtype.Time{Microseconds: d.Microseconds(), Valid: true}
}

// Directory

func (r *PgRepository) GetDoctorClinic(ctx context.Context, doctorID, clinicID uuid.UUID) (*DoctorClinic, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+doctorClinicCols+`
		FROM doctor_clinics
		WHERE doctor_id = $1 AND clinic_id = $2
	`, doctorID, clinicID)
	return scanDoctorClinic(row)
}

func (r *PgRepository) GetDoctorClinicByID(ctx context.Context, id uuid.UUID) (*DoctorClinic, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+doctorClinicCols+`
		FROM doctor_clinics
		WHERE id = $1
	`, id)
	return scanDoctorClinic(row)
}

func (r *PgRepository) LockDoctorClinic(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM doctor_clinics WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotRegistered
	}
	return err
}

func (r *PgRepository) UpsertDoctorClinic(ctx context.Context, doctorID, clinicID uuid.UUID, fee *float64) (*DoctorClinic, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor_clinics (id, doctor_id, clinic_id, consultation_fee, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (doctor_id, clinic_id) DO UPDATE
		SET consultation_fee = COALESCE(EXCLUDED.consultation_fee, doctor_clinics.consultation_fee)
		RETURNING `+doctorClinicCols,
		uuid.New(), doctorID, clinicID, fee)

	dc, err := scanDoctorClinic(row)
	switch {
	case db.IsForeignKeyViolation(err, pairDoctorFKConstraint):
		return nil, ErrDoctorNotFound
	case db.IsForeignKeyViolation(err, pairClinicFKConstraint):
		return nil, ErrClinicNotFound
	case err != nil:
		return nil, fmt.Errorf("upsert doctor clinic: %w", err)
	}
	return dc, nil
}

func (r *PgRepository) DeleteDoctorClinic(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_clinics WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete doctor clinic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotRegistered
	}
	return nil
}

func (r *PgRepository) ListDoctorClinics(ctx context.Context, doctorID uuid.UUID) ([]DoctorClinic, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+doctorClinicCols+`
		FROM doctor_clinics
		WHERE doctor_id = $1
		ORDER BY created_at
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list doctor clinics: %w", err)
	}
	defer rows.Close()

	result := []DoctorClinic{}
	for rows.Next() {
		dc, err := scanDoctorClinic(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *dc)
	}
	return result, rows.Err()
}

// Availability windows

func (r *PgRepository) ListWindows(ctx context.Context, doctorClinicID uuid.UUID, date time.Time) ([]AvailabilityWindow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+windowCols+`
		FROM availability_windows
		WHERE doctor_clinic_id = $1 AND date = $2
		ORDER BY start_time
	`, doctorClinicID, pgDate(date))
	return r.collectWindows(rows, err)
}

func (r *PgRepository) LockWindows(ctx context.Context, doctorClinicID uuid.UUID, date time.Time) ([]AvailabilityWindow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+windowCols+`
		FROM availability_windows
		WHERE doctor_clinic_id = $1 AND date = $2
		ORDER BY start_time
		FOR SHARE
	`, doctorClinicID, pgDate(date))
	return r.collectWindows(rows, err)
}

func (r *PgRepository) ListWindowsBetween(ctx context.Context, doctorClinicID uuid.UUID, from, to time.Time) ([]AvailabilityWindow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+windowCols+`
		FROM availability_windows
		WHERE doctor_clinic_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, start_time
	`, doctorClinicID, pgDate(from), pgDate(to))
	return r.collectWindows(rows, err)
}

func (r *PgRepository) GetWindow(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+windowCols+`
		FROM availability_windows
		WHERE id = $1
	`, id)
	return r.scanWindow(row)
}

func (r *PgRepository) LockWindow(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+windowCols+`
		FROM availability_windows
		WHERE id = $1
		FOR UPDATE
	`, id)
	return r.scanWindow(row)
}

func (r *PgRepository) CreateWindow(ctx context.Context, w *AvailabilityWindow) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO availability_windows (id, doctor_clinic_id, date, start_time, end_time, slot_duration_minutes, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`, w.ID, w.DoctorClinicID, pgDate(w.Date), pgTimeOfDay(w.Start), pgTimeOfDay(w.End),
		int32(w.SlotDuration/time.Minute), w.Available).Scan(&w.CreatedAt, &w.UpdatedAt)

	switch {
	case db.IsUniqueViolation(err, windowSlotConstraint):
		return ErrWindowExists
	case db.IsForeignKeyViolation(err, windowPairFKConstraint):
		return ErrNotRegistered
	case err != nil:
		return fmt.Errorf("insert availability window: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateWindow(ctx context.Context, w *AvailabilityWindow) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE availability_windows
		SET date = $2,
		    start_time = $3,
		    end_time = $4,
		    slot_duration_minutes = $5,
		    is_available = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, w.ID, pgDate(w.Date), pgTimeOfDay(w.Start), pgTimeOfDay(w.End),
		int32(w.SlotDuration/time.Minute), w.Available).Scan(&w.UpdatedAt)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrWindowNotFound
	case db.IsUniqueViolation(err, windowSlotConstraint):
		return ErrWindowExists
	case err != nil:
		return fmt.Errorf("update availability window: %w", err)
	}
	return nil
}

func (r *PgRepository) DeleteWindow(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability_windows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete availability window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

func (r *PgRepository) DeleteWindowsForDoctorClinic(ctx context.Context, doctorClinicID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability_windows WHERE doctor_clinic_id = $1`, doctorClinicID)
	if err != nil {
		return 0, fmt.Errorf("delete availability windows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Appointments

func (r *PgRepository) BookedTimes(ctx context.Context, doctorID, clinicID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT scheduled_time
		FROM appointments
		WHERE doctor_id = $1
		  AND clinic_id = $2
		  AND scheduled_time >= $3
		  AND scheduled_time < $4
		  AND status IN ('booked', 'rescheduled')
		ORDER BY scheduled_time
	`, doctorID, clinicID, from, to)
	if err != nil {
		return nil, err
	}

	times, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, err
	}
	for i := range times {
		times[i] = times[i].In(r.loc)
	}
	return times, nil
}

func (r *PgRepository) SlotHolder(ctx context.Context, doctorID, clinicID uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE doctor_id = $1
		  AND clinic_id = $2
		  AND scheduled_time = $3
		  AND status IN ('booked', 'rescheduled')
	`, doctorID, clinicID, at)
	return r.scanAppointment(row)
}

func (r *PgRepository) CountNonCancelled(ctx context.Context, doctorID, clinicID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND clinic_id = $2
		  AND scheduled_time >= $3
		  AND scheduled_time < $4
		  AND status <> 'cancelled'
	`, doctorID, clinicID, from, to).Scan(&n)
	return n, err
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
	`, id)
	return r.scanAppointment(row)
}

func (r *PgRepository) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return r.scanAppointment(row)
}

func (r *PgRepository) ListUpcomingByPatient(ctx context.Context, patientID uuid.UUID, from time.Time, limit, offset int) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE patient_id = $1
		  AND scheduled_time >= $2
		  AND status <> 'cancelled'
		ORDER BY scheduled_time
		LIMIT $3 OFFSET $4
	`, patientID, from, limit, offset)
	return r.collectAppointments(rows, err)
}

func (r *PgRepository) ListUpcomingByDoctor(ctx context.Context, doctorID uuid.UUID, from time.Time, limit, offset int) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE doctor_id = $1
		  AND scheduled_time >= $2
		  AND status <> 'cancelled'
		ORDER BY scheduled_time
		LIMIT $3 OFFSET $4
	`, doctorID, from, limit, offset)
	return r.collectAppointments(rows, err)
}

// ListPast filters on whichever of party's ids is set; a zero id matches nothing.
func (r *PgRepository) ListPast(ctx context.Context, party Party, before time.Time, limit, offset int) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, doctor_id, clinic_id, patient_id, scheduled_time, status, notes, created_at, updated_at
		FROM (
			SELECT id, doctor_id, clinic_id, patient_id, scheduled_time, status, notes, created_at, archived_at AS updated_at
			FROM past_appointments
			WHERE (doctor_id = $1 OR patient_id = $2)
			UNION ALL
			SELECT id, doctor_id, clinic_id, patient_id, scheduled_time,
			       CASE WHEN status IN ('booked', 'rescheduled') THEN 'completed' ELSE status END,
			       notes, created_at, updated_at
			FROM appointments
			WHERE (doctor_id = $1 OR patient_id = $2)
			  AND scheduled_time < $3
		) past
		ORDER BY scheduled_time DESC, id
		LIMIT $4 OFFSET $5
	`, nullableID(party.DoctorID), nullableID(party.PatientID), before, limit, offset)
	return r.collectAppointments(rows, err)
}

func nullableID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func (r *PgRepository) LockActiveFrom(ctx context.Context, doctorID, clinicID uuid.UUID, from time.Time) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE doctor_id = $1
		  AND clinic_id = $2
		  AND scheduled_time >= $3
		  AND status IN ('booked', 'rescheduled')
		ORDER BY scheduled_time
		FOR UPDATE
	`, doctorID, clinicID, from)
	return r.collectAppointments(rows, err)
}

func (r *PgRepository) InsertBooked(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, clinic_id, patient_id, scheduled_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'booked', $6, now(), now())
		RETURNING `+appointmentCols,
		id, a.DoctorID, a.ClinicID, a.PatientID, a.ScheduledTime, a.Notes)

	created, err := r.scanAppointment(row)
	switch {
	case db.IsUniqueViolation(err, activeSlotConstraint):
		return nil, ErrSlotTaken
	case db.IsForeignKeyViolation(err, patientFKConstraint):
		return nil, ErrPatientNotFound
	case db.IsForeignKeyViolation(err, ""):
		return nil, ErrNotRegistered
	case err != nil:
		return nil, fmt.Errorf("insert appointment: %w", err)
	}
	return created, nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, id uuid.UUID, from AppointmentStatus, next Appointment) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    scheduled_time = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		RETURNING `+appointmentCols,
		id, next.Status, next.ScheduledTime, from)

	updated, err := r.scanAppointment(row)
	switch {
	case db.IsUniqueViolation(err, activeSlotConstraint):
		return nil, ErrSlotTaken
	case errors.Is(err, ErrAppointmentNotFound):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	return updated, nil
}

// InsertEvent writes one row of the lifecycle audit trail.
func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
