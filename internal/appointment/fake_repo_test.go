package appointment

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type fakeTxKey struct{}

// fakeRepo is an in-memory Repository. Transactions are fully serialized and
// roll back on error; the active-slot uniqueness is enforced on write like the
// partial unique index.
type fakeRepo struct {
	txMu sync.Mutex
	mu   sync.Mutex

	pairs    map[uuid.UUID]DoctorClinic
	windows  map[uuid.UUID]AvailabilityWindow
	appts    map[uuid.UUID]Appointment
	past     []Appointment
	patients map[uuid.UUID]bool
	events   []EventLog

	// skipHolderCheck makes SlotHolder report free slots, so only the write-time
	// uniqueness check guards against double booking.
	skipHolderCheck bool
	failList        error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		pairs:    make(map[uuid.UUID]DoctorClinic),
		windows:  make(map[uuid.UUID]AvailabilityWindow),
		appts:    make(map[uuid.UUID]Appointment),
		patients: make(map[uuid.UUID]bool),
	}
}

func (r *fakeRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}

	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	pairs, windows, appts := maps.Clone(r.pairs), maps.Clone(r.windows), maps.Clone(r.appts)
	r.mu.Unlock()

	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		r.mu.Lock()
		r.pairs, r.windows, r.appts = pairs, windows, appts
		r.mu.Unlock()
		return err
	}
	return nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Directory

func (r *fakeRepo) addPair(doctorID, clinicID uuid.UUID) DoctorClinic {
	r.mu.Lock()
	defer r.mu.Unlock()
	dc := DoctorClinic{ID: uuid.New(), DoctorID: doctorID, ClinicID: clinicID, CreatedAt: time.Now()}
	r.pairs[dc.ID] = dc
	return dc
}

func (r *fakeRepo) GetDoctorClinic(_ context.Context, doctorID, clinicID uuid.UUID) (*DoctorClinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dc := range r.pairs {
		if dc.DoctorID == doctorID && dc.ClinicID == clinicID {
			return &dc, nil
		}
	}
	return nil, ErrNotRegistered
}

func (r *fakeRepo) GetDoctorClinicByID(_ context.Context, id uuid.UUID) (*DoctorClinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dc, ok := r.pairs[id]
	if !ok {
		return nil, ErrNotRegistered
	}
	return &dc, nil
}

func (r *fakeRepo) LockDoctorClinic(ctx context.Context, id uuid.UUID) error {
	_, err := r.GetDoctorClinicByID(ctx, id)
	return err
}

func (r *fakeRepo) UpsertDoctorClinic(_ context.Context, doctorID, clinicID uuid.UUID, fee *float64) (*DoctorClinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, dc := range r.pairs {
		if dc.DoctorID == doctorID && dc.ClinicID == clinicID {
			if fee != nil {
				dc.ConsultationFee = fee
				r.pairs[id] = dc
			}
			return &dc, nil
		}
	}
	dc := DoctorClinic{ID: uuid.New(), DoctorID: doctorID, ClinicID: clinicID, ConsultationFee: fee, CreatedAt: time.Now()}
	r.pairs[dc.ID] = dc
	return &dc, nil
}

func (r *fakeRepo) DeleteDoctorClinic(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pairs[id]; !ok {
		return ErrNotRegistered
	}
	delete(r.pairs, id)
	return nil
}

func (r *fakeRepo) ListDoctorClinics(_ context.Context, doctorID uuid.UUID) ([]DoctorClinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []DoctorClinic{}
	for _, dc := range r.pairs {
		if dc.DoctorID == doctorID {
			out = append(out, dc)
		}
	}
	slices.SortFunc(out, func(a, b DoctorClinic) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// Availability windows

func (r *fakeRepo) addWindow(w AvailabilityWindow) AvailabilityWindow {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	r.windows[w.ID] = w
	return w
}

func (r *fakeRepo) ListWindows(_ context.Context, doctorClinicID uuid.UUID, date time.Time) ([]AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failList != nil {
		return nil, r.failList
	}
	var out []AvailabilityWindow
	for _, w := range r.windows {
		if w.DoctorClinicID == doctorClinicID && sameDate(w.Date, date) {
			out = append(out, w)
		}
	}
	slices.SortFunc(out, func(a, b AvailabilityWindow) int { return cmp.Compare(a.Start, b.Start) })
	return out, nil
}

func (r *fakeRepo) LockWindows(ctx context.Context, doctorClinicID uuid.UUID, date time.Time) ([]AvailabilityWindow, error) {
	return r.ListWindows(ctx, doctorClinicID, date)
}

func (r *fakeRepo) ListWindowsBetween(_ context.Context, doctorClinicID uuid.UUID, from, to time.Time) ([]AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AvailabilityWindow
	for _, w := range r.windows {
		if w.DoctorClinicID == doctorClinicID && !w.Date.Before(from) && !w.Date.After(to) {
			out = append(out, w)
		}
	}
	slices.SortFunc(out, func(a, b AvailabilityWindow) int { return a.StartsAt().Compare(b.StartsAt()) })
	return out, nil
}

func (r *fakeRepo) GetWindow(_ context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[id]
	if !ok {
		return nil, ErrWindowNotFound
	}
	return &w, nil
}

func (r *fakeRepo) LockWindow(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	return r.GetWindow(ctx, id)
}

func (r *fakeRepo) CreateWindow(_ context.Context, w *AvailabilityWindow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.windows {
		if other.DoctorClinicID == w.DoctorClinicID && sameDate(other.Date, w.Date) && other.Start == w.Start {
			return ErrWindowExists
		}
	}
	w.CreatedAt, w.UpdatedAt = time.Now(), time.Now()
	r.windows[w.ID] = *w
	return nil
}

func (r *fakeRepo) UpdateWindow(_ context.Context, w *AvailabilityWindow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.windows[w.ID]; !ok {
		return ErrWindowNotFound
	}
	w.UpdatedAt = time.Now()
	r.windows[w.ID] = *w
	return nil
}

func (r *fakeRepo) DeleteWindow(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.windows[id]; !ok {
		return ErrWindowNotFound
	}
	delete(r.windows, id)
	return nil
}

func (r *fakeRepo) DeleteWindowsForDoctorClinic(_ context.Context, doctorClinicID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, w := range r.windows {
		if w.DoctorClinicID == doctorClinicID {
			delete(r.windows, id)
			n++
		}
	}
	return n, nil
}

// Appointments

func (r *fakeRepo) BookedTimes(_ context.Context, doctorID, clinicID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []time.Time
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.ClinicID == clinicID && a.Status.Active() &&
			!a.ScheduledTime.Before(from) && a.ScheduledTime.Before(to) {
			out = append(out, a.ScheduledTime)
		}
	}
	return out, nil
}

func (r *fakeRepo) activeAt(doctorID, clinicID uuid.UUID, at time.Time, except uuid.UUID) (Appointment, bool) {
	for _, a := range r.appts {
		if a.ID != except && a.DoctorID == doctorID && a.ClinicID == clinicID &&
			a.Status.Active() && a.ScheduledTime.Equal(at) {
			return a, true
		}
	}
	return Appointment{}, false
}

func (r *fakeRepo) SlotHolder(_ context.Context, doctorID, clinicID uuid.UUID, at time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.skipHolderCheck {
		return nil, ErrAppointmentNotFound
	}
	if a, ok := r.activeAt(doctorID, clinicID, at, uuid.Nil); ok {
		return &a, nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *fakeRepo) CountNonCancelled(_ context.Context, doctorID, clinicID uuid.UUID, from, to time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.ClinicID == clinicID && a.Status != StatusCancelled &&
			!a.ScheduledTime.Before(from) && a.ScheduledTime.Before(to) {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *fakeRepo) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.GetAppointment(ctx, id)
}

func (r *fakeRepo) ListUpcomingByPatient(_ context.Context, patientID uuid.UUID, from time.Time, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.PatientID == patientID && a.Status != StatusCancelled && !a.ScheduledTime.Before(from) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b Appointment) int { return a.ScheduledTime.Compare(b.ScheduledTime) })
	return paginate(out, limit, offset), nil
}

func (r *fakeRepo) ListUpcomingByDoctor(_ context.Context, doctorID uuid.UUID, from time.Time, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.Status != StatusCancelled && !a.ScheduledTime.Before(from) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b Appointment) int { return a.ScheduledTime.Compare(b.ScheduledTime) })
	return paginate(out, limit, offset), nil
}

func (r *fakeRepo) ListPast(_ context.Context, party Party, before time.Time, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matches := func(a Appointment) bool {
		return (party.DoctorID != uuid.Nil && a.DoctorID == party.DoctorID) ||
			(party.PatientID != uuid.Nil && a.PatientID == party.PatientID)
	}
	var out []Appointment
	for _, a := range r.past {
		if matches(a) {
			out = append(out, a)
		}
	}
	for _, a := range r.appts {
		if matches(a) && a.ScheduledTime.Before(before) {
			if a.Status.Active() {
				a.Status = StatusCompleted
			}
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b Appointment) int { return b.ScheduledTime.Compare(a.ScheduledTime) })
	return paginate(out, limit, offset), nil
}

func paginate(out []Appointment, limit, offset int) []Appointment {
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *fakeRepo) LockActiveFrom(_ context.Context, doctorID, clinicID uuid.UUID, from time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.DoctorID == doctorID && a.ClinicID == clinicID && a.Status.Active() && !a.ScheduledTime.Before(from) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b Appointment) int { return a.ScheduledTime.Compare(b.ScheduledTime) })
	return out, nil
}

func (r *fakeRepo) InsertBooked(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.patients) > 0 && !r.patients[a.PatientID] {
		return nil, ErrPatientNotFound
	}
	if _, taken := r.activeAt(a.DoctorID, a.ClinicID, a.ScheduledTime, uuid.Nil); taken {
		return nil, ErrSlotTaken
	}
	created := *a
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	created.Status = StatusBooked
	created.CreatedAt, created.UpdatedAt = time.Now(), time.Now()
	r.appts[created.ID] = created
	return &created, nil
}

func (r *fakeRepo) UpdateAppointment(_ context.Context, id uuid.UUID, from AppointmentStatus, next Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	if next.Status.Active() {
		if _, taken := r.activeAt(a.DoctorID, a.ClinicID, next.ScheduledTime, id); taken {
			return nil, ErrSlotTaken
		}
	}
	a.Status = next.Status
	a.ScheduledTime = next.ScheduledTime
	a.UpdatedAt = time.Now()
	r.appts[id] = a
	return &a, nil
}

func (r *fakeRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeRepo) appointment(id uuid.UUID) Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appts[id]
}

// recordingEmitter collects emitted events synchronously.
type recordingEmitter struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (e *recordingEmitter) Emit(_ context.Context, events ...LifecycleEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, events...)
}

func (e *recordingEmitter) all() []LifecycleEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.events)
}

var _ Repository = (*fakeRepo)(nil)
