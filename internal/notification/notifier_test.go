package notification

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

type memStore struct {
	mu      sync.Mutex
	parties *Parties
	notes   []Notification
	emails  []EmailLog
	failing error
}

func (m *memStore) ResolveParties(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) (*Parties, error) {
	if m.parties == nil {
		return nil, ErrPartiesNotFound
	}
	return m.parties, nil
}

func (m *memStore) Record(_ context.Context, notes []Notification, emails []EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return m.failing
	}
	m.notes = append(m.notes, notes...)
	m.emails = append(m.emails, emails...)
	return nil
}

func (m *memStore) List(_ context.Context, userID uuid.UUID, f Filter) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.notes {
		if n.UserID != userID || (f.UnreadOnly && n.IsRead) {
			continue
		}
		out = append(out, n)
	}
	if f.Offset >= len(out) {
		return []Notification{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) MarkRead(_ context.Context, userID, id uuid.UUID, at time.Time) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notes {
		n := &m.notes[i]
		if n.ID != id || n.UserID != userID {
			continue
		}
		if !n.IsRead {
			n.IsRead = true
			n.ReadAt = &at
		}
		cp := *n
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memStore) MarkAllRead(_ context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for i := range m.notes {
		if n := &m.notes[i]; n.UserID == userID && !n.IsRead {
			n.IsRead, n.ReadAt = true, &at
			count++
		}
	}
	return count, nil
}

func (m *memStore) Delete(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.notes {
		if n.ID == id && n.UserID == userID {
			m.notes = slices.Delete(m.notes, i, i+1)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memStore) DeleteAll(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.notes)
	m.notes = slices.DeleteFunc(m.notes, func(n Notification) bool { return n.UserID == userID })
	return int64(before - len(m.notes)), nil
}

func (m *memStore) UnreadCount(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.notes {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

var (
	doctorUser  = Person{UserID: uuid.New(), Email: "house@clinic.test", FirstName: "Gregory", LastName: "House"}
	patientUser = Person{UserID: uuid.New(), Email: "jane@example.test", FirstName: "Jane", LastName: "Doe"}
)

func newStore() *memStore {
	return &memStore{parties: &Parties{Doctor: doctorUser, Patient: patientUser, ClinicName: "Princeton Plainsboro"}}
}

func event(typ appointment.EventType, at time.Time, old *time.Time) appointment.LifecycleEvent {
	return appointment.LifecycleEvent{
		ID:            uuid.New(),
		Type:          typ,
		AppointmentID: uuid.New(),
		DoctorID:      uuid.New(),
		PatientID:     uuid.New(),
		ClinicID:      uuid.New(),
		OldTime:       old,
		NewTime:       at,
		OccurredAt:    time.Now(),
	}
}

func TestNotifier_Booked(t *testing.T) {
	store := newStore()
	n := NewNotifier(store, zaptest.NewLogger(t), time.UTC)

	ev := event(appointment.EventBooked, time.Date(2030, 3, 12, 9, 30, 0, 0, time.UTC), nil)
	if err := n.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(store.notes) != 2 || len(store.emails) != 2 {
		t.Fatalf("recorded %d notifications and %d emails, want 2 and 2", len(store.notes), len(store.emails))
	}

	doc, pat := store.notes[0], store.notes[1]
	if doc.UserID != doctorUser.UserID || pat.UserID != patientUser.UserID {
		t.Fatal("notifications addressed to the wrong users")
	}
	if doc.Title != "New Appointment: Jane Doe" {
		t.Errorf("doctor title = %q", doc.Title)
	}
	if want := "Patient Jane Doe booked an appointment at Princeton Plainsboro on 2030-03-12 at 09:30."; doc.Message != want {
		t.Errorf("doctor message = %q", doc.Message)
	}
	if pat.Title != "Appointment Confirmed" {
		t.Errorf("patient title = %q", pat.Title)
	}
	if pat.Meta["withName"] != "Dr. Gregory House" || doc.Meta["withName"] != "Jane Doe" {
		t.Errorf("withName meta = %q / %q", doc.Meta["withName"], pat.Meta["withName"])
	}
	if doc.Type != TypeBooked || doc.AppointmentID == nil || *doc.AppointmentID != ev.AppointmentID {
		t.Errorf("unexpected notification %+v", doc)
	}

	for _, e := range store.emails {
		if e.Status != EmailStatusLogged {
			t.Errorf("email status = %q", e.Status)
		}
	}
	if store.emails[0].Recipient != doctorUser.Email || !strings.HasPrefix(store.emails[0].Body, "Dear Dr. House,") {
		t.Errorf("doctor email = %+v", store.emails[0])
	}
	if store.emails[1].Subject != "Medicare: Appointment Confirmed with Dr. House" {
		t.Errorf("patient subject = %q", store.emails[1].Subject)
	}
}

func TestNotifier_RescheduledShowsBothTimes(t *testing.T) {
	store := newStore()
	loc := time.FixedZone("clinic", 2*60*60)
	n := NewNotifier(store, zaptest.NewLogger(t), loc)

	old := time.Date(2030, 3, 12, 7, 0, 0, 0, time.UTC)
	ev := event(appointment.EventRescheduled, time.Date(2030, 3, 13, 8, 30, 0, 0, time.UTC), &old)
	if err := n.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// rendered in clinic time
	want := "Patient Jane Doe's appointment has been rescheduled from 2030-03-12 09:00 to 2030-03-13 10:30 at Princeton Plainsboro."
	if store.notes[0].Message != want {
		t.Errorf("doctor message = %q", store.notes[0].Message)
	}
	if !strings.Contains(store.emails[1].Body, "Previous Schedule:\nDate: 2030-03-12\nTime: 09:00") {
		t.Errorf("patient email missing previous schedule:\n%s", store.emails[1].Body)
	}
}

func TestNotifier_Cancelled(t *testing.T) {
	store := newStore()
	n := NewNotifier(store, zaptest.NewLogger(t), time.UTC)

	if err := n.Handle(context.Background(), event(appointment.EventCancelled, time.Date(2030, 3, 12, 9, 30, 0, 0, time.UTC), nil)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := store.notes[1].Message; got != "Your appointment with Dr. Gregory House at Princeton Plainsboro has been cancelled." {
		t.Errorf("patient message = %q", got)
	}
	if store.notes[0].Type != TypeCancelled || store.notes[0].Meta["status"] != "Cancelled" {
		t.Errorf("unexpected doctor notification %+v", store.notes[0])
	}
}

func TestNotifier_Errors(t *testing.T) {
	ev := event(appointment.EventBooked, time.Now(), nil)

	unresolved := &memStore{}
	if err := NewNotifier(unresolved, nil, nil).Handle(context.Background(), ev); !errors.Is(err, ErrPartiesNotFound) {
		t.Fatalf("expected ErrPartiesNotFound, got %v", err)
	}

	boom := errors.New("connection reset")
	failing := newStore()
	failing.failing = boom
	if err := NewNotifier(failing, nil, nil).Handle(context.Background(), ev); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}

	unknown := event("completed", time.Now(), nil)
	if err := NewNotifier(newStore(), nil, nil).Handle(context.Background(), unknown); err == nil {
		t.Fatal("expected error for event without templates")
	}
}
