package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

// Notifier turns appointment lifecycle events into in-app notifications and
// email log entries for the doctor and the patient.
type Notifier struct {
	store Store
	log   *zap.Logger
	loc   *time.Location
	now   func() time.Time
}

func NewNotifier(store Store, log *zap.Logger, loc *time.Location) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Notifier{store: store, log: log, loc: loc, now: time.Now}
}

var _ appointment.EventSink = (*Notifier)(nil)

func (n *Notifier) Handle(ctx context.Context, ev appointment.LifecycleEvent) error {
	parties, err := n.store.ResolveParties(ctx, ev.DoctorID, ev.PatientID, ev.ClinicID)
	if err != nil {
		return fmt.Errorf("resolve parties: %w", err)
	}

	now := n.now()
	msgs, err := compose(ev, parties, n.loc, now)
	if err != nil {
		return err
	}

	apptID := ev.AppointmentID
	recipients := [2]Person{roleDoctor: parties.Doctor, rolePatient: parties.Patient}
	notes := make([]Notification, 0, len(msgs))
	emails := make([]EmailLog, 0, len(msgs))
	for r, m := range msgs {
		to := recipients[r]
		notes = append(notes, Notification{
			ID:            uuid.New(),
			UserID:        to.UserID,
			Type:          m.Type,
			Title:         m.Title,
			Message:       m.Text,
			Meta:          m.Meta,
			AppointmentID: &apptID,
			CreatedAt:     now,
		})
		emails = append(emails, EmailLog{
			ID:            uuid.New(),
			Recipient:     to.Email,
			Subject:       m.Subject,
			Body:          m.Body,
			Type:          m.Type,
			Status:        EmailStatusLogged,
			AppointmentID: &apptID,
			CreatedAt:     now,
		})
	}

	if err := n.store.Record(ctx, notes, emails); err != nil {
		return fmt.Errorf("record notifications: %w", err)
	}

	n.log.Info("appointment notifications recorded",
		zap.String("event_type", string(ev.Type)),
		zap.Stringer("appointment_id", ev.AppointmentID),
		zap.Int("notifications", len(notes)),
	)
	return nil
}
