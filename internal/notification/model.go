package notification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("notification not found")

type Type string

const (
	TypeBooked      Type = "appointment_booked"
	TypeCancelled   Type = "appointment_cancelled"
	TypeRescheduled Type = "appointment_rescheduled"
)

// EmailStatusLogged marks an email that was rendered and recorded but not sent.
const EmailStatusLogged = "logged"

type Notification struct {
	ID            uuid.UUID         `json:"id"`
	UserID        uuid.UUID         `json:"user_id"`
	Type          Type              `json:"notification_type"`
	Title         string            `json:"title"`
	Message       string            `json:"message"`
	Meta          map[string]string `json:"meta"`
	IsRead        bool              `json:"is_read"`
	AppointmentID *uuid.UUID        `json:"appointment_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ReadAt        *time.Time        `json:"read_at,omitempty"`
}

type EmailLog struct {
	ID            uuid.UUID
	Recipient     string
	Subject       string
	Body          string
	Type          Type
	Status        string
	AppointmentID *uuid.UUID
	CreatedAt     time.Time
}

// Person is the user record behind a doctor or patient.
type Person struct {
	UserID    uuid.UUID
	Email     string
	FirstName string
	LastName  string
}

func (p Person) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Parties are the people and place an appointment event is about.
type Parties struct {
	Doctor     Person
	Patient    Person
	ClinicName string
}

type Filter struct {
	UnreadOnly bool
	Type       Type
	Limit      int
	Offset     int
}

type Store interface {
	ResolveParties(ctx context.Context, doctorID, patientID, clinicID uuid.UUID) (*Parties, error)
	// Record writes notifications and email logs atomically.
	Record(ctx context.Context, notes []Notification, emails []EmailLog) error

	List(ctx context.Context, userID uuid.UUID, f Filter) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (*Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	// Delete returns ErrNotFound when id is not one of userID's notifications.
	Delete(ctx context.Context, userID, id uuid.UUID) error
	DeleteAll(ctx context.Context, userID uuid.UUID) (int64, error)
}
