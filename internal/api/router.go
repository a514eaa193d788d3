package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/db"
	"github.com/hackgods/clinic-appointment-booking/internal/metrics"
	"github.com/hackgods/clinic-appointment-booking/internal/notification"
)

type AppointmentService interface {
	GetAvailability(ctx context.Context, doctorID, clinicID uuid.UUID, date time.Time) (*appointment.Availability, error)
	BookAppointment(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID, patientID uuid.UUID) (*appointment.Appointment, error)
	RescheduleAppointment(ctx context.Context, appointmentID, patientID uuid.UUID, newTime time.Time) (*appointment.RescheduleResult, error)
	ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	ListPastAppointments(ctx context.Context, party appointment.Party, limit, offset int) ([]appointment.Appointment, error)

	ListDoctorClinics(ctx context.Context, doctorID uuid.UUID) ([]appointment.DoctorClinic, error)
	RegisterDoctorClinic(ctx context.Context, doctorID, clinicID uuid.UUID, fee *float64) (*appointment.DoctorClinic, error)
	DetachDoctorClinic(ctx context.Context, doctorID, clinicID uuid.UUID) (int, error)

	ListAvailability(ctx context.Context, doctorID, clinicID uuid.UUID, from, to time.Time) ([]appointment.AvailabilityWindow, error)
	CreateAvailability(ctx context.Context, doctorID, clinicID uuid.UUID, in appointment.WindowInput) (*appointment.AvailabilityWindow, error)
	UpdateAvailability(ctx context.Context, windowID uuid.UUID, in appointment.WindowInput) (*appointment.AvailabilityWindow, error)
	DeleteAvailability(ctx context.Context, windowID uuid.UUID) error
}

type NotificationService interface {
	List(ctx context.Context, userID uuid.UUID, f notification.Filter) ([]notification.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) (*notification.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	ClearAll(ctx context.Context, userID uuid.UUID) (int64, error)
}

type RouterConfig struct {
	Service       AppointmentService
	Notifications NotificationService
	Logger        *zap.Logger
	Metrics       *metrics.Collector
	Location      *time.Location // clinic wall clock for request dates and times

	PgPool       Pinger
	Redis        *redis.Client
	EventBacklog func() int
	PoolStats    func() db.PoolStats
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	loc := cfg.Location

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.EventBacklog, cfg.PoolStats, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service
	r.Get("/availability", getAvailabilityHandler(svc, loc))

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", bookAppointmentHandler(svc, loc, cfg.Metrics))
		r.Post("/{id}/cancel", cancelAppointmentHandler(svc, cfg.Metrics))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(svc, loc, cfg.Metrics))
	})
	r.Get("/patients/{patientID}/appointments", listAppointmentsHandler("patientID", svc.ListPatientAppointments, loc))
	r.Get("/patients/{patientID}/past-appointments", listAppointmentsHandler("patientID", pastForPatient(svc), loc))
	r.Get("/doctors/{doctorID}/appointments", listAppointmentsHandler("doctorID", svc.ListDoctorAppointments, loc))
	r.Get("/doctors/{doctorID}/past-appointments", listAppointmentsHandler("doctorID", pastForDoctor(svc), loc))

	r.Route("/doctors/{doctorID}/clinics", func(r chi.Router) {
		r.Get("/", listClinicsHandler(svc))
		r.Post("/", registerClinicHandler(svc))
		r.Delete("/{clinicID}", detachClinicHandler(svc))
		r.Get("/{clinicID}/availability", listWindowsHandler(svc, loc))
		r.Post("/{clinicID}/availability", createWindowHandler(svc, loc))
	})
	r.Put("/availability/{id}", updateWindowHandler(svc, loc))
	r.Delete("/availability/{id}", deleteWindowHandler(svc))

	if cfg.Notifications != nil {
		notes := cfg.Notifications
		r.Route("/users/{userID}/notifications", func(r chi.Router) {
			r.Get("/", listNotificationsHandler(notes))
			r.Delete("/", clearNotificationsHandler(notes))
			r.Get("/unread-count", unreadCountHandler(notes))
			r.Post("/read-all", markAllReadHandler(notes))
			r.Post("/{id}/read", markReadHandler(notes))
			r.Delete("/{id}", deleteNotificationHandler(notes))
		})
	}

	return r
}
