package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/notification"
)

const (
	dateLayout     = time.DateOnly
	dateTimeLayout = "2006-01-02T15:04"
	clockLayout    = "15:04"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and runs struct validation. Failures come
// back as *appointment.ValidationError so they map to 400.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &appointment.ValidationError{Fields: []string{"body: " + err.Error()}}
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fieldMessage(fe))
	}
	return &appointment.ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + ": required"
	case "uuid":
		return fe.Field() + ": must be a valid UUID"
	case "datetime":
		return fmt.Sprintf("%s: must match %s", fe.Field(), fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s: must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s: must be at most %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag())
}

// Requests

type BookAppointmentRequest struct {
	DoctorID      string `json:"doctor_id" validate:"required,uuid"`
	ClinicID      string `json:"clinic_id" validate:"required,uuid"`
	PatientID     string `json:"patient_id" validate:"required,uuid"`
	ScheduledTime string `json:"scheduled_time" validate:"required,datetime=2006-01-02T15:04"`
	Notes         string `json:"notes" validate:"max=2000"`
}

type CancelAppointmentRequest struct {
	PatientID string `json:"patient_id" validate:"required,uuid"`
}

type RescheduleAppointmentRequest struct {
	PatientID     string `json:"patient_id" validate:"required,uuid"`
	ScheduledTime string `json:"scheduled_time" validate:"required,datetime=2006-01-02T15:04"`
}

type RegisterClinicRequest struct {
	ClinicID        string   `json:"clinic_id" validate:"required,uuid"`
	ConsultationFee *float64 `json:"consultation_fee" validate:"omitempty,gte=0"`
}

type WindowRequest struct {
	Date                string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime           string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime             string `json:"end_time" validate:"required,datetime=15:04"`
	SlotDurationMinutes int    `json:"slot_duration_minutes" validate:"required,min=1,max=1440"`
	IsAvailable         *bool  `json:"is_available"`
}

// input converts a validated request. Times are wall clock in loc.
func (req WindowRequest) input(loc *time.Location) (appointment.WindowInput, error) {
	date, err := time.ParseInLocation(dateLayout, req.Date, loc)
	if err != nil {
		return appointment.WindowInput{}, &appointment.ValidationError{Fields: []string{"date: must match " + dateLayout}}
	}
	start, err := clockOffset(req.StartTime)
	if err != nil {
		return appointment.WindowInput{}, &appointment.ValidationError{Fields: []string{"start_time: " + err.Error()}}
	}
	end, err := clockOffset(req.EndTime)
	if err != nil {
		return appointment.WindowInput{}, &appointment.ValidationError{Fields: []string{"end_time: " + err.Error()}}
	}
	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	return appointment.WindowInput{
		Date:         date,
		Start:        start,
		End:          end,
		SlotDuration: time.Duration(req.SlotDurationMinutes) * time.Minute,
		Available:    available,
	}, nil
}

func clockOffset(s string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("must match %s", clockLayout)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func formatOffset(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// Responses

type AvailabilityResponse struct {
	Date           string   `json:"date"`
	Slots          []string `json:"slots"`
	TotalSlots     *int     `json:"total_slots,omitempty"`
	AvailableSlots *int     `json:"available_slots,omitempty"`
	BookedSlots    *int     `json:"booked_slots,omitempty"`
	Message        string   `json:"message,omitempty"`
}

func toAvailabilityResponse(date string, a *appointment.Availability) AvailabilityResponse {
	resp := AvailabilityResponse{Date: date, Slots: []string{}, Message: a.Message}
	if a.Message != "" {
		return resp
	}
	for _, t := range a.Free() {
		resp.Slots = append(resp.Slots, t.Format(clockLayout))
	}
	total, available, booked := a.Total, a.Available, a.Booked
	resp.TotalSlots, resp.AvailableSlots, resp.BookedSlots = &total, &available, &booked
	return resp
}

// AppointmentResponse carries times as clinic wall clock in the request layout,
// so a returned scheduled_time can be sent back as is.
type AppointmentResponse struct {
	AppointmentID    uuid.UUID `json:"appointment_id"`
	DoctorID         uuid.UUID `json:"doctor_id"`
	ClinicID         uuid.UUID `json:"clinic_id"`
	PatientID        uuid.UUID `json:"patient_id"`
	ScheduledTime    string    `json:"scheduled_time"`
	OldScheduledTime string    `json:"old_scheduled_time,omitempty"`
	Status           string    `json:"status"`
	Notes            string    `json:"notes"`
}

func toAppointmentResponse(a *appointment.Appointment, loc *time.Location) AppointmentResponse {
	return AppointmentResponse{
		AppointmentID: a.ID,
		DoctorID:      a.DoctorID,
		ClinicID:      a.ClinicID,
		PatientID:     a.PatientID,
		ScheduledTime: formatDateTime(a.ScheduledTime, loc),
		Status:        string(a.Status),
		Notes:         a.Notes,
	}
}

func formatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateTimeLayout)
}

type CancelResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Status        string    `json:"status"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
}

func toAppointmentList(appts []appointment.Appointment, loc *time.Location) AppointmentListResponse {
	resp := AppointmentListResponse{Appointments: make([]AppointmentResponse, 0, len(appts))}
	for i := range appts {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i], loc))
	}
	return resp
}

type DoctorClinicResponse struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	ClinicID        uuid.UUID `json:"clinic_id"`
	ConsultationFee *float64  `json:"consultation_fee"`
}

func toDoctorClinicResponse(dc *appointment.DoctorClinic) DoctorClinicResponse {
	return DoctorClinicResponse{
		ID:              dc.ID,
		DoctorID:        dc.DoctorID,
		ClinicID:        dc.ClinicID,
		ConsultationFee: dc.ConsultationFee,
	}
}

type DoctorClinicListResponse struct {
	Clinics []DoctorClinicResponse `json:"clinics"`
}

type DetachResponse struct {
	CancelledAppointments int `json:"cancelled_appointments"`
}

type WindowResponse struct {
	ID                  uuid.UUID `json:"id"`
	DoctorClinicID      uuid.UUID `json:"doctor_clinic_id"`
	Date                string    `json:"date"`
	StartTime           string    `json:"start_time"`
	EndTime             string    `json:"end_time"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	IsAvailable         bool      `json:"is_available"`
}

func toWindowResponse(w *appointment.AvailabilityWindow) WindowResponse {
	return WindowResponse{
		ID:                  w.ID,
		DoctorClinicID:      w.DoctorClinicID,
		Date:                w.Date.Format(dateLayout),
		StartTime:           formatOffset(w.Start),
		EndTime:             formatOffset(w.End),
		SlotDurationMinutes: int(w.SlotDuration / time.Minute),
		IsAvailable:         w.Available,
	}
}

type NotificationListResponse struct {
	Notifications []notification.Notification `json:"notifications"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}
