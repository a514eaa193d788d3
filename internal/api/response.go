package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/notification"
)

type ErrorResponse struct {
	Error  string   `json:"error"`
	Code   string   `json:"code"`
	Fields []string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// errorKind maps a service error to its HTTP status and stable error code.
func errorKind(err error) (int, string) {
	var verr *appointment.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, "validation_error"
	}

	switch {
	case errors.Is(err, appointment.ErrNotRegistered):
		return http.StatusNotFound, "not_registered"
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		return http.StatusNotFound, "appointment_not_found"
	case errors.Is(err, appointment.ErrPatientNotFound):
		return http.StatusNotFound, "patient_not_found"
	case errors.Is(err, appointment.ErrDoctorNotFound):
		return http.StatusNotFound, "doctor_not_found"
	case errors.Is(err, appointment.ErrClinicNotFound):
		return http.StatusNotFound, "clinic_not_found"
	case errors.Is(err, appointment.ErrWindowNotFound):
		return http.StatusNotFound, "window_not_found"
	case errors.Is(err, notification.ErrNotFound):
		return http.StatusNotFound, "notification_not_found"

	case errors.Is(err, appointment.ErrNotAvailable):
		return http.StatusUnprocessableEntity, "not_available"
	case errors.Is(err, appointment.ErrOutOfWindow):
		return http.StatusUnprocessableEntity, "out_of_window"
	case errors.Is(err, appointment.ErrMisalignedSlot):
		return http.StatusUnprocessableEntity, "misaligned_slot"
	case errors.Is(err, appointment.ErrPastTime):
		return http.StatusUnprocessableEntity, "past_time"
	case errors.Is(err, appointment.ErrPastAppointment):
		return http.StatusUnprocessableEntity, "past_appointment"

	case errors.Is(err, appointment.ErrSlotTaken):
		return http.StatusConflict, "slot_taken"
	case errors.Is(err, appointment.ErrAlreadyCancelled):
		return http.StatusConflict, "already_cancelled"
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		return http.StatusConflict, "invalid_status_transition"
	case errors.Is(err, appointment.ErrWindowExists):
		return http.StatusConflict, "window_exists"
	case errors.Is(err, appointment.ErrWindowOverlap):
		return http.StatusConflict, "window_overlap"
	case errors.Is(err, appointment.ErrWindowHasBookings):
		return http.StatusConflict, "window_has_bookings"
	}
	return http.StatusInternalServerError, "internal_error"
}

// handleServiceError writes the mapped error. Internal errors are logged and
// replaced with a generic message.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorKind(err)
	if status == http.StatusInternalServerError {
		LoggerFrom(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, status, code, "internal server error")
		return
	}

	var verr *appointment.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, status, ErrorResponse{Error: "validation failed", Code: code, Fields: verr.Fields})
		return
	}
	writeError(w, status, code, err.Error())
}
