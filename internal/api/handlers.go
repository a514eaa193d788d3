package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/metrics"
)

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, &appointment.ValidationError{Fields: []string{name + ": must be a valid UUID"}}
	}
	return id, nil
}

func uuidQuery(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return uuid.Nil, &appointment.ValidationError{Fields: []string{name + ": required"}}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &appointment.ValidationError{Fields: []string{name + ": must be a valid UUID"}}
	}
	return id, nil
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &appointment.ValidationError{Fields: []string{name + ": must be a non-negative integer"}}
	}
	return n, nil
}

func getAvailabilityHandler(svc AppointmentService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuidQuery(r, "doctor_id")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		clinicID, err := uuidQuery(r, "clinic_id")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		rawDate := r.URL.Query().Get("date")
		date, err := time.ParseInLocation(dateLayout, rawDate, loc)
		if err != nil {
			handleServiceError(w, r, &appointment.ValidationError{Fields: []string{"date: must match " + dateLayout}})
			return
		}

		avail, err := svc.GetAvailability(r.Context(), doctorID, clinicID, date)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponse(rawDate, avail))
	}
}

func bookAppointmentHandler(svc AppointmentService, loc *time.Location, m *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := decode(r, &req); err != nil {
			recordBooking(m, err)
			handleServiceError(w, r, err)
			return
		}

		// validated above
		at, _ := time.ParseInLocation(dateTimeLayout, req.ScheduledTime, loc)
		appt, err := svc.BookAppointment(r.Context(), appointment.BookingRequest{
			DoctorID:      uuid.MustParse(req.DoctorID),
			ClinicID:      uuid.MustParse(req.ClinicID),
			PatientID:     uuid.MustParse(req.PatientID),
			ScheduledTime: at,
			Notes:         req.Notes,
		})
		recordBooking(m, err)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt, loc))
	}
}

func recordBooking(m *metrics.Collector, err error) {
	if m == nil {
		return
	}
	outcome := "booked"
	if err != nil {
		_, outcome = errorKind(err)
	}
	m.BookingsTotal.WithLabelValues(outcome).Inc()
}

func cancelAppointmentHandler(svc AppointmentService, m *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		var req CancelAppointmentRequest
		if err := decode(r, &req); err != nil {
			handleServiceError(w, r, err)
			return
		}

		appt, err := svc.CancelAppointment(r.Context(), id, uuid.MustParse(req.PatientID))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if m != nil {
			m.CancellationsTotal.Inc()
		}

		writeJSON(w, http.StatusOK, CancelResponse{AppointmentID: appt.ID, Status: string(appt.Status)})
	}
}

func rescheduleAppointmentHandler(svc AppointmentService, loc *time.Location, m *metrics.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		var req RescheduleAppointmentRequest
		if err := decode(r, &req); err != nil {
			handleServiceError(w, r, err)
			return
		}

		at, _ := time.ParseInLocation(dateTimeLayout, req.ScheduledTime, loc)
		res, err := svc.RescheduleAppointment(r.Context(), id, uuid.MustParse(req.PatientID), at)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if m != nil {
			m.ReschedulesTotal.Inc()
		}

		resp := toAppointmentResponse(res.Appointment, loc)
		resp.OldScheduledTime = formatDateTime(res.PreviousTime, loc)
		writeJSON(w, http.StatusOK, resp)
	}
}

// listFunc is one of the paged appointment listings, keyed by the id in the path.
type listFunc func(ctx context.Context, id uuid.UUID, limit, offset int) ([]appointment.Appointment, error)

func listAppointmentsHandler(param string, list listFunc, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, param)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		limit, err := intQuery(r, "limit", 20)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		offset, err := intQuery(r, "offset", 0)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		appts, err := list(r.Context(), id, limit, offset)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(appts, loc))
	}
}

func pastForPatient(svc AppointmentService) listFunc {
	return func(ctx context.Context, id uuid.UUID, limit, offset int) ([]appointment.Appointment, error) {
		return svc.ListPastAppointments(ctx, appointment.Party{PatientID: id}, limit, offset)
	}
}

func pastForDoctor(svc AppointmentService) listFunc {
	return func(ctx context.Context, id uuid.UUID, limit, offset int) ([]appointment.Appointment, error) {
		return svc.ListPastAppointments(ctx, appointment.Party{DoctorID: id}, limit, offset)
	}
}
