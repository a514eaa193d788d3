package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
)

func registerClinicHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuidParam(r, "doctorID")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		var req RegisterClinicRequest
		if err := decode(r, &req); err != nil {
			handleServiceError(w, r, err)
			return
		}

		dc, err := svc.RegisterDoctorClinic(r.Context(), doctorID, uuid.MustParse(req.ClinicID), req.ConsultationFee)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toDoctorClinicResponse(dc))
	}
}

func listClinicsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuidParam(r, "doctorID")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		clinics, err := svc.ListDoctorClinics(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := DoctorClinicListResponse{Clinics: make([]DoctorClinicResponse, 0, len(clinics))}
		for i := range clinics {
			resp.Clinics = append(resp.Clinics, toDoctorClinicResponse(&clinics[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func detachClinicHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuidParam(r, "doctorID")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		clinicID, err := uuidParam(r, "clinicID")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		cancelled, err := svc.DetachDoctorClinic(r.Context(), doctorID, clinicID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, DetachResponse{CancelledAppointments: cancelled})
	}
}

func listWindowsHandler(svc AppointmentService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuidParam(r, "doctorID")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		clinicID, err := uuidParam(r, "clinicID")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		// defaults to the coming week
		from := time.Now().In(loc)
		from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
		to := from.AddDate(0, 0, 7)
		if raw := r.URL.Query().Get("from"); raw != "" {
			if from, err = time.ParseInLocation(dateLayout, raw, loc); err != nil {
				handleServiceError(w, r, &appointment.ValidationError{Fields: []string{"from: must match " + dateLayout}})
				return
			}
		}
		if raw := r.URL.Query().Get("to"); raw != "" {
			if to, err = time.ParseInLocation(dateLayout, raw, loc); err != nil {
				handleServiceError(w, r, &appointment.ValidationError{Fields: []string{"to: must match " + dateLayout}})
				return
			}
		}

		windows, err := svc.ListAvailability(r.Context(), doctorID, clinicID, from, to)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]WindowResponse, 0, len(windows))
		for i := range windows {
			resp = append(resp, toWindowResponse(&windows[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createWindowHandler(svc AppointmentService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuidParam(r, "doctorID")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		clinicID, err := uuidParam(r, "clinicID")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		in, err := decodeWindow(r, loc)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		win, err := svc.CreateAvailability(r.Context(), doctorID, clinicID, in)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toWindowResponse(win))
	}
}

func updateWindowHandler(svc AppointmentService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		in, err := decodeWindow(r, loc)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		win, err := svc.UpdateAvailability(r.Context(), id, in)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toWindowResponse(win))
	}
}

func deleteWindowHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if err := svc.DeleteAvailability(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodeWindow(r *http.Request, loc *time.Location) (appointment.WindowInput, error) {
	var req WindowRequest
	if err := decode(r, &req); err != nil {
		return appointment.WindowInput{}, err
	}
	return req.input(loc)
}
