package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/scheduling-engine/internal/appointment"
	"github.com/clinicore/scheduling-engine/internal/schedule"
)

const dateLayout = "2006-01-02"

func availabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		q := r.URL.Query()

		from, err := time.Parse(dateLayout, q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from is required and must be YYYY-MM-DD")
			return
		}
		to, err := time.Parse(dateLayout, q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to is required and must be YYYY-MM-DD")
			return
		}

		req := appointment.AvailabilityRequest{
			DoctorID: doctorID,
			From:     from,
			To:       to,
			Mode:     schedule.Mode(q.Get("mode")),
		}
		if v := q.Get("location_id"); v != "" {
			locID, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_location_id", "location_id must be a valid UUID")
				return
			}
			req.LocationID = &locID
		}

		avail, err := svc.GetAvailability(r.Context(), req)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			DoctorID:   avail.Doctor.ID,
			DoctorName: avail.Doctor.Name,
			Timezone:   avail.Doctor.Timezone,
			Days:       avail.Days,
			Summary:    avail.Summary,
		})
	}
}

func placeHoldHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PlaceHoldRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		hold := appointment.HoldRequest{
			DoctorID:  doctorID,
			SessionID: req.SessionID,
			SlotID:    slotID,
			Start:     req.Start,
			End:       req.End,
			Mode:      schedule.Mode(req.Mode),
		}
		if req.LocationID != "" {
			locID, err := uuid.Parse(req.LocationID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_location_id", "location_id must be a valid UUID")
				return
			}
			hold.LocationID = &locID
		}

		appt, err := svc.PlaceHold(r.Context(), hold)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func releaseHoldHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_hold_id", "id must be a valid UUID")
			return
		}

		if err := svc.ReleaseHold(r.Context(), id); err != nil {
			handleServiceError(w, err)
			return
		}

		// Releasing an already-gone hold also lands here: the operation
		// is idempotent.
		w.WriteHeader(http.StatusNoContent)
	}
}

func bookHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_hold_id", "id must be a valid UUID")
			return
		}

		var req BookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		appt, err := svc.ConfirmBooking(r.Context(), id, req.Version, patientID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func transitionHandler(svc *appointment.Service, to appointment.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Transition(r.Context(), id, to)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listPatientAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		appointments, err := svc.ListPatientAppointments(r.Context(), patientID, limit, offset)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := AppointmentListResponse{Appointments: make([]AppointmentResponse, 0, len(appointments))}
		for i := range appointments {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appointments[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// handleServiceError maps service sentinels onto HTTP statuses. Every
// conflict-class error tells the client to refetch availability and
// pick again.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_date_range", err.Error())
	case errors.Is(err, appointment.ErrMissingSession):
		writeError(w, http.StatusBadRequest, "missing_session_id", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingHeld):
		writeError(w, http.StatusConflict, "slot_being_held", err.Error())
	case errors.Is(err, appointment.ErrHoldExpired):
		writeError(w, http.StatusConflict, "hold_expired", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}
