package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openvax/vaccine-appointment-scheduling/internal/reservation"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func reserveHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.Reserve(r.Context(), GetSession(r.Context()), req.Date, req.Vaccine)
		if err != nil {
			handleReserveError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appts, err := svc.Appointments(r.Context(), GetSession(r.Context()))
		if err != nil {
			handleSessionError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			out = append(out, toAppointmentResponse(a))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func cancelAppointmentHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be an integer")
			return
		}

		if err := svc.Cancel(r.Context(), GetSession(r.Context()), id); err != nil {
			handleCancelError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func publishAvailabilityHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PublishAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slot, err := svc.PublishAvailability(r.Context(), GetSession(r.Context()), req.Date)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, AvailabilityResponse{
			Caregiver: slot.CaregiverUsername,
			Date:      slot.AvailableOn.Format(reservation.DateLayout),
		})
	}
}

func addDosesHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddDosesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		vaccine, err := svc.AddDoses(r.Context(), GetSession(r.Context()), req.Name, req.Doses)
		if err != nil {
			handleDosesError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, VaccineResponse{Name: vaccine.Name, Doses: vaccine.Doses})
	}
}

func getVaccineHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vaccine, err := svc.VaccineStock(r.Context(), GetSession(r.Context()), chi.URLParam(r, "name"))
		if err != nil {
			handleVaccineError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, VaccineResponse{Name: vaccine.Name, Doses: vaccine.Doses})
	}
}

func scheduleHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := svc.SearchSchedule(r.Context(), GetSession(r.Context()), r.URL.Query().Get("date"))
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		caregivers := sched.Caregivers
		if caregivers == nil {
			caregivers = []string{}
		}

		writeJSON(w, http.StatusOK, ScheduleResponse{
			Date:       sched.Date.Format(reservation.DateLayout),
			Caregivers: caregivers,
			Vaccines:   toVaccineResponses(sched.Vaccines),
		})
	}
}

func handleReserveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reservation.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", err.Error())
	case errors.Is(err, reservation.ErrNotPatient):
		writeError(w, http.StatusForbidden, "patient_required", err.Error())
	case errors.Is(err, reservation.ErrBadDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, reservation.ErrVaccineNotFound):
		writeError(w, http.StatusNotFound, "vaccine_not_found", err.Error())
	case errors.Is(err, reservation.ErrNoAvailability):
		writeError(w, http.StatusConflict, "no_availability", err.Error())
	case errors.Is(err, reservation.ErrOutOfStock),
		errors.Is(err, reservation.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "out_of_stock", err.Error())
	case errors.Is(err, reservation.ErrDateBusy),
		errors.Is(err, reservation.ErrSlotGone),
		errors.Is(err, reservation.ErrDuplicateID):
		writeError(w, http.StatusConflict, "reservation_conflict", "date is currently being reserved, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleCancelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reservation.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", err.Error())
	case errors.Is(err, reservation.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not_owner", err.Error())
	case errors.Is(err, reservation.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reservation.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", err.Error())
	case errors.Is(err, reservation.ErrNotCaregiver):
		writeError(w, http.StatusForbidden, "caregiver_required", err.Error())
	case errors.Is(err, reservation.ErrBadDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, reservation.ErrDuplicateSlot):
		writeError(w, http.StatusConflict, "duplicate_slot", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleDosesError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reservation.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", err.Error())
	case errors.Is(err, reservation.ErrNotCaregiver):
		writeError(w, http.StatusForbidden, "caregiver_required", err.Error())
	case errors.Is(err, reservation.ErrInvalidDoses):
		writeError(w, http.StatusBadRequest, "invalid_doses", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleVaccineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reservation.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", err.Error())
	case errors.Is(err, reservation.ErrVaccineNotFound):
		writeError(w, http.StatusNotFound, "vaccine_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reservation.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", err.Error())
	case errors.Is(err, reservation.ErrBadDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reservation.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, "not_authenticated", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
