package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicore/session-scheduling/internal/booking"
	redisclient "github.com/clinicore/session-scheduling/internal/redis"
	"github.com/clinicore/session-scheduling/internal/schedule"
)

func walkInEstimateHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID := chi.URLParam(r, "clinicID")
		doctorName := chi.URLParam(r, "doctorName")

		at, err := parseAt(r.URL.Query().Get("at"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_at", "at must be RFC3339")
			return
		}

		est, err := svc.WalkInEstimate(r.Context(), clinicID, doctorName, at)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, est)
	}
}

func bookWalkInHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID := chi.URLParam(r, "clinicID")
		doctorName := chi.URLParam(r, "doctorName")

		var req WalkInRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.PatientName == "" {
			writeError(w, http.StatusBadRequest, "missing_patient_name", "patient_name is required")
			return
		}

		at, err := parseAt(req.At)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_at", "at must be RFC3339")
			return
		}

		appt, err := svc.BookWalkIn(r.Context(), clinicID, doctorName, req.PatientName, at)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func bookAdvanceHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID := chi.URLParam(r, "clinicID")
		doctorName := chi.URLParam(r, "doctorName")

		var req AdvanceBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.PatientName == "" {
			writeError(w, http.StatusBadRequest, "missing_patient_name", "patient_name is required")
			return
		}
		if _, err := time.ParseInLocation(schedule.DateLayout, req.Date, time.Local); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		appt, err := svc.BookAdvance(r.Context(), clinicID, doctorName, req.PatientName, req.Date, req.SessionIndex, req.SlotIndex)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		if err := svc.CancelAppointment(r.Context(), id); err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}

func dayScheduleHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID := chi.URLParam(r, "clinicID")
		doctorName := chi.URLParam(r, "doctorName")

		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().Format(schedule.DateLayout)
		}
		if _, err := time.ParseInLocation(schedule.DateLayout, date, time.Local); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.DaySchedule(r.Context(), clinicID, doctorName, date)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, DayScheduleResponse{DoctorName: doctorName, Date: date, Slots: slots})
	}
}

func prepareBreakHandler(wf *booking.BreakWorkflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, slots, ok := decodeBreakRequest(w, r)
		if !ok {
			return
		}

		p, err := wf.Prepare(r.Context(), key, slots)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, BreakProposalResponse{
			Break:      p.Break,
			HasOverrun: p.HasOverrun,
			Options:    p.Options,
		})
	}
}

// commitBreakHandler re-runs the validation phase against current state and
// commits. The proposal is never persisted between the two calls, so a slot
// booked in between is caught here, not silently overwritten.
func commitBreakHandler(wf *booking.BreakWorkflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, slots, ok := decodeBreakRequestExt(w, r)
		if !ok {
			return
		}

		p, err := wf.Prepare(r.Context(), params.key, slots)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		err = wf.Commit(r.Context(), p, params.extendBy)
		if err != nil {
			var shiftErr *booking.ShiftApplicationError
			if errors.As(err, &shiftErr) {
				// Break is committed; some appointments await reconciliation.
				writeJSON(w, http.StatusOK, BreakCommitResponse{
					Status:  "committed",
					Warning: shiftErr.Error(),
				})
				return
			}
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, BreakCommitResponse{Status: "committed"})
	}
}

func removeBreakHandler(wf *booking.BreakWorkflow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := sessionKeyFromRequest(w, r)
		if !ok {
			return
		}

		breakID, err := uuid.Parse(chi.URLParam(r, "breakID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_break_id", "breakID must be a valid UUID")
			return
		}

		openSlots := r.URL.Query().Get("open_slots") != "false"
		retract := r.URL.Query().Get("retract_extension") == "true"

		if err := wf.RemoveBreak(r.Context(), key, breakID, openSlots, retract); err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	}
}

type breakCommitParams struct {
	key      booking.SessionKey
	extendBy int
}

func sessionKeyFromRequest(w http.ResponseWriter, r *http.Request) (booking.SessionKey, bool) {
	key := booking.SessionKey{
		ClinicID:   chi.URLParam(r, "clinicID"),
		DoctorName: chi.URLParam(r, "doctorName"),
		Date:       chi.URLParam(r, "date"),
	}
	if _, err := time.ParseInLocation(schedule.DateLayout, key.Date, time.Local); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return booking.SessionKey{}, false
	}

	idx, err := strconv.Atoi(chi.URLParam(r, "sessionIndex"))
	if err != nil || idx < 0 {
		writeError(w, http.StatusBadRequest, "invalid_session_index", "sessionIndex must be an integer")
		return booking.SessionKey{}, false
	}
	key.SessionIndex = idx

	return key, true
}

func decodeBreakRequest(w http.ResponseWriter, r *http.Request) (booking.SessionKey, []time.Time, bool) {
	p, slots, ok := decodeBreakRequestExt(w, r)
	return p.key, slots, ok
}

func decodeBreakRequestExt(w http.ResponseWriter, r *http.Request) (breakCommitParams, []time.Time, bool) {
	key, ok := sessionKeyFromRequest(w, r)
	if !ok {
		return breakCommitParams{}, nil, false
	}

	var req BreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return breakCommitParams{}, nil, false
	}
	if len(req.Slots) == 0 {
		writeError(w, http.StatusBadRequest, "missing_slots", "slots is required")
		return breakCommitParams{}, nil, false
	}

	slots := make([]time.Time, 0, len(req.Slots))
	for _, raw := range req.Slots {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot", "slots must be RFC3339 instants")
			return breakCommitParams{}, nil, false
		}
		slots = append(slots, t)
	}

	return breakCommitParams{key: key, extendBy: req.ExtendByMinutes}, slots, true
}

func parseAt(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	return time.Parse(time.RFC3339, raw)
}

func handleBookingError(w http.ResponseWriter, err error) {
	var (
		taken       *booking.SlotTakenError
		capacity    *booking.CapacityExceededError
		invalidSlot *booking.InvalidSlotError
		validation  *schedule.ValidationError
		overlap     *schedule.OverlapWithNextSessionError
	)

	switch {
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrBreakNotFound):
		writeError(w, http.StatusNotFound, "break_not_found", err.Error())
	case errors.Is(err, schedule.ErrNoSuchSession):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, schedule.ErrNoSessions):
		writeError(w, http.StatusConflict, "no_sessions_today", err.Error())
	case errors.Is(err, schedule.ErrInvalidRange):
		writeError(w, http.StatusUnprocessableEntity, "invalid_range", err.Error())
	case errors.As(err, &invalidSlot):
		writeError(w, http.StatusUnprocessableEntity, "invalid_slot", err.Error())
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, "invalid_break_placement", err.Error())
	case errors.As(err, &overlap):
		writeError(w, http.StatusConflict, "overlaps_next_session", err.Error())
	case errors.As(err, &capacity):
		writeError(w, http.StatusConflict, "session_at_capacity", err.Error())
	case errors.As(err, &taken), errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_taken", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
