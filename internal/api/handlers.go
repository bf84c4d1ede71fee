package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/dental-appointment-scheduling/internal/appointment"
	"github.com/hackgods/dental-appointment-scheduling/internal/metrics"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	svc     Scheduler
	metrics *metrics.Collector
	log     *zap.Logger
}

func (h *handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())

	var req CreateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		patientID uuid.UUID
		err       error
	)
	if req.PatientID != "" {
		patientID, err = uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
	}

	dentistID, err := uuid.Parse(req.DentistID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentist_id must be a valid UUID")
		return
	}

	var serviceID *uuid.UUID
	if req.ServiceID != nil {
		id, err := uuid.Parse(*req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		serviceID = &id
	}

	if req.StartsAt.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_starts_at", "starts_at is required (RFC3339)")
		return
	}

	appt, err := h.svc.CreateBooking(r.Context(), appointment.BookingRequest{
		PatientID:      patientID,
		DentistID:      dentistID,
		ServiceID:      serviceID,
		StartsAt:       req.StartsAt,
		Notes:          req.Notes,
		Symptoms:       req.Symptoms,
		Actor:          actor,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	h.metrics.BookingsTotal.WithLabelValues(bookingOutcome(err)).Inc()
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, ok := parseIDParam(w, r, "invalid_appointment_id")
	if !ok {
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), id, actor)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	q := r.URL.Query()

	var f appointment.ListFilter
	if v := q.Get("dentist_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentist_id must be a valid UUID")
			return
		}
		f.DentistID = &id
	}
	if v := q.Get("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		f.PatientID = &id
	}
	if v := q.Get("status"); v != "" {
		st := appointment.Status(v)
		f.Status = &st
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_"+p.name, p.name+" must be RFC3339")
			return
		}
		*p.dst = &t
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
		return
	}
	if f.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
		return
	}

	items, err := h.svc.ListAppointments(r.Context(), f, actor)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := ListAppointmentsResponse{
		Items: make([]AppointmentResponse, 0, len(items)),
		Count: len(items),
	}
	for i := range items {
		resp.Items = append(resp.Items, toAppointmentResponse(&items[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) changeStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, ok := parseIDParam(w, r, "invalid_appointment_id")
	if !ok {
		return
	}

	var req StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	to := appointment.Status(req.Status)

	var (
		appt *appointment.Appointment
		err  error
	)
	if req.ClinicalNotes != nil {
		appt, err = h.svc.RecordVisit(r.Context(), id, to, actor, req.ClinicalNotes)
	} else {
		appt, err = h.svc.TransitionStatus(r.Context(), id, to, actor)
	}
	h.respondTransition(w, r, appt, err)
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, ok := parseIDParam(w, r, "invalid_appointment_id")
	if !ok {
		return
	}

	appt, err := h.svc.CancelBooking(r.Context(), id, actor)
	h.respondTransition(w, r, appt, err)
}

func (h *handlers) transitionTo(to appointment.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := parseIDParam(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := h.svc.TransitionStatus(r.Context(), id, to, actor)
		h.respondTransition(w, r, appt, err)
	}
}

// recordVisit accepts an optional body carrying clinical notes.
func (h *handlers) recordVisit(to appointment.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		id, ok := parseIDParam(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		var req VisitRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := h.svc.RecordVisit(r.Context(), id, to, actor, req.ClinicalNotes)
		h.respondTransition(w, r, appt, err)
	}
}

func (h *handlers) respondTransition(w http.ResponseWriter, r *http.Request, appt *appointment.Appointment, err error) {
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.metrics.TransitionsTotal.WithLabelValues(string(appt.Status)).Inc()
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) updatePayment(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, ok := parseIDParam(w, r, "invalid_appointment_id")
	if !ok {
		return
	}

	var req PaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	appt, err := h.svc.UpdatePaymentStatus(r.Context(), id, appointment.PaymentStatus(req.PaymentStatus), actor)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) checkAvailability(w http.ResponseWriter, r *http.Request) {
	dentistID, ok := parseIDParam(w, r, "invalid_dentist_id")
	if !ok {
		return
	}
	q := r.URL.Query()

	startsAt, err := time.Parse(time.RFC3339, q.Get("starts_at"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_starts_at", "starts_at must be RFC3339")
		return
	}
	duration, err := intParam(q.Get("duration"), int(appointment.DefaultDuration/time.Minute))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be an integer number of minutes")
		return
	}

	available, err := h.svc.CheckAvailability(r.Context(), dentistID, startsAt, duration)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{
		DentistID: dentistID,
		StartsAt:  startsAt.UTC(),
		EndsAt:    startsAt.UTC().Add(time.Duration(duration) * time.Minute),
		Available: available,
	})
}

func (h *handlers) freeSlots(w http.ResponseWriter, r *http.Request) {
	dentistID, ok := parseIDParam(w, r, "invalid_dentist_id")
	if !ok {
		return
	}
	q := r.URL.Query()

	date := q.Get("date")
	day, err := h.svc.ClinicHours().ParseDate(date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}
	duration, err := intParam(q.Get("duration"), int(appointment.DefaultDuration/time.Minute))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be an integer number of minutes")
		return
	}

	slots, err := h.svc.FreeSlots(r.Context(), dentistID, day, duration)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := FreeSlotsResponse{
		DentistID:       dentistID,
		Date:            date,
		DurationMinutes: duration,
		Slots:           make([]SlotResponse, 0, len(slots)),
	}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, SlotResponse{StartsAt: s.Start, EndsAt: s.End})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleError maps error kinds to HTTP statuses. Unknown errors are logged and
// reported without details.
func (h *handlers) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrDentistNotFound):
		writeError(w, http.StatusNotFound, "dentist_not_found", err.Error())
	case errors.Is(err, appointment.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrIdempotencyInFlight):
		writeError(w, http.StatusConflict, "request_in_progress", err.Error())
	case errors.Is(err, appointment.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrStorageUnavailable):
		h.log.Warn("storage unavailable",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "please retry shortly")
	default:
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, appointment.ErrConflict):
		return "conflict"
	case appointment.IsRequestError(err):
		return "rejected"
	default:
		return "error"
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
