package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-appointment-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID string    `json:"patient_id"`
	DentistID string    `json:"dentist_id"`
	ServiceID *string   `json:"service_id,omitempty"`
	StartsAt  time.Time `json:"starts_at"`
	Notes     *string   `json:"notes,omitempty"`
	Symptoms  *string   `json:"symptoms,omitempty"`
}

type StatusRequest struct {
	Status        string  `json:"status"`
	ClinicalNotes *string `json:"clinical_notes,omitempty"`
}

type VisitRequest struct {
	ClinicalNotes *string `json:"clinical_notes,omitempty"`
}

type PaymentRequest struct {
	PaymentStatus string `json:"payment_status"`
}

type AppointmentResponse struct {
	ID            uuid.UUID  `json:"id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DentistID     uuid.UUID  `json:"dentist_id"`
	ServiceID     *uuid.UUID `json:"service_id,omitempty"`
	StartsAt      time.Time  `json:"starts_at"`
	EndsAt        time.Time  `json:"ends_at"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	Notes         *string    `json:"notes,omitempty"`
	Symptoms      *string    `json:"symptoms,omitempty"`
	ClinicalNotes *string    `json:"clinical_notes,omitempty"`
	Price         *float64   `json:"price,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		PatientID:     a.PatientID,
		DentistID:     a.DentistID,
		ServiceID:     a.ServiceID,
		StartsAt:      a.StartsAt,
		EndsAt:        a.EndsAt,
		Status:        string(a.Status),
		PaymentStatus: string(a.PaymentStatus),
		Notes:         a.Notes,
		Symptoms:      a.Symptoms,
		ClinicalNotes: a.ClinicalNotes,
		Price:         a.Price,
		CreatedBy:     string(a.CreatedBy),
		CancelledAt:   a.CancelledAt,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

type ListAppointmentsResponse struct {
	Items []AppointmentResponse `json:"items"`
	Count int                   `json:"count"`
}

type AvailabilityResponse struct {
	DentistID uuid.UUID `json:"dentist_id"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Available bool      `json:"available"`
}

type SlotResponse struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type FreeSlotsResponse struct {
	DentistID       uuid.UUID      `json:"dentist_id"`
	Date            string         `json:"date"`
	DurationMinutes int            `json:"duration_minutes"`
	Slots           []SlotResponse `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
