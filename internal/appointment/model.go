package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
)

// LiveStatuses are the statuses that occupy a dentist's time.
var LiveStatuses = []Status{StatusPending, StatusConfirmed}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// IsLive reports whether an appointment in this status blocks its slot.
func (s Status) IsLive() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

func (p PaymentStatus) Valid() bool {
	return p == PaymentPending || p == PaymentPaid || p == PaymentRefunded
}

// Provenance records which class of actor created a booking.
type Provenance string

const (
	CreatedByUser    Provenance = "USER"
	CreatedByAdmin   Provenance = "ADMIN"
	CreatedByDentist Provenance = "DENTIST"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDentist Role = "dentist"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDentist || r == RoleAdmin
}

// Provenance maps the caller role to the tag stored on the appointment.
func (r Role) Provenance() Provenance {
	switch r {
	case RoleAdmin:
		return CreatedByAdmin
	case RoleDentist:
		return CreatedByDentist
	default:
		return CreatedByUser
	}
}

// Actor is the resolved caller identity. It is trusted as given.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

type Dentist struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Treatment is a catalog entry: a bookable dental service with its
// duration and price.
type Treatment struct {
	ID              uuid.UUID
	Name            string
	DurationMinutes int
	Price           float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Appointment struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	DentistID     uuid.UUID
	ServiceID     *uuid.UUID
	StartsAt      time.Time
	EndsAt        time.Time
	Status        Status
	PaymentStatus PaymentStatus
	Notes         *string
	Symptoms      *string
	ClinicalNotes *string
	Price         *float64
	CreatedBy     Provenance
	CancelledAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Interval returns the occupied [StartsAt, EndsAt) range.
func (a *Appointment) Interval() Interval {
	return Interval{Start: a.StartsAt, End: a.EndsAt}
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// BookingRequest is the input of CreateBooking.
type BookingRequest struct {
	PatientID      uuid.UUID
	DentistID      uuid.UUID
	ServiceID      *uuid.UUID
	StartsAt       time.Time
	Notes          *string
	Symptoms       *string
	Actor          Actor
	IdempotencyKey string
}

// StatusChange is the conditional update applied by the lifecycle manager.
type StatusChange struct {
	ID            uuid.UUID
	From          Status
	To            Status
	CancelledAt   *time.Time
	ClinicalNotes *string
}

type ListFilter struct {
	DentistID *uuid.UUID
	PatientID *uuid.UUID
	Status    *Status
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}
