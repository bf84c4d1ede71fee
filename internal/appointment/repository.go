package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Catalog is the read-only dentist/service lookup the scheduler consumes.
type Catalog interface {
	GetDentist(ctx context.Context, id uuid.UUID) (*Dentist, error)
	GetService(ctx context.Context, id uuid.UUID) (*Treatment, error)
}

// CatalogWriter is used by seeding and tests; the scheduler never writes the catalog.
type CatalogWriter interface {
	InsertDentist(ctx context.Context, d *Dentist) error
	InsertService(ctx context.Context, s *Treatment) error
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	Catalog

	// For availability checks. Only live appointments are returned, ordered by start.
	FindOverlapping(ctx context.Context, dentistID uuid.UUID, iv Interval) ([]Appointment, error)

	// InsertAppointment is the atomic reservation. Implementations must let the
	// storage engine reject overlapping live rows and report that as ErrSlotUnavailable.
	InsertAppointment(ctx context.Context, a *Appointment) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)

	// UpdateStatus applies the change only if the row still has status ch.From.
	// It returns ErrAppointmentNotFound when no row matched.
	UpdateStatus(ctx context.Context, ch StatusChange) (*Appointment, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to PaymentStatus) (*Appointment, error)

	// Reminder worker
	ListStartingBetween(ctx context.Context, status Status, from, to time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error

	Ping(ctx context.Context) error
}
