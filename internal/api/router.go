package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/dental-appointment-scheduling/internal/appointment"
	"github.com/hackgods/dental-appointment-scheduling/internal/metrics"
)

// Scheduler is the part of appointment.Service the HTTP layer uses.
type Scheduler interface {
	CreateBooking(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
	CheckAvailability(ctx context.Context, dentistID uuid.UUID, startsAt time.Time, durationMinutes int) (bool, error)
	FreeSlots(ctx context.Context, dentistID uuid.UUID, day time.Time, durationMinutes int) ([]appointment.Interval, error)
	GetAppointment(ctx context.Context, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, f appointment.ListFilter, actor appointment.Actor) ([]appointment.Appointment, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, to appointment.Status, actor appointment.Actor) (*appointment.Appointment, error)
	CancelBooking(ctx context.Context, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error)
	RecordVisit(ctx context.Context, id uuid.UUID, to appointment.Status, actor appointment.Actor, clinicalNotes *string) (*appointment.Appointment, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, to appointment.PaymentStatus, actor appointment.Actor) (*appointment.Appointment, error)
	ClinicHours() appointment.ClinicHours
}

type RouterConfig struct {
	Service Scheduler
	Storage Pinger
	Redis   Pinger // optional
	Metrics *metrics.Collector
	Logger  *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewCollector("dental")
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))

	// Health endpoints
	health := NewHealthHandler(cfg.Storage, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	h := &handlers{svc: cfg.Service, metrics: cfg.Metrics, log: cfg.Logger}

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware)

		// Appointment endpoints
		r.Post("/appointments", h.createAppointment)
		r.Get("/appointments", h.listAppointments)
		r.Get("/appointments/{id}", h.getAppointment)
		r.Post("/appointments/{id}/status", h.changeStatus)
		r.Post("/appointments/{id}/cancel", h.cancelAppointment)
		r.Post("/appointments/{id}/confirm", h.transitionTo(appointment.StatusConfirmed))
		r.Post("/appointments/{id}/complete", h.recordVisit(appointment.StatusCompleted))
		r.Post("/appointments/{id}/no-show", h.recordVisit(appointment.StatusNoShow))
		r.Post("/appointments/{id}/payment", h.updatePayment)

		// Dentist calendar
		r.Get("/dentists/{id}/availability", h.checkAvailability)
		r.Get("/dentists/{id}/slots", h.freeSlots)
	})

	return r
}
