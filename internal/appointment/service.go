package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/dental-appointment-scheduling/internal/notify"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
	EventPaymentStatusChanged     = "APPOINTMENT_PAYMENT_CHANGED"
	EventReminderSent             = "APPOINTMENT_REMINDER_SENT"
)

// MaxTextLength bounds notes, symptoms and clinical notes.
const MaxTextLength = 1000

// Idempotency remembers which appointment a client-supplied key produced.
type Idempotency interface {
	// Claim reserves key. When the key was already used, claimed is false and
	// existing holds the appointment it produced, or uuid.Nil while that
	// request is still running.
	Claim(ctx context.Context, key string) (existing uuid.UUID, claimed bool, err error)
	Complete(ctx context.Context, key string, appointmentID uuid.UUID) error
	Release(ctx context.Context, key string) error
}

type Service struct {
	repo     Repository
	notifier notify.Notifier
	idem     Idempotency
	hours    ClinicHours
	slotStep time.Duration
	now      func() time.Time
	log      *zap.Logger
}

type Option func(*Service)

func WithClinicHours(h ClinicHours) Option {
	return func(s *Service) { s.hours = h }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIdempotency(idem Idempotency) Option {
	return func(s *Service) { s.idem = idem }
}

// WithSlotStep sets the grid used by FreeSlots.
func WithSlotStep(step time.Duration) Option {
	return func(s *Service) {
		if step > 0 {
			s.slotStep = step
		}
	}
}

func NewService(repo Repository, notifier notify.Notifier, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		notifier: notifier,
		hours:    DefaultClinicHours(),
		slotStep: 30 * time.Minute,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ClinicHours() ClinicHours {
	return s.hours
}

// CreateBooking reserves a slot for a patient.
// The overlap guarantee comes from the storage layer's atomic insert, not from
// a prior availability check, so two concurrent requests for overlapping
// intervals cannot both succeed.
func (s *Service) CreateBooking(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if req.Actor.UserID == uuid.Nil || !req.Actor.Role.Valid() {
		return nil, ErrMissingActor
	}
	if req.Actor.Role == RolePatient {
		req.PatientID = req.Actor.UserID
	}
	if req.PatientID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient_id is required", ErrInvalidRequest)
	}

	if req.IdempotencyKey == "" || s.idem == nil {
		return s.book(ctx, req)
	}

	key := req.PatientID.String() + ":" + req.IdempotencyKey
	existing, claimed, err := s.idem.Claim(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("claim idempotency key: %w: %v", ErrStorageUnavailable, err)
	}
	if !claimed {
		if existing == uuid.Nil {
			return nil, ErrIdempotencyInFlight
		}
		return s.repo.GetAppointmentByID(ctx, existing)
	}

	appt, err := s.book(ctx, req)
	if err != nil {
		if relErr := s.idem.Release(ctx, key); relErr != nil {
			s.log.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(relErr))
		}
		return nil, err
	}
	if err := s.idem.Complete(ctx, key, appt.ID); err != nil {
		s.log.Warn("failed to complete idempotency key",
			zap.String("key", key),
			zap.Stringer("appointment_id", appt.ID),
			zap.Error(err),
		)
	}
	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	dentist, err := s.repo.GetDentist(ctx, req.DentistID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load dentist: %w", err)
	}
	if !dentist.Active {
		return nil, fmt.Errorf("%w: dentist %s is inactive", ErrDentistNotFound, dentist.ID)
	}

	var (
		duration *int
		price    *float64
	)
	if req.ServiceID != nil {
		svc, err := s.repo.GetService(ctx, *req.ServiceID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load service: %w", err)
		}
		duration = &svc.DurationMinutes
		p := svc.Price
		price = &p
	}

	start := req.StartsAt.UTC()
	if start.Before(s.now()) {
		return nil, ErrStartInPast
	}

	iv, err := ComputeInterval(start, duration)
	if err != nil {
		return nil, err
	}
	if !s.hours.Contains(iv) {
		return nil, ErrOutsideClinicHours
	}
	if err := validateText(req.Notes, req.Symptoms); err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:            uuid.New(),
		PatientID:     req.PatientID,
		DentistID:     dentist.ID,
		ServiceID:     req.ServiceID,
		StartsAt:      iv.Start,
		EndsAt:        iv.End,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		Notes:         req.Notes,
		Symptoms:      req.Symptoms,
		Price:         price,
		CreatedBy:     req.Actor.Role.Provenance(),
	}

	created, err := s.repo.InsertAppointment(ctx, appt)
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			s.log.Info("booking rejected, slot taken",
				zap.Stringer("dentist_id", dentist.ID),
				zap.Time("starts_at", iv.Start),
				zap.Time("ends_at", iv.End),
			)
			return nil, err
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"dentist_id": created.DentistID.String(),
		"patient_id": created.PatientID.String(),
		"starts_at":  created.StartsAt,
		"ends_at":    created.EndsAt,
		"created_by": created.CreatedBy,
	})

	text := fmt.Sprintf("New appointment on %s", created.StartsAt.Format(time.RFC3339))
	s.notify(ctx, "appointment.created", notify.ToUser(created.DentistID), text, created)
	s.notify(ctx, "appointment.created", notify.ToRole(string(RoleAdmin)), text, created)

	return created, nil
}

func validateText(fields ...*string) error {
	for _, f := range fields {
		if f != nil && utf8.RuneCountInString(*f) > MaxTextLength {
			return ErrTextTooLong
		}
	}
	return nil
}

// notify is best-effort: failures are logged, and the returned error is only
// for callers that must undo bookkeeping tied to delivery.
func (s *Service) notify(ctx context.Context, kind string, target notify.Target, text string, a *Appointment) error {
	msg := notify.Message{
		Kind:   kind,
		Target: target,
		Text:   text,
		Payload: map[string]any{
			"appointment_id": a.ID.String(),
			"dentist_id":     a.DentistID.String(),
			"status":         a.Status,
			"starts_at":      a.StartsAt,
		},
		CreatedAt: s.now().UTC(),
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.log.Warn("failed to send notification",
			zap.String("kind", kind),
			zap.Stringer("target", target),
			zap.Stringer("appointment_id", a.ID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.Stringer("appointment_id", appointmentID),
			zap.Error(err),
		)
	}
}
