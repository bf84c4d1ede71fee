package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/dental-appointment-scheduling/internal/notify"
)

// TransitionStatus moves an appointment to a new status on behalf of actor.
func (s *Service) TransitionStatus(ctx context.Context, id uuid.UUID, to Status, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, to, actor, nil)
}

// CancelBooking is TransitionStatus to CANCELLED.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled, actor, nil)
}

// RecordVisit is used by the treating dentist to close a confirmed appointment
// as COMPLETED or NO_SHOW, optionally attaching clinical notes.
func (s *Service) RecordVisit(ctx context.Context, id uuid.UUID, to Status, actor Actor, clinicalNotes *string) (*Appointment, error) {
	if clinicalNotes != nil && actor.Role != RoleDentist {
		return nil, fmt.Errorf("%w: only dentists write clinical notes", ErrForbidden)
	}
	if err := validateText(clinicalNotes); err != nil {
		return nil, err
	}
	return s.transition(ctx, id, to, actor, clinicalNotes)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, actor Actor, clinicalNotes *string) (*Appointment, error) {
	if actor.UserID == uuid.Nil || !actor.Role.Valid() {
		return nil, ErrMissingActor
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}

	// The update is conditional on the status we read. If another request moved
	// the appointment in between, re-read once and judge the new state.
	for attempt := 0; attempt < 2; attempt++ {
		appt, err := s.repo.GetAppointmentByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load appointment: %w", err)
		}

		if err := CheckTransition(appt, to, actor); err != nil {
			return nil, err
		}

		ch := StatusChange{ID: appt.ID, From: appt.Status, To: to, ClinicalNotes: clinicalNotes}
		if to == StatusCancelled {
			now := s.now().UTC()
			ch.CancelledAt = &now
		}

		updated, err := s.repo.UpdateStatus(ctx, ch)
		if errors.Is(err, ErrAppointmentNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update appointment status: %w", err)
		}

		s.logEvent(ctx, updated.ID, EventAppointmentStatusChanged, map[string]any{
			"from":  ch.From,
			"to":    ch.To,
			"actor": actor.UserID.String(),
			"role":  actor.Role,
		})
		s.notify(ctx, "appointment."+statusKind(to), notify.ToUser(updated.PatientID),
			fmt.Sprintf("Your appointment on %s is now %s", updated.StartsAt.Format("2006-01-02 15:04 MST"), to),
			updated)

		return updated, nil
	}

	return nil, fmt.Errorf("%w: appointment %s changed concurrently", ErrInvalidTransition, id)
}

// UpdatePaymentStatus moves the payment axis, independent of booking status.
func (s *Service) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, to PaymentStatus, actor Actor) (*Appointment, error) {
	if actor.UserID == uuid.Nil || !actor.Role.Valid() {
		return nil, ErrMissingActor
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrInvalidTransition, to)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if err := CheckPaymentTransition(appt.PaymentStatus, to, actor); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdatePaymentStatus(ctx, id, appt.PaymentStatus, to)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("%w: payment of appointment %s changed concurrently", ErrInvalidTransition, id)
	}
	if err != nil {
		return nil, fmt.Errorf("update payment status: %w", err)
	}

	s.logEvent(ctx, id, EventPaymentStatusChanged, map[string]any{
		"from":  appt.PaymentStatus,
		"to":    to,
		"actor": actor.UserID.String(),
	})
	s.log.Info("payment status updated",
		zap.Stringer("appointment_id", id),
		zap.String("from", string(appt.PaymentStatus)),
		zap.String("to", string(to)),
	)
	return updated, nil
}

func statusKind(st Status) string {
	switch st {
	case StatusConfirmed:
		return "confirmed"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusNoShow:
		return "no_show"
	}
	return "updated"
}
