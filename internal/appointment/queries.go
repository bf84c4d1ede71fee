package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// GetAppointment returns one appointment. Patients and dentists only see their own.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}

	switch actor.Role {
	case RoleAdmin:
	case RolePatient:
		if appt.PatientID != actor.UserID {
			return nil, fmt.Errorf("%w: appointment belongs to another patient", ErrForbidden)
		}
	case RoleDentist:
		if appt.DentistID != actor.UserID {
			return nil, fmt.Errorf("%w: appointment belongs to another dentist", ErrForbidden)
		}
	default:
		return nil, ErrMissingActor
	}
	return appt, nil
}

// ListAppointments applies f, narrowed to the caller's own appointments for
// patients and dentists.
func (s *Service) ListAppointments(ctx context.Context, f ListFilter, actor Actor) ([]Appointment, error) {
	switch actor.Role {
	case RoleAdmin:
	case RolePatient:
		id := actor.UserID
		f.PatientID = &id
	case RoleDentist:
		id := actor.UserID
		f.DentistID = &id
	default:
		return nil, ErrMissingActor
	}

	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, *f.Status)
	}
	if f.From != nil && f.To != nil && !f.To.After(*f.From) {
		return nil, ErrInvalidInterval
	}

	appointments, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}
