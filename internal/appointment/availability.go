package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CheckAvailability reports whether dentistID has no live appointment
// overlapping [startsAt, startsAt+duration). It never writes.
func (s *Service) CheckAvailability(ctx context.Context, dentistID uuid.UUID, startsAt time.Time, durationMinutes int) (bool, error) {
	iv, err := ComputeInterval(startsAt.UTC(), &durationMinutes)
	if err != nil {
		return false, err
	}
	conflict, err := s.FindConflict(ctx, dentistID, iv)
	if err != nil {
		return false, err
	}
	return conflict == nil, nil
}

// FindConflict returns the first live appointment overlapping iv, or nil.
func (s *Service) FindConflict(ctx context.Context, dentistID uuid.UUID, iv Interval) (*Appointment, error) {
	existing, err := s.repo.FindOverlapping(ctx, dentistID, iv.UTC())
	if err != nil {
		return nil, fmt.Errorf("find overlapping appointments: %w", err)
	}
	for i := range existing {
		a := existing[i]
		if a.Status.IsLive() && a.Interval().Overlaps(iv) {
			return &a, nil
		}
	}
	return nil, nil
}

// FreeSlots lists bookable intervals of the given length for the dentist on
// the clinic-local date of day. Candidates start on the slot grid, lie inside
// operating hours, are not in the past and do not overlap live appointments.
func (s *Service) FreeSlots(ctx context.Context, dentistID uuid.UUID, day time.Time, durationMinutes int) ([]Interval, error) {
	length, err := minutesToDuration(durationMinutes)
	if err != nil {
		return nil, err
	}

	open, closing, ok := s.hours.Window(day)
	if !ok {
		return []Interval{}, nil
	}

	booked, err := s.repo.FindOverlapping(ctx, dentistID, Interval{Start: open.UTC(), End: closing.UTC()})
	if err != nil {
		return nil, fmt.Errorf("list booked appointments: %w", err)
	}

	now := s.now()
	slots := make([]Interval, 0)
	for start := open; !start.Add(length).After(closing); start = start.Add(s.slotStep) {
		if start.Before(now) {
			continue
		}
		candidate := Interval{Start: start.UTC(), End: start.Add(length).UTC()}
		free := true
		for i := range booked {
			if booked[i].Interval().Overlaps(candidate) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, candidate)
		}
	}
	return slots, nil
}
