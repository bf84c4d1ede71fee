package appointment

import "time"

// DefaultDuration bounds bookings that are made without a service.
const DefaultDuration = 60 * time.Minute

// MaxDurationMinutes caps any requested appointment length at one day.
const MaxDurationMinutes = 24 * 60

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func NewInterval(start, end time.Time) (Interval, error) {
	if !end.After(start) {
		return Interval{}, ErrInvalidInterval
	}
	return Interval{Start: start, End: end}, nil
}

// ComputeInterval derives the occupied interval from a start and an optional
// service duration in minutes.
func ComputeInterval(start time.Time, durationMinutes *int) (Interval, error) {
	d := DefaultDuration
	if durationMinutes != nil {
		var err error
		if d, err = minutesToDuration(*durationMinutes); err != nil {
			return Interval{}, err
		}
	}
	return Interval{Start: start, End: start.Add(d)}, nil
}

func minutesToDuration(minutes int) (time.Duration, error) {
	if minutes <= 0 || minutes > MaxDurationMinutes {
		return 0, ErrInvalidDuration
	}
	return time.Duration(minutes) * time.Minute, nil
}

// Overlaps reports whether two half-open intervals intersect.
// Back-to-back intervals (a.End == b.Start) do not.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i Interval) UTC() Interval {
	return Interval{Start: i.Start.UTC(), End: i.End.UTC()}
}
