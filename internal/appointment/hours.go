package appointment

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall clock time in the clinic's timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) on(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// ClinicHours describes when appointments may take place.
type ClinicHours struct {
	Location *time.Location
	Open     TimeOfDay
	Close    TimeOfDay
	Days     map[time.Weekday]bool
}

// DefaultClinicHours is Monday to Saturday, 09:00-18:00 UTC.
func DefaultClinicHours() ClinicHours {
	return ClinicHours{
		Location: time.UTC,
		Open:     TimeOfDay{Hour: 9},
		Close:    TimeOfDay{Hour: 18},
		Days: map[time.Weekday]bool{
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
			time.Friday:    true,
			time.Saturday:  true,
		},
	}
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseClinicHours builds ClinicHours from configuration strings, e.g.
// ("Europe/Berlin", "09:00", "18:00", "mon,tue,wed,thu,fri").
func ParseClinicHours(tz, open, close, days string) (ClinicHours, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return ClinicHours{}, fmt.Errorf("load clinic timezone: %w", err)
	}
	o, err := ParseTimeOfDay(open)
	if err != nil {
		return ClinicHours{}, err
	}
	c, err := ParseTimeOfDay(close)
	if err != nil {
		return ClinicHours{}, err
	}
	if c.minutes() <= o.minutes() {
		return ClinicHours{}, fmt.Errorf("clinic close %s must be after open %s", close, open)
	}

	h := ClinicHours{Location: loc, Open: o, Close: c, Days: make(map[time.Weekday]bool)}
	for _, d := range strings.Split(days, ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		wd, ok := weekdayNames[d]
		if !ok {
			return ClinicHours{}, fmt.Errorf("unknown weekday %q", d)
		}
		h.Days[wd] = true
	}
	if len(h.Days) == 0 {
		return ClinicHours{}, fmt.Errorf("clinic must be open at least one day")
	}
	return h, nil
}

func (h ClinicHours) loc() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

// ParseDate parses a YYYY-MM-DD date as a clinic-local day.
func (h ClinicHours) ParseDate(s string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", s, h.loc())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRequest)
	}
	return day, nil
}

// Window returns the opening and closing instants for the clinic-local date of day.
// ok is false on days the clinic is closed.
func (h ClinicHours) Window(day time.Time) (open, close time.Time, ok bool) {
	local := day.In(h.loc())
	if !h.Days[local.Weekday()] {
		return time.Time{}, time.Time{}, false
	}
	return h.Open.on(local, h.loc()), h.Close.on(local, h.loc()), true
}

// Contains reports whether the whole interval fits inside one operating day.
func (h ClinicHours) Contains(iv Interval) bool {
	open, close, ok := h.Window(iv.Start)
	if !ok {
		return false
	}
	return !iv.Start.Before(open) && !iv.End.After(close)
}
