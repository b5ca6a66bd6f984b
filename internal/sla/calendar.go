// Package sla computes business-hours-aware SLA due dates for tickets.
//
// The engine is a pure function of a calendar snapshot plus a start instant
// and a duration: it holds no process state, performs no I/O, and never
// consults the wall clock. Calendars are loaded per scope (department or
// unit) by Loader and may be cached by Cache; the engine itself only reads.
package sla

import (
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

// Forward scans and projection walks give up after a year. A calendar with
// no reachable window within 366 days is a configuration fault, not a
// schedule.
const maxScanDays = 366

// Scope identifies whose business-hours configuration applies. DepartmentID
// is required; UnitID, when set, selects unit-level rules if any exist.
type Scope struct {
	DepartmentID string `json:"department_id"`
	UnitID       string `json:"unit_id,omitempty"`
}

func (s Scope) key() string { return s.DepartmentID + ":" + s.UnitID }

// Window is an operating interval on a weekday, in minutes from local
// midnight. The interval is half-open: the instant at StartMin is open, the
// instant at EndMin is not. Windows never span midnight.
type Window struct {
	StartMin int `json:"start_min"`
	EndMin   int `json:"end_min"`
}

// Holiday marks a whole local date as closed. Level records which scope
// declared it (global, department, or unit); the most specific record for a
// date wins during loading.
type Holiday struct {
	Date  string `json:"date"`
	Name  string `json:"name"`
	Level string `json:"level"`
}

// Calendar is a read-only business-hours snapshot for one resolved scope.
// Windows maps weekday to operating windows sorted by start; Holidays is
// keyed by local date (2006-01-02). The zero Windows map means closed all
// week.
type Calendar struct {
	TZ       string                    `json:"tz"`
	Windows  map[time.Weekday][]Window `json:"windows"`
	Holidays map[string]Holiday        `json:"holidays,omitempty"`

	loc *time.Location
}

// NewCalendar returns an empty calendar in the given zone.
func NewCalendar(tz string) (*Calendar, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return &Calendar{
		TZ:       tz,
		Windows:  make(map[time.Weekday][]Window),
		Holidays: make(map[string]Holiday),
		loc:      loc,
	}, nil
}

// location resolves the calendar's zone, caching the result. The TZ name is
// validated at load time; a calendar rebuilt from a cached snapshot with a
// zone missing from the local tzdata falls back to UTC.
func (c *Calendar) location() *time.Location {
	if c.loc == nil {
		loc, err := time.LoadLocation(c.TZ)
		if err != nil {
			loc = time.UTC
		}
		c.loc = loc
	}
	return c.loc
}

// Validate sorts each day's windows and rejects malformed or overlapping
// ones. Overlaps are a configuration error and are never silently merged.
func (c *Calendar) Validate() error {
	if _, err := time.LoadLocation(c.TZ); err != nil {
		return err
	}
	for day, ws := range c.Windows {
		sort.Slice(ws, func(i, j int) bool { return ws[i].StartMin < ws[j].StartMin })
		for i, w := range ws {
			if w.StartMin < 0 || w.EndMin > 24*60 || w.StartMin >= w.EndMin {
				return invalidWindowErr(day, w)
			}
			if i > 0 && ws[i-1].EndMin > w.StartMin {
				return overlapErr(day, ws[i-1], w)
			}
		}
		c.Windows[day] = ws
	}
	return nil
}

func (c *Calendar) isHoliday(localDay time.Time) bool {
	_, ok := c.Holidays[localDay.Format(dateLayout)]
	return ok
}

// minuteOnDay builds the instant at a minute-of-day offset on d's local
// date. Going through time.Date keeps DST transitions correct.
func minuteOnDay(d time.Time, min int, loc *time.Location) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), min/60, min%60, 0, 0, loc)
}
