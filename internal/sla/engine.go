package sla

import "time"

// Projection is the result of a due-date calculation. It is computed on
// demand and never persisted here; callers copy DueAt onto their ticket
// record.
type Projection struct {
	DueAt                  time.Time `json:"due_at"`
	StartedInBusinessHours bool      `json:"started_in_business_hours"`
	HolidaysSkipped        []string  `json:"holidays_skipped"`
}

// IsOpen reports whether t falls inside an operating window, accounting for
// holidays. Window containment is half-open: exactly StartMin is open,
// exactly EndMin is not.
func (c *Calendar) IsOpen(t time.Time) bool {
	lt := t.In(c.location())
	if c.isHoliday(lt) {
		return false
	}
	m := lt.Hour()*60 + lt.Minute()
	for _, w := range c.Windows[lt.Weekday()] {
		if m >= w.StartMin && m < w.EndMin {
			return true
		}
	}
	return false
}

// NextWindowStart returns the next instant at which an operating window
// begins after t. When t is already inside a window there is no "next start"
// to report and ok is false. A calendar with no reachable window within the
// scan bound yields ErrUnresolvableSchedule.
func (c *Calendar) NextWindowStart(t time.Time) (next time.Time, ok bool, err error) {
	if c.IsOpen(t) {
		return time.Time{}, false, nil
	}
	next, err = c.nextOpen(t)
	if err != nil {
		return time.Time{}, false, err
	}
	return next, true, nil
}

// nextOpen scans strictly forward, day by day, for the earliest window start
// after t, skipping holidays and days without windows.
func (c *Calendar) nextOpen(t time.Time) (time.Time, error) {
	loc := c.location()
	lt := t.In(loc)
	for day := 0; day <= maxScanDays; day++ {
		d := lt.AddDate(0, 0, day)
		if c.isHoliday(d) {
			continue
		}
		for _, w := range c.Windows[d.Weekday()] {
			start := minuteOnDay(d, w.StartMin, loc)
			if start.After(lt) {
				return start, nil
			}
		}
	}
	return time.Time{}, ErrUnresolvableSchedule
}

// windowEnd returns the end of the window containing t. t must be open.
func (c *Calendar) windowEnd(t time.Time) time.Time {
	loc := c.location()
	lt := t.In(loc)
	m := lt.Hour()*60 + lt.Minute()
	for _, w := range c.Windows[lt.Weekday()] {
		if m >= w.StartMin && m < w.EndMin {
			return minuteOnDay(lt, w.EndMin, loc)
		}
	}
	return lt
}

// Project walks forward from start until durationMins business minutes have
// elapsed and returns the resulting due date plus diagnostics.
//
// With businessHoursOnly false the due date is plain arithmetic
// (start + duration); holidays and windows are still reported for
// diagnostics but do not affect the result. With businessHoursOnly true the
// walk consumes minutes only inside operating windows, skipping holidays and
// closed days, and records each skipped holiday date once, in order.
//
// Identical inputs always produce identical projections.
func (c *Calendar) Project(start time.Time, durationMins int, businessHoursOnly bool) (Projection, error) {
	if durationMins <= 0 {
		return Projection{}, ErrInvalidDuration
	}
	p := Projection{
		StartedInBusinessHours: c.IsOpen(start),
		HolidaysSkipped:        []string{},
	}
	if !businessHoursOnly {
		p.DueAt = start.Add(time.Duration(durationMins) * time.Minute)
		p.HolidaysSkipped = c.holidaysBetween(start, p.DueAt, nil)
		return p, nil
	}

	cursor := start
	remaining := durationMins
	seen := map[string]bool{}
	for hop := 0; hop <= maxScanDays; hop++ {
		if !c.IsOpen(cursor) {
			next, err := c.nextOpen(cursor)
			if err != nil {
				return Projection{}, err
			}
			p.HolidaysSkipped = append(p.HolidaysSkipped, c.holidaysBetween(cursor, next, seen)...)
			cursor = next
		}
		end := c.windowEnd(cursor)
		available := int(end.Sub(cursor) / time.Minute)
		if available >= remaining {
			p.DueAt = cursor.Add(time.Duration(remaining) * time.Minute)
			return p, nil
		}
		remaining -= available
		cursor = end
	}
	return Projection{}, ErrUnresolvableSchedule
}

// holidaysBetween collects applicable holiday dates for the local days
// touched by [from, to], in chronological order. seen, when non-nil,
// suppresses dates already recorded by an earlier leg of the same walk.
func (c *Calendar) holidaysBetween(from, to time.Time, seen map[string]bool) []string {
	loc := c.location()
	d := from.In(loc)
	last := to.In(loc)
	out := []string{}
	for i := 0; i <= maxScanDays; i++ {
		key := d.Format(dateLayout)
		if _, ok := c.Holidays[key]; ok && (seen == nil || !seen[key]) {
			out = append(out, key)
			if seen != nil {
				seen[key] = true
			}
		}
		if sameDay(d, last) || d.After(last) {
			break
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
