package sla

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidDuration is returned for a zero or negative target duration.
	// Durations are never clamped.
	ErrInvalidDuration = errors.New("sla: duration must be a positive number of minutes")

	// ErrUnresolvableSchedule is returned when no open window exists within
	// the forward scan bound. It indicates a misconfigured calendar (all
	// days closed or holidays) and is not worth retrying.
	ErrUnresolvableSchedule = errors.New("sla: no open window within 366 days")

	// ErrUnknownScope is returned when the department or unit is not present
	// in configuration at all, as opposed to present but fully closed.
	ErrUnknownScope = errors.New("sla: unknown department or unit")

	// ErrOverlappingWindows is returned by Validate for overlapping active
	// windows on the same weekday.
	ErrOverlappingWindows = errors.New("sla: overlapping business-hours windows")
)

func invalidWindowErr(day time.Weekday, w Window) error {
	return fmt.Errorf("sla: invalid window %d-%d on %s", w.StartMin, w.EndMin, day)
}

func overlapErr(day time.Weekday, a, b Window) error {
	return fmt.Errorf("%w: %d-%d and %d-%d on %s", ErrOverlappingWindows, a.StartMin, a.EndMin, b.StartMin, b.EndMin, day)
}
