// Package slas exposes the business-hours SLA engine over HTTP: the current
// open/closed status, the next window start, and due-date projection, plus
// read-only listings of the rules and holidays backing a scope.
package slas

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apppkg "github.com/yanryp/servicedesk-sub001/cmd/api/app"
	metricspkg "github.com/yanryp/servicedesk-sub001/cmd/api/metrics"
	slapkg "github.com/yanryp/servicedesk-sub001/internal/sla"
)

func parseScope(c *gin.Context) (slapkg.Scope, bool) {
	sc := slapkg.Scope{
		DepartmentID: c.Query("department_id"),
		UnitID:       c.Query("unit_id"),
	}
	if sc.DepartmentID == "" {
		apppkg.AbortError(c, http.StatusBadRequest, "missing_scope", "department_id is required", nil)
		return slapkg.Scope{}, false
	}
	return sc, true
}

// parseAt reads an optional RFC3339 "at" query parameter, defaulting to now.
func parseAt(c *gin.Context) (time.Time, bool) {
	v := c.Query("at")
	if v == "" {
		return time.Now(), true
	}
	at, err := time.Parse(time.RFC3339, v)
	if err != nil {
		apppkg.AbortError(c, http.StatusBadRequest, "invalid_at", "at must be RFC3339", nil)
		return time.Time{}, false
	}
	return at, true
}

func abortEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, slapkg.ErrInvalidDuration):
		apppkg.AbortError(c, http.StatusBadRequest, "invalid_duration", err.Error(), nil)
	case errors.Is(err, slapkg.ErrUnknownScope):
		apppkg.AbortError(c, http.StatusNotFound, "unknown_scope", err.Error(), nil)
	case errors.Is(err, slapkg.ErrUnresolvableSchedule):
		apppkg.AbortError(c, http.StatusUnprocessableEntity, "unresolvable_schedule", err.Error(), nil)
	case errors.Is(err, slapkg.ErrOverlappingWindows):
		apppkg.AbortError(c, http.StatusUnprocessableEntity, "invalid_calendar", err.Error(), nil)
	default:
		apppkg.AbortError(c, http.StatusInternalServerError, "internal", "calendar lookup failed", nil)
	}
}

// BusinessHours reports whether an instant falls inside the scope's
// operating hours.
func BusinessHours(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := parseScope(c)
		if !ok {
			return
		}
		at, ok := parseAt(c)
		if !ok {
			return
		}
		cal, err := a.Cal.Calendar(c.Request.Context(), sc)
		if err != nil {
			abortEngineError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"open": cal.IsOpen(at), "at": at})
	}
}

// NextWindow returns the next window start after an instant, or null when
// the instant is already inside a window.
func NextWindow(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := parseScope(c)
		if !ok {
			return
		}
		at, ok := parseAt(c)
		if !ok {
			return
		}
		cal, err := a.Cal.Calendar(c.Request.Context(), sc)
		if err != nil {
			abortEngineError(c, err)
			return
		}
		next, found, err := cal.NextWindowStart(at)
		if err != nil {
			abortEngineError(c, err)
			return
		}
		if !found {
			c.JSON(http.StatusOK, gin.H{"next_start": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"next_start": next})
	}
}

type dueDateReq struct {
	DepartmentID      string     `json:"department_id" binding:"required"`
	UnitID            string     `json:"unit_id"`
	StartAt           *time.Time `json:"start_at"`
	DurationMins      int        `json:"duration_mins"`
	BusinessHoursOnly bool       `json:"business_hours_only"`
}

// DueDate projects an SLA due date for a ticket. StartAt defaults to now;
// duration validation is left to the engine so a non-positive duration is a
// real error, never clamped.
func DueDate(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in dueDateReq
		if err := c.ShouldBindJSON(&in); err != nil {
			apppkg.AbortError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
			return
		}
		sc := slapkg.Scope{DepartmentID: in.DepartmentID, UnitID: in.UnitID}
		start := time.Now()
		if in.StartAt != nil {
			start = *in.StartAt
		}
		cal, err := a.Cal.Calendar(c.Request.Context(), sc)
		if err != nil {
			metricspkg.ProjectionErrors.WithLabelValues(errorCode(err)).Inc()
			abortEngineError(c, err)
			return
		}
		p, err := cal.Project(start, in.DurationMins, in.BusinessHoursOnly)
		if err != nil {
			metricspkg.ProjectionErrors.WithLabelValues(errorCode(err)).Inc()
			abortEngineError(c, err)
			return
		}
		metricspkg.ProjectionsTotal.WithLabelValues(mode(in.BusinessHoursOnly)).Inc()
		metricspkg.ProjectionSpanHours.Observe(p.DueAt.Sub(start).Hours())
		c.JSON(http.StatusOK, p)
	}
}

func mode(businessHoursOnly bool) string {
	if businessHoursOnly {
		return "business_hours"
	}
	return "calendar"
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, slapkg.ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, slapkg.ErrUnknownScope):
		return "unknown_scope"
	case errors.Is(err, slapkg.ErrUnresolvableSchedule):
		return "unresolvable_schedule"
	default:
		return "internal"
	}
}

// Rule is an active business-hours row as stored, for admin inspection.
type Rule struct {
	ID       string  `json:"id"`
	UnitID   *string `json:"unit_id,omitempty"`
	Day      int     `json:"day_of_week"`
	StartMin int     `json:"start_min"`
	EndMin   int     `json:"end_min"`
}

// Rules lists the active business-hours rows for a department.
func Rules(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := parseScope(c)
		if !ok {
			return
		}
		rows, err := a.DB.Query(c.Request.Context(), `
            select id::text, unit_id::text, dow, start_min, end_min
            from business_hours_rules
            where department_id=$1 and active
            order by dow, start_min`, sc.DepartmentID)
		if err != nil {
			apppkg.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		defer rows.Close()
		out := []Rule{}
		for rows.Next() {
			var r Rule
			if err := rows.Scan(&r.ID, &r.UnitID, &r.Day, &r.StartMin, &r.EndMin); err != nil {
				apppkg.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
				return
			}
			out = append(out, r)
		}
		c.JSON(http.StatusOK, out)
	}
}

// HolidayRow is an applicable holiday for a scope.
type HolidayRow struct {
	Date  string `json:"date"`
	Name  string `json:"name"`
	Level string `json:"level"`
}

// Holidays lists the holidays applicable to a scope, most specific last.
func Holidays(a *apppkg.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := parseScope(c)
		if !ok {
			return
		}
		rows, err := a.DB.Query(c.Request.Context(), `
            select to_char(date, 'YYYY-MM-DD'), name, level from holidays
            where active and (
                level = 'global'
                or (level = 'department' and department_id = $1)
                or (level = 'unit' and unit_id = $2)
            )
            order by date, case level when 'global' then 1 when 'department' then 2 else 3 end`,
			sc.DepartmentID, sc.UnitID)
		if err != nil {
			apppkg.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		defer rows.Close()
		out := []HolidayRow{}
		for rows.Next() {
			var h HolidayRow
			if err := rows.Scan(&h.Date, &h.Name, &h.Level); err != nil {
				apppkg.AbortError(c, http.StatusInternalServerError, "internal", err.Error(), nil)
				return
			}
			out = append(out, h)
		}
		c.JSON(http.StatusOK, out)
	}
}
