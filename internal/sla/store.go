package sla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// DB is a minimal interface to allow mocking in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Source supplies a calendar snapshot for a scope. Implemented by Loader
// (Postgres) and Cache (Redis read-through).
type Source interface {
	Calendar(ctx context.Context, sc Scope) (*Calendar, error)
}

// Loader reads business-hours rules and holidays from Postgres and resolves
// scope precedence: unit rules, when any active ones exist, replace the
// department's; holidays merge global -> department -> unit so the most
// specific record wins per date.
type Loader struct {
	DB DB
}

// Calendar loads and validates the snapshot for sc. A department missing
// from configuration is ErrUnknownScope; a department with no active rules
// loads as closed all week (Project will report ErrUnresolvableSchedule).
func (l *Loader) Calendar(ctx context.Context, sc Scope) (*Calendar, error) {
	if sc.DepartmentID == "" {
		return nil, ErrUnknownScope
	}
	var tz string
	err := l.DB.QueryRow(ctx, "select tz from departments where id=$1", sc.DepartmentID).Scan(&tz)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownScope
		}
		return nil, fmt.Errorf("load department: %w", err)
	}
	if sc.UnitID != "" {
		var exists bool
		err := l.DB.QueryRow(ctx,
			"select exists(select 1 from units where id=$1 and department_id=$2)",
			sc.UnitID, sc.DepartmentID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("load unit: %w", err)
		}
		if !exists {
			return nil, ErrUnknownScope
		}
	}

	cal, err := NewCalendar(tz)
	if err != nil {
		return nil, fmt.Errorf("department %s: %w", sc.DepartmentID, err)
	}

	loaded := false
	if sc.UnitID != "" {
		loaded, err = l.loadWindows(ctx, cal,
			"select dow, start_min, end_min from business_hours_rules where unit_id=$1 and active",
			sc.UnitID)
		if err != nil {
			return nil, err
		}
	}
	if !loaded {
		_, err = l.loadWindows(ctx, cal,
			"select dow, start_min, end_min from business_hours_rules where department_id=$1 and unit_id is null and active",
			sc.DepartmentID)
		if err != nil {
			return nil, err
		}
	}

	if err := l.loadHolidays(ctx, cal, sc); err != nil {
		return nil, err
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return cal, nil
}

func (l *Loader) loadWindows(ctx context.Context, cal *Calendar, q string, arg any) (bool, error) {
	rows, err := l.DB.Query(ctx, q, arg)
	if err != nil {
		return false, fmt.Errorf("load business hours: %w", err)
	}
	defer rows.Close()
	found := false
	for rows.Next() {
		var dow, start, end int
		if err := rows.Scan(&dow, &start, &end); err != nil {
			return false, fmt.Errorf("scan business hours: %w", err)
		}
		day := time.Weekday(dow)
		cal.Windows[day] = append(cal.Windows[day], Window{StartMin: start, EndMin: end})
		found = true
	}
	return found, rows.Err()
}

// loadHolidays merges active holidays in increasing specificity so a later,
// more specific row overwrites an earlier one for the same date.
func (l *Loader) loadHolidays(ctx context.Context, cal *Calendar, sc Scope) error {
	rows, err := l.DB.Query(ctx, `
        select to_char(date, 'YYYY-MM-DD'), name, level from holidays
        where active and (
            level = 'global'
            or (level = 'department' and department_id = $1)
            or (level = 'unit' and unit_id = $2)
        )
        order by case level when 'global' then 1 when 'department' then 2 else 3 end, date`,
		sc.DepartmentID, sc.UnitID)
	if err != nil {
		return fmt.Errorf("load holidays: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h Holiday
		if err := rows.Scan(&h.Date, &h.Name, &h.Level); err != nil {
			return fmt.Errorf("scan holiday: %w", err)
		}
		cal.Holidays[h.Date] = h
	}
	return rows.Err()
}
