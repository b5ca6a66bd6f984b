package slas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apppkg "github.com/yanryp/servicedesk-sub001/cmd/api/app"
	authpkg "github.com/yanryp/servicedesk-sub001/cmd/api/auth"
	slapkg "github.com/yanryp/servicedesk-sub001/internal/sla"
)

type fakeSource struct {
	cal *slapkg.Calendar
	err error
}

func (s *fakeSource) Calendar(ctx context.Context, sc slapkg.Scope) (*slapkg.Calendar, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.cal, nil
}

// jakartaCalendar is Mon-Fri 08:00-16:00.
func jakartaCalendar(t *testing.T) *slapkg.Calendar {
	t.Helper()
	cal, err := slapkg.NewCalendar("Asia/Jakarta")
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		cal.Windows[d] = []slapkg.Window{{StartMin: 8 * 60, EndMin: 16 * 60}}
	}
	if err := cal.Validate(); err != nil {
		t.Fatal(err)
	}
	return cal
}

func newTestApp(src slapkg.Source, db apppkg.DB) *apppkg.App {
	gin.SetMode(gin.TestMode)
	cfg := apppkg.Config{Env: "test", TestBypassAuth: true}
	a := apppkg.NewApp(cfg, db, nil, nil)
	if src != nil {
		a.Cal = src
	}
	a.R.GET("/sla/business-hours", authpkg.Middleware(a), BusinessHours(a))
	a.R.GET("/sla/next-window", authpkg.Middleware(a), NextWindow(a))
	a.R.POST("/sla/due-date", authpkg.Middleware(a), DueDate(a))
	a.R.GET("/sla/rules", authpkg.Middleware(a), Rules(a))
	return a
}

func TestDueDateSameDayFit(t *testing.T) {
	a := newTestApp(&fakeSource{cal: jakartaCalendar(t)}, nil)
	body := `{"department_id":"d1","start_at":"2025-01-06T10:00:00+07:00","duration_mins":240,"business_hours_only":true}`

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sla/due-date", strings.NewReader(body))
	a.R.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out struct {
		DueAt                  time.Time `json:"due_at"`
		StartedInBusinessHours bool      `json:"started_in_business_hours"`
		HolidaysSkipped        []string  `json:"holidays_skipped"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	want, _ := time.Parse(time.RFC3339, "2025-01-06T14:00:00+07:00")
	if !out.DueAt.Equal(want) {
		t.Fatalf("due_at = %v, want %v", out.DueAt, want)
	}
	if !out.StartedInBusinessHours {
		t.Fatal("expected started_in_business_hours")
	}
	if len(out.HolidaysSkipped) != 0 {
		t.Fatalf("unexpected holidays: %v", out.HolidaysSkipped)
	}
}

func TestDueDateInvalidDuration(t *testing.T) {
	a := newTestApp(&fakeSource{cal: jakartaCalendar(t)}, nil)
	body := `{"department_id":"d1","start_at":"2025-01-06T10:00:00+07:00","duration_mins":0,"business_hours_only":true}`

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sla/due-date", strings.NewReader(body))
	a.R.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var env apppkg.Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.Error == nil || env.Error.Code != "invalid_duration" {
		t.Fatalf("unexpected envelope: %s", rr.Body.String())
	}
}

func TestDueDateUnknownScope(t *testing.T) {
	a := newTestApp(&fakeSource{err: slapkg.ErrUnknownScope}, nil)
	body := `{"department_id":"missing","duration_mins":60,"business_hours_only":true}`

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sla/due-date", strings.NewReader(body))
	a.R.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDueDateClosedCalendar(t *testing.T) {
	cal, err := slapkg.NewCalendar("Asia/Jakarta")
	if err != nil {
		t.Fatal(err)
	}
	a := newTestApp(&fakeSource{cal: cal}, nil)
	body := `{"department_id":"d1","start_at":"2025-01-06T10:00:00+07:00","duration_mins":60,"business_hours_only":true}`

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sla/due-date", strings.NewReader(body))
	a.R.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestNextWindowNullWhenOpen(t *testing.T) {
	a := newTestApp(&fakeSource{cal: jakartaCalendar(t)}, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sla/next-window?department_id=d1&at=2025-01-06T10:00:00%2B07:00", nil)
	a.R.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if v, ok := out["next_start"]; !ok || v != nil {
		t.Fatalf("expected null next_start, got %v", out)
	}
}

func TestNextWindowWeekend(t *testing.T) {
	a := newTestApp(&fakeSource{cal: jakartaCalendar(t)}, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sla/next-window?department_id=d1&at=2025-01-04T15:00:00%2B07:00", nil)
	a.R.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out struct {
		NextStart *time.Time `json:"next_start"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	want, _ := time.Parse(time.RFC3339, "2025-01-06T08:00:00+07:00")
	if out.NextStart == nil || !out.NextStart.Equal(want) {
		t.Fatalf("next_start = %v, want %v", out.NextStart, want)
	}
}

func TestBusinessHoursStatus(t *testing.T) {
	a := newTestApp(&fakeSource{cal: jakartaCalendar(t)}, nil)

	for at, want := range map[string]bool{
		"2025-01-06T10:00:00%2B07:00": true,
		"2025-01-04T10:00:00%2B07:00": false,
	} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/sla/business-hours?department_id=d1&at="+at, nil)
		a.R.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var out struct {
			Open bool `json:"open"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatal(err)
		}
		if out.Open != want {
			t.Fatalf("open = %v at %s, want %v", out.Open, at, want)
		}
	}
}

func TestScopeRequired(t *testing.T) {
	a := newTestApp(&fakeSource{cal: jakartaCalendar(t)}, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sla/business-hours", nil)
	a.R.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

type ruleRow struct {
	id       string
	unitID   *string
	dow      int
	startMin int
	endMin   int
}

type fakeDB struct{ rules []ruleRow }

func (db *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return &fakeRows{rows: db.rules}, nil
}
func (db *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (db *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

type fakeRows struct {
	rows []ruleRow
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}
func (r *fakeRows) Scan(dest ...any) error {
	if r.i == 0 || r.i > len(r.rows) {
		return pgx.ErrNoRows
	}
	row := r.rows[r.i-1]
	*dest[0].(*string) = row.id
	*dest[1].(**string) = row.unitID
	*dest[2].(*int) = row.dow
	*dest[3].(*int) = row.startMin
	*dest[4].(*int) = row.endMin
	return nil
}

func TestRulesList(t *testing.T) {
	db := &fakeDB{rules: []ruleRow{{id: "r1", dow: 1, startMin: 480, endMin: 960}}}
	a := newTestApp(&fakeSource{cal: jakartaCalendar(t)}, db)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sla/rules?department_id=d1", nil)
	a.R.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0]["day_of_week"].(float64) != 1 {
		t.Fatalf("unexpected output: %v", out)
	}
}
