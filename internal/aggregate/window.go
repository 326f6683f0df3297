package aggregate

import (
	"fmt"
	"time"
)

// View names a rolling time window ending at tomorrow 00:00 UTC.
type View string

const (
	ViewAll   View = ""
	ViewDay   View = "day"
	ViewWeek  View = "week"
	ViewMonth View = "month"
)

// ParseView accepts "", "all", "day", "week" and "month".
func ParseView(s string) (View, error) {
	switch View(s) {
	case ViewAll, ViewDay, ViewWeek, ViewMonth:
		return View(s), nil
	case "all":
		return ViewAll, nil
	}
	return "", fmt.Errorf("invalid view %q: use day, week or month", s)
}

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Window returns the interval of v at now. ViewAll has none.
//
//	day:   today 00:00 .. tomorrow 00:00
//	week:  the 7 days ending tomorrow 00:00
//	month: the 1st of this month 00:00 .. tomorrow 00:00
func (v View) Window(now time.Time) (Window, bool) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := today.AddDate(0, 0, 1)
	switch v {
	case ViewDay:
		return Window{Start: today, End: end}, true
	case ViewWeek:
		return Window{Start: end.AddDate(0, 0, -7), End: end}, true
	case ViewMonth:
		return Window{Start: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), End: end}, true
	}
	return Window{}, false
}

// ParseRange parses a calendar range argument into a window.
// Supports: "YYYY-MM-DD" (single day), "YYYY-MM" (month), "YYYY" (year).
func ParseRange(arg string) (Window, error) {
	if t, err := time.Parse("2006-01-02", arg); err == nil {
		return Window{Start: t, End: t.AddDate(0, 0, 1)}, nil
	}
	if t, err := time.Parse("2006-01", arg); err == nil {
		return Window{Start: t, End: t.AddDate(0, 1, 0)}, nil
	}
	if t, err := time.Parse("2006", arg); err == nil {
		return Window{Start: t, End: t.AddDate(1, 0, 0)}, nil
	}
	return Window{}, fmt.Errorf("invalid date format '%s'. Use YYYY-MM-DD, YYYY-MM, or YYYY", arg)
}
