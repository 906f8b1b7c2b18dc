// Package restriction evaluates recurring weekly zone restriction windows
// against requested parking intervals.
package restriction

import (
	"fmt"
	"sort"
	"time"

	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
)

const (
	DefaultWarningLead = 30 * time.Minute
	DefaultMinGap      = 15 * time.Minute
	scanDays           = 7
)

type Config struct {
	// Location is the zone-local time zone the HH:MM windows are written in.
	Location    *time.Location
	WarningLead time.Duration
	MinGap      time.Duration
}

type Evaluator struct {
	loc         *time.Location
	warningLead time.Duration
	minGap      time.Duration
}

func NewEvaluator(cfg Config) *Evaluator {
	e := &Evaluator{
		loc:         cfg.Location,
		warningLead: cfg.WarningLead,
		minGap:      cfg.MinGap,
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.warningLead <= 0 {
		e.warningLead = DefaultWarningLead
	}
	if e.minGap <= 0 {
		e.minGap = DefaultMinGap
	}
	return e
}

func (e *Evaluator) Location() *time.Location {
	return e.loc
}

type occurrence struct {
	window entity.RestrictionWindow
	start  time.Time
	end    time.Time
}

// occurrences materialises every window instance starting on any calendar
// day from the day before from up to and including the day of to. The
// previous day is included so windows running past midnight are seen.
func (e *Evaluator) occurrences(windows entity.ZoneRestrictions, from, to time.Time) []occurrence {
	first := startOfDay(from.In(e.loc)).AddDate(0, 0, -1)
	last := startOfDay(to.In(e.loc))

	var out []occurrence
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		for _, w := range windows {
			if !w.AppliesOn(day.Weekday()) {
				continue
			}
			start, end := w.Occurrence(day)
			out = append(out, occurrence{window: w, start: start, end: end})
		}
	}
	return out
}

// Check decides whether parking for duration from start is allowed. The
// requested interval and each window are half-open, so a session ending
// exactly when a window begins does not conflict.
func (e *Evaluator) Check(windows entity.ZoneRestrictions, start time.Time, duration time.Duration) entity.RestrictionCheck {
	result := entity.RestrictionCheck{
		CanPark:      true,
		Restrictions: []entity.ActiveRestriction{},
		Warnings:     []entity.RestrictionWarning{},
	}
	if len(windows) == 0 {
		return result
	}

	start = start.In(e.loc)
	end := start.Add(duration)

	for _, occ := range e.occurrences(windows, start, end.Add(e.warningLead)) {
		if start.Before(occ.end) && end.After(occ.start) {
			activeUntil := occ.end
			result.Restrictions = append(result.Restrictions, entity.ActiveRestriction{
				Type:        occ.window.Type,
				Description: occ.window.Description,
				ActiveUntil: &activeUntil,
			})
			if !occ.window.ParkingAllowed {
				result.CanPark = false
			}
			continue
		}

		if !occ.start.Before(end) && occ.start.Sub(end) <= e.warningLead {
			warningTime := occ.start
			result.Warnings = append(result.Warnings, entity.RestrictionWarning{
				Type:        occ.window.Type,
				Message:     warningMessage(occ.window, occ.start, end),
				WarningTime: &warningTime,
			})
		}
	}

	return result
}

func warningMessage(w entity.RestrictionWindow, windowStart, sessionEnd time.Time) string {
	label := w.Description
	if label == "" {
		label = string(w.Type)
	}
	minutes := int(windowStart.Sub(sessionEnd).Minutes())
	if minutes == 0 {
		return fmt.Sprintf("%s begins at %s, as your session ends", label, windowStart.Format("15:04"))
	}
	return fmt.Sprintf("%s begins at %s, %d minutes after your session ends",
		label, windowStart.Format("15:04"), minutes)
}

type interval struct {
	start time.Time
	end   time.Time
}

// NextAvailable scans up to seven calendar days from from and returns the
// earliest time parking is possible. The second value is false when every
// day in the scan is fully restricted.
func (e *Evaluator) NextAvailable(windows entity.ZoneRestrictions, from time.Time) (time.Time, bool) {
	from = from.In(e.loc)
	if len(windows) == 0 {
		return from, true
	}

	day := startOfDay(from)
	for i := 0; i < scanDays; i++ {
		dayEnd := day.AddDate(0, 0, 1)
		cursor := from
		if cursor.Before(day) {
			cursor = day
		}

		if t, ok := e.firstOpening(e.blocking(windows, day, dayEnd), cursor, dayEnd); ok {
			return t, true
		}
		day = dayEnd
	}
	return time.Time{}, false
}

// blocking returns the merged intervals, sorted by start, of windows that
// disallow parking and touch [day, dayEnd).
func (e *Evaluator) blocking(windows entity.ZoneRestrictions, day, dayEnd time.Time) []interval {
	var spans []interval
	for _, occ := range e.occurrences(windows, day, day) {
		if occ.window.ParkingAllowed {
			continue
		}
		if !occ.end.After(day) || !occ.start.Before(dayEnd) {
			continue
		}
		spans = append(spans, interval{start: occ.start, end: occ.end})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })

	var merged []interval
	for _, s := range spans {
		if n := len(merged); n > 0 && !s.start.After(merged[n-1].end) {
			if s.end.After(merged[n-1].end) {
				merged[n-1].end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

func (e *Evaluator) firstOpening(spans []interval, cursor, dayEnd time.Time) (time.Time, bool) {
	var pending []interval
	for _, s := range spans {
		if s.end.After(cursor) {
			pending = append(pending, s)
		}
	}

	if len(pending) == 0 {
		return cursor, true
	}
	// A gap before the next window only counts if it is at least minGap long.
	if cursor.Before(pending[0].start) && pending[0].start.Sub(cursor) >= e.minGap {
		return cursor, true
	}

	for i, s := range pending {
		if i+1 < len(pending) {
			if pending[i+1].start.Sub(s.end) >= e.minGap {
				return s.end, true
			}
			continue
		}
		if s.end.Before(dayEnd) {
			return s.end, true
		}
	}
	return time.Time{}, false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
