package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type RestrictionType string

const (
	RestrictionRushHour       RestrictionType = "RUSH_HOUR"
	RestrictionStreetCleaning RestrictionType = "STREET_CLEANING"
	RestrictionPermitOnly     RestrictionType = "PERMIT_ONLY"
	RestrictionNoParking      RestrictionType = "NO_PARKING"
	RestrictionLoadingZone    RestrictionType = "LOADING_ZONE"
)

func (t RestrictionType) Valid() bool {
	switch t {
	case RestrictionRushHour, RestrictionStreetCleaning, RestrictionPermitOnly,
		RestrictionNoParking, RestrictionLoadingZone:
		return true
	}
	return false
}

// RestrictionWindow is one recurring weekly window. End may be earlier than
// Start, in which case the window runs past midnight into the next day.
type RestrictionWindow struct {
	Start          ClockTime       `json:"start_time"`
	End            ClockTime       `json:"end_time"`
	Days           []time.Weekday  `json:"days"`
	Type           RestrictionType `json:"type"`
	Description    string          `json:"description"`
	ParkingAllowed bool            `json:"parking_allowed"`
}

func (w RestrictionWindow) AppliesOn(day time.Weekday) bool {
	for _, d := range w.Days {
		if d == day {
			return true
		}
	}
	return false
}

func (w RestrictionWindow) CrossesMidnight() bool {
	return w.End.Minutes() <= w.Start.Minutes()
}

// Occurrence returns the absolute interval of the window when it starts on day.
func (w RestrictionWindow) Occurrence(day time.Time) (time.Time, time.Time) {
	start := w.Start.On(day)
	end := w.End.On(day)
	if w.CrossesMidnight() {
		end = w.End.On(day.AddDate(0, 0, 1))
	}
	return start, end
}

func (w RestrictionWindow) Validate() error {
	if !w.Start.Valid() || !w.End.Valid() {
		return fmt.Errorf("window %q: invalid time of day", w.Description)
	}
	if w.Start == w.End {
		return fmt.Errorf("window %q: start and end must differ", w.Description)
	}
	if len(w.Days) == 0 {
		return fmt.Errorf("window %q: days of week must not be empty", w.Description)
	}
	for _, d := range w.Days {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("window %q: day %d out of range 0-6", w.Description, d)
		}
	}
	if !w.Type.Valid() {
		return fmt.Errorf("window %q: unknown restriction type %q", w.Description, w.Type)
	}
	return nil
}

// ZoneRestrictions is the recurring schedule of a zone, stored as JSONB.
type ZoneRestrictions []RestrictionWindow

func (r ZoneRestrictions) Validate() error {
	for i, w := range r {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("restriction %d: %w", i, err)
		}
	}
	return nil
}

func (r ZoneRestrictions) Value() (driver.Value, error) {
	if len(r) == 0 {
		return nil, nil
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal([]RestrictionWindow(r))
}

func (r *ZoneRestrictions) Scan(value interface{}) error {
	if value == nil {
		*r = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into ZoneRestrictions", value)
	}

	var windows []RestrictionWindow
	if err := json.Unmarshal(raw, &windows); err != nil {
		return fmt.Errorf("decode zone restrictions: %w", err)
	}
	parsed := ZoneRestrictions(windows)
	if err := parsed.Validate(); err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ActiveRestriction is a window that overlaps a requested parking interval.
type ActiveRestriction struct {
	Type        RestrictionType `json:"type"`
	Description string          `json:"description"`
	ActiveUntil *time.Time      `json:"active_until,omitempty"`
}

type RestrictionWarning struct {
	Type        RestrictionType `json:"type"`
	Message     string          `json:"message"`
	WarningTime *time.Time      `json:"warning_time,omitempty"`
}

type RestrictionCheck struct {
	CanPark      bool                 `json:"can_park"`
	Restrictions []ActiveRestriction  `json:"restrictions"`
	Warnings     []RestrictionWarning `json:"warnings"`
}
