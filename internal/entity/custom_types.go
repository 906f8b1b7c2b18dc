package entity

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ClockTime is a zone-local wall clock time written as "HH:MM".
type ClockTime struct {
	Hour   int
	Minute int
}

const clockTimeLayout = "15:04"

func ParseClockTime(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return ClockTime{}, fmt.Errorf("invalid clock time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid hour in %q: %v", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return ClockTime{}, fmt.Errorf("invalid minute in %q: %v", s, err)
	}
	ct := ClockTime{Hour: h, Minute: m}
	if !ct.Valid() {
		return ClockTime{}, fmt.Errorf("clock time %q out of range", s)
	}
	return ct, nil
}

func (ct ClockTime) Valid() bool {
	return ct.Hour >= 0 && ct.Hour < 24 && ct.Minute >= 0 && ct.Minute < 60
}

// Minutes returns the number of minutes since midnight.
func (ct ClockTime) Minutes() int {
	return ct.Hour*60 + ct.Minute
}

// On materialises the clock time on the calendar date of day, in day's location.
func (ct ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, ct.Hour, ct.Minute, 0, 0, day.Location())
}

func (ct ClockTime) String() string {
	return time.Date(0, 1, 1, ct.Hour, ct.Minute, 0, 0, time.UTC).Format(clockTimeLayout)
}

func (ct *ClockTime) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("clock time must be a string: %v", err)
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*ct = parsed
	return nil
}

func (ct ClockTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ct.String() + `"`), nil
}

var hourDuration = decimal.NewFromInt(int64(time.Hour))

// HoursToDuration converts a decimal number of hours into a time.Duration,
// truncated to the nanosecond.
func HoursToDuration(hours decimal.Decimal) time.Duration {
	return time.Duration(hours.Mul(hourDuration).IntPart())
}

// DurationToHours converts d into hours without rounding.
func DurationToHours(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(int64(d)).Div(hourDuration)
}
