package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClockTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ClockTime
		wantErr bool
	}{
		{name: "morning", input: "07:30", want: ClockTime{Hour: 7, Minute: 30}},
		{name: "midnight", input: "00:00", want: ClockTime{}},
		{name: "last minute", input: "23:59", want: ClockTime{Hour: 23, Minute: 59}},
		{name: "hour out of range", input: "24:00", wantErr: true},
		{name: "minute out of range", input: "12:60", wantErr: true},
		{name: "single digit hour", input: "7:30", wantErr: true},
		{name: "garbage", input: "noon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClockTime(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestRestrictionWindowOccurrence(t *testing.T) {
	day := time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)

	sameDay := RestrictionWindow{Start: ClockTime{Hour: 7}, End: ClockTime{Hour: 9}}
	start, end := sameDay.Occurrence(day)
	assert.Equal(t, time.Date(2024, time.January, 8, 7, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, time.January, 8, 9, 0, 0, 0, time.UTC), end)

	overnight := RestrictionWindow{Start: ClockTime{Hour: 22}, End: ClockTime{Hour: 6}}
	start, end = overnight.Occurrence(day)
	assert.Equal(t, time.Date(2024, time.January, 8, 22, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, time.January, 9, 6, 0, 0, 0, time.UTC), end)
}

func TestZoneRestrictionsScan(t *testing.T) {
	t.Run("valid schedule", func(t *testing.T) {
		raw := []byte(`[{"start_time":"07:00","end_time":"09:00","days":[1,2,3,4,5],"type":"RUSH_HOUR","description":"Morning rush","parking_allowed":false}]`)

		var r ZoneRestrictions
		require.NoError(t, r.Scan(raw))
		require.Len(t, r, 1)
		assert.Equal(t, RestrictionRushHour, r[0].Type)
		assert.True(t, r[0].AppliesOn(time.Monday))
		assert.False(t, r[0].AppliesOn(time.Sunday))
	})

	t.Run("null column", func(t *testing.T) {
		r := ZoneRestrictions{{}}
		require.NoError(t, r.Scan(nil))
		assert.Nil(t, r)
	})

	invalid := map[string]string{
		"empty days":    `[{"start_time":"07:00","end_time":"09:00","days":[],"type":"RUSH_HOUR"}]`,
		"day out range": `[{"start_time":"07:00","end_time":"09:00","days":[7],"type":"RUSH_HOUR"}]`,
		"unknown type":  `[{"start_time":"07:00","end_time":"09:00","days":[1],"type":"PARADE"}]`,
		"bad time":      `[{"start_time":"7am","end_time":"09:00","days":[1],"type":"RUSH_HOUR"}]`,
		"zero length":   `[{"start_time":"09:00","end_time":"09:00","days":[1],"type":"RUSH_HOUR"}]`,
		"untyped blob":  `{"rush":"yes"}`,
	}
	for name, raw := range invalid {
		t.Run(name, func(t *testing.T) {
			var r ZoneRestrictions
			assert.Error(t, r.Scan([]byte(raw)))
		})
	}
}

func TestZoneRestrictionsValueRoundTrip(t *testing.T) {
	r := ZoneRestrictions{{
		Start:       ClockTime{Hour: 22},
		End:         ClockTime{Hour: 6},
		Days:        []time.Weekday{time.Saturday},
		Type:        RestrictionNoParking,
		Description: "Overnight",
	}}

	v, err := r.Value()
	require.NoError(t, err)

	var decoded ZoneRestrictions
	require.NoError(t, decoded.Scan(v))
	assert.Equal(t, r, decoded)

	var empty ZoneRestrictions
	v, err = empty.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestHoursConversion(t *testing.T) {
	assert.Equal(t, 90*time.Minute, HoursToDuration(decimal.RequireFromString("1.5")))
	assert.Equal(t, 20*time.Minute, HoursToDuration(decimal.RequireFromString("0.3333333333333333333")).Round(time.Minute))
	assert.True(t, decimal.RequireFromString("0.3333").Equal(DurationToHours(20*time.Minute).Round(4)))
	assert.True(t, decimal.RequireFromString("0.803951").Equal(DurationToHours(2894*time.Second+223600*time.Microsecond)))
}

func TestSessionScheduleAndJSON(t *testing.T) {
	start := time.Date(2024, time.January, 8, 10, 0, 0, 0, time.UTC)
	s := &ParkingSession{DurationHours: decimal.RequireFromString("2.5"), Status: SessionStatusPending}
	s.Schedule(start)

	assert.Equal(t, start.Add(150*time.Minute), s.ScheduledEndTime)

	body, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"total_cost"`)
	assert.Contains(t, string(body), `"status":"PENDING"`)
}

func TestSessionStatusTerminal(t *testing.T) {
	for _, s := range OpenSessionStatuses {
		assert.False(t, s.IsTerminal(), s)
	}
	for _, s := range []SessionStatus{SessionStatusCompleted, SessionStatusExpired, SessionStatusCancelled} {
		assert.True(t, s.IsTerminal(), s)
	}
}
