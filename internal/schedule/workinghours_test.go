package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parisConfig() Config {
	return Config{
		Timezone:    "Europe/Paris",
		Start:       "09:00",
		End:         "18:00",
		WorkingDays: []string{"mon", "tue", "wed", "thu", "fri"},
		Holidays:    []string{"2025-05-01"},
	}
}

func TestParse(t *testing.T) {
	wh, err := Parse(parisConfig())
	require.NoError(t, err)

	assert.Equal(t, 9*60, wh.StartMinutes)
	assert.Equal(t, 18*60, wh.EndMinutes)
	assert.Len(t, wh.Days, 5)
	assert.True(t, wh.Holidays["2025-05-01"])
	assert.InDelta(t, 9.0, wh.DailyHours(), 1e-9)
	assert.InDelta(t, 45.0, wh.WeeklyHours(), 1e-9)
}

func TestParseRejectsBadConfig(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"unknown timezone": func(c *Config) { c.Timezone = "Mars/Olympus" },
		"bad start":        func(c *Config) { c.Start = "9am" },
		"bad end":          func(c *Config) { c.End = "25:00" },
		"start after end":  func(c *Config) { c.Start = "19:00" },
		"start equals end": func(c *Config) { c.Start = "18:00" },
		"no working days":  func(c *Config) { c.WorkingDays = nil },
		"unknown weekday":  func(c *Config) { c.WorkingDays = []string{"funday"} },
		"bad holiday":      func(c *Config) { c.Holidays = []string{"01.05.2025"} },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := parisConfig()
			mutate(&cfg)
			_, err := Parse(cfg)
			assert.Error(t, err)
		})
	}
}

func TestAdjustHoliday(t *testing.T) {
	wh, err := Parse(parisConfig())
	require.NoError(t, err)

	// Thursday 2025-05-01 is a holiday; expect Friday 09:00.
	target := time.Date(2025, 5, 1, 14, 0, 0, 0, wh.Location)
	res := wh.Adjust(target)

	assert.True(t, res.Adjusted)
	assert.Equal(t, time.Date(2025, 5, 2, 9, 0, 0, 0, wh.Location), res.ScheduledFor)
	assert.Equal(t, target, res.OriginalTarget)
	assert.Equal(t, 19*time.Hour, res.DelayApplied)
}

func TestAdjust(t *testing.T) {
	wh, err := Parse(parisConfig())
	require.NoError(t, err)
	day := func(d, h, m int) time.Time {
		return time.Date(2025, 5, d, h, m, 0, 0, wh.Location)
	}

	for name, tc := range map[string]struct {
		target   time.Time
		expect   time.Time
		adjusted bool
	}{
		"inside window untouched":     {day(6, 10, 30), day(6, 10, 30), false},
		"window start untouched":      {day(6, 9, 0), day(6, 9, 0), false},
		"before start clamps forward": {day(6, 7, 15), day(6, 9, 0), true},
		"at end rolls to next day":    {day(6, 18, 0), day(7, 9, 0), true},
		"after end rolls to next day": {day(6, 21, 45), day(7, 9, 0), true},
		"saturday rolls to monday":    {day(3, 11, 0), day(5, 9, 0), true},
		"friday evening skips weekend": {
			day(2, 18, 30), day(5, 9, 0), true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			res := wh.Adjust(tc.target)
			assert.Equal(t, tc.expect, res.ScheduledFor)
			assert.Equal(t, tc.adjusted, res.Adjusted)
		})
	}
}

func TestAdjustConvertsTimezone(t *testing.T) {
	wh, err := Parse(parisConfig())
	require.NoError(t, err)

	// 06:00 UTC on a Tuesday is 08:00 in Paris, before the window.
	target := time.Date(2025, 5, 6, 6, 0, 0, 0, time.UTC)
	res := wh.Adjust(target)

	assert.Equal(t, time.Date(2025, 5, 6, 9, 0, 0, 0, wh.Location), res.ScheduledFor)
	assert.True(t, res.Adjusted)
}

// The output must always land on a working day inside [start, end).
func TestAdjustAlwaysInsideWindow(t *testing.T) {
	wh, err := Parse(parisConfig())
	require.NoError(t, err)

	start := time.Date(2025, 4, 28, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 14*24; i++ {
		target := start.Add(time.Duration(i) * time.Hour)
		res := wh.Adjust(target)

		local := res.ScheduledFor
		minutes := local.Hour()*60 + local.Minute()
		assert.True(t, wh.Days[local.Weekday()], "weekday for %s", target)
		assert.False(t, wh.Holidays[local.Format("2006-01-02")], "holiday for %s", target)
		assert.GreaterOrEqual(t, minutes, wh.StartMinutes, "start bound for %s", target)
		assert.Less(t, minutes, wh.EndMinutes, "end bound for %s", target)
		assert.False(t, res.ScheduledFor.Before(target.In(wh.Location)), "never moves backwards for %s", target)
	}
}
