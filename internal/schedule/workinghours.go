package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/remindly/followup-gateway/internal/errs"
)

// Config is the raw working-hours section as it appears in YAML.
type Config struct {
	Timezone    string   `mapstructure:"timezone"`
	Start       string   `mapstructure:"start"` // "HH:mm"
	End         string   `mapstructure:"end"`   // "HH:mm"
	WorkingDays []string `mapstructure:"working_days"`
	Holidays    []string `mapstructure:"holidays"` // "2006-01-02"
}

// WorkingHours is the validated form consumed by Adjust. Construct via
// Parse; a zero value is not usable.
type WorkingHours struct {
	Location     *time.Location
	StartMinutes int
	EndMinutes   int
	Days         map[time.Weekday]bool
	Holidays     map[string]bool // keyed "2006-01-02" in Location
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// Parse validates the raw config. All failure modes surface here as
// validation errors; Adjust never fails on a parsed config.
func Parse(raw Config) (WorkingHours, error) {
	var wh WorkingHours

	loc, err := time.LoadLocation(raw.Timezone)
	if err != nil {
		return wh, errs.Validationf("working_hours.timezone", "unknown timezone %q", raw.Timezone)
	}

	start, err := parseClock(raw.Start)
	if err != nil {
		return wh, errs.Validationf("working_hours.start", "%v", err)
	}
	end, err := parseClock(raw.End)
	if err != nil {
		return wh, errs.Validationf("working_hours.end", "%v", err)
	}
	if start >= end {
		return wh, errs.Validationf("working_hours", "start %q must be before end %q", raw.Start, raw.End)
	}

	if len(raw.WorkingDays) == 0 {
		return wh, errs.Validationf("working_hours.working_days", "at least one working day is required")
	}
	days := make(map[time.Weekday]bool, len(raw.WorkingDays))
	for _, d := range raw.WorkingDays {
		wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return wh, errs.Validationf("working_hours.working_days", "unknown weekday %q", d)
		}
		days[wd] = true
	}

	holidays := make(map[string]bool, len(raw.Holidays))
	for _, h := range raw.Holidays {
		h = strings.TrimSpace(h)
		if _, err := time.ParseInLocation("2006-01-02", h, loc); err != nil {
			return wh, errs.Validationf("working_hours.holidays", "bad date %q, want YYYY-MM-DD", h)
		}
		holidays[h] = true
	}

	wh = WorkingHours{
		Location:     loc,
		StartMinutes: start,
		EndMinutes:   end,
		Days:         days,
		Holidays:     holidays,
	}
	return wh, nil
}

// parseClock converts "HH:mm" into minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("bad time %q, want HH:mm", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}

// DailyHours is the length of the daily window in hours.
func (wh WorkingHours) DailyHours() float64 {
	return float64(wh.EndMinutes-wh.StartMinutes) / 60
}

// WeeklyHours is DailyHours across the configured working days.
func (wh WorkingHours) WeeklyHours() float64 {
	return wh.DailyHours() * float64(len(wh.Days))
}

// workingDay reports whether t's calendar date in the configured zone is a
// working day (weekday allowed, not a holiday).
func (wh WorkingHours) workingDay(t time.Time) bool {
	if !wh.Days[t.Weekday()] {
		return false
	}
	return !wh.Holidays[t.Format("2006-01-02")]
}

// Result describes how a target instant was clamped into the window.
type Result struct {
	ScheduledFor   time.Time
	OriginalTarget time.Time
	Adjusted       bool
	DelayApplied   time.Duration
}

// Adjust moves target forward to the nearest instant inside the working
// window: holidays and non-working weekdays roll to the next day's window
// start, times before the window clamp to window start, times at or past
// the window end roll to the next working day. Parse guarantees at least
// one weekday is allowed, so the walk terminates.
func (wh WorkingHours) Adjust(target time.Time) Result {
	local := target.In(wh.Location)

	for {
		if !wh.workingDay(local) {
			local = nextDayStart(local, wh.StartMinutes)
			continue
		}

		minutes := local.Hour()*60 + local.Minute()
		switch {
		case minutes < wh.StartMinutes:
			local = dayAtMinutes(local, wh.StartMinutes)
		case minutes >= wh.EndMinutes:
			local = nextDayStart(local, wh.StartMinutes)
			continue
		}
		break
	}

	return Result{
		ScheduledFor:   local,
		OriginalTarget: target,
		Adjusted:       !local.Equal(target.In(wh.Location)),
		DelayApplied:   local.Sub(target),
	}
}

func dayAtMinutes(t time.Time, minutes int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), minutes/60, minutes%60, 0, 0, t.Location())
}

func nextDayStart(t time.Time, startMinutes int) time.Time {
	next := t.AddDate(0, 0, 1)
	return dayAtMinutes(next, startMinutes)
}
