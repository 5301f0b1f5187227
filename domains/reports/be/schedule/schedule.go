// Package schedule computes next-run timestamps for recurring reports. It is
// pure calendar arithmetic with no I/O: callers persist the returned
// timestamp and re-invoke after every run or schedule edit.
package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule types accepted by NextRun.
const (
	TypeDaily   = "daily"
	TypeWeekly  = "weekly"
	TypeMonthly = "monthly"
	TypeCustom  = "custom"
)

const defaultTime = "09:00"

// Config is the persisted scheduleConfig JSON shape. All fields are
// optional; zero values fall back to the documented defaults.
type Config struct {
	// Time is "HH:MM" in the location of the reference clock.
	Time string `json:"time,omitempty"`
	// DayOfWeek uses 0=Sunday..6=Saturday, matching the stored format.
	DayOfWeek *int `json:"dayOfWeek,omitempty"`
	DayOfMonth int `json:"dayOfMonth,omitempty"`
	// CronExpression is the "minute hour" subset used by custom schedules.
	CronExpression string `json:"cronExpression,omitempty"`
}

// ParseConfig decodes a persisted scheduleConfig payload. An empty payload
// yields a zero Config, which resolves entirely to defaults.
func ParseConfig(raw []byte) (Config, error) {
	var cfg Config
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode schedule config: %w", err)
	}
	return cfg, nil
}

// NextRun returns the next execution strictly after now for the given
// schedule type. Unknown types return an error; malformed custom cron
// expressions degrade to the daily default rather than failing, so a bad
// edit never silences an existing schedule.
func NextRun(scheduleType string, cfg Config, now time.Time) (time.Time, error) {
	hour, minute, err := parseClock(cfg.Time)
	if err != nil {
		return time.Time{}, err
	}

	switch strings.ToLower(scheduleType) {
	case TypeDaily:
		return nextDaily(now, hour, minute), nil

	case TypeWeekly:
		day := time.Monday
		if cfg.DayOfWeek != nil {
			if *cfg.DayOfWeek < 0 || *cfg.DayOfWeek > 6 {
				return time.Time{}, fmt.Errorf("dayOfWeek %d out of range", *cfg.DayOfWeek)
			}
			day = time.Weekday(*cfg.DayOfWeek)
		}
		return nextWeekly(now, day, hour, minute), nil

	case TypeMonthly:
		dom := cfg.DayOfMonth
		if dom == 0 {
			dom = 1
		}
		if dom < 1 || dom > 31 {
			return time.Time{}, fmt.Errorf("dayOfMonth %d out of range", dom)
		}
		return nextMonthly(now, dom, hour, minute), nil

	case TypeCustom:
		m, h, ok := parseCronSubset(cfg.CronExpression)
		if !ok {
			m, h = minute, hour
		}
		return nextDaily(now, h, m), nil

	default:
		return time.Time{}, fmt.Errorf("unknown schedule type %q", scheduleType)
	}
}

func nextDaily(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func nextWeekly(now time.Time, day time.Weekday, hour, minute int) time.Time {
	offset := (int(day) - int(now.Weekday()) + 7) % 7
	if offset == 0 {
		// Already the target weekday: always a week out, even when today's
		// slot has not been reached yet.
		offset = 7
	}
	return time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location()).
		AddDate(0, 0, offset)
}

func nextMonthly(now time.Time, dayOfMonth, hour, minute int) time.Time {
	next := monthlyAt(now.Year(), now.Month(), dayOfMonth, hour, minute, now.Location())
	if !next.After(now) {
		year, month := now.Year(), now.Month()+1
		if month > time.December {
			year, month = year+1, time.January
		}
		next = monthlyAt(year, month, dayOfMonth, hour, minute, now.Location())
	}
	return next
}

// monthlyAt clamps the day to the month's length so "31st of February"
// resolves to the last day instead of spilling into March.
func monthlyAt(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func parseClock(value string) (hour, minute int, err error) {
	if value == "" {
		value = defaultTime
	}
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("schedule time %q is not HH:MM", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("schedule time %q is not HH:MM", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("schedule time %q is not HH:MM", value)
	}
	return hour, minute, nil
}

// parseCronSubset reads the "minute hour" two-field form used by custom
// schedules. Anything else is reported as not parseable.
func parseCronSubset(expr string) (minute, hour int, ok bool) {
	fields := strings.Fields(expr)
	if len(fields) != 2 {
		return 0, 0, false
	}
	minute, err := strconv.Atoi(fields[0])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	hour, err = strconv.Atoi(fields[1])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	return minute, hour, true
}
