package schedule

import (
	"testing"
	"time"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.September, day, hour, minute, 0, 0, time.UTC)
}

func TestNextRunDailyRollover(t *testing.T) {
	cfg := Config{Time: "09:00"}

	before, err := NextRun(TypeDaily, cfg, at(7, 8, 59))
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	if want := at(7, 9, 0); !before.Equal(want) {
		t.Fatalf("before the slot: got %v, want %v", before, want)
	}

	after, err := NextRun(TypeDaily, cfg, at(7, 9, 1))
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	if want := at(8, 9, 0); !after.Equal(want) {
		t.Fatalf("after the slot: got %v, want %v", after, want)
	}

	exact, err := NextRun(TypeDaily, cfg, at(7, 9, 0))
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	if want := at(8, 9, 0); !exact.Equal(want) {
		t.Fatalf("exactly on the slot must roll forward: got %v, want %v", exact, want)
	}
}

func TestNextRunWeekly(t *testing.T) {
	// 2026-09-07 is a Monday.
	monday := at(7, 10, 0)

	next, err := NextRun(TypeWeekly, Config{Time: "09:00"}, monday)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	// Default Monday, 09:00 already passed: a full week out, never today.
	if want := at(14, 9, 0); !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}

	// Still a week out when today's slot has not been reached yet: on the
	// target weekday the occurrence is always the following week.
	next, err = NextRun(TypeWeekly, Config{Time: "09:00"}, at(7, 8, 0))
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	if want := at(14, 9, 0); !next.Equal(want) {
		t.Fatalf("same day before the slot: got %v, want %v", next, want)
	}

	friday := 5
	next, err = NextRun(TypeWeekly, Config{Time: "09:00", DayOfWeek: &friday}, monday)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	if want := at(11, 9, 0); !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}
}

func TestNextRunMonthly(t *testing.T) {
	next, err := NextRun(TypeMonthly, Config{Time: "06:30", DayOfMonth: 15}, at(7, 12, 0))
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	if want := at(15, 6, 30); !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}

	next, err = NextRun(TypeMonthly, Config{Time: "06:30", DayOfMonth: 1}, at(7, 12, 0))
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	if want := time.Date(2026, time.October, 1, 6, 30, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}

	// Day 31 in a 30-day month clamps to the last day.
	next, err = NextRun(TypeMonthly, Config{Time: "06:30", DayOfMonth: 31}, at(7, 12, 0))
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	if want := at(30, 6, 30); !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}
}

func TestNextRunCustomCronSubset(t *testing.T) {
	next, err := NextRun(TypeCustom, Config{CronExpression: "30 14"}, at(7, 12, 0))
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	if want := at(7, 14, 30); !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}

	// Malformed expressions degrade to the daily default instead of failing.
	next, err = NextRun(TypeCustom, Config{CronExpression: "*/5 * * * *"}, at(7, 12, 0))
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	if want := at(8, 9, 0); !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}
}

func TestNextRunRejectsBadInput(t *testing.T) {
	if _, err := NextRun("hourly", Config{}, at(7, 12, 0)); err == nil {
		t.Fatal("expected error for unknown schedule type")
	}
	if _, err := NextRun(TypeDaily, Config{Time: "25:00"}, at(7, 12, 0)); err == nil {
		t.Fatal("expected error for malformed time")
	}
	bad := 9
	if _, err := NextRun(TypeWeekly, Config{DayOfWeek: &bad}, at(7, 12, 0)); err == nil {
		t.Fatal("expected error for out-of-range weekday")
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"time":"07:15","dayOfWeek":3}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Time != "07:15" || cfg.DayOfWeek == nil || *cfg.DayOfWeek != 3 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	cfg, err = ParseConfig(nil)
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if cfg != (Config{}) {
		t.Fatalf("expected zero config, got %+v", cfg)
	}

	if _, err := ParseConfig([]byte(`{`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
