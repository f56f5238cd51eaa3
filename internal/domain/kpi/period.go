package kpi

import (
	"fmt"
	"time"
)

// DateOnly truncates a timestamp to its calendar date in UTC. Period
// bounds are always dates, never instants.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PeriodBounds maps a period type and a reference date to the inclusive
// [start, end] bounds of the period containing the reference date.
//
// The function is pure and deterministic; the bounds double as the
// idempotency key for entry upserts, so identical input must always give
// identical output. For every valid input, start <= ref <= end.
func PeriodBounds(period PeriodType, ref time.Time) (time.Time, time.Time, error) {
	ref = DateOnly(ref)
	switch period {
	case PeriodDaily:
		return ref, ref, nil
	case PeriodWeekly:
		// Monday-anchored week. time.Weekday counts Sunday as 0.
		offset := (int(ref.Weekday()) + 6) % 7
		start := ref.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 6), nil
	case PeriodMonthly:
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
		// Day zero of the next month is the last day of this one;
		// time.Date normalizes the December rollover.
		end := time.Date(ref.Year(), ref.Month()+1, 0, 0, 0, 0, 0, time.UTC)
		return start, end, nil
	case PeriodQuarterly:
		quarter := (int(ref.Month()) - 1) / 3
		startMonth := time.Month(quarter*3 + 1)
		start := time.Date(ref.Year(), startMonth, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(ref.Year(), startMonth+3, 0, 0, 0, 0, 0, time.UTC)
		return start, end, nil
	case PeriodYearly:
		start := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(ref.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
		return start, end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period type %q", period)
	}
}

// PeriodLabel renders a human-readable label for the period starting at
// the given date: "2024-01-05", "2024-01-08 to 2024-01-14", "2024-01",
// "2024 Q1" or "2024".
func PeriodLabel(start time.Time, period PeriodType) string {
	start = DateOnly(start)
	switch period {
	case PeriodDaily:
		return start.Format("2006-01-02")
	case PeriodWeekly:
		offset := (int(start.Weekday()) + 6) % 7
		weekStart := start.AddDate(0, 0, -offset)
		weekEnd := weekStart.AddDate(0, 0, 6)
		return weekStart.Format("2006-01-02") + " to " + weekEnd.Format("2006-01-02")
	case PeriodMonthly:
		return start.Format("2006-01")
	case PeriodQuarterly:
		quarter := (int(start.Month())-1)/3 + 1
		return fmt.Sprintf("%d Q%d", start.Year(), quarter)
	default:
		return fmt.Sprintf("%d", start.Year())
	}
}
