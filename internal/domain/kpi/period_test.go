package kpi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodBounds(t *testing.T) {
	cases := []struct {
		name   string
		period PeriodType
		ref    time.Time
		start  time.Time
		end    time.Time
	}{
		{"daily", PeriodDaily, date(2024, 3, 15), date(2024, 3, 15), date(2024, 3, 15)},
		{"weekly midweek", PeriodWeekly, date(2024, 1, 10), date(2024, 1, 8), date(2024, 1, 14)},
		{"weekly on monday", PeriodWeekly, date(2024, 1, 8), date(2024, 1, 8), date(2024, 1, 14)},
		{"weekly on sunday", PeriodWeekly, date(2024, 1, 14), date(2024, 1, 8), date(2024, 1, 14)},
		{"weekly across month boundary", PeriodWeekly, date(2024, 2, 1), date(2024, 1, 29), date(2024, 2, 4)},
		{"monthly leap february", PeriodMonthly, date(2024, 2, 15), date(2024, 2, 1), date(2024, 2, 29)},
		{"monthly plain february", PeriodMonthly, date(2023, 2, 15), date(2023, 2, 1), date(2023, 2, 28)},
		{"monthly december", PeriodMonthly, date(2024, 12, 31), date(2024, 12, 1), date(2024, 12, 31)},
		{"quarterly q1", PeriodQuarterly, date(2024, 2, 10), date(2024, 1, 1), date(2024, 3, 31)},
		{"quarterly q4", PeriodQuarterly, date(2024, 11, 5), date(2024, 10, 1), date(2024, 12, 31)},
		{"yearly", PeriodYearly, date(2024, 7, 4), date(2024, 1, 1), date(2024, 12, 31)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := PeriodBounds(tc.period, tc.ref)
			require.NoError(t, err)
			require.Equal(t, tc.start, start)
			require.Equal(t, tc.end, end)
		})
	}
}

func TestPeriodBoundsContainReference(t *testing.T) {
	refs := []time.Time{
		date(2024, 1, 1), date(2024, 2, 29), date(2024, 6, 30),
		date(2024, 12, 31), date(2023, 2, 28),
	}
	for _, period := range []PeriodType{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly} {
		for _, ref := range refs {
			start, end, err := PeriodBounds(period, ref)
			require.NoError(t, err)
			require.False(t, ref.Before(start), "%s bounds for %s must not start after it", period, ref)
			require.False(t, ref.After(end), "%s bounds for %s must not end before it", period, ref)
		}
	}
}

func TestPeriodBoundsDeterministic(t *testing.T) {
	ref := time.Date(2024, 5, 17, 23, 45, 0, 0, time.FixedZone("UTC+5", 5*3600))
	s1, e1, err := PeriodBounds(PeriodWeekly, ref)
	require.NoError(t, err)
	s2, e2, err := PeriodBounds(PeriodWeekly, ref)
	require.NoError(t, err)
	require.Equal(t, s1, s2)
	require.Equal(t, e1, e2)
	require.Equal(t, 0, s1.Hour())
	require.Equal(t, time.UTC, s1.Location())
}

func TestPeriodBoundsUnknownType(t *testing.T) {
	_, _, err := PeriodBounds("biweekly", date(2024, 1, 1))
	require.Error(t, err)
}

func TestPeriodLabel(t *testing.T) {
	require.Equal(t, "2024-01-05", PeriodLabel(date(2024, 1, 5), PeriodDaily))
	require.Equal(t, "2024-01-08 to 2024-01-14", PeriodLabel(date(2024, 1, 8), PeriodWeekly))
	require.Equal(t, "2024-02", PeriodLabel(date(2024, 2, 1), PeriodMonthly))
	require.Equal(t, "2024 Q2", PeriodLabel(date(2024, 4, 1), PeriodQuarterly))
	require.Equal(t, "2024", PeriodLabel(date(2024, 1, 1), PeriodYearly))
}
