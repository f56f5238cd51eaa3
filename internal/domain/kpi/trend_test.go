package kpi

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPercentageChange(t *testing.T) {
	cases := []struct {
		name     string
		previous float64
		current  float64
		want     float64
	}{
		{"flat at zero", 0, 0, 0},
		{"from zero", 0, 5, 100},
		{"to zero", 5, 0, -100},
		{"increase", 100, 150, 50},
		{"decrease", 200, 150, -25},
		{"rounds to two decimals", 3, 4, 33.33},
		{"negative previous", -10, -5, -50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, PercentageChange(tc.previous, tc.current))
		})
	}
}

func seedEntries(t *testing.T, store *memStore, kpiID string, values ...float64) {
	t.Helper()
	day := date(2024, 1, 1)
	for i, v := range values {
		start := day.AddDate(0, i, 0)
		end := time.Date(start.Year(), start.Month()+1, 0, 0, 0, 0, 0, time.UTC)
		e := Entry{
			KPIID:        kpiID,
			PeriodStart:  start,
			PeriodEnd:    end,
			Value:        decimal.NewFromFloat(v),
			IsCalculated: true,
		}
		require.NoError(t, store.UpsertEntry(context.Background(), &e))
	}
}

func TestAnalyzeTrend(t *testing.T) {
	store := newMemStore()
	k := KPI{Name: "Revenue", OrganizationID: "org-1", SourceType: SourceManual, Period: PeriodMonthly, IsActive: true}
	require.NoError(t, store.CreateKPI(context.Background(), &k))
	seedEntries(t, store, k.ID, 100, 150, 120)

	report, err := NewAnalyzer(store).Analyze(context.Background(), k.ID, 12)
	require.NoError(t, err)
	require.Equal(t, "Revenue", report.KPIName)
	require.Len(t, report.Points, 3)

	require.Equal(t, "2024-01", report.Points[0].Label)
	require.Nil(t, report.Points[0].Change)
	require.False(t, report.Points[0].IsIncrease)

	require.NotNil(t, report.Points[1].Change)
	require.Equal(t, 50.0, *report.Points[1].Change)
	require.True(t, report.Points[1].IsIncrease)

	require.NotNil(t, report.Points[2].Change)
	require.Equal(t, -20.0, *report.Points[2].Change)
	require.False(t, report.Points[2].IsIncrease)

	require.Equal(t, TrendIncreasing, report.Direction)
	require.Equal(t, 3, report.Stats.Count)
	require.Equal(t, 100.0, report.Stats.First)
	require.Equal(t, 123.33, report.Stats.Average)
	require.Equal(t, 100.0, report.Stats.Minimum)
	require.Equal(t, 150.0, report.Stats.Maximum)
	require.Equal(t, 120.0, report.Stats.Latest)
	require.Equal(t, 20.0, report.Stats.OverallChange)
}

func TestAnalyzeTrendZeroCrossings(t *testing.T) {
	store := newMemStore()
	k := KPI{Name: "Incidents", OrganizationID: "org-1", SourceType: SourceManual, Period: PeriodMonthly, IsActive: true}
	require.NoError(t, store.CreateKPI(context.Background(), &k))
	seedEntries(t, store, k.ID, 10, 0, 5)

	report, err := NewAnalyzer(store).Analyze(context.Background(), k.ID, 12)
	require.NoError(t, err)
	require.Len(t, report.Points, 3)

	require.Nil(t, report.Points[0].Change)
	require.NotNil(t, report.Points[1].Change)
	require.Equal(t, -100.0, *report.Points[1].Change)
	require.NotNil(t, report.Points[2].Change)
	require.Equal(t, 100.0, *report.Points[2].Change)

	require.Equal(t, 10.0, report.Stats.First)
	require.Equal(t, 5.0, report.Stats.Latest)
	require.Equal(t, -50.0, report.Stats.OverallChange)
	require.Equal(t, TrendDecreasing, report.Direction)
}

func TestAnalyzeTrendWindow(t *testing.T) {
	store := newMemStore()
	k := KPI{Name: "Revenue", OrganizationID: "org-1", SourceType: SourceManual, Period: PeriodMonthly, IsActive: true}
	require.NoError(t, store.CreateKPI(context.Background(), &k))
	seedEntries(t, store, k.ID, 10, 20, 30, 40, 50)

	report, err := NewAnalyzer(store).Analyze(context.Background(), k.ID, 3)
	require.NoError(t, err)
	require.Len(t, report.Points, 3)
	require.Equal(t, 30.0, report.Points[0].Value)
	// The first window point still gets its change from the entry before
	// the window.
	require.NotNil(t, report.Points[0].Change)
	require.Equal(t, 50.0, *report.Points[0].Change)
	require.Equal(t, 3, report.Stats.Count)
	require.Equal(t, 30.0, report.Stats.Minimum)

	// periods=0 keeps the full history.
	full, err := NewAnalyzer(store).Analyze(context.Background(), k.ID, 0)
	require.NoError(t, err)
	require.Len(t, full.Points, 5)
	require.Nil(t, full.Points[0].Change)
}

func TestAnalyzeTrendFullHistoryStats(t *testing.T) {
	store := newMemStore()
	k := KPI{Name: "Revenue", OrganizationID: "org-1", SourceType: SourceManual, Period: PeriodMonthly, IsActive: true}
	require.NoError(t, store.CreateKPI(context.Background(), &k))
	seedEntries(t, store, k.ID, 10, 20, 30, 40, 50)

	analyzer := NewAnalyzer(store)
	analyzer.FullHistoryStats = true
	report, err := analyzer.Analyze(context.Background(), k.ID, 3)
	require.NoError(t, err)
	require.Len(t, report.Points, 3)
	require.Equal(t, 5, report.Stats.Count)
	require.Equal(t, 10.0, report.Stats.Minimum)
}

func TestAnalyzeTrendNoEntries(t *testing.T) {
	store := newMemStore()
	k := KPI{Name: "Revenue", OrganizationID: "org-1", SourceType: SourceManual, Period: PeriodMonthly, IsActive: true}
	require.NoError(t, store.CreateKPI(context.Background(), &k))

	report, err := NewAnalyzer(store).Analyze(context.Background(), k.ID, 12)
	require.NoError(t, err)
	require.Empty(t, report.Points)
	require.Equal(t, TrendStable, report.Direction)
	require.Equal(t, 0, report.Stats.Count)
}

func TestRenderTrendPDF(t *testing.T) {
	store := newMemStore()
	k := KPI{Name: "Revenue", OrganizationID: "org-1", SourceType: SourceManual, Period: PeriodMonthly, Unit: "USD", IsActive: true}
	require.NoError(t, store.CreateKPI(context.Background(), &k))
	seedEntries(t, store, k.ID, 100, 150)

	report, err := NewAnalyzer(store).Analyze(context.Background(), k.ID, 12)
	require.NoError(t, err)

	data, err := RenderTrendPDF(report)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	require.Equal(t, "%PDF", string(data[:4]))
}
