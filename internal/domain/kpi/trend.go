package kpi

import (
	"context"
	"math"
	"time"

	"github.com/montanaflynn/stats"
)

// DefaultTrendPeriods is the trailing window used when a caller does not
// ask for a specific number of periods.
const DefaultTrendPeriods = 12

// PercentageChange returns the percent change from previous to current,
// rounded to two decimals. Transitions touching zero are clamped: no
// movement at zero is 0, appearing from zero is +100, vanishing to zero
// is -100.
func PercentageChange(previous, current float64) float64 {
	switch {
	case previous == 0 && current == 0:
		return 0
	case previous == 0:
		return 100
	case current == 0:
		return -100
	default:
		return round2((current - previous) / previous * 100)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// TrendPoint annotates one entry with its change against the preceding
// entry. Change is nil for the very first entry of the series.
type TrendPoint struct {
	PeriodStart  time.Time `json:"periodStart"`
	PeriodEnd    time.Time `json:"periodEnd"`
	Label        string    `json:"label"`
	Value        float64   `json:"value"`
	Change       *float64  `json:"change"`
	IsIncrease   bool      `json:"isIncrease"`
	IsCalculated bool      `json:"isCalculated"`
	CreatedAt    time.Time `json:"createdAt"`
}

type TrendStats struct {
	Count         int     `json:"count"`
	First         float64 `json:"first"`
	Average       float64 `json:"average"`
	Minimum       float64 `json:"minimum"`
	Maximum       float64 `json:"maximum"`
	Latest        float64 `json:"latest"`
	OverallChange float64 `json:"overallChange"`
}

type TrendReport struct {
	KPIID     string         `json:"kpiId"`
	KPIName   string         `json:"kpiName"`
	Period    PeriodType     `json:"period"`
	Unit      string         `json:"unit,omitempty"`
	Direction TrendDirection `json:"direction"`
	Points    []TrendPoint   `json:"points"`
	Stats     TrendStats     `json:"stats"`
}

// Analyzer derives trend reports from a KPI's entry history. With
// FullHistoryStats set, summary statistics cover every entry instead of
// the returned window.
type Analyzer struct {
	Store            StoreAPI
	FullHistoryStats bool
}

func NewAnalyzer(store StoreAPI) *Analyzer {
	return &Analyzer{Store: store}
}

// Analyze returns the trailing window of trend points for a KPI, at most
// periods long (0 keeps the full history), with period-over-period changes
// and summary statistics.
func (a *Analyzer) Analyze(ctx context.Context, kpiID string, periods int) (TrendReport, error) {
	kpi, err := a.Store.GetKPI(ctx, kpiID)
	if err != nil {
		return TrendReport{}, err
	}
	entries, err := a.Store.EntriesForKPI(ctx, kpiID)
	if err != nil {
		return TrendReport{}, err
	}

	report := TrendReport{
		KPIID:     kpi.ID,
		KPIName:   kpi.Name,
		Period:    kpi.Period,
		Unit:      kpi.Unit,
		Direction: TrendStable,
	}
	if len(entries) == 0 {
		return report, nil
	}

	allValues := make([]float64, len(entries))
	for i, e := range entries {
		allValues[i] = e.Value.InexactFloat64()
	}

	// Changes are computed over the full series first, then the series is
	// truncated, so the first windowed point keeps its real predecessor.
	windowStart := 0
	if periods > 0 && len(entries) > periods {
		windowStart = len(entries) - periods
	}
	window := entries[windowStart:]

	points := make([]TrendPoint, 0, len(window))
	for i, e := range window {
		value := allValues[windowStart+i]
		var change *float64
		if windowStart+i > 0 {
			c := PercentageChange(allValues[windowStart+i-1], value)
			change = &c
		}
		points = append(points, TrendPoint{
			PeriodStart:  e.PeriodStart,
			PeriodEnd:    e.PeriodEnd,
			Label:        PeriodLabel(e.PeriodStart, kpi.Period),
			Value:        value,
			Change:       change,
			IsIncrease:   change != nil && *change > 0,
			IsCalculated: e.IsCalculated,
			CreatedAt:    e.CreatedAt,
		})
	}
	report.Points = points

	statsValues := allValues[windowStart:]
	if a.FullHistoryStats {
		statsValues = allValues
	}
	report.Stats = summarize(statsValues)

	switch {
	case report.Stats.OverallChange > 0:
		report.Direction = TrendIncreasing
	case report.Stats.OverallChange < 0:
		report.Direction = TrendDecreasing
	}
	return report, nil
}

// Stats summarizes a KPI's full entry history.
func (a *Analyzer) Stats(ctx context.Context, kpiID string) (TrendStats, error) {
	entries, err := a.Store.EntriesForKPI(ctx, kpiID)
	if err != nil {
		return TrendStats{}, err
	}
	values := make([]float64, len(entries))
	for i, e := range entries {
		values[i] = e.Value.InexactFloat64()
	}
	return summarize(values), nil
}

func summarize(values []float64) TrendStats {
	if len(values) == 0 {
		return TrendStats{}
	}
	mean, _ := stats.Mean(values)
	minimum, _ := stats.Min(values)
	maximum, _ := stats.Max(values)
	first := values[0]
	latest := values[len(values)-1]
	return TrendStats{
		Count:         len(values),
		First:         round2(first),
		Average:       round2(mean),
		Minimum:       round2(minimum),
		Maximum:       round2(maximum),
		Latest:        round2(latest),
		OverallChange: PercentageChange(first, latest),
	}
}
