package kpi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TriggerInput identifies one aggregation run: a KPI and the exact
// period bounds to aggregate over.
type TriggerInput struct {
	KPIID       string            `json:"kpiId"`
	PeriodStart time.Time         `json:"periodStart"`
	PeriodEnd   time.Time         `json:"periodEnd"`
	Method      AggregationMethod `json:"method,omitempty"`
}

// TriggerResult reports the outcome of a single aggregation run.
// Success false with a nil error means there was nothing to aggregate.
type TriggerResult struct {
	Success     bool            `json:"success"`
	EntryID     string          `json:"entryId,omitempty"`
	Value       decimal.Decimal `json:"value"`
	PeriodStart time.Time       `json:"periodStart"`
	PeriodEnd   time.Time       `json:"periodEnd"`
	Message     string          `json:"message,omitempty"`
}

// BatchError ties a per-KPI failure to the KPI it came from.
type BatchError struct {
	KPIID   string `json:"kpiId"`
	KPIName string `json:"kpiName"`
	Error   string `json:"error"`
}

// BatchSummary is the outcome of a reconciliation sweep.
type BatchSummary struct {
	Processed int          `json:"processed"`
	Created   int          `json:"created"`
	Updated   int          `json:"updated"`
	Skipped   int          `json:"skipped"`
	Errors    []BatchError `json:"errors"`
}

// AggregateRunner executes a KPI's aggregate query against the source
// data, bound to the period. Only aggregate-type KPIs use it.
type AggregateRunner interface {
	RunAggregateQuery(ctx context.Context, query string, periodStart, periodEnd time.Time) (decimal.Decimal, error)
}

// Engine turns approved reports and system queries into canonical
// entries. Every write goes through the period-keyed upsert, so
// re-running any trigger is safe.
type Engine struct {
	Store  StoreAPI
	Events EventPublisher
	Runner AggregateRunner
	Logger *slog.Logger
}

func NewEngine(store StoreAPI, events EventPublisher, runner AggregateRunner, logger *slog.Logger) *Engine {
	return &Engine{Store: store, Events: events, Runner: runner, Logger: logger}
}

// AggregateReports builds the entry for a manual KPI and period from its
// approved reports. When no approved reports match the exact period, the
// result is unsuccessful but not an error.
func (e *Engine) AggregateReports(ctx context.Context, in TriggerInput) (TriggerResult, error) {
	start := DateOnly(in.PeriodStart)
	end := DateOnly(in.PeriodEnd)
	result := TriggerResult{PeriodStart: start, PeriodEnd: end}

	if end.Before(start) {
		return result, Invalid("period_end", "must be on or after period_start")
	}

	kpi, err := e.Store.GetKPI(ctx, in.KPIID)
	if err != nil {
		return result, err
	}

	reports, err := e.Store.ApprovedReports(ctx, kpi.ID, start, end)
	if err != nil {
		return result, err
	}
	if len(reports) == 0 {
		result.Message = "no approved reports for this period"
		return result, nil
	}

	method := in.Method
	if method == "" {
		method = DefaultMethod
	}
	if !ValidAggregationMethod(method) {
		return result, Invalid("method", "must be one of sum, average, count")
	}

	value := combineReports(reports, method)
	reporters := distinctReporters(reports)

	entry := Entry{
		ID:          uuid.NewString(),
		KPIID:       kpi.ID,
		PeriodStart: start,
		PeriodEnd:   end,
		Value:       value,
		Notes: fmt.Sprintf("Aggregated %s from %d approved report(s) by: %s",
			method, len(reports), strings.Join(reporters, ", ")),
		Metadata: EntryMetadata{Manual: &ManualAggregationMeta{
			Source:       MetaSourceReports,
			Method:       method,
			ReportsCount: len(reports),
			ReportedBy:   reporters,
		}},
	}
	if err := e.Store.UpsertEntry(ctx, &entry); err != nil {
		return result, err
	}

	e.publish(ctx, entry)
	result.Success = true
	result.EntryID = entry.ID
	result.Value = entry.Value
	result.Message = fmt.Sprintf("aggregated %d report(s)", len(reports))
	return result, nil
}

// RecordSystemValue merges an externally computed value into the entry
// for a system aggregate KPI and period. How the value was computed is
// the caller's business; manual KPIs never take this path.
func (e *Engine) RecordSystemValue(ctx context.Context, kpiID string, periodStart, periodEnd time.Time, value decimal.Decimal) (TriggerResult, error) {
	start := DateOnly(periodStart)
	end := DateOnly(periodEnd)
	result := TriggerResult{PeriodStart: start, PeriodEnd: end}

	if end.Before(start) {
		return result, Invalid("period_end", "must be on or after period_start")
	}

	kpi, err := e.Store.GetKPI(ctx, kpiID)
	if err != nil {
		return result, err
	}
	if kpi.SourceType != SourceAggregate {
		return result, fmt.Errorf("%w: %s is not a system aggregate KPI", ErrInvalidState, kpi.Name)
	}

	entry := Entry{
		ID:           uuid.NewString(),
		KPIID:        kpi.ID,
		PeriodStart:  start,
		PeriodEnd:    end,
		Value:        value,
		IsCalculated: true,
		Notes:        "System aggregated value",
		Metadata: EntryMetadata{System: &SystemAggregationMeta{
			Source:         MetaSourceSystem,
			AggregateQuery: kpi.AggregateQuery,
		}},
	}
	if err := e.Store.UpsertEntry(ctx, &entry); err != nil {
		return result, err
	}

	e.publish(ctx, entry)
	result.Success = true
	result.EntryID = entry.ID
	result.Value = entry.Value
	return result, nil
}

// ComputeSystemValue runs the KPI's stored aggregate query for the
// period and merges the result. This is the in-process stand-in for the
// external subsystem that feeds RecordSystemValue.
func (e *Engine) ComputeSystemValue(ctx context.Context, kpiID string, periodStart, periodEnd time.Time) (TriggerResult, error) {
	start := DateOnly(periodStart)
	end := DateOnly(periodEnd)
	result := TriggerResult{PeriodStart: start, PeriodEnd: end}

	kpi, err := e.Store.GetKPI(ctx, kpiID)
	if err != nil {
		return result, err
	}
	if kpi.SourceType != SourceAggregate {
		return result, fmt.Errorf("%w: %s is not a system aggregate KPI", ErrInvalidState, kpi.Name)
	}
	if e.Runner == nil {
		return result, fmt.Errorf("no aggregate runner configured")
	}

	value, err := e.Runner.RunAggregateQuery(ctx, kpi.AggregateQuery, start, end)
	if err != nil {
		return result, fmt.Errorf("aggregate query for %s: %w", kpi.Name, err)
	}
	return e.RecordSystemValue(ctx, kpi.ID, start, end, value)
}

// ProcessForPeriod recomputes one KPI's entry for the period containing
// ref, using the KPI's own period type. It dispatches on source type.
func (e *Engine) ProcessForPeriod(ctx context.Context, kpiID string, ref time.Time) (TriggerResult, error) {
	kpi, err := e.Store.GetKPI(ctx, kpiID)
	if err != nil {
		return TriggerResult{}, err
	}
	start, end, err := PeriodBounds(kpi.Period, ref)
	if err != nil {
		return TriggerResult{}, err
	}
	if kpi.SourceType == SourceAggregate {
		return e.ComputeSystemValue(ctx, kpi.ID, start, end)
	}
	return e.AggregateReports(ctx, TriggerInput{KPIID: kpi.ID, PeriodStart: start, PeriodEnd: end})
}

// ReconcileAll sweeps every active manual KPI and recomputes its entry
// for the period containing ref. Processed counts only KPIs that yielded
// an entry; a failure on one KPI is logged, recorded in the summary and
// counted as skipped, and the sweep continues. The summary distinguishes
// created rows from overwritten ones.
func (e *Engine) ReconcileAll(ctx context.Context, ref time.Time, method AggregationMethod) (BatchSummary, error) {
	active := true
	kpis, err := e.Store.ListKPIs(ctx, KPIFilter{IsActive: &active, SourceType: SourceManual})
	if err != nil {
		return BatchSummary{}, err
	}

	var summary BatchSummary
	for _, kpi := range kpis {
		start, end, err := PeriodBounds(kpi.Period, ref)
		if err != nil {
			e.Logger.ErrorContext(ctx, "reconcile failed for kpi", "kpi_id", kpi.ID, "kpi_name", kpi.Name, "error", err)
			summary.Skipped++
			summary.Errors = append(summary.Errors, BatchError{KPIID: kpi.ID, KPIName: kpi.Name, Error: err.Error()})
			continue
		}

		_, existed, err := e.Store.EntryForPeriod(ctx, kpi.ID, start, end)
		if err != nil {
			e.Logger.ErrorContext(ctx, "reconcile failed for kpi", "kpi_id", kpi.ID, "kpi_name", kpi.Name, "error", err)
			summary.Skipped++
			summary.Errors = append(summary.Errors, BatchError{KPIID: kpi.ID, KPIName: kpi.Name, Error: err.Error()})
			continue
		}

		result, err := e.AggregateReports(ctx, TriggerInput{KPIID: kpi.ID, PeriodStart: start, PeriodEnd: end, Method: method})
		if err != nil {
			e.Logger.ErrorContext(ctx, "reconcile failed for kpi", "kpi_id", kpi.ID, "kpi_name", kpi.Name, "error", err)
			summary.Skipped++
			summary.Errors = append(summary.Errors, BatchError{KPIID: kpi.ID, KPIName: kpi.Name, Error: err.Error()})
			continue
		}
		if !result.Success {
			summary.Skipped++
			continue
		}
		summary.Processed++
		if existed {
			summary.Updated++
		} else {
			summary.Created++
		}
	}
	return summary, nil
}

func (e *Engine) publish(ctx context.Context, entry Entry) {
	if e.Events == nil {
		return
	}
	e.Events.EntryUpdated(ctx, EntryUpdated{
		KPIID:       entry.KPIID,
		PeriodStart: entry.PeriodStart,
		PeriodEnd:   entry.PeriodEnd,
		Value:       entry.Value,
	})
}

func combineReports(reports []Report, method AggregationMethod) decimal.Decimal {
	switch method {
	case MethodCount:
		return decimal.NewFromInt(int64(len(reports)))
	case MethodSum:
		sum := decimal.Zero
		for _, r := range reports {
			sum = sum.Add(r.ReportedValue)
		}
		return sum
	default:
		// Unrounded; the entries column scale governs what is stored.
		sum := decimal.Zero
		for _, r := range reports {
			sum = sum.Add(r.ReportedValue)
		}
		return sum.Div(decimal.NewFromInt(int64(len(reports))))
	}
}

// distinctReporters returns reporter emails in first-seen order.
func distinctReporters(reports []Report) []string {
	seen := make(map[string]bool)
	var emails []string
	for _, r := range reports {
		if r.ReporterEmail == "" || seen[r.ReporterEmail] {
			continue
		}
		seen[r.ReporterEmail] = true
		emails = append(emails, r.ReporterEmail)
	}
	return emails
}
