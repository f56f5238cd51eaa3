package kpi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kpitracker/internal/domain/directory"
)

// AggregationScheduler hands an aggregation trigger off for execution.
// Implementations must not fail the caller: a trigger that cannot run
// is logged and retried out of band, never bubbled into the approval.
type AggregationScheduler interface {
	ScheduleAggregation(ctx context.Context, in TriggerInput)
}

// Workflow drives a report through draft, submitted and the two
// terminal review states. Approval is the only transition with a side
// effect: it schedules aggregation for the report's KPI and period.
type Workflow struct {
	Store     StoreAPI
	Scheduler AggregationScheduler
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewWorkflow(store StoreAPI, scheduler AggregationScheduler, logger *slog.Logger) *Workflow {
	return &Workflow{Store: store, Scheduler: scheduler, Logger: logger, Now: time.Now}
}

type CreateReportInput struct {
	AssignmentID  string          `json:"assignmentId"`
	PeriodDate    time.Time       `json:"periodDate"`
	ReportedValue decimal.Decimal `json:"reportedValue"`
	Notes         string          `json:"notes"`
}

// CreateReport opens a draft for the assignment's KPI and the period
// containing the given date. The period bounds are derived from the
// KPI's period type, never taken from the caller, so every report for
// the same period carries identical bounds.
func (w *Workflow) CreateReport(ctx context.Context, actor directory.Actor, in CreateReportInput) (Report, error) {
	assignment, err := w.Store.GetAssignment(ctx, in.AssignmentID)
	if err != nil {
		return Report{}, err
	}
	if !UserCanReport(&assignment, actor) {
		return Report{}, fmt.Errorf("%w: you are not assigned to this KPI", ErrForbidden)
	}

	kpi, err := w.Store.GetKPI(ctx, assignment.KPIID)
	if err != nil {
		return Report{}, err
	}
	if !kpi.IsActive {
		return Report{}, Invalid("kpi", "KPI is not active")
	}
	if kpi.SourceType != SourceManual {
		return Report{}, Invalid("kpi", "system aggregate KPIs do not take user reports")
	}

	start, end, err := PeriodBounds(kpi.Period, in.PeriodDate)
	if err != nil {
		return Report{}, Invalid("period_date", err.Error())
	}

	exists, err := w.Store.ReportExists(ctx, assignment.ID, start, end)
	if err != nil {
		return Report{}, err
	}
	if exists {
		return Report{}, fmt.Errorf("%w: a report for this assignment and period already exists", ErrDuplicate)
	}

	report := Report{
		ID:            uuid.NewString(),
		KPIID:         kpi.ID,
		AssignmentID:  assignment.ID,
		PeriodStart:   start,
		PeriodEnd:     end,
		ReportedValue: in.ReportedValue,
		Notes:         in.Notes,
		Status:        StatusDraft,
		ReportedBy:    actor.UserID,
	}
	if err := w.Store.CreateReport(ctx, &report); err != nil {
		return Report{}, err
	}
	report.ReporterEmail = actor.Email
	return report, nil
}

type UpdateDraftInput struct {
	ReportedValue decimal.Decimal `json:"reportedValue"`
	Notes         string          `json:"notes"`
}

// UpdateDraft replaces the value and notes of the reporter's own draft.
func (w *Workflow) UpdateDraft(ctx context.Context, actor directory.Actor, reportID string, in UpdateDraftInput) (Report, error) {
	report, err := w.ownDraft(ctx, actor, reportID)
	if err != nil {
		return Report{}, err
	}
	report.ReportedValue = in.ReportedValue
	report.Notes = in.Notes
	if err := w.Store.UpdateReport(ctx, &report); err != nil {
		return Report{}, err
	}
	return report, nil
}

// DeleteDraft removes the reporter's own draft. Submitted and reviewed
// reports are immutable history and cannot be deleted.
func (w *Workflow) DeleteDraft(ctx context.Context, actor directory.Actor, reportID string) error {
	report, err := w.ownDraft(ctx, actor, reportID)
	if err != nil {
		return err
	}
	return w.Store.DeleteReport(ctx, report.ID)
}

// SubmitReport moves the reporter's draft into review.
func (w *Workflow) SubmitReport(ctx context.Context, actor directory.Actor, reportID string) (Report, error) {
	report, err := w.Store.GetReport(ctx, reportID)
	if err != nil {
		return Report{}, err
	}
	if report.ReportedBy != actor.UserID {
		return Report{}, fmt.Errorf("%w: only the reporter can submit a report", ErrForbidden)
	}
	if err := report.Submit(w.Now().UTC()); err != nil {
		return Report{}, err
	}
	if err := w.Store.UpdateReport(ctx, &report); err != nil {
		return Report{}, err
	}
	return report, nil
}

type ReviewInput struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

// ReviewReport approves or rejects a submitted report. Approval
// schedules aggregation for the report's KPI and period; a trigger that
// fails to run never rolls the approval back.
func (w *Workflow) ReviewReport(ctx context.Context, actor directory.Actor, reportID string, in ReviewInput) (Report, error) {
	if !actor.CanApproveKPIReports() {
		return Report{}, fmt.Errorf("%w: only supervisors can review reports", ErrForbidden)
	}
	report, err := w.Store.GetReport(ctx, reportID)
	if err != nil {
		return Report{}, err
	}

	now := w.Now().UTC()
	if in.Approve {
		err = report.Approve(actor.UserID, in.Notes, now)
	} else {
		err = report.Reject(actor.UserID, in.Notes, now)
	}
	if err != nil {
		return Report{}, err
	}
	if err := w.Store.UpdateReport(ctx, &report); err != nil {
		return Report{}, err
	}

	if in.Approve && w.Scheduler != nil {
		w.Scheduler.ScheduleAggregation(ctx, TriggerInput{
			KPIID:       report.KPIID,
			PeriodStart: report.PeriodStart,
			PeriodEnd:   report.PeriodEnd,
		})
	}
	return report, nil
}

func (w *Workflow) ownDraft(ctx context.Context, actor directory.Actor, reportID string) (Report, error) {
	report, err := w.Store.GetReport(ctx, reportID)
	if err != nil {
		return Report{}, err
	}
	if report.ReportedBy != actor.UserID {
		return Report{}, fmt.Errorf("%w: not your report", ErrForbidden)
	}
	if report.Status != StatusDraft {
		return Report{}, fmt.Errorf("%w: only draft reports can be changed (status %s)", ErrInvalidState, report.Status)
	}
	return report, nil
}
