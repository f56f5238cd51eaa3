package kpi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kpitracker/internal/domain/directory"
)

type recordingScheduler struct {
	triggers []TriggerInput
}

func (s *recordingScheduler) ScheduleAggregation(_ context.Context, in TriggerInput) {
	s.triggers = append(s.triggers, in)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

type workflowFixture struct {
	store     *memStore
	scheduler *recordingScheduler
	workflow  *Workflow
	kpi       KPI
	agentA    directory.Actor
	agentB    directory.Actor
	boss      directory.Actor
	agentAsgn Assignment
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	store := newMemStore()
	scheduler := &recordingScheduler{}
	f := &workflowFixture{
		store:     store,
		scheduler: scheduler,
		workflow:  NewWorkflow(store, scheduler, discardLogger()),
		agentA:    directory.Actor{UserID: "u-a", Email: "a@example.com", RoleID: "r-agent", RoleName: directory.RoleAgent},
		agentB:    directory.Actor{UserID: "u-b", Email: "b@example.com", RoleID: "r-agent", RoleName: directory.RoleAgent},
		boss:      directory.Actor{UserID: "u-s", Email: "s@example.com", RoleID: "r-sup", RoleName: directory.RoleSupervisor, Supervisor: true},
	}
	f.kpi = KPI{
		Name:           "Calls Handled",
		OrganizationID: "org-1",
		SourceType:     SourceManual,
		Period:         PeriodWeekly,
		IsActive:       true,
	}
	require.NoError(t, store.CreateKPI(context.Background(), &f.kpi))
	f.agentAsgn = Assignment{
		KPIID:    f.kpi.ID,
		Type:     AssignmentRole,
		RoleID:   strPtr("r-agent"),
		IsActive: true,
	}
	require.NoError(t, store.CreateAssignment(context.Background(), &f.agentAsgn))
	return f
}

func (f *workflowFixture) draft(t *testing.T, actor directory.Actor, value float64) Report {
	t.Helper()
	report, err := f.workflow.CreateReport(context.Background(), actor, CreateReportInput{
		AssignmentID:  f.agentAsgn.ID,
		PeriodDate:    date(2024, 1, 10),
		ReportedValue: decimal.NewFromFloat(value),
	})
	require.NoError(t, err)
	return report
}

func TestCreateReportDerivesPeriodBounds(t *testing.T) {
	f := newWorkflowFixture(t)
	report := f.draft(t, f.agentA, 42)

	require.Equal(t, StatusDraft, report.Status)
	require.Equal(t, date(2024, 1, 8), report.PeriodStart)
	require.Equal(t, date(2024, 1, 14), report.PeriodEnd)
	require.Equal(t, "u-a", report.ReportedBy)
}

func TestCreateReportRejectsUnassignedUser(t *testing.T) {
	f := newWorkflowFixture(t)
	outsider := directory.Actor{UserID: "u-x", RoleID: "r-other"}

	_, err := f.workflow.CreateReport(context.Background(), outsider, CreateReportInput{
		AssignmentID:  f.agentAsgn.ID,
		PeriodDate:    date(2024, 1, 10),
		ReportedValue: decimal.NewFromInt(1),
	})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCreateReportRejectsDuplicatePeriod(t *testing.T) {
	f := newWorkflowFixture(t)
	f.draft(t, f.agentA, 10)

	// Same assignment, different day in the same week.
	_, err := f.workflow.CreateReport(context.Background(), f.agentA, CreateReportInput{
		AssignmentID:  f.agentAsgn.ID,
		PeriodDate:    date(2024, 1, 12),
		ReportedValue: decimal.NewFromInt(20),
	})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestCreateReportRejectsAggregateKPI(t *testing.T) {
	f := newWorkflowFixture(t)
	sysKPI := KPI{
		Name:           "Orders",
		OrganizationID: "org-1",
		SourceType:     SourceAggregate,
		Period:         PeriodDaily,
		AggregateQuery: "SELECT COUNT(1) FROM orders",
		IsActive:       true,
	}
	require.NoError(t, f.store.CreateKPI(context.Background(), &sysKPI))
	asgn := Assignment{KPIID: sysKPI.ID, Type: AssignmentUser, UserID: strPtr("u-a"), IsActive: true}
	require.NoError(t, f.store.CreateAssignment(context.Background(), &asgn))

	_, err := f.workflow.CreateReport(context.Background(), f.agentA, CreateReportInput{
		AssignmentID:  asgn.ID,
		PeriodDate:    date(2024, 1, 10),
		ReportedValue: decimal.NewFromInt(5),
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSubmitOnlyByReporter(t *testing.T) {
	f := newWorkflowFixture(t)
	report := f.draft(t, f.agentA, 10)

	_, err := f.workflow.SubmitReport(context.Background(), f.agentB, report.ID)
	require.ErrorIs(t, err, ErrForbidden)

	submitted, err := f.workflow.SubmitReport(context.Background(), f.agentA, report.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)
}

func TestSubmitTwiceFails(t *testing.T) {
	f := newWorkflowFixture(t)
	report := f.draft(t, f.agentA, 10)

	_, err := f.workflow.SubmitReport(context.Background(), f.agentA, report.ID)
	require.NoError(t, err)
	_, err = f.workflow.SubmitReport(context.Background(), f.agentA, report.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestApproveSchedulesAggregation(t *testing.T) {
	f := newWorkflowFixture(t)
	report := f.draft(t, f.agentA, 10)
	_, err := f.workflow.SubmitReport(context.Background(), f.agentA, report.ID)
	require.NoError(t, err)

	approved, err := f.workflow.ReviewReport(context.Background(), f.boss, report.ID, ReviewInput{Approve: true, Notes: "ok"})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedAt)
	require.Equal(t, "u-s", *approved.ApprovedBy)

	require.Len(t, f.scheduler.triggers, 1)
	require.Equal(t, f.kpi.ID, f.scheduler.triggers[0].KPIID)
	require.Equal(t, report.PeriodStart, f.scheduler.triggers[0].PeriodStart)
	require.Equal(t, report.PeriodEnd, f.scheduler.triggers[0].PeriodEnd)
}

func TestRejectDoesNotScheduleAggregation(t *testing.T) {
	f := newWorkflowFixture(t)
	report := f.draft(t, f.agentA, 10)
	_, err := f.workflow.SubmitReport(context.Background(), f.agentA, report.ID)
	require.NoError(t, err)

	rejected, err := f.workflow.ReviewReport(context.Background(), f.boss, report.ID, ReviewInput{Approve: false, Notes: "redo"})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Empty(t, f.scheduler.triggers)
}

func TestReviewRequiresSupervisor(t *testing.T) {
	f := newWorkflowFixture(t)
	report := f.draft(t, f.agentA, 10)
	_, err := f.workflow.SubmitReport(context.Background(), f.agentA, report.ID)
	require.NoError(t, err)

	_, err = f.workflow.ReviewReport(context.Background(), f.agentB, report.ID, ReviewInput{Approve: true})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestReviewDraftFails(t *testing.T) {
	f := newWorkflowFixture(t)
	report := f.draft(t, f.agentA, 10)

	_, err := f.workflow.ReviewReport(context.Background(), f.boss, report.ID, ReviewInput{Approve: true})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestDraftEditAndDelete(t *testing.T) {
	f := newWorkflowFixture(t)
	report := f.draft(t, f.agentA, 10)

	updated, err := f.workflow.UpdateDraft(context.Background(), f.agentA, report.ID, UpdateDraftInput{
		ReportedValue: decimal.NewFromInt(25),
		Notes:         "corrected",
	})
	require.NoError(t, err)
	require.True(t, updated.ReportedValue.Equal(decimal.NewFromInt(25)))

	_, err = f.workflow.UpdateDraft(context.Background(), f.agentB, report.ID, UpdateDraftInput{})
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.workflow.DeleteDraft(context.Background(), f.agentA, report.ID))
	_, err = f.store.GetReport(context.Background(), report.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubmittedReportCannotBeEditedOrDeleted(t *testing.T) {
	f := newWorkflowFixture(t)
	report := f.draft(t, f.agentA, 10)
	_, err := f.workflow.SubmitReport(context.Background(), f.agentA, report.ID)
	require.NoError(t, err)

	_, err = f.workflow.UpdateDraft(context.Background(), f.agentA, report.ID, UpdateDraftInput{})
	require.ErrorIs(t, err, ErrInvalidState)
	err = f.workflow.DeleteDraft(context.Background(), f.agentA, report.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReportTransitionsPure(t *testing.T) {
	now := time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC)
	r := Report{Status: StatusDraft}

	require.NoError(t, r.Submit(now))
	require.Error(t, r.Reject("x", "", now.Add(time.Hour)))
	require.NoError(t, r.Approve("rev", "fine", now.Add(time.Hour)))
	require.Equal(t, StatusApproved, r.Status)

	err := r.Approve("rev", "", now)
	require.True(t, errors.Is(err, ErrInvalidState))
}
