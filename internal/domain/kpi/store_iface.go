package kpi

import (
	"context"
	"time"
)

// Page bounds a list query. A zero Limit means unbounded; internal
// callers (resolver, reconciliation) rely on that.
type Page struct {
	Limit  int
	Offset int
}

type KPIFilter struct {
	OrganizationID string
	BranchID       string
	SourceType     SourceType
	IsActive       *bool
	Page           Page
}

type AssignmentFilter struct {
	KPIID    string
	RoleID   string
	UserID   string
	Type     AssignmentType
	IsActive *bool
	Page     Page
}

type ReportFilter struct {
	KPIID        string
	AssignmentID string
	ReportedBy   string
	Status       ReportStatus
	Page         Page
}

type EntryFilter struct {
	KPIID          string
	OrganizationID string
	BranchID       string
	Page           Page
}

type ActionFilter struct {
	KPIID      string
	UserID     string
	ActionType string
	Page       Page
}

// StoreAPI is the persistence surface consumed by the workflow, the
// aggregation engine and the trend analyzer. The pgx store implements it
// against Postgres; tests use an in-memory fake.
type StoreAPI interface {
	CreateKPI(ctx context.Context, k *KPI) error
	GetKPI(ctx context.Context, id string) (KPI, error)
	UpdateKPI(ctx context.Context, k *KPI) error
	DeactivateKPI(ctx context.Context, id string) error
	ListKPIs(ctx context.Context, filter KPIFilter) ([]KPI, error)
	KPIHasEntries(ctx context.Context, id string) (bool, error)

	CreateAssignment(ctx context.Context, a *Assignment) error
	GetAssignment(ctx context.Context, id string) (Assignment, error)
	ListAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error)
	DeactivateAssignment(ctx context.Context, id string) error

	CreateReport(ctx context.Context, r *Report) error
	GetReport(ctx context.Context, id string) (Report, error)
	UpdateReport(ctx context.Context, r *Report) error
	DeleteReport(ctx context.Context, id string) error
	ListReports(ctx context.Context, filter ReportFilter) ([]Report, error)
	ReportExists(ctx context.Context, assignmentID string, periodStart, periodEnd time.Time) (bool, error)
	// ApprovedReports returns approved reports whose bounds match the
	// period exactly, ordered by creation time. Overlapping-but-different
	// periods are never mixed into one entry.
	ApprovedReports(ctx context.Context, kpiID string, periodStart, periodEnd time.Time) ([]Report, error)

	UpsertEntry(ctx context.Context, e *Entry) error
	GetEntry(ctx context.Context, id string) (Entry, error)
	EntryForPeriod(ctx context.Context, kpiID string, periodStart, periodEnd time.Time) (Entry, bool, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error)
	// EntriesForKPI returns all entries ordered by period_start ascending.
	EntriesForKPI(ctx context.Context, kpiID string) ([]Entry, error)

	CreateAction(ctx context.Context, a *Action) error
	ListActions(ctx context.Context, filter ActionFilter) ([]Action, error)
	CountActions(ctx context.Context, kpiID string) (int, error)
}
