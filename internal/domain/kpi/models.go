package kpi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// KPI is a tracked metric definition. Created by supervisors; soft
// deactivated rather than deleted once entries reference it.
type KPI struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	OrganizationID string           `json:"organizationId"`
	BranchID       *string          `json:"branchId,omitempty"`
	SourceType     SourceType       `json:"sourceType"`
	Period         PeriodType       `json:"period"`
	TargetValue    *decimal.Decimal `json:"targetValue,omitempty"`
	MinimumValue   *decimal.Decimal `json:"minimumValue,omitempty"`
	MaximumValue   *decimal.Decimal `json:"maximumValue,omitempty"`
	Unit           string           `json:"unit"`
	AggregateQuery string           `json:"aggregateQuery,omitempty"`
	IsActive       bool             `json:"isActive"`
	CreatedBy      *string          `json:"createdBy,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// Validate checks the configuration invariants shared by create and
// update.
func (k *KPI) Validate() error {
	if k.Name == "" {
		return Invalid("name", "name is required")
	}
	if !ValidSourceType(k.SourceType) {
		return Invalid("source_type", "must be 'aggregate' or 'manual'")
	}
	if !ValidPeriodType(k.Period) {
		return Invalid("period", "must be one of daily, weekly, monthly, quarterly, yearly")
	}
	if k.SourceType == SourceAggregate && k.AggregateQuery == "" {
		return Invalid("aggregate_query", "aggregate query is required for system aggregate KPIs")
	}
	if k.MinimumValue != nil && k.MaximumValue != nil && k.MinimumValue.GreaterThan(*k.MaximumValue) {
		return Invalid("minimum_value", "minimum value cannot be greater than maximum value")
	}
	return nil
}

// Assignment binds a KPI to exactly one of a role or an individual user.
type Assignment struct {
	ID         string         `json:"id"`
	KPIID      string         `json:"kpiId"`
	Type       AssignmentType `json:"assignmentType"`
	RoleID     *string        `json:"roleId,omitempty"`
	UserID     *string        `json:"userId,omitempty"`
	IsActive   bool           `json:"isActive"`
	AssignedBy *string        `json:"assignedBy,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Report is one user's claimed value for one assignment and one exact
// period. ReporterEmail is populated on load for aggregation metadata and
// is not a column of its own.
type Report struct {
	ID            string          `json:"id"`
	KPIID         string          `json:"kpiId"`
	AssignmentID  string          `json:"assignmentId"`
	PeriodStart   time.Time       `json:"periodStart"`
	PeriodEnd     time.Time       `json:"periodEnd"`
	ReportedValue decimal.Decimal `json:"reportedValue"`
	Notes         string          `json:"notes"`
	Status        ReportStatus    `json:"status"`
	ReportedBy    string          `json:"reportedBy"`
	ReporterEmail string          `json:"reporterEmail,omitempty"`
	ApprovedBy    *string         `json:"approvedBy,omitempty"`
	ApprovalNotes string          `json:"approvalNotes,omitempty"`
	SubmittedAt   *time.Time      `json:"submittedAt,omitempty"`
	ReviewedAt    *time.Time      `json:"reviewedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Submit moves a draft report to submitted. Any other starting state is
// an invalid transition and leaves the report untouched.
func (r *Report) Submit(now time.Time) error {
	if r.Status != StatusDraft {
		return fmt.Errorf("%w: only draft reports can be submitted (status %s)", ErrInvalidState, r.Status)
	}
	r.Status = StatusSubmitted
	r.SubmittedAt = &now
	return nil
}

// Approve moves a submitted report to approved and stamps the reviewer.
// The aggregation trigger is the workflow's responsibility, not the
// report's.
func (r *Report) Approve(reviewerID, notes string, now time.Time) error {
	if r.Status != StatusSubmitted {
		return fmt.Errorf("%w: only submitted reports can be approved (status %s)", ErrInvalidState, r.Status)
	}
	r.Status = StatusApproved
	r.ApprovedBy = &reviewerID
	r.ApprovalNotes = notes
	r.ReviewedAt = &now
	return nil
}

// Reject moves a submitted report to rejected.
func (r *Report) Reject(reviewerID, notes string, now time.Time) error {
	if r.Status != StatusSubmitted {
		return fmt.Errorf("%w: only submitted reports can be rejected (status %s)", ErrInvalidState, r.Status)
	}
	r.Status = StatusRejected
	r.ApprovedBy = &reviewerID
	r.ApprovalNotes = notes
	r.ReviewedAt = &now
	return nil
}

// Entry is the canonical aggregated value for a KPI and exact period.
// (kpi, period_start, period_end) is the upsert key; only the
// aggregation engine writes entries.
type Entry struct {
	ID           string          `json:"id"`
	KPIID        string          `json:"kpiId"`
	PeriodStart  time.Time       `json:"periodStart"`
	PeriodEnd    time.Time       `json:"periodEnd"`
	Value        decimal.Decimal `json:"value"`
	IsCalculated bool            `json:"isCalculated"`
	EnteredBy    *string         `json:"enteredBy,omitempty"`
	Notes        string          `json:"notes"`
	Metadata     EntryMetadata   `json:"metadata"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// ManualAggregationMeta records how an entry was derived from approved
// user reports.
type ManualAggregationMeta struct {
	Source       string            `json:"source"`
	Method       AggregationMethod `json:"aggregation_method"`
	ReportsCount int               `json:"reports_count"`
	ReportedBy   []string          `json:"reported_by"`
}

// SystemAggregationMeta records the source query of a system-computed
// entry.
type SystemAggregationMeta struct {
	Source         string `json:"source"`
	AggregateQuery string `json:"aggregate_query"`
}

// EntryMetadata is a tagged union over the two aggregation paths,
// discriminated on the wire by the "source" field.
type EntryMetadata struct {
	Manual *ManualAggregationMeta
	System *SystemAggregationMeta
}

func (m EntryMetadata) MarshalJSON() ([]byte, error) {
	switch {
	case m.Manual != nil:
		return json.Marshal(m.Manual)
	case m.System != nil:
		return json.Marshal(m.System)
	default:
		return []byte("{}"), nil
	}
}

func (m *EntryMetadata) UnmarshalJSON(data []byte) error {
	var probe struct {
		Source string `json:"source"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.Source {
	case MetaSourceReports:
		m.Manual = &ManualAggregationMeta{}
		return json.Unmarshal(data, m.Manual)
	case MetaSourceSystem:
		m.System = &SystemAggregationMeta{}
		return json.Unmarshal(data, m.System)
	case "":
		return nil
	default:
		return fmt.Errorf("unknown entry metadata source %q", probe.Source)
	}
}

// Action is an append-only audit record of a discrete event feeding an
// aggregate-type KPI. The aggregation engine never mutates actions.
type Action struct {
	ID                string          `json:"id"`
	KPIID             string          `json:"kpiId"`
	ActionType        string          `json:"actionType"`
	ActionData        map[string]any  `json:"actionData,omitempty"`
	UserID            string          `json:"userId"`
	RelatedEntityType string          `json:"relatedEntityType,omitempty"`
	RelatedEntityID   string          `json:"relatedEntityId,omitempty"`
	ContributionValue decimal.Decimal `json:"contributionValue"`
	CreatedAt         time.Time       `json:"createdAt"`
}
