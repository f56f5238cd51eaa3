package kpi

type SourceType string

const (
	SourceAggregate SourceType = "aggregate"
	SourceManual    SourceType = "manual"
)

type PeriodType string

const (
	PeriodDaily     PeriodType = "daily"
	PeriodWeekly    PeriodType = "weekly"
	PeriodMonthly   PeriodType = "monthly"
	PeriodQuarterly PeriodType = "quarterly"
	PeriodYearly    PeriodType = "yearly"
)

type AggregationMethod string

const (
	MethodSum     AggregationMethod = "sum"
	MethodAverage AggregationMethod = "average"
	MethodCount   AggregationMethod = "count"
)

// DefaultMethod is used when a trigger does not name a method.
const DefaultMethod = MethodAverage

type ReportStatus string

const (
	StatusDraft     ReportStatus = "draft"
	StatusSubmitted ReportStatus = "submitted"
	StatusApproved  ReportStatus = "approved"
	StatusRejected  ReportStatus = "rejected"
)

type AssignmentType string

const (
	AssignmentRole AssignmentType = "role"
	AssignmentUser AssignmentType = "user"
)

const (
	MetaSourceReports = "aggregated_reports"
	MetaSourceSystem  = "system_aggregate"
)

type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

func ValidSourceType(s SourceType) bool {
	return s == SourceAggregate || s == SourceManual
}

func ValidPeriodType(p PeriodType) bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodQuarterly, PeriodYearly:
		return true
	}
	return false
}

func ValidAggregationMethod(m AggregationMethod) bool {
	return m == MethodSum || m == MethodAverage || m == MethodCount
}

func ValidReportStatus(s ReportStatus) bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}
