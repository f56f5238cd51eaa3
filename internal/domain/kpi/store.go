package kpi

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

var _ StoreAPI = (*Store)(nil)

const uniqueViolation = "23505"

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	value := d.Decimal
	return &value
}

func (s *Store) CreateKPI(ctx context.Context, k *KPI) error {
	err := s.DB.QueryRow(ctx, `
    INSERT INTO kpis (id, name, description, organization_id, branch_id, source_type, period,
                      target_value, minimum_value, maximum_value, unit, aggregate_query, is_active, created_by)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
    RETURNING created_at, updated_at
  `, k.ID, k.Name, k.Description, k.OrganizationID, k.BranchID, k.SourceType, k.Period,
		nullDecimal(k.TargetValue), nullDecimal(k.MinimumValue), nullDecimal(k.MaximumValue),
		k.Unit, k.AggregateQuery, k.IsActive, k.CreatedBy).Scan(&k.CreatedAt, &k.UpdatedAt)
	return translateError(err)
}

func scanKPI(row pgx.Row, k *KPI) error {
	var target, minimum, maximum decimal.NullDecimal
	err := row.Scan(&k.ID, &k.Name, &k.Description, &k.OrganizationID, &k.BranchID,
		&k.SourceType, &k.Period, &target, &minimum, &maximum,
		&k.Unit, &k.AggregateQuery, &k.IsActive, &k.CreatedBy, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return err
	}
	k.TargetValue = decimalPtr(target)
	k.MinimumValue = decimalPtr(minimum)
	k.MaximumValue = decimalPtr(maximum)
	return nil
}

const kpiColumns = `id, name, description, organization_id, branch_id, source_type, period,
           target_value, minimum_value, maximum_value, unit, aggregate_query, is_active, created_by, created_at, updated_at`

func (s *Store) GetKPI(ctx context.Context, id string) (KPI, error) {
	var k KPI
	row := s.DB.QueryRow(ctx, `
    SELECT `+kpiColumns+`
    FROM kpis
    WHERE id = $1
  `, id)
	if err := scanKPI(row, &k); err != nil {
		return KPI{}, translateError(err)
	}
	return k, nil
}

func (s *Store) UpdateKPI(ctx context.Context, k *KPI) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE kpis
    SET name = $2, description = $3, branch_id = $4, source_type = $5, period = $6,
        target_value = $7, minimum_value = $8, maximum_value = $9, unit = $10,
        aggregate_query = $11, is_active = $12, updated_at = now()
    WHERE id = $1
  `, k.ID, k.Name, k.Description, k.BranchID, k.SourceType, k.Period,
		nullDecimal(k.TargetValue), nullDecimal(k.MinimumValue), nullDecimal(k.MaximumValue),
		k.Unit, k.AggregateQuery, k.IsActive)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeactivateKPI(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "UPDATE kpis SET is_active = false, updated_at = now() WHERE id = $1", id)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListKPIs(ctx context.Context, filter KPIFilter) ([]KPI, error) {
	query := `
    SELECT ` + kpiColumns + `
    FROM kpis
    WHERE 1=1
  `
	var args []any
	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		query += argClause(" AND organization_id", len(args))
	}
	if filter.BranchID != "" {
		args = append(args, filter.BranchID)
		query += argClause(" AND branch_id", len(args))
	}
	if filter.SourceType != "" {
		args = append(args, filter.SourceType)
		query += argClause(" AND source_type", len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		query += argClause(" AND is_active", len(args))
	}
	query += " ORDER BY created_at DESC"
	var page string
	args, page = pageClause(args, filter.Page)
	query += page

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kpis []KPI
	for rows.Next() {
		var k KPI
		if err := scanKPI(rows, &k); err != nil {
			return nil, err
		}
		kpis = append(kpis, k)
	}
	return kpis, rows.Err()
}

func (s *Store) KPIHasEntries(ctx context.Context, id string) (bool, error) {
	var count int
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM kpi_entries WHERE kpi_id = $1", id).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) CreateAssignment(ctx context.Context, a *Assignment) error {
	err := s.DB.QueryRow(ctx, `
    INSERT INTO kpi_assignments (id, kpi_id, assignment_type, role_id, user_id, is_active, assigned_by)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
    RETURNING created_at, updated_at
  `, a.ID, a.KPIID, a.Type, a.RoleID, a.UserID, a.IsActive, a.AssignedBy).Scan(&a.CreatedAt, &a.UpdatedAt)
	return translateError(err)
}

const assignmentColumns = `id, kpi_id, assignment_type, role_id, user_id, is_active, assigned_by, created_at, updated_at`

func scanAssignment(row pgx.Row, a *Assignment) error {
	return row.Scan(&a.ID, &a.KPIID, &a.Type, &a.RoleID, &a.UserID, &a.IsActive, &a.AssignedBy, &a.CreatedAt, &a.UpdatedAt)
}

func (s *Store) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	var a Assignment
	row := s.DB.QueryRow(ctx, `
    SELECT `+assignmentColumns+`
    FROM kpi_assignments
    WHERE id = $1
  `, id)
	if err := scanAssignment(row, &a); err != nil {
		return Assignment{}, translateError(err)
	}
	return a, nil
}

func (s *Store) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error) {
	query := `
    SELECT ` + assignmentColumns + `
    FROM kpi_assignments
    WHERE 1=1
  `
	var args []any
	if filter.KPIID != "" {
		args = append(args, filter.KPIID)
		query += argClause(" AND kpi_id", len(args))
	}
	if filter.RoleID != "" {
		args = append(args, filter.RoleID)
		query += argClause(" AND role_id", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += argClause(" AND user_id", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += argClause(" AND assignment_type", len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		query += argClause(" AND is_active", len(args))
	}
	query += " ORDER BY created_at DESC"
	var page string
	args, page = pageClause(args, filter.Page)
	query += page

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []Assignment
	for rows.Next() {
		var a Assignment
		if err := scanAssignment(rows, &a); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

func (s *Store) DeactivateAssignment(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "UPDATE kpi_assignments SET is_active = false, updated_at = now() WHERE id = $1", id)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CreateReport(ctx context.Context, r *Report) error {
	err := s.DB.QueryRow(ctx, `
    INSERT INTO kpi_reports (id, kpi_id, assignment_id, period_start, period_end, reported_value,
                             notes, status, reported_by)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    RETURNING created_at, updated_at
  `, r.ID, r.KPIID, r.AssignmentID, r.PeriodStart, r.PeriodEnd, r.ReportedValue,
		r.Notes, r.Status, r.ReportedBy).Scan(&r.CreatedAt, &r.UpdatedAt)
	return translateError(err)
}

const reportColumns = `r.id, r.kpi_id, r.assignment_id, r.period_start, r.period_end, r.reported_value,
           r.notes, r.status, r.reported_by, u.email, r.approved_by, r.approval_notes,
           r.submitted_at, r.reviewed_at, r.created_at, r.updated_at`

func scanReport(row pgx.Row, r *Report) error {
	return row.Scan(&r.ID, &r.KPIID, &r.AssignmentID, &r.PeriodStart, &r.PeriodEnd, &r.ReportedValue,
		&r.Notes, &r.Status, &r.ReportedBy, &r.ReporterEmail, &r.ApprovedBy, &r.ApprovalNotes,
		&r.SubmittedAt, &r.ReviewedAt, &r.CreatedAt, &r.UpdatedAt)
}

func (s *Store) GetReport(ctx context.Context, id string) (Report, error) {
	var r Report
	row := s.DB.QueryRow(ctx, `
    SELECT `+reportColumns+`
    FROM kpi_reports r
    JOIN users u ON r.reported_by = u.id
    WHERE r.id = $1
  `, id)
	if err := scanReport(row, &r); err != nil {
		return Report{}, translateError(err)
	}
	return r, nil
}

// UpdateReport persists the mutable fields of a report: the value/notes
// of a draft, or the status stamps written by the workflow transitions.
func (s *Store) UpdateReport(ctx context.Context, r *Report) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE kpi_reports
    SET period_start = $2, period_end = $3, reported_value = $4, notes = $5, status = $6,
        approved_by = $7, approval_notes = $8, submitted_at = $9, reviewed_at = $10, updated_at = now()
    WHERE id = $1
  `, r.ID, r.PeriodStart, r.PeriodEnd, r.ReportedValue, r.Notes, r.Status,
		r.ApprovedBy, r.ApprovalNotes, r.SubmittedAt, r.ReviewedAt)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteReport(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM kpi_reports WHERE id = $1", id)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListReports(ctx context.Context, filter ReportFilter) ([]Report, error) {
	query := `
    SELECT ` + reportColumns + `
    FROM kpi_reports r
    JOIN users u ON r.reported_by = u.id
    WHERE 1=1
  `
	var args []any
	if filter.KPIID != "" {
		args = append(args, filter.KPIID)
		query += argClause(" AND r.kpi_id", len(args))
	}
	if filter.AssignmentID != "" {
		args = append(args, filter.AssignmentID)
		query += argClause(" AND r.assignment_id", len(args))
	}
	if filter.ReportedBy != "" {
		args = append(args, filter.ReportedBy)
		query += argClause(" AND r.reported_by", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += argClause(" AND r.status", len(args))
	}
	query += " ORDER BY r.period_start DESC, r.created_at DESC"
	var page string
	args, page = pageClause(args, filter.Page)
	query += page

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		if err := scanReport(rows, &r); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *Store) ReportExists(ctx context.Context, assignmentID string, periodStart, periodEnd time.Time) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM kpi_reports
    WHERE assignment_id = $1 AND period_start = $2 AND period_end = $3
  `, assignmentID, periodStart, periodEnd).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ApprovedReports(ctx context.Context, kpiID string, periodStart, periodEnd time.Time) ([]Report, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+reportColumns+`
    FROM kpi_reports r
    JOIN users u ON r.reported_by = u.id
    WHERE r.kpi_id = $1 AND r.status = $2 AND r.period_start = $3 AND r.period_end = $4
    ORDER BY r.created_at
  `, kpiID, StatusApproved, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var r Report
		if err := scanReport(rows, &r); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// UpsertEntry writes the canonical entry for (kpi, period). The unique
// key on (kpi_id, period_start, period_end) is the only coordination
// primitive between concurrent aggregation triggers.
func (s *Store) UpsertEntry(ctx context.Context, e *Entry) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}
	err = s.DB.QueryRow(ctx, `
    INSERT INTO kpi_entries (id, kpi_id, period_start, period_end, value, is_calculated, entered_by, notes, metadata)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    ON CONFLICT (kpi_id, period_start, period_end) DO UPDATE
    SET value = EXCLUDED.value, is_calculated = EXCLUDED.is_calculated, entered_by = EXCLUDED.entered_by,
        notes = EXCLUDED.notes, metadata = EXCLUDED.metadata, updated_at = now()
    RETURNING id, created_at, updated_at
  `, e.ID, e.KPIID, e.PeriodStart, e.PeriodEnd, e.Value, e.IsCalculated, e.EnteredBy, e.Notes, metadata).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	return translateError(err)
}

const entryColumns = `id, kpi_id, period_start, period_end, value, is_calculated, entered_by, notes, metadata, created_at, updated_at`

func scanEntry(row pgx.Row, e *Entry) error {
	var metadata []byte
	err := row.Scan(&e.ID, &e.KPIID, &e.PeriodStart, &e.PeriodEnd, &e.Value, &e.IsCalculated,
		&e.EnteredBy, &e.Notes, &metadata, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (Entry, error) {
	var e Entry
	row := s.DB.QueryRow(ctx, `
    SELECT `+entryColumns+`
    FROM kpi_entries
    WHERE id = $1
  `, id)
	if err := scanEntry(row, &e); err != nil {
		return Entry{}, translateError(err)
	}
	return e, nil
}

func (s *Store) EntryForPeriod(ctx context.Context, kpiID string, periodStart, periodEnd time.Time) (Entry, bool, error) {
	var e Entry
	row := s.DB.QueryRow(ctx, `
    SELECT `+entryColumns+`
    FROM kpi_entries
    WHERE kpi_id = $1 AND period_start = $2 AND period_end = $3
  `, kpiID, periodStart, periodEnd)
	if err := scanEntry(row, &e); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	return e, true, nil
}

func (s *Store) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	query := `
    SELECT e.id, e.kpi_id, e.period_start, e.period_end, e.value, e.is_calculated,
           e.entered_by, e.notes, e.metadata, e.created_at, e.updated_at
    FROM kpi_entries e
    JOIN kpis k ON e.kpi_id = k.id
    WHERE 1=1
  `
	var args []any
	if filter.KPIID != "" {
		args = append(args, filter.KPIID)
		query += argClause(" AND e.kpi_id", len(args))
	}
	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		query += argClause(" AND k.organization_id", len(args))
	}
	if filter.BranchID != "" {
		args = append(args, filter.BranchID)
		query += argClause(" AND k.branch_id", len(args))
	}
	query += " ORDER BY e.period_start DESC, e.created_at DESC"
	var page string
	args, page = pageClause(args, filter.Page)
	query += page

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := scanEntry(rows, &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) EntriesForKPI(ctx context.Context, kpiID string) ([]Entry, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+entryColumns+`
    FROM kpi_entries
    WHERE kpi_id = $1
    ORDER BY period_start
  `, kpiID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := scanEntry(rows, &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CreateAction(ctx context.Context, a *Action) error {
	data, err := json.Marshal(a.ActionData)
	if err != nil {
		return err
	}
	err = s.DB.QueryRow(ctx, `
    INSERT INTO kpi_actions (id, kpi_id, action_type, action_data, user_id, related_entity_type, related_entity_id, contribution_value)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    RETURNING created_at
  `, a.ID, a.KPIID, a.ActionType, data, a.UserID, a.RelatedEntityType, a.RelatedEntityID, a.ContributionValue).
		Scan(&a.CreatedAt)
	return translateError(err)
}

func (s *Store) ListActions(ctx context.Context, filter ActionFilter) ([]Action, error) {
	query := `
    SELECT id, kpi_id, action_type, action_data, user_id, related_entity_type, related_entity_id, contribution_value, created_at
    FROM kpi_actions
    WHERE 1=1
  `
	var args []any
	if filter.KPIID != "" {
		args = append(args, filter.KPIID)
		query += argClause(" AND kpi_id", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += argClause(" AND user_id", len(args))
	}
	if filter.ActionType != "" {
		args = append(args, filter.ActionType)
		query += argClause(" AND action_type", len(args))
	}
	query += " ORDER BY created_at DESC"
	var page string
	args, page = pageClause(args, filter.Page)
	query += page

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var a Action
		var data []byte
		if err := rows.Scan(&a.ID, &a.KPIID, &a.ActionType, &data, &a.UserID,
			&a.RelatedEntityType, &a.RelatedEntityID, &a.ContributionValue, &a.CreatedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &a.ActionData); err != nil {
				return nil, err
			}
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (s *Store) CountActions(ctx context.Context, kpiID string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM kpi_actions WHERE kpi_id = $1", kpiID).Scan(&count)
	return count, err
}

// RunAggregateQuery executes a KPI's stored aggregate query. The query
// must return a single numeric value and may reference $1/$2 for the
// period bounds. NULL aggregates read as zero.
func (s *Store) RunAggregateQuery(ctx context.Context, query string, periodStart, periodEnd time.Time) (decimal.Decimal, error) {
	var value decimal.NullDecimal
	if err := s.DB.QueryRow(ctx, query, periodStart, periodEnd).Scan(&value); err != nil {
		return decimal.Decimal{}, err
	}
	if !value.Valid {
		return decimal.Zero, nil
	}
	return value.Decimal, nil
}
