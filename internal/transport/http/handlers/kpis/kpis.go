package kpishandler

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kpitracker/internal/domain/kpi"
	"kpitracker/internal/transport/http/api"
	"kpitracker/internal/transport/http/shared"
)

type kpiPayload struct {
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	OrganizationID string           `json:"organizationId"`
	BranchID       *string          `json:"branchId"`
	SourceType     kpi.SourceType   `json:"sourceType"`
	Period         kpi.PeriodType   `json:"period"`
	TargetValue    *decimal.Decimal `json:"targetValue"`
	MinimumValue   *decimal.Decimal `json:"minimumValue"`
	MaximumValue   *decimal.Decimal `json:"maximumValue"`
	Unit           string           `json:"unit"`
	AggregateQuery string           `json:"aggregateQuery"`
}

func (h *Handler) HandleCreateKPI(w http.ResponseWriter, r *http.Request) {
	var payload kpiPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID(r))
		return
	}

	creator := actor(r).UserID
	k := kpi.KPI{
		ID:             uuid.NewString(),
		Name:           payload.Name,
		Description:    payload.Description,
		OrganizationID: payload.OrganizationID,
		BranchID:       payload.BranchID,
		SourceType:     payload.SourceType,
		Period:         payload.Period,
		TargetValue:    payload.TargetValue,
		MinimumValue:   payload.MinimumValue,
		MaximumValue:   payload.MaximumValue,
		Unit:           payload.Unit,
		AggregateQuery: payload.AggregateQuery,
		IsActive:       true,
		CreatedBy:      &creator,
	}
	if k.OrganizationID == "" {
		writeDomainError(w, r, kpi.Invalid("organization_id", "organization is required"))
		return
	}
	if err := k.Validate(); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.Store.CreateKPI(r.Context(), &k); err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Created(w, k, reqID(r))
}

func (h *Handler) HandleListKPIs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := kpi.KPIFilter{
		OrganizationID: query.Get("organization_id"),
		BranchID:       query.Get("branch_id"),
		SourceType:     kpi.SourceType(query.Get("source_type")),
	}
	if raw := query.Get("is_active"); raw != "" {
		active := raw == "true"
		filter.IsActive = &active
	}
	page := shared.ParsePagination(r, 100, 500)
	filter.Page = kpi.Page{Limit: page.Limit, Offset: page.Offset}
	kpis, err := h.Store.ListKPIs(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, kpis, reqID(r))
}

func (h *Handler) HandleGetKPI(w http.ResponseWriter, r *http.Request) {
	k, err := h.Store.GetKPI(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, k, reqID(r))
}

func (h *Handler) HandleUpdateKPI(w http.ResponseWriter, r *http.Request) {
	k, err := h.Store.GetKPI(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var payload kpiPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID(r))
		return
	}
	k.Name = payload.Name
	k.Description = payload.Description
	k.BranchID = payload.BranchID
	k.SourceType = payload.SourceType
	k.Period = payload.Period
	k.TargetValue = payload.TargetValue
	k.MinimumValue = payload.MinimumValue
	k.MaximumValue = payload.MaximumValue
	k.Unit = payload.Unit
	k.AggregateQuery = payload.AggregateQuery

	if err := k.Validate(); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.Store.UpdateKPI(r.Context(), &k); err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, k, reqID(r))
}

// HandleDeactivateKPI soft-deletes: entries and report history stay
// queryable, the KPI just stops accepting new work.
func (h *Handler) HandleDeactivateKPI(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Store.DeactivateKPI(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, map[string]any{"id": id, "isActive": false}, reqID(r))
}

func (h *Handler) HandleKPIStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	k, err := h.Store.GetKPI(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	stats, err := h.Analyzer.Stats(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	actionCount, err := h.Store.CountActions(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var achievement *float64
	if k.TargetValue != nil && !k.TargetValue.IsZero() && stats.Count > 0 {
		pct := math.Round(stats.Latest/k.TargetValue.InexactFloat64()*100*100) / 100
		achievement = &pct
	}
	api.Success(w, map[string]any{
		"kpiId":                    k.ID,
		"kpiName":                  k.Name,
		"unit":                     k.Unit,
		"target":                   k.TargetValue,
		"actionCount":              actionCount,
		"targetAchievementPercent": achievement,
		"stats":                    stats,
	}, reqID(r))
}

func (h *Handler) HandleTrend(w http.ResponseWriter, r *http.Request) {
	periods := kpi.DefaultTrendPeriods
	if raw := r.URL.Query().Get("periods"); raw != "" {
		// periods=0 asks for the full history.
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeDomainError(w, r, kpi.Invalid("periods", "must be a non-negative integer"))
			return
		}
		periods = parsed
	}
	report, err := h.Analyzer.Analyze(r.Context(), chi.URLParam(r, "id"), periods)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, report, reqID(r))
}

func (h *Handler) HandleTrendExport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Analyzer.Analyze(r.Context(), chi.URLParam(r, "id"), 0)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	pdf, err := kpi.RenderTrendPDF(report)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "kpi-trend-"+report.KPIID+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// HandleMyKPIs lists the KPIs the caller is responsible for, via role
// or direct assignment, with the latest entry for each.
func (h *Handler) HandleMyKPIs(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	active := true

	byRole, err := h.Store.ListAssignments(r.Context(), kpi.AssignmentFilter{RoleID: a.RoleID, IsActive: &active})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	byUser, err := h.Store.ListAssignments(r.Context(), kpi.AssignmentFilter{UserID: a.UserID, IsActive: &active})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	type assignedKPI struct {
		KPI        kpi.KPI        `json:"kpi"`
		Assignment kpi.Assignment `json:"assignment"`
		Latest     *kpi.Entry     `json:"latestEntry,omitempty"`
	}
	seen := map[string]bool{}
	var out []assignedKPI
	for _, asgn := range append(byRole, byUser...) {
		if seen[asgn.KPIID] {
			continue
		}
		seen[asgn.KPIID] = true

		k, err := h.Store.GetKPI(r.Context(), asgn.KPIID)
		if err != nil || !k.IsActive {
			continue
		}
		entries, err := h.Store.EntriesForKPI(r.Context(), k.ID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		item := assignedKPI{KPI: k, Assignment: asgn}
		if len(entries) > 0 {
			latest := entries[len(entries)-1]
			item.Latest = &latest
		}
		out = append(out, item)
	}
	api.Success(w, out, reqID(r))
}

func (h *Handler) HandleResponsibleUsers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Store.GetKPI(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	users, err := h.Resolver.ResponsibleUsers(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, users, reqID(r))
}

type assignmentPayload struct {
	KPIID  string             `json:"kpiId"`
	Type   kpi.AssignmentType `json:"assignmentType"`
	RoleID *string            `json:"roleId"`
	UserID *string            `json:"userId"`
}

func (h *Handler) HandleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	var payload assignmentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID(r))
		return
	}

	if _, err := h.Store.GetKPI(r.Context(), payload.KPIID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	assigner := actor(r).UserID
	asgn := kpi.Assignment{
		ID:         uuid.NewString(),
		KPIID:      payload.KPIID,
		Type:       payload.Type,
		RoleID:     payload.RoleID,
		UserID:     payload.UserID,
		IsActive:   true,
		AssignedBy: &assigner,
	}
	if err := kpi.ValidateAssignment(&asgn); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.Store.CreateAssignment(r.Context(), &asgn); err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Created(w, asgn, reqID(r))
}

func (h *Handler) HandleListAssignments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := kpi.AssignmentFilter{
		KPIID:  query.Get("kpi_id"),
		RoleID: query.Get("role_id"),
		UserID: query.Get("user_id"),
		Type:   kpi.AssignmentType(query.Get("assignment_type")),
	}
	if raw := query.Get("is_active"); raw != "" {
		active := raw == "true"
		filter.IsActive = &active
	}
	page := shared.ParsePagination(r, 100, 500)
	filter.Page = kpi.Page{Limit: page.Limit, Offset: page.Offset}
	assignments, err := h.Store.ListAssignments(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, assignments, reqID(r))
}

func (h *Handler) HandleGetAssignment(w http.ResponseWriter, r *http.Request) {
	asgn, err := h.Store.GetAssignment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, asgn, reqID(r))
}

func (h *Handler) HandleDeactivateAssignment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Store.DeactivateAssignment(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, map[string]any{"id": id, "isActive": false}, reqID(r))
}
