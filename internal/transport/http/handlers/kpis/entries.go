package kpishandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kpitracker/internal/domain/kpi"
	"kpitracker/internal/transport/http/api"
	"kpitracker/internal/transport/http/shared"
)

type triggerPayload struct {
	KPIID       string                `json:"kpiId"`
	PeriodStart string                `json:"periodStart"`
	PeriodEnd   string                `json:"periodEnd"`
	Method      kpi.AggregationMethod `json:"method"`
}

// HandleTriggerAggregation runs the manual aggregation path for one KPI
// and period, synchronously, and returns the trigger result.
func (h *Handler) HandleTriggerAggregation(w http.ResponseWriter, r *http.Request) {
	var payload triggerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID(r))
		return
	}
	v := shared.NewValidator()
	v.Required("kpi_id", payload.KPIID, "kpi is required")
	start, _ := v.Date("period_start", payload.PeriodStart)
	end, _ := v.Date("period_end", payload.PeriodEnd)
	v.DateOrder("period_start", start, "period_end", end)
	if v.Reject(w, reqID(r)) {
		return
	}

	result, err := h.Engine.AggregateReports(r.Context(), kpi.TriggerInput{
		KPIID:       payload.KPIID,
		PeriodStart: start,
		PeriodEnd:   end,
		Method:      payload.Method,
	})
	if h.Metrics != nil {
		h.Metrics.RecordAggregation(err)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, result, reqID(r))
}

type systemTriggerPayload struct {
	KPIID       string           `json:"kpiId"`
	PeriodStart string           `json:"periodStart"`
	PeriodEnd   string           `json:"periodEnd"`
	Value       *decimal.Decimal `json:"value"`
}

// HandleTriggerSystem records a value for a system aggregate KPI. With a
// value in the payload the caller's number is merged as-is; without one
// the KPI's stored aggregate query is run to compute it.
func (h *Handler) HandleTriggerSystem(w http.ResponseWriter, r *http.Request) {
	var payload systemTriggerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID(r))
		return
	}
	v := shared.NewValidator()
	v.Required("kpi_id", payload.KPIID, "kpi is required")
	start, _ := v.Date("period_start", payload.PeriodStart)
	end, _ := v.Date("period_end", payload.PeriodEnd)
	v.DateOrder("period_start", start, "period_end", end)
	if v.Reject(w, reqID(r)) {
		return
	}

	var result kpi.TriggerResult
	var err error
	if payload.Value != nil {
		result, err = h.Engine.RecordSystemValue(r.Context(), payload.KPIID, start, end, *payload.Value)
	} else {
		result, err = h.Engine.ComputeSystemValue(r.Context(), payload.KPIID, start, end)
	}
	if h.Metrics != nil {
		h.Metrics.RecordAggregation(err)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, result, reqID(r))
}

// HandleReconcile sweeps every active KPI for the period containing the
// given date (default today) and returns the batch summary.
func (h *Handler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	ref := time.Now().UTC()
	var payload struct {
		Date   string                `json:"date"`
		Method kpi.AggregationMethod `json:"aggregationMethod"`
	}
	if r.Body != nil {
		// Body is optional; an empty or absent body means "today".
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}
	if payload.Date != "" {
		parsed, err := shared.ParseDate(payload.Date)
		if err != nil {
			writeDomainError(w, r, kpi.Invalid("date", "must be a valid date in YYYY-MM-DD format"))
			return
		}
		ref = parsed
	}
	if payload.Method != "" && !kpi.ValidAggregationMethod(payload.Method) {
		writeDomainError(w, r, kpi.Invalid("aggregation_method", "must be one of sum, average, count"))
		return
	}

	summary, err := h.Reconciler.RunReconciliation(r.Context(), ref, payload.Method)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, summary, reqID(r))
}

func (h *Handler) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := shared.ParsePagination(r, 100, 500)
	entries, err := h.Store.ListEntries(r.Context(), kpi.EntryFilter{
		KPIID:          query.Get("kpi_id"),
		OrganizationID: query.Get("organization_id"),
		BranchID:       query.Get("branch_id"),
		Page:           kpi.Page{Limit: page.Limit, Offset: page.Offset},
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, entries, reqID(r))
}

func (h *Handler) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Store.GetEntry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, entry, reqID(r))
}

type actionPayload struct {
	KPIID             string          `json:"kpiId"`
	ActionType        string          `json:"actionType"`
	ActionData        map[string]any  `json:"actionData"`
	RelatedEntityType string          `json:"relatedEntityType"`
	RelatedEntityID   string          `json:"relatedEntityId"`
	ContributionValue decimal.Decimal `json:"contributionValue"`
}

// HandleCreateAction appends an audit action feeding an aggregate KPI.
// Actions are immutable once written.
func (h *Handler) HandleCreateAction(w http.ResponseWriter, r *http.Request) {
	var payload actionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID(r))
		return
	}
	v := shared.NewValidator()
	v.Required("kpi_id", payload.KPIID, "kpi is required")
	v.Required("action_type", payload.ActionType, "action type is required")
	if v.Reject(w, reqID(r)) {
		return
	}
	if _, err := h.Store.GetKPI(r.Context(), payload.KPIID); err != nil {
		writeDomainError(w, r, err)
		return
	}

	action := kpi.Action{
		ID:                uuid.NewString(),
		KPIID:             payload.KPIID,
		ActionType:        payload.ActionType,
		ActionData:        payload.ActionData,
		UserID:            actor(r).UserID,
		RelatedEntityType: payload.RelatedEntityType,
		RelatedEntityID:   payload.RelatedEntityID,
		ContributionValue: payload.ContributionValue,
	}
	if err := h.Store.CreateAction(r.Context(), &action); err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Created(w, action, reqID(r))
}

func (h *Handler) HandleListActions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := shared.ParsePagination(r, 100, 500)
	actions, err := h.Store.ListActions(r.Context(), kpi.ActionFilter{
		KPIID:      query.Get("kpi_id"),
		UserID:     query.Get("user_id"),
		ActionType: query.Get("action_type"),
		Page:       kpi.Page{Limit: page.Limit, Offset: page.Offset},
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, actions, reqID(r))
}
