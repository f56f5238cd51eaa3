package kpishandler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"kpitracker/internal/domain/kpi"
	"kpitracker/internal/transport/http/api"
	"kpitracker/internal/transport/http/middleware"
	"kpitracker/internal/transport/http/shared"
)

type reportPayload struct {
	AssignmentID  string          `json:"assignmentId"`
	PeriodDate    string          `json:"periodDate"`
	ReportedValue decimal.Decimal `json:"reportedValue"`
	Notes         string          `json:"notes"`
}

// HandleCreateReport opens a draft. An Idempotency-Key header makes the
// call safely retryable: the stored response is replayed on a repeat.
func (h *Handler) HandleCreateReport(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID(r))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	if idemKey != "" {
		stored, found, err := h.Idem.Check(r.Context(), a.UserID, "kpi-reports.create", idemKey, middleware.RequestHash(raw))
		if err != nil {
			if errors.Is(err, middleware.ErrIdempotencyConflict) {
				api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key reused with a different payload", reqID(r))
				return
			}
			writeDomainError(w, r, err)
			return
		}
		if found {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(stored)
			return
		}
	}

	var payload reportPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID(r))
		return
	}
	v := shared.NewValidator()
	v.Required("assignment_id", payload.AssignmentID, "assignment is required")
	periodDate, _ := v.Date("period_date", payload.PeriodDate)
	if v.Reject(w, reqID(r)) {
		return
	}

	report, err := h.Workflow.CreateReport(r.Context(), a, kpi.CreateReportInput{
		AssignmentID:  payload.AssignmentID,
		PeriodDate:    periodDate,
		ReportedValue: payload.ReportedValue,
		Notes:         payload.Notes,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if idemKey != "" {
		envelope := api.Envelope{Success: true, Data: report, RequestID: reqID(r)}
		if body, marshalErr := json.Marshal(envelope); marshalErr == nil {
			_ = h.Idem.Save(r.Context(), a.UserID, "kpi-reports.create", idemKey, middleware.RequestHash(raw), body)
		}
	}
	api.Created(w, report, reqID(r))
}

// HandleListReports returns the caller's own reports; supervisors may
// list anyone's.
func (h *Handler) HandleListReports(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	query := r.URL.Query()
	filter := kpi.ReportFilter{
		KPIID:        query.Get("kpi_id"),
		AssignmentID: query.Get("assignment_id"),
		Status:       kpi.ReportStatus(query.Get("status")),
	}
	if a.CanApproveKPIReports() {
		filter.ReportedBy = query.Get("reported_by")
	} else {
		filter.ReportedBy = a.UserID
	}
	page := shared.ParsePagination(r, 100, 500)
	filter.Page = kpi.Page{Limit: page.Limit, Offset: page.Offset}
	reports, err := h.Store.ListReports(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, reports, reqID(r))
}

func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	report, err := h.Store.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if report.ReportedBy != a.UserID && !a.CanApproveKPIReports() {
		api.Fail(w, http.StatusForbidden, "forbidden", "not your report", reqID(r))
		return
	}
	api.Success(w, report, reqID(r))
}

type draftPayload struct {
	ReportedValue decimal.Decimal `json:"reportedValue"`
	Notes         string          `json:"notes"`
}

func (h *Handler) HandleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	var payload draftPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID(r))
		return
	}
	report, err := h.Workflow.UpdateDraft(r.Context(), actor(r), chi.URLParam(r, "id"), kpi.UpdateDraftInput{
		ReportedValue: payload.ReportedValue,
		Notes:         payload.Notes,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, report, reqID(r))
}

func (h *Handler) HandleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Workflow.DeleteDraft(r.Context(), actor(r), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, map[string]any{"id": id, "deleted": true}, reqID(r))
}

func (h *Handler) HandleSubmitReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.Workflow.SubmitReport(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, report, reqID(r))
}

type reviewPayload struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`
}

func (h *Handler) HandleReviewReport(w http.ResponseWriter, r *http.Request) {
	var payload reviewPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID(r))
		return
	}
	action := strings.ToLower(strings.TrimSpace(payload.Action))
	if action != "approve" && action != "reject" {
		writeDomainError(w, r, kpi.Invalid("action", "must be 'approve' or 'reject'"))
		return
	}

	report, err := h.Workflow.ReviewReport(r.Context(), actor(r), chi.URLParam(r, "id"), kpi.ReviewInput{
		Approve: action == "approve",
		Notes:   payload.Notes,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, report, reqID(r))
}

// HandleApprovalQueue lists reports awaiting review, oldest first by
// default semantics of the store ordering.
func (h *Handler) HandleApprovalQueue(w http.ResponseWriter, r *http.Request) {
	status := kpi.ReportStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = kpi.StatusSubmitted
	}
	if !kpi.ValidReportStatus(status) {
		writeDomainError(w, r, kpi.Invalid("status", "must be one of draft, submitted, approved, rejected"))
		return
	}
	page := shared.ParsePagination(r, 100, 500)
	reports, err := h.Store.ListReports(r.Context(), kpi.ReportFilter{
		KPIID:  r.URL.Query().Get("kpi_id"),
		Status: status,
		Page:   kpi.Page{Limit: page.Limit, Offset: page.Offset},
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	api.Success(w, reports, reqID(r))
}
