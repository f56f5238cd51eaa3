package kpishandler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"kpitracker/internal/domain/directory"
	"kpitracker/internal/domain/kpi"
	"kpitracker/internal/platform/metrics"
	"kpitracker/internal/requestctx"
	"kpitracker/internal/transport/http/api"
	"kpitracker/internal/transport/http/middleware"
)

// Reconciler runs a full aggregation sweep. The jobs service implements
// it; tests substitute a fake.
type Reconciler interface {
	RunReconciliation(ctx context.Context, ref time.Time, method kpi.AggregationMethod) (kpi.BatchSummary, error)
}

type Handler struct {
	Store      kpi.StoreAPI
	Users      kpi.UserDirectory
	Workflow   *kpi.Workflow
	Engine     *kpi.Engine
	Analyzer   *kpi.Analyzer
	Resolver   *kpi.Resolver
	Reconciler Reconciler
	Metrics    *metrics.Collector
	Idem       *middleware.IdempotencyStore
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/kpis", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.HandleListKPIs)
		r.With(middleware.RequireSupervisor).Post("/", h.HandleCreateKPI)
		r.Get("/mine", h.HandleMyKPIs)
		r.Get("/{id}", h.HandleGetKPI)
		r.With(middleware.RequireSupervisor).Put("/{id}", h.HandleUpdateKPI)
		r.With(middleware.RequireSupervisor).Delete("/{id}", h.HandleDeactivateKPI)
		r.Get("/{id}/stats", h.HandleKPIStats)
		r.Get("/{id}/trend", h.HandleTrend)
		r.Get("/{id}/trend/export", h.HandleTrendExport)
		r.Get("/{id}/responsible", h.HandleResponsibleUsers)
	})

	r.Route("/kpi-assignments", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.HandleListAssignments)
		r.With(middleware.RequireSupervisor).Post("/", h.HandleCreateAssignment)
		r.Get("/{id}", h.HandleGetAssignment)
		r.With(middleware.RequireSupervisor).Delete("/{id}", h.HandleDeactivateAssignment)
	})

	r.Route("/kpi-reports", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.HandleListReports)
		r.Post("/", h.HandleCreateReport)
		r.Get("/{id}", h.HandleGetReport)
		r.Put("/{id}", h.HandleUpdateDraft)
		r.Delete("/{id}", h.HandleDeleteDraft)
		r.Post("/{id}/submit", h.HandleSubmitReport)
		r.With(middleware.RequireSupervisor).Post("/{id}/review", h.HandleReviewReport)
	})

	r.With(middleware.RequireAuth, middleware.RequireSupervisor).
		Get("/kpi-approvals", h.HandleApprovalQueue)

	r.Route("/kpi-actions", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.HandleListActions)
		r.Post("/", h.HandleCreateAction)
	})

	r.Route("/kpi-entries", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.HandleListEntries)
		r.Get("/{id}", h.HandleGetEntry)
		r.With(middleware.RequireSupervisor).Post("/aggregate", h.HandleTriggerAggregation)
		r.With(middleware.RequireSupervisor).Post("/system", h.HandleTriggerSystem)
		r.With(middleware.RequireSupervisor).Post("/reconcile", h.HandleReconcile)
	})
}

func reqID(r *http.Request) string {
	return requestctx.GetRequestID(r.Context())
}

func actor(r *http.Request) directory.Actor {
	a, _ := middleware.GetActor(r.Context())
	return a
}

// writeDomainError maps domain sentinels onto the HTTP envelope.
// Permission failures and validation failures are distinct codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := reqID(r)
	var verr *kpi.ValidationError
	switch {
	case errors.As(err, &verr):
		api.FailWithDetails(w, http.StatusBadRequest, "validation_error", verr.Error(),
			map[string]any{"field": verr.Field, "reason": verr.Reason}, requestID)
	case errors.Is(err, kpi.ErrValidation):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), requestID)
	case errors.Is(err, kpi.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "resource not found", requestID)
	case errors.Is(err, kpi.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), requestID)
	case errors.Is(err, kpi.ErrInvalidState):
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), requestID)
	case errors.Is(err, kpi.ErrDuplicate):
		api.Fail(w, http.StatusConflict, "duplicate", err.Error(), requestID)
	default:
		api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", requestID)
	}
}
