package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"kpitracker/internal/domain/kpi"
	"kpitracker/internal/platform/config"
)

const (
	JobAggregation    = "kpi_aggregation"
	JobReconciliation = "kpi_reconciliation"
)

// maxAttempts bounds the retries of a failed aggregation trigger. The
// reconciliation sweep catches anything that exhausts its retries.
const maxAttempts = 3

const retryBackoff = 30 * time.Second

// Service runs aggregation work off the request path: approval triggers
// land on an in-process queue, and a ticker sweeps every KPI on the
// reconcile interval. It implements kpi.AggregationScheduler.
type Service struct {
	DB     *pgxpool.Pool
	Cfg    config.Config
	Engine *kpi.Engine
	queue  chan task
}

type task struct {
	Type    string
	Attempt int
	Detail  map[string]any
	Run     func(context.Context) (any, error)
}

func New(db *pgxpool.Pool, cfg config.Config, engine *kpi.Engine) *Service {
	return &Service{
		DB:     db,
		Cfg:    cfg,
		Engine: engine,
		queue:  make(chan task, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Cfg.ReconcileInterval > 0 {
		go s.scheduleReconciliation(ctx, s.Cfg.ReconcileInterval)
	}
}

// ScheduleAggregation queues the trigger, or runs it inline when the
// service is configured for synchronous aggregation. Failures are
// logged and retried; they never reach the caller.
func (s *Service) ScheduleAggregation(ctx context.Context, in kpi.TriggerInput) {
	t := task{
		Type:    JobAggregation,
		Attempt: 1,
		Detail: map[string]any{
			"kpiId":       in.KPIID,
			"periodStart": in.PeriodStart.Format(time.DateOnly),
			"periodEnd":   in.PeriodEnd.Format(time.DateOnly),
		},
		Run: func(ctx context.Context) (any, error) {
			return s.Engine.AggregateReports(ctx, in)
		},
	}
	if s.Cfg.AggregationSync {
		if _, err := s.runTask(ctx, t); err != nil {
			slog.Warn("synchronous aggregation failed", "kpiId", in.KPIID, "err", err)
		}
		return
	}
	s.enqueue(t)
}

// RunReconciliation executes a full sweep immediately and returns its
// summary. Used by the admin endpoint; the ticker uses the same path.
func (s *Service) RunReconciliation(ctx context.Context, ref time.Time, method kpi.AggregationMethod) (kpi.BatchSummary, error) {
	result, err := s.runTask(ctx, task{
		Type:    JobReconciliation,
		Attempt: 1,
		Detail:  map[string]any{"referenceDate": ref.Format(time.DateOnly)},
		Run: func(ctx context.Context) (any, error) {
			return s.Engine.ReconcileAll(ctx, ref, method)
		},
	})
	summary, _ := result.(kpi.BatchSummary)
	return summary, err
}

func (s *Service) enqueue(t task) {
	select {
	case s.queue <- t:
	default:
		slog.Warn("job queue full, dropping task", "jobType", t.Type)
	}
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.queue:
			if _, err := s.runTask(ctx, t); err != nil {
				slog.Warn("job run failed", "jobType", t.Type, "attempt", t.Attempt, "err", err)
				s.retry(ctx, t)
			}
		}
	}
}

func (s *Service) retry(ctx context.Context, t task) {
	if t.Attempt >= maxAttempts {
		slog.Error("job exhausted retries", "jobType", t.Type, "attempts", t.Attempt)
		return
	}
	t.Attempt++
	retryIn := time.Duration(t.Attempt-1) * retryBackoff
	timer := time.AfterFunc(retryIn, func() {
		s.enqueue(t)
	})
	go func() {
		<-ctx.Done()
		timer.Stop()
	}()
}

// runTask records the run in job_runs around the work itself. Failures
// to record never fail the job.
func (s *Service) runTask(ctx context.Context, t task) (any, error) {
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (job_type, attempt, status)
    VALUES ($1,$2,$3)
    RETURNING id
  `, t.Type, t.Attempt, "running").Scan(&runID); err != nil {
		slog.Warn("job run insert failed", "err", err)
	}

	details, err := t.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}

	payload := map[string]any{"result": details}
	for k, v := range t.Detail {
		payload[k] = v
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	detailsJSON, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) scheduleReconciliation(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			summary, err := s.RunReconciliation(ctx, time.Now().UTC(), kpi.DefaultMethod)
			if err != nil {
				slog.Warn("scheduled reconciliation failed", "err", err)
				continue
			}
			slog.Info("reconciliation sweep finished",
				"processed", summary.Processed,
				"created", summary.Created,
				"updated", summary.Updated,
				"skipped", summary.Skipped,
				"errors", len(summary.Errors),
			)
		}
	}
}
