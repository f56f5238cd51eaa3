package kpi

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// EntryUpdated is emitted after every successful entry upsert, whether
// the row was created or overwritten.
type EntryUpdated struct {
	KPIID       string          `json:"kpiId"`
	PeriodStart time.Time       `json:"periodStart"`
	PeriodEnd   time.Time       `json:"periodEnd"`
	Value       decimal.Decimal `json:"value"`
}

type EventPublisher interface {
	EntryUpdated(ctx context.Context, ev EntryUpdated)
}

// PublisherFunc adapts a plain function into an EventPublisher.
type PublisherFunc func(ctx context.Context, ev EntryUpdated)

func (f PublisherFunc) EntryUpdated(ctx context.Context, ev EntryUpdated) {
	f(ctx, ev)
}

// LogPublisher writes entry events to the structured log. It is the
// default publisher when no external consumer is wired in.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p *LogPublisher) EntryUpdated(ctx context.Context, ev EntryUpdated) {
	p.Logger.InfoContext(ctx, "kpi entry updated",
		"kpi_id", ev.KPIID,
		"period_start", ev.PeriodStart.Format(time.DateOnly),
		"period_end", ev.PeriodEnd.Format(time.DateOnly),
		"value", ev.Value.String(),
	)
}
