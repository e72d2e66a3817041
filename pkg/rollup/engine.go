// Package rollup recomputes the daily summary relations from delivery legs.
package rollup

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/clover/internal/repositories/summary"
)

// SummaryStore recomputes one date for one grouping dimension.
type SummaryStore interface {
	Recompute(ctx context.Context, date time.Time, dim summary.Dimension) error
}

// DateLister enumerates every date with at least one stored leg.
type DateLister interface {
	ListActiveDates(ctx context.Context) ([]time.Time, error)
}

// Engine drives summary recomputation. One run covers an explicit set of dates,
// or all history when no dates are given. Runs are idempotent: recomputing an
// unchanged date reproduces the same rows.
type Engine struct {
	summaries SummaryStore
	legs      DateLister
	logger    ectologger.Logger
}

// NewEngine creates a new rollup engine
func NewEngine(summaries SummaryStore, legs DateLister, logger ectologger.Logger) *Engine {
	return &Engine{
		summaries: summaries,
		legs:      legs,
		logger:    logger,
	}
}

// Run recomputes every summary dimension for the given dates. A failing date is
// logged and skipped so one bad date cannot stall the rest; the first error is
// returned after all dates have been attempted.
func (e *Engine) Run(ctx context.Context, dates []time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "rollup.Engine.Run")
	defer span.End()

	if len(dates) == 0 {
		var err error
		dates, err = e.legs.ListActiveDates(ctx)
		if err != nil {
			return err
		}
	}

	var firstErr error
	for _, date := range dates {
		day := date.UTC().Truncate(24 * time.Hour)
		for _, dim := range summary.Dimensions {
			if err := e.summaries.Recompute(ctx, day, dim); err != nil {
				e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
					"date":      day.Format("2006-01-02"),
					"dimension": string(dim),
				}).Error("Failed to recompute summary")
				if firstErr == nil {
					firstErr = err
				}
				break
			}
		}
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{"dates": len(dates)}).Info("Completed rollup run")
	return firstErr
}
