package recalculations

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/recalc"
	"github.com/Ramsey-B/clover/pkg/rollup"
)

// Register registers recalculation routes
func Register(g *echo.Group) {
	g.POST("", Run)
}

// Run re-derives SLA verdicts for every stored leg against the current tier
// configuration, then queues a full rollup so summaries reflect the new
// verdicts.
func Run(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "recalculations_handler.Run")
	defer span.End()

	ctx, service, err := ectoinject.GetContext[*recalc.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get recalculation service")
	}

	resp, err := service.Recalculate(ctx)
	if err != nil {
		return err
	}

	if resp.Updated > 0 {
		if workerCtx, worker, workerErr := ectoinject.GetContext[*rollup.Worker](ctx); workerErr == nil && worker != nil {
			ctx = workerCtx
			worker.Submit(nil)
		}
	}

	ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx)
	if err == nil && emitter != nil {
		_ = emitter.EmitRecalculationCompleted(ctx, resp)
	}

	return c.JSON(http.StatusOK, resp)
}
