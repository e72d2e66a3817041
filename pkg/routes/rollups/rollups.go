package rollups

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/rollup"
	"github.com/Ramsey-B/clover/pkg/rowparse"
)

// Register registers rollup routes
func Register(g *echo.Group) {
	g.POST("", Run)
	g.GET("/status", Status)
}

// Run recomputes summaries synchronously. With no dates in the body the whole
// history is recomputed; this is the manual repair path when background jobs
// were dropped or summaries look stale.
func Run(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "rollups_handler.Run")
	defer span.End()

	var req models.RollupRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	dates := make([]time.Time, 0, len(req.Dates))
	for _, raw := range req.Dates {
		date, ok := rowparse.ParseDate(raw)
		if !ok {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid date %q", raw)
		}
		dates = append(dates, date)
	}

	ctx, engine, err := ectoinject.GetContext[*rollup.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get rollup engine")
	}

	startedAt := time.Now().UTC()
	runErr := engine.Run(ctx, dates)
	elapsed := time.Since(startedAt)

	ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx)
	if err == nil && emitter != nil {
		_ = emitter.EmitRollupCompleted(ctx, dates, startedAt, elapsed, runErr)
	}

	resp := models.RollupResponse{
		Success:        runErr == nil,
		ElapsedSeconds: elapsed.Seconds(),
	}
	if runErr != nil {
		resp.Error = runErr.Error()
		return c.JSON(http.StatusInternalServerError, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// Status reports the background worker's recent activity so operators can see
// whether queued rollups are completing.
func Status(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "rollups_handler.Status")
	defer span.End()

	ctx, worker, err := ectoinject.GetContext[*rollup.Worker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get rollup worker")
	}

	processed, failed := worker.Stats()
	return c.JSON(http.StatusOK, map[string]any{
		"processed":   processed,
		"failed":      failed,
		"last_result": worker.LastResult(),
	})
}
