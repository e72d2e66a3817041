package uploads

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/deliveryleg"
	"github.com/Ramsey-B/clover/internal/repositories/upload"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/rollup"
	"github.com/Ramsey-B/clover/pkg/rowparse"
)

var validate = validator.New()

// Register registers upload routes
func Register(g *echo.Group) {
	g.POST("", Ingest)
	g.GET("", List)
	g.GET("/:id", Get)
	g.DELETE("/:id", Delete)
	g.DELETE("/legacy/:date", DeleteLegacy)
}

// Ingest runs one batch of delivery rows through the ingestion pipeline.
func Ingest(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "uploads_handler.Ingest")
	defer span.End()

	var req models.IngestRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, pipeline, err := ectoinject.GetContext[*ingest.Pipeline](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get pipeline")
	}

	result, err := pipeline.Ingest(ctx, req)
	if err != nil {
		return err
	}
	resp := result.Response()

	// Event emission is best effort; the upload already committed.
	ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx)
	if err == nil && emitter != nil {
		entry := &models.Upload{ID: result.UploadID, ActorID: req.ActorID, Filename: req.Filename}
		if err := emitter.EmitUploadCompleted(ctx, entry, resp); err != nil {
			logWarn(ctx, "Failed to emit upload completed event", map[string]any{"upload_id": result.UploadID})
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// List returns recent upload ledger entries, newest first.
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "uploads_handler.List")
	defer span.End()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, repo, err := ectoinject.GetContext[*upload.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	entries, err := repo.List(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.UploadListResponse{
		Items: entries,
		Count: len(entries),
	})
}

// Get returns one upload ledger entry
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "uploads_handler.Get")
	defer span.End()

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*upload.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	entry, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if entry == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "upload %s not found", id)
	}

	return c.JSON(http.StatusOK, entry)
}

// Delete removes an upload ledger entry and every leg it inserted, then queues
// a summary rollup so the affected dates stop counting the deleted legs.
func Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "uploads_handler.Delete")
	defer span.End()

	id := c.Param("id")

	ctx, legs, err := ectoinject.GetContext[*deliveryleg.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	ctx, repo, err := ectoinject.GetContext[*upload.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	legCount, err := legs.DeleteByUploadID(ctx, id)
	if err != nil {
		return err
	}
	if err := repo.Delete(ctx, id); err != nil {
		return err
	}

	submitFullRollup(ctx)

	ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx)
	if err == nil && emitter != nil {
		if err := emitter.EmitUploadDeleted(ctx, id, legCount); err != nil {
			logWarn(ctx, "Failed to emit upload deleted event", map[string]any{"upload_id": id})
		}
	}

	return c.NoContent(http.StatusNoContent)
}

// DeleteLegacy removes the unledgered legs of one date. Only legs without an
// upload_id are eligible; ledgered uploads must be deleted by id.
func DeleteLegacy(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "uploads_handler.DeleteLegacy")
	defer span.End()

	date, ok := rowparse.ParseDate(c.Param("date"))
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid date %q", c.Param("date"))
	}

	ctx, legs, err := ectoinject.GetContext[*deliveryleg.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	deleted, err := legs.DeleteLegacyByDate(ctx, date)
	if err != nil {
		return err
	}

	submitFullRollup(ctx)

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"deleted": deleted,
	})
}

// submitFullRollup queues an all-history rollup after a deletion. The deleted
// legs' dates are not tracked, so the whole range is recomputed.
func submitFullRollup(ctx context.Context) {
	ctx, worker, err := ectoinject.GetContext[*rollup.Worker](ctx)
	if err != nil || worker == nil {
		return
	}
	if !worker.Submit(nil) {
		logWarn(ctx, "Rollup queue full after deletion", nil)
	}
}

func logWarn(ctx context.Context, msg string, fields map[string]any) {
	_, logger, err := ectoinject.GetContext[ectologger.Logger](ctx)
	if err != nil || logger == nil {
		return
	}
	entry := logger.WithContext(ctx)
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Warn(msg)
}
