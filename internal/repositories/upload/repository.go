package upload

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/models"
)

var uploadColumns = []string{
	"id", "actor_id", "actor_name", "filename",
	"received_count", "inserted_count", "ignored_count",
	"new_order_count", "ignored_order_count", "created_at",
}

// Repository handles upload ledger persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new upload ledger repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create writes the ledger entry for an ingestion batch. This happens before row
// processing so every attempted upload is auditable, even when zero rows survive
// the dedup check. inserted_count starts at zero and is patched once at the end.
func (r *Repository) Create(ctx context.Context, entry models.Upload) (*models.Upload, error) {
	ctx, span := tracing.StartSpan(ctx, "upload.Repository.Create")
	defer span.End()

	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now().UTC()

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("uploads")
	ib.Cols(uploadColumns...)
	ib.Values(
		entry.ID, entry.ActorID, entry.ActorName, entry.Filename,
		entry.ReceivedCount, entry.InsertedCount, entry.IgnoredCount,
		entry.NewOrderCount, entry.IgnoredOrderCount, entry.CreatedAt,
	)

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"filename": entry.Filename, "actor_id": entry.ActorID}).Error("Failed to create upload ledger entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create upload ledger entry")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": entry.ID, "filename": entry.Filename}).Info("Created upload ledger entry")
	return &entry, nil
}

// PatchInsertedCount records how many rows were actually inserted once batch
// processing completes. This is the only mutation the ledger allows.
func (r *Repository) PatchInsertedCount(ctx context.Context, id string, inserted int) error {
	ctx, span := tracing.StartSpan(ctx, "upload.Repository.PatchInsertedCount")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("uploads")
	ub.Set(ub.Assign("inserted_count", inserted))
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to patch upload inserted count")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to patch upload")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "upload %s not found", id)
	}
	return nil
}

// Get retrieves an upload ledger entry by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.Upload, error) {
	ctx, span := tracing.StartSpan(ctx, "upload.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(uploadColumns...)
	sb.From("uploads")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var entry models.Upload
	if err := r.db.GetContext(ctx, &entry, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get upload")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get upload")
	}
	return &entry, nil
}

// List returns recent ledger entries, newest first, bounded.
func (r *Repository) List(ctx context.Context, limit int) ([]models.Upload, error) {
	ctx, span := tracing.StartSpan(ctx, "upload.Repository.List")
	defer span.End()

	if limit < 1 || limit > 100 {
		limit = 20
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(uploadColumns...)
	sb.From("uploads")
	sb.OrderBy("created_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var entries []models.Upload
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"limit": limit}).Error("Failed to list uploads")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list uploads")
	}
	return entries, nil
}

// Delete removes an upload ledger entry
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "upload.Repository.Delete")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("uploads")
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to delete upload")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete upload")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "upload %s not found", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted upload ledger entry")
	return nil
}
