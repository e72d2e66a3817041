package deliveryleg

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

var legColumns = []string{
	"id", "order_id", "leg_number", "client_id", "cost_center", "professional_id",
	"distance_km", "requested_at", "allocated_at", "finalized_at",
	"value", "professional_payout",
	"execution_minutes", "deadline_minutes", "within_sla",
	"professional_deadline_minutes", "professional_delivery_minutes", "professional_within_sla",
	"occurrence", "address", "latitude", "longitude",
	"upload_id", "created_at", "updated_at",
}

// Repository handles delivery leg persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new delivery leg repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ExistingOrderIDs returns which of the given order ids already have at least one
// stored leg. The ingestion pipeline drops incoming rows at order granularity
// based on this set.
func (r *Repository) ExistingOrderIDs(ctx context.Context, orderIDs []int64) (map[int64]struct{}, error) {
	ctx, span := tracing.StartSpan(ctx, "deliveryleg.Repository.ExistingOrderIDs")
	defer span.End()

	if len(orderIDs) == 0 {
		return map[int64]struct{}{}, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("DISTINCT order_id")
	sb.From("delivery_legs")
	sb.Where(sb.In("order_id", sqlbuilder.Flatten(orderIDs)...))

	query, args := sb.Build()
	var existing []int64
	if err := r.db.SelectContext(ctx, &existing, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"order_count": len(orderIDs)}).Error("Failed to check existing order ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check existing orders")
	}

	result := make(map[int64]struct{}, len(existing))
	for _, id := range existing {
		result[id] = struct{}{}
	}
	return result, nil
}

// InsertOrder inserts all legs of one order inside a single transaction. Either
// every leg of the order is committed or none are, so a mid-batch crash can never
// leave an order half persisted.
func (r *Repository) InsertOrder(ctx context.Context, legs []models.DeliveryLeg) error {
	ctx, span := tracing.StartSpan(ctx, "deliveryleg.Repository.InsertOrder")
	defer span.End()

	if len(legs) == 0 {
		return nil
	}

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	for i := range legs {
		leg := &legs[i]
		if leg.ID == "" {
			leg.ID = uuid.New().String()
		}
		leg.CreatedAt = now
		leg.UpdatedAt = now

		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto("delivery_legs")
		ib.Cols(legColumns...)
		ib.Values(
			leg.ID, leg.OrderID, leg.LegNumber, leg.ClientID, leg.CostCenter, leg.ProfessionalID,
			leg.DistanceKM, leg.RequestedAt, leg.AllocatedAt, leg.FinalizedAt,
			leg.Value, leg.ProfessionalPayout,
			leg.ExecutionMinutes, leg.DeadlineMinutes, leg.WithinSLA,
			leg.ProfessionalDeadlineMinutes, leg.ProfessionalDeliveryMinutes, leg.ProfessionalWithinSLA,
			leg.Occurrence, leg.Address, leg.Latitude, leg.Longitude,
			leg.UploadID, leg.CreatedAt, leg.UpdatedAt,
		)

		query, args := ib.Build()
		if _, err := tx.ExecContext(txCtx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"order_id":   leg.OrderID,
				"leg_number": leg.LegNumber,
			}).Error("Failed to insert delivery leg")
			return httperror.NewHTTPErrorf(http.StatusConflict, "failed to insert order %d", leg.OrderID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit order insert")
	}
	return nil
}

// DeleteByUploadID deletes exactly the legs belonging to one upload.
func (r *Repository) DeleteByUploadID(ctx context.Context, uploadID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "deliveryleg.Repository.DeleteByUploadID")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("delivery_legs")
	db.Where(db.Equal("upload_id", uploadID))

	query, args := db.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"upload_id": uploadID}).Error("Failed to delete legs by upload")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete legs")
	}

	rows, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{"upload_id": uploadID, "count": rows}).Info("Deleted legs for upload")
	return rows, nil
}

// DeleteLegacyByDate deletes only legs lacking an upload_id for the given date.
// Legs that belong to a ledgered upload are never touched by this path.
func (r *Repository) DeleteLegacyByDate(ctx context.Context, date time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "deliveryleg.Repository.DeleteLegacyByDate")
	defer span.End()

	query := `
		DELETE FROM delivery_legs
		WHERE upload_id IS NULL
		  AND requested_at >= $1
		  AND requested_at < $1 + INTERVAL '1 day'
	`

	result, err := r.db.ExecContext(ctx, query, date)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"date": date.Format("2006-01-02")}).Error("Failed to delete legacy legs")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete legacy legs")
	}

	rows, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{"date": date.Format("2006-01-02"), "count": rows}).Info("Deleted legacy legs for date")
	return rows, nil
}

// ListPage returns one keyset page of legs ordered by id. Used by the
// recalculation service to walk the whole table without loading it at once.
func (r *Repository) ListPage(ctx context.Context, afterID string, limit int) ([]models.DeliveryLeg, error) {
	ctx, span := tracing.StartSpan(ctx, "deliveryleg.Repository.ListPage")
	defer span.End()

	if limit < 1 || limit > 1000 {
		limit = 500
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(legColumns...)
	sb.From("delivery_legs")
	if afterID != "" {
		sb.Where(sb.GreaterThan("id", afterID))
	}
	sb.OrderBy("id")
	sb.Limit(limit)

	query, args := sb.Build()
	var legs []models.DeliveryLeg
	if err := r.db.SelectContext(ctx, &legs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"after_id": afterID, "limit": limit}).Error("Failed to list delivery legs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list delivery legs")
	}
	return legs, nil
}

// UpdateSLA overwrites the SLA-derived fields of one leg. All other leg fields
// are immutable after ingestion.
func (r *Repository) UpdateSLA(ctx context.Context, update models.SLAUpdate) error {
	ctx, span := tracing.StartSpan(ctx, "deliveryleg.Repository.UpdateSLA")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("delivery_legs")
	ub.Set(
		ub.Assign("execution_minutes", update.ExecutionMinutes),
		ub.Assign("deadline_minutes", update.DeadlineMinutes),
		ub.Assign("within_sla", update.WithinSLA),
		ub.Assign("professional_deadline_minutes", update.ProfessionalDeadlineMinutes),
		ub.Assign("professional_delivery_minutes", update.ProfessionalDeliveryMinutes),
		ub.Assign("professional_within_sla", update.ProfessionalWithinSLA),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", update.ID))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": update.ID}).Error("Failed to update leg SLA fields")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update leg")
	}
	return nil
}

// ListActiveDates returns every distinct requested date with at least one leg,
// ascending. Used by full-history rollup runs.
func (r *Repository) ListActiveDates(ctx context.Context) ([]time.Time, error) {
	ctx, span := tracing.StartSpan(ctx, "deliveryleg.Repository.ListActiveDates")
	defer span.End()

	query := `
		SELECT DISTINCT requested_at::date AS date
		FROM delivery_legs
		WHERE requested_at IS NOT NULL
		ORDER BY date
	`

	var dates []time.Time
	if err := r.db.SelectContext(ctx, &dates, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active dates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list dates")
	}
	return dates, nil
}
