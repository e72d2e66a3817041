package summary

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/database"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/huandu/go-sqlbuilder"
)

// Dimension selects the grouping of one aggregation run. The same routine
// produces all three summary relations.
type Dimension string

const (
	DimensionDaily        Dimension = "daily"
	DimensionClient       Dimension = "client"
	DimensionProfessional Dimension = "professional"
)

// Dimensions lists every grouping in recompute order.
var Dimensions = []Dimension{DimensionDaily, DimensionClient, DimensionProfessional}

// ReturnPhrases are the occurrence texts that classify a delivery as a return:
// the customer could not be reached or the location was closed. Matching is
// case-insensitive substring containment.
var ReturnPhrases = []string{
	"customer absent",
	"customer unavailable",
	"recipient absent",
	"location closed",
	"establishment closed",
}

// dimensionSpec binds a grouping dimension to its target table and group column.
type dimensionSpec struct {
	table     string
	groupCol  string
	keyCol    string
	hasValue  bool
	hasPickup bool
}

var dimensionSpecs = map[Dimension]dimensionSpec{
	DimensionDaily:        {table: "daily_summaries", groupCol: "", keyCol: "", hasValue: true, hasPickup: true},
	DimensionClient:       {table: "client_daily_summaries", groupCol: "client_id", keyCol: "client_id", hasValue: true, hasPickup: true},
	DimensionProfessional: {table: "professional_daily_summaries", groupCol: "professional_id", keyCol: "professional_id", hasValue: false, hasPickup: false},
}

// aggRow is one aggregated grouping for a single date.
type aggRow struct {
	GroupKey           *string  `db:"group_key"`
	OrderCount         int      `db:"order_count"`
	DeliveryCount      int      `db:"delivery_count"`
	OnTimeCount        int      `db:"on_time_count"`
	LateCount          int      `db:"late_count"`
	ReturnCount        int      `db:"return_count"`
	TotalValue         float64  `db:"total_value"`
	TotalPayout        float64  `db:"total_payout"`
	AvgDeliveryMinutes *float64 `db:"avg_delivery_minutes"`
	ProfessionalCount  int      `db:"professional_count"`
}

type pickupRow struct {
	GroupKey         *string  `db:"group_key"`
	AvgPickupMinutes *float64 `db:"avg_pickup_minutes"`
}

// Repository derives the summary relations from delivery legs
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new summary repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Recompute fully re-aggregates one date for one grouping dimension and replaces
// the stored summary rows by key. Dates outside the requested scope are never
// touched, and re-running over unchanged legs reproduces identical rows.
func (r *Repository) Recompute(ctx context.Context, date time.Time, dim Dimension) error {
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("summary.Repository.Recompute.%s", dim))
	defer span.End()

	spec, ok := dimensionSpecs[dim]
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown summary dimension %q", dim)
	}

	day := date.UTC().Truncate(24 * time.Hour)

	deliveries, err := r.aggregateDeliveries(ctx, day, spec)
	if err != nil {
		return err
	}

	pickups := map[string]*float64{}
	if spec.hasPickup {
		pickups, err = r.aggregatePickups(ctx, day, spec)
		if err != nil {
			return err
		}
	}

	return r.replaceRows(ctx, day, spec, deliveries, pickups)
}

// aggregateDeliveries aggregates delivery-volume metrics over legs >= 2. The
// pickup leg (leg_number = 1) is excluded from every metric here.
func (r *Repository) aggregateDeliveries(ctx context.Context, day time.Time, spec dimensionSpec) ([]aggRow, error) {
	groupSelect := "NULL AS group_key"
	groupBy := ""
	if spec.groupCol != "" {
		groupSelect = spec.groupCol + " AS group_key"
		groupBy = "GROUP BY " + spec.groupCol
	}

	returnPredicate, returnArgs := returnsPredicate(2)

	query := fmt.Sprintf(`
		SELECT %s,
		       COUNT(DISTINCT order_id) AS order_count,
		       COUNT(*) AS delivery_count,
		       COUNT(*) FILTER (WHERE within_sla IS TRUE) AS on_time_count,
		       COUNT(*) FILTER (WHERE within_sla IS FALSE) AS late_count,
		       COUNT(*) FILTER (WHERE %s) AS return_count,
		       COALESCE(SUM(value), 0) AS total_value,
		       COALESCE(SUM(professional_payout), 0) AS total_payout,
		       AVG(execution_minutes) AS avg_delivery_minutes,
		       COUNT(DISTINCT professional_id) FILTER (WHERE professional_id <> '') AS professional_count
		FROM delivery_legs
		WHERE requested_at >= $1
		  AND requested_at < $1 + INTERVAL '1 day'
		  AND leg_number >= 2
		%s
	`, groupSelect, returnPredicate, groupBy)

	args := append([]any{day}, returnArgs...)
	var rows []aggRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"date": day.Format("2006-01-02"), "dimension": spec.table}).Error("Failed to aggregate deliveries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to aggregate deliveries")
	}
	return rows, nil
}

// aggregatePickups computes the average pickup time from leg_number = 1 rows,
// the only metric those legs contribute to.
func (r *Repository) aggregatePickups(ctx context.Context, day time.Time, spec dimensionSpec) (map[string]*float64, error) {
	groupSelect := "NULL AS group_key"
	groupBy := ""
	if spec.groupCol != "" {
		groupSelect = spec.groupCol + " AS group_key"
		groupBy = "GROUP BY " + spec.groupCol
	}

	query := fmt.Sprintf(`
		SELECT %s,
		       AVG(execution_minutes) AS avg_pickup_minutes
		FROM delivery_legs
		WHERE requested_at >= $1
		  AND requested_at < $1 + INTERVAL '1 day'
		  AND leg_number = 1
		%s
	`, groupSelect, groupBy)

	var rows []pickupRow
	if err := r.db.SelectContext(ctx, &rows, query, day); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"date": day.Format("2006-01-02"), "dimension": spec.table}).Error("Failed to aggregate pickups")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to aggregate pickups")
	}

	result := make(map[string]*float64, len(rows))
	for _, row := range rows {
		key := ""
		if row.GroupKey != nil {
			key = *row.GroupKey
		}
		result[key] = row.AvgPickupMinutes
	}
	return result, nil
}

// replaceRows overwrites the summary rows for one date inside a transaction.
// Delete-then-insert keeps stale groupings (a client with no remaining legs)
// from surviving a recompute.
func (r *Repository) replaceRows(ctx context.Context, day time.Time, spec dimensionSpec, rows []aggRow, pickups map[string]*float64) error {
	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deleteBuilder := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	deleteBuilder.DeleteFrom(spec.table)
	deleteBuilder.Where(deleteBuilder.Equal("date", day))
	query, args := deleteBuilder.Build()
	if _, err := tx.ExecContext(txCtx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"date": day.Format("2006-01-02"), "table": spec.table}).Error("Failed to clear summary rows")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear summary rows")
	}

	now := time.Now().UTC()
	for _, row := range rows {
		key := ""
		if row.GroupKey != nil {
			key = *row.GroupKey
		}

		onTimeRate := 0.0
		if row.DeliveryCount > 0 {
			onTimeRate = float64(row.OnTimeCount) / float64(row.DeliveryCount) * 100
		}
		avgProductivity := 0.0
		if row.ProfessionalCount > 0 {
			avgProductivity = float64(row.DeliveryCount) / float64(row.ProfessionalCount)
		}

		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto(spec.table)

		cols := []string{"date"}
		values := []any{day}
		if spec.keyCol != "" {
			cols = append(cols, spec.keyCol)
			values = append(values, key)
		}
		cols = append(cols, "order_count", "delivery_count", "on_time_count", "late_count", "on_time_rate", "return_count")
		values = append(values, row.OrderCount, row.DeliveryCount, row.OnTimeCount, row.LateCount, onTimeRate, row.ReturnCount)
		if spec.hasValue {
			cols = append(cols, "total_value")
			values = append(values, row.TotalValue)
		}
		cols = append(cols, "total_payout", "avg_delivery_minutes")
		values = append(values, row.TotalPayout, row.AvgDeliveryMinutes)
		if spec.hasPickup {
			cols = append(cols, "avg_pickup_minutes", "professional_count", "avg_productivity")
			values = append(values, pickups[key], row.ProfessionalCount, avgProductivity)
		}
		cols = append(cols, "updated_at")
		values = append(values, now)

		ib.Cols(cols...)
		ib.Values(values...)

		query, args := ib.Build()
		if _, err := tx.ExecContext(txCtx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"date": day.Format("2006-01-02"), "table": spec.table, "group_key": key}).Error("Failed to insert summary row")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert summary row")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit summary rows")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"date":  day.Format("2006-01-02"),
		"table": spec.table,
		"rows":  len(rows),
	}).Debug("Replaced summary rows")
	return nil
}

// returnsPredicate builds the case-insensitive occurrence match with placeholders
// starting at the given ordinal.
func returnsPredicate(firstArg int) (string, []any) {
	clauses := make([]string, len(ReturnPhrases))
	args := make([]any, len(ReturnPhrases))
	for i, phrase := range ReturnPhrases {
		clauses[i] = fmt.Sprintf("LOWER(occurrence) LIKE $%d", firstArg+i)
		args[i] = "%" + strings.ToLower(phrase) + "%"
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

// IsReturnOccurrence reports whether an occurrence text classifies a delivery as
// a return. Mirrors the SQL predicate for callers that already hold the leg.
func IsReturnOccurrence(occurrence string) bool {
	lowered := strings.ToLower(occurrence)
	for _, phrase := range ReturnPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
