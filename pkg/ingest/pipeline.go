package ingest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/rowparse"
	"github.com/Ramsey-B/clover/pkg/sla"
)

// Pipeline ingests loosely-typed delivery rows: dedup at order granularity,
// ledger the attempt, parse and evaluate each surviving row, insert order by
// order, then hand the touched dates to the rollup worker.
type Pipeline struct {
	legs    LegStore
	ledger  LedgerStore
	tiers   TierStore
	rollups RollupTrigger
	logger  ectologger.Logger
}

// NewPipeline creates a new ingestion pipeline
func NewPipeline(legs LegStore, ledger LedgerStore, tiers TierStore, rollups RollupTrigger, logger ectologger.Logger) *Pipeline {
	return &Pipeline{
		legs:    legs,
		ledger:  ledger,
		tiers:   tiers,
		rollups: rollups,
		logger:  logger,
	}
}

// indexedRow keeps a row's position in the request for failure reporting.
type indexedRow struct {
	index int
	row   rowparse.Row
}

// orderGroup is every incoming row of one order, in request order.
type orderGroup struct {
	orderID int64
	rows    []indexedRow
}

// Ingest runs one upload through the pipeline. Row-level problems are
// accumulated into the result; only batch-level failures (no usable order ids,
// storage unavailable) surface as errors.
func (p *Pipeline) Ingest(ctx context.Context, req models.IngestRequest) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Pipeline.Ingest")
	defer span.End()

	referenceDate, ok := rowparse.ParseDate(req.ReferenceDate)
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid reference date %q", req.ReferenceDate)
	}

	result := &Result{Received: len(req.Rows)}

	groups, orderIDs := groupByOrder(req.Rows, result)
	if len(orderIDs) == 0 {
		// Nothing identifiable to import. Reject before any ledger or leg write.
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "no rows with a valid order id")
	}

	existing, err := p.legs.ExistingOrderIDs(ctx, orderIDs)
	if err != nil {
		return nil, err
	}

	var newGroups []orderGroup
	for _, group := range groups {
		if _, dup := existing[group.orderID]; dup {
			result.Ignored += len(group.rows)
			result.IgnoredOrderCount++
			continue
		}
		result.NewOrderCount++
		newGroups = append(newGroups, group)
	}

	entry, err := p.ledger.Create(ctx, models.Upload{
		ActorID:           req.ActorID,
		ActorName:         req.ActorName,
		Filename:          req.Filename,
		ReceivedCount:     result.Received,
		IgnoredCount:      result.Ignored,
		NewOrderCount:     result.NewOrderCount,
		IgnoredOrderCount: result.IgnoredOrderCount,
	})
	if err != nil {
		return nil, err
	}
	result.UploadID = entry.ID

	customerTiers, err := p.tiers.ListByAudience(ctx, models.TierAudienceCustomer)
	if err != nil {
		return nil, err
	}
	professionalTiers, err := p.tiers.ListByAudience(ctx, models.TierAudienceProfessional)
	if err != nil {
		return nil, err
	}

	p.processOrders(ctx, newGroups, entry.ID, referenceDate, customerTiers, professionalTiers, result)

	if err := p.ledger.PatchInsertedCount(ctx, entry.ID, result.Inserted); err != nil {
		return nil, err
	}

	if len(result.AffectedDates) > 0 && p.rollups != nil {
		if !p.rollups.Submit(result.AffectedDates) {
			p.logger.WithContext(ctx).WithFields(map[string]any{"upload_id": entry.ID}).Warn("Rollup queue full, summaries for this upload are stale until the next run")
		}
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"upload_id": entry.ID,
		"received":  result.Received,
		"inserted":  result.Inserted,
		"ignored":   result.Ignored,
		"errors":    len(result.Failures),
	}).Info("Completed ingestion batch")
	return result, nil
}

// groupByOrder buckets rows by order id, preserving request order. Rows without
// a usable order id are recorded as failures and excluded.
func groupByOrder(rows []map[string]any, result *Result) ([]orderGroup, []int64) {
	var groups []orderGroup
	byID := map[int64]int{}

	for i, raw := range rows {
		row := rowparse.Row(raw)
		orderID, ok := row.OrderID()
		if !ok {
			result.Failures = append(result.Failures, RowFailure{Index: i, Reason: "missing or invalid order id"})
			continue
		}

		if pos, seen := byID[orderID]; seen {
			groups[pos].rows = append(groups[pos].rows, indexedRow{index: i, row: row})
			continue
		}
		byID[orderID] = len(groups)
		groups = append(groups, orderGroup{orderID: orderID, rows: []indexedRow{{index: i, row: row}}})
	}

	orderIDs := make([]int64, 0, len(groups))
	for _, group := range groups {
		orderIDs = append(orderIDs, group.orderID)
	}
	return groups, orderIDs
}

// processOrders inserts each new order atomically, accumulating failures instead
// of aborting. Progress is logged per batch of rows.
func (p *Pipeline) processOrders(ctx context.Context, groups []orderGroup, uploadID string, referenceDate time.Time, customerTiers, professionalTiers []models.SLATier, result *Result) {
	dates := map[time.Time]struct{}{}
	processed := 0
	batch := 1

	for _, group := range groups {
		legs := make([]models.DeliveryLeg, 0, len(group.rows))
		for _, ir := range group.rows {
			legs = append(legs, p.buildLeg(ir.row, group.orderID, uploadID, referenceDate, customerTiers, professionalTiers))
		}

		if err := p.legs.InsertOrder(ctx, legs); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"order_id":  group.orderID,
				"upload_id": uploadID,
			}).Warn("Skipping order that failed to insert")
			for _, ir := range group.rows {
				result.Failures = append(result.Failures, RowFailure{
					Index:   ir.index,
					OrderID: group.orderID,
					Reason:  fmt.Sprintf("insert failed: %v", err),
				})
			}
		} else {
			result.Inserted += len(legs)
			for _, leg := range legs {
				if leg.WithinSLA != nil {
					if *leg.WithinSLA {
						result.SLACompliant++
					} else {
						result.SLABreached++
					}
				}
				if leg.RequestedAt != nil {
					dates[leg.RequestedAt.UTC().Truncate(24*time.Hour)] = struct{}{}
				}
			}
		}

		processed += len(group.rows)
		if processed >= batch*insertBatchSize {
			p.logger.WithContext(ctx).WithFields(map[string]any{
				"upload_id": uploadID,
				"batch":     batch,
				"processed": processed,
			}).Debug("Processed ingestion batch")
			batch++
		}
	}

	result.AffectedDates = sortedDates(dates)
}

// buildLeg parses one row into a delivery leg and evaluates both SLA views.
// Absent or unparseable optional fields become nil, never an error.
func (p *Pipeline) buildLeg(row rowparse.Row, orderID int64, uploadID string, referenceDate time.Time, customerTiers, professionalTiers []models.SLATier) models.DeliveryLeg {
	leg := models.DeliveryLeg{
		OrderID:    orderID,
		LegNumber:  row.LegNumber(),
		DistanceKM: row.Number("distance_km"),

		RequestedAt: row.Timestamp("requested_at"),
		AllocatedAt: row.Timestamp("allocated_at"),
		FinalizedAt: row.Timestamp("finalized_at"),

		Value:              row.Number("value"),
		ProfessionalPayout: row.Number("payout"),

		Occurrence: row.String("occurrence"),
		Address:    row.String("address"),
		Latitude:   row.Number("latitude"),
		Longitude:  row.Number("longitude"),

		UploadID: &uploadID,
	}

	if s := row.String("client_id"); s != nil {
		leg.ClientID = *s
	}
	if s := row.String("cost_center"); s != nil {
		leg.CostCenter = *s
	}
	if s := row.String("professional_id"); s != nil {
		leg.ProfessionalID = *s
	}

	if leg.RequestedAt == nil {
		// Rows without their own request timestamp fall back to the batch's
		// reference date.
		ref := referenceDate
		leg.RequestedAt = &ref
	}

	leg.ExecutionMinutes = row.Number("duration_minutes")
	if leg.ExecutionMinutes == nil {
		leg.ExecutionMinutes = minutesBetween(leg.RequestedAt, leg.FinalizedAt)
	}

	if leg.DistanceKM != nil {
		deadline := sla.Resolve(leg.ClientID, leg.CostCenter, *leg.DistanceKM, customerTiers)
		leg.DeadlineMinutes = &deadline

		professionalDeadline := sla.ResolveProfessional(leg.ClientID, leg.CostCenter, *leg.DistanceKM, professionalTiers)
		leg.ProfessionalDeadlineMinutes = &professionalDeadline
	}

	if leg.DeadlineMinutes != nil && leg.ExecutionMinutes != nil {
		within := sla.Evaluate(*leg.DeadlineMinutes, *leg.ExecutionMinutes)
		leg.WithinSLA = &within
	}

	leg.ProfessionalDeliveryMinutes = minutesBetween(leg.AllocatedAt, leg.FinalizedAt)
	if leg.ProfessionalDeadlineMinutes != nil && leg.ProfessionalDeliveryMinutes != nil {
		within := sla.Evaluate(*leg.ProfessionalDeadlineMinutes, *leg.ProfessionalDeliveryMinutes)
		leg.ProfessionalWithinSLA = &within
	}

	return leg
}

// minutesBetween returns the elapsed minutes between two instants, nil when
// either is missing or the interval is negative.
func minutesBetween(start, end *time.Time) *float64 {
	if start == nil || end == nil {
		return nil
	}
	minutes := end.Sub(*start).Minutes()
	if minutes < 0 {
		return nil
	}
	return &minutes
}

func sortedDates(set map[time.Time]struct{}) []time.Time {
	dates := make([]time.Time, 0, len(set))
	for date := range set {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
