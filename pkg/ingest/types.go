package ingest

import (
	"context"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// insertBatchSize bounds how many rows are processed per batch.
const insertBatchSize = 500

// LegStore is the delivery leg persistence the pipeline depends on.
type LegStore interface {
	ExistingOrderIDs(ctx context.Context, orderIDs []int64) (map[int64]struct{}, error)
	InsertOrder(ctx context.Context, legs []models.DeliveryLeg) error
}

// LedgerStore records upload ledger entries.
type LedgerStore interface {
	Create(ctx context.Context, entry models.Upload) (*models.Upload, error)
	PatchInsertedCount(ctx context.Context, id string, inserted int) error
}

// TierStore reads SLA tier configuration. Tier sets are loaded per request and
// passed into the resolver so resolution stays pure.
type TierStore interface {
	ListByAudience(ctx context.Context, audience string) ([]models.SLATier, error)
}

// RollupTrigger accepts rollup work scoped to the dates touched by an upload.
// Submission must not block the ingestion response.
type RollupTrigger interface {
	Submit(dates []time.Time) bool
}

// RowFailure describes one row the pipeline could not persist. Failures are
// accumulated, never propagated, so a handful of malformed rows cannot reject a
// whole import.
type RowFailure struct {
	Index   int    `json:"index"`
	OrderID int64  `json:"order_id,omitempty"`
	Reason  string `json:"reason"`
}

// Result is the full outcome of one ingestion run.
type Result struct {
	Received          int
	Inserted          int
	Ignored           int
	NewOrderCount     int
	IgnoredOrderCount int
	SLACompliant      int
	SLABreached       int
	UploadID          string
	Failures          []RowFailure
	AffectedDates     []time.Time
}

// Response maps the result onto the ingestion API response shape.
func (r *Result) Response() *models.IngestResponse {
	return &models.IngestResponse{
		Success:           true,
		Received:          r.Received,
		Inserted:          r.Inserted,
		Ignored:           r.Ignored,
		Errors:            len(r.Failures),
		NewOrderCount:     r.NewOrderCount,
		IgnoredOrderCount: r.IgnoredOrderCount,
		SLACompliant:      r.SLACompliant,
		SLABreached:       r.SLABreached,
		UploadID:          r.UploadID,
	}
}
