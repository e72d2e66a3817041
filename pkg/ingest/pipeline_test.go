package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeLegStore struct {
	legs       []models.DeliveryLeg
	failOrders map[int64]error
}

func (f *fakeLegStore) ExistingOrderIDs(_ context.Context, orderIDs []int64) (map[int64]struct{}, error) {
	stored := map[int64]struct{}{}
	for _, leg := range f.legs {
		stored[leg.OrderID] = struct{}{}
	}
	result := map[int64]struct{}{}
	for _, id := range orderIDs {
		if _, ok := stored[id]; ok {
			result[id] = struct{}{}
		}
	}
	return result, nil
}

func (f *fakeLegStore) InsertOrder(_ context.Context, legs []models.DeliveryLeg) error {
	if len(legs) > 0 {
		if err, ok := f.failOrders[legs[0].OrderID]; ok {
			return err
		}
	}
	f.legs = append(f.legs, legs...)
	return nil
}

type fakeLedgerStore struct {
	created []models.Upload
	patched map[string]int
}

func (f *fakeLedgerStore) Create(_ context.Context, entry models.Upload) (*models.Upload, error) {
	entry.ID = "upload-1"
	entry.CreatedAt = time.Now().UTC()
	f.created = append(f.created, entry)
	return &entry, nil
}

func (f *fakeLedgerStore) PatchInsertedCount(_ context.Context, id string, inserted int) error {
	if f.patched == nil {
		f.patched = map[string]int{}
	}
	f.patched[id] = inserted
	return nil
}

type fakeTierStore struct {
	tiers map[string][]models.SLATier
}

func (f *fakeTierStore) ListByAudience(_ context.Context, audience string) ([]models.SLATier, error) {
	return f.tiers[audience], nil
}

type fakeRollupTrigger struct {
	jobs [][]time.Time
}

func (f *fakeRollupTrigger) Submit(dates []time.Time) bool {
	f.jobs = append(f.jobs, dates)
	return true
}

func newTestPipeline(legs *fakeLegStore, ledger *fakeLedgerStore, trigger *fakeRollupTrigger) *Pipeline {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewPipeline(legs, ledger, &fakeTierStore{}, trigger, logger)
}

func orderRow(orderID int64, leg int, distance float64, requested, finalized string) map[string]any {
	return map[string]any{
		"order_id":     orderID,
		"leg_number":   leg,
		"client_id":    "acme",
		"distance_km":  distance,
		"requested_at": requested,
		"finalized_at": finalized,
	}
}

func TestIngest_NewOrder(t *testing.T) {
	legs := &fakeLegStore{}
	ledger := &fakeLedgerStore{}
	trigger := &fakeRollupTrigger{}
	p := newTestPipeline(legs, ledger, trigger)

	req := models.IngestRequest{
		Rows: []map[string]any{
			orderRow(100, 1, 2, "2024-06-01 09:00:00", "2024-06-01 09:20:00"),
			orderRow(100, 2, 12, "2024-06-01 09:00:00", "2024-06-01 10:10:00"),
			orderRow(100, 3, 12, "2024-06-01 09:00:00", "2024-06-01 10:30:00"),
		},
		ReferenceDate: "2024-06-01",
		ActorID:       "ops-1",
		Filename:      "june.xlsx",
	}

	result, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Received)
	assert.Equal(t, 3, result.Inserted)
	assert.Equal(t, 0, result.Ignored)
	assert.Equal(t, 1, result.NewOrderCount)
	assert.Equal(t, 0, result.IgnoredOrderCount)
	assert.Empty(t, result.Failures)
	assert.Equal(t, "upload-1", result.UploadID)

	// Ledger written before processing, then patched with the insert count.
	require.Len(t, ledger.created, 1)
	assert.Equal(t, 3, ledger.created[0].ReceivedCount)
	assert.Equal(t, 0, ledger.created[0].InsertedCount)
	assert.Equal(t, 3, ledger.patched["upload-1"])

	// One rollup job covering the single affected date.
	require.Len(t, trigger.jobs, 1)
	require.Len(t, trigger.jobs[0], 1)
	assert.Equal(t, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), trigger.jobs[0][0])
}

func TestIngest_SLAEvaluation(t *testing.T) {
	legs := &fakeLegStore{}
	p := newTestPipeline(legs, &fakeLedgerStore{}, &fakeRollupTrigger{})

	req := models.IngestRequest{
		Rows: []map[string]any{
			// 12 km, 70 minutes: ladder allows 75, on time.
			orderRow(200, 2, 12, "2024-06-01 09:00:00", "2024-06-01 10:10:00"),
			// 12 km, 80 minutes: late.
			orderRow(201, 2, 12, "2024-06-01 09:00:00", "2024-06-01 10:20:00"),
			// 101 km: zero allowance, automatic breach.
			orderRow(202, 2, 101, "2024-06-01 09:00:00", "2024-06-01 09:05:00"),
		},
		ReferenceDate: "2024-06-01",
		ActorID:       "ops-1",
		Filename:      "sla.xlsx",
	}

	result, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Inserted)
	assert.Equal(t, 1, result.SLACompliant)
	assert.Equal(t, 2, result.SLABreached)

	require.Len(t, legs.legs, 3)
	first := legs.legs[0]
	require.NotNil(t, first.DeadlineMinutes)
	assert.Equal(t, 75, *first.DeadlineMinutes)
	require.NotNil(t, first.ExecutionMinutes)
	assert.InDelta(t, 70, *first.ExecutionMinutes, 1e-9)
	require.NotNil(t, first.WithinSLA)
	assert.True(t, *first.WithinSLA)

	breach := legs.legs[2]
	require.NotNil(t, breach.DeadlineMinutes)
	assert.Equal(t, 0, *breach.DeadlineMinutes)
	require.NotNil(t, breach.WithinSLA)
	assert.False(t, *breach.WithinSLA)
}

func TestIngest_DuplicateOrdersAreIgnoredWholesale(t *testing.T) {
	legs := &fakeLegStore{}
	ledger := &fakeLedgerStore{}
	p := newTestPipeline(legs, ledger, &fakeRollupTrigger{})

	req := models.IngestRequest{
		Rows: []map[string]any{
			orderRow(300, 1, 2, "2024-06-01 09:00:00", "2024-06-01 09:20:00"),
			orderRow(300, 2, 8, "2024-06-01 09:00:00", "2024-06-01 09:50:00"),
		},
		ReferenceDate: "2024-06-01",
		ActorID:       "ops-1",
		Filename:      "first.xlsx",
	}

	first, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)

	// Same order again, with an extra new order in the same batch.
	req.Rows = append(req.Rows, orderRow(301, 1, 2, "2024-06-01 11:00:00", "2024-06-01 11:15:00"))
	req.Filename = "second.xlsx"

	second, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, second.Received)
	assert.Equal(t, 1, second.Inserted)
	assert.Equal(t, 2, second.Ignored)
	assert.Equal(t, 1, second.NewOrderCount)
	assert.Equal(t, 1, second.IgnoredOrderCount)
	assert.Len(t, legs.legs, 3)
}

func TestIngest_NoUsableOrderIDs(t *testing.T) {
	legs := &fakeLegStore{}
	ledger := &fakeLedgerStore{}
	p := newTestPipeline(legs, ledger, &fakeRollupTrigger{})

	req := models.IngestRequest{
		Rows:          []map[string]any{{"client_id": "acme"}, {"order_id": "not-a-number"}},
		ReferenceDate: "2024-06-01",
		ActorID:       "ops-1",
		Filename:      "bad.xlsx",
	}

	_, err := p.Ingest(context.Background(), req)
	require.Error(t, err)

	// Rejected before any side effect.
	assert.Empty(t, ledger.created)
	assert.Empty(t, legs.legs)
}

func TestIngest_InvalidReferenceDate(t *testing.T) {
	p := newTestPipeline(&fakeLegStore{}, &fakeLedgerStore{}, &fakeRollupTrigger{})

	req := models.IngestRequest{
		Rows:          []map[string]any{orderRow(1, 1, 2, "2024-06-01 09:00:00", "2024-06-01 09:20:00")},
		ReferenceDate: "yesterday",
		ActorID:       "ops-1",
		Filename:      "x.xlsx",
	}

	_, err := p.Ingest(context.Background(), req)
	require.Error(t, err)
}

func TestIngest_RowFailuresDoNotAbortTheBatch(t *testing.T) {
	legs := &fakeLegStore{failOrders: map[int64]error{400: errors.New("duplicate key")}}
	ledger := &fakeLedgerStore{}
	p := newTestPipeline(legs, ledger, &fakeRollupTrigger{})

	req := models.IngestRequest{
		Rows: []map[string]any{
			orderRow(400, 1, 2, "2024-06-01 09:00:00", "2024-06-01 09:20:00"),
			orderRow(400, 2, 8, "2024-06-01 09:00:00", "2024-06-01 09:50:00"),
			orderRow(401, 1, 2, "2024-06-01 09:00:00", "2024-06-01 09:10:00"),
			{"notes": "row without an order id"},
		},
		ReferenceDate: "2024-06-01",
		ActorID:       "ops-1",
		Filename:      "mixed.xlsx",
	}

	result, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Received)
	assert.Equal(t, 1, result.Inserted)
	// Two rows from the failed order plus the row without an order id.
	assert.Len(t, result.Failures, 3)
	assert.Equal(t, 1, ledger.patched["upload-1"])

	// Conservation: every received row is inserted, ignored, or failed.
	assert.Equal(t, result.Received, result.Inserted+result.Ignored+len(result.Failures))
}

func TestIngest_MissingTimestampsGiveUnknownVerdict(t *testing.T) {
	legs := &fakeLegStore{}
	p := newTestPipeline(legs, &fakeLedgerStore{}, &fakeRollupTrigger{})

	req := models.IngestRequest{
		Rows: []map[string]any{
			{"order_id": 500, "leg_number": 2, "distance_km": 12, "requested_at": "2024-06-01 09:00:00"},
		},
		ReferenceDate: "2024-06-01",
		ActorID:       "ops-1",
		Filename:      "partial.xlsx",
	}

	result, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 0, result.SLACompliant)
	assert.Equal(t, 0, result.SLABreached)

	require.Len(t, legs.legs, 1)
	leg := legs.legs[0]
	require.NotNil(t, leg.DeadlineMinutes)
	assert.Nil(t, leg.ExecutionMinutes)
	assert.Nil(t, leg.WithinSLA)
}

func TestIngest_ReferenceDateFallback(t *testing.T) {
	legs := &fakeLegStore{}
	trigger := &fakeRollupTrigger{}
	p := newTestPipeline(legs, &fakeLedgerStore{}, trigger)

	req := models.IngestRequest{
		Rows:          []map[string]any{{"order_id": 600, "leg_number": 1}},
		ReferenceDate: "2024-07-10",
		ActorID:       "ops-1",
		Filename:      "nodates.xlsx",
	}

	result, err := p.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)

	require.Len(t, legs.legs, 1)
	require.NotNil(t, legs.legs[0].RequestedAt)
	assert.Equal(t, time.Date(2024, time.July, 10, 0, 0, 0, 0, time.UTC), *legs.legs[0].RequestedAt)

	require.Len(t, trigger.jobs, 1)
	assert.Equal(t, []time.Time{time.Date(2024, time.July, 10, 0, 0, 0, 0, time.UTC)}, trigger.jobs[0])
}
