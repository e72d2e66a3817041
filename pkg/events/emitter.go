// Package events handles event emission for delivery operations lifecycle changes
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter handles event emission for Clover
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitUploadCompleted emits an upload.completed event once a batch finishes.
func (e *Emitter) EmitUploadCompleted(ctx context.Context, entry *models.Upload, resp *models.IngestResponse) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitUploadCompleted")
	defer span.End()

	payload := UploadCompletedEvent{
		SchemaVersion: SchemaVersion,
		UploadID:      entry.ID,
		ActorID:       entry.ActorID,
		Filename:      entry.Filename,
		Received:      resp.Received,
		Inserted:      resp.Inserted,
		Ignored:       resp.Ignored,
		Errors:        resp.Errors,
	}
	data, _ := json.Marshal(payload)

	event := &kafka.OperationsEvent{
		EventType: string(EventTypeUploadCompleted),
		SubjectID: entry.ID,
		Data:      data,
	}

	if err := e.producer.PublishOperationsEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit upload.completed event")
		return err
	}
	return nil
}

// EmitUploadDeleted emits an upload.deleted event after an upload and its legs
// are removed.
func (e *Emitter) EmitUploadDeleted(ctx context.Context, uploadID string, legCount int64) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitUploadDeleted")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"upload_id":      uploadID,
		"legs_deleted":   legCount,
	})

	event := &kafka.OperationsEvent{
		EventType: string(EventTypeUploadDeleted),
		SubjectID: uploadID,
		Data:      data,
	}

	if err := e.producer.PublishOperationsEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit upload.deleted event")
		return err
	}
	return nil
}

// EmitRollupCompleted emits a rollup.completed event after a summary run.
func (e *Emitter) EmitRollupCompleted(ctx context.Context, dates []time.Time, startedAt time.Time, elapsed time.Duration, runErr error) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRollupCompleted")
	defer span.End()

	payload := RollupCompletedEvent{
		SchemaVersion:  SchemaVersion,
		AllHistory:     len(dates) == 0,
		Success:        runErr == nil,
		StartedAt:      startedAt,
		ElapsedSeconds: elapsed.Seconds(),
	}
	for _, date := range dates {
		payload.Dates = append(payload.Dates, date.Format("2006-01-02"))
	}
	if runErr != nil {
		payload.Error = runErr.Error()
	}
	data, _ := json.Marshal(payload)

	event := &kafka.OperationsEvent{
		EventType: string(EventTypeRollupCompleted),
		SubjectID: startedAt.Format(time.RFC3339),
		Data:      data,
	}

	if err := e.producer.PublishOperationsEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit rollup.completed event")
		return err
	}
	return nil
}

// EmitRecalculationCompleted emits a recalculation.completed event.
func (e *Emitter) EmitRecalculationCompleted(ctx context.Context, resp *models.RecalculateResponse) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRecalculationCompleted")
	defer span.End()

	payload := RecalculationCompletedEvent{
		SchemaVersion:  SchemaVersion,
		Updated:        resp.Updated,
		WithinSLACount: resp.WithinSLACount,
		BreachedCount:  resp.BreachedCount,
		NoDataCount:    resp.NoDataCount,
	}
	data, _ := json.Marshal(payload)

	event := &kafka.OperationsEvent{
		EventType: string(EventTypeRecalculationCompleted),
		SubjectID: time.Now().UTC().Format(time.RFC3339),
		Data:      data,
	}

	if err := e.producer.PublishOperationsEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit recalculation.completed event")
		return err
	}
	return nil
}
