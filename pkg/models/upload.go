package models

import "time"

// Upload is the ledger entry for one ingestion batch. Rows are append-only except
// inserted_count, which is patched once after processing completes.
type Upload struct {
	ID                string    `json:"id" db:"id"`
	ActorID           string    `json:"actor_id" db:"actor_id"`
	ActorName         string    `json:"actor_name" db:"actor_name"`
	Filename          string    `json:"filename" db:"filename"`
	ReceivedCount     int       `json:"received_count" db:"received_count"`
	InsertedCount     int       `json:"inserted_count" db:"inserted_count"`
	IgnoredCount      int       `json:"ignored_count" db:"ignored_count"`
	NewOrderCount     int       `json:"new_order_count" db:"new_order_count"`
	IgnoredOrderCount int       `json:"ignored_order_count" db:"ignored_order_count"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// IngestRequest is the request body for ingesting a batch of delivery rows.
// Rows are loosely typed; field names vary across sources.
type IngestRequest struct {
	Rows          []map[string]any `json:"rows" validate:"required,min=1"`
	ReferenceDate string           `json:"reference_date" validate:"required"`
	ActorID       string           `json:"actor_id" validate:"required"`
	ActorName     string           `json:"actor_name"`
	Filename      string           `json:"filename" validate:"required"`
}

// IngestResponse reports the outcome of one ingestion batch.
type IngestResponse struct {
	Success           bool   `json:"success"`
	Received          int    `json:"received"`
	Inserted          int    `json:"inserted"`
	Ignored           int    `json:"ignored"`
	Errors            int    `json:"errors"`
	NewOrderCount     int    `json:"new_order_count"`
	IgnoredOrderCount int    `json:"ignored_order_count"`
	SLACompliant      int    `json:"sla_compliant"`
	SLABreached       int    `json:"sla_breached"`
	UploadID          string `json:"upload_id"`
}

// UploadListResponse is the response for listing recent uploads
type UploadListResponse struct {
	Items []Upload `json:"items"`
	Count int      `json:"count"`
}

// RecalculateResponse reports the outcome of a whole-table SLA recalculation.
type RecalculateResponse struct {
	Success        bool `json:"success"`
	Updated        int  `json:"updated"`
	WithinSLACount int  `json:"within_sla_count"`
	BreachedCount  int  `json:"breached_count"`
	NoDataCount    int  `json:"no_data_count"`
}

// RollupRequest optionally narrows a rollup run to specific dates (YYYY-MM-DD).
// An empty list recomputes across all history.
type RollupRequest struct {
	Dates []string `json:"dates,omitempty"`
}

// RollupResponse reports the outcome of a synchronous rollup trigger.
type RollupResponse struct {
	Success        bool    `json:"success"`
	ElapsedSeconds float64 `json:"elapsed_seconds,omitempty"`
	Error          string  `json:"error,omitempty"`
}
