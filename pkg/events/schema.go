package events

import "time"

// EventType defines the type of event
type EventType string

const (
	EventTypeUploadCompleted        EventType = "upload.completed"
	EventTypeUploadDeleted          EventType = "upload.deleted"
	EventTypeRollupCompleted        EventType = "rollup.completed"
	EventTypeRecalculationCompleted EventType = "recalculation.completed"
)

// UploadCompletedEvent is emitted after an ingestion batch finishes processing.
type UploadCompletedEvent struct {
	SchemaVersion string `json:"schema_version"`
	UploadID      string `json:"upload_id"`
	ActorID       string `json:"actor_id"`
	Filename      string `json:"filename"`
	Received      int    `json:"received"`
	Inserted      int    `json:"inserted"`
	Ignored       int    `json:"ignored"`
	Errors        int    `json:"errors"`
}

// RollupCompletedEvent is emitted after a summary recomputation run.
type RollupCompletedEvent struct {
	SchemaVersion  string    `json:"schema_version"`
	Dates          []string  `json:"dates,omitempty"`
	AllHistory     bool      `json:"all_history"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
}

// RecalculationCompletedEvent is emitted after a whole-table SLA recalculation.
type RecalculationCompletedEvent struct {
	SchemaVersion  string `json:"schema_version"`
	Updated        int    `json:"updated"`
	WithinSLACount int    `json:"within_sla_count"`
	BreachedCount  int    `json:"breached_count"`
	NoDataCount    int    `json:"no_data_count"`
}
