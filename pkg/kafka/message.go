package kafka

import (
	"encoding/json"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	IngestRequest *models.IngestRequest
}

// ParseIngestRequest parses the message value as an ingestion batch. Upstream
// exporters publish the same shape the HTTP surface accepts.
func (m *IncomingMessage) ParseIngestRequest() error {
	var req models.IngestRequest
	if err := json.Unmarshal(m.Value, &req); err != nil {
		return err
	}
	m.IngestRequest = &req
	return nil
}

// ActorID returns the actor that produced the batch, falling back to headers.
func (m *IncomingMessage) ActorID() string {
	if m.IngestRequest != nil && m.IngestRequest.ActorID != "" {
		return m.IngestRequest.ActorID
	}
	return m.Headers["actor_id"]
}
