package mqtt

import "encoding/json"

// Message is the envelope exchanged with a roaming hub. Requests and their
// responses share the same correlation id.
type Message struct {
	CorrelationID string          `json:"correlation_id"`
	Operation     string          `json:"operation"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Error         string          `json:"error,omitempty"`
	Timestamp     int64           `json:"timestamp"`
}
