package amqp

import (
	"encoding/json"
	"time"
)

// LeadMetricSyncMessage asks the worker to export one lead metric version.
// The worker reads the row itself; the message only carries the identity.
type LeadMetricSyncMessage struct {
	ID        int64     `json:"id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLeadMetricSyncMessage(id, version int64) *LeadMetricSyncMessage {
	return &LeadMetricSyncMessage{
		ID:        id,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LeadMetricSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LeadMetricSyncMessageFromJSON(data []byte) (*LeadMetricSyncMessage, error) {
	var msg LeadMetricSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
