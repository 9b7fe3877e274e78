package amqp

import (
	"encoding/json"
	"time"
)

// RecordCommittedMessage announces one committed ledger record. It carries
// only identifiers; the worker fetches the full record from storage so the
// queue never holds balance data.
type RecordCommittedMessage struct {
	UserID    string    `json:"userId"`
	RecordID  string    `json:"recordId"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecordCommittedMessage creates a message for the given record.
func NewRecordCommittedMessage(userID, recordID string) *RecordCommittedMessage {
	return &RecordCommittedMessage{
		UserID:    userID,
		RecordID:  recordID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *RecordCommittedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordCommittedMessageFromJSON creates a message from JSON bytes.
func RecordCommittedMessageFromJSON(data []byte) (*RecordCommittedMessage, error) {
	var msg RecordCommittedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
