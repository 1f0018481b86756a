package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names what happened to the ledger.
type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionRemoved EventType = "transaction.removed"
	EventLedgerReset        EventType = "ledger.reset"
	EventMonthEvaluated     EventType = "month.evaluated"
)

// LedgerEvent is the audit record published after every ledger change.
// Amount is in cents; Outcome is only set for month.evaluated.
type LedgerEvent struct {
	ID            uuid.UUID `json:"id"`
	Type          EventType `json:"type"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Category      string    `json:"category,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLedgerEvent(eventType EventType) *LedgerEvent {
	return &LedgerEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
