package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"fintrack/internal/core"
)

// Ledger event kinds.
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionUpdated = "transaction.updated"
	EventTransactionDeleted = "transaction.deleted"
	EventBudgetChanged      = "budget.changed"
	EventDatasetReplaced    = "dataset.replaced"
)

// LedgerEvent announces that the ledger changed in a given month. It carries
// no payload beyond ids; consumers read current state from the database.
type LedgerEvent struct {
	Kind          string    `json:"kind"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	Year          int       `json:"year"`
	Month         int       `json:"month"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLedgerEvent(kind string, txID int64, ym core.YearMonth, at time.Time) LedgerEvent {
	return LedgerEvent{
		Kind:          kind,
		TransactionID: txID,
		Year:          ym.Year,
		Month:         int(ym.Month),
		Timestamp:     at,
	}
}

// Period returns the month the event refers to.
func (e LedgerEvent) Period() core.YearMonth {
	return core.YearMonth{Year: e.Year, Month: time.Month(e.Month)}
}

func (e LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and validates an event body.
func LedgerEventFromJSON(data []byte) (LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return LedgerEvent{}, err
	}
	if e.Kind == "" {
		return LedgerEvent{}, fmt.Errorf("event kind is empty")
	}
	if err := e.Period().Validate(); err != nil {
		return LedgerEvent{}, fmt.Errorf("event period: %w", err)
	}
	return e, nil
}
