package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record kinds and actions carried by RecordEvent.
const (
	KindIncome   = "income"
	KindExpenses = "expenses"

	ActionCreated = "created"
	ActionDeleted = "deleted"
)

// RecordEvent announces that an income or expense entry was written. It
// carries enough of the record for consumers to act without reading the
// database.
type RecordEvent struct {
	EventID     string    `json:"event_id"`
	Kind        string    `json:"kind"`
	Action      string    `json:"action"`
	OwnerID     string    `json:"owner_id"`
	RecordID    string    `json:"record_id"`
	Date        string    `json:"date"`
	Label       string    `json:"label"`
	Description string    `json:"description,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewRecordEvent creates an event with a fresh id and the current time.
func NewRecordEvent(kind, action, ownerID, recordID string) *RecordEvent {
	return &RecordEvent{
		EventID:    uuid.NewString(),
		Kind:       kind,
		Action:     action,
		OwnerID:    ownerID,
		RecordID:   recordID,
		OccurredAt: time.Now().UTC(),
	}
}

// Validate checks the fields every consumer relies on.
func (e *RecordEvent) Validate() error {
	switch {
	case e.EventID == "":
		return fmt.Errorf("event_id is required")
	case e.Kind != KindIncome && e.Kind != KindExpenses:
		return fmt.Errorf("unknown kind %q", e.Kind)
	case e.Action != ActionCreated && e.Action != ActionDeleted:
		return fmt.Errorf("unknown action %q", e.Action)
	case e.OwnerID == "" || e.RecordID == "":
		return fmt.Errorf("owner_id and record_id are required")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (e *RecordEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// RecordEventFromJSON decodes and validates an event.
func RecordEventFromJSON(data []byte) (*RecordEvent, error) {
	var ev RecordEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record event: %w", err)
	}
	return &ev, nil
}
