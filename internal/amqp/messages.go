package amqp

import (
	"encoding/json"
	"time"

	"saldo/internal/core"
)

// MovementEventMessage describes one committed ledger mutation. Amounts
// travel as integer cents so consumers never parse decimals.
type MovementEventMessage struct {
	Action      string    `json:"action"` // created, updated, deleted
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	AccountID   int64     `json:"account_id"`
	ToAccountID *int64    `json:"to_account_id,omitempty"`
	Kind        string    `json:"kind"`
	AmountCents int64     `json:"amount_cents"`
	Date        string    `json:"date"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewMovementEventMessage(action string, m core.Movement) *MovementEventMessage {
	return &MovementEventMessage{
		Action:      action,
		ID:          m.ID,
		OwnerID:     m.OwnerID,
		AccountID:   m.AccountID,
		ToAccountID: m.ToAccountID,
		Kind:        string(m.Kind),
		AmountCents: core.Cents(m.Amount),
		Date:        m.Date.Format("2006-01-02"),
		Timestamp:   time.Now(),
	}
}

func (m *MovementEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MovementEventMessageFromJSON(data []byte) (*MovementEventMessage, error) {
	var msg MovementEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// BillDueMessage notifies that an unpaid reminder has reached its due date.
type BillDueMessage struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Name        string    `json:"name"`
	AmountCents int64     `json:"amount_cents"`
	DueDate     string    `json:"due_date"`
	Frequency   string    `json:"frequency"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewBillDueMessage(b core.BillReminder) *BillDueMessage {
	return &BillDueMessage{
		ID:          b.ID,
		OwnerID:     b.OwnerID,
		Name:        b.Name,
		AmountCents: core.Cents(b.Amount),
		DueDate:     b.DueDate.Format("2006-01-02"),
		Frequency:   string(b.Frequency),
		Timestamp:   time.Now(),
	}
}

func (m *BillDueMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BillDueMessageFromJSON(data []byte) (*BillDueMessage, error) {
	var msg BillDueMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
