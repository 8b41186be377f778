package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"fintrack/internal/core"
)

// TransactionSyncMessage carries a full transaction so the consumer does not
// need access to the local store. Amount is a decimal string.
type TransactionSyncMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Amount    string    `json:"amount"`
	Category  string    `json:"category"`
	Notes     *string   `json:"notes,omitempty"`
	Date      time.Time `json:"date"`
	IsExpense bool      `json:"is_expense"`
	UpdatedAt time.Time `json:"updated_at"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionSyncMessage(t core.Transaction) *TransactionSyncMessage {
	return &TransactionSyncMessage{
		ID:        t.ID,
		UserID:    t.UserID,
		Title:     t.Title,
		Amount:    t.Amount.String(),
		Category:  t.Category,
		Notes:     t.Notes,
		Date:      t.Date,
		IsExpense: t.IsExpense,
		UpdatedAt: t.UpdatedAt,
		Timestamp: time.Now(),
	}
}

func (m *TransactionSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionSyncMessageFromJSON(data []byte) (*TransactionSyncMessage, error) {
	var msg TransactionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("message has no transaction id")
	}
	return &msg, nil
}

// Transaction decodes the message back into a domain value.
func (m *TransactionSyncMessage) Transaction() (core.Transaction, error) {
	amount, err := core.ParseDecimalToCents(m.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("message %s: %w", m.ID, err)
	}
	t := core.Transaction{
		ID:        m.ID,
		UserID:    m.UserID,
		Title:     m.Title,
		Amount:    core.Money{Cents: amount},
		Category:  m.Category,
		Notes:     m.Notes,
		Date:      m.Date,
		IsExpense: m.IsExpense,
		IsSynced:  true,
		UpdatedAt: m.UpdatedAt,
	}
	return t, t.Validate()
}
