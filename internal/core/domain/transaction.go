package domain

import "time"

type TransactionStatus string

const (
	TransactionStatusPosted   TransactionStatus = "posted"
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusArchived TransactionStatus = "archived"
)

// Transaction is a bank transaction as synced from a provider. Amount is
// signed (negative for outflows); comparisons against unsigned document
// amounts must use the absolute value.
type Transaction struct {
	ID               string            `json:"id"`
	TeamID           string            `json:"team_id"`
	Name             string            `json:"name"`
	Amount           float64           `json:"amount"`
	Currency         string            `json:"currency"`
	BaseAmount       *float64          `json:"base_amount,omitempty"`
	BaseCurrency     string            `json:"base_currency,omitempty"`
	Date             time.Time         `json:"date"`
	CounterpartyName string            `json:"counterparty_name,omitempty"`
	Description      string            `json:"description,omitempty"`
	Status           TransactionStatus `json:"status"`
	Recurring        bool              `json:"recurring"`
	Embedding        []float32         `json:"-"`
}

func (t *Transaction) Matchable() bool {
	return len(t.Embedding) > 0 && !t.Date.IsZero()
}
