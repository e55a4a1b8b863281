package domain

import "time"

type DocumentType string

const (
	DocumentTypeInvoice DocumentType = "invoice"
	DocumentTypeExpense DocumentType = "expense"
	DocumentTypeUnknown DocumentType = ""
)

// InboxItem is a captured financial document (receipt, invoice, bill)
// awaiting reconciliation with a bank transaction. Amounts are stored
// unsigned; Amount is nil until extraction resolves one.
type InboxItem struct {
	ID           string       `json:"id"`
	TeamID       string       `json:"team_id"`
	DisplayName  string       `json:"display_name"`
	Amount       *float64     `json:"amount,omitempty"`
	Currency     string       `json:"currency,omitempty"`
	BaseAmount   *float64     `json:"base_amount,omitempty"`
	BaseCurrency string       `json:"base_currency,omitempty"`
	Date         time.Time    `json:"date"`
	Website      string       `json:"website,omitempty"`
	Type         DocumentType `json:"type,omitempty"`
	Embedding    []float32    `json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Matchable reports whether the item carries the prerequisites for
// matching: a semantic embedding and a usable date.
func (i *InboxItem) Matchable() bool {
	return len(i.Embedding) > 0 && !i.Date.IsZero()
}

// TypeOrDefault returns the document type, defaulting to expense when
// extraction did not classify the document.
func (i *InboxItem) TypeOrDefault() DocumentType {
	if i.Type == DocumentTypeInvoice {
		return DocumentTypeInvoice
	}
	return DocumentTypeExpense
}
