package domain

import "time"

type MatchType string

const (
	MatchTypeAutoMatched    MatchType = "auto_matched"
	MatchTypeHighConfidence MatchType = "high_confidence"
	MatchTypeSuggested      MatchType = "suggested"
)

type SuggestionStatus string

const (
	SuggestionStatusPending   SuggestionStatus = "pending"
	SuggestionStatusConfirmed SuggestionStatus = "confirmed"
	SuggestionStatusDeclined  SuggestionStatus = "declined"
	SuggestionStatusUnmatched SuggestionStatus = "unmatched"
	SuggestionStatusExpired   SuggestionStatus = "expired"
)

// TerminalStatuses are the outcomes that feed calibration and merchant
// history. Pending and expired suggestions carry no user signal.
var TerminalStatuses = []SuggestionStatus{
	SuggestionStatusConfirmed,
	SuggestionStatusDeclined,
	SuggestionStatusUnmatched,
}

// MatchSuggestion is the persisted, reviewable link between an inbox item
// and a transaction. At most one pending suggestion exists per
// (inbox, transaction) pair; the store enforces this with an upsert.
type MatchSuggestion struct {
	ID              string           `json:"id"`
	TeamID          string           `json:"team_id"`
	InboxID         string           `json:"inbox_id"`
	TransactionID   string           `json:"transaction_id"`
	ConfidenceScore float64          `json:"confidence_score"`
	AmountScore     float64          `json:"amount_score"`
	CurrencyScore   float64          `json:"currency_score"`
	DateScore       float64          `json:"date_score"`
	EmbeddingScore  float64          `json:"embedding_score"`
	MatchType       MatchType        `json:"match_type"`
	Status          SuggestionStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

type MatchDirection string

const (
	// DirectionForward finds the best transaction for an inbox item.
	DirectionForward MatchDirection = "inbox_to_transaction"
	// DirectionReverse finds the best inbox item for a transaction.
	DirectionReverse MatchDirection = "transaction_to_inbox"
)

// MatchResult is the outcome of one matching invocation. ID fields name
// the matched counterpart: TransactionID for forward matching, InboxID
// for reverse. All scores are rounded to three decimals.
type MatchResult struct {
	Direction        MatchDirection `json:"direction"`
	TransactionID    string         `json:"transaction_id,omitempty"`
	InboxID          string         `json:"inbox_id,omitempty"`
	Name             string         `json:"name"`
	Amount           *float64       `json:"amount,omitempty"`
	Currency         string         `json:"currency,omitempty"`
	Date             time.Time      `json:"date"`
	EmbeddingScore   float64        `json:"embedding_score"`
	AmountScore      float64        `json:"amount_score"`
	CurrencyScore    float64        `json:"currency_score"`
	DateScore        float64        `json:"date_score"`
	ConfidenceScore  float64        `json:"confidence_score"`
	MatchType        MatchType      `json:"match_type"`
	IsAlreadyMatched bool           `json:"is_already_matched"`
}
