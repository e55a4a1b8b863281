package domain

import "time"

// TransactionCandidate is a transaction returned by one retrieval tier,
// annotated with its embedding distance to the source inbox item.
// Distance is cosine distance in [0,2]; lower is closer.
type TransactionCandidate struct {
	Transaction
	EmbeddingDistance float64
	IsAlreadyMatched  bool
}

// InboxCandidate mirrors TransactionCandidate for reverse matching.
type InboxCandidate struct {
	InboxItem
	EmbeddingDistance float64
	IsAlreadyMatched  bool
}

// TransactionCandidateQuery is one retrieval-tier filter against the
// transaction store. Zero values disable the corresponding predicate;
// the store always restricts to posted transactions without a pending
// suggestion or existing attachment.
type TransactionCandidateQuery struct {
	TeamID    string
	Embedding []float32

	// MaxEmbeddingDistance bounds cosine distance when > 0.
	MaxEmbeddingDistance float64

	// ExactAmount matches |txn.amount - *ExactAmount| < 0.01 together
	// with Currency.
	ExactAmount *float64
	Currency    string

	// ExactBaseAmount matches normalized base amounts within
	// BaseAmountTolerance together with BaseCurrency.
	ExactBaseAmount     *float64
	BaseCurrency        string
	BaseAmountTolerance float64

	// AmountTolerance matches ||txn.amount| - |AmountTarget|| < tolerance.
	AmountTarget    float64
	AmountTolerance float64

	DateFrom time.Time
	DateTo   time.Time

	ExcludeIDs []string
	Limit      int
}

// InboxCandidateQuery is the reverse-direction tier filter.
type InboxCandidateQuery struct {
	TeamID    string
	Embedding []float32

	MaxEmbeddingDistance float64

	ExactAmount *float64
	Currency    string

	AmountTarget    float64
	AmountTolerance float64

	DateFrom time.Time
	DateTo   time.Time

	IncludeMatched bool
	ExcludeIDs     []string
	Limit          int
}

// MerchantHistoryQuery selects historical terminal suggestions whose
// stored embeddings sit within MaxDistance of both sides of the current
// pair, i.e. "this merchant pair has been seen before".
type MerchantHistoryQuery struct {
	TeamID               string
	InboxEmbedding       []float32
	TransactionEmbedding []float32
	MaxDistance          float64
	Since                time.Time
	Limit                int
}

// MatchRequest is the queue payload asking the worker to reconcile one
// record in the given direction.
type MatchRequest struct {
	TeamID        string         `json:"team_id"`
	InboxID       string         `json:"inbox_id,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Direction     MatchDirection `json:"direction"`
}
