package ports

import (
	"context"
	"time"

	"github.com/mkarlsen/reconcile/internal/core/domain"
)

// CandidateStore reads inbox items and transactions and serves the tiered
// candidate retrieval queries. The engine never writes through this port.
type CandidateStore interface {
	GetInboxItem(ctx context.Context, teamID, inboxID string) (*domain.InboxItem, error)
	GetTransaction(ctx context.Context, teamID, transactionID string) (*domain.Transaction, error)
	QueryTransactionCandidates(ctx context.Context, query domain.TransactionCandidateQuery) ([]domain.TransactionCandidate, error)
	QueryInboxCandidates(ctx context.Context, query domain.InboxCandidateQuery) ([]domain.InboxCandidate, error)
}

// SuggestionStore owns the match-suggestion lifecycle. Upsert is keyed on
// (inbox_id, transaction_id) so re-running the matcher updates in place.
type SuggestionStore interface {
	Upsert(ctx context.Context, suggestion *domain.MatchSuggestion) (*domain.MatchSuggestion, error)
	GetByID(ctx context.Context, teamID, suggestionID string) (*domain.MatchSuggestion, error)
	UpdateStatus(ctx context.Context, teamID, suggestionID string, status domain.SuggestionStatus) error
	QueryOutcomes(ctx context.Context, teamID string, statuses []domain.SuggestionStatus, after time.Time) ([]domain.SuggestionOutcome, error)
	QueryMerchantOutcomes(ctx context.Context, query domain.MerchantHistoryQuery) ([]domain.SuggestionOutcome, error)
	WasDismissed(ctx context.Context, teamID, inboxID, transactionID string) (bool, error)
	ExpirePending(ctx context.Context, olderThan time.Time) (int64, error)
}

// MatchQueue publishes/consumes match requests.
type MatchQueue interface {
	PublishMatchRequested(ctx context.Context, request domain.MatchRequest) error
	SubscribeMatchRequested(ctx context.Context, handler func(context.Context, domain.MatchRequest) error) error
}
