package ports

import (
	"context"

	"github.com/mkarlsen/reconcile/internal/core/domain"
)

// Matcher is the inbound contract for reconciliation. Both Find methods
// are best effort: internal failures degrade to a nil result, they never
// surface as errors to the caller.
type Matcher interface {
	FindBestTransactionMatch(ctx context.Context, teamID, inboxID string) *domain.MatchResult
	FindBestInboxMatch(ctx context.Context, teamID, transactionID string) *domain.MatchResult
	GetTeamCalibration(ctx context.Context, teamID string) (domain.TeamCalibration, error)
}

// SuggestionReviewer persists match results and applies review decisions.
type SuggestionReviewer interface {
	RecordSuggestion(ctx context.Context, teamID, inboxID, transactionID string, result *domain.MatchResult) (*domain.MatchSuggestion, error)
	ConfirmSuggestion(ctx context.Context, teamID, suggestionID string) error
	DeclineSuggestion(ctx context.Context, teamID, suggestionID string) error
}
