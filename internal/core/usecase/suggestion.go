package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mkarlsen/reconcile/internal/core/domain"
	"github.com/mkarlsen/reconcile/internal/core/ports"
)

// SuggestionUseCase implements ports.SuggestionReviewer: it persists
// match results as reviewable suggestions and applies review decisions.
type SuggestionUseCase struct {
	store ports.SuggestionStore
	clock func() time.Time
}

func NewSuggestionUseCase(store ports.SuggestionStore) *SuggestionUseCase {
	return &SuggestionUseCase{store: store, clock: time.Now}
}

var _ ports.SuggestionReviewer = (*SuggestionUseCase)(nil)

// RecordSuggestion upserts the pending suggestion for a match result.
// The store keys on (inbox_id, transaction_id), so re-running the
// matcher refreshes the scores instead of duplicating rows.
func (uc *SuggestionUseCase) RecordSuggestion(ctx context.Context, teamID, inboxID, transactionID string, result *domain.MatchResult) (*domain.MatchSuggestion, error) {
	if result == nil {
		return nil, fmt.Errorf("record suggestion: %w: nil match result", domain.ErrInvalidInput)
	}
	if teamID == "" || inboxID == "" || transactionID == "" {
		return nil, fmt.Errorf("record suggestion: %w: missing identifiers", domain.ErrInvalidInput)
	}

	now := uc.clock()
	suggestion := &domain.MatchSuggestion{
		ID:              uuid.NewString(),
		TeamID:          teamID,
		InboxID:         inboxID,
		TransactionID:   transactionID,
		ConfidenceScore: result.ConfidenceScore,
		AmountScore:     result.AmountScore,
		CurrencyScore:   result.CurrencyScore,
		DateScore:       result.DateScore,
		EmbeddingScore:  result.EmbeddingScore,
		MatchType:       result.MatchType,
		Status:          domain.SuggestionStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	stored, err := uc.store.Upsert(ctx, suggestion)
	if err != nil {
		return nil, fmt.Errorf("record suggestion: %w", err)
	}
	slog.Info("suggestion recorded",
		"team_id", teamID,
		"suggestion_id", stored.ID,
		"match_type", stored.MatchType,
		"confidence", stored.ConfidenceScore)
	return stored, nil
}

// ConfirmSuggestion marks a pending suggestion confirmed. Confirmations
// feed the team's calibration and the merchant history.
func (uc *SuggestionUseCase) ConfirmSuggestion(ctx context.Context, teamID, suggestionID string) error {
	return uc.review(ctx, teamID, suggestionID, domain.SuggestionStatusConfirmed)
}

// DeclineSuggestion marks a pending suggestion declined. Declined pairs
// are never proposed again.
func (uc *SuggestionUseCase) DeclineSuggestion(ctx context.Context, teamID, suggestionID string) error {
	return uc.review(ctx, teamID, suggestionID, domain.SuggestionStatusDeclined)
}

func (uc *SuggestionUseCase) review(ctx context.Context, teamID, suggestionID string, status domain.SuggestionStatus) error {
	if teamID == "" || suggestionID == "" {
		return fmt.Errorf("review suggestion: %w: missing identifiers", domain.ErrInvalidInput)
	}

	current, err := uc.store.GetByID(ctx, teamID, suggestionID)
	if err != nil {
		return fmt.Errorf("review suggestion: %w", err)
	}
	if current.Status != domain.SuggestionStatusPending {
		return fmt.Errorf("review suggestion: %w: suggestion is %s", domain.ErrInvalidInput, current.Status)
	}

	if err := uc.store.UpdateStatus(ctx, teamID, suggestionID, status); err != nil {
		return fmt.Errorf("review suggestion: %w", err)
	}
	slog.Info("suggestion reviewed", "team_id", teamID, "suggestion_id", suggestionID, "status", status)
	return nil
}
