package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkarlsen/reconcile/internal/core/domain"
	"github.com/mkarlsen/reconcile/internal/core/ports"
)

const (
	merchantPairMaxDistance = 0.15
	merchantHistoryMonths   = 6
	merchantHistoryLimit    = 20

	merchantMinSamples             = 3
	merchantMinConfirmed           = 3
	merchantMinAccuracy            = 0.90
	merchantMaxNegatives           = 1
	merchantMinConfirmedConfidence = 0.85
)

// merchantAnalyzer judges whether a recurring merchant pair has earned
// auto-matching. One analyzer lives for a single matching invocation:
// lookups are memoized per similarity bucket and bounded to the top
// budget candidates, everything past the budget stays unevaluated.
type merchantAnalyzer struct {
	store   ports.SuggestionStore
	limiter *rate.Limiter
	budget  int
	memo    map[string]domain.MerchantPattern
	now     time.Time
}

func newMerchantAnalyzer(store ports.SuggestionStore, limiter *rate.Limiter, budget int, now time.Time) *merchantAnalyzer {
	return &merchantAnalyzer{
		store:   store,
		limiter: limiter,
		budget:  budget,
		memo:    make(map[string]domain.MerchantPattern),
		now:     now,
	}
}

func notEvaluatedPattern() domain.MerchantPattern {
	return domain.MerchantPattern{Reason: domain.MerchantReasonNotEvaluated}
}

// analyze returns the merchant pattern for one candidate pair. Pairs
// below the gate similarity are never recurring-merchant pairings and
// skip the history lookup entirely.
func (a *merchantAnalyzer) analyze(ctx context.Context, teamID string, docEmbedding, txnEmbedding []float32, similarity float64) domain.MerchantPattern {
	if similarity < merchantGateSimilarity || len(docEmbedding) == 0 || len(txnEmbedding) == 0 {
		return notEvaluatedPattern()
	}

	key := fmt.Sprintf("%.2f", math.Round(similarity/0.05)*0.05)
	if pattern, ok := a.memo[key]; ok {
		return pattern
	}
	if len(a.memo) >= a.budget {
		return notEvaluatedPattern()
	}

	if a.limiter != nil && !a.limiter.Allow() {
		slog.Warn("merchant history lookup rate limited", "team_id", teamID)
		return notEvaluatedPattern()
	}

	outcomes, err := a.store.QueryMerchantOutcomes(ctx, domain.MerchantHistoryQuery{
		TeamID:               teamID,
		InboxEmbedding:       docEmbedding,
		TransactionEmbedding: txnEmbedding,
		MaxDistance:          merchantPairMaxDistance,
		Since:                a.now.AddDate(0, -merchantHistoryMonths, 0),
		Limit:                merchantHistoryLimit,
	})
	if err != nil {
		slog.Warn("merchant history lookup failed", "team_id", teamID, "error", err)
		return notEvaluatedPattern()
	}

	pattern := evaluateMerchantHistory(outcomes)
	a.memo[key] = pattern
	return pattern
}

// evaluateMerchantHistory decides proven-ness from terminal outcomes of
// past suggestions for this merchant pair.
func evaluateMerchantHistory(outcomes []domain.SuggestionOutcome) domain.MerchantPattern {
	var pattern domain.MerchantPattern
	var confirmedConfidenceSum float64

	for _, o := range outcomes {
		switch o.Status {
		case domain.SuggestionStatusConfirmed:
			pattern.ConfirmedCount++
			confirmedConfidenceSum += o.ConfidenceScore
		case domain.SuggestionStatusDeclined, domain.SuggestionStatusUnmatched:
			pattern.NegativeCount++
		default:
			continue
		}
		pattern.TotalCount++
	}

	if pattern.TotalCount > 0 {
		pattern.Accuracy = float64(pattern.ConfirmedCount) / float64(pattern.TotalCount)
	}
	if pattern.ConfirmedCount > 0 {
		pattern.AvgConfirmedConfidence = confirmedConfidenceSum / float64(pattern.ConfirmedCount)
	}

	switch {
	case pattern.TotalCount < merchantMinSamples:
		pattern.Reason = domain.MerchantReasonInsufficientHistory
	case pattern.ConfirmedCount < merchantMinConfirmed:
		pattern.Reason = domain.MerchantReasonTooFewConfirmed
	case pattern.Accuracy < merchantMinAccuracy:
		pattern.Reason = domain.MerchantReasonLowAccuracy
	case pattern.NegativeCount > merchantMaxNegatives:
		pattern.Reason = domain.MerchantReasonTooManyNegatives
	case pattern.AvgConfirmedConfidence < merchantMinConfirmedConfidence:
		pattern.Reason = domain.MerchantReasonLowConfidence
	default:
		pattern.CanAutoMatch = true
		pattern.Reason = domain.MerchantReasonProven
	}

	return pattern
}
