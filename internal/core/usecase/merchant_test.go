package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/mkarlsen/reconcile/internal/core/domain"
)

func terminalOutcomes(confirmed, declined int, confidence float64) []domain.SuggestionOutcome {
	out := append(
		outcomes(confirmed, domain.SuggestionStatusConfirmed, domain.MatchTypeSuggested, confidence),
		outcomes(declined, domain.SuggestionStatusDeclined, domain.MatchTypeSuggested, confidence)...,
	)
	return out
}

func TestEvaluateMerchantHistory(t *testing.T) {
	tests := []struct {
		name         string
		history      []domain.SuggestionOutcome
		canAutoMatch bool
		reason       string
	}{
		{
			name:    "no history",
			history: nil,
			reason:  domain.MerchantReasonInsufficientHistory,
		},
		{
			name:    "too few samples",
			history: terminalOutcomes(2, 0, 0.9),
			reason:  domain.MerchantReasonInsufficientHistory,
		},
		{
			name:         "proven merchant",
			history:      terminalOutcomes(5, 0, 0.9),
			canAutoMatch: true,
			reason:       domain.MerchantReasonProven,
		},
		{
			name:    "accuracy below bar",
			history: terminalOutcomes(4, 1, 0.9),
			reason:  domain.MerchantReasonLowAccuracy,
		},
		{
			name:    "too few confirmed",
			history: terminalOutcomes(2, 1, 0.9),
			reason:  domain.MerchantReasonTooFewConfirmed,
		},
		{
			name:    "confirmed confidence too low",
			history: terminalOutcomes(5, 0, 0.8),
			reason:  domain.MerchantReasonLowConfidence,
		},
		{
			name: "too many negatives despite accuracy",
			history: append(
				terminalOutcomes(18, 0, 0.9),
				outcomes(2, domain.SuggestionStatusUnmatched, domain.MatchTypeSuggested, 0.7)...,
			),
			reason: domain.MerchantReasonTooManyNegatives,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pattern := evaluateMerchantHistory(tc.history)
			if pattern.CanAutoMatch != tc.canAutoMatch {
				t.Fatalf("CanAutoMatch = %v, want %v", pattern.CanAutoMatch, tc.canAutoMatch)
			}
			if pattern.Reason != tc.reason {
				t.Fatalf("Reason = %q, want %q", pattern.Reason, tc.reason)
			}
		})
	}
}

func TestMerchantAnalyzerSkipsDissimilarPairs(t *testing.T) {
	store := newFakeSuggestionStore()
	analyzer := newMerchantAnalyzer(store, nil, 5, time.Now())

	pattern := analyzer.analyze(context.Background(), "team-1", []float32{1}, []float32{1}, 0.5)

	if pattern.Reason != domain.MerchantReasonNotEvaluated {
		t.Fatalf("Reason = %q, want not_evaluated below gate similarity", pattern.Reason)
	}
	if store.merchantCalls != 0 {
		t.Fatalf("store queried %d times, want 0", store.merchantCalls)
	}
}

func TestMerchantAnalyzerMemoizes(t *testing.T) {
	store := newFakeSuggestionStore()
	store.merchantOutcomes = terminalOutcomes(5, 0, 0.9)
	analyzer := newMerchantAnalyzer(store, nil, 5, time.Now())

	first := analyzer.analyze(context.Background(), "team-1", []float32{1}, []float32{1}, 0.91)
	second := analyzer.analyze(context.Background(), "team-1", []float32{1}, []float32{1}, 0.92)

	if !first.CanAutoMatch || !second.CanAutoMatch {
		t.Fatal("expected proven pattern from history")
	}
	if store.merchantCalls != 1 {
		t.Fatalf("store queried %d times, want 1 for same similarity bucket", store.merchantCalls)
	}
}

func TestMerchantAnalyzerBudget(t *testing.T) {
	store := newFakeSuggestionStore()
	store.merchantOutcomes = terminalOutcomes(5, 0, 0.9)
	analyzer := newMerchantAnalyzer(store, nil, 2, time.Now())

	similarities := []float64{0.76, 0.82, 0.88, 0.94}
	var lookups int
	for _, sim := range similarities {
		pattern := analyzer.analyze(context.Background(), "team-1", []float32{1}, []float32{1}, sim)
		if pattern.Reason == domain.MerchantReasonProven {
			lookups++
		}
	}

	if store.merchantCalls != 2 {
		t.Fatalf("store queried %d times, want budget of 2", store.merchantCalls)
	}
	if lookups != 2 {
		t.Fatalf("%d pairs evaluated, want 2", lookups)
	}
}

func TestMerchantAnalyzerLookupFailureDegrades(t *testing.T) {
	store := newFakeSuggestionStore()
	store.merchantErr = errBoom
	analyzer := newMerchantAnalyzer(store, nil, 5, time.Now())

	pattern := analyzer.analyze(context.Background(), "team-1", []float32{1}, []float32{1}, 0.9)

	if pattern.CanAutoMatch {
		t.Fatal("failed lookup must not report a proven merchant")
	}
	if pattern.Reason != domain.MerchantReasonNotEvaluated {
		t.Fatalf("Reason = %q, want not_evaluated", pattern.Reason)
	}
}
