package usecase

import (
	"math"
	"testing"

	"github.com/mkarlsen/reconcile/internal/core/domain"
)

func provenPattern() domain.MerchantPattern {
	return domain.MerchantPattern{
		CanAutoMatch:           true,
		Accuracy:               0.92,
		ConfirmedCount:         4,
		TotalCount:             5,
		AvgConfirmedConfidence: 0.9,
		Reason:                 domain.MerchantReasonProven,
	}
}

func TestCalculateConfidencePerfectFinancial(t *testing.T) {
	scores := candidateScores{Embedding: 0.9, Amount: 1.0, Currency: 1.0, Date: 0.98}
	flags := matchFlags{PerfectFinancial: true}

	got := calculateConfidence(scores, flags, provenPattern())
	if !almost(got, 1.0) {
		t.Fatalf("confidence = %v, want 1.0", got)
	}
}

func TestCalculateConfidenceUnprovenMerchantCap(t *testing.T) {
	scores := candidateScores{Embedding: 0.95, Amount: 1.0, Currency: 1.0, Date: 1.0}
	flags := matchFlags{PerfectFinancial: true}
	unproven := domain.MerchantPattern{Reason: domain.MerchantReasonInsufficientHistory}

	got := calculateConfidence(scores, flags, unproven)
	if !almost(got, 0.85) {
		t.Fatalf("confidence = %v, want capped at 0.85", got)
	}
}

func TestCalculateConfidenceProvenBonus(t *testing.T) {
	scores := candidateScores{Embedding: 0.76, Amount: 0.7, Currency: 1.0, Date: 0.6}
	var flags matchFlags

	base := calculateConfidence(scores, flags, provenPattern())

	bonus := provenPattern()
	bonus.Accuracy = 0.96
	bonus.ConfirmedCount = 6
	withBonus := calculateConfidence(scores, flags, bonus)

	if !almost(withBonus-base, 0.03) {
		t.Fatalf("bonus delta = %v, want 0.03", withBonus-base)
	}
}

func TestCalculateConfidencePenalties(t *testing.T) {
	t.Run("bad date multiplies down", func(t *testing.T) {
		scores := candidateScores{Embedding: 0.6, Amount: 0.8, Currency: 1.0, Date: 0.1}
		got := calculateConfidence(scores, matchFlags{}, notEvaluatedPattern())
		want := (0.6*0.50 + 0.8*0.35 + 1.0*0.10 + 0.1*0.05) * 0.85
		if !almost(got, want) {
			t.Fatalf("confidence = %v, want %v", got, want)
		}
	})

	t.Run("unresolved currency pair", func(t *testing.T) {
		scores := candidateScores{Embedding: 0.7, Amount: 0.4, Currency: 0.2, Date: 0.8}
		flags := matchFlags{CurrenciesDiffer: true}
		got := calculateConfidence(scores, flags, notEvaluatedPattern())
		want := (0.7*0.50 + 0.4*0.35 + 0.2*0.10 + 0.8*0.05) * 0.90
		if !almost(got, want) {
			t.Fatalf("confidence = %v, want %v", got, want)
		}
	})

	t.Run("strong semantics soften the currency penalty", func(t *testing.T) {
		scores := candidateScores{Embedding: 0.87, Amount: 0.4, Currency: 0.2, Date: 0.8}
		flags := matchFlags{CurrenciesDiffer: true}
		got := calculateConfidence(scores, flags, provenPattern())
		want := (0.87*0.50+0.4*0.35+0.2*0.10+0.8*0.05)*0.95 + 0.08
		if !almost(got, want) {
			t.Fatalf("confidence = %v, want %v", got, want)
		}
	})
}

func TestCalculateConfidenceFloorCascade(t *testing.T) {
	tests := []struct {
		name   string
		scores candidateScores
		flags  matchFlags
		floor  float64
	}{
		{
			name:   "perfect financial strong semantic",
			scores: candidateScores{Embedding: 0.82, Amount: 1.0, Currency: 1.0, Date: 0.75},
			flags:  matchFlags{PerfectFinancial: true},
			floor:  0.96,
		},
		{
			name:   "cross currency strong semantic",
			scores: candidateScores{Embedding: 0.82, Amount: 1.0, Currency: 0.7, Date: 0.75},
			flags:  matchFlags{ExcellentCrossCurrency: true, CurrenciesDiffer: true},
			floor:  0.95,
		},
		{
			name:   "perfect financial reasonable date",
			scores: candidateScores{Embedding: 0.5, Amount: 1.0, Currency: 1.0, Date: 0.6},
			flags:  matchFlags{PerfectFinancial: true},
			floor:  0.93,
		},
		{
			name:   "strong financial semantic",
			scores: candidateScores{Embedding: 0.72, Amount: 1.0, Currency: 1.0, Date: 0.45},
			flags:  matchFlags{PerfectFinancial: true},
			floor:  0.88,
		},
		{
			name:   "good alignment without perfect flag",
			scores: candidateScores{Embedding: 0.76, Amount: 0.9, Currency: 1.0, Date: 0.35},
			flags:  matchFlags{},
			floor:  0.82,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := calculateConfidence(tc.scores, tc.flags, provenPattern())
			if got < tc.floor {
				t.Fatalf("confidence = %v, want at least floor %v", got, tc.floor)
			}
		})
	}
}

func TestCalculateConfidenceBounds(t *testing.T) {
	extremes := []candidateScores{
		{},
		{Embedding: 1, Amount: 1, Currency: 1, Date: 1},
		{Embedding: 1, Amount: 0, Currency: 0, Date: 0},
	}
	for _, s := range extremes {
		for _, f := range []matchFlags{{}, {PerfectFinancial: true}, {ExcellentCrossCurrency: true, CurrenciesDiffer: true}} {
			got := calculateConfidence(s, f, provenPattern())
			if got < 0 || got > 1 {
				t.Fatalf("confidence %v out of [0,1] for scores %+v flags %+v", got, s, f)
			}
		}
	}
}

func TestDetermineMatchType(t *testing.T) {
	strong := candidateScores{Embedding: 0.9, Amount: 1.0, Currency: 1.0, Date: 0.8}
	perfect := matchFlags{PerfectFinancial: true}

	if got := determineMatchType(0.95, strong, perfect, provenPattern(), autoMatchThreshold); got != domain.MatchTypeAutoMatched {
		t.Fatalf("match type = %v, want auto_matched", got)
	}
	if got := determineMatchType(0.95, strong, perfect, notEvaluatedPattern(), autoMatchThreshold); got != domain.MatchTypeHighConfidence {
		t.Fatalf("unproven merchant must not auto-match, got %v", got)
	}
	weakDate := strong
	weakDate.Date = 0.5
	if got := determineMatchType(0.95, weakDate, perfect, provenPattern(), autoMatchThreshold); got != domain.MatchTypeHighConfidence {
		t.Fatalf("weak date must not auto-match, got %v", got)
	}
	if got := determineMatchType(0.80, strong, perfect, provenPattern(), autoMatchThreshold); got != domain.MatchTypeHighConfidence {
		t.Fatalf("match type = %v, want high_confidence", got)
	}
	if got := determineMatchType(0.65, strong, perfect, provenPattern(), autoMatchThreshold); got != domain.MatchTypeSuggested {
		t.Fatalf("match type = %v, want suggested", got)
	}
}

func TestScoredCandidateBeats(t *testing.T) {
	base := scoredCandidate{
		Scores:     candidateScores{Embedding: 0.8, Amount: 0.8, Currency: 1.0, Date: 0.5},
		Confidence: 0.80,
	}

	t.Run("clearly higher confidence wins", func(t *testing.T) {
		c := base
		c.Confidence = 0.82
		if !c.beats(base) {
			t.Fatal("higher confidence should win")
		}
	})

	t.Run("noise-level confidence edge does not win", func(t *testing.T) {
		c := base
		c.Confidence = 0.8005
		if c.beats(base) {
			t.Fatal("sub-epsilon edge should not displace the incumbent")
		}
	})

	t.Run("perfect financial upsets within five points", func(t *testing.T) {
		c := base
		c.Confidence = 0.76
		c.Flags.PerfectFinancial = true
		if !c.beats(base) {
			t.Fatal("perfect financial within 0.05 should win")
		}
		c.Confidence = 0.74
		if c.beats(base) {
			t.Fatal("perfect financial more than 0.05 behind should lose")
		}
	})

	t.Run("near tie broken by date", func(t *testing.T) {
		c := base
		c.Confidence = 0.795
		c.Scores.Date = 0.65
		if !c.beats(base) {
			t.Fatal("materially better date should break the tie")
		}
	})

	t.Run("very close tie broken by amount", func(t *testing.T) {
		c := base
		c.Confidence = 0.798
		c.Scores.Amount = 0.9
		if !c.beats(base) {
			t.Fatal("materially better amount should break the tie")
		}
	})
}

func TestRound3(t *testing.T) {
	if got := round3(0.123456); math.Abs(got-0.123) > 1e-12 {
		t.Fatalf("round3 = %v", got)
	}
}
