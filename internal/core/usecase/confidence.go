package usecase

import (
	"math"

	"github.com/mkarlsen/reconcile/internal/core/domain"
)

// weightProfile fixes the relative importance of the four sub-scores.
type weightProfile struct {
	Embedding float64
	Amount    float64
	Currency  float64
	Date      float64
}

var (
	// defaultWeights lean on semantic similarity when the financial
	// signals are ambiguous.
	defaultWeights = weightProfile{Embedding: 0.50, Amount: 0.35, Currency: 0.10, Date: 0.05}

	// perfectFinancialWeights shift trust onto the financial signals
	// once amount and currency agree exactly.
	perfectFinancialWeights = weightProfile{Embedding: 0.25, Amount: 0.45, Currency: 0.15, Date: 0.15}
)

// candidateScores bundles the four sub-scores of one candidate pair.
type candidateScores struct {
	Embedding float64
	Amount    float64
	Currency  float64
	Date      float64
}

// matchFlags are structural properties of the pair that gate floors and
// the final match type.
type matchFlags struct {
	PerfectFinancial       bool
	ExcellentCrossCurrency bool
	CurrenciesDiffer       bool
}

func financialFlags(doc, txn financialSide) matchFlags {
	var f matchFlags
	f.CurrenciesDiffer = doc.Currency != txn.Currency
	if doc.Amount != nil && txn.Amount != nil &&
		doc.Currency != "" && doc.Currency == txn.Currency &&
		amountsExact(*doc.Amount, *txn.Amount) {
		f.PerfectFinancial = true
	}
	if f.CurrenciesDiffer &&
		doc.BaseAmount != nil && txn.BaseAmount != nil &&
		doc.BaseCurrency != "" && doc.BaseCurrency == txn.BaseCurrency &&
		amountsExact(*doc.BaseAmount, *txn.BaseAmount) {
		f.ExcellentCrossCurrency = true
	}
	return f
}

// floorRule lifts the weighted confidence to a minimum when a structural
// condition holds. Rules are evaluated in order and the first hit wins.
type floorRule struct {
	Name    string
	Floor   float64
	Applies func(f matchFlags, s candidateScores) bool
}

var confidenceFloors = []floorRule{
	{
		Name:  "perfect_financial_strong_semantic",
		Floor: 0.96,
		Applies: func(f matchFlags, s candidateScores) bool {
			return f.PerfectFinancial && s.Embedding > 0.8 && s.Date > 0.7
		},
	},
	{
		Name:  "cross_currency_strong_semantic",
		Floor: 0.95,
		Applies: func(f matchFlags, s candidateScores) bool {
			return f.ExcellentCrossCurrency && s.Embedding > 0.8 && s.Date > 0.7
		},
	},
	{
		Name:  "perfect_financial_reasonable_date",
		Floor: 0.93,
		Applies: func(f matchFlags, s candidateScores) bool {
			return f.PerfectFinancial && s.Date > 0.5
		},
	},
	{
		Name:  "strong_financial_semantic",
		Floor: 0.88,
		Applies: func(f matchFlags, s candidateScores) bool {
			return (f.PerfectFinancial || f.ExcellentCrossCurrency) && s.Embedding > 0.7 && s.Date > 0.4
		},
	},
	{
		Name:  "good_alignment",
		Floor: 0.82,
		Applies: func(f matchFlags, s candidateScores) bool {
			return s.Amount > 0.85 && s.Embedding > 0.75 && s.Date > 0.3
		},
	},
}

// merchantGateSimilarity is the embedding similarity above which a
// candidate is considered a recurring-merchant pairing and must pass the
// proven-merchant gate before auto-matching.
const merchantGateSimilarity = 0.75

const (
	merchantBonusAccuracy     = 0.95
	merchantBonusMinConfirmed = 5
	unprovenMerchantCap       = 0.85
)

// calculateConfidence computes the final confidence for one candidate
// pair given its sub-scores, structural flags and merchant history.
func calculateConfidence(s candidateScores, f matchFlags, pattern domain.MerchantPattern) float64 {
	w := defaultWeights
	if f.PerfectFinancial {
		w = perfectFinancialWeights
	}

	conf := s.Embedding*w.Embedding + s.Amount*w.Amount + s.Currency*w.Currency + s.Date*w.Date

	for _, rule := range confidenceFloors {
		if rule.Applies(f, s) {
			conf = math.Max(conf, rule.Floor)
			break
		}
	}

	if f.CurrenciesDiffer && s.Currency < 0.7 {
		if s.Embedding >= 0.85 {
			conf *= 0.95
		} else {
			conf *= 0.90
		}
	}
	if s.Date < 0.2 {
		conf *= 0.85
	}

	if s.Embedding > 0.85 {
		conf = math.Min(1.0, conf+0.08)
	} else if s.Embedding > 0.75 {
		conf = math.Min(1.0, conf+0.05)
	}

	// Cross-currency matches with strong semantics keep a floor even
	// after the penalty pass.
	if f.ExcellentCrossCurrency && s.Embedding >= 0.8 {
		conf = math.Max(conf, 0.85)
	}

	// Recurring-merchant gate: without a proven track record the
	// confidence is capped below the auto-match range; a highly
	// accurate history earns a small bonus.
	if s.Embedding >= merchantGateSimilarity {
		if !pattern.CanAutoMatch {
			conf = math.Min(conf, unprovenMerchantCap)
		} else if pattern.Accuracy >= merchantBonusAccuracy && pattern.ConfirmedCount >= merchantBonusMinConfirmed {
			conf = math.Min(1.0, conf+0.03)
		}
	}

	return math.Max(0, math.Min(1, conf))
}

// determineMatchType maps a confidence onto the match tiers. Auto-match
// additionally requires a proven merchant and strong structural signals.
func determineMatchType(conf float64, s candidateScores, f matchFlags, pattern domain.MerchantPattern, autoThreshold float64) domain.MatchType {
	if conf >= autoThreshold {
		if pattern.CanAutoMatch && s.Embedding >= 0.85 && s.Date >= 0.7 &&
			(f.PerfectFinancial || f.ExcellentCrossCurrency) {
			return domain.MatchTypeAutoMatched
		}
		return domain.MatchTypeHighConfidence
	}
	if conf >= 0.72 {
		return domain.MatchTypeHighConfidence
	}
	return domain.MatchTypeSuggested
}

// scoredCandidate is a candidate pair after full scoring, ready for
// best-candidate selection.
type scoredCandidate struct {
	Scores     candidateScores
	Flags      matchFlags
	Confidence float64
	Pattern    domain.MerchantPattern
}

// beats decides whether the challenger should replace the current best.
// Confidence dominates, with tie-breaks preferring perfect financial
// matches and, within near-ties, better date then amount alignment.
func (c scoredCandidate) beats(best scoredCandidate) bool {
	if c.Confidence > best.Confidence+0.001 {
		return true
	}
	if c.Flags.PerfectFinancial && !best.Flags.PerfectFinancial &&
		c.Confidence >= best.Confidence-0.05 {
		return true
	}
	confGap := math.Abs(c.Confidence - best.Confidence)
	if confGap <= 0.01 && c.Scores.Date > best.Scores.Date+0.1 {
		return true
	}
	if c.Flags.PerfectFinancial && best.Flags.PerfectFinancial &&
		confGap <= 0.01 && c.Scores.Date > best.Scores.Date+0.05 {
		return true
	}
	if confGap <= 0.005 && c.Scores.Amount > best.Scores.Amount+0.05 {
		return true
	}
	return false
}
