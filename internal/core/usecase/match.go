package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkarlsen/reconcile/internal/core/domain"
	"github.com/mkarlsen/reconcile/internal/core/ports"
)

// MatchConfig tunes the non-algorithmic knobs of the engine.
type MatchConfig struct {
	// MerchantAnalysisTopK bounds merchant-history lookups per matching
	// invocation.
	MerchantAnalysisTopK int
	// CalibrationCacheTTL bounds how long a computed team calibration
	// is reused.
	CalibrationCacheTTL time.Duration
	// MerchantQueryRate throttles merchant-history queries across
	// invocations. Zero disables throttling.
	MerchantQueryRate rate.Limit
	MerchantQueryBurst int
}

func (c MatchConfig) withDefaults() MatchConfig {
	if c.MerchantAnalysisTopK <= 0 {
		c.MerchantAnalysisTopK = 5
	}
	if c.CalibrationCacheTTL <= 0 {
		c.CalibrationCacheTTL = 5 * time.Minute
	}
	if c.MerchantQueryBurst <= 0 {
		c.MerchantQueryBurst = 10
	}
	return c
}

// MatchUseCase implements ports.Matcher: best-effort reconciliation of
// inbox documents against bank transactions.
type MatchUseCase struct {
	candidates   ports.CandidateStore
	suggestions  ports.SuggestionStore
	calibrations *calibrationCache
	limiter      *rate.Limiter
	topK         int
	clock        func() time.Time
}

func NewMatchUseCase(candidates ports.CandidateStore, suggestions ports.SuggestionStore, cfg MatchConfig) *MatchUseCase {
	cfg = cfg.withDefaults()
	var limiter *rate.Limiter
	if cfg.MerchantQueryRate > 0 {
		limiter = rate.NewLimiter(cfg.MerchantQueryRate, cfg.MerchantQueryBurst)
	}
	return &MatchUseCase{
		candidates:   candidates,
		suggestions:  suggestions,
		calibrations: newCalibrationCache(cfg.CalibrationCacheTTL),
		limiter:      limiter,
		topK:         cfg.MerchantAnalysisTopK,
		clock:        time.Now,
	}
}

var _ ports.Matcher = (*MatchUseCase)(nil)

// FindBestTransactionMatch finds the best transaction for an inbox
// document. Best effort: missing prerequisites and query failures log
// and return nil, they never propagate.
func (uc *MatchUseCase) FindBestTransactionMatch(ctx context.Context, teamID, inboxID string) *domain.MatchResult {
	log := slog.With("team_id", teamID, "inbox_id", inboxID)

	item, err := uc.candidates.GetInboxItem(ctx, teamID, inboxID)
	if err != nil {
		if errors.Is(err, domain.ErrInboxItemNotFound) {
			log.Warn("inbox item not found")
		} else {
			log.Error("inbox item lookup failed", "error", err)
		}
		return nil
	}
	if !item.Matchable() {
		log.Warn("match prerequisites missing", "has_embedding", len(item.Embedding) > 0)
		return nil
	}

	cal := uc.teamCalibration(ctx, teamID)
	pool := uc.retrieveTransactionCandidates(ctx, item)
	if len(pool) == 0 {
		log.Debug("no candidates retrieved")
		return nil
	}

	analyzer := newMerchantAnalyzer(uc.suggestions, uc.limiter, uc.topK, uc.clock())
	docSide := inboxFinancialSide(item)

	var best *domain.TransactionCandidate
	var bestScored scoredCandidate
	for i := range pool {
		cand := &pool[i]
		if cand.Date.IsZero() || len(cand.Embedding) == 0 {
			log.Debug("skipping malformed candidate", "transaction_id", cand.ID)
			continue
		}

		txnSide := transactionFinancialSide(&cand.Transaction)
		scores := candidateScores{
			Embedding: embeddingSimilarity(cand.EmbeddingDistance, len(item.Embedding) > 0 && len(cand.Embedding) > 0),
			Amount:    calculateAmountScore(docSide, txnSide),
			Currency:  calculateCurrencyScore(docSide, txnSide),
			Date:      calculateDateScore(item.Date, cand.Date, item.TypeOrDefault()),
		}
		flags := financialFlags(docSide, txnSide)
		pattern := analyzer.analyze(ctx, teamID, item.Embedding, cand.Embedding, scores.Embedding)
		scored := scoredCandidate{
			Scores:     scores,
			Flags:      flags,
			Confidence: calculateConfidence(scores, flags, pattern),
			Pattern:    pattern,
		}

		if scored.Confidence < cal.SuggestedThreshold {
			continue
		}
		if best == nil || scored.beats(bestScored) {
			best = cand
			bestScored = scored
		}
	}
	if best == nil {
		log.Debug("no candidate above threshold", "pool_size", len(pool))
		return nil
	}

	dismissed, err := uc.suggestions.WasDismissed(ctx, teamID, item.ID, best.ID)
	if err != nil {
		log.Error("dismissal lookup failed", "error", err)
		return nil
	}
	if dismissed {
		log.Debug("best candidate previously dismissed", "transaction_id", best.ID)
		return nil
	}

	amount := best.Amount
	result := &domain.MatchResult{
		Direction:        domain.DirectionForward,
		TransactionID:    best.ID,
		Name:             best.Name,
		Amount:           &amount,
		Currency:         best.Currency,
		Date:             best.Date,
		EmbeddingScore:   round3(bestScored.Scores.Embedding),
		AmountScore:      round3(bestScored.Scores.Amount),
		CurrencyScore:    round3(bestScored.Scores.Currency),
		DateScore:        round3(bestScored.Scores.Date),
		ConfidenceScore:  round3(bestScored.Confidence),
		MatchType:        determineMatchType(bestScored.Confidence, bestScored.Scores, bestScored.Flags, bestScored.Pattern, cal.AutoMatchThreshold),
		IsAlreadyMatched: best.IsAlreadyMatched,
	}
	log.Info("match found",
		"transaction_id", best.ID,
		"confidence", result.ConfidenceScore,
		"match_type", result.MatchType,
		"pool_size", len(pool))
	return result
}

// FindBestInboxMatch is the reverse direction: the best inbox document
// for a transaction. Same scoring, sides swapped.
func (uc *MatchUseCase) FindBestInboxMatch(ctx context.Context, teamID, transactionID string) *domain.MatchResult {
	log := slog.With("team_id", teamID, "transaction_id", transactionID)

	txn, err := uc.candidates.GetTransaction(ctx, teamID, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			log.Warn("transaction not found")
		} else {
			log.Error("transaction lookup failed", "error", err)
		}
		return nil
	}
	if !txn.Matchable() {
		log.Warn("match prerequisites missing", "has_embedding", len(txn.Embedding) > 0)
		return nil
	}

	cal := uc.teamCalibration(ctx, teamID)
	pool := uc.retrieveInboxCandidates(ctx, txn)
	if len(pool) == 0 {
		log.Debug("no candidates retrieved")
		return nil
	}

	analyzer := newMerchantAnalyzer(uc.suggestions, uc.limiter, uc.topK, uc.clock())
	txnSide := transactionFinancialSide(txn)

	var best *domain.InboxCandidate
	var bestScored scoredCandidate
	for i := range pool {
		cand := &pool[i]
		if cand.Date.IsZero() || len(cand.Embedding) == 0 {
			log.Debug("skipping malformed candidate", "inbox_id", cand.ID)
			continue
		}

		docSide := inboxFinancialSide(&cand.InboxItem)
		scores := candidateScores{
			Embedding: embeddingSimilarity(cand.EmbeddingDistance, len(txn.Embedding) > 0 && len(cand.Embedding) > 0),
			Amount:    calculateAmountScore(docSide, txnSide),
			Currency:  calculateCurrencyScore(docSide, txnSide),
			Date:      calculateDateScore(cand.Date, txn.Date, cand.TypeOrDefault()),
		}
		flags := financialFlags(docSide, txnSide)
		pattern := analyzer.analyze(ctx, teamID, cand.Embedding, txn.Embedding, scores.Embedding)
		scored := scoredCandidate{
			Scores:     scores,
			Flags:      flags,
			Confidence: calculateConfidence(scores, flags, pattern),
			Pattern:    pattern,
		}

		if scored.Confidence < cal.SuggestedThreshold {
			continue
		}
		if best == nil || scored.beats(bestScored) {
			best = cand
			bestScored = scored
		}
	}
	if best == nil {
		log.Debug("no candidate above threshold", "pool_size", len(pool))
		return nil
	}

	dismissed, err := uc.suggestions.WasDismissed(ctx, teamID, best.ID, txn.ID)
	if err != nil {
		log.Error("dismissal lookup failed", "error", err)
		return nil
	}
	if dismissed {
		log.Debug("best candidate previously dismissed", "inbox_id", best.ID)
		return nil
	}

	result := &domain.MatchResult{
		Direction:        domain.DirectionReverse,
		InboxID:          best.ID,
		Name:             best.DisplayName,
		Amount:           best.Amount,
		Currency:         best.Currency,
		Date:             best.Date,
		EmbeddingScore:   round3(bestScored.Scores.Embedding),
		AmountScore:      round3(bestScored.Scores.Amount),
		CurrencyScore:    round3(bestScored.Scores.Currency),
		DateScore:        round3(bestScored.Scores.Date),
		ConfidenceScore:  round3(bestScored.Confidence),
		MatchType:        determineMatchType(bestScored.Confidence, bestScored.Scores, bestScored.Flags, bestScored.Pattern, cal.AutoMatchThreshold),
		IsAlreadyMatched: best.IsAlreadyMatched,
	}
	log.Info("match found",
		"inbox_id", best.ID,
		"confidence", result.ConfidenceScore,
		"match_type", result.MatchType,
		"pool_size", len(pool))
	return result
}
