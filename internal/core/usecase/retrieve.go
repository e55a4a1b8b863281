package usecase

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/mkarlsen/reconcile/internal/core/domain"
)

const (
	tierPerfectLimit      = 5
	tierBaseLimit         = 5
	tierSemanticLimit     = 10
	tierConservativeLimit = 10
	candidatePoolTarget   = 15

	// tierBaseAmountTolerance is the absolute base-amount slack used by
	// the perfect base-currency tier to absorb conversion noise.
	tierBaseAmountTolerance = 10.0
)

// dateBand is a retrieval window in days around the document date.
type dateBand struct {
	Before int
	After  int
}

func (b dateBand) bounds(docDate time.Time) (time.Time, time.Time) {
	return docDate.AddDate(0, 0, -b.Before), docDate.AddDate(0, 0, b.After)
}

// Payment-flow windows. Invoices are typically paid after issuance,
// expense receipts trail the transaction that produced them.
func perfectDateBand(t domain.DocumentType) dateBand {
	if t == domain.DocumentTypeInvoice {
		return dateBand{Before: 10, After: 123}
	}
	return dateBand{Before: 93, After: 10}
}

func semanticDateBand(t domain.DocumentType) dateBand {
	if t == domain.DocumentTypeInvoice {
		return dateBand{Before: 17, After: 93}
	}
	return dateBand{Before: 63, After: 17}
}

func conservativeDateBand() dateBand {
	return dateBand{Before: 33, After: 48}
}

// semanticAmountTolerance is the amount slack of the strong-semantic
// tier: max(50, 10% of the document amount).
func semanticAmountTolerance(amount float64) float64 {
	return math.Max(50, 0.1*math.Abs(amount))
}

// looseAmountTolerance is the slack of the conservative tier and the
// reverse embedding tier: max(100, 20% of the amount).
func looseAmountTolerance(amount float64) float64 {
	return math.Max(100, 0.2*math.Abs(amount))
}

// retrieveTransactionCandidates pools transaction candidates for a
// document through successive tiers, widest-precision first. Later tiers
// only run while the pool is under target; tier failures are logged and
// skipped so one bad query cannot sink the whole retrieval.
func (uc *MatchUseCase) retrieveTransactionCandidates(ctx context.Context, item *domain.InboxItem) []domain.TransactionCandidate {
	docType := item.TypeOrDefault()
	pool := make([]domain.TransactionCandidate, 0, candidatePoolTarget)
	seen := make(map[string]struct{})

	collect := func(tier string, cands []domain.TransactionCandidate, err error) {
		if err != nil {
			slog.Warn("candidate tier failed", "tier", tier, "inbox_id", item.ID, "error", err)
			return
		}
		for _, c := range cands {
			if _, ok := seen[c.ID]; ok {
				continue
			}
			seen[c.ID] = struct{}{}
			pool = append(pool, c)
		}
	}

	excluded := func() []string {
		ids := make([]string, 0, len(seen))
		for id := range seen {
			ids = append(ids, id)
		}
		return ids
	}

	// Tier 1: exact amount and currency inside the payment-flow window.
	if item.Amount != nil && item.Currency != "" {
		from, to := perfectDateBand(docType).bounds(item.Date)
		cands, err := uc.candidates.QueryTransactionCandidates(ctx, domain.TransactionCandidateQuery{
			TeamID:               item.TeamID,
			Embedding:            item.Embedding,
			MaxEmbeddingDistance: embeddingWeakMatch,
			ExactAmount:          item.Amount,
			Currency:             item.Currency,
			DateFrom:             from,
			DateTo:               to,
			Limit:                tierPerfectLimit,
		})
		collect("perfect_financial", cands, err)
	}

	// Tier 2: base-currency equality for cross-currency pairs.
	if len(pool) < candidatePoolTarget && item.BaseAmount != nil && item.BaseCurrency != "" {
		from, to := perfectDateBand(docType).bounds(item.Date)
		cands, err := uc.candidates.QueryTransactionCandidates(ctx, domain.TransactionCandidateQuery{
			TeamID:               item.TeamID,
			Embedding:            item.Embedding,
			MaxEmbeddingDistance: embeddingWeakMatch,
			ExactBaseAmount:      item.BaseAmount,
			BaseCurrency:         item.BaseCurrency,
			BaseAmountTolerance:  tierBaseAmountTolerance,
			DateFrom:             from,
			DateTo:               to,
			ExcludeIDs:           excluded(),
			Limit:                tierBaseLimit,
		})
		collect("perfect_base_currency", cands, err)
	}

	// Tier 3: strong semantic similarity with a moderate amount window.
	if len(pool) < candidatePoolTarget {
		from, to := semanticDateBand(docType).bounds(item.Date)
		q := domain.TransactionCandidateQuery{
			TeamID:               item.TeamID,
			Embedding:            item.Embedding,
			MaxEmbeddingDistance: embeddingStrongMatch,
			DateFrom:             from,
			DateTo:               to,
			ExcludeIDs:           excluded(),
			Limit:                tierSemanticLimit,
		}
		if item.Amount != nil {
			q.AmountTarget = *item.Amount
			q.AmountTolerance = semanticAmountTolerance(*item.Amount)
		}
		cands, err := uc.candidates.QueryTransactionCandidates(ctx, q)
		collect("strong_semantic", cands, err)
	}

	// Tier 4: conservative fallback with loose bounds.
	if len(pool) < candidatePoolTarget {
		from, to := conservativeDateBand().bounds(item.Date)
		q := domain.TransactionCandidateQuery{
			TeamID:               item.TeamID,
			Embedding:            item.Embedding,
			MaxEmbeddingDistance: embeddingGoodMatch,
			DateFrom:             from,
			DateTo:               to,
			ExcludeIDs:           excluded(),
			Limit:                tierConservativeLimit,
		}
		if item.Amount != nil {
			q.AmountTarget = *item.Amount
			q.AmountTolerance = looseAmountTolerance(*item.Amount)
		}
		cands, err := uc.candidates.QueryTransactionCandidates(ctx, q)
		collect("conservative", cands, err)
	}

	sortTransactionCandidates(item, pool)
	return pool
}

// sortTransactionCandidates orders the pooled candidates best-first:
// exact financial matches, then date proximity (ties within one day fall
// through), then amount accuracy for imperfect matches, then embedding
// distance.
func sortTransactionCandidates(item *domain.InboxItem, pool []domain.TransactionCandidate) {
	exact := func(c domain.TransactionCandidate) bool {
		return item.Amount != nil && item.Currency != "" &&
			item.Currency == c.Currency && amountsExact(*item.Amount, c.Amount)
	}
	daysApart := func(c domain.TransactionCandidate) float64 {
		return math.Abs(c.Date.Sub(item.Date).Hours() / 24)
	}
	amountGap := func(c domain.TransactionCandidate) float64 {
		if item.Amount == nil {
			return math.Inf(1)
		}
		return math.Abs(math.Abs(*item.Amount) - math.Abs(c.Amount))
	}

	sort.SliceStable(pool, func(i, j int) bool {
		ei, ej := exact(pool[i]), exact(pool[j])
		if ei != ej {
			return ei
		}
		di, dj := daysApart(pool[i]), daysApart(pool[j])
		if math.Abs(di-dj) > 1 {
			return di < dj
		}
		if !ei && !ej {
			ai, aj := amountGap(pool[i]), amountGap(pool[j])
			if ai != aj {
				return ai < aj
			}
		}
		return pool[i].EmbeddingDistance < pool[j].EmbeddingDistance
	})
}

// retrieveInboxCandidates pools document candidates for a transaction.
// The reverse direction runs two tiers: exact financial matches in a
// tight window, then embedding similarity with loose amount bounds.
func (uc *MatchUseCase) retrieveInboxCandidates(ctx context.Context, txn *domain.Transaction) []domain.InboxCandidate {
	pool := make([]domain.InboxCandidate, 0, candidatePoolTarget)
	seen := make(map[string]struct{})

	collect := func(tier string, cands []domain.InboxCandidate, err error) {
		if err != nil {
			slog.Warn("candidate tier failed", "tier", tier, "transaction_id", txn.ID, "error", err)
			return
		}
		for _, c := range cands {
			if _, ok := seen[c.ID]; ok {
				continue
			}
			seen[c.ID] = struct{}{}
			pool = append(pool, c)
		}
	}

	// Tier 1: exact amount and currency; documents usually precede the
	// transaction, so the window skews backwards.
	amount := txn.Amount
	cands, err := uc.candidates.QueryInboxCandidates(ctx, domain.InboxCandidateQuery{
		TeamID:               txn.TeamID,
		Embedding:            txn.Embedding,
		MaxEmbeddingDistance: embeddingWeakMatch,
		ExactAmount:          &amount,
		Currency:             txn.Currency,
		DateFrom:             txn.Date.AddDate(0, 0, -30),
		DateTo:               txn.Date.AddDate(0, 0, 7),
		IncludeMatched:       true,
		Limit:                tierPerfectLimit,
	})
	collect("perfect_financial", cands, err)

	if len(pool) == 0 {
		ids := make([]string, 0, len(seen))
		for id := range seen {
			ids = append(ids, id)
		}
		cands, err := uc.candidates.QueryInboxCandidates(ctx, domain.InboxCandidateQuery{
			TeamID:               txn.TeamID,
			Embedding:            txn.Embedding,
			MaxEmbeddingDistance: embeddingGoodMatch,
			AmountTarget:         amount,
			AmountTolerance:      looseAmountTolerance(txn.Amount),
			DateFrom:             txn.Date.AddDate(0, 0, -90),
			DateTo:               txn.Date.AddDate(0, 0, 90),
			ExcludeIDs:           ids,
			Limit:                20,
		})
		collect("semantic", cands, err)
	}

	return pool
}
