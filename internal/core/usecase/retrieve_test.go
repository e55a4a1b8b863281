package usecase

import (
	"context"
	"testing"

	"github.com/mkarlsen/reconcile/internal/core/domain"
)

func TestRetrieveTransactionCandidatesTierParameters(t *testing.T) {
	candidates := newFakeCandidateStore()
	item := invoiceItem()
	item.BaseAmount = fptr(1000)
	item.BaseCurrency = "EUR"
	candidates.items[item.ID] = item
	uc := newTestMatcher(candidates, newFakeSuggestionStore())

	uc.retrieveTransactionCandidates(context.Background(), item)

	if len(candidates.txnQueries) != 4 {
		t.Fatalf("queries = %d, want all four tiers on an empty pool", len(candidates.txnQueries))
	}

	perfect := candidates.txnQueries[0]
	if perfect.ExactAmount == nil || *perfect.ExactAmount != 1000 || perfect.Currency != "EUR" {
		t.Fatalf("perfect tier missing exact amount filter: %+v", perfect)
	}
	if perfect.Limit != tierPerfectLimit || perfect.MaxEmbeddingDistance != embeddingWeakMatch {
		t.Fatalf("perfect tier bounds: %+v", perfect)
	}
	if got := perfect.DateFrom; !got.Equal(item.Date.AddDate(0, 0, -10)) {
		t.Fatalf("invoice window start = %v", got)
	}
	if got := perfect.DateTo; !got.Equal(item.Date.AddDate(0, 0, 123)) {
		t.Fatalf("invoice window end = %v", got)
	}

	base := candidates.txnQueries[1]
	if base.ExactBaseAmount == nil || base.BaseCurrency != "EUR" || base.BaseAmountTolerance != tierBaseAmountTolerance {
		t.Fatalf("base tier filter: %+v", base)
	}

	semantic := candidates.txnQueries[2]
	if semantic.MaxEmbeddingDistance != embeddingStrongMatch || semantic.AmountTolerance != 100 {
		t.Fatalf("semantic tier bounds: %+v", semantic)
	}

	conservative := candidates.txnQueries[3]
	if conservative.MaxEmbeddingDistance != embeddingGoodMatch || conservative.AmountTolerance != 200 {
		t.Fatalf("conservative tier bounds: %+v", conservative)
	}
}

func TestRetrieveTransactionCandidatesEarlyExit(t *testing.T) {
	candidates := newFakeCandidateStore()
	item := invoiceItem()
	item.BaseAmount = fptr(1000)
	item.BaseCurrency = "EUR"
	candidates.items[item.ID] = item

	full := make([]domain.TransactionCandidate, candidatePoolTarget)
	for i := range full {
		full[i] = transactionCandidate("txn-"+string(rune('a'+i)), -1000, "EUR", day("2024-03-31"), 0.1)
	}
	candidates.txnTiers = [][]domain.TransactionCandidate{full}
	uc := newTestMatcher(candidates, newFakeSuggestionStore())

	pool := uc.retrieveTransactionCandidates(context.Background(), item)

	if len(pool) != candidatePoolTarget {
		t.Fatalf("pool = %d, want %d", len(pool), candidatePoolTarget)
	}
	if len(candidates.txnQueries) != 1 {
		t.Fatalf("queries = %d, want later tiers skipped once the pool is full", len(candidates.txnQueries))
	}
}

func TestRetrieveTransactionCandidatesDeduplicates(t *testing.T) {
	candidates := newFakeCandidateStore()
	item := invoiceItem()
	candidates.items[item.ID] = item

	dup := transactionCandidate("txn-1", -1000, "EUR", day("2024-03-31"), 0.1)
	candidates.txnTiers = [][]domain.TransactionCandidate{
		{dup},
		{dup, transactionCandidate("txn-2", -995, "EUR", day("2024-03-30"), 0.2)},
	}
	uc := newTestMatcher(candidates, newFakeSuggestionStore())

	pool := uc.retrieveTransactionCandidates(context.Background(), item)

	ids := make(map[string]int)
	for _, c := range pool {
		ids[c.ID]++
	}
	if ids["txn-1"] != 1 {
		t.Fatalf("txn-1 appears %d times, want deduplicated", ids["txn-1"])
	}
}

func TestSortTransactionCandidates(t *testing.T) {
	item := invoiceItem()
	pool := []domain.TransactionCandidate{
		transactionCandidate("close-amount", -990, "EUR", day("2024-03-31"), 0.05),
		transactionCandidate("exact-late", -1000, "EUR", day("2024-05-15"), 0.3),
		transactionCandidate("exact-close", -1000, "EUR", day("2024-03-30"), 0.2),
	}

	sortTransactionCandidates(item, pool)

	if pool[0].ID != "exact-close" || pool[1].ID != "exact-late" {
		t.Fatalf("exact financial matches must sort first by date proximity, got %s, %s, %s",
			pool[0].ID, pool[1].ID, pool[2].ID)
	}
}

func TestRetrieveInboxCandidatesFallsBackToSemanticTier(t *testing.T) {
	candidates := newFakeCandidateStore()
	txn := &domain.Transaction{
		ID: "txn-1", TeamID: "team-1", Amount: -1000, Currency: "EUR",
		Date: day("2024-03-31"), Embedding: []float32{0.1},
	}
	candidates.inboxTiers = [][]domain.InboxCandidate{
		nil,
		{{InboxItem: *invoiceItem(), EmbeddingDistance: 0.2}},
	}
	uc := newTestMatcher(candidates, newFakeSuggestionStore())

	pool := uc.retrieveInboxCandidates(context.Background(), txn)

	if len(pool) != 1 {
		t.Fatalf("pool = %d, want semantic fallback hit", len(pool))
	}
	if len(candidates.inboxQueries) != 2 {
		t.Fatalf("queries = %d, want exact tier then semantic tier", len(candidates.inboxQueries))
	}
	exact := candidates.inboxQueries[0]
	if exact.ExactAmount == nil || !exact.IncludeMatched {
		t.Fatalf("exact tier filter: %+v", exact)
	}
	semantic := candidates.inboxQueries[1]
	if semantic.AmountTolerance != 200 || semantic.MaxEmbeddingDistance != embeddingGoodMatch {
		t.Fatalf("semantic tier bounds: %+v", semantic)
	}
}
