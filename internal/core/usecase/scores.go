package usecase

import (
	"math"
	"time"

	"github.com/mkarlsen/reconcile/internal/core/domain"
)

// Embedding distance thresholds (cosine distance, lower is closer) used
// by candidate retrieval.
const (
	embeddingPerfectMatch = 0.15
	embeddingStrongMatch  = 0.35
	embeddingGoodMatch    = 0.45
	embeddingWeakMatch    = 0.6
)

// exactAmountTolerance is the absolute difference under which two
// amounts are treated as identical.
const exactAmountTolerance = 0.01

// neutralScore is returned when a signal is missing. A missing amount or
// embedding must not kill an otherwise strong financial match.
const neutralScore = 0.5

// financialSide is the amount/currency view of either record. Raw keeps
// the signed value for sign-plausibility checks; transaction amounts are
// signed while document amounts are stored unsigned.
type financialSide struct {
	Amount       *float64
	Currency     string
	BaseAmount   *float64
	BaseCurrency string
}

func inboxFinancialSide(item *domain.InboxItem) financialSide {
	return financialSide{
		Amount:       item.Amount,
		Currency:     item.Currency,
		BaseAmount:   item.BaseAmount,
		BaseCurrency: item.BaseCurrency,
	}
}

func transactionFinancialSide(txn *domain.Transaction) financialSide {
	amount := txn.Amount
	return financialSide{
		Amount:       &amount,
		Currency:     txn.Currency,
		BaseAmount:   txn.BaseAmount,
		BaseCurrency: txn.BaseCurrency,
	}
}

type amountMatchKind int

const (
	kindExactCurrency amountMatchKind = iota
	kindBaseCurrency
	kindCrossCurrencyBase
	kindDifferentCurrency
	kindFallback
)

// amountsExact reports equality within the exact tolerance. The relative
// guard keeps cent-level noise on larger amounts from breaking the
// perfect-financial flag.
func amountsExact(a, b float64) bool {
	a, b = math.Abs(a), math.Abs(b)
	diff := math.Abs(a - b)
	if diff <= exactAmountTolerance {
		return true
	}
	maxAmount := math.Max(a, b)
	return maxAmount > 0 && diff/maxAmount <= 0.001
}

func calculateAmountScore(doc, txn financialSide) float64 {
	if doc.Amount == nil || txn.Amount == nil {
		return neutralScore
	}

	docAbs := math.Abs(*doc.Amount)
	txnAbs := math.Abs(*txn.Amount)

	if doc.Currency != "" && doc.Currency == txn.Currency {
		return amountDifferenceScore(docAbs, txnAbs, kindExactCurrency)
	}

	// Base-currency fallback: only usable when both sides normalize to
	// the same base currency and the normalized amounts agree within the
	// loose conversion tolerance.
	if doc.BaseAmount != nil && txn.BaseAmount != nil &&
		doc.BaseCurrency != "" && doc.BaseCurrency == txn.BaseCurrency {
		baseDoc := math.Abs(*doc.BaseAmount)
		baseTxn := math.Abs(*txn.BaseAmount)
		tolerance := math.Max(50, 0.15*baseDoc)
		if math.Abs(baseDoc-baseTxn) <= tolerance {
			kind := kindBaseCurrency
			if doc.Currency != txn.Currency {
				kind = kindCrossCurrencyBase
			}
			return amountDifferenceScore(baseDoc, baseTxn, kind)
		}
	}

	if doc.Currency != txn.Currency {
		// Opposite signs with a wildly different magnitude is almost
		// certainly a false pairing across currencies.
		oppositeSigns := (*doc.Amount > 0 && *txn.Amount < 0) || (*doc.Amount < 0 && *txn.Amount > 0)
		if oppositeSigns && minNonZero(docAbs, txnAbs) > 0 &&
			math.Max(docAbs, txnAbs)/minNonZero(docAbs, txnAbs) > 5 {
			return 0.1
		}
		raw := amountDifferenceScore(docAbs, txnAbs, kindDifferentCurrency)
		return raw * 0.4
	}

	return amountDifferenceScore(docAbs, txnAbs, kindFallback)
}

func minNonZero(a, b float64) float64 {
	return math.Min(a, b)
}

// amountDifferenceScore maps the relative difference between two
// absolute amounts onto a decay curve, with a small bonus for kinds that
// imply a trustworthy currency resolution.
func amountDifferenceScore(a, b float64, kind amountMatchKind) float64 {
	diff := math.Abs(a - b)
	maxAmount := math.Max(a, b)
	if maxAmount == 0 {
		if diff == 0 {
			return 1
		}
		return 0
	}

	var base float64
	percentageDiff := diff / maxAmount
	switch {
	case diff <= exactAmountTolerance:
		base = 1.0
	case percentageDiff <= 0.01:
		base = 0.98
	case percentageDiff <= 0.02:
		base = 0.95
	case percentageDiff <= 0.025:
		base = 0.92
	case percentageDiff <= 0.03:
		base = 0.9
	case percentageDiff <= 0.05:
		base = 0.85
	case percentageDiff <= 0.1:
		base = 0.6
	case percentageDiff <= 0.2:
		base = 0.3
	default:
		base = 0
	}

	switch kind {
	case kindExactCurrency:
		return math.Min(1.0, base*1.1)
	case kindBaseCurrency:
		return math.Min(1.0, base*1.05)
	case kindCrossCurrencyBase:
		return math.Min(1.0, base*1.03)
	default:
		return base
	}
}

func calculateCurrencyScore(doc, txn financialSide) float64 {
	if doc.Currency == "" || txn.Currency == "" {
		return neutralScore
	}
	if doc.Currency == txn.Currency {
		return 1.0
	}
	// Cross-currency pair reconcilable through a shared base currency.
	if doc.BaseCurrency != "" && doc.BaseCurrency == txn.BaseCurrency {
		return 0.7
	}
	return 0.2
}

// calculateDateScore scores the signed day gap between the document date
// and the transaction date. Invoices are paid after issuance (payment
// terms), expense receipts trail the card transaction; both account for
// a ~3 day bank posting delay.
func calculateDateScore(docDate, txnDate time.Time, docType domain.DocumentType) float64 {
	signed := txnDate.Sub(docDate).Hours() / 24
	diff := math.Abs(signed)

	if docType == domain.DocumentTypeInvoice {
		if signed > 0 {
			switch {
			case signed >= 24 && signed <= 38:
				return 0.98 // Net 30
			case signed >= 55 && signed <= 68:
				return 0.96 // Net 60
			case signed >= 85 && signed <= 98:
				return 0.94 // Net 90
			case signed >= 10 && signed <= 20:
				return 0.95 // Net 15
			case signed >= 3 && signed <= 11:
				return 0.93 // Net 7
			case signed <= 6:
				return 0.99 // immediate payment
			case signed <= 123:
				return math.Max(0.7, 0.9-(signed-33)*0.002)
			}
		} else if signed >= -10 {
			return 0.85 // advance payment
		}
	} else {
		if signed < 0 {
			adjusted := -signed + 3
			switch {
			case adjusted <= 4:
				return 0.99
			case adjusted <= 10:
				return 0.95
			case adjusted <= 33:
				return 0.9
			case adjusted <= 63:
				return 0.8
			case adjusted <= 93:
				return 0.7
			}
		} else if signed <= 10 {
			return 0.85 // receipt captured before the transaction posted
		}
	}

	switch {
	case diff == 0:
		return 1.0
	case diff <= 1:
		return 0.95
	case diff <= 3:
		return 0.85
	case diff <= 7:
		return 0.75
	case diff <= 14:
		return 0.6
	case diff <= 30:
		return math.Max(0.3, 1-(diff/30)*0.7)
	}
	return 0.1
}

// embeddingSimilarity converts a cosine distance in [0,2] to a
// similarity score. Missing embeddings yield the neutral default.
func embeddingSimilarity(distance float64, hasEmbeddings bool) float64 {
	if !hasEmbeddings {
		return neutralScore
	}
	return math.Max(0, 1-distance)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
