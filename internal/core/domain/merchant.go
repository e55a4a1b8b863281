package domain

// MerchantPattern is the per-attempt judgment over historical outcomes
// for a semantically equivalent (document merchant, transaction merchant)
// pair. Derived, never persisted.
type MerchantPattern struct {
	CanAutoMatch           bool    `json:"can_auto_match"`
	Accuracy               float64 `json:"accuracy"`
	ConfirmedCount         int     `json:"confirmed_count"`
	NegativeCount          int     `json:"negative_count"`
	TotalCount             int     `json:"total_count"`
	AvgConfirmedConfidence float64 `json:"avg_confirmed_confidence"`
	Reason                 string  `json:"reason"`
}

// Reason codes reported by the merchant pattern analyzer.
const (
	MerchantReasonInsufficientHistory = "insufficient_history"
	MerchantReasonProven              = "proven"
	MerchantReasonLowAccuracy         = "low_accuracy"
	MerchantReasonTooFewConfirmed     = "too_few_confirmed"
	MerchantReasonTooManyNegatives    = "too_many_negatives"
	MerchantReasonLowConfidence       = "low_confirmed_confidence"
	MerchantReasonNotEvaluated        = "not_evaluated"
)
