package domain

import "time"

// TeamCalibration is the per-team suggestion statistics derived from a
// rolling window of terminal suggestion outcomes. It is recomputed on
// demand and never stored.
type TeamCalibration struct {
	TeamID                 string    `json:"team_id"`
	TotalSuggestions       int       `json:"total_suggestions"`
	ConfirmedSuggestions   int       `json:"confirmed_suggestions"`
	DeclinedSuggestions    int       `json:"declined_suggestions"`
	UnmatchedSuggestions   int       `json:"unmatched_suggestions"`
	AvgConfidenceConfirmed float64   `json:"avg_confidence_confirmed"`
	AvgConfidenceNegative  float64   `json:"avg_confidence_negative"`
	AutoMatchAccuracy      float64   `json:"auto_match_accuracy"`
	SuggestedThreshold     float64   `json:"calibrated_suggested_threshold"`
	AutoMatchThreshold     float64   `json:"auto_match_threshold"`
	LastUpdated            time.Time `json:"last_updated"`
}

// SuggestionOutcome is one historical terminal suggestion as consumed by
// calibration and merchant-pattern analysis.
type SuggestionOutcome struct {
	Status          SuggestionStatus
	MatchType       MatchType
	ConfidenceScore float64
	CreatedAt       time.Time
}
