package usecase

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mkarlsen/reconcile/internal/core/domain"
)

const (
	defaultSuggestedThreshold = 0.6
	autoMatchThreshold        = 0.9

	calibrationWindowDays = 90
	calibrationMinSamples = 5
	calibrationMaxStep    = 0.03
)

// computeCalibration derives a team's suggestion statistics and the
// calibrated suggested threshold from its terminal outcomes. Pure: same
// history, same result. The auto-match threshold is fixed; only the
// suggested threshold moves, and every rule nudges it by at most the
// clamp step per computation.
func computeCalibration(teamID string, history []domain.SuggestionOutcome, now time.Time) domain.TeamCalibration {
	cal := domain.TeamCalibration{
		TeamID:             teamID,
		SuggestedThreshold: defaultSuggestedThreshold,
		AutoMatchThreshold: autoMatchThreshold,
		LastUpdated:        now,
	}

	var confirmedSum, negativeSum float64
	var autoTotal, autoConfirmed int
	for _, o := range history {
		switch o.Status {
		case domain.SuggestionStatusConfirmed:
			cal.ConfirmedSuggestions++
			confirmedSum += o.ConfidenceScore
			if o.MatchType == domain.MatchTypeAutoMatched {
				autoConfirmed++
			}
		case domain.SuggestionStatusDeclined:
			cal.DeclinedSuggestions++
			negativeSum += o.ConfidenceScore
		case domain.SuggestionStatusUnmatched:
			cal.UnmatchedSuggestions++
			negativeSum += o.ConfidenceScore
		default:
			continue
		}
		if o.MatchType == domain.MatchTypeAutoMatched {
			autoTotal++
		}
		cal.TotalSuggestions++
	}

	if cal.TotalSuggestions < calibrationMinSamples {
		return cal
	}

	negatives := cal.DeclinedSuggestions + cal.UnmatchedSuggestions
	if cal.ConfirmedSuggestions > 0 {
		cal.AvgConfidenceConfirmed = confirmedSum / float64(cal.ConfirmedSuggestions)
	}
	if negatives > 0 {
		cal.AvgConfidenceNegative = negativeSum / float64(negatives)
	}
	accuracy := float64(cal.ConfirmedSuggestions) / float64(cal.TotalSuggestions)
	if autoTotal > 0 {
		cal.AutoMatchAccuracy = float64(autoConfirmed) / float64(autoTotal)
	}

	t := cal.SuggestedThreshold

	// Accuracy nudge.
	if accuracy >= 0.9 && cal.ConfirmedSuggestions >= 5 {
		t = lowerThreshold(t, 0.65)
	} else if accuracy < 0.5 && negatives >= 4 {
		t = raiseThreshold(t, 0.85)
	}

	// Confidence-gap nudge: a wide gap between confirmed and rejected
	// confidences means the scores discriminate well.
	if cal.ConfirmedSuggestions >= 3 && cal.AvgConfidenceConfirmed > 0 && cal.AvgConfidenceNegative > 0 {
		gap := cal.AvgConfidenceConfirmed - cal.AvgConfidenceNegative
		if gap > 0.2 {
			t = lowerThreshold(t, 0.58)
		} else if gap < 0.05 {
			t = raiseThreshold(t, 0.82)
		}
	}

	// Volume nudges.
	if cal.ConfirmedSuggestions >= 20 && accuracy >= 0.9 {
		t = lowerThreshold(t, 0.55)
	}
	if negatives >= 15 && accuracy < 0.7 {
		t = raiseThreshold(t, 0.85)
	}

	cal.SuggestedThreshold = round3(t)
	return cal
}

// lowerThreshold steps the threshold down without crossing the rule
// floor. A rule that lowers can never raise.
func lowerThreshold(t, floor float64) float64 {
	return math.Min(t, math.Max(floor, t-calibrationMaxStep))
}

// raiseThreshold steps the threshold up without crossing the rule
// ceiling. A rule that raises can never lower.
func raiseThreshold(t, ceiling float64) float64 {
	return math.Max(t, math.Min(ceiling, t+calibrationMaxStep))
}

type cachedCalibration struct {
	value     domain.TeamCalibration
	expiresAt time.Time
}

// calibrationCache memoizes per-team calibrations for a TTL so repeated
// matching runs do not re-aggregate the outcome window on every call.
type calibrationCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cachedCalibration
}

func newCalibrationCache(ttl time.Duration) *calibrationCache {
	return &calibrationCache{ttl: ttl, entries: make(map[string]cachedCalibration)}
}

func (c *calibrationCache) get(teamID string, now time.Time) (domain.TeamCalibration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[teamID]
	if !ok || now.After(entry.expiresAt) {
		return domain.TeamCalibration{}, false
	}
	return entry.value, true
}

func (c *calibrationCache) put(teamID string, value domain.TeamCalibration, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[teamID] = cachedCalibration{value: value, expiresAt: now.Add(c.ttl)}
}

// GetTeamCalibration returns the cached calibration or recomputes it
// from the rolling outcome window.
func (uc *MatchUseCase) GetTeamCalibration(ctx context.Context, teamID string) (domain.TeamCalibration, error) {
	now := uc.clock()
	if cal, ok := uc.calibrations.get(teamID, now); ok {
		return cal, nil
	}

	after := now.AddDate(0, 0, -calibrationWindowDays)
	history, err := uc.suggestions.QueryOutcomes(ctx, teamID, domain.TerminalStatuses, after)
	if err != nil {
		return domain.TeamCalibration{}, err
	}

	cal := computeCalibration(teamID, history, now)
	uc.calibrations.put(teamID, cal, now)
	return cal, nil
}

// teamCalibration is the degrading variant used inside matching: a
// failed outcome query falls back to defaults rather than aborting the
// match attempt.
func (uc *MatchUseCase) teamCalibration(ctx context.Context, teamID string) domain.TeamCalibration {
	cal, err := uc.GetTeamCalibration(ctx, teamID)
	if err != nil {
		slog.Warn("calibration query failed, using defaults", "team_id", teamID, "error", err)
		return domain.TeamCalibration{
			TeamID:             teamID,
			SuggestedThreshold: defaultSuggestedThreshold,
			AutoMatchThreshold: autoMatchThreshold,
			LastUpdated:        uc.clock(),
		}
	}
	return cal
}
