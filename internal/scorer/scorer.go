// Package scorer derives a lead score and tier from a company's shadow
// signals. It is a stateless pure function of the signal list, decoupled
// from the documents that store the result.
package scorer

import (
	"fmt"
	"math"

	"github.com/vertax/leadgen-cli/internal/model"
)

// Sub-score caps. The three components sum to a 0-100 total.
const (
	maxTriggerScore    = 50
	maxBehaviorScore   = 30
	maxStructuralScore = 20
)

var strengthPoints = map[model.SignalStrength]float64{
	model.StrengthTrigger: 50,
	model.StrengthHigh:    25,
	model.StrengthMedium:  10,
	model.StrengthLow:     4,
}

// behaviorTypes are signal types that evidence active company behavior.
var behaviorTypes = map[model.SignalType]bool{
	model.SignalHiring:     true,
	model.SignalExpansion:  true,
	model.SignalAutomation: true,
}

// Score computes the total, tier, and breakdown for a signal set.
//
// Tiering: any trigger-strength signal puts the lead in Tier A, else any
// high-strength signal gives Tier B, else Tier C. No signals at all is Tier D.
func Score(signals []model.ShadowSignal) model.Scoring {
	var trigger, behavior, structural float64
	var reasons []string

	hasTrigger := false
	hasHigh := false

	for _, sig := range signals {
		conf := clamp01(sig.Confidence)

		pts := strengthPoints[sig.Strength] * conf
		trigger += pts

		switch {
		case behaviorTypes[sig.Type]:
			behavior += 10 * conf
		default:
			structural += 7 * conf
		}

		switch sig.Strength {
		case model.StrengthTrigger:
			hasTrigger = true
			reasons = append(reasons, fmt.Sprintf("trigger signal: %s", sig.Type))
		case model.StrengthHigh:
			hasHigh = true
			reasons = append(reasons, fmt.Sprintf("high-strength signal: %s", sig.Type))
		}
	}

	trigger = math.Min(trigger, maxTriggerScore)
	behavior = math.Min(behavior, maxBehaviorScore)
	structural = math.Min(structural, maxStructuralScore)

	tier := model.TierC
	switch {
	case hasTrigger:
		tier = model.TierA
	case hasHigh:
		tier = model.TierB
	case len(signals) == 0:
		tier = model.TierD
		reasons = append(reasons, "no shadow signals detected")
	}

	total := int(math.Round(trigger + behavior + structural))
	if total > 100 {
		total = 100
	}

	return model.Scoring{
		Total:     total,
		Tier:      tier,
		TierLabel: tier.Label(),
		Breakdown: model.ScoreBreakdown{
			Trigger:    int(math.Round(trigger)),
			Behavior:   int(math.Round(behavior)),
			Structural: int(math.Round(structural)),
		},
		Reasons: reasons,
	}
}

// SignalPoints returns the confidence-weighted points a single signal
// contributes before capping.
func SignalPoints(sig model.ShadowSignal) float64 {
	return strengthPoints[sig.Strength] * clamp01(sig.Confidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
