package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vertax/leadgen-cli/internal/model"
)

func sig(typ model.SignalType, strength model.SignalStrength, conf float64) model.ShadowSignal {
	return model.ShadowSignal{Type: typ, Strength: strength, Confidence: conf}
}

func TestScore_NoSignalsIsTierD(t *testing.T) {
	got := Score(nil)
	assert.Equal(t, model.TierD, got.Tier)
	assert.Equal(t, "Cold Lead", got.TierLabel)
	assert.Equal(t, 0, got.Total)
}

func TestScore_TriggerDominates(t *testing.T) {
	// One trigger plus one medium signal → Tier A regardless of the rest.
	got := Score([]model.ShadowSignal{
		sig(model.SignalRegulation, model.StrengthTrigger, 0.9),
		sig(model.SignalHiring, model.StrengthMedium, 0.8),
	})
	assert.Equal(t, model.TierA, got.Tier)
	assert.Equal(t, "Critical Pain", got.TierLabel)
	assert.Contains(t, got.Reasons, "trigger signal: regulation")
}

func TestScore_HighWithoutTriggerIsTierB(t *testing.T) {
	got := Score([]model.ShadowSignal{
		sig(model.SignalExpansion, model.StrengthHigh, 1.0),
		sig(model.SignalFacility, model.StrengthLow, 0.5),
	})
	assert.Equal(t, model.TierB, got.Tier)
}

func TestScore_WeakSignalsOnlyIsTierC(t *testing.T) {
	got := Score([]model.ShadowSignal{
		sig(model.SignalHiring, model.StrengthMedium, 0.7),
		sig(model.SignalSupplyChain, model.StrengthLow, 0.4),
	})
	assert.Equal(t, model.TierC, got.Tier)
	assert.Greater(t, got.Total, 0)
}

func TestScore_TierInvariants(t *testing.T) {
	// A company with no trigger-strength signal is never Tier A, and a
	// company with no signals at all is never Tier A or B.
	combos := [][]model.ShadowSignal{
		nil,
		{sig(model.SignalHiring, model.StrengthLow, 0.9)},
		{sig(model.SignalTender, model.StrengthMedium, 1.0), sig(model.SignalFacility, model.StrengthMedium, 1.0)},
		{sig(model.SignalRegulation, model.StrengthHigh, 1.0)},
	}
	for _, signals := range combos {
		got := Score(signals)
		assert.NotEqual(t, model.TierA, got.Tier)
		if len(signals) == 0 {
			assert.NotEqual(t, model.TierB, got.Tier)
		}
	}
}

func TestScore_TotalBounded(t *testing.T) {
	var many []model.ShadowSignal
	for i := 0; i < 20; i++ {
		many = append(many, sig(model.SignalAutomation, model.StrengthTrigger, 1.0))
	}
	got := Score(many)
	assert.LessOrEqual(t, got.Total, 100)
	assert.GreaterOrEqual(t, got.Total, 0)
	assert.LessOrEqual(t, got.Breakdown.Trigger, maxTriggerScore)
	assert.LessOrEqual(t, got.Breakdown.Behavior, maxBehaviorScore)
	assert.LessOrEqual(t, got.Breakdown.Structural, maxStructuralScore)
}

func TestScore_ConfidenceScales(t *testing.T) {
	low := Score([]model.ShadowSignal{sig(model.SignalHiring, model.StrengthHigh, 0.2)})
	high := Score([]model.ShadowSignal{sig(model.SignalHiring, model.StrengthHigh, 1.0)})
	assert.Less(t, low.Total, high.Total)
	// Tier depends on strength, not confidence.
	assert.Equal(t, model.TierB, low.Tier)
	assert.Equal(t, model.TierB, high.Tier)
}

func TestScore_Deterministic(t *testing.T) {
	signals := []model.ShadowSignal{
		sig(model.SignalRegulation, model.StrengthTrigger, 0.8),
		sig(model.SignalHiring, model.StrengthHigh, 0.6),
		sig(model.SignalFacility, model.StrengthLow, 0.3),
	}
	first := Score(signals)
	second := Score(signals)
	assert.Equal(t, first, second)
}
