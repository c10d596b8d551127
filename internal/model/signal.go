package model

import "time"

// SignalType categorizes the buying trigger a shadow signal evidences.
type SignalType string

const (
	SignalRegulation  SignalType = "regulation"
	SignalHiring      SignalType = "hiring"
	SignalExpansion   SignalType = "expansion"
	SignalAutomation  SignalType = "automation"
	SignalSupplyChain SignalType = "supply_chain"
	SignalFacility    SignalType = "facility"
	SignalTender      SignalType = "tender"
)

// SignalStrength grades how strongly a signal indicates an active buying
// trigger. Trigger is the strongest grade and dominates tiering.
type SignalStrength string

const (
	StrengthTrigger SignalStrength = "trigger"
	StrengthHigh    SignalStrength = "high"
	StrengthMedium  SignalStrength = "medium"
	StrengthLow     SignalStrength = "low"
)

// Evidence is the snippet backing a shadow signal.
type Evidence struct {
	Snippet    string    `json:"snippet"`
	SourceURL  string    `json:"source_url,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// ShadowSignal is a unit of evidence that a company has a buying trigger.
// Immutable once recorded; owned by a Research record.
type ShadowSignal struct {
	Type       SignalType     `json:"type"`
	Strength   SignalStrength `json:"strength"`
	Score      float64        `json:"score"`
	Evidence   Evidence       `json:"evidence"`
	Confidence float64        `json:"confidence"`
}

// Tier is the qualitative lead-priority bucket derived from shadow signals.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
	TierD Tier = "D"
)

// Label returns the human-readable name shown in the dashboard.
func (t Tier) Label() string {
	switch t {
	case TierA:
		return "Critical Pain"
	case TierB:
		return "Active Change"
	case TierC:
		return "High Potential"
	case TierD:
		return "Cold Lead"
	default:
		return "Unknown"
	}
}

// Scoring is derived from a company's shadow-signal set. It is a pure
// function of the signals and is recomputed whenever Research changes.
type Scoring struct {
	Total     int            `json:"total"`
	Tier      Tier           `json:"tier"`
	TierLabel string         `json:"tier_label"`
	Breakdown ScoreBreakdown `json:"breakdown"`
	Reasons   []string       `json:"reasons,omitempty"`
}

// ScoreBreakdown splits the total into its sub-scores.
type ScoreBreakdown struct {
	Trigger    int `json:"trigger"`
	Behavior   int `json:"behavior"`
	Structural int `json:"structural"`
}
