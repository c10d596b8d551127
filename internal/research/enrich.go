package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/vertax/leadgen-cli/internal/model"
	"github.com/vertax/leadgen-cli/internal/pipeline"
	"github.com/vertax/leadgen-cli/internal/scorer"
)

const enrichExtractPrompt = `You extract firmographic data and buying signals from research text about one company.

Signal types: "regulation", "hiring", "expansion", "automation", "supply_chain", "facility", "tender".
Signal strengths: "trigger" (an active, dated buying event), "high" (strong recent indicator), "medium", "low".

Respond with ONLY valid JSON, no other text:
{
  "summary": "two-sentence company summary",
  "employee_range": "e.g. 50-200",
  "revenue_range": "e.g. $10M-$50M",
  "signals": [
    {"type": "hiring", "strength": "high", "confidence": 0.8, "snippet": "verbatim evidence from the text", "source_url": "https://..."}
  ]
}

Only report signals actually evidenced in the text. confidence is 0.0-1.0. Omit unknown fields.`

type enrichResponse struct {
	Summary       string `json:"summary"`
	EmployeeRange string `json:"employee_range"`
	RevenueRange  string `json:"revenue_range"`
	Signals       []struct {
		Type       string  `json:"type"`
		Strength   string  `json:"strength"`
		Confidence float64 `json:"confidence"`
		Snippet    string  `json:"snippet"`
		SourceURL  string  `json:"source_url"`
	} `json:"signals"`
}

var validSignalTypes = map[model.SignalType]bool{
	model.SignalRegulation:  true,
	model.SignalHiring:      true,
	model.SignalExpansion:   true,
	model.SignalAutomation:  true,
	model.SignalSupplyChain: true,
	model.SignalFacility:    true,
	model.SignalTender:      true,
}

var validStrengths = map[model.SignalStrength]bool{
	model.StrengthTrigger: true,
	model.StrengthHigh:    true,
	model.StrengthMedium:  true,
	model.StrengthLow:     true,
}

// Enrich researches one qualified company for firmographics and shadow
// signals, scores the signal set, and persists the result. An already
// scored company returns its stored tier.
func (s *Service) Enrich(ctx context.Context, runID, companyID string) (*pipeline.EnrichResult, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "research: enrich load company")
	}
	if company.Scoring != nil {
		return &pipeline.EnrichResult{Tier: company.Scoring.Tier}, nil
	}

	if err := s.store.AdvanceCompanyStatus(ctx, companyID, model.CompanyResearching); err != nil {
		return nil, eris.Wrap(err, "research: enrich mark researching")
	}

	searchPrompt := fmt.Sprintf(
		"Research the company %q (%s, %s). Report: approximate employee count, revenue, "+
			"and any recent buying signals: regulatory changes affecting them, hiring activity, "+
			"expansion or new facilities, automation initiatives, supply chain changes, public tenders. "+
			"Cite sources and quote the evidence.",
		company.Name, company.Industry, company.Country)

	content, err := s.groundedSearch(ctx, runID, searchPrompt)
	if err != nil {
		return nil, eris.Wrap(err, "research: enrichment search")
	}

	text, err := s.askClaude(ctx, runID, s.cfg.Anthropic.Model, enrichExtractPrompt, content)
	if err != nil {
		return nil, eris.Wrap(err, "research: enrichment extraction")
	}

	research, err := parseEnrichment(text)
	if err != nil {
		return nil, err
	}

	scoring := scorer.Score(research.Signals)
	if err := s.store.SetResearch(ctx, companyID, research, &scoring); err != nil {
		return nil, eris.Wrap(err, "research: persist enrichment")
	}
	if err := s.store.AdvanceCompanyStatus(ctx, companyID, model.CompanyScored); err != nil {
		return nil, eris.Wrap(err, "research: enrich mark scored")
	}

	return &pipeline.EnrichResult{Tier: scoring.Tier}, nil
}

func parseEnrichment(text string) (*model.Research, error) {
	payload, err := extractJSON(text, "{", "}")
	if err != nil {
		return nil, err
	}
	var resp enrichResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, eris.Wrap(err, "research: parse enrichment")
	}

	now := time.Now().UTC()
	research := &model.Research{
		Summary:       resp.Summary,
		EmployeeRange: resp.EmployeeRange,
		RevenueRange:  resp.RevenueRange,
		ResearchedAt:  now,
	}

	for _, raw := range resp.Signals {
		sigType := model.SignalType(strings.ToLower(strings.TrimSpace(raw.Type)))
		strength := model.SignalStrength(strings.ToLower(strings.TrimSpace(raw.Strength)))
		if !validSignalTypes[sigType] || !validStrengths[strength] {
			continue
		}
		conf := raw.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		sig := model.ShadowSignal{
			Type:       sigType,
			Strength:   strength,
			Confidence: conf,
			Evidence: model.Evidence{
				Snippet:    raw.Snippet,
				SourceURL:  raw.SourceURL,
				ObservedAt: now,
			},
		}
		sig.Score = scorer.SignalPoints(sig)
		research.Signals = append(research.Signals, sig)
	}
	return research, nil
}
