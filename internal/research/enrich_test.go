package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertax/leadgen-cli/internal/model"
	"github.com/vertax/leadgen-cli/pkg/anthropic"
	"github.com/vertax/leadgen-cli/pkg/perplexity"
)

const enrichmentJSON = `{
  "summary": "300-person contract manufacturer in Bavaria.",
  "employee_range": "200-500",
  "revenue_range": "$20M-$50M",
  "signals": [
    {"type": "regulation", "strength": "trigger", "confidence": 0.9, "snippet": "new EU packaging directive applies from Q1", "source_url": "https://example.com/a"},
    {"type": "hiring", "strength": "medium", "confidence": 0.7, "snippet": "hiring two logistics planners"},
    {"type": "astrology", "strength": "high", "confidence": 0.9, "snippet": "invalid type dropped"},
    {"type": "expansion", "strength": "massive", "confidence": 0.9, "snippet": "invalid strength dropped"},
    {"type": "facility", "strength": "low", "confidence": 7.5, "snippet": "confidence clamped"}
  ]
}`

func TestParseEnrichment(t *testing.T) {
	research, err := parseEnrichment(enrichmentJSON)
	require.NoError(t, err)

	assert.Equal(t, "200-500", research.EmployeeRange)
	require.Len(t, research.Signals, 3) // two invalid records dropped

	assert.Equal(t, model.SignalRegulation, research.Signals[0].Type)
	assert.Equal(t, model.StrengthTrigger, research.Signals[0].Strength)
	assert.Equal(t, "https://example.com/a", research.Signals[0].Evidence.SourceURL)
	assert.Greater(t, research.Signals[0].Score, 0.0)

	assert.Equal(t, 1.0, research.Signals[2].Confidence) // clamped
}

func TestParseEnrichment_NoSignals(t *testing.T) {
	research, err := parseEnrichment(`{"summary": "small shop", "signals": []}`)
	require.NoError(t, err)
	assert.Empty(t, research.Signals)
}

func TestEnrich_ScoresAndPersists(t *testing.T) {
	st := newResearchStore(t)
	run := seedRun(t, st, nil, 10)
	company := seedCompany(t, st, run.ID, "Acme Robotics GmbH", "")

	search := &mockSearch{fn: func(perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
		return searchText("research results"), nil
	}}
	ai := &mockAI{fn: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return aiText(enrichmentJSON), nil
	}}
	svc := New(testServiceConfig(), st, ai, search)

	res, err := svc.Enrich(context.Background(), run.ID, company.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierA, res.Tier) // trigger signal dominates

	got, err := st.GetCompany(context.Background(), company.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CompanyScored, got.Status)
	require.NotNil(t, got.Research)
	assert.Len(t, got.Research.Signals, 3)
	require.NotNil(t, got.Scoring)
	assert.Equal(t, model.TierA, got.Scoring.Tier)
	assert.Equal(t, "Critical Pain", got.Scoring.TierLabel)
}

func TestEnrich_IdempotentOnRetry(t *testing.T) {
	st := newResearchStore(t)
	run := seedRun(t, st, nil, 10)
	company := seedCompany(t, st, run.ID, "Acme Robotics GmbH", "")

	search := &mockSearch{fn: func(perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
		return searchText("research results"), nil
	}}
	ai := &mockAI{fn: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return aiText(`{"summary": "s", "signals": []}`), nil
	}}
	svc := New(testServiceConfig(), st, ai, search)

	first, err := svc.Enrich(context.Background(), run.ID, company.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierD, first.Tier) // no signals

	second, err := svc.Enrich(context.Background(), run.ID, company.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Tier, second.Tier)
	assert.Equal(t, 1, search.calls)
}
