package research

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertax/leadgen-cli/internal/model"
	"github.com/vertax/leadgen-cli/pkg/anthropic"
)

func TestParseQualification(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantQual  model.Qualification
		wantScore int
	}{
		{
			name:      "qualified",
			text:      `{"qualification": "QUALIFIED", "relevance_score": 82, "reasoning": "strong fit"}`,
			wantQual:  model.Qualified,
			wantScore: 82,
		},
		{
			name:      "disqualified with surrounding prose",
			text:      "Here is my verdict:\n{\"qualification\": \"DISQUALIFIED\", \"relevance_score\": 5, \"reasoning\": \"directory site\"}\nDone.",
			wantQual:  model.Disqualified,
			wantScore: 5,
		},
		{
			name:      "lowercase maybe",
			text:      `{"qualification": "maybe", "relevance_score": 50}`,
			wantQual:  model.Maybe,
			wantScore: 50,
		},
		{
			name:      "unknown verdict defaults to maybe",
			text:      `{"qualification": "UNSURE", "relevance_score": 40}`,
			wantQual:  model.Maybe,
			wantScore: 40,
		},
		{
			name:      "score clamped high",
			text:      `{"qualification": "QUALIFIED", "relevance_score": 250}`,
			wantQual:  model.Qualified,
			wantScore: 100,
		},
		{
			name:      "score clamped low",
			text:      `{"qualification": "DISQUALIFIED", "relevance_score": -10}`,
			wantQual:  model.Disqualified,
			wantScore: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseQualification(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantQual, v.qualification)
			assert.Equal(t, tt.wantScore, v.score)
		})
	}
}

func TestParseQualification_NoJSON(t *testing.T) {
	_, err := parseQualification("no verdict here")
	require.Error(t, err)
}

func TestStripHTMLTags(t *testing.T) {
	tests := []struct {
		input, expect string
	}{
		{"<p>Hello</p>", " Hello "},
		{"plain text", "plain text"},
		{"<div><b>Bold</b> and plain</div>", "  Bold  and plain "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expect, stripHTMLTags(tt.input))
	}
}

func TestAnalyzeWebsite_FetchesAndPersists(t *testing.T) {
	st := newResearchStore(t)
	run := seedRun(t, st, nil, 10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>Precision parts manufacturer since 1987</body></html>")) //nolint:errcheck
	}))
	defer srv.Close()

	company := seedCompany(t, st, run.ID, "Acme Robotics GmbH", srv.URL)

	var sawHomepage bool
	ai := &mockAI{fn: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		if strings.Contains(req.Messages[0].Content, "Precision parts manufacturer") {
			sawHomepage = true
		}
		return aiText(`{"qualification": "QUALIFIED", "relevance_score": 78, "reasoning": "manufacturer matching profile"}`), nil
	}}
	svc := New(testServiceConfig(), st, ai, &mockSearch{})

	res, err := svc.AnalyzeWebsite(context.Background(), run.ID, company.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Qualified, res.Qualification)
	assert.Equal(t, 78, res.RelevanceScore)
	assert.True(t, sawHomepage)

	got, err := st.GetCompany(context.Background(), company.ID)
	require.NoError(t, err)
	require.NotNil(t, got.WebsiteAnalysis)
	assert.Equal(t, model.Qualified, got.WebsiteAnalysis.Qualification)
}

func TestAnalyzeWebsite_IdempotentOnRetry(t *testing.T) {
	st := newResearchStore(t)
	run := seedRun(t, st, nil, 10)
	company := seedCompany(t, st, run.ID, "Acme Robotics GmbH", "")

	ai := &mockAI{fn: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return aiText(`{"qualification": "MAYBE", "relevance_score": 55, "reasoning": "thin evidence"}`), nil
	}}
	svc := New(testServiceConfig(), st, ai, &mockSearch{})

	first, err := svc.AnalyzeWebsite(context.Background(), run.ID, company.ID)
	require.NoError(t, err)
	second, err := svc.AnalyzeWebsite(context.Background(), run.ID, company.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Qualification, second.Qualification)
	assert.Equal(t, first.RelevanceScore, second.RelevanceScore)
	assert.Equal(t, 1, ai.calls) // second call served from the stored verdict
}

func TestAnalyzeWebsite_HomepageUnavailable(t *testing.T) {
	st := newResearchStore(t)
	run := seedRun(t, st, nil, 10)
	// Unreachable website: assessment still proceeds from metadata.
	company := seedCompany(t, st, run.ID, "Acme Robotics GmbH", "http://127.0.0.1:0")

	ai := &mockAI{fn: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		require.Contains(t, req.Messages[0].Content, "Homepage text unavailable")
		return aiText(`{"qualification": "MAYBE", "relevance_score": 45, "reasoning": "no site evidence"}`), nil
	}}
	svc := New(testServiceConfig(), st, ai, &mockSearch{})

	res, err := svc.AnalyzeWebsite(context.Background(), run.ID, company.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Maybe, res.Qualification)
}
