package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vertax/leadgen-cli/internal/model"
	"github.com/vertax/leadgen-cli/internal/pipeline"
)

// maxHomepageChars is the truncation limit for text sent to Claude.
const maxHomepageChars = 16000

const qualifyPrompt = `You are a website qualification gate for B2B lead generation. Judge whether the company is a relevant prospect for the given ideal customer profile.

Classify as:
- "QUALIFIED": clearly matches the profile
- "MAYBE": plausible match, evidence is thin
- "DISQUALIFIED": clearly not a fit (wrong industry, consumer-only, aggregator, directory, or not an operating company)

Respond with ONLY valid JSON, no other text:
{"qualification": "QUALIFIED", "relevance_score": 0, "reasoning": "one or two sentences"}

relevance_score is 0-100.`

type qualifyResponse struct {
	Qualification  string `json:"qualification"`
	RelevanceScore int    `json:"relevance_score"`
	Reasoning      string `json:"reasoning"`
}

// AnalyzeWebsite fetches the company homepage and asks Claude for a
// tri-state relevance verdict. An already-analyzed company returns its
// stored verdict so retries are deterministic.
func (s *Service) AnalyzeWebsite(ctx context.Context, runID, companyID string) (*pipeline.AnalyzeResult, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "research: analyze load company")
	}
	if company.WebsiteAnalysis != nil {
		wa := company.WebsiteAnalysis
		return &pipeline.AnalyzeResult{
			Qualification:  wa.Qualification,
			RelevanceScore: wa.RelevanceScore,
			Reasoning:      wa.Reasoning,
		}, nil
	}

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "research: analyze load run")
	}

	content := ""
	if company.Website != "" {
		content, err = s.fetchHomepage(ctx, company.Website)
		if err != nil {
			zap.L().Debug("research: homepage fetch failed",
				zap.String("website", company.Website), zap.Error(err))
			content = ""
		}
	}
	if len(content) > maxHomepageChars {
		content = content[:maxHomepageChars]
	}

	user := fmt.Sprintf("Ideal customer profile: %s\n\nCompany: %s (%s, %s)\n",
		run.Strategy, company.Name, company.Industry, company.Country)
	if content != "" {
		user += "\nHomepage text:\n" + content
	} else {
		user += "\nHomepage text unavailable; judge from the name, industry and country alone and lean toward MAYBE."
	}

	text, err := s.askClaude(ctx, runID, s.cfg.Anthropic.Model, qualifyPrompt, user)
	if err != nil {
		return nil, eris.Wrap(err, "research: website assessment")
	}

	verdict, err := parseQualification(text)
	if err != nil {
		return nil, err
	}

	wa := &model.WebsiteAnalysis{
		Qualification:  verdict.qualification,
		RelevanceScore: verdict.score,
		Reasoning:      verdict.reasoning,
		AnalyzedAt:     time.Now().UTC(),
	}
	if err := s.store.SetWebsiteAnalysis(ctx, companyID, wa); err != nil {
		return nil, eris.Wrap(err, "research: persist analysis")
	}

	return &pipeline.AnalyzeResult{
		Qualification:  wa.Qualification,
		RelevanceScore: wa.RelevanceScore,
		Reasoning:      wa.Reasoning,
	}, nil
}

type qualificationVerdict struct {
	qualification model.Qualification
	score         int
	reasoning     string
}

func parseQualification(text string) (*qualificationVerdict, error) {
	payload, err := extractJSON(text, "{", "}")
	if err != nil {
		return nil, err
	}
	var resp qualifyResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, eris.Wrap(err, "research: parse qualification")
	}

	var q model.Qualification
	switch strings.ToUpper(strings.TrimSpace(resp.Qualification)) {
	case string(model.Qualified):
		q = model.Qualified
	case string(model.Disqualified):
		q = model.Disqualified
	case string(model.Maybe):
		q = model.Maybe
	default:
		// An unparseable verdict is not a reason to drop a lead.
		q = model.Maybe
	}

	score := resp.RelevanceScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return &qualificationVerdict{qualification: q, score: score, reasoning: resp.Reasoning}, nil
}

// fetchHomepage downloads the homepage, bounded in size and time, and
// strips markup down to plain text.
func (s *Service) fetchHomepage(ctx context.Context, website string) (string, error) {
	timeout := time.Duration(s.cfg.Discovery.HomepageTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBytes := int64(s.cfg.Discovery.MaxHomepageKB) * 1024
	if maxBytes <= 0 {
		maxBytes = 512 * 1024
	}

	if !strings.HasPrefix(website, "http://") && !strings.HasPrefix(website, "https://") {
		website = "https://" + website
	}

	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, website, nil)
	if err != nil {
		return "", eris.Wrap(err, "research: create homepage request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; leadgen-cli/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "research: fetch homepage")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return "", eris.Errorf("research: homepage returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return "", eris.Wrap(err, "research: read homepage")
	}
	return stripHTMLTags(string(body)), nil
}

// stripHTMLTags removes markup from a string, producing rough plain text.
func stripHTMLTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
