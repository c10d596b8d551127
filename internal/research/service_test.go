package research

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertax/leadgen-cli/internal/config"
	"github.com/vertax/leadgen-cli/internal/model"
	"github.com/vertax/leadgen-cli/internal/store"
	"github.com/vertax/leadgen-cli/pkg/anthropic"
	"github.com/vertax/leadgen-cli/pkg/perplexity"
)

type mockAI struct {
	fn    func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
	calls int
}

func (m *mockAI) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.calls++
	return m.fn(req)
}

type mockSearch struct {
	fn    func(req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error)
	calls int
}

func (m *mockSearch) ChatCompletion(ctx context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	m.calls++
	return m.fn(req)
}

func aiText(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

func searchText(text string) *perplexity.ChatCompletionResponse {
	return &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: text}}},
	}
}

func testServiceConfig() *config.Config {
	return &config.Config{
		Anthropic: config.AnthropicConfig{
			Model:     "claude-sonnet-4-5-20250929",
			FastModel: "claude-haiku-4-5-20251001",
			MaxTokens: 1024,
		},
		Perplexity: config.PerplexityConfig{Model: "sonar-pro"},
		Discovery: config.DiscoveryConfig{
			SafetyMultiplier:  2,
			RequestsPerSecond: 1000, // keep tests fast
			BreakerThreshold:  5,
			BreakerResetSecs:  60,
		},
	}
}

func newResearchStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedRun(t *testing.T, st store.Store, countries []model.CountryConfig, target int) *model.LeadRun {
	t.Helper()
	run := &model.LeadRun{
		ProductID:          "prod-1",
		Strategy:           "mid-size manufacturers with manual logistics",
		TargetCompanyCount: target,
		Countries:          countries,
	}
	require.NoError(t, st.CreateRun(context.Background(), run))
	return run
}

func seedCompany(t *testing.T, st store.Store, runID, name, website string) *model.Company {
	t.Helper()
	c := &model.Company{
		LeadRunID: runID,
		Name:      name,
		Website:   website,
		Country:   "DE",
		Industry:  "manufacturing",
		Source:    "perplexity",
	}
	require.NoError(t, st.InsertCompany(context.Background(), c))
	return c
}
