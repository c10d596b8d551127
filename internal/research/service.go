// Package research implements the pipeline stages with Perplexity-grounded
// search and Claude extraction. Each stage persists its own results; the
// orchestrator only sequences the calls.
package research

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/vertax/leadgen-cli/internal/config"
	"github.com/vertax/leadgen-cli/internal/cost"
	"github.com/vertax/leadgen-cli/internal/pipeline"
	"github.com/vertax/leadgen-cli/internal/resilience"
	"github.com/vertax/leadgen-cli/internal/store"
	"github.com/vertax/leadgen-cli/pkg/anthropic"
	"github.com/vertax/leadgen-cli/pkg/perplexity"
)

// Service implements pipeline.StageAPI.
type Service struct {
	cfg     *config.Config
	store   store.Store
	ai      anthropic.Client
	search  perplexity.Client
	breaker *resilience.Breaker
	limiter *rate.Limiter
	costs   *cost.Calculator
	retry   resilience.RetryConfig

	mu    sync.Mutex
	usage map[string]*runUsage // keyed by run ID
}

type runUsage struct {
	tokens  int64
	costUSD float64
}

var _ pipeline.StageAPI = (*Service)(nil)

// New creates a Service. The breaker guards the Perplexity backend; when it
// is not closed, discovery falls back to its degraded single-model mode.
func New(cfg *config.Config, st store.Store, ai anthropic.Client, search perplexity.Client) *Service {
	rps := cfg.Discovery.RequestsPerSecond
	if rps <= 0 {
		rps = 1.0
	}
	return &Service{
		cfg:    cfg,
		store:  st,
		ai:     ai,
		search: search,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			FailureThreshold: cfg.Discovery.BreakerThreshold,
			ResetTimeout:     time.Duration(cfg.Discovery.BreakerResetSecs) * time.Second,
		}),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		costs:   cost.NewCalculator(cost.DefaultRates()),
		retry:   resilience.DefaultRetryConfig(),
		usage:   make(map[string]*runUsage),
	}
}

// Finalize computes the run rollup from the store and reports the tokens
// and spend accumulated across all stage calls for the run.
func (s *Service) Finalize(ctx context.Context, runID string) (*pipeline.FinalizeResult, error) {
	summary, err := s.store.Summarize(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "research: finalize summary")
	}

	s.mu.Lock()
	u := s.usage[runID]
	if u == nil {
		u = &runUsage{}
	}
	delete(s.usage, runID)
	s.mu.Unlock()

	return &pipeline.FinalizeResult{
		Summary:      summary,
		TotalTokens:  u.tokens,
		TotalCostUSD: u.costUSD,
	}, nil
}

// groundedSearch runs one Perplexity query with rate limiting, retries and
// the circuit breaker, and accounts its flat query cost.
func (s *Service) groundedSearch(ctx context.Context, runID, prompt string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "research: rate limit wait")
	}

	retryCfg := s.retry
	retryCfg.OnRetry = resilience.RetryLogger("perplexity", "chat_completion")

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		var out *perplexity.ChatCompletionResponse
		execErr := s.breaker.Execute(ctx, func(ctx context.Context) error {
			var callErr error
			out, callErr = s.search.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
				Model:    s.cfg.Perplexity.Model,
				Messages: []perplexity.Message{{Role: "user", Content: prompt}},
			})
			return callErr
		})
		return out, execErr
	})
	if err != nil {
		return "", err
	}

	s.accountQuery(runID)
	content := resp.Content()
	if content == "" {
		return "", eris.New("research: empty search response")
	}
	if len(resp.Citations) > 0 {
		content += "\n\nSources:\n" + strings.Join(resp.Citations, "\n")
	}
	return content, nil
}

// askClaude runs one Claude call with retries and accounts token usage.
func (s *Service) askClaude(ctx context.Context, runID, model, system, user string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "research: rate limit wait")
	}

	maxTokens := int64(s.cfg.Anthropic.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	retryCfg := s.retry
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "create_message")

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.ai.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     model,
			MaxTokens: maxTokens,
			System:    system,
			Messages:  []anthropic.Message{{Role: "user", Content: user}},
		})
	})
	if err != nil {
		return "", err
	}

	s.accountClaude(runID, model, resp.Usage)
	text := resp.Text()
	if text == "" {
		return "", eris.New("research: empty claude response")
	}
	return text, nil
}

func (s *Service) accountClaude(runID, model string, usage anthropic.TokenUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.usage[runID]
	if u == nil {
		u = &runUsage{}
		s.usage[runID] = u
	}
	u.tokens += usage.Total()
	u.costUSD += s.costs.Claude(model, usage.InputTokens, usage.OutputTokens)
}

func (s *Service) accountQuery(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.usage[runID]
	if u == nil {
		u = &runUsage{}
		s.usage[runID] = u
	}
	u.costUSD += s.costs.PerplexityQuery()
}

// extractJSON finds the outermost open/close pair in Claude output, which
// may carry prose around the JSON payload.
func extractJSON(text, open, close string) (string, error) {
	start := strings.Index(text, open)
	end := strings.LastIndex(text, close)
	if start < 0 || end < 0 || end <= start {
		return "", eris.Errorf("research: no JSON in response: %s", truncate(text, 200))
	}
	return text[start : end+1], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
