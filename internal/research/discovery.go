package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vertax/leadgen-cli/internal/model"
	"github.com/vertax/leadgen-cli/internal/pipeline"
)

const discoveryExtractPrompt = `You extract company records from web research results.
From the provided research text, list every distinct company mentioned as a candidate.

Respond with ONLY valid JSON, no other text:
[{"name": "Company Name", "website": "https://...", "industry": "short industry label"}]

Omit "website" or "industry" when unknown. Never invent companies not present in the text.`

const discoveryDegradedPrompt = `You suggest candidate companies from your own knowledge. Web search is unavailable, so only name companies you are confident actually exist. Prefer established mid-size companies.

Respond with ONLY valid JSON, no other text:
[{"name": "Company Name", "website": "https://...", "industry": "short industry label"}]

Omit "website" or "industry" when unsure.`

type discoveredCompany struct {
	Name     string `json:"name"`
	Website  string `json:"website,omitempty"`
	Industry string `json:"industry,omitempty"`
}

// Discover runs one discovery query against the run's current country,
// persists the newly found companies, and advances the per-country quota
// bookkeeping. When the search backend's breaker is not closed it degrades
// to a single cheaper model call instead of grounded search.
func (s *Service) Discover(ctx context.Context, runID string) (*pipeline.DiscoverResult, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrap(err, "research: discover load run")
	}

	idx := currentCountryIndex(run.Countries)
	if idx < 0 {
		return &pipeline.DiscoverResult{
			TotalDiscovered:       run.Progress.DiscoveredCompanies,
			AllCountriesExhausted: true,
		}, nil
	}
	country := &run.Countries[idx]
	country.Status = model.CountryRunning

	log := zap.L().With(zap.String("run_id", runID), zap.String("country", country.Code))

	var found []discoveredCompany
	source := "perplexity"
	if s.breaker.Degraded() {
		log.Warn("research: search backend degraded, using model-knowledge discovery")
		source = "model-knowledge"
		found, err = s.discoverDegraded(ctx, run, country)
	} else {
		found, err = s.discoverGrounded(ctx, run, country)
		if err != nil && s.breaker.Degraded() {
			// The grounded path just tripped the breaker; one degraded
			// attempt before giving up on the iteration.
			log.Warn("research: grounded discovery failed, retrying degraded", zap.Error(err))
			source = "model-knowledge"
			found, err = s.discoverDegraded(ctx, run, country)
		}
	}
	if err != nil {
		return nil, eris.Wrap(err, "research: discover")
	}

	// Dedupe both within this batch and against earlier batches. The
	// extraction model repeats names sometimes; the companies table has a
	// case-insensitive unique index on (run_id, name).
	fresh := make([]model.Company, 0, len(found))
	seen := make(map[string]bool, len(found))
	for _, d := range found {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		exists, existsErr := s.store.CompanyNameExists(ctx, runID, name)
		if existsErr != nil {
			return nil, eris.Wrap(existsErr, "research: discover dedupe")
		}
		if exists {
			continue
		}
		fresh = append(fresh, model.Company{
			LeadRunID: runID,
			Name:      name,
			Website:   d.Website,
			Domain:    domainOf(d.Website),
			Country:   country.Code,
			Industry:  d.Industry,
			Source:    source,
			Status:    model.CompanyDiscovered,
		})
	}
	if len(fresh) > 0 {
		if err := s.store.InsertCompanies(ctx, fresh); err != nil {
			return nil, eris.Wrap(err, "research: persist discoveries")
		}
	}

	country.ConsumedQueries++
	country.CompaniesFound += len(fresh)

	res := &pipeline.DiscoverResult{
		Companies:       fresh,
		CurrentCountry:  country.Name,
		TotalDiscovered: run.Progress.DiscoveredCompanies + len(fresh),
	}
	if country.ConsumedQueries >= country.AllocatedQueries {
		country.Status = model.CountryDoneStatus
		res.SwitchedCountry = true
		if next := nextPendingCountry(run.Countries, idx+1); next >= 0 {
			res.NextCountry = run.Countries[next].Name
		} else {
			res.AllCountriesExhausted = true
		}
	}
	if res.TotalDiscovered >= run.TargetCompanyCount {
		res.ReachedTarget = true
		// Countries never reached are skipped, not left pending forever.
		for i := range run.Countries {
			if run.Countries[i].Status == model.CountryPending {
				run.Countries[i].Status = model.CountrySkipped
			}
		}
	}

	if err := s.store.UpdateRunCountries(ctx, runID, run.Countries); err != nil {
		return nil, eris.Wrap(err, "research: persist country progress")
	}
	return res, nil
}

func (s *Service) discoverGrounded(ctx context.Context, run *model.LeadRun, country *model.CountryConfig) ([]discoveredCompany, error) {
	searchPrompt := fmt.Sprintf(
		"Find companies in %s matching this ideal customer profile: %s. "+
			"List company names with their websites and industries. Focus on companies not commonly known; include local mid-size businesses.",
		country.Name, run.Strategy)
	if country.Language != "" && country.LocalName != "" {
		searchPrompt += fmt.Sprintf(" Search in %s using the local country name %q as well.", country.Language, country.LocalName)
	}

	content, err := s.groundedSearch(ctx, run.ID, searchPrompt)
	if err != nil {
		return nil, err
	}

	text, err := s.askClaude(ctx, run.ID, s.cfg.Anthropic.Model, discoveryExtractPrompt, content)
	if err != nil {
		return nil, err
	}
	return parseDiscoveredCompanies(text)
}

func (s *Service) discoverDegraded(ctx context.Context, run *model.LeadRun, country *model.CountryConfig) ([]discoveredCompany, error) {
	user := fmt.Sprintf("Country: %s\nIdeal customer profile: %s", country.Name, run.Strategy)
	text, err := s.askClaude(ctx, run.ID, s.cfg.Anthropic.FastModel, discoveryDegradedPrompt, user)
	if err != nil {
		return nil, err
	}
	return parseDiscoveredCompanies(text)
}

func parseDiscoveredCompanies(text string) ([]discoveredCompany, error) {
	payload, err := extractJSON(text, "[", "]")
	if err != nil {
		return nil, err
	}
	var companies []discoveredCompany
	if err := json.Unmarshal([]byte(payload), &companies); err != nil {
		return nil, eris.Wrap(err, "research: parse discovered companies")
	}
	return companies, nil
}

// currentCountryIndex returns the first country with remaining quota, or -1.
func currentCountryIndex(countries []model.CountryConfig) int {
	return nextPendingCountry(countries, 0)
}

func nextPendingCountry(countries []model.CountryConfig, from int) int {
	for i := from; i < len(countries); i++ {
		c := countries[i]
		if c.Status == model.CountryDoneStatus || c.Status == model.CountrySkipped {
			continue
		}
		if c.ConsumedQueries < c.AllocatedQueries {
			return i
		}
	}
	return -1
}

func domainOf(website string) string {
	w := strings.TrimSpace(website)
	if w == "" {
		return ""
	}
	w = strings.TrimPrefix(w, "https://")
	w = strings.TrimPrefix(w, "http://")
	w = strings.TrimPrefix(w, "www.")
	if i := strings.IndexAny(w, "/?#"); i >= 0 {
		w = w[:i]
	}
	return strings.ToLower(w)
}
