package main

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
	"gopkg.in/yaml.v3"

	"github.com/vertax/leadgen-cli/internal/allocator"
	"github.com/vertax/leadgen-cli/internal/model"
)

// Campaign describes one discovery run: what is being sold, how to search
// for buyers, and which countries to cover.
type Campaign struct {
	ProductID          string            `yaml:"product_id" json:"product_id"`
	Strategy           string            `yaml:"strategy" json:"strategy"`
	TargetCompanyCount int               `yaml:"target_company_count" json:"target_company_count"`
	Countries          []CampaignCountry `yaml:"countries" json:"countries"`
}

// CampaignCountry is one target market. LocalName and Language let the
// discovery prompts search in the country's own language.
type CampaignCountry struct {
	Code      string `yaml:"code" json:"code"`
	Name      string `yaml:"name" json:"name"`
	LocalName string `yaml:"local_name" json:"local_name"`
	Language  string `yaml:"language" json:"language"`
	Priority  string `yaml:"priority" json:"priority"`
}

func loadCampaign(path string) (*Campaign, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read campaign file")
	}

	var c Campaign
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "parse campaign file")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the campaign for the fields a run cannot start without.
func (c *Campaign) Validate() error {
	if strings.TrimSpace(c.Strategy) == "" {
		return eris.New("campaign: strategy is required")
	}
	if c.TargetCompanyCount <= 0 {
		return eris.New("campaign: target_company_count must be positive")
	}
	if len(c.Countries) == 0 {
		return eris.New("campaign: at least one country is required")
	}

	for i, cc := range c.Countries {
		if _, err := language.ParseRegion(cc.Code); err != nil {
			return eris.Wrapf(err, "campaign: countries[%d]: invalid country code %q", i, cc.Code)
		}
		switch model.Priority(strings.ToLower(cc.Priority)) {
		case model.PriorityHigh, model.PriorityMedium, model.PriorityLow, "":
		default:
			return eris.Errorf("campaign: countries[%d]: invalid priority %q", i, cc.Priority)
		}
	}

	return nil
}

// CountryConfigs turns the campaign's country list into run state with
// per-country query quotas allocated by priority weight. Missing country
// names are filled from the region code's English display name.
func (c *Campaign) CountryConfigs() []model.CountryConfig {
	priorities := make([]allocator.CountryPriority, 0, len(c.Countries))
	for _, cc := range c.Countries {
		priorities = append(priorities, allocator.CountryPriority{
			Code:     strings.ToUpper(cc.Code),
			Priority: priorityOf(cc.Priority),
		})
	}
	quotas := allocator.Allocate(priorities, c.TargetCompanyCount)

	configs := make([]model.CountryConfig, 0, len(c.Countries))
	for _, cc := range c.Countries {
		code := strings.ToUpper(cc.Code)
		name := cc.Name
		if name == "" {
			if region, err := language.ParseRegion(code); err == nil {
				name = display.English.Regions().Name(region)
			}
		}
		configs = append(configs, model.CountryConfig{
			Code:             code,
			Name:             name,
			LocalName:        cc.LocalName,
			Language:         cc.Language,
			Priority:         priorityOf(cc.Priority),
			AllocatedQueries: quotas[code],
			Status:           model.CountryPending,
		})
	}
	return configs
}

func priorityOf(s string) model.Priority {
	p := model.Priority(strings.ToLower(s))
	if p == "" {
		return model.PriorityMedium
	}
	return p
}
