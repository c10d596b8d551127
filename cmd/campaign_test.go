package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertax/leadgen-cli/internal/model"
)

const campaignYAML = `product_id: warehouse-automation
strategy: mid-size manufacturers with manual logistics
target_company_count: 50
countries:
  - code: DE
    priority: high
    local_name: Deutschland
    language: German
  - code: MX
    priority: medium
  - code: vn
    priority: low
`

func writeCampaignFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "campaign.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCampaign(t *testing.T) {
	c, err := loadCampaign(writeCampaignFile(t, campaignYAML))
	require.NoError(t, err)

	assert.Equal(t, "warehouse-automation", c.ProductID)
	assert.Equal(t, 50, c.TargetCompanyCount)
	require.Len(t, c.Countries, 3)
	assert.Equal(t, "Deutschland", c.Countries[0].LocalName)
}

func TestLoadCampaign_MissingFile(t *testing.T) {
	_, err := loadCampaign(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestCampaignValidate(t *testing.T) {
	valid := Campaign{
		Strategy:           "x",
		TargetCompanyCount: 10,
		Countries:          []CampaignCountry{{Code: "DE", Priority: "high"}},
	}

	tests := []struct {
		name    string
		mutate  func(*Campaign)
		wantErr string
	}{
		{"valid", func(c *Campaign) {}, ""},
		{"missing strategy", func(c *Campaign) { c.Strategy = " " }, "strategy is required"},
		{"zero target", func(c *Campaign) { c.TargetCompanyCount = 0 }, "must be positive"},
		{"no countries", func(c *Campaign) { c.Countries = nil }, "at least one country"},
		{"bad country code", func(c *Campaign) { c.Countries[0].Code = "XYZ123" }, "invalid country code"},
		{"bad priority", func(c *Campaign) { c.Countries[0].Priority = "urgent" }, "invalid priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			c.Countries = append([]CampaignCountry(nil), valid.Countries...)
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCampaignCountryConfigs(t *testing.T) {
	c, err := loadCampaign(writeCampaignFile(t, campaignYAML))
	require.NoError(t, err)

	configs := c.CountryConfigs()
	require.Len(t, configs, 3)

	// Name filled in from the region code where the campaign omits it.
	assert.Equal(t, "Germany", configs[0].Name)
	assert.Equal(t, "DE", configs[0].Code)
	assert.Equal(t, model.PriorityHigh, configs[0].Priority)
	assert.Equal(t, model.CountryPending, configs[0].Status)

	// Lowercase codes are canonicalized.
	assert.Equal(t, "VN", configs[2].Code)

	// Quotas follow priority weights over ceil(50/4) = 13 total queries,
	// so the high-priority country gets the biggest share.
	var total int
	for _, cc := range configs {
		assert.GreaterOrEqual(t, cc.AllocatedQueries, 1)
		total += cc.AllocatedQueries
	}
	assert.GreaterOrEqual(t, total, 13)
	assert.Greater(t, configs[0].AllocatedQueries, configs[2].AllocatedQueries)
}

func TestCampaignCountryConfigs_DefaultPriority(t *testing.T) {
	c := Campaign{
		Strategy:           "x",
		TargetCompanyCount: 10,
		Countries:          []CampaignCountry{{Code: "DE"}},
	}
	configs := c.CountryConfigs()
	require.Len(t, configs, 1)
	assert.Equal(t, model.PriorityMedium, configs[0].Priority)
}
