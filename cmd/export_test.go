package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/vertax/leadgen-cli/internal/model"
)

func scoredCompany(name string, tier model.Tier, contacts ...model.Contact) model.Company {
	return model.Company{
		Name:     name,
		Website:  "https://" + name + ".example.com",
		Country:  "DE",
		Industry: "manufacturing",
		Scoring: &model.Scoring{
			Total:   62,
			Tier:    tier,
			Reasons: []string{"regulation trigger", "hiring activity"},
		},
		WebsiteAnalysis: &model.WebsiteAnalysis{Qualification: model.Qualified},
		Contacts:        contacts,
	}
}

func TestFilterLeads(t *testing.T) {
	companies := []model.Company{
		scoredCompany("alpha", model.TierA),
		scoredCompany("beta", model.TierC),
		{Name: "unscored"},
	}

	all := filterLeads(companies, nil)
	require.Len(t, all, 2) // unscored company excluded

	onlyA := filterLeads(companies, parseTierFilter("A"))
	require.Len(t, onlyA, 1)
	assert.Equal(t, "alpha", onlyA[0].Name)

	ab := filterLeads(companies, parseTierFilter("a, c"))
	assert.Len(t, ab, 2)
}

func TestParseTierFilter(t *testing.T) {
	assert.Empty(t, parseTierFilter(""))
	assert.Equal(t, map[model.Tier]bool{model.TierA: true, model.TierB: true}, parseTierFilter("a,B"))
}

func TestWriteLeadsXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.xlsx")
	leads := []model.Company{
		scoredCompany("alpha", model.TierA, model.Contact{Name: "Maria Schmidt", Email: "maria@alpha.example.com"}),
		scoredCompany("beta", model.TierB),
	}

	require.NoError(t, writeLeadsXLSX(path, leads))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	require.Len(t, sheet.Rows, 3) // header + two leads

	assert.Equal(t, "Company", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "alpha", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "A", sheet.Rows[1].Cells[4].String())
	assert.Equal(t, "Maria Schmidt", sheet.Rows[1].Cells[8].String())
	assert.Equal(t, "beta", sheet.Rows[2].Cells[0].String())
}
