package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompanyStatusCanAdvance(t *testing.T) {
	tests := []struct {
		from, to CompanyStatus
		want     bool
	}{
		{CompanyDiscovered, CompanyResearching, true},
		{CompanyDiscovered, CompanyOutreached, true},
		{CompanyResearching, CompanyResearched, true},
		{CompanyResearched, CompanyScored, true},
		{CompanyScored, CompanyScored, true},
		{CompanyScored, CompanyFailed, true},
		{CompanyScored, CompanyDiscovered, false},
		{CompanyOutreached, CompanyResearching, false},
		{CompanyFailed, CompanyDiscovered, false},
		{CompanyStatus("bogus"), CompanyScored, false},
		{CompanyDiscovered, CompanyStatus("bogus"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanAdvance(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestRunStatusTerminal(t *testing.T) {
	assert.False(t, RunStatusQueued.Terminal())
	assert.False(t, RunStatusRunning.Terminal())
	assert.True(t, RunStatusDone.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
	assert.True(t, RunStatusCanceled.Terminal())
}

func TestTierLabels(t *testing.T) {
	assert.Equal(t, "Critical Pain", TierA.Label())
	assert.Equal(t, "Active Change", TierB.Label())
	assert.Equal(t, "High Potential", TierC.Label())
	assert.Equal(t, "Cold Lead", TierD.Label())
	assert.Equal(t, "Unknown", Tier("X").Label())
}
