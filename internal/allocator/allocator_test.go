package allocator

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vertax/leadgen-cli/internal/model"
)

func TestTotalQueries(t *testing.T) {
	assert.Equal(t, 0, TotalQueries(0))
	assert.Equal(t, 0, TotalQueries(-5))
	assert.Equal(t, 1, TotalQueries(1))
	assert.Equal(t, 1, TotalQueries(4))
	assert.Equal(t, 2, TotalQueries(5))
	assert.Equal(t, 8, TotalQueries(30))
	assert.Equal(t, 25, TotalQueries(100))
}

func TestAllocate_HighVsLow(t *testing.T) {
	// countries = [{DE, high}, {MX, low}], target=30 → total budget 8,
	// DE must receive at least as many queries as MX.
	countries := []CountryPriority{
		{Code: "DE", Priority: model.PriorityHigh},
		{Code: "MX", Priority: model.PriorityLow},
	}

	got := Allocate(countries, 30)
	assert.Len(t, got, 2)
	assert.GreaterOrEqual(t, got["DE"], got["MX"])
	assert.GreaterOrEqual(t, got["MX"], 1)

	// ceil(8 * 0.5/0.7) = 6, ceil(8 * 0.2/0.7) = 3
	assert.Equal(t, 6, got["DE"])
	assert.Equal(t, 3, got["MX"])
}

func TestAllocate_EveryCountryGetsAQuery(t *testing.T) {
	countries := []CountryPriority{
		{Code: "DE", Priority: model.PriorityHigh},
		{Code: "FR", Priority: model.PriorityHigh},
		{Code: "MX", Priority: model.PriorityLow},
		{Code: "VN", Priority: model.PriorityLow},
		{Code: "KE", Priority: model.PriorityLow},
	}

	// Tiny target: budget of 1 query still yields ≥1 per country.
	got := Allocate(countries, 2)
	for code, q := range got {
		assert.GreaterOrEqual(t, q, 1, "country %s", code)
	}
}

func TestAllocate_HighNeverBelowMedium(t *testing.T) {
	for _, target := range []int{4, 10, 30, 77, 200} {
		t.Run(fmt.Sprintf("target_%d", target), func(t *testing.T) {
			countries := []CountryPriority{
				{Code: "DE", Priority: model.PriorityHigh},
				{Code: "BR", Priority: model.PriorityMedium},
				{Code: "MX", Priority: model.PriorityLow},
			}
			got := Allocate(countries, target)
			assert.GreaterOrEqual(t, got["DE"], got["BR"])
			assert.GreaterOrEqual(t, got["BR"], got["MX"])
		})
	}
}

func TestAllocate_SumTracksBudget(t *testing.T) {
	countries := []CountryPriority{
		{Code: "DE", Priority: model.PriorityHigh},
		{Code: "MX", Priority: model.PriorityLow},
	}

	got := Allocate(countries, 30)
	sum := 0
	for _, q := range got {
		sum += q
	}
	// Per-country ceil rounding can only overshoot, never undershoot.
	assert.GreaterOrEqual(t, sum, TotalQueries(30))
	assert.LessOrEqual(t, sum, TotalQueries(30)+len(countries))
}

func TestAllocate_Empty(t *testing.T) {
	got := Allocate(nil, 50)
	assert.Empty(t, got)
}

func TestAllocate_UnknownPriorityTreatedAsLow(t *testing.T) {
	countries := []CountryPriority{
		{Code: "DE", Priority: model.PriorityHigh},
		{Code: "XX", Priority: model.Priority("urgent")},
	}
	got := Allocate(countries, 40)
	assert.GreaterOrEqual(t, got["DE"], got["XX"])
}
