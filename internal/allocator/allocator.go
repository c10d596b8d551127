// Package allocator distributes the discovery query budget across target
// countries by priority. Pure and deterministic; the caller persists the
// result into CountryConfig.AllocatedQueries.
package allocator

import (
	"math"

	"github.com/vertax/leadgen-cli/internal/model"
)

// AvgCompaniesPerQuery is the assumed average yield of one discovery query.
const AvgCompaniesPerQuery = 4

var priorityWeights = map[model.Priority]float64{
	model.PriorityHigh:   0.5,
	model.PriorityMedium: 0.3,
	model.PriorityLow:    0.2,
}

// CountryPriority is one (country code, priority) input pair.
type CountryPriority struct {
	Code     string
	Priority model.Priority
}

// TotalQueries returns the global query budget for a target company count.
func TotalQueries(targetCount int) int {
	if targetCount <= 0 {
		return 0
	}
	return int(math.Ceil(float64(targetCount) / AvgCompaniesPerQuery))
}

// Allocate computes how many discovery queries each country receives.
// Every country gets at least one query regardless of weight; higher
// priorities receive a proportionally larger share.
func Allocate(countries []CountryPriority, targetCount int) map[string]int {
	out := make(map[string]int, len(countries))
	if len(countries) == 0 {
		return out
	}

	total := TotalQueries(targetCount)

	sumWeights := 0.0
	for _, c := range countries {
		sumWeights += weightOf(c.Priority)
	}

	for _, c := range countries {
		share := math.Ceil(float64(total) * weightOf(c.Priority) / sumWeights)
		out[c.Code] = int(math.Max(1, share))
	}
	return out
}

func weightOf(p model.Priority) float64 {
	if w, ok := priorityWeights[p]; ok {
		return w
	}
	// Unknown priorities are treated as low rather than rejected.
	return priorityWeights[model.PriorityLow]
}
