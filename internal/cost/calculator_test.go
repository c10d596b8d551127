package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaude(t *testing.T) {
	c := NewCalculator(DefaultRates())

	// 1M input + 1M output on sonnet = 3.00 + 15.00.
	got := c.Claude("claude-sonnet-4-5-20250929", 1_000_000, 1_000_000)
	assert.InDelta(t, 18.0, got, 0.001)

	got = c.Claude("claude-haiku-4-5-20251001", 500_000, 0)
	assert.InDelta(t, 0.40, got, 0.001)
}

func TestClaude_UnknownModel(t *testing.T) {
	c := NewCalculator(DefaultRates())
	assert.Equal(t, 0.0, c.Claude("gpt-99", 1_000_000, 1_000_000))
}

func TestPerplexityQuery(t *testing.T) {
	c := NewCalculator(DefaultRates())
	assert.Equal(t, 0.005, c.PerplexityQuery())
}
