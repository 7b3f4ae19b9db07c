package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicyCheck(t *testing.T) {
	p := NewPolicy(0.70, []string{"all-in", "All In ", "100%", ""})

	t.Run("clean task passes", func(t *testing.T) {
		ok, reason := p.Check("Rebalance into stablecoins", "approve", 0.9)
		assert.True(t, ok)
		assert.Empty(t, reason)
	})

	t.Run("prohibited phrase vetoes regardless of confidence", func(t *testing.T) {
		ok, reason := p.Check("Go ALL-IN on memecoins", "approve", 0.99)
		assert.False(t, ok)
		assert.Equal(t, ReasonProhibited, reason)
	})

	t.Run("phrase matching is case-insensitive", func(t *testing.T) {
		ok, reason := p.Check("allocate 100% of the vault", "approve", 0.99)
		assert.False(t, ok)
		assert.Equal(t, ReasonProhibited, reason)
	})

	t.Run("low confidence rejected", func(t *testing.T) {
		ok, reason := p.Check("Rebalance into stablecoins", "approve", 0.69)
		assert.False(t, ok)
		assert.Equal(t, ReasonRejected, reason)
	})

	t.Run("phrase rule wins over confidence rule", func(t *testing.T) {
		ok, reason := p.Check("go all-in", "approve", 0.1)
		assert.False(t, ok)
		assert.Equal(t, ReasonProhibited, reason)
	})

	t.Run("boundary confidence passes", func(t *testing.T) {
		ok, _ := p.Check("Rebalance", "approve", 0.70)
		assert.True(t, ok)
	})
}
