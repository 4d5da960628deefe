package arbitrage

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOpportunityCutOff_ProfitWithinRange(t *testing.T) {
	cutoff := DefaultOpportunityCutOff()

	tests := []struct {
		profit   string
		expected bool
	}{
		{"0.002", true},
		{"0.0019", false},
		{"1.0", true},
		{"1.01", false},
		{"0.5", true},
		{"-0.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.profit, func(t *testing.T) {
			assert.Equal(t, tt.expected, cutoff.ProfitWithinRange(decimal.RequireFromString(tt.profit)))
		})
	}
}

func TestOpportunityCutOff_VolumeTooLow(t *testing.T) {
	cutoff := DefaultOpportunityCutOff()
	volume := func(v string) decimal.NullDecimal {
		return decimal.NewNullDecimal(decimal.RequireFromString(v))
	}

	assert.True(t, cutoff.VolumeTooLow(volume("1001"), volume("999.99")))
	assert.False(t, cutoff.VolumeTooLow(volume("1001"), decimal.NullDecimal{}))
	assert.False(t, cutoff.VolumeTooLow(decimal.NullDecimal{}, decimal.NullDecimal{}))
	assert.True(t, cutoff.VolumeTooLow(decimal.NullDecimal{}, volume("10")))
	assert.False(t, cutoff.VolumeTooLow(volume("1000"), volume("1000")))
}
