package arbitrage

import (
	"github.com/shopspring/decimal"
)

// OpportunityCutOff decides whether a computed profit and the 24h volumes
// are worth reporting
type OpportunityCutOff struct {
	MinRelativeProfit decimal.Decimal
	MaxRelativeProfit decimal.Decimal
	MinUsd24hVolume   decimal.Decimal
}

// DefaultOpportunityCutOff returns min 0.2% and max 100% relative profit
// and a 1000 USD minimum 24h volume. Profit above 100% nearly always means
// mismatched symbols rather than a real opportunity.
func DefaultOpportunityCutOff() OpportunityCutOff {
	return OpportunityCutOff{
		MinRelativeProfit: decimal.RequireFromString("0.002"),
		MaxRelativeProfit: decimal.NewFromInt(1),
		MinUsd24hVolume:   decimal.NewFromInt(1000),
	}
}

// ProfitWithinRange reports min <= profit <= max
func (c OpportunityCutOff) ProfitWithinRange(relativeProfit decimal.Decimal) bool {
	return relativeProfit.GreaterThanOrEqual(c.MinRelativeProfit) &&
		relativeProfit.LessThanOrEqual(c.MaxRelativeProfit)
}

// VolumeTooLow compares the smaller of the known volumes with the minimum.
// Unknown volumes never make the check fail.
func (c OpportunityCutOff) VolumeTooLow(first, second decimal.NullDecimal) bool {
	switch {
	case first.Valid && second.Valid:
		return decimal.Min(first.Decimal, second.Decimal).LessThan(c.MinUsd24hVolume)
	case first.Valid:
		return first.Decimal.LessThan(c.MinUsd24hVolume)
	case second.Valid:
		return second.Decimal.LessThan(c.MinUsd24hVolume)
	default:
		return false
	}
}
