package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AveragePrice is the volume weighted average price reachable for a target
// USD depth and the base currency amount that depth represents
type AveragePrice struct {
	AveragePrice       decimal.Decimal `json:"average_price"`
	BaseCurrencyAmount decimal.Decimal `json:"base_currency_amount"`
}

// FeeAmount is a transaction fee in base currency units. IsEstimated is set
// when no tiered fee schedule was available and the default ratio was used.
type FeeAmount struct {
	Amount      decimal.Decimal `json:"amount"`
	IsEstimated bool            `json:"is_estimated"`
}

// LegProfit is the result of one fee-aware direction calculation
type LegProfit struct {
	RelativeProfit           decimal.Decimal     `json:"relative_profit"`
	BaseAmountBeforeTransfer decimal.Decimal     `json:"base_amount_before_transfer"`
	BaseAmountAfterTransfer  decimal.Decimal     `json:"base_amount_after_transfer"`
	FeeBeforeTransfer        decimal.Decimal     `json:"fee_before_transfer"`
	TransferFee              decimal.NullDecimal `json:"transfer_fee"`
	FeeAfterTransfer         decimal.Decimal     `json:"fee_after_transfer"`
	IsFeeBeforeEstimated     bool                `json:"is_fee_before_estimated"`
	IsFeeAfterEstimated      bool                `json:"is_fee_after_estimated"`
}

// OpportunityAtDepth is one histogram row of an Opportunity
type OpportunityAtDepth struct {
	SellPrice                decimal.Decimal     `json:"sell_price"`
	BuyPrice                 decimal.Decimal     `json:"buy_price"`
	BaseAmountAtSellExchange decimal.Decimal     `json:"base_amount_at_sell_exchange"`
	BaseAmountAtBuyExchange  decimal.Decimal     `json:"base_amount_at_buy_exchange"`
	RelativeProfit           decimal.Decimal     `json:"relative_profit"`
	ProfitUsd                decimal.Decimal     `json:"profit_usd"`
	UsdDepthUpTo             decimal.Decimal     `json:"usd_depth_up_to"`
	BuyAtExchange            Exchange            `json:"buy_at_exchange"`
	SellAtExchange           Exchange            `json:"sell_at_exchange"`
	SellFee                  decimal.Decimal     `json:"sell_fee"`
	BuyFee                   decimal.Decimal     `json:"buy_fee"`
	WithdrawalFee            decimal.NullDecimal `json:"withdrawal_fee"`
	IsSellFeeEstimated       bool                `json:"is_sell_fee_estimated"`
	IsBuyFeeEstimated        bool                `json:"is_buy_fee_estimated"`
}

// Opportunity is the cached result for one Key at one point in time.
// Histogram[i] belongs to the i-th configured USD depth threshold and is nil
// when that depth produced no result.
type Opportunity struct {
	Key                        Key                   `json:"key"`
	BuyAtExchange              Exchange              `json:"buy_at_exchange"`
	SellAtExchange             Exchange              `json:"sell_at_exchange"`
	Usd24hVolumeAtBuyExchange  decimal.NullDecimal   `json:"usd_24h_volume_at_buy_exchange"`
	Usd24hVolumeAtSellExchange decimal.NullDecimal   `json:"usd_24h_volume_at_sell_exchange"`
	Histogram                  []*OpportunityAtDepth `json:"histogram"`
	CalculatedAt               time.Time             `json:"calculated_at"`
	OldestSourceDataTimestamp  time.Time             `json:"oldest_source_data_timestamp"`
}

// HasAnyDepth reports whether at least one histogram row is present
func (o Opportunity) HasAnyDepth() bool {
	for _, row := range o.Histogram {
		if row != nil {
			return true
		}
	}
	return false
}

// ExchangePairCount is the number of keys of one exchange pair that
// currently have a non-empty histogram
type ExchangePairCount struct {
	ExchangePair ExchangePair `json:"exchange_pair"`
	Count        int          `json:"count"`
}
