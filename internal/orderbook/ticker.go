package orderbook

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-arb-monitor/internal/models"
	"github.com/irfndi/celebrum-arb-monitor/internal/utils"
)

// Ticker is an immutable top-of-book and 24h volume snapshot
type Ticker struct {
	Exchange          models.Exchange     `json:"exchange"`
	CurrencyPair      models.CurrencyPair `json:"currency_pair"`
	Bid               decimal.Decimal     `json:"bid"`
	Ask               decimal.Decimal     `json:"ask"`
	BaseVolume24h     decimal.NullDecimal `json:"base_volume_24h"`
	CounterVolume24h  decimal.NullDecimal `json:"counter_volume_24h"`
	ReceivedAt        time.Time           `json:"received_at"`
	ExchangeTimestamp *time.Time          `json:"exchange_timestamp,omitempty"`
}

// OldestTimestamp implements Timestamped. It is safe on a nil ticker.
func (t *Ticker) OldestTimestamp() (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	return oldest(t.ReceivedAt, t.ExchangeTimestamp), true
}

// WeightedAveragePrice quotes the top of book for any depth; a ticker
// carries no depth information.
func (t *Ticker) WeightedAveragePrice(side BookSide, usdDepth, usdPriceOfCounterCurrency decimal.Decimal) *models.AveragePrice {
	if t == nil {
		return nil
	}
	price := t.Bid
	if side == Asks {
		price = t.Ask
	}
	if !price.IsPositive() {
		return nil
	}
	counterDepth, ok := counterAmount(usdDepth, usdPriceOfCounterCurrency)
	if !ok {
		return nil
	}
	return &models.AveragePrice{
		AveragePrice:       price,
		BaseCurrencyAmount: utils.DivBankScale(counterDepth, price, utils.DivisionScale),
	}
}
