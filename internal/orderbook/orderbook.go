// Package orderbook holds exchange order book and ticker snapshots and the
// weighted average price primitive the arbitrage monitors price depth with.
package orderbook

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-arb-monitor/internal/models"
	"github.com/irfndi/celebrum-arb-monitor/internal/utils"
)

// BookSide selects which side of a book is walked
type BookSide int

const (
	// Bids are the buy orders; selling base currency consumes them
	Bids BookSide = iota
	// Asks are the sell orders; buying base currency consumes them
	Asks
)

func (s BookSide) String() string {
	if s == Bids {
		return "bids"
	}
	return "asks"
}

// DepthPriceSource returns the volume weighted average execution price
// achievable up to a USD depth, or nil when there is not enough liquidity.
type DepthPriceSource interface {
	WeightedAveragePrice(side BookSide, usdDepth, usdPriceOfCounterCurrency decimal.Decimal) *models.AveragePrice
}

// Timestamped is implemented by snapshots whose age can be judged
type Timestamped interface {
	// OldestTimestamp returns min(receivedAt, exchangeTimestamp) and false
	// when the snapshot is absent.
	OldestTimestamp() (time.Time, bool)
}

// Order is one price level of a book
type Order struct {
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// OrderBook is an immutable snapshot of one exchange's book for one pair.
// BuyOrders are sorted by descending price, SellOrders by ascending price.
type OrderBook struct {
	Exchange          models.Exchange     `json:"exchange"`
	CurrencyPair      models.CurrencyPair `json:"currency_pair"`
	BuyOrders         []Order             `json:"buy_orders"`
	SellOrders        []Order             `json:"sell_orders"`
	ReceivedAt        time.Time           `json:"received_at"`
	ExchangeTimestamp *time.Time          `json:"exchange_timestamp,omitempty"`
}

// OldestTimestamp implements Timestamped. It is safe on a nil book.
func (ob *OrderBook) OldestTimestamp() (time.Time, bool) {
	if ob == nil {
		return time.Time{}, false
	}
	return oldest(ob.ReceivedAt, ob.ExchangeTimestamp), true
}

// FirstBuyOrder returns the best bid or nil for an empty side
func (ob *OrderBook) FirstBuyOrder() *Order {
	if ob == nil || len(ob.BuyOrders) == 0 {
		return nil
	}
	return &ob.BuyOrders[0]
}

// FirstSellOrder returns the best ask or nil for an empty side
func (ob *OrderBook) FirstSellOrder() *Order {
	if ob == nil || len(ob.SellOrders) == 0 {
		return nil
	}
	return &ob.SellOrders[0]
}

// WeightedAveragePrice walks the chosen side until the counter currency
// equivalent of usdDepth is filled.
func (ob *OrderBook) WeightedAveragePrice(side BookSide, usdDepth, usdPriceOfCounterCurrency decimal.Decimal) *models.AveragePrice {
	if ob == nil {
		return nil
	}
	counterDepth, ok := counterAmount(usdDepth, usdPriceOfCounterCurrency)
	if !ok {
		return nil
	}

	orders := ob.BuyOrders
	if side == Asks {
		orders = ob.SellOrders
	}

	remaining := counterDepth
	baseSum := decimal.Zero
	counterSum := decimal.Zero
	for _, order := range orders {
		if !order.Price.IsPositive() || !order.Amount.IsPositive() {
			continue
		}
		levelCounter := order.Price.Mul(order.Amount)
		if levelCounter.GreaterThanOrEqual(remaining) {
			baseSum = baseSum.Add(utils.DivBankScale(remaining, order.Price, utils.DivisionScale))
			counterSum = counterSum.Add(remaining)
			remaining = decimal.Zero
			break
		}
		baseSum = baseSum.Add(order.Amount)
		counterSum = counterSum.Add(levelCounter)
		remaining = remaining.Sub(levelCounter)
	}

	if remaining.IsPositive() || !baseSum.IsPositive() {
		return nil
	}

	return &models.AveragePrice{
		AveragePrice:       utils.DivBankScale(counterSum, baseSum, utils.DivisionScale),
		BaseCurrencyAmount: baseSum,
	}
}

func counterAmount(usdDepth, usdPriceOfCounterCurrency decimal.Decimal) (decimal.Decimal, bool) {
	if !usdDepth.IsPositive() || !usdPriceOfCounterCurrency.IsPositive() {
		return decimal.Zero, false
	}
	return utils.DivBankScale(usdDepth, usdPriceOfCounterCurrency, utils.DivisionScale), true
}

func oldest(receivedAt time.Time, exchangeTimestamp *time.Time) time.Time {
	if exchangeTimestamp != nil && exchangeTimestamp.Before(receivedAt) {
		return *exchangeTimestamp
	}
	return receivedAt
}
