package arbitrage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/irfndi/celebrum-arb-monitor/internal/orderbook"
)

func millis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func TestTimestampStaleDetector_IsStale(t *testing.T) {
	detector := NewTimestampStaleDetector(20 * time.Millisecond)
	first := &orderbook.OrderBook{ReceivedAt: millis(110)}
	second := &orderbook.OrderBook{ReceivedAt: millis(111)}

	assert.False(t, detector.IsStale(first, second, millis(130)))
	assert.True(t, detector.IsStale(first, second, millis(131)))

	exchangeTimestamp := millis(109)
	second.ExchangeTimestamp = &exchangeTimestamp
	assert.True(t, detector.IsStale(first, second, millis(130)))
}

func TestTimestampStaleDetector_AbsentSides(t *testing.T) {
	detector := NewTimestampStaleDetector(20 * time.Millisecond)
	var missing *orderbook.OrderBook

	assert.False(t, detector.IsStale(missing, missing, millis(10_000)))
	assert.False(t, detector.IsStale(nil, nil, millis(10_000)))

	present := &orderbook.Ticker{ReceivedAt: millis(200)}
	assert.False(t, detector.IsStale(present, missing, millis(220)))
	assert.True(t, detector.IsStale(present, missing, millis(221)))
}

func TestNewTimestampStaleDetector_Default(t *testing.T) {
	assert.Equal(t, DefaultMaxSnapshotAge, NewTimestampStaleDetector(0).MaxAge)
	assert.Equal(t, DefaultMaxOrderAge, NewOrderStaleDetector(-time.Second).MaxAge)
}

func TestOrderStaleDetector_IsStale(t *testing.T) {
	detector := NewOrderStaleDetector(time.Hour)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-30 * time.Minute)
	old := now.Add(-61 * time.Minute)

	order := func(ts *time.Time) orderbook.Order {
		return orderbook.Order{Price: decimal.NewFromInt(1), Amount: decimal.NewFromInt(1), Timestamp: ts}
	}

	t.Run("fresh orders", func(t *testing.T) {
		book := &orderbook.OrderBook{BuyOrders: []orderbook.Order{order(&fresh)}, SellOrders: []orderbook.Order{order(&fresh)}}
		assert.False(t, detector.IsStale(book, book, now))
	})

	t.Run("old best order", func(t *testing.T) {
		first := &orderbook.OrderBook{BuyOrders: []orderbook.Order{order(&fresh)}, SellOrders: []orderbook.Order{order(&fresh)}}
		second := &orderbook.OrderBook{BuyOrders: []orderbook.Order{order(&old)}, SellOrders: []orderbook.Order{order(&fresh)}}
		assert.True(t, detector.IsStale(first, second, now))
	})

	t.Run("empty side is stale", func(t *testing.T) {
		book := &orderbook.OrderBook{BuyOrders: []orderbook.Order{order(&fresh)}}
		assert.True(t, detector.IsStale(book, nil, now))
	})

	t.Run("orders without timestamps", func(t *testing.T) {
		book := &orderbook.OrderBook{BuyOrders: []orderbook.Order{order(nil)}, SellOrders: []orderbook.Order{order(nil)}}
		assert.False(t, detector.IsStale(book, book, now))
	})

	t.Run("both absent", func(t *testing.T) {
		assert.False(t, detector.IsStale(nil, nil, now))
	})
}

func TestOldestTimestamp(t *testing.T) {
	exchangeTimestamp := millis(50)
	ts, ok := OldestTimestamp(
		&orderbook.OrderBook{ReceivedAt: millis(100)},
		&orderbook.Ticker{ReceivedAt: millis(90), ExchangeTimestamp: &exchangeTimestamp},
	)
	assert.True(t, ok)
	assert.Equal(t, millis(50), ts)

	_, ok = OldestTimestamp()
	assert.False(t, ok)
}
