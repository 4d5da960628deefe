package arbitrage

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-arb-monitor/internal/cache"
	"github.com/irfndi/celebrum-arb-monitor/internal/models"
	"github.com/irfndi/celebrum-arb-monitor/internal/orderbook"
	"github.com/irfndi/celebrum-arb-monitor/internal/pricing"
)

type memoryStore struct {
	mu            sync.Mutex
	opportunities map[models.Key]models.Opportunity
	sets          int
	removes       int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{opportunities: make(map[models.Key]models.Opportunity)}
}

func (s *memoryStore) Set(key models.Key, opportunity models.Opportunity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	s.opportunities[key] = opportunity
}

func (s *memoryStore) Remove(key models.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes++
	delete(s.opportunities, key)
}

func (s *memoryStore) Get(key models.Key) (models.Opportunity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	opportunity, ok := s.opportunities[key]
	return opportunity, ok
}

type MockErrorReporter struct {
	mock.Mock
}

func (m *MockErrorReporter) Report(category string, err error) {
	m.Called(category, err)
}

type MockMetricsSink struct {
	mock.Mock
}

func (m *MockMetricsSink) RecordCalculationTime(duration time.Duration, tags map[string]string) {
	m.Called(duration, tags)
}

func (m *MockMetricsSink) RecordOrderBookSizes(buyCount, sellCount int, tags map[string]string) {
	m.Called(buyCount, sellCount, tags)
}

type panickingPrices struct{}

func (panickingPrices) GetUsdPrice(string) (decimal.Decimal, error) {
	panic("price index out of range")
}

func (panickingPrices) GetUsdValue(string, decimal.Decimal) (decimal.Decimal, error) {
	panic("price index out of range")
}

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testPrices() *pricing.CachedPriceService {
	prices := pricing.NewCachedPriceService(nil, nil, 0, discardLogger())
	prices.SetFixedPrice("USDT", decimal.NewFromInt(1))
	prices.SetFixedPrice("ETH", decimal.NewFromInt(2000))
	return prices
}

func testKey() models.Key {
	return models.NewKey(models.NewCurrencyPair("ETH", "USDT"), models.NewExchangePair("binance", "kraken"))
}

func testConfig() MonitorConfig {
	return MonitorConfig{
		UsdDepthThresholds: []decimal.Decimal{decimal.NewFromInt(100), decimal.NewFromInt(1000), decimal.NewFromInt(1_000_000)},
		MaxTickerAge:       time.Minute,
		MaxOrderBookAge:    time.Minute,
		MaxOrderAge:        time.Hour,
		CutOff:             DefaultOpportunityCutOff(),
	}
}

func book(exchange string, bid, ask string) *orderbook.OrderBook {
	return &orderbook.OrderBook{
		Exchange:     models.Exchange(exchange),
		CurrencyPair: models.NewCurrencyPair("ETH", "USDT"),
		BuyOrders:    []orderbook.Order{{Price: d(bid), Amount: decimal.NewFromInt(10)}},
		SellOrders:   []orderbook.Order{{Price: d(ask), Amount: decimal.NewFromInt(10)}},
		ReceivedAt:   testNow.Add(-time.Second),
	}
}

func newTestMonitor(store OpportunityStore, prices PriceService, reporter ErrorReporter) *Monitor {
	monitor := NewMonitor(testKey(), testConfig(), Dependencies{
		Calculator: NewProfitCalculator(NoFeePolicy{}),
		Prices:     prices,
		Store:      store,
		Errors:     reporter,
		Logger:     discardLogger(),
	})
	monitor.now = func() time.Time { return testNow }
	return monitor
}

func TestMonitor_Lifecycle(t *testing.T) {
	store := newMemoryStore()
	monitor := newTestMonitor(store, testPrices(), nil)
	key := testKey()

	assert.Equal(t, Empty, monitor.State())

	monitor.OnOrderBook(FirstSide, book("binance", "2020", "2025"))
	assert.Equal(t, PartiallyPopulated, monitor.State())
	_, ok := store.Get(key)
	assert.False(t, ok)
	assert.Zero(t, store.sets+store.removes)

	monitor.OnOrderBook(SecondSide, book("kraken", "1995", "2000"))
	assert.Equal(t, Active, monitor.State())

	opportunity, ok := store.Get(key)
	require.True(t, ok)
	assert.Equal(t, key, opportunity.Key)
	assert.Equal(t, models.Exchange("kraken"), opportunity.BuyAtExchange)
	assert.Equal(t, models.Exchange("binance"), opportunity.SellAtExchange)
	assert.Equal(t, testNow, opportunity.CalculatedAt)
	assert.Equal(t, testNow.Add(-time.Second), opportunity.OldestSourceDataTimestamp)
	require.Len(t, opportunity.Histogram, 3)
	require.NotNil(t, opportunity.Histogram[0])
	require.NotNil(t, opportunity.Histogram[1])
	assert.Nil(t, opportunity.Histogram[2], "10 ETH of depth cannot fill one million USD")

	row := opportunity.Histogram[0]
	assertDecimal(t, "2000", row.BuyPrice)
	assertDecimal(t, "0.01", row.RelativeProfit.Round(6))
	assertDecimal(t, "100", row.UsdDepthUpTo)
	assertDecimal(t, "0.990099", row.ProfitUsd.Round(6))
	assert.Equal(t, models.Exchange("kraken"), row.BuyAtExchange)

	// spread collapses below the minimum profit
	monitor.OnOrderBook(SecondSide, book("kraken", "1990", "2019"))
	_, ok = store.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 1, store.removes)
}

func TestMonitor_BuyFirstSellSecond(t *testing.T) {
	store := newMemoryStore()
	monitor := newTestMonitor(store, testPrices(), nil)

	monitor.OnOrderBook(FirstSide, book("binance", "1995", "2000"))
	monitor.OnOrderBook(SecondSide, book("kraken", "2020", "2025"))

	opportunity, ok := store.Get(testKey())
	require.True(t, ok)
	assert.Equal(t, models.Exchange("binance"), opportunity.BuyAtExchange)
	assert.Equal(t, models.Exchange("kraken"), opportunity.SellAtExchange)
}

func TestMonitor_StaleBooksYieldNoOpportunity(t *testing.T) {
	store := newMemoryStore()
	monitor := newTestMonitor(store, testPrices(), nil)

	stale := book("binance", "2020", "2025")
	stale.ReceivedAt = testNow.Add(-2 * time.Minute)
	monitor.OnOrderBook(FirstSide, stale)
	monitor.OnOrderBook(SecondSide, book("kraken", "1995", "2000"))

	_, ok := store.Get(testKey())
	assert.False(t, ok)
	assert.Equal(t, 0, store.sets)
}

func TestMonitor_LowVolumeYieldsNoOpportunity(t *testing.T) {
	store := newMemoryStore()
	monitor := newTestMonitor(store, testPrices(), nil)

	ticker := &orderbook.Ticker{
		Exchange:         "binance",
		CurrencyPair:     models.NewCurrencyPair("ETH", "USDT"),
		CounterVolume24h: decimal.NewNullDecimal(decimal.NewFromInt(500)),
		ReceivedAt:       testNow,
	}
	monitor.OnTicker(FirstSide, ticker)
	monitor.OnOrderBook(FirstSide, book("binance", "2020", "2025"))
	monitor.OnOrderBook(SecondSide, book("kraken", "1995", "2000"))

	_, ok := store.Get(testKey())
	assert.False(t, ok)

	// base volume of 1 ETH is 2000 USD
	monitor.OnTicker(FirstSide, &orderbook.Ticker{
		Exchange:      "binance",
		CurrencyPair:  models.NewCurrencyPair("ETH", "USDT"),
		BaseVolume24h: decimal.NewNullDecimal(decimal.NewFromInt(1)),
		ReceivedAt:    testNow,
	})
	opportunity, ok := store.Get(testKey())
	require.True(t, ok)
	require.True(t, opportunity.Usd24hVolumeAtSellExchange.Valid)
	assertDecimal(t, "2000", opportunity.Usd24hVolumeAtSellExchange.Decimal)
	assert.False(t, opportunity.Usd24hVolumeAtBuyExchange.Valid)
}

func TestMonitor_SingleStaleTickerYieldsNoOpportunity(t *testing.T) {
	store := newMemoryStore()
	monitor := newTestMonitor(store, testPrices(), nil)

	// only one exchange has reported a ticker and it is three days old
	monitor.OnTicker(FirstSide, &orderbook.Ticker{
		Exchange:         "binance",
		CurrencyPair:     models.NewCurrencyPair("ETH", "USDT"),
		CounterVolume24h: decimal.NewNullDecimal(decimal.NewFromInt(5_000_000)),
		ReceivedAt:       testNow.Add(-72 * time.Hour),
	})
	monitor.OnOrderBook(FirstSide, book("binance", "2020", "2025"))
	monitor.OnOrderBook(SecondSide, book("kraken", "1995", "2000"))

	assert.Equal(t, Active, monitor.State())
	_, ok := store.Get(testKey())
	assert.False(t, ok)
	assert.Equal(t, 0, store.sets)

	// a fresh ticker on the same side restores the opportunity
	monitor.OnTicker(FirstSide, &orderbook.Ticker{
		Exchange:         "binance",
		CurrencyPair:     models.NewCurrencyPair("ETH", "USDT"),
		CounterVolume24h: decimal.NewNullDecimal(decimal.NewFromInt(5_000_000)),
		ReceivedAt:       testNow,
	})
	opportunity, ok := store.Get(testKey())
	require.True(t, ok)
	require.True(t, opportunity.Usd24hVolumeAtSellExchange.Valid)
	assertDecimal(t, "5000000", opportunity.Usd24hVolumeAtSellExchange.Decimal)
}

func TestMonitor_VolumeLookupFailureNamesCurrency(t *testing.T) {
	store := newMemoryStore()
	var reported error
	reporter := new(MockErrorReporter)
	reporter.On("Report", CategoryUpstreamUnavailable, mock.Anything).
		Run(func(args mock.Arguments) { reported = args.Error(1) }).Once()

	// no USDT price, so the counter volume cannot be valued
	prices := pricing.NewCachedPriceService(nil, nil, 0, discardLogger())
	prices.SetFixedPrice("ETH", decimal.NewFromInt(2000))
	monitor := newTestMonitor(store, prices, reporter)

	monitor.OnTicker(SecondSide, &orderbook.Ticker{
		Exchange:         "kraken",
		CurrencyPair:     models.NewCurrencyPair("ETH", "USDT"),
		CounterVolume24h: decimal.NewNullDecimal(decimal.NewFromInt(5_000_000)),
		ReceivedAt:       testNow,
	})
	monitor.OnOrderBook(FirstSide, book("binance", "2020", "2025"))
	monitor.OnOrderBook(SecondSide, book("kraken", "1995", "2000"))

	reporter.AssertExpectations(t)
	require.Error(t, reported)
	assert.ErrorIs(t, reported, ErrUpstreamUnavailable)
	assert.ErrorIs(t, reported, pricing.ErrPriceUnavailable)
	assert.Contains(t, reported.Error(), "usd 24h volume of USDT")
	assert.Equal(t, CategoryUpstreamUnavailable, ErrorCategory(reported))
	_, ok := store.Get(testKey())
	assert.False(t, ok)
}

func TestMonitor_UpstreamFailureIsReported(t *testing.T) {
	store := newMemoryStore()
	reporter := new(MockErrorReporter)
	reporter.On("Report", CategoryUpstreamUnavailable, mock.MatchedBy(func(err error) bool {
		return errors.Is(err, pricing.ErrPriceUnavailable) && errors.Is(err, ErrUpstreamUnavailable)
	})).Once()

	prices := pricing.NewCachedPriceService(nil, nil, 0, discardLogger())
	monitor := newTestMonitor(store, prices, reporter)

	monitor.OnOrderBook(FirstSide, book("binance", "2020", "2025"))
	monitor.OnOrderBook(SecondSide, book("kraken", "1995", "2000"))

	_, ok := store.Get(testKey())
	assert.False(t, ok)
	assert.Equal(t, 1, store.removes)
	reporter.AssertExpectations(t)
}

func TestMonitor_PanicIsRecovered(t *testing.T) {
	store := newMemoryStore()
	reporter := new(MockErrorReporter)
	reporter.On("Report", CategoryUnexpectedCalculation, mock.Anything).Once()
	monitor := newTestMonitor(store, panickingPrices{}, reporter)

	monitor.OnOrderBook(FirstSide, book("binance", "2020", "2025"))
	assert.NotPanics(t, func() {
		monitor.OnOrderBook(SecondSide, book("kraken", "1995", "2000"))
	})

	_, ok := store.Get(testKey())
	assert.False(t, ok)
	reporter.AssertExpectations(t)
}

func TestMonitor_RecordsMetrics(t *testing.T) {
	store := newMemoryStore()
	metrics := new(MockMetricsSink)
	metrics.On("RecordOrderBookSizes", 2, 2, mock.Anything).Once()
	metrics.On("RecordCalculationTime", mock.AnythingOfType("time.Duration"), mock.Anything).Once()

	monitor := NewMonitor(testKey(), testConfig(), Dependencies{
		Prices:  testPrices(),
		Store:   store,
		Metrics: metrics,
		Logger:  discardLogger(),
	})
	monitor.now = func() time.Time { return testNow }

	monitor.OnOrderBook(FirstSide, book("binance", "2020", "2025"))
	monitor.OnOrderBook(SecondSide, book("kraken", "1995", "2000"))

	metrics.AssertExpectations(t)
	_, ok := store.Get(testKey())
	assert.True(t, ok)
}

func TestMonitor_Idempotent(t *testing.T) {
	monitor := newTestMonitor(newMemoryStore(), testPrices(), nil)
	monitor.OnOrderBook(FirstSide, book("binance", "2020", "2025"))
	monitor.OnOrderBook(SecondSide, book("kraken", "1995", "2000"))

	first, err := monitor.evaluate(testNow)
	require.NoError(t, err)
	second, err := monitor.evaluate(testNow)
	require.NoError(t, err)

	require.NotNil(t, first)
	assert.Equal(t, first, second)
}

func TestMonitor_NoUpdateHeartbeat(t *testing.T) {
	store := newMemoryStore()
	monitor := newTestMonitor(store, testPrices(), nil)

	monitor.OnNoOrderBookUpdate(FirstSide, nil)
	assert.Equal(t, Empty, monitor.State())

	monitor.OnNoOrderBookUpdate(FirstSide, book("binance", "2020", "2025"))
	monitor.OnOrderBook(SecondSide, book("kraken", "1995", "2000"))
	_, ok := store.Get(testKey())
	require.True(t, ok)

	// time passes without updates until the books go stale
	monitor.now = func() time.Time { return testNow.Add(2 * time.Minute) }
	monitor.OnNoOrderBookUpdate(SecondSide, nil)
	_, ok = store.Get(testKey())
	assert.False(t, ok)
}

func TestMonitor_ConcurrentUpdatesBothSides(t *testing.T) {
	opportunities := cache.NewOpportunityCache()
	monitor := newTestMonitor(opportunities, testPrices(), nil)
	monitor.OnOrderBook(FirstSide, book("binance", "2020", "2025"))
	monitor.OnOrderBook(SecondSide, book("kraken", "1995", "2000"))
	require.Equal(t, Active, monitor.State())

	const workers = 16
	const updates = 50
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range updates {
				if w%2 == 0 {
					monitor.OnOrderBook(FirstSide, book("binance", "2020", "2025"))
					continue
				}
				// alternate between a profitable and a collapsed spread
				if i%2 == 0 {
					monitor.OnOrderBook(SecondSide, book("kraken", "1995", "2000"))
				} else {
					monitor.OnOrderBook(SecondSide, book("kraken", "1990", "2019"))
				}
				_ = monitor.State()
				opportunities.Get(testKey())
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, Active, monitor.State())
	// every update recomputes exactly once
	stats := opportunities.GetStats()
	assert.Equal(t, int64(workers*updates+1), stats.Sets+stats.Removes)
	assert.GreaterOrEqual(t, stats.Removes, int64(workers/2*updates/2))
	assert.LessOrEqual(t, opportunities.Len(), 1)

	monitor.OnOrderBook(SecondSide, book("kraken", "1995", "2000"))
	opportunity, ok := opportunities.Get(testKey())
	require.True(t, ok)
	assert.Equal(t, models.Exchange("kraken"), opportunity.BuyAtExchange)
	assert.Equal(t, models.Exchange("binance"), opportunity.SellAtExchange)
	require.NotNil(t, opportunity.Histogram[0])
	assertDecimal(t, "2000", opportunity.Histogram[0].BuyPrice)
	assertDecimal(t, "0.01", opportunity.Histogram[0].RelativeProfit.Round(6))
}
