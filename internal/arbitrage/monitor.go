package arbitrage

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-arb-monitor/internal/models"
	"github.com/irfndi/celebrum-arb-monitor/internal/orderbook"
)

// Side selects one exchange of a monitor's exchange pair
type Side int

const (
	// FirstSide is ExchangePair.First
	FirstSide Side = iota
	// SecondSide is ExchangePair.Second
	SecondSide
)

func (s Side) String() string {
	if s == FirstSide {
		return "first"
	}
	return "second"
}

// State is the population state of a monitor
type State int

const (
	// Empty means no side has reported an order book yet
	Empty State = iota
	// PartiallyPopulated means exactly one side has reported
	PartiallyPopulated
	// Active means both sides have reported and every update recomputes
	Active
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case PartiallyPopulated:
		return "partially_populated"
	default:
		return "active"
	}
}

// MonitorConfig holds the thresholds a monitor evaluates with
type MonitorConfig struct {
	// UsdDepthThresholds are evaluated in order; histogram rows follow them
	UsdDepthThresholds []decimal.Decimal
	MaxTickerAge       time.Duration
	MaxOrderBookAge    time.Duration
	MaxOrderAge        time.Duration
	CutOff             OpportunityCutOff
}

// Dependencies are the collaborators shared by all monitors
type Dependencies struct {
	Calculator *ProfitCalculator
	Prices     PriceService
	Store      OpportunityStore
	Metrics    MetricsSink
	Errors     ErrorReporter
	Logger     *logrus.Logger
}

// Monitor merges the updates of the two exchanges of one Key and publishes
// the resulting opportunity. All work for one Key is serialized by mu.
type Monitor struct {
	key    models.Key
	config MonitorConfig
	deps   Dependencies

	tickerDetector TimestampStaleDetector
	bookDetector   TimestampStaleDetector
	orderDetector  OrderStaleDetector
	tags           map[string]string

	mu         sync.Mutex
	orderBooks [2]*orderbook.OrderBook
	tickers    [2]*orderbook.Ticker

	now func() time.Time
}

// NewMonitor creates a monitor for key
func NewMonitor(key models.Key, config MonitorConfig, deps Dependencies) *Monitor {
	if deps.Calculator == nil {
		deps.Calculator = NewProfitCalculator(NoFeePolicy{})
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.Errors == nil {
		deps.Errors = logReporter{logger: deps.Logger}
	}

	return &Monitor{
		key:            key,
		config:         config,
		deps:           deps,
		tickerDetector: NewTimestampStaleDetector(config.MaxTickerAge),
		bookDetector:   NewTimestampStaleDetector(config.MaxOrderBookAge),
		orderDetector:  NewOrderStaleDetector(config.MaxOrderAge),
		tags: map[string]string{
			"currency_pair": key.CurrencyPair.String(),
			"exchange_pair": key.ExchangePair.String(),
		},
		now: time.Now,
	}
}

// Key returns the monitored key
func (m *Monitor) Key() models.Key {
	return m.key
}

// State returns the current population state
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state()
}

func (m *Monitor) state() State {
	switch {
	case m.orderBooks[FirstSide] != nil && m.orderBooks[SecondSide] != nil:
		return Active
	case m.orderBooks[FirstSide] != nil || m.orderBooks[SecondSide] != nil:
		return PartiallyPopulated
	default:
		return Empty
	}
}

// OnOrderBook stores a new order book for side and recomputes when active
func (m *Monitor) OnOrderBook(side Side, book *orderbook.OrderBook) {
	if book == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderBooks[side] = book
	m.recompute()
}

// OnTicker stores a new ticker for side and recomputes when active
func (m *Monitor) OnTicker(side Side, ticker *orderbook.Ticker) {
	if ticker == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickers[side] = ticker
	m.recompute()
}

// OnNoOrderBookUpdate handles a heartbeat without a change. A known last
// snapshot is handled like an update; otherwise the current state is
// recomputed so staleness is judged against the current time.
func (m *Monitor) OnNoOrderBookUpdate(side Side, last *orderbook.OrderBook) {
	if last != nil {
		m.OnOrderBook(side, last)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recompute()
}

// OnNoTickerUpdate is the ticker counterpart of OnNoOrderBookUpdate
func (m *Monitor) OnNoTickerUpdate(side Side, last *orderbook.Ticker) {
	if last != nil {
		m.OnTicker(side, last)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recompute()
}

// recompute runs the pipeline and publishes its result. Must hold mu.
func (m *Monitor) recompute() {
	if m.state() != Active {
		return
	}

	first, second := m.orderBooks[FirstSide], m.orderBooks[SecondSide]
	m.safeMetrics(func(sink MetricsSink) {
		sink.RecordOrderBookSizes(len(first.BuyOrders)+len(second.BuyOrders), len(first.SellOrders)+len(second.SellOrders), m.tags)
	})

	started := time.Now()
	opportunity, err := m.evaluate(m.now())
	m.safeMetrics(func(sink MetricsSink) {
		sink.RecordCalculationTime(time.Since(started), m.tags)
	})

	if err != nil {
		m.deps.Errors.Report(ErrorCategory(err), fmt.Errorf("%s: %w", m.key, err))
		m.deps.Store.Remove(m.key)
		return
	}
	if opportunity == nil {
		m.deps.Store.Remove(m.key)
		return
	}
	m.deps.Store.Set(m.key, *opportunity)
}

// evaluate returns nil without error when the tick yields no opportunity
func (m *Monitor) evaluate(now time.Time) (opportunity *models.Opportunity, err error) {
	defer func() {
		if r := recover(); r != nil {
			opportunity = nil
			err = fmt.Errorf("%w: panic: %v", ErrUnexpectedCalculation, r)
		}
	}()

	first, second := m.orderBooks[FirstSide], m.orderBooks[SecondSide]
	if m.bookDetector.IsStale(first, second, now) || m.orderDetector.IsStale(first, second, now) {
		m.deps.Logger.WithField("key", m.key.String()).Debug("Dropping tick with stale order books")
		return nil, nil
	}

	firstTicker, secondTicker := m.tickers[FirstSide], m.tickers[SecondSide]
	if m.tickerDetector.IsStale(firstTicker, secondTicker, now) {
		m.deps.Logger.WithField("key", m.key.String()).Debug("Dropping tick with stale tickers")
		return nil, nil
	}

	firstVolume, err := m.usdVolume24h(firstTicker)
	if err != nil {
		return nil, err
	}
	secondVolume, err := m.usdVolume24h(secondTicker)
	if err != nil {
		return nil, err
	}
	if m.config.CutOff.VolumeTooLow(firstVolume, secondVolume) {
		return nil, nil
	}

	counterUsdPrice, err := m.deps.Prices.GetUsdPrice(m.key.CurrencyPair.Counter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	result := &models.Opportunity{
		Key:       m.key,
		Histogram: make([]*models.OpportunityAtDepth, len(m.config.UsdDepthThresholds)),
	}
	found := false
	for i, usdDepth := range m.config.UsdDepthThresholds {
		row, leg, err := m.evaluateDepth(first, second, usdDepth, counterUsdPrice)
		if err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}
		result.Histogram[i] = row
		// the last depth producing a row decides the opportunity direction
		result.BuyAtExchange = leg.BuyExchange
		result.SellAtExchange = leg.SellExchange
		found = true
	}
	if !found {
		return nil, nil
	}

	if result.BuyAtExchange == m.key.ExchangePair.First {
		result.Usd24hVolumeAtBuyExchange, result.Usd24hVolumeAtSellExchange = firstVolume, secondVolume
	} else {
		result.Usd24hVolumeAtBuyExchange, result.Usd24hVolumeAtSellExchange = secondVolume, firstVolume
	}
	result.CalculatedAt = now
	result.OldestSourceDataTimestamp, _ = OldestTimestamp(first, second)
	return result, nil
}

// evaluateDepth returns a nil row when the depth is not available in all four
// book sides or neither direction passes the cutoff
func (m *Monitor) evaluateDepth(first, second *orderbook.OrderBook, usdDepth, counterUsdPrice decimal.Decimal) (*models.OpportunityAtDepth, Leg, error) {
	// buying consumes asks, selling consumes bids
	buyAtFirst := first.WeightedAveragePrice(orderbook.Asks, usdDepth, counterUsdPrice)
	sellAtFirst := first.WeightedAveragePrice(orderbook.Bids, usdDepth, counterUsdPrice)
	buyAtSecond := second.WeightedAveragePrice(orderbook.Asks, usdDepth, counterUsdPrice)
	sellAtSecond := second.WeightedAveragePrice(orderbook.Bids, usdDepth, counterUsdPrice)
	if buyAtFirst == nil || sellAtFirst == nil || buyAtSecond == nil || sellAtSecond == nil {
		return nil, Leg{}, nil
	}

	leg := Leg{
		Direction:    BuySecondSellFirst,
		BuySide:      *buyAtSecond,
		SellSide:     *sellAtFirst,
		BuyExchange:  m.key.ExchangePair.Second,
		SellExchange: m.key.ExchangePair.First,
		CurrencyPair: m.key.CurrencyPair,
	}
	withoutFees, err := RelativeProfitWithoutFees(leg.BuySide, leg.SellSide)
	if err != nil {
		return nil, Leg{}, err
	}
	if !withoutFees.IsPositive() {
		leg = Leg{
			Direction:    BuyFirstSellSecond,
			BuySide:      *buyAtFirst,
			SellSide:     *sellAtSecond,
			BuyExchange:  m.key.ExchangePair.First,
			SellExchange: m.key.ExchangePair.Second,
			CurrencyPair: m.key.CurrencyPair,
		}
	}

	profit, err := m.deps.Calculator.Profit(leg)
	if err != nil {
		return nil, Leg{}, err
	}
	if !m.config.CutOff.ProfitWithinRange(profit.RelativeProfit) {
		return nil, Leg{}, nil
	}

	profitUsd, err := m.deps.Prices.GetUsdValue(m.key.CurrencyPair.Base, profit.BaseAmountBeforeTransfer.Mul(profit.RelativeProfit))
	if err != nil {
		return nil, Leg{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	return &models.OpportunityAtDepth{
		SellPrice:                leg.SellSide.AveragePrice,
		BuyPrice:                 leg.BuySide.AveragePrice,
		BaseAmountAtSellExchange: leg.SellSide.BaseCurrencyAmount,
		BaseAmountAtBuyExchange:  leg.BuySide.BaseCurrencyAmount,
		RelativeProfit:           profit.RelativeProfit,
		ProfitUsd:                profitUsd,
		UsdDepthUpTo:             usdDepth,
		BuyAtExchange:            leg.BuyExchange,
		SellAtExchange:           leg.SellExchange,
		SellFee:                  profit.FeeBeforeTransfer,
		BuyFee:                   profit.FeeAfterTransfer,
		WithdrawalFee:            profit.TransferFee,
		IsSellFeeEstimated:       profit.IsFeeBeforeEstimated,
		IsBuyFeeEstimated:        profit.IsFeeAfterEstimated,
	}, leg, nil
}

// usdVolume24h prefers the counter volume and falls back to the base volume
func (m *Monitor) usdVolume24h(ticker *orderbook.Ticker) (decimal.NullDecimal, error) {
	if ticker == nil {
		return decimal.NullDecimal{}, nil
	}
	currency, amount := m.key.CurrencyPair.Counter, ticker.CounterVolume24h
	if !amount.Valid {
		currency, amount = m.key.CurrencyPair.Base, ticker.BaseVolume24h
	}
	if !amount.Valid {
		return decimal.NullDecimal{}, nil
	}
	usd, err := m.deps.Prices.GetUsdValue(currency, amount.Decimal)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: usd 24h volume of %s: %w", ErrUpstreamUnavailable, currency, err)
	}
	return decimal.NewNullDecimal(usd), nil
}

func (m *Monitor) safeMetrics(record func(MetricsSink)) {
	defer func() {
		if r := recover(); r != nil {
			m.deps.Logger.WithField("panic", r).Debug("Metrics sink failed")
		}
	}()
	record(m.deps.Metrics)
}

type logReporter struct {
	logger *logrus.Logger
}

func (r logReporter) Report(category string, err error) {
	r.logger.WithField("category", category).WithError(err).Warn("Arbitrage calculation failed")
}
