package arbitrage

import (
	"errors"
	"sort"

	"github.com/irfndi/celebrum-arb-monitor/internal/models"
	"github.com/irfndi/celebrum-arb-monitor/internal/orderbook"
)

// Route identifies one exchange update stream
type Route struct {
	Exchange     models.Exchange
	CurrencyPair models.CurrencyPair
}

type binding struct {
	monitor *Monitor
	side    Side
}

// Registry owns every monitor and routes exchange updates to them. Its
// tables are built once and never mutated, so routing needs no lock.
type Registry struct {
	monitors map[models.Key]*Monitor
	routes   map[Route][]binding
	keys     []models.Key
}

// NewRegistry creates one monitor per currency pair and exchange pair
// combination
func NewRegistry(currencyPairs []models.CurrencyPair, exchangePairs []models.ExchangePair, config MonitorConfig, deps Dependencies) (*Registry, error) {
	if len(currencyPairs) == 0 || len(exchangePairs) == 0 {
		return nil, errors.New("registry needs at least one currency pair and one exchange pair")
	}
	if deps.Store == nil || deps.Prices == nil {
		return nil, errors.New("registry needs an opportunity store and a price service")
	}

	r := &Registry{
		monitors: make(map[models.Key]*Monitor),
		routes:   make(map[Route][]binding),
	}
	for _, currencyPair := range currencyPairs {
		for _, exchangePair := range exchangePairs {
			key := models.NewKey(currencyPair, exchangePair)
			if _, exists := r.monitors[key]; exists {
				continue
			}
			monitor := NewMonitor(key, config, deps)
			r.monitors[key] = monitor
			r.keys = append(r.keys, key)

			first := Route{Exchange: exchangePair.First, CurrencyPair: currencyPair}
			second := Route{Exchange: exchangePair.Second, CurrencyPair: currencyPair}
			r.routes[first] = append(r.routes[first], binding{monitor: monitor, side: FirstSide})
			r.routes[second] = append(r.routes[second], binding{monitor: monitor, side: SecondSide})
		}
	}
	sort.Slice(r.keys, func(i, j int) bool {
		return r.keys[i].String() < r.keys[j].String()
	})
	return r, nil
}

// Keys returns every monitored key sorted by its string form
func (r *Registry) Keys() []models.Key {
	keys := make([]models.Key, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Monitor returns the monitor of key
func (r *Registry) Monitor(key models.Key) (*Monitor, bool) {
	monitor, ok := r.monitors[key]
	return monitor, ok
}

// Routes returns the update streams a transport has to subscribe to
func (r *Registry) Routes() []Route {
	routes := make([]Route, 0, len(r.routes))
	for route := range r.routes {
		routes = append(routes, route)
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Exchange != routes[j].Exchange {
			return routes[i].Exchange < routes[j].Exchange
		}
		return routes[i].CurrencyPair.String() < routes[j].CurrencyPair.String()
	})
	return routes
}

// OnOrderBook routes a new order book to every monitor watching its stream.
// Unknown streams are ignored.
func (r *Registry) OnOrderBook(book *orderbook.OrderBook) {
	if book == nil {
		return
	}
	for _, b := range r.routes[Route{Exchange: book.Exchange, CurrencyPair: book.CurrencyPair}] {
		b.monitor.OnOrderBook(b.side, book)
	}
}

// OnTicker routes a new ticker to every monitor watching its stream
func (r *Registry) OnTicker(ticker *orderbook.Ticker) {
	if ticker == nil {
		return
	}
	for _, b := range r.routes[Route{Exchange: ticker.Exchange, CurrencyPair: ticker.CurrencyPair}] {
		b.monitor.OnTicker(b.side, ticker)
	}
}

// OnNoOrderBookUpdate routes an order book heartbeat; last may be nil
func (r *Registry) OnNoOrderBookUpdate(exchange models.Exchange, pair models.CurrencyPair, last *orderbook.OrderBook) {
	for _, b := range r.routes[Route{Exchange: exchange, CurrencyPair: pair}] {
		b.monitor.OnNoOrderBookUpdate(b.side, last)
	}
}

// OnNoTickerUpdate routes a ticker heartbeat; last may be nil
func (r *Registry) OnNoTickerUpdate(exchange models.Exchange, pair models.CurrencyPair, last *orderbook.Ticker) {
	for _, b := range r.routes[Route{Exchange: exchange, CurrencyPair: pair}] {
		b.monitor.OnNoTickerUpdate(b.side, last)
	}
}
