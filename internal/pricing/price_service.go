// Package pricing serves USD prices of currencies from an in-memory cache
// that is warmed at startup and refreshed by a scheduled job.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrPriceUnavailable is returned when no USD price is known for a currency
var ErrPriceUnavailable = errors.New("usd price unavailable")

// PriceSource fetches current USD prices for a set of currencies
type PriceSource interface {
	FetchUsdPrices(ctx context.Context, currencies []string) (map[string]decimal.Decimal, error)
}

type cachedPrice struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// CachedPriceService answers price lookups from memory only
type CachedPriceService struct {
	source     PriceSource
	currencies []string
	maxAge     time.Duration
	logger     *logrus.Logger
	now        func() time.Time

	mu     sync.RWMutex
	prices map[string]cachedPrice
	fixed  map[string]decimal.Decimal
}

// NewCachedPriceService creates a price service for the given currencies.
// Prices older than maxAge are treated as unavailable; zero disables the check.
func NewCachedPriceService(source PriceSource, currencies []string, maxAge time.Duration, logger *logrus.Logger) *CachedPriceService {
	normalized := make([]string, 0, len(currencies))
	seen := make(map[string]struct{}, len(currencies))
	for _, currency := range currencies {
		code := strings.ToUpper(currency)
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		normalized = append(normalized, code)
	}

	return &CachedPriceService{
		source:     source,
		currencies: normalized,
		maxAge:     maxAge,
		logger:     logger,
		now:        time.Now,
		prices:     make(map[string]cachedPrice),
		fixed:      map[string]decimal.Decimal{"USD": decimal.NewFromInt(1)},
	}
}

// SetFixedPrice pins the USD price of a currency, e.g. a stablecoin
func (s *CachedPriceService) SetFixedPrice(currency string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixed[strings.ToUpper(currency)] = price
}

// Refresh fetches all tracked currencies from the source. Currencies the
// source does not return keep their previous price.
func (s *CachedPriceService) Refresh(ctx context.Context) error {
	prices, err := s.source.FetchUsdPrices(ctx, s.currencies)
	if err != nil {
		return fmt.Errorf("failed to fetch usd prices: %w", err)
	}

	fetchedAt := s.now()
	s.mu.Lock()
	for currency, price := range prices {
		if !price.IsPositive() {
			continue
		}
		s.prices[strings.ToUpper(currency)] = cachedPrice{price: price, fetchedAt: fetchedAt}
	}
	cached := len(s.prices)
	s.mu.Unlock()

	if missing := len(s.currencies) - len(prices); missing > 0 {
		s.logger.WithFields(logrus.Fields{
			"requested": len(s.currencies),
			"received":  len(prices),
		}).Warn("Price source returned fewer prices than requested")
	}
	s.logger.WithField("cached_prices", cached).Debug("USD prices refreshed")
	return nil
}

// GetUsdPrice returns the USD price of one unit of currency
func (s *CachedPriceService) GetUsdPrice(currency string) (decimal.Decimal, error) {
	code := strings.ToUpper(currency)

	s.mu.RLock()
	fixed, isFixed := s.fixed[code]
	entry, ok := s.prices[code]
	s.mu.RUnlock()

	if isFixed {
		return fixed, nil
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrPriceUnavailable, code)
	}
	if s.maxAge > 0 && s.now().Sub(entry.fetchedAt) > s.maxAge {
		return decimal.Zero, fmt.Errorf("%w: %s price is older than %s", ErrPriceUnavailable, code, s.maxAge)
	}
	return entry.price, nil
}

// GetUsdValue returns the USD value of amount units of currency
func (s *CachedPriceService) GetUsdValue(currency string, amount decimal.Decimal) (decimal.Decimal, error) {
	price, err := s.GetUsdPrice(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(price), nil
}
