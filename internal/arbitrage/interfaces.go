// Package arbitrage detects cross-exchange arbitrage opportunities: it gates
// stale data, prices depth buckets, computes fee-aware profit, applies the
// cutoff policy and publishes results to the opportunity cache.
package arbitrage

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-arb-monitor/internal/metadata"
	"github.com/irfndi/celebrum-arb-monitor/internal/models"
)

var (
	// ErrUpstreamUnavailable wraps failures of the price or metadata collaborators
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUnexpectedCalculation wraps any other failure inside the pipeline,
	// including recovered panics
	ErrUnexpectedCalculation = errors.New("unexpected calculation error")
)

// Error categories reported to the ErrorReporter
const (
	CategoryUpstreamUnavailable   = "upstream_unavailable"
	CategoryUnexpectedCalculation = "unexpected_calculation"
)

// PriceService resolves USD prices from a pre-warmed cache
type PriceService interface {
	GetUsdPrice(currency string) (decimal.Decimal, error)
	GetUsdValue(currency string, amount decimal.Decimal) (decimal.Decimal, error)
}

// ExchangeMetadataService provides fee schedules and transfer metadata
type ExchangeMetadataService interface {
	CurrencyPairMetadata(exchange models.Exchange, pair models.CurrencyPair) (*metadata.CurrencyPairMetadata, bool)
	CurrencyMetadata(exchange models.Exchange, currency string) (*metadata.CurrencyMetadata, bool)
}

// MetricsSink records best-effort pipeline metrics
type MetricsSink interface {
	RecordCalculationTime(duration time.Duration, tags map[string]string)
	RecordOrderBookSizes(buyCount, sellCount int, tags map[string]string)
}

// OpportunityStore receives the monitors' results
type OpportunityStore interface {
	Set(key models.Key, opportunity models.Opportunity)
	Remove(key models.Key)
}

// ErrorReporter aggregates pipeline errors so they can be logged at a
// reduced frequency
type ErrorReporter interface {
	Report(category string, err error)
}

// ErrorCategory classifies a pipeline error for reporting
func ErrorCategory(err error) string {
	if errors.Is(err, ErrUpstreamUnavailable) {
		return CategoryUpstreamUnavailable
	}
	return CategoryUnexpectedCalculation
}

type noopMetrics struct{}

func (noopMetrics) RecordCalculationTime(time.Duration, map[string]string) {}
func (noopMetrics) RecordOrderBookSizes(int, int, map[string]string)       {}
