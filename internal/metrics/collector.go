// Package metrics records arbitrage pipeline metrics through the
// OpenTelemetry metric API.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the collector
const MeterName = "github.com/irfndi/celebrum-arb-monitor/arbitrage"

// Collector implements the monitors' metrics sink. Recording never fails
// the caller.
type Collector struct {
	logger          *logrus.Logger
	calculationTime metric.Float64Histogram
	buyOrders       metric.Int64Histogram
	sellOrders      metric.Int64Histogram
	opportunities   metric.Int64Gauge
	evictions       metric.Int64Counter
}

// NewCollector creates a collector on meter; a nil meter uses the global
// meter provider
func NewCollector(meter metric.Meter, logger *logrus.Logger) (*Collector, error) {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}

	calculationTime, err := meter.Float64Histogram("arbitrage.calculation.duration",
		metric.WithDescription("Duration of one opportunity calculation"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("failed to create calculation histogram: %w", err)
	}
	buyOrders, err := meter.Int64Histogram("arbitrage.orderbook.buy_orders",
		metric.WithDescription("Buy orders across both books of a calculation"))
	if err != nil {
		return nil, fmt.Errorf("failed to create buy orders histogram: %w", err)
	}
	sellOrders, err := meter.Int64Histogram("arbitrage.orderbook.sell_orders",
		metric.WithDescription("Sell orders across both books of a calculation"))
	if err != nil {
		return nil, fmt.Errorf("failed to create sell orders histogram: %w", err)
	}
	opportunities, err := meter.Int64Gauge("arbitrage.opportunities",
		metric.WithDescription("Opportunities per exchange pair"))
	if err != nil {
		return nil, fmt.Errorf("failed to create opportunities gauge: %w", err)
	}
	evictions, err := meter.Int64Counter("arbitrage.cache.evictions",
		metric.WithDescription("Opportunities evicted for exceeding the TTL"))
	if err != nil {
		return nil, fmt.Errorf("failed to create evictions counter: %w", err)
	}

	return &Collector{
		logger:          logger,
		calculationTime: calculationTime,
		buyOrders:       buyOrders,
		sellOrders:      sellOrders,
		opportunities:   opportunities,
		evictions:       evictions,
	}, nil
}

// RecordCalculationTime records one calculation duration in milliseconds
func (c *Collector) RecordCalculationTime(duration time.Duration, tags map[string]string) {
	c.calculationTime.Record(context.Background(), float64(duration.Microseconds())/1000, metric.WithAttributes(attributes(tags)...))
}

// RecordOrderBookSizes records the order counts a calculation walked
func (c *Collector) RecordOrderBookSizes(buyCount, sellCount int, tags map[string]string) {
	attrs := metric.WithAttributes(attributes(tags)...)
	c.buyOrders.Record(context.Background(), int64(buyCount), attrs)
	c.sellOrders.Record(context.Background(), int64(sellCount), attrs)
}

// RecordOpportunityCount records the opportunity count of one exchange pair
func (c *Collector) RecordOpportunityCount(exchangePair string, count int) {
	c.opportunities.Record(context.Background(), int64(count), metric.WithAttributes(attribute.String("exchange_pair", exchangePair)))
}

// RecordEvictions counts evicted opportunities
func (c *Collector) RecordEvictions(count int) {
	if count <= 0 {
		return
	}
	c.evictions.Add(context.Background(), int64(count))
	if c.logger != nil {
		c.logger.WithField("evicted", count).Debug("Evicted expired opportunities")
	}
}

func attributes(tags map[string]string) []attribute.KeyValue {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for _, key := range keys {
		attrs = append(attrs, attribute.String(key, tags[key]))
	}
	return attrs
}
