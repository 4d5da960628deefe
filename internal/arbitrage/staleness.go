package arbitrage

import (
	"time"

	"github.com/irfndi/celebrum-arb-monitor/internal/orderbook"
)

const (
	// DefaultMaxSnapshotAge is the default age limit of whole snapshots
	DefaultMaxSnapshotAge = 15 * time.Minute
	// DefaultMaxOrderAge is the default age limit of the best orders
	DefaultMaxOrderAge = 2 * time.Hour
)

// TimestampStaleDetector judges whole snapshots by their received and
// exchange timestamps
type TimestampStaleDetector struct {
	MaxAge time.Duration
}

// NewTimestampStaleDetector creates a detector, falling back to
// DefaultMaxSnapshotAge for a non-positive maxAge
func NewTimestampStaleDetector(maxAge time.Duration) TimestampStaleDetector {
	if maxAge <= 0 {
		maxAge = DefaultMaxSnapshotAge
	}
	return TimestampStaleDetector{MaxAge: maxAge}
}

// IsStale reports whether the oldest timestamp of the present snapshots is
// older than MaxAge. Absent snapshots are excluded; two absent snapshots are
// never stale.
func (d TimestampStaleDetector) IsStale(first, second orderbook.Timestamped, now time.Time) bool {
	oldest, ok := OldestTimestamp(first, second)
	if !ok {
		return false
	}
	return now.Sub(oldest) > d.MaxAge
}

// OldestTimestamp returns the oldest timestamp across the present snapshots
func OldestTimestamp(snapshots ...orderbook.Timestamped) (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, snapshot := range snapshots {
		if snapshot == nil {
			continue
		}
		ts, ok := snapshot.OldestTimestamp()
		if !ok {
			continue
		}
		if !found || ts.Before(oldest) {
			oldest = ts
			found = true
		}
	}
	return oldest, found
}

// OrderStaleDetector judges order books by the timestamps of their best buy
// and sell orders. A book with an empty side is stale.
type OrderStaleDetector struct {
	MaxAge time.Duration
}

// NewOrderStaleDetector creates a detector, falling back to
// DefaultMaxOrderAge for a non-positive maxAge
func NewOrderStaleDetector(maxAge time.Duration) OrderStaleDetector {
	if maxAge <= 0 {
		maxAge = DefaultMaxOrderAge
	}
	return OrderStaleDetector{MaxAge: maxAge}
}

// IsStale reports whether either present book has an empty side or a best
// order older than MaxAge. Orders without a timestamp are excluded.
func (d OrderStaleDetector) IsStale(first, second *orderbook.OrderBook, now time.Time) bool {
	var oldest time.Time
	found := false
	for _, book := range []*orderbook.OrderBook{first, second} {
		if book == nil {
			continue
		}
		buy, sell := book.FirstBuyOrder(), book.FirstSellOrder()
		if buy == nil || sell == nil {
			return true
		}
		for _, order := range []*orderbook.Order{buy, sell} {
			if order.Timestamp == nil {
				continue
			}
			if !found || order.Timestamp.Before(oldest) {
				oldest = *order.Timestamp
				found = true
			}
		}
	}
	if !found {
		return false
	}
	return now.Sub(oldest) > d.MaxAge
}
