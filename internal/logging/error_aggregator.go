package logging

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultFlushInterval is how often aggregated errors are logged
const DefaultFlushInterval = time.Minute

type errorBucket struct {
	count     int
	lastError error
}

// ErrorAggregator counts errors per category and logs one line per category
// on each flush instead of one line per occurrence
type ErrorAggregator struct {
	logger *logrus.Logger

	mu      sync.Mutex
	buckets map[string]*errorBucket
	totals  map[string]int64
}

// NewErrorAggregator creates an aggregator writing to logger
func NewErrorAggregator(logger *logrus.Logger) *ErrorAggregator {
	return &ErrorAggregator{
		logger:  logger,
		buckets: make(map[string]*errorBucket),
		totals:  make(map[string]int64),
	}
}

// Report records one error occurrence
func (a *ErrorAggregator) Report(category string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	bucket, ok := a.buckets[category]
	if !ok {
		bucket = &errorBucket{}
		a.buckets[category] = bucket
	}
	bucket.count++
	bucket.lastError = err
	a.totals[category]++
}

// Flush logs and resets the pending counts and returns how many categories
// were logged
func (a *ErrorAggregator) Flush() int {
	a.mu.Lock()
	buckets := a.buckets
	a.buckets = make(map[string]*errorBucket)
	a.mu.Unlock()

	categories := make([]string, 0, len(buckets))
	for category := range buckets {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		bucket := buckets[category]
		a.logger.WithFields(logrus.Fields{
			"category": category,
			"count":    bucket.count,
		}).WithError(bucket.lastError).Warn("Errors occurred since last flush")
	}
	return len(categories)
}

// Totals returns the lifetime count per category
func (a *ErrorAggregator) Totals() map[string]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	totals := make(map[string]int64, len(a.totals))
	for category, count := range a.totals {
		totals[category] = count
	}
	return totals
}

// Start flushes every interval until ctx is cancelled, then flushes once more
func (a *ErrorAggregator) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.Flush()
			return
		case <-ticker.C:
			a.Flush()
		}
	}
}
