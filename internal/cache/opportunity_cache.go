// Package cache keeps the latest arbitrage opportunity per monitored key and
// exports snapshots of it to Redis.
package cache

import (
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/irfndi/celebrum-arb-monitor/internal/models"
)

// OpportunityCacheStats tracks cache activity
type OpportunityCacheStats struct {
	Sets      int64 `json:"sets"`
	Removes   int64 `json:"removes"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// OpportunityCache holds at most one Opportunity per key. Every operation
// locks for a single map access except EvictOlderThan, which sweeps once.
type OpportunityCache struct {
	mu            sync.RWMutex
	opportunities map[models.Key]models.Opportunity
	// consecutive no-opportunity ticks per key, reset by Set
	noOpportunity map[models.Key]int
	stats         OpportunityCacheStats
}

// NewOpportunityCache creates an empty cache
func NewOpportunityCache() *OpportunityCache {
	return &OpportunityCache{
		opportunities: make(map[models.Key]models.Opportunity),
		noOpportunity: make(map[models.Key]int),
	}
}

// Set stores the latest opportunity of key
func (c *OpportunityCache) Set(key models.Key, opportunity models.Opportunity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opportunities[key] = opportunity
	delete(c.noOpportunity, key)
	c.stats.Sets++
}

// Remove drops the opportunity of key and counts a no-opportunity tick
func (c *OpportunityCache) Remove(key models.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.opportunities, key)
	c.noOpportunity[key]++
	c.stats.Removes++
}

// Get returns the opportunity of key
func (c *OpportunityCache) Get(key models.Key) (models.Opportunity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	opportunity, ok := c.opportunities[key]
	return opportunity, ok
}

// NoOpportunityStreak returns how many consecutive ticks of key produced no
// opportunity
func (c *OpportunityCache) NoOpportunityStreak(key models.Key) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.noOpportunity[key]
}

// Keys returns the keys currently holding an opportunity
func (c *OpportunityCache) Keys() []models.Key {
	c.mu.RLock()
	keys := make([]models.Key, 0, len(c.opportunities))
	for key := range c.opportunities {
		keys = append(keys, key)
	}
	c.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// GetAll lazily yields every cached opportunity in key order. Keys removed
// after iteration started are skipped.
func (c *OpportunityCache) GetAll() iter.Seq[models.Opportunity] {
	return func(yield func(models.Opportunity) bool) {
		for _, key := range c.Keys() {
			opportunity, ok := c.Get(key)
			if !ok {
				continue
			}
			if !yield(opportunity) {
				return
			}
		}
	}
}

// ExchangePairOpportunityCounts counts, per exchange pair, the keys whose
// opportunity has at least one histogram row
func (c *OpportunityCache) ExchangePairOpportunityCounts() []models.ExchangePairCount {
	counts := make(map[models.ExchangePair]int)
	c.mu.RLock()
	for key, opportunity := range c.opportunities {
		if opportunity.HasAnyDepth() {
			counts[key.ExchangePair]++
		}
	}
	c.mu.RUnlock()

	result := make([]models.ExchangePairCount, 0, len(counts))
	for exchangePair, count := range counts {
		result = append(result, models.ExchangePairCount{ExchangePair: exchangePair, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ExchangePair.String() < result[j].ExchangePair.String()
	})
	return result
}

// EvictOlderThan removes every opportunity calculated more than maxAge
// before now and returns how many were removed
func (c *OpportunityCache) EvictOlderThan(maxAge time.Duration, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for key, opportunity := range c.opportunities {
		if now.Sub(opportunity.CalculatedAt) > maxAge {
			delete(c.opportunities, key)
			evicted++
		}
	}
	c.stats.Evictions += int64(evicted)
	return evicted
}

// Len returns the number of cached opportunities
func (c *OpportunityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.opportunities)
}

// GetStats returns current cache statistics
func (c *OpportunityCache) GetStats() OpportunityCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := c.stats
	stats.Entries = len(c.opportunities)
	return stats
}
