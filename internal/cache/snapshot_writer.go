package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-arb-monitor/internal/models"
)

// DefaultSnapshotKey is the Redis key opportunity snapshots are written to
const DefaultSnapshotKey = "arbitrage:opportunities"

// OpportunitySnapshot is the JSON document stored in Redis
type OpportunitySnapshot struct {
	Opportunities []models.Opportunity `json:"opportunities"`
	Count         int                  `json:"count"`
	CachedAt      time.Time            `json:"cached_at"`
	ExpiresAt     time.Time            `json:"expires_at"`
}

// SnapshotWriterStats tracks export activity
type SnapshotWriterStats struct {
	Writes   int64 `json:"writes"`
	Failures int64 `json:"failures"`
	mu       sync.RWMutex
}

// RedisSnapshotWriter publishes opportunity snapshots so other processes
// can read them without calling the API
type RedisSnapshotWriter struct {
	redis  *redis.Client
	key    string
	ttl    time.Duration
	stats  *SnapshotWriterStats
	logger *logrus.Logger
}

// NewRedisSnapshotWriter creates a snapshot writer; an empty key falls back
// to DefaultSnapshotKey
func NewRedisSnapshotWriter(redisClient *redis.Client, key string, ttl time.Duration, logger *logrus.Logger) *RedisSnapshotWriter {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &RedisSnapshotWriter{
		redis:  redisClient,
		key:    key,
		ttl:    ttl,
		stats:  &SnapshotWriterStats{},
		logger: logger,
	}
}

// Write stores the opportunities as one JSON document with the writer's TTL
func (w *RedisSnapshotWriter) Write(ctx context.Context, opportunities []models.Opportunity, now time.Time) error {
	snapshot := OpportunitySnapshot{
		Opportunities: opportunities,
		Count:         len(opportunities),
		CachedAt:      now,
		ExpiresAt:     now.Add(w.ttl),
	}
	if snapshot.Opportunities == nil {
		snapshot.Opportunities = []models.Opportunity{}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		w.recordFailure()
		return fmt.Errorf("error serializing opportunity snapshot: %w", err)
	}
	if err := w.redis.Set(ctx, w.key, data, w.ttl).Err(); err != nil {
		w.recordFailure()
		return fmt.Errorf("redis error writing opportunity snapshot: %w", err)
	}

	w.stats.mu.Lock()
	w.stats.Writes++
	w.stats.mu.Unlock()

	w.logger.WithFields(logrus.Fields{
		"key":           w.key,
		"opportunities": snapshot.Count,
		"ttl":           w.ttl.String(),
	}).Debug("Opportunity snapshot exported")
	return nil
}

// Read returns the current snapshot; false when none is stored
func (w *RedisSnapshotWriter) Read(ctx context.Context) (*OpportunitySnapshot, bool, error) {
	data, err := w.redis.Get(ctx, w.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis error reading opportunity snapshot: %w", err)
	}

	var snapshot OpportunitySnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, false, fmt.Errorf("error deserializing opportunity snapshot: %w", err)
	}
	return &snapshot, true, nil
}

// GetStats returns current export statistics
func (w *RedisSnapshotWriter) GetStats() SnapshotWriterStats {
	w.stats.mu.RLock()
	defer w.stats.mu.RUnlock()
	return SnapshotWriterStats{
		Writes:   w.stats.Writes,
		Failures: w.stats.Failures,
	}
}

func (w *RedisSnapshotWriter) recordFailure() {
	w.stats.mu.Lock()
	w.stats.Failures++
	w.stats.mu.Unlock()
}
