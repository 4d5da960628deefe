package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-arb-monitor/internal/models"
)

// EvictableCache is the part of the opportunity cache the eviction job needs
type EvictableCache interface {
	EvictOlderThan(maxAge time.Duration, now time.Time) int
	ExchangePairOpportunityCounts() []models.ExchangePairCount
}

// EvictionMetrics receives eviction and per exchange pair counts
type EvictionMetrics interface {
	RecordEvictions(count int)
	RecordOpportunityCount(exchangePair string, count int)
}

// EvictionConfig defines eviction configuration
type EvictionConfig struct {
	TTL      time.Duration
	Interval time.Duration
}

// EvictionService periodically drops opportunities whose CalculatedAt is
// older than the TTL and publishes the per exchange pair counts.
type EvictionService struct {
	cache   EvictableCache
	metrics EvictionMetrics
	config  EvictionConfig
	logger  *logrus.Logger
	now     func() time.Time
	job     *periodicJob
}

// NewEvictionService creates a new eviction service. metrics may be nil.
func NewEvictionService(cache EvictableCache, metrics EvictionMetrics, config EvictionConfig, logger *logrus.Logger) *EvictionService {
	if logger == nil {
		logger = logrus.New()
	}
	s := &EvictionService{
		cache:   cache,
		metrics: metrics,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
	s.job = newPeriodicJob("opportunity_eviction", config.Interval, func(context.Context) error {
		s.RunEviction(s.now())
		return nil
	}, logger)
	return s
}

// Start begins periodic eviction
func (s *EvictionService) Start() {
	s.job.start()
}

// Stop stops the eviction loop and waits for an in-flight run
func (s *EvictionService) Stop() {
	s.job.stop()
}

// RunEviction performs one eviction pass and returns the number of evicted keys
func (s *EvictionService) RunEviction(now time.Time) int {
	evicted := s.cache.EvictOlderThan(s.config.TTL, now)
	counts := s.cache.ExchangePairOpportunityCounts()

	if s.metrics != nil {
		s.metrics.RecordEvictions(evicted)
		for _, c := range counts {
			s.metrics.RecordOpportunityCount(c.ExchangePair.String(), c.Count)
		}
	}

	if evicted > 0 {
		s.logger.WithFields(logrus.Fields{
			"evicted": evicted,
			"ttl":     s.config.TTL.String(),
		}).Info("Evicted expired opportunities")
	}
	return evicted
}

// GetStats returns run counters
func (s *EvictionService) GetStats() JobStats {
	return s.job.stats()
}
