package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Refreshable is an upstream snapshot that can be reloaded, such as USD
// prices or exchange metadata
type Refreshable interface {
	Refresh(ctx context.Context) error
}

// RefreshService reloads a Refreshable on an interval behind a circuit
// breaker, so a failing upstream is not hammered while it is down.
type RefreshService struct {
	name    string
	target  Refreshable
	breaker *CircuitBreaker
	timeout time.Duration
	logger  *logrus.Logger
	job     *periodicJob
	flight  singleflight.Group
}

// NewRefreshService creates a refresher. A zero timeout means the refresh
// is bounded only by Stop.
func NewRefreshService(name string, target Refreshable, breaker *CircuitBreaker, interval, timeout time.Duration, logger *logrus.Logger) *RefreshService {
	if logger == nil {
		logger = logrus.New()
	}
	s := &RefreshService{
		name:    name,
		target:  target,
		breaker: breaker,
		timeout: timeout,
		logger:  logger,
	}
	s.job = newPeriodicJob(name+"_refresh", interval, s.refresh, logger)
	return s
}

// Start begins periodic refreshes. The first refresh runs immediately.
func (s *RefreshService) Start() {
	s.job.start()
}

// Stop stops the refresh loop
func (s *RefreshService) Stop() {
	s.job.stop()
}

// RefreshNow performs one refresh synchronously, e.g. to warm caches before
// market data starts flowing
func (s *RefreshService) RefreshNow(ctx context.Context) error {
	return s.job.runOnce(ctx)
}

// GetStats returns run counters
func (s *RefreshService) GetStats() JobStats {
	return s.job.stats()
}

// refresh collapses a RefreshNow that overlaps a scheduled run into one
// upstream call
func (s *RefreshService) refresh(ctx context.Context) error {
	_, err, _ := s.flight.Do(s.name, func() (any, error) {
		return nil, s.fetch(ctx)
	})
	return err
}

func (s *RefreshService) fetch(ctx context.Context) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if s.breaker == nil {
		return s.target.Refresh(ctx)
	}
	return s.breaker.Execute(ctx, s.target.Refresh)
}
