package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-arb-monitor/internal/cache"
	"github.com/irfndi/celebrum-arb-monitor/internal/models"
	"github.com/irfndi/celebrum-arb-monitor/internal/testutil"
)

var testNow = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func testOpportunity(base, first, second string, calculatedAt time.Time) models.Opportunity {
	k := models.NewKey(models.NewCurrencyPair(base, "USDT"), models.NewExchangePair(first, second))
	return models.Opportunity{
		Key:            k,
		BuyAtExchange:  k.ExchangePair.First,
		SellAtExchange: k.ExchangePair.Second,
		Histogram: []*models.OpportunityAtDepth{
			{RelativeProfit: decimal.RequireFromString("0.01")},
		},
		CalculatedAt: calculatedAt,
	}
}

type MockEvictionMetrics struct {
	mock.Mock
}

func (m *MockEvictionMetrics) RecordEvictions(count int) {
	m.Called(count)
}

func (m *MockEvictionMetrics) RecordOpportunityCount(exchangePair string, count int) {
	m.Called(exchangePair, count)
}

type countingRefreshable struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefreshable) Refresh(ctx context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestEvictionService_RunEviction(t *testing.T) {
	opportunities := cache.NewOpportunityCache()
	expired := testOpportunity("ETH", "binance", "kraken", testNow.Add(-6*time.Minute))
	fresh := testOpportunity("XRP", "binance", "kraken", testNow.Add(-time.Minute))
	opportunities.Set(expired.Key, expired)
	opportunities.Set(fresh.Key, fresh)

	metrics := new(MockEvictionMetrics)
	metrics.On("RecordEvictions", 1).Return()
	metrics.On("RecordOpportunityCount", "binance:kraken", 1).Return()

	service := NewEvictionService(opportunities, metrics, EvictionConfig{TTL: 5 * time.Minute, Interval: time.Minute}, testutil.QuietLogger())
	evicted := service.RunEviction(testNow)

	assert.Equal(t, 1, evicted)
	_, ok := opportunities.Get(expired.Key)
	assert.False(t, ok)
	_, ok = opportunities.Get(fresh.Key)
	assert.True(t, ok)
	metrics.AssertExpectations(t)
}

func TestEvictionService_NilMetrics(t *testing.T) {
	opportunities := cache.NewOpportunityCache()
	service := NewEvictionService(opportunities, nil, EvictionConfig{TTL: time.Minute}, nil)

	assert.NotPanics(t, func() {
		assert.Equal(t, 0, service.RunEviction(testNow))
	})
}

func TestEvictionService_StartStop(t *testing.T) {
	opportunities := cache.NewOpportunityCache()
	old := testOpportunity("ETH", "binance", "kraken", time.Now().Add(-time.Hour))
	opportunities.Set(old.Key, old)

	service := NewEvictionService(opportunities, nil, EvictionConfig{TTL: time.Minute, Interval: 10 * time.Millisecond}, testutil.QuietLogger())
	service.Start()
	assert.Eventually(t, func() bool { return opportunities.Len() == 0 }, time.Second, 5*time.Millisecond)
	service.Stop()

	assert.GreaterOrEqual(t, service.GetStats().Runs, int64(1))
}

func TestRefreshService_RefreshNow(t *testing.T) {
	target := &countingRefreshable{}
	breaker := NewCircuitBreaker("prices", CircuitBreakerConfig{}, testutil.QuietLogger())
	service := NewRefreshService("prices", target, breaker, time.Minute, time.Second, testutil.QuietLogger())

	require.NoError(t, service.RefreshNow(context.Background()))
	assert.Equal(t, int32(1), target.calls.Load())
	assert.Equal(t, JobStats{Runs: 1}, service.GetStats())
}

func TestRefreshService_BreakerOpensOnFailures(t *testing.T) {
	target := &countingRefreshable{err: errors.New("redis unavailable")}
	breaker := NewCircuitBreaker("prices", CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Hour}, testutil.QuietLogger())
	service := NewRefreshService("prices", target, breaker, time.Minute, 0, testutil.QuietLogger())

	assert.Error(t, service.RefreshNow(context.Background()))
	assert.Error(t, service.RefreshNow(context.Background()))
	err := service.RefreshNow(context.Background())

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), target.calls.Load())
	assert.Equal(t, JobStats{Runs: 3, Failures: 3}, service.GetStats())
}

func TestRefreshService_WithoutBreaker(t *testing.T) {
	target := &countingRefreshable{}
	service := NewRefreshService("metadata", target, nil, 0, 0, testutil.QuietLogger())

	service.Start()
	assert.Eventually(t, func() bool { return target.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	service.Stop()
	assert.Equal(t, int32(1), target.calls.Load())
}

func TestSnapshotExporter_Export(t *testing.T) {
	_, client := testutil.SetupMiniRedis(t)

	opportunities := cache.NewOpportunityCache()
	opp := testOpportunity("ETH", "binance", "kraken", testNow)
	opportunities.Set(opp.Key, opp)

	writer := cache.NewRedisSnapshotWriter(client, "", time.Minute, testutil.QuietLogger())
	exporter := NewSnapshotExporter(opportunities, writer, time.Minute, testutil.QuietLogger())
	exporter.now = func() time.Time { return testNow }

	require.NoError(t, exporter.Export(context.Background()))

	snapshot, found, err := writer.Read(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, snapshot.Count)
	assert.Equal(t, opp.Key, snapshot.Opportunities[0].Key)
}

func TestSnapshotExporter_WriteFailure(t *testing.T) {
	s, client := testutil.SetupMiniRedis(t)
	s.SetError("READONLY")

	writer := cache.NewRedisSnapshotWriter(client, "", time.Minute, testutil.QuietLogger())
	exporter := NewSnapshotExporter(cache.NewOpportunityCache(), writer, time.Minute, testutil.QuietLogger())

	assert.Error(t, exporter.Export(context.Background()))
}

func TestRefreshService_StartAfterWarmUpWaitsForTick(t *testing.T) {
	target := &countingRefreshable{}
	service := NewRefreshService("prices", target, nil, time.Hour, 0, testutil.QuietLogger())

	require.NoError(t, service.RefreshNow(context.Background()))
	service.Start()
	time.Sleep(20 * time.Millisecond)
	service.Stop()

	assert.Equal(t, int32(1), target.calls.Load())
}
