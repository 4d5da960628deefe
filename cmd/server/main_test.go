package main

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-arb-monitor/internal/arbitrage"
	"github.com/irfndi/celebrum-arb-monitor/internal/cache"
	"github.com/irfndi/celebrum-arb-monitor/internal/config"
	"github.com/irfndi/celebrum-arb-monitor/internal/metadata"
	"github.com/irfndi/celebrum-arb-monitor/internal/services"
)

func testArbitrageConfig() config.ArbitrageConfig {
	return config.ArbitrageConfig{
		CurrencyPairs:              []string{"ETH/BTC", "XRP/BTC"},
		ExchangePairs:              []string{"binance:kraken", "kraken:bitstamp"},
		UsdDepthThresholds:         []string{"150", "1500"},
		MaxTickerAge:               15 * time.Minute,
		MaxOrderBookAge:            15 * time.Minute,
		MaxOrderAge:                2 * time.Hour,
		MinRelativeProfit:          "0.002",
		MaxRelativeProfit:          "1",
		MinUsdVolume24h:            "1000",
		DefaultTransactionFeeRatio: "0.001",
		UseMetadataFees:            true,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type staticSource map[string]decimal.Decimal

func (s staticSource) FetchUsdPrices(context.Context, []string) (map[string]decimal.Decimal, error) {
	return s, nil
}

func TestBuildMonitorConfig(t *testing.T) {
	monitorConfig, err := buildMonitorConfig(testArbitrageConfig())
	require.NoError(t, err)

	require.Len(t, monitorConfig.UsdDepthThresholds, 2)
	assert.True(t, monitorConfig.UsdDepthThresholds[1].Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, 2*time.Hour, monitorConfig.MaxOrderAge)
	assert.True(t, monitorConfig.CutOff.MinRelativeProfit.Equal(decimal.RequireFromString("0.002")))
	assert.True(t, monitorConfig.CutOff.MinUsd24hVolume.Equal(decimal.NewFromInt(1000)))
}

func TestBuildMonitorConfig_InvalidThresholds(t *testing.T) {
	cfg := testArbitrageConfig()
	cfg.UsdDepthThresholds = []string{"1500", "150"}

	_, err := buildMonitorConfig(cfg)
	assert.Error(t, err)
}

func TestBuildFeePolicy(t *testing.T) {
	cfg := testArbitrageConfig()

	policy, err := buildFeePolicy(cfg, metadata.NewStore())
	require.NoError(t, err)
	assert.IsType(t, &arbitrage.MetadataFeePolicy{}, policy)

	cfg.UseMetadataFees = false
	policy, err = buildFeePolicy(cfg, metadata.NewStore())
	require.NoError(t, err)
	assert.IsType(t, arbitrage.NoFeePolicy{}, policy)

	cfg.UseMetadataFees = true
	cfg.DefaultTransactionFeeRatio = "abc"
	_, err = buildFeePolicy(cfg, metadata.NewStore())
	assert.Error(t, err)
}

func TestBuildPriceService(t *testing.T) {
	cfg := &config.Config{
		Arbitrage: testArbitrageConfig(),
		Pricing: config.PricingConfig{
			MaxPriceAge: time.Minute,
			FixedPrices: map[string]string{"usdt": "1"},
		},
	}
	prices, err := buildPriceService(cfg, staticSource{"ETH": decimal.NewFromInt(2000), "BTC": decimal.NewFromInt(60000)}, quietLogger())
	require.NoError(t, err)

	usdt, err := prices.GetUsdPrice("USDT")
	require.NoError(t, err)
	assert.True(t, usdt.Equal(decimal.NewFromInt(1)))

	require.NoError(t, prices.Refresh(context.Background()))
	eth, err := prices.GetUsdPrice("ETH")
	require.NoError(t, err)
	assert.True(t, eth.Equal(decimal.NewFromInt(2000)))
}

func TestBuildRegistry(t *testing.T) {
	cfg := &config.Config{Arbitrage: testArbitrageConfig()}
	prices, err := buildPriceService(cfg, staticSource{}, quietLogger())
	require.NoError(t, err)

	registry, err := buildRegistry(cfg.Arbitrage, arbitrage.Dependencies{
		Prices: prices,
		Store:  cache.NewOpportunityCache(),
		Logger: quietLogger(),
	}, metadata.NewStore())
	require.NoError(t, err)

	assert.Len(t, registry.Keys(), 4)
	// every currency pair on every distinct exchange
	assert.Len(t, registry.Routes(), 6)
}

type countingTarget struct {
	calls atomic.Int32
	err   error
}

func (c *countingTarget) Refresh(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestWarmUp(t *testing.T) {
	ok := &countingTarget{}
	failing := &countingTarget{err: errors.New("redis unavailable")}
	refreshers := []*services.RefreshService{
		services.NewRefreshService("prices", ok, nil, time.Minute, 0, quietLogger()),
		services.NewRefreshService("metadata", failing, nil, time.Minute, 0, quietLogger()),
	}

	warmUp(context.Background(), refreshers, quietLogger())

	assert.Equal(t, int32(1), ok.calls.Load())
	assert.Equal(t, int32(1), failing.calls.Load())
	assert.Equal(t, services.JobStats{Runs: 1, Failures: 1}, refreshers[1].GetStats())
}
