package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/irfndi/celebrum-arb-monitor/internal/api"
	"github.com/irfndi/celebrum-arb-monitor/internal/api/handlers"
	"github.com/irfndi/celebrum-arb-monitor/internal/arbitrage"
	"github.com/irfndi/celebrum-arb-monitor/internal/cache"
	"github.com/irfndi/celebrum-arb-monitor/internal/config"
	"github.com/irfndi/celebrum-arb-monitor/internal/database"
	"github.com/irfndi/celebrum-arb-monitor/internal/logging"
	"github.com/irfndi/celebrum-arb-monitor/internal/metadata"
	"github.com/irfndi/celebrum-arb-monitor/internal/metrics"
	"github.com/irfndi/celebrum-arb-monitor/internal/pricing"
	"github.com/irfndi/celebrum-arb-monitor/internal/services"
	"github.com/irfndi/celebrum-arb-monitor/internal/telemetry"
)

const serviceName = "celebrum-arb-monitor"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize telemetry first
	provider, err := telemetry.InitTelemetryWithProvider(ctx, &telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		Exporter:       cfg.Telemetry.Exporter,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		MetricInterval: cfg.Telemetry.MetricInterval,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to shutdown telemetry")
		}
	}()

	// Redis backs USD prices and the snapshot export
	redis, err := database.NewRedisConnection(ctx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redis.Close()

	breakers := services.NewCircuitBreakerManager(logger)
	healthRequired := map[string]handlers.HealthChecker{"redis": redis}
	healthOptional := map[string]handlers.HealthChecker{}

	// Exchange metadata; stays empty without a database
	metadataStore := metadata.NewStore()
	var metadataRefresher *services.RefreshService
	if cfg.Database.Enabled {
		db, err := database.NewPostgresConnection(ctx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		healthOptional["database"] = db

		loader := metadata.NewPostgresLoader(database.NewTracedDB(db.Pool), metadataStore, logger)
		metadataRefresher = services.NewRefreshService("metadata", loader,
			breakers.GetOrCreate("metadata", services.CircuitBreakerConfig{}),
			cfg.Metadata.RefreshInterval, 30*time.Second, logger)
	}

	// USD prices, pre-warmed before any monitor runs
	prices, err := buildPriceService(cfg, pricing.NewRedisPriceSource(redis.Client, cfg.Pricing.RedisHash, logger), logger)
	if err != nil {
		return err
	}
	priceRefresher := services.NewRefreshService("prices", prices,
		breakers.GetOrCreate("prices", services.CircuitBreakerConfig{}),
		cfg.Pricing.RefreshInterval, 10*time.Second, logger)

	opportunities := cache.NewOpportunityCache()
	collector, err := metrics.NewCollector(provider.Meter(metrics.MeterName), logger)
	if err != nil {
		return fmt.Errorf("failed to create metrics collector: %w", err)
	}
	errorAggregator := logging.NewErrorAggregator(logger)
	go errorAggregator.Start(ctx, cfg.Arbitrage.ErrorFlushInterval)

	registry, err := buildRegistry(cfg.Arbitrage, arbitrage.Dependencies{
		Prices:  prices,
		Store:   opportunities,
		Metrics: collector,
		Errors:  errorAggregator,
		Logger:  logger,
	}, metadataStore)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"monitors": len(registry.Keys()),
		"routes":   len(registry.Routes()),
	}).Info("Monitor registry ready")

	// Warm caches before serving, then keep them fresh
	refreshers := []*services.RefreshService{priceRefresher}
	if metadataRefresher != nil {
		refreshers = append(refreshers, metadataRefresher)
		defer metadataRefresher.Stop()
	}
	warmUp(ctx, refreshers, logger)
	if metadataRefresher != nil {
		metadataRefresher.Start()
	}
	priceRefresher.Start()
	defer priceRefresher.Stop()

	eviction := services.NewEvictionService(opportunities, collector, services.EvictionConfig{
		TTL:      cfg.Arbitrage.OpportunityTTL,
		Interval: cfg.Arbitrage.EvictionInterval,
	}, logger)
	eviction.Start()
	defer eviction.Stop()

	if cfg.Export.Enabled {
		writer := cache.NewRedisSnapshotWriter(redis.Client, cfg.Export.RedisKey, cfg.Export.SnapshotTTL, logger)
		exporter := services.NewSnapshotExporter(opportunities, writer, cfg.Export.Interval, logger)
		exporter.Start()
		defer exporter.Stop()
	}

	version := cfg.Telemetry.ServiceVersion
	router := api.NewRouter(api.RouterConfig{
		ServiceName:    serviceName,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Opportunities:  handlers.NewOpportunityHandler(opportunities, handlers.NewFormatter("en")),
		Health:         handlers.NewHealthHandler(healthRequired, healthOptional, breakers, opportunities.Len, version),
		Logger:         logger,
	})

	// Create HTTP server with security timeouts
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.LogStartup(logger, serviceName, version, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	reason := "signal received"
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		reason = "server error"
		logger.WithError(err).Error("HTTP server failed")
	}
	logging.LogShutdown(logger, serviceName, reason)

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

// warmUp runs every refresher once in parallel. Failures are logged and the
// scheduled refresh retries them.
func warmUp(ctx context.Context, refreshers []*services.RefreshService, logger *logrus.Logger) {
	g, ctx := errgroup.WithContext(ctx)
	for _, refresher := range refreshers {
		g.Go(func() error {
			if err := refresher.RefreshNow(ctx); err != nil {
				logger.WithError(err).Warn("Initial warm-up failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// buildRegistry creates one monitor per configured currency pair and
// exchange pair. deps.Calculator is derived from the fee settings.
func buildRegistry(cfg config.ArbitrageConfig, deps arbitrage.Dependencies, fees arbitrage.ExchangeMetadataService) (*arbitrage.Registry, error) {
	monitorConfig, err := buildMonitorConfig(cfg)
	if err != nil {
		return nil, err
	}
	feePolicy, err := buildFeePolicy(cfg, fees)
	if err != nil {
		return nil, err
	}
	currencyPairs, err := cfg.ParsedCurrencyPairs()
	if err != nil {
		return nil, err
	}
	exchangePairs, err := cfg.ParsedExchangePairs()
	if err != nil {
		return nil, err
	}

	deps.Calculator = arbitrage.NewProfitCalculator(feePolicy)
	registry, err := arbitrage.NewRegistry(currencyPairs, exchangePairs, monitorConfig, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to build monitor registry: %w", err)
	}
	return registry, nil
}

// buildMonitorConfig turns validated configuration into monitor settings
func buildMonitorConfig(cfg config.ArbitrageConfig) (arbitrage.MonitorConfig, error) {
	thresholds, err := cfg.ParsedUsdDepthThresholds()
	if err != nil {
		return arbitrage.MonitorConfig{}, err
	}
	cutOff, err := cfg.ParsedCutOff()
	if err != nil {
		return arbitrage.MonitorConfig{}, err
	}
	return arbitrage.MonitorConfig{
		UsdDepthThresholds: thresholds,
		MaxTickerAge:       cfg.MaxTickerAge,
		MaxOrderBookAge:    cfg.MaxOrderBookAge,
		MaxOrderAge:        cfg.MaxOrderAge,
		CutOff: arbitrage.OpportunityCutOff{
			MinRelativeProfit: cutOff.MinRelativeProfit,
			MaxRelativeProfit: cutOff.MaxRelativeProfit,
			MinUsd24hVolume:   cutOff.MinUsdVolume24h,
		},
	}, nil
}

// buildFeePolicy selects metadata driven fees or the fee-free policy
func buildFeePolicy(cfg config.ArbitrageConfig, store arbitrage.ExchangeMetadataService) (arbitrage.FeePolicy, error) {
	if !cfg.UseMetadataFees {
		return arbitrage.NoFeePolicy{}, nil
	}
	ratio, err := cfg.ParsedDefaultTransactionFeeRatio()
	if err != nil {
		return nil, err
	}
	return arbitrage.NewMetadataFeePolicy(store, ratio), nil
}

// buildPriceService creates the price cache for every configured currency
// and pins the fixed prices
func buildPriceService(cfg *config.Config, source pricing.PriceSource, logger *logrus.Logger) (*pricing.CachedPriceService, error) {
	fixed, err := cfg.Pricing.ParsedFixedPrices()
	if err != nil {
		return nil, err
	}
	prices := pricing.NewCachedPriceService(source, cfg.Arbitrage.Currencies(), cfg.Pricing.MaxPriceAge, logger)
	for currency, price := range fixed {
		prices.SetFixedPrice(currency, price)
	}
	return prices, nil
}
