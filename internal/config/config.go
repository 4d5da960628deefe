package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/irfndi/celebrum-arb-monitor/internal/models"
	"github.com/irfndi/celebrum-arb-monitor/internal/utils"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Arbitrage   ArbitrageConfig `mapstructure:"arbitrage"`
	Pricing     PricingConfig   `mapstructure:"pricing"`
	Metadata    MetadataConfig  `mapstructure:"metadata"`
	Export      ExportConfig    `mapstructure:"export"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	// Exporter is "otlp" or "stdout"
	Exporter       string        `mapstructure:"exporter"`
	MetricInterval time.Duration `mapstructure:"metric_interval"`
}

// ArbitrageConfig configures the monitors. Decimal values are strings so
// they are never rounded through float64.
type ArbitrageConfig struct {
	CurrencyPairs              []string      `mapstructure:"currency_pairs"`
	ExchangePairs              []string      `mapstructure:"exchange_pairs"`
	UsdDepthThresholds         []string      `mapstructure:"usd_depth_thresholds"`
	MaxTickerAge               time.Duration `mapstructure:"max_ticker_age"`
	MaxOrderBookAge            time.Duration `mapstructure:"max_order_book_age"`
	MaxOrderAge                time.Duration `mapstructure:"max_order_age"`
	OpportunityTTL             time.Duration `mapstructure:"opportunity_ttl"`
	EvictionInterval           time.Duration `mapstructure:"eviction_interval"`
	ErrorFlushInterval         time.Duration `mapstructure:"error_flush_interval"`
	MinRelativeProfit          string        `mapstructure:"min_relative_profit"`
	MaxRelativeProfit          string        `mapstructure:"max_relative_profit"`
	MinUsdVolume24h            string        `mapstructure:"min_usd_volume_24h"`
	DefaultTransactionFeeRatio string        `mapstructure:"default_transaction_fee_ratio"`
	UseMetadataFees            bool          `mapstructure:"use_metadata_fees"`
}

type PricingConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	MaxPriceAge     time.Duration `mapstructure:"max_price_age"`
	RedisHash       string        `mapstructure:"redis_hash"`
	// FixedPrices pins USD prices, e.g. USDT: "1"
	FixedPrices map[string]string `mapstructure:"fixed_prices"`
}

type MetadataConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type ExportConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	RedisKey    string        `mapstructure:"redis_key"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

func Load() (*Config, error) {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks that every value the monitors depend on parses
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return utils.NewFieldValidationErrorf("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if _, err := c.Arbitrage.ParsedCurrencyPairs(); err != nil {
		return err
	}
	if _, err := c.Arbitrage.ParsedExchangePairs(); err != nil {
		return err
	}
	if _, err := c.Arbitrage.ParsedUsdDepthThresholds(); err != nil {
		return err
	}
	if _, err := c.Arbitrage.ParsedCutOff(); err != nil {
		return err
	}
	if _, err := c.Arbitrage.ParsedDefaultTransactionFeeRatio(); err != nil {
		return err
	}
	if c.Arbitrage.OpportunityTTL <= 0 {
		return utils.NewFieldValidationErrorf("arbitrage.opportunity_ttl", "must be positive")
	}
	if c.Arbitrage.EvictionInterval <= 0 {
		return utils.NewFieldValidationErrorf("arbitrage.eviction_interval", "must be positive")
	}
	if _, err := c.Pricing.ParsedFixedPrices(); err != nil {
		return err
	}
	return nil
}

// ParsedCurrencyPairs parses the BASE/COUNTER entries
func (a ArbitrageConfig) ParsedCurrencyPairs() ([]models.CurrencyPair, error) {
	if len(a.CurrencyPairs) == 0 {
		return nil, utils.NewFieldValidationErrorf("arbitrage.currency_pairs", "at least one currency pair is required")
	}
	pairs := make([]models.CurrencyPair, 0, len(a.CurrencyPairs))
	for _, symbol := range a.CurrencyPairs {
		pair, err := models.ParseCurrencyPair(symbol)
		if err != nil {
			return nil, utils.NewFieldValidationErrorf("arbitrage.currency_pairs", "%v", err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// ParsedExchangePairs parses the first:second entries
func (a ArbitrageConfig) ParsedExchangePairs() ([]models.ExchangePair, error) {
	if len(a.ExchangePairs) == 0 {
		return nil, utils.NewFieldValidationErrorf("arbitrage.exchange_pairs", "at least one exchange pair is required")
	}
	pairs := make([]models.ExchangePair, 0, len(a.ExchangePairs))
	for _, value := range a.ExchangePairs {
		pair, err := models.ParseExchangePair(value)
		if err != nil {
			return nil, utils.NewFieldValidationErrorf("arbitrage.exchange_pairs", "%v", err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// ParsedUsdDepthThresholds parses the thresholds, which must be positive and
// strictly ascending
func (a ArbitrageConfig) ParsedUsdDepthThresholds() ([]decimal.Decimal, error) {
	if len(a.UsdDepthThresholds) == 0 {
		return nil, utils.NewFieldValidationErrorf("arbitrage.usd_depth_thresholds", "at least one threshold is required")
	}
	thresholds := make([]decimal.Decimal, 0, len(a.UsdDepthThresholds))
	for i, value := range a.UsdDepthThresholds {
		threshold, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, utils.NewFieldValidationErrorf("arbitrage.usd_depth_thresholds", "invalid threshold %q", value)
		}
		if !threshold.IsPositive() {
			return nil, utils.NewFieldValidationErrorf("arbitrage.usd_depth_thresholds", "threshold %s must be positive", threshold)
		}
		if i > 0 && !threshold.GreaterThan(thresholds[i-1]) {
			return nil, utils.NewFieldValidationErrorf("arbitrage.usd_depth_thresholds", "thresholds must be strictly ascending")
		}
		thresholds = append(thresholds, threshold)
	}
	return thresholds, nil
}

// CutOffValues are the parsed relative profit and volume limits
type CutOffValues struct {
	MinRelativeProfit decimal.Decimal
	MaxRelativeProfit decimal.Decimal
	MinUsdVolume24h   decimal.Decimal
}

// ParsedCutOff parses the cutoff limits; min must not exceed max
func (a ArbitrageConfig) ParsedCutOff() (CutOffValues, error) {
	minProfit, err := parseDecimal("arbitrage.min_relative_profit", a.MinRelativeProfit)
	if err != nil {
		return CutOffValues{}, err
	}
	maxProfit, err := parseDecimal("arbitrage.max_relative_profit", a.MaxRelativeProfit)
	if err != nil {
		return CutOffValues{}, err
	}
	if minProfit.GreaterThan(maxProfit) {
		return CutOffValues{}, utils.NewFieldValidationErrorf("arbitrage.min_relative_profit", "%s exceeds max relative profit %s", minProfit, maxProfit)
	}
	minVolume, err := parseDecimal("arbitrage.min_usd_volume_24h", a.MinUsdVolume24h)
	if err != nil {
		return CutOffValues{}, err
	}
	return CutOffValues{MinRelativeProfit: minProfit, MaxRelativeProfit: maxProfit, MinUsdVolume24h: minVolume}, nil
}

// ParsedDefaultTransactionFeeRatio parses the fallback taker fee ratio
func (a ArbitrageConfig) ParsedDefaultTransactionFeeRatio() (decimal.Decimal, error) {
	ratio, err := parseDecimal("arbitrage.default_transaction_fee_ratio", a.DefaultTransactionFeeRatio)
	if err != nil {
		return decimal.Zero, err
	}
	if ratio.IsNegative() || ratio.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, utils.NewFieldValidationErrorf("arbitrage.default_transaction_fee_ratio", "must be in [0, 1), got %s", ratio)
	}
	return ratio, nil
}

// ParsedFixedPrices parses the pinned USD prices
func (p PricingConfig) ParsedFixedPrices() (map[string]decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(p.FixedPrices))
	for currency, value := range p.FixedPrices {
		price, err := parseDecimal("pricing.fixed_prices."+currency, value)
		if err != nil {
			return nil, err
		}
		if !price.IsPositive() {
			return nil, utils.NewFieldValidationErrorf("pricing.fixed_prices."+currency, "must be positive, got %s", price)
		}
		prices[strings.ToUpper(currency)] = price
	}
	return prices, nil
}

// Currencies returns every currency a price is needed for
func (a ArbitrageConfig) Currencies() []string {
	pairs, err := a.ParsedCurrencyPairs()
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var currencies []string
	for _, pair := range pairs {
		for _, currency := range []string{pair.Base, pair.Counter} {
			if _, ok := seen[currency]; ok {
				continue
			}
			seen[currency] = struct{}{}
			currencies = append(currencies, currency)
		}
	}
	return currencies
}

// RedisAddr returns host:port
func (r RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, utils.NewFieldValidationErrorf(field, "invalid decimal %q", value)
	}
	return parsed, nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Set database defaults
	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "arb_monitor")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.database_url", "")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 2)
	viper.SetDefault("database.conn_max_lifetime", "300s")
	viper.SetDefault("database.conn_max_idle_time", "60s")

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	viper.SetDefault("telemetry.service_name", "arb-monitor")
	viper.SetDefault("telemetry.service_version", "1.0.0")
	viper.SetDefault("telemetry.exporter", "otlp")
	viper.SetDefault("telemetry.metric_interval", "60s")

	// Arbitrage
	viper.SetDefault("arbitrage.currency_pairs", []string{"ETH/BTC", "XRP/BTC", "LTC/BTC"})
	viper.SetDefault("arbitrage.exchange_pairs", []string{"binance:kraken", "binance:bitstamp", "kraken:bitstamp"})
	viper.SetDefault("arbitrage.usd_depth_thresholds", []string{"150", "1500", "15000"})
	viper.SetDefault("arbitrage.max_ticker_age", "15m")
	viper.SetDefault("arbitrage.max_order_book_age", "15m")
	viper.SetDefault("arbitrage.max_order_age", "2h")
	viper.SetDefault("arbitrage.opportunity_ttl", "5m")
	viper.SetDefault("arbitrage.eviction_interval", "30s")
	viper.SetDefault("arbitrage.error_flush_interval", "1m")
	viper.SetDefault("arbitrage.min_relative_profit", "0.002")
	viper.SetDefault("arbitrage.max_relative_profit", "1")
	viper.SetDefault("arbitrage.min_usd_volume_24h", "1000")
	viper.SetDefault("arbitrage.default_transaction_fee_ratio", "0.001")
	viper.SetDefault("arbitrage.use_metadata_fees", true)

	// Pricing
	viper.SetDefault("pricing.refresh_interval", "1m")
	viper.SetDefault("pricing.max_price_age", "10m")
	viper.SetDefault("pricing.redis_hash", "usd_prices")
	viper.SetDefault("pricing.fixed_prices", map[string]string{"USDT": "1", "USDC": "1"})

	// Metadata
	viper.SetDefault("metadata.refresh_interval", "10m")

	// Export
	viper.SetDefault("export.enabled", true)
	viper.SetDefault("export.interval", "10s")
	viper.SetDefault("export.redis_key", "arbitrage:opportunities")
	viper.SetDefault("export.snapshot_ttl", "1m")
}
