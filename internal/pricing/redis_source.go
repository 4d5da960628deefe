package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultPriceHash is the Redis hash holding currency -> USD price
const DefaultPriceHash = "usd_prices"

// RedisPriceSource reads USD prices published into a Redis hash by the
// price collector
type RedisPriceSource struct {
	redis  *redis.Client
	hash   string
	logger *logrus.Logger
}

// NewRedisPriceSource creates a source reading the given hash
func NewRedisPriceSource(redisClient *redis.Client, hash string, logger *logrus.Logger) *RedisPriceSource {
	if hash == "" {
		hash = DefaultPriceHash
	}
	return &RedisPriceSource{redis: redisClient, hash: hash, logger: logger}
}

// FetchUsdPrices implements PriceSource. Unknown or malformed entries are
// skipped.
func (r *RedisPriceSource) FetchUsdPrices(ctx context.Context, currencies []string) (map[string]decimal.Decimal, error) {
	if len(currencies) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	values, err := r.redis.HMGet(ctx, r.hash, currencies...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hmget %s: %w", r.hash, err)
	}

	prices := make(map[string]decimal.Decimal, len(currencies))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			r.logger.WithError(err).WithField("currency", currencies[i]).Warn("Skipping malformed usd price")
			continue
		}
		prices[currencies[i]] = price
	}
	return prices, nil
}
