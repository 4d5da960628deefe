package arbitrage

import (
	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-arb-monitor/internal/models"
)

// FeePolicy supplies the fees the profit calculator deducts
type FeePolicy interface {
	// TransactionFee returns the taker fee for trading amount of base currency
	TransactionFee(exchange models.Exchange, pair models.CurrencyPair, amount decimal.Decimal) models.FeeAmount
	// WithdrawalFee returns the flat fee for withdrawing amount, or an invalid
	// NullDecimal when no withdrawal is assumed
	WithdrawalFee(exchange models.Exchange, currency string, amount decimal.Decimal) decimal.NullDecimal
	// TransferDisabled reports whether withdrawal or deposit is explicitly
	// disabled for either currency of the pair at either exchange
	TransferDisabled(buyExchange, sellExchange models.Exchange, pair models.CurrencyPair) bool
}

// NoFeePolicy charges nothing and never blocks transfers
type NoFeePolicy struct{}

// TransactionFee implements FeePolicy
func (NoFeePolicy) TransactionFee(models.Exchange, models.CurrencyPair, decimal.Decimal) models.FeeAmount {
	return models.FeeAmount{Amount: decimal.Zero}
}

// WithdrawalFee implements FeePolicy
func (NoFeePolicy) WithdrawalFee(models.Exchange, string, decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{}
}

// TransferDisabled implements FeePolicy
func (NoFeePolicy) TransferDisabled(models.Exchange, models.Exchange, models.CurrencyPair) bool {
	return false
}

// MetadataFeePolicy reads fees from exchange metadata and falls back to a
// default taker fee ratio when no tier schedule applies
type MetadataFeePolicy struct {
	metadata     ExchangeMetadataService
	defaultRatio decimal.Decimal
}

// NewMetadataFeePolicy creates a metadata backed fee policy
func NewMetadataFeePolicy(metadata ExchangeMetadataService, defaultTransactionFeeRatio decimal.Decimal) *MetadataFeePolicy {
	return &MetadataFeePolicy{metadata: metadata, defaultRatio: defaultTransactionFeeRatio}
}

// TransactionFee implements FeePolicy
func (p *MetadataFeePolicy) TransactionFee(exchange models.Exchange, pair models.CurrencyPair, amount decimal.Decimal) models.FeeAmount {
	if meta, ok := p.metadata.CurrencyPairMetadata(exchange, pair); ok {
		if ratio, found := meta.TakerFeeRatio(amount); found {
			return models.FeeAmount{Amount: amount.Mul(ratio)}
		}
	}
	return models.FeeAmount{Amount: amount.Mul(p.defaultRatio), IsEstimated: true}
}

// WithdrawalFee implements FeePolicy
func (p *MetadataFeePolicy) WithdrawalFee(exchange models.Exchange, currency string, amount decimal.Decimal) decimal.NullDecimal {
	meta, ok := p.metadata.CurrencyMetadata(exchange, currency)
	if !ok || !meta.WithdrawalFeeAmount.Valid {
		return decimal.NullDecimal{}
	}
	if meta.MinWithdrawalAmount.Valid && amount.LessThan(meta.MinWithdrawalAmount.Decimal) {
		return decimal.NullDecimal{}
	}
	return meta.WithdrawalFeeAmount
}

// TransferDisabled implements FeePolicy
func (p *MetadataFeePolicy) TransferDisabled(buyExchange, sellExchange models.Exchange, pair models.CurrencyPair) bool {
	for _, exchange := range []models.Exchange{buyExchange, sellExchange} {
		for _, currency := range []string{pair.Base, pair.Counter} {
			meta, ok := p.metadata.CurrencyMetadata(exchange, currency)
			if !ok {
				continue
			}
			if meta.WithdrawalDisabled() || meta.DepositDisabled() {
				return true
			}
		}
	}
	return false
}
