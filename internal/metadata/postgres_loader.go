package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-arb-monitor/internal/models"
)

// Querier is the subset of pgxpool.Pool used by the loader
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

const feeTiersQuery = `
	SELECT exchange, base_currency, counter_currency, min_amount, taker_fee
	FROM exchange_fee_tiers
	ORDER BY exchange, base_currency, counter_currency, min_amount
`

// Nullable columns are flattened so the scan targets stay plain values:
// statuses become -1 (unknown), 0 (disabled) or 1 (enabled) and missing
// amounts become -1.
const currenciesQuery = `
	SELECT exchange, currency,
		CASE WHEN withdrawal_enabled IS NULL THEN -1 WHEN withdrawal_enabled THEN 1 ELSE 0 END::int,
		CASE WHEN deposit_enabled IS NULL THEN -1 WHEN deposit_enabled THEN 1 ELSE 0 END::int,
		COALESCE(withdrawal_fee, -1),
		COALESCE(min_withdrawal_amount, -1)
	FROM exchange_currencies
`

// PostgresLoader builds metadata snapshots from the exchange_fee_tiers and
// exchange_currencies tables
type PostgresLoader struct {
	db     Querier
	store  *Store
	logger *logrus.Logger
}

// NewPostgresLoader creates a loader that refreshes store
func NewPostgresLoader(db Querier, store *Store, logger *logrus.Logger) *PostgresLoader {
	return &PostgresLoader{db: db, store: store, logger: logger}
}

// Refresh loads a full snapshot and swaps it into the store. The store keeps
// the previous snapshot when loading fails.
func (l *PostgresLoader) Refresh(ctx context.Context) error {
	start := time.Now()
	snapshot := NewSnapshot()

	if err := l.loadFeeTiers(ctx, snapshot); err != nil {
		return err
	}
	if err := l.loadCurrencies(ctx, snapshot); err != nil {
		return err
	}

	l.store.Replace(snapshot, time.Now())
	l.logger.WithFields(logrus.Fields{
		"pairs":       snapshot.PairCount(),
		"currencies":  snapshot.CurrencyCount(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Exchange metadata refreshed")
	return nil
}

func (l *PostgresLoader) loadFeeTiers(ctx context.Context, snapshot *Snapshot) error {
	rows, err := l.db.Query(ctx, feeTiersQuery)
	if err != nil {
		return fmt.Errorf("failed to query fee tiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var exchange, base, counter string
		var minAmount, takerFee decimal.Decimal
		if err := rows.Scan(&exchange, &base, &counter, &minAmount, &takerFee); err != nil {
			return fmt.Errorf("failed to scan fee tier row: %w", err)
		}
		snapshot.AddFeeTier(
			models.Exchange(exchange),
			models.NewCurrencyPair(base, counter),
			FeeTier{MinAmount: minAmount, TakerFeeRatio: takerFee},
		)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating fee tier rows: %w", err)
	}
	return nil
}

func (l *PostgresLoader) loadCurrencies(ctx context.Context, snapshot *Snapshot) error {
	rows, err := l.db.Query(ctx, currenciesQuery)
	if err != nil {
		return fmt.Errorf("failed to query currency metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var exchange, currency string
		var withdrawalStatus, depositStatus int
		var withdrawalFee, minWithdrawal decimal.Decimal
		if err := rows.Scan(&exchange, &currency, &withdrawalStatus, &depositStatus, &withdrawalFee, &minWithdrawal); err != nil {
			return fmt.Errorf("failed to scan currency metadata row: %w", err)
		}
		snapshot.SetCurrency(models.Exchange(exchange), currency, CurrencyMetadata{
			WithdrawalEnabled:   statusFlag(withdrawalStatus),
			DepositEnabled:      statusFlag(depositStatus),
			WithdrawalFeeAmount: nonNegative(withdrawalFee),
			MinWithdrawalAmount: nonNegative(minWithdrawal),
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating currency metadata rows: %w", err)
	}
	return nil
}

func statusFlag(status int) *bool {
	if status < 0 {
		return nil
	}
	enabled := status == 1
	return &enabled
}

func nonNegative(value decimal.Decimal) decimal.NullDecimal {
	if value.IsNegative() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(value)
}
