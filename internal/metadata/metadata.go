// Package metadata keeps exchange fee schedules and currency transfer
// metadata in memory so the arbitrage hot path never waits on storage.
package metadata

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-arb-monitor/internal/models"
)

// FeeTier applies TakerFeeRatio to trades of at least MinAmount base currency
type FeeTier struct {
	MinAmount     decimal.Decimal `json:"min_amount"`
	TakerFeeRatio decimal.Decimal `json:"taker_fee_ratio"`
}

// CurrencyPairMetadata holds the taker fee tier schedule of one pair
type CurrencyPairMetadata struct {
	TakerFeeTiers []FeeTier `json:"taker_fee_tiers"`
}

// TakerFeeRatio returns the ratio of the highest tier whose minimum amount
// does not exceed amount. ok is false when no tier applies.
func (m *CurrencyPairMetadata) TakerFeeRatio(amount decimal.Decimal) (decimal.Decimal, bool) {
	if m == nil {
		return decimal.Zero, false
	}
	ratio := decimal.Zero
	found := false
	for _, tier := range m.TakerFeeTiers {
		if tier.MinAmount.GreaterThan(amount) {
			break
		}
		ratio = tier.TakerFeeRatio
		found = true
	}
	return ratio, found
}

// CurrencyMetadata holds transfer metadata of one currency at one exchange.
// Nil flags mean the exchange did not report a status.
type CurrencyMetadata struct {
	WithdrawalEnabled   *bool               `json:"withdrawal_enabled,omitempty"`
	DepositEnabled      *bool               `json:"deposit_enabled,omitempty"`
	WithdrawalFeeAmount decimal.NullDecimal `json:"withdrawal_fee_amount"`
	MinWithdrawalAmount decimal.NullDecimal `json:"min_withdrawal_amount"`
}

// WithdrawalDisabled is true only for an explicit false
func (m *CurrencyMetadata) WithdrawalDisabled() bool {
	return m != nil && m.WithdrawalEnabled != nil && !*m.WithdrawalEnabled
}

// DepositDisabled is true only for an explicit false
func (m *CurrencyMetadata) DepositDisabled() bool {
	return m != nil && m.DepositEnabled != nil && !*m.DepositEnabled
}

type pairKey struct {
	exchange models.Exchange
	pair     models.CurrencyPair
}

type currencyKey struct {
	exchange models.Exchange
	currency string
}

// Snapshot is a complete set of metadata, built off to the side and then
// swapped into a Store in one step
type Snapshot struct {
	pairs      map[pairKey]*CurrencyPairMetadata
	currencies map[currencyKey]*CurrencyMetadata
}

// NewSnapshot creates an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{
		pairs:      make(map[pairKey]*CurrencyPairMetadata),
		currencies: make(map[currencyKey]*CurrencyMetadata),
	}
}

// AddFeeTier appends a taker fee tier, keeping tiers sorted by MinAmount
func (s *Snapshot) AddFeeTier(exchange models.Exchange, pair models.CurrencyPair, tier FeeTier) {
	key := pairKey{exchange: exchange, pair: pair}
	meta, ok := s.pairs[key]
	if !ok {
		meta = &CurrencyPairMetadata{}
		s.pairs[key] = meta
	}
	meta.TakerFeeTiers = append(meta.TakerFeeTiers, tier)
	sort.SliceStable(meta.TakerFeeTiers, func(i, j int) bool {
		return meta.TakerFeeTiers[i].MinAmount.LessThan(meta.TakerFeeTiers[j].MinAmount)
	})
}

// SetCurrency stores currency metadata for an exchange
func (s *Snapshot) SetCurrency(exchange models.Exchange, currency string, meta CurrencyMetadata) {
	s.currencies[currencyKey{exchange: exchange, currency: currency}] = &meta
}

// PairCount returns the number of pairs with a fee schedule
func (s *Snapshot) PairCount() int {
	return len(s.pairs)
}

// CurrencyCount returns the number of currency entries
func (s *Snapshot) CurrencyCount() int {
	return len(s.currencies)
}

// Store serves metadata lookups from the most recently loaded snapshot
type Store struct {
	mu       sync.RWMutex
	snapshot *Snapshot
	loadedAt time.Time
}

// NewStore creates an empty store; lookups return nothing until Replace
func NewStore() *Store {
	return &Store{snapshot: NewSnapshot()}
}

// Replace swaps in a new snapshot
func (s *Store) Replace(snapshot *Snapshot, loadedAt time.Time) {
	if snapshot == nil {
		return
	}
	s.mu.Lock()
	s.snapshot = snapshot
	s.loadedAt = loadedAt
	s.mu.Unlock()
}

// LoadedAt returns when the current snapshot was loaded
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// CurrencyPairMetadata returns the fee schedule of a pair at an exchange
func (s *Store) CurrencyPairMetadata(exchange models.Exchange, pair models.CurrencyPair) (*CurrencyPairMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.snapshot.pairs[pairKey{exchange: exchange, pair: pair}]
	return meta, ok
}

// CurrencyMetadata returns transfer metadata of a currency at an exchange
func (s *Store) CurrencyMetadata(exchange models.Exchange, currency string) (*CurrencyMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.snapshot.currencies[currencyKey{exchange: exchange, currency: currency}]
	return meta, ok
}
