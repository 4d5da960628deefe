package models

import (
	"fmt"
	"strings"
)

// Exchange is the identifier of a named cryptocurrency exchange
type Exchange string

// String returns the exchange name
func (e Exchange) String() string {
	return string(e)
}

// ExchangePair is an ordered pair of exchanges. The order is fixed when a
// monitor is created and is part of the cache key, so (a,b) and (b,a) are
// distinct pairs.
type ExchangePair struct {
	First  Exchange `json:"first"`
	Second Exchange `json:"second"`
}

// NewExchangePair creates an ordered exchange pair
func NewExchangePair(first, second string) ExchangePair {
	return ExchangePair{
		First:  Exchange(strings.ToLower(strings.TrimSpace(first))),
		Second: Exchange(strings.ToLower(strings.TrimSpace(second))),
	}
}

// ParseExchangePair parses a "first:second" exchange pair
func ParseExchangePair(value string) (ExchangePair, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return ExchangePair{}, fmt.Errorf("invalid exchange pair %q, expected first:second", value)
	}
	pair := NewExchangePair(parts[0], parts[1])
	if pair.First == pair.Second {
		return ExchangePair{}, fmt.Errorf("invalid exchange pair %q, exchanges must differ", value)
	}
	return pair, nil
}

// String returns the first:second representation
func (ep ExchangePair) String() string {
	return ep.First.String() + ":" + ep.Second.String()
}

// Key is the routing and cache identity of one monitored
// (currency pair, exchange pair) tuple. Equality is structural.
type Key struct {
	CurrencyPair CurrencyPair `json:"currency_pair"`
	ExchangePair ExchangePair `json:"exchange_pair"`
}

// NewKey creates a key from a currency pair and an exchange pair
func NewKey(currencyPair CurrencyPair, exchangePair ExchangePair) Key {
	return Key{CurrencyPair: currencyPair, ExchangePair: exchangePair}
}

// String returns a human readable key, e.g. ETH/BTC@binance:kraken
func (k Key) String() string {
	return k.CurrencyPair.String() + "@" + k.ExchangePair.String()
}
