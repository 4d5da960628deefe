package models

import (
	"fmt"
	"strings"
)

// CurrencyPair identifies a traded pair such as ETH/BTC
type CurrencyPair struct {
	Base    string `json:"base" mapstructure:"base"`
	Counter string `json:"counter" mapstructure:"counter"`
}

// NewCurrencyPair creates a currency pair with upper-cased currency codes
func NewCurrencyPair(base, counter string) CurrencyPair {
	return CurrencyPair{
		Base:    strings.ToUpper(strings.TrimSpace(base)),
		Counter: strings.ToUpper(strings.TrimSpace(counter)),
	}
}

// ParseCurrencyPair parses a "BASE/COUNTER" symbol
func ParseCurrencyPair(symbol string) (CurrencyPair, error) {
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return CurrencyPair{}, fmt.Errorf("invalid currency pair %q, expected BASE/COUNTER", symbol)
	}
	return NewCurrencyPair(parts[0], parts[1]), nil
}

// String returns the BASE/COUNTER representation
func (cp CurrencyPair) String() string {
	return cp.Base + "/" + cp.Counter
}
