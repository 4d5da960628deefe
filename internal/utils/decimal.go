package utils

import (
	"errors"

	"github.com/shopspring/decimal"
)

// DivisionScale is the number of fractional digits kept by DivBank.
const DivisionScale int32 = 16

// ErrDivisionByZero is returned by DivBank when the divisor is zero.
var ErrDivisionByZero = errors.New("decimal division by zero")

// DivBank divides a by b and rounds the quotient half-to-even at
// DivisionScale fractional digits.
func DivBank(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return DivBankScale(a, b, DivisionScale), nil
}

// DivBankScale divides a by b rounding half-to-even at the given scale.
// b must not be zero.
func DivBankScale(a, b decimal.Decimal, scale int32) decimal.Decimal {
	// QuoRem truncates toward zero and leaves |r| < |b| * 10^-scale.
	q, r := a.QuoRem(b, scale)
	if r.IsZero() {
		return q
	}

	ulp := decimal.New(1, -scale)
	twiceRemainder := r.Abs().Mul(decimal.NewFromInt(2))
	halfway := b.Abs().Mul(ulp)

	roundAway := false
	switch twiceRemainder.Cmp(halfway) {
	case 1:
		roundAway = true
	case 0:
		roundAway = q.Abs().Shift(scale).BigInt().Bit(0) == 1
	}
	if !roundAway {
		return q
	}
	if a.Sign()*b.Sign() < 0 {
		return q.Sub(ulp)
	}
	return q.Add(ulp)
}

// MinDecimal returns the smaller of two decimals
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
