package handlers

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DisplayScale is the number of fractional digits shown for percentages and
// USD amounts. Rounding is half-to-even and only happens at this layer.
const DisplayScale int32 = 2

var hundred = decimal.NewFromInt(100)

// Formatter renders decimals for humans using locale-aware grouping
type Formatter struct {
	printer *message.Printer
}

// NewFormatter creates a formatter for the given locale tag. Unknown tags fall
// back to English.
func NewFormatter(tag string) *Formatter {
	lang, err := language.Parse(tag)
	if err != nil {
		lang = language.English
	}
	return &Formatter{printer: message.NewPrinter(lang)}
}

// Percent renders a relative value (0.0123) as a percentage ("1.23%")
func (f *Formatter) Percent(relative decimal.Decimal) string {
	return f.fixed(relative.Mul(hundred)) + "%"
}

// Usd renders a USD amount ("$1,234.57")
func (f *Formatter) Usd(amount decimal.Decimal) string {
	rounded := amount.RoundBank(DisplayScale)
	if rounded.IsNegative() {
		return "-$" + f.fixed(rounded.Neg())
	}
	return "$" + f.fixed(rounded)
}

func (f *Formatter) fixed(value decimal.Decimal) string {
	rounded := value.RoundBank(DisplayScale)
	return f.printer.Sprint(number.Decimal(rounded.InexactFloat64(), number.Scale(int(DisplayScale))))
}
