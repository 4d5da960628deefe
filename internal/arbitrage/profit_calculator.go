package arbitrage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-arb-monitor/internal/models"
	"github.com/irfndi/celebrum-arb-monitor/internal/utils"
)

// Direction names which exchange of the pair is bought on
type Direction int

const (
	// BuySecondSellFirst buys on the second exchange and sells on the first
	BuySecondSellFirst Direction = iota
	// BuyFirstSellSecond buys on the first exchange and sells on the second
	BuyFirstSellSecond
)

func (d Direction) String() string {
	if d == BuySecondSellFirst {
		return "buy_second_sell_first"
	}
	return "buy_first_sell_second"
}

// Leg describes one trade direction to evaluate
type Leg struct {
	Direction    Direction
	BuySide      models.AveragePrice
	SellSide     models.AveragePrice
	BuyExchange  models.Exchange
	SellExchange models.Exchange
	CurrencyPair models.CurrencyPair
}

// ProfitCalculator computes the relative profit left after transaction and
// withdrawal fees. Every division rounds half-to-even at utils.DivisionScale.
type ProfitCalculator struct {
	fees FeePolicy
}

// NewProfitCalculator creates a calculator; a nil policy charges no fees
func NewProfitCalculator(fees FeePolicy) *ProfitCalculator {
	if fees == nil {
		fees = NoFeePolicy{}
	}
	return &ProfitCalculator{fees: fees}
}

var one = decimal.NewFromInt(1)

// RelativeProfitWithoutFees returns sellPrice / buyPrice - 1
func RelativeProfitWithoutFees(buySide, sellSide models.AveragePrice) (decimal.Decimal, error) {
	ratio, err := utils.DivBank(sellSide.AveragePrice, buySide.AveragePrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: buy price is zero", ErrUnexpectedCalculation)
	}
	return ratio.Sub(one), nil
}

// Profit evaluates one leg
func (c *ProfitCalculator) Profit(leg Leg) (models.LegProfit, error) {
	baseAmountBeforeTransfer := utils.MinDecimal(leg.BuySide.BaseCurrencyAmount, leg.SellSide.BaseCurrencyAmount)
	if !baseAmountBeforeTransfer.IsPositive() {
		return models.LegProfit{}, fmt.Errorf("%w: %s has no tradable amount", ErrUnexpectedCalculation, leg.Direction)
	}

	relativeProfitWithoutFees, err := RelativeProfitWithoutFees(leg.BuySide, leg.SellSide)
	if err != nil {
		return models.LegProfit{}, err
	}
	if c.fees.TransferDisabled(leg.BuyExchange, leg.SellExchange, leg.CurrencyPair) {
		relativeProfitWithoutFees = one.Neg()
	}

	feeBeforeTransfer := c.fees.TransactionFee(leg.SellExchange, leg.CurrencyPair, baseAmountBeforeTransfer)
	amountAfterFirstFee := baseAmountBeforeTransfer.Sub(feeBeforeTransfer.Amount)

	transferFee := c.fees.WithdrawalFee(leg.SellExchange, leg.CurrencyPair.Base, amountAfterFirstFee)
	amountAfterTransfer := amountAfterFirstFee
	if transferFee.Valid {
		amountAfterTransfer = amountAfterTransfer.Sub(transferFee.Decimal)
	}

	feeAfterTransfer := c.fees.TransactionFee(leg.BuyExchange, leg.CurrencyPair, amountAfterTransfer)
	finalAmount := amountAfterTransfer.Sub(feeAfterTransfer.Amount)

	amountWithProfit := finalAmount.Mul(one.Add(relativeProfitWithoutFees))
	ratio, err := utils.DivBank(amountWithProfit, baseAmountBeforeTransfer)
	if err != nil {
		return models.LegProfit{}, fmt.Errorf("%w: %v", ErrUnexpectedCalculation, err)
	}

	return models.LegProfit{
		RelativeProfit:           ratio.Sub(one),
		BaseAmountBeforeTransfer: baseAmountBeforeTransfer,
		BaseAmountAfterTransfer:  finalAmount,
		FeeBeforeTransfer:        feeBeforeTransfer.Amount,
		TransferFee:              transferFee,
		FeeAfterTransfer:         feeAfterTransfer.Amount,
		IsFeeBeforeEstimated:     feeBeforeTransfer.IsEstimated,
		IsFeeAfterEstimated:      feeAfterTransfer.IsEstimated,
	}, nil
}
