package trade

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Planner turns a scheduled trade plus a reference quote into the buy
// instruction for its opening leg. Pure and deterministic.
type Planner struct {
	QuoteAsset     string
	CapitalReserve decimal.Decimal // fraction of capital held back for fees
	SpreadMarkup   decimal.Decimal // fraction added to the reference price
	Precision      int32           // exchange decimal precision for qty/price
}

// NewPlanner returns a planner with the production defaults: 1% fee
// reserve, 1% spread markup, 2 decimal places, USDT quote.
func NewPlanner() Planner {
	return Planner{
		QuoteAsset:     "USDT",
		CapitalReserve: decimal.NewFromFloat(0.01),
		SpreadMarkup:   decimal.NewFromFloat(0.01),
		Precision:      2,
	}
}

// Plan computes the buy leg. The limit price is the reference price
// plus the spread markup; the quantity spends the reserved capital at
// that price, truncated so the order notional can never exceed the
// reserved capital.
func (p Planner) Plan(t ScheduledTrade, referencePrice, availableCapital decimal.Decimal) (OrderInstruction, error) {
	if referencePrice.Sign() <= 0 {
		return OrderInstruction{}, fmt.Errorf("%w: reference price %s", ErrInvalidInput, referencePrice)
	}
	if availableCapital.Sign() <= 0 {
		return OrderInstruction{}, fmt.Errorf("%w: available capital %s", ErrInvalidInput, availableCapital)
	}

	one := decimal.New(1, 0)
	usable := availableCapital.Mul(one.Sub(p.CapitalReserve))
	limit := referencePrice.Mul(one.Add(p.SpreadMarkup)).Round(p.Precision)
	if limit.Sign() <= 0 {
		return OrderInstruction{}, fmt.Errorf("%w: reference price %s rounds to zero", ErrInvalidInput, referencePrice)
	}
	qty := usable.Div(limit).Truncate(p.Precision)
	if qty.Sign() <= 0 {
		return OrderInstruction{}, fmt.Errorf("%w: capital %s buys zero quantity at %s", ErrInvalidInput, availableCapital, limit)
	}

	return OrderInstruction{
		Symbol:   t.Symbol(p.QuoteAsset),
		Side:     SideBuy,
		Type:     TypeLimit,
		Quantity: qty,
		Price:    limit,
		RespType: "RESULT",
	}, nil
}
