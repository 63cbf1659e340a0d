package trade

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidInput  = errors.New("invalid planning input")
	ErrNoBalance     = errors.New("no available balance")
	ErrOrderRejected = errors.New("buy order rejected by exchange")
)

// LiquidationTimeoutError reports that the polling deadline elapsed
// with part of the position still unsold. Unsold is the quantity the
// caller is left holding.
type LiquidationTimeoutError struct {
	Symbol  string
	OrderID int64
	Unsold  decimal.Decimal
}

func (e *LiquidationTimeoutError) Error() string {
	return fmt.Sprintf("liquidation of %s order %d timed out with %s unsold",
		e.Symbol, e.OrderID, e.Unsold)
}
