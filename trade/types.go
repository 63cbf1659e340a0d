package trade

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType distinguishes limit and market orders.
type OrderType string

const (
	TypeLimit  OrderType = "LIMIT"
	TypeMarket OrderType = "MARKET"
)

// Status represents the exchange-reported order lifecycle.
type Status string

const (
	StatusNew      Status = "NEW"
	StatusPartial  Status = "PARTIALLY_FILLED"
	StatusFilled   Status = "FILLED"
	StatusCanceled Status = "CANCELED"
	StatusRejected Status = "REJECTED"
)

// Dead reports whether the exchange will never execute more quantity
// against this order.
func (s Status) Dead() bool {
	return s == StatusCanceled || s == StatusRejected
}

// Active reports whether the order may still produce fills.
func (s Status) Active() bool {
	return s == StatusNew || s == StatusPartial
}

// OrderInstruction describes one order to submit. Values are immutable
// once built; each instruction is consumed by exactly one submission.
type OrderInstruction struct {
	Symbol   string
	Side     Side
	Type     OrderType
	Quantity decimal.Decimal
	Price    decimal.Decimal // zero for MARKET orders
	RespType string          // newOrderRespType, e.g. "RESULT"
}

// OrderReport is the exchange's snapshot of an order at the instant the
// response was produced. It must never be assumed current beyond that
// instant; ExecutedQty is monotone non-decreasing across reports for
// the same order id.
type OrderReport struct {
	OrderID     int64
	Symbol      string
	Status      Status
	OrigQty     decimal.Decimal
	ExecutedQty decimal.Decimal
}

// ScheduledTrade is one entry of the run schedule: buy Coin against the
// configured quote asset at StartTime, then liquidate.
type ScheduledTrade struct {
	Coin      string
	StartTime time.Time
}

// Symbol returns the exchange pair for the given quote asset.
func (t ScheduledTrade) Symbol(quoteAsset string) string {
	return t.Coin + quoteAsset
}
