package trade

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedExchange replays canned reports: the first SubmitOrder
// consumes the buy report, later submissions are sell legs answered
// from sellReports (or echoed as full fills when the script runs out).
type scriptedExchange struct {
	buyReport   OrderReport
	buyErr      error
	sellReports []OrderReport
	sellErr     error
	pollReports []OrderReport
	pollErr     error

	submits []OrderInstruction
	polls   int
}

func (e *scriptedExchange) SubmitOrder(ctx context.Context, inst OrderInstruction) (OrderReport, error) {
	e.submits = append(e.submits, inst)
	if inst.Side == SideBuy {
		return e.buyReport, e.buyErr
	}
	if e.sellErr != nil {
		return OrderReport{}, e.sellErr
	}
	sellIdx := len(e.submits) - 2 // buy occupies the first slot
	if sellIdx < len(e.sellReports) {
		return e.sellReports[sellIdx], nil
	}
	// default: the market sell fills exactly what was requested
	return OrderReport{
		OrderID:     9000 + int64(sellIdx),
		Symbol:      inst.Symbol,
		Status:      StatusFilled,
		OrigQty:     inst.Quantity,
		ExecutedQty: inst.Quantity,
	}, nil
}

func (e *scriptedExchange) QueryOrder(ctx context.Context, symbol string, orderID int64) (OrderReport, error) {
	if e.pollErr != nil {
		return OrderReport{}, e.pollErr
	}
	idx := e.polls
	e.polls++
	if idx >= len(e.pollReports) {
		idx = len(e.pollReports) - 1 // repeat the last snapshot
	}
	return e.pollReports[idx], nil
}

func (e *scriptedExchange) sells() []OrderInstruction {
	var out []OrderInstruction
	for _, s := range e.submits {
		if s.Side == SideSell {
			out = append(out, s)
		}
	}
	return out
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

// newTestCoordinator wires a coordinator whose sleeps advance a fake
// clock instead of blocking.
func newTestCoordinator(ex Exchange, cfg CoordinatorConfig) (*Coordinator, *fakeClock) {
	c := NewCoordinator(ex, nil, nil, cfg)
	fc := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c.clock = fc
	c.sleep = func(ctx context.Context, d time.Duration) error {
		fc.now = fc.now.Add(d)
		return ctx.Err()
	}
	return c, fc
}

func TestExecuteImmediateFill(t *testing.T) {
	ex := &scriptedExchange{
		buyReport: report(100, StatusFilled, "5", "5"),
	}
	c, _ := newTestCoordinator(ex, CoordinatorConfig{})

	st, err := c.Execute(context.Background(), OrderInstruction{Symbol: "BTCUSDT", Side: SideBuy, Type: TypeLimit, Quantity: dec("5")})
	require.NoError(t, err)
	require.Equal(t, PhaseLiquidated, st.Phase)

	sells := ex.sells()
	require.Len(t, sells, 1)
	require.Equal(t, TypeMarket, sells[0].Type)
	require.True(t, sells[0].Quantity.Equal(dec("5")))
	require.Zero(t, ex.polls, "immediate fill must not poll")
}

func TestExecuteImmediateRejection(t *testing.T) {
	ex := &scriptedExchange{
		buyReport: report(101, StatusRejected, "5", "0"),
	}
	c, _ := newTestCoordinator(ex, CoordinatorConfig{})

	st, err := c.Execute(context.Background(), OrderInstruction{Symbol: "BTCUSDT", Side: SideBuy})
	require.ErrorIs(t, err, ErrOrderRejected)
	require.Equal(t, PhaseRejected, st.Phase)
	require.Empty(t, ex.sells())
}

func TestExecutePartialFillConvergence(t *testing.T) {
	ex := &scriptedExchange{
		buyReport: report(102, StatusNew, "5", "0"),
		pollReports: []OrderReport{
			report(102, StatusPartial, "5", "2"),
			report(102, StatusPartial, "5", "3.5"),
			report(102, StatusFilled, "5", "5"),
		},
	}
	c, _ := newTestCoordinator(ex, CoordinatorConfig{})

	st, err := c.Execute(context.Background(), OrderInstruction{Symbol: "BTCUSDT", Side: SideBuy, Quantity: dec("5")})
	require.NoError(t, err)
	require.Equal(t, PhaseLiquidated, st.Phase)
	require.True(t, st.Sold.Equal(dec("5")))

	sells := ex.sells()
	require.Len(t, sells, 3)
	require.True(t, sells[0].Quantity.Equal(dec("2")))
	require.True(t, sells[1].Quantity.Equal(dec("1.5")))
	require.True(t, sells[2].Quantity.Equal(dec("1.5")))
}

func TestExecuteTimeoutReportsUnsold(t *testing.T) {
	ex := &scriptedExchange{
		buyReport: report(103, StatusNew, "5", "0"),
		pollReports: []OrderReport{
			report(103, StatusPartial, "5", "2"),
		},
	}
	c, fc := newTestCoordinator(ex, CoordinatorConfig{Timeout: 5 * time.Second})
	start := fc.now

	st, err := c.Execute(context.Background(), OrderInstruction{Symbol: "BTCUSDT", Side: SideBuy, Quantity: dec("5")})
	var timeout *LiquidationTimeoutError
	require.ErrorAs(t, err, &timeout)
	require.True(t, timeout.Unsold.Equal(dec("3")), "unsold %s", timeout.Unsold)
	require.Equal(t, PhaseTimedOut, st.Phase)
	// deadline enforced on the wall clock, not poll count
	require.Equal(t, 5*time.Second, fc.now.Sub(start))
	require.Len(t, ex.sells(), 1)
}

func TestExecuteCancelMidPoll(t *testing.T) {
	ex := &scriptedExchange{
		buyReport: report(104, StatusNew, "10", "0"),
		pollReports: []OrderReport{
			report(104, StatusPartial, "10", "4"),
			report(104, StatusCanceled, "10", "4"),
		},
	}
	c, _ := newTestCoordinator(ex, CoordinatorConfig{})

	st, err := c.Execute(context.Background(), OrderInstruction{Symbol: "BTCUSDT", Side: SideBuy, Quantity: dec("10")})
	require.NoError(t, err)
	require.Equal(t, PhaseLiquidated, st.Phase)
	require.True(t, st.Abandoned.Equal(dec("6")))
	require.Len(t, ex.sells(), 1)
}

func TestExecuteBuySubmitErrorPropagates(t *testing.T) {
	ex := &scriptedExchange{buyErr: errors.New("connection reset")}
	c, _ := newTestCoordinator(ex, CoordinatorConfig{})

	_, err := c.Execute(context.Background(), OrderInstruction{Symbol: "BTCUSDT", Side: SideBuy})
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection reset")
}

func TestExecuteQueryErrorPropagates(t *testing.T) {
	ex := &scriptedExchange{
		buyReport: report(105, StatusNew, "5", "0"),
		pollErr:   fmt.Errorf("503 from exchange"),
	}
	c, _ := newTestCoordinator(ex, CoordinatorConfig{})

	st, err := c.Execute(context.Background(), OrderInstruction{Symbol: "BTCUSDT", Side: SideBuy})
	require.Error(t, err)
	require.Contains(t, err.Error(), "query order")
	require.Equal(t, PhaseAwaitingFill, st.Phase)
}

func TestExecuteSellSubmitErrorPropagates(t *testing.T) {
	ex := &scriptedExchange{
		buyReport: report(106, StatusFilled, "5", "5"),
		sellErr:   errors.New("auth failure"),
	}
	c, _ := newTestCoordinator(ex, CoordinatorConfig{})

	_, err := c.Execute(context.Background(), OrderInstruction{Symbol: "BTCUSDT", Side: SideBuy})
	require.Error(t, err)
	require.Contains(t, err.Error(), "submit sell")
}

func TestExecuteSellReportWithoutQtyFallsBackToDelta(t *testing.T) {
	// 干跑端点合成的卖单回报可能不带成交量
	ex := &scriptedExchange{
		buyReport: report(107, StatusFilled, "5", "5"),
		sellReports: []OrderReport{
			{OrderID: 9100, Symbol: "BTCUSDT", Status: StatusFilled},
		},
	}
	c, _ := newTestCoordinator(ex, CoordinatorConfig{})

	st, err := c.Execute(context.Background(), OrderInstruction{Symbol: "BTCUSDT", Side: SideBuy})
	require.NoError(t, err)
	require.Equal(t, PhaseLiquidated, st.Phase)
	require.True(t, st.Sold.Equal(dec("5")))
}

func TestExecuteContextCancelStopsPolling(t *testing.T) {
	ex := &scriptedExchange{
		buyReport:   report(108, StatusNew, "5", "0"),
		pollReports: []OrderReport{report(108, StatusNew, "5", "0")},
	}
	c, _ := newTestCoordinator(ex, CoordinatorConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Execute(ctx, OrderInstruction{Symbol: "BTCUSDT", Side: SideBuy})
	require.ErrorIs(t, err, context.Canceled)
}
