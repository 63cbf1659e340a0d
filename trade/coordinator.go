package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"listing-sniper-go/infrastructure/logger"
	"listing-sniper-go/metrics"
)

// Exchange 协调器需要的交易所窄接口（下单/查单）。
type Exchange interface {
	SubmitOrder(ctx context.Context, inst OrderInstruction) (OrderReport, error)
	QueryOrder(ctx context.Context, symbol string, orderID int64) (OrderReport, error)
}

// CoordinatorConfig 协调器配置
type CoordinatorConfig struct {
	PollInterval time.Duration   // 轮询间隔
	Timeout      time.Duration   // 清算墙钟超时
	QtyStep      decimal.Decimal // 交易所最小数量步进
}

// Coordinator 驱动单个买单走到终态：提交、按回报分类，必要时按
// 固定间隔轮询并对每次观察到的成交增量提交 MARKET SELL，直到全部
// 清算或超时。状态转换本身是纯函数（见 machine.go），这里只负责
// I/O、睡眠和超时判定。
type Coordinator struct {
	exchange Exchange
	log      *logger.Logger
	metrics  *metrics.Collector
	cfg      CoordinatorConfig

	clock Clock
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCoordinator 创建协调器；零值配置回落到默认（1s 轮询、60s 超时、
// 0.01 步进）。
func NewCoordinator(ex Exchange, log *logger.Logger, m *metrics.Collector, cfg CoordinatorConfig) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.QtyStep.Sign() <= 0 {
		cfg.QtyStep = decimal.New(1, -2)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Coordinator{
		exchange: ex,
		log:      log,
		metrics:  m,
		cfg:      cfg,
		clock:    SystemClock,
		sleep:    sleepCtx,
	}
}

// Execute 提交买单并清算其全部成交数量。返回的 State 总是携带最终
// 进度（包括失败时已卖出/未卖出的数量）。每个网络调用只尝试一次；
// 唯一的重复行为是 AwaitingFill 下的固定间隔轮询。
func (c *Coordinator) Execute(ctx context.Context, inst OrderInstruction) (State, error) {
	rep, err := c.exchange.SubmitOrder(ctx, inst)
	if err != nil {
		c.metrics.RESTError("submit")
		return State{Symbol: inst.Symbol}, fmt.Errorf("submit buy %s: %w", inst.Symbol, err)
	}
	c.metrics.OrderPlaced()
	c.log.Info("buy submitted",
		zap.String("symbol", rep.Symbol),
		zap.Int64("orderId", rep.OrderID),
		zap.String("status", string(rep.Status)),
		zap.String("origQty", rep.OrigQty.String()),
		zap.String("executedQty", rep.ExecutedQty.String()),
	)

	st := Start(rep, c.cfg.QtyStep)
	st, err = c.apply(ctx, st, rep)
	if err != nil {
		return st, err
	}
	if st.Phase == PhaseRejected {
		c.metrics.Outcome("rejected")
		return st, fmt.Errorf("%w: order %d status %s", ErrOrderRejected, rep.OrderID, rep.Status)
	}
	if st.Phase == PhaseLiquidated {
		return c.finish(st), nil
	}

	// 超时以进入 AwaitingFill 的墙钟时间为基准；慢网络同样消耗预算。
	deadline := c.clock.Now().Add(c.cfg.Timeout)
	for {
		if !c.clock.Now().Before(deadline) {
			st = Timeout(st)
			c.metrics.Outcome("timeout")
			c.metrics.SetUnsold(st.Remaining().InexactFloat64())
			return st, &LiquidationTimeoutError{Symbol: st.Symbol, OrderID: st.OrderID, Unsold: st.Remaining()}
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return st, err
		}

		rep, err = c.exchange.QueryOrder(ctx, st.Symbol, st.OrderID)
		if err != nil {
			c.metrics.RESTError("query")
			return st, fmt.Errorf("query order %d: %w", st.OrderID, err)
		}
		c.metrics.Poll()

		st, err = c.apply(ctx, st, rep)
		if err != nil {
			return st, err
		}
		if st.Phase == PhaseLiquidated {
			return c.finish(st), nil
		}
	}
}

// apply 执行一次纯转换并落实其副作用（卖单提交）。
func (c *Coordinator) apply(ctx context.Context, st State, rep OrderReport) (State, error) {
	next, act := Advance(st, rep)
	if act.Kind != ActionSell {
		return next, nil
	}

	sellRep, err := c.exchange.SubmitOrder(ctx, OrderInstruction{
		Symbol:   next.Symbol,
		Side:     SideSell,
		Type:     TypeMarket,
		Quantity: act.SellQty,
		RespType: "RESULT",
	})
	if err != nil {
		c.metrics.RESTError("submit")
		return next, fmt.Errorf("submit sell %s %s: %w", act.SellQty, next.Symbol, err)
	}
	executed := sellRep.ExecutedQty
	if executed.Sign() <= 0 {
		// RESULT 回报缺少成交量时按申报增量计，保持进度单调。
		executed = act.SellQty
	}
	c.metrics.SellLeg()
	c.log.Info("sell leg submitted",
		zap.String("symbol", next.Symbol),
		zap.Int64("buyOrderId", next.OrderID),
		zap.String("requestedQty", act.SellQty.String()),
		zap.String("executedQty", executed.String()),
	)
	return RecordSale(next, executed), nil
}

func (c *Coordinator) finish(st State) State {
	c.metrics.Outcome("liquidated")
	c.metrics.SetUnsold(0)
	fields := []zap.Field{
		zap.String("symbol", st.Symbol),
		zap.Int64("orderId", st.OrderID),
		zap.String("sold", st.Sold.String()),
	}
	if st.Abandoned.Sign() > 0 {
		// 交易所撤单留下的未成交残量，放弃并上报，不再重试。
		fields = append(fields, zap.String("abandonedQty", st.Abandoned.String()))
	}
	c.log.Info("position liquidated", fields...)
	return st
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
