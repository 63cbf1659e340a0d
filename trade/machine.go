package trade

import "github.com/shopspring/decimal"

// Phase 买单清算状态机的阶段
type Phase int

const (
	PhaseSubmitted    Phase = iota // 已提交，等待首个回报
	PhaseAwaitingFill              // 等待成交，需要轮询
	PhaseLiquidated                // 已全部清算（终态，成功）
	PhaseRejected                  // 交易所拒单（终态，失败）
	PhaseTimedOut                  // 清算超时（终态，失败）
)

func (p Phase) String() string {
	switch p {
	case PhaseSubmitted:
		return "submitted"
	case PhaseAwaitingFill:
		return "awaiting_fill"
	case PhaseLiquidated:
		return "liquidated"
	case PhaseRejected:
		return "rejected"
	case PhaseTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal 判断是否是终态
func (p Phase) Terminal() bool {
	switch p {
	case PhaseLiquidated, PhaseRejected, PhaseTimedOut:
		return true
	default:
		return false
	}
}

// ActionKind 转换产生的副作用类型
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionSell            // 需提交一笔 MARKET SELL
)

// Action 告诉驱动层转换后要执行什么
type Action struct {
	Kind    ActionKind
	SellQty decimal.Decimal
}

// State 单个买单的清算进度。由唯一一次 Coordinator 调用独占，
// 不跨并发指令共享。
type State struct {
	Phase   Phase
	OrderID int64
	Symbol  string

	OrigQty   decimal.Decimal // 买单原始申报数量
	Target    decimal.Decimal // 仍需清算到的目标数量（撤单后会下调）
	Sold      decimal.Decimal // 累计已卖出数量
	Abandoned decimal.Decimal // 交易所撤单后放弃的未成交数量
	QtyStep   decimal.Decimal // 交易所最小数量步进，用作退出判断的容差
}

// Start 根据买单提交回报初始化状态
func Start(rep OrderReport, qtyStep decimal.Decimal) State {
	return State{
		Phase:   PhaseSubmitted,
		OrderID: rep.OrderID,
		Symbol:  rep.Symbol,
		OrigQty: rep.OrigQty,
		Target:  rep.OrigQty,
		QtyStep: qtyStep,
	}
}

// Remaining 返回仍待卖出的数量（不为负）
func (s State) Remaining() decimal.Decimal {
	rem := s.Target.Sub(s.Sold)
	if rem.Sign() < 0 {
		return decimal.Zero
	}
	return rem
}

// Advance 纯转换函数：给定当前状态与一份订单回报，返回新状态和
// 待执行动作。不做任何 I/O，也不读时钟；超时由驱动层判定。
// 转换只依赖累计 Sold，重复输入同一份回报不会产生重复卖单。
func Advance(s State, rep OrderReport) (State, Action) {
	if s.Phase.Terminal() {
		return s, Action{Kind: ActionNone}
	}

	if rep.Status.Dead() {
		if s.Phase == PhaseSubmitted {
			// 首个回报即被拒/被撤：没有任何成交，不需要卖出
			s.Phase = PhaseRejected
			return s, Action{Kind: ActionNone}
		}
		// 轮询途中被交易所撤单：目标下调为撤单时的已成交数量，
		// 余下未成交部分放弃并记录，不再重试
		s.Abandoned = s.OrigQty.Sub(rep.ExecutedQty)
		s.Target = rep.ExecutedQty
	}

	if s.Phase == PhaseSubmitted && rep.Status.Active() {
		// 首个回报为 NEW/PARTIALLY_FILLED：进入轮询。首报的已成交
		// 数量计入 Sold 基线，增量从下一份回报开始卖出。
		s.Phase = PhaseAwaitingFill
		s.Sold = rep.ExecutedQty
		return settle(s), Action{Kind: ActionNone}
	}

	if s.Phase == PhaseSubmitted {
		s.Phase = PhaseAwaitingFill
	}

	delta := rep.ExecutedQty.Sub(s.Sold)
	if delta.Sign() > 0 {
		return s, Action{Kind: ActionSell, SellQty: delta}
	}
	return settle(s), Action{Kind: ActionNone}
}

// RecordSale 将一笔卖单回报的实际成交数量计入累计 Sold。
// 注意计入的是卖单自身的成交量，卖单也可能只部分成交。
func RecordSale(s State, executed decimal.Decimal) State {
	s.Sold = s.Sold.Add(executed)
	return settle(s)
}

// Timeout 标记清算超时
func Timeout(s State) State {
	if !s.Phase.Terminal() {
		s.Phase = PhaseTimedOut
	}
	return s
}

// settle 检查退出条件：剩余数量为零，或小于一个最小步进
// （吸收交易所端的最小手数舍入，否则循环永远无法精确归零）。
func settle(s State) State {
	if s.Phase.Terminal() {
		return s
	}
	rem := s.Target.Sub(s.Sold)
	if rem.Sign() <= 0 || (s.QtyStep.Sign() > 0 && rem.LessThan(s.QtyStep)) {
		s.Phase = PhaseLiquidated
	}
	return s
}
