package trade

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"listing-sniper-go/infrastructure/logger"
)

// Oracle resolves a coin symbol to a reference spot price.
type Oracle interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// Account reports spot balances for the quote asset.
type Account interface {
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// InstructionResult is the outcome of one instruction's coordinator run.
type InstructionResult struct {
	Instruction OrderInstruction
	State       State
	Err         error
}

// TradeResult aggregates one scheduled trade.
type TradeResult struct {
	Trade        ScheduledTrade
	Instructions []InstructionResult
	Duration     time.Duration
	Err          error // lookup/planning failure before any submission
}

// Failed reports whether anything in the trade went wrong.
func (r TradeResult) Failed() bool {
	if r.Err != nil {
		return true
	}
	for _, ir := range r.Instructions {
		if ir.Err != nil {
			return true
		}
	}
	return false
}

// Scheduler plans a trade, waits for its start time and fans the
// planned instructions out to the coordinator, one goroutine per
// instruction. Instructions share no mutable state; a failing sibling
// never cancels the others.
type Scheduler struct {
	Planner Planner
	Oracle  Oracle
	Account Account
	Coord   *Coordinator
	Log     *logger.Logger

	Clock Clock                                             // nil means system clock
	Sleep func(ctx context.Context, d time.Duration) error // nil means context-aware sleep
}

// Run executes one scheduled trade end to end. All failures are folded
// into the returned result; Run itself never panics or aborts siblings.
func (s *Scheduler) Run(ctx context.Context, t ScheduledTrade) TradeResult {
	res := TradeResult{Trade: t}
	log := s.log()

	price, err := s.Oracle.Price(ctx, t.Coin)
	if err != nil {
		res.Err = fmt.Errorf("resolve reference price for %s: %w", t.Coin, err)
		return res
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		res.Err = fmt.Errorf("%w: reference price %f", ErrInvalidInput, price)
		return res
	}
	refPrice := decimal.NewFromFloat(price)

	capital, err := s.Account.Balance(ctx, s.Planner.QuoteAsset)
	if err != nil {
		res.Err = fmt.Errorf("fetch %s balance: %w", s.Planner.QuoteAsset, err)
		return res
	}

	inst, err := s.Planner.Plan(t, refPrice, capital)
	if err != nil {
		res.Err = err
		return res
	}
	log.Info("trade planned",
		zap.String("coin", t.Coin),
		zap.String("referencePrice", refPrice.String()),
		zap.String("capital", capital.String()),
		zap.String("qty", inst.Quantity.String()),
		zap.String("limitPrice", inst.Price.String()),
		zap.Time("startTime", t.StartTime),
	)

	if delay := t.StartTime.Sub(s.now()); delay > 0 {
		log.Info("waiting for start time",
			zap.String("coin", t.Coin),
			zap.Duration("delay", delay),
		)
		if err := s.wait(ctx, delay); err != nil {
			res.Err = err
			return res
		}
	}

	started := s.now()
	instructions := []OrderInstruction{inst}
	res.Instructions = make([]InstructionResult, len(instructions))
	var wg sync.WaitGroup
	for i, in := range instructions {
		wg.Add(1)
		go func(i int, in OrderInstruction) {
			defer wg.Done()
			st, err := s.Coord.Execute(ctx, in)
			res.Instructions[i] = InstructionResult{Instruction: in, State: st, Err: err}
		}(i, in)
	}
	wg.Wait()
	res.Duration = s.now().Sub(started)

	for _, ir := range res.Instructions {
		if ir.Err != nil {
			log.Error("instruction failed",
				zap.String("symbol", ir.Instruction.Symbol),
				zap.String("phase", ir.State.Phase.String()),
				zap.String("sold", ir.State.Sold.String()),
				zap.String("unsold", ir.State.Remaining().String()),
				zap.Error(ir.Err),
			)
		}
	}
	return res
}

// RunAll runs every scheduled trade concurrently and joins the results.
func (s *Scheduler) RunAll(ctx context.Context, trades []ScheduledTrade) []TradeResult {
	results := make([]TradeResult, len(trades))
	var wg sync.WaitGroup
	for i, t := range trades {
		wg.Add(1)
		go func(i int, t ScheduledTrade) {
			defer wg.Done()
			results[i] = s.Run(ctx, t)
		}(i, t)
	}
	wg.Wait()
	return results
}

func (s *Scheduler) log() *logger.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logger.Nop()
}

func (s *Scheduler) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now()
	}
	return SystemClock.Now()
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}
