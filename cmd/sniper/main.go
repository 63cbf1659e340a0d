package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"listing-sniper-go/config"
	"listing-sniper-go/gateway"
	"listing-sniper-go/infrastructure/logger"
	"listing-sniper-go/metrics"
	"listing-sniper-go/oracle"
	"listing-sniper-go/trade"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zlog.Close()

	collector := metrics.NewCollector()
	metrics.StartMetricsServer(cfg.MetricsAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	restClient := &gateway.BinanceRESTClient{
		BaseURL:      cfg.Gateway.BaseURL,
		APIKey:       cfg.Gateway.APIKey,
		Secret:       cfg.Gateway.APISecret,
		HTTPClient:   gateway.NewDefaultHTTPClient(),
		RecvWindowMs: cfg.Gateway.RecvWindowMs,
		Limiter:      gateway.NewTokenBucketLimiter(cfg.Gateway.RestRate, cfg.Gateway.RestBurst),
		TestOrders:   cfg.Gateway.TestOrders,
	}

	// 连通性预检：交易所不可达直接退出
	if err := restClient.Ping(ctx); err != nil {
		zlog.Fatal("exchange unreachable", zap.Error(err))
	}
	if serverTime, err := restClient.ServerTime(ctx); err != nil {
		zlog.Fatal("exchange time check failed", zap.Error(err))
	} else {
		zlog.Info("exchange reachable",
			zap.Duration("clockDrift", time.Since(serverTime)),
		)
	}

	priceOracle := &oracle.Client{
		BaseURL:    cfg.Oracle.BaseURL,
		APIKey:     cfg.Oracle.APIKey,
		HTTPClient: oracle.NewDefaultHTTPClient(),
	}
	if err := priceOracle.Init(ctx); err != nil {
		zlog.Fatal("oracle init failed", zap.Error(err))
	}

	qtyStep, err := decimal.NewFromString(cfg.Execution.QtyStep)
	if err != nil {
		zlog.Fatal("invalid qtyStep", zap.Error(err))
	}
	planner := trade.Planner{
		QuoteAsset:     cfg.Execution.QuoteAsset,
		CapitalReserve: decimal.NewFromFloat(cfg.Execution.CapitalReservePct / 100),
		SpreadMarkup:   decimal.NewFromFloat(cfg.Execution.SpreadMarkupPct / 100),
		Precision:      cfg.Execution.Precision,
	}
	coord := trade.NewCoordinator(restClient, zlog.Named("coordinator"), collector, trade.CoordinatorConfig{
		PollInterval: time.Duration(cfg.Execution.PollIntervalMs) * time.Millisecond,
		Timeout:      time.Duration(cfg.Execution.TimeoutSeconds) * time.Second,
		QtyStep:      qtyStep,
	})
	sched := &trade.Scheduler{
		Planner: planner,
		Oracle:  priceOracle,
		Account: restClient,
		Coord:   coord,
		Log:     zlog.Named("scheduler"),
	}

	// 等待窗口内允许热更新交易计划；一旦临近开盘就不再接受变更。
	updates := make(chan config.AppConfig, 1)
	go func() {
		w := config.Watcher{Path: *cfgPath}
		_ = w.Start(ctx, func(newCfg config.AppConfig) {
			select {
			case updates <- newCfg:
			default:
			}
		})
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	trades := toTrades(cfg.Trades)
	results := runSchedule(ctx, zlog, sched, trades, updates)

	failed := 0
	for _, res := range results {
		fields := []zap.Field{
			zap.String("coin", res.Trade.Coin),
			zap.Duration("duration", res.Duration),
		}
		for _, ir := range res.Instructions {
			fields = append(fields,
				zap.String("phase", ir.State.Phase.String()),
				zap.String("sold", ir.State.Sold.String()),
				zap.String("unsold", ir.State.Remaining().String()),
			)
		}
		if res.Failed() {
			failed++
			if res.Err != nil {
				fields = append(fields, zap.Error(res.Err))
			}
			zlog.Error("trade failed", fields...)
		} else {
			zlog.Info("trade completed", fields...)
		}
	}
	if failed > 0 {
		zlog.Sync()
		os.Exit(1)
	}
}

// runSchedule 执行全部计划交易；在最早开盘时间之前收到配置变更则
// 取消等待中的计划并以新计划重启。
func runSchedule(ctx context.Context, zlog *logger.Logger, sched *trade.Scheduler, trades []trade.ScheduledTrade, updates <-chan config.AppConfig) []trade.TradeResult {
	for {
		earliest := earliestStart(trades)
		runCtx, cancelRun := context.WithCancel(ctx)
		done := make(chan []trade.TradeResult, 1)
		go func() { done <- sched.RunAll(runCtx, trades) }()

		restarted := false
		for !restarted {
			select {
			case results := <-done:
				cancelRun()
				return results
			case newCfg := <-updates:
				// 留一秒余量，避免取消已经开始提交的交易
				if !time.Now().Add(time.Second).Before(earliest) {
					zlog.Warn("schedule change ignored, trading underway")
					continue
				}
				cancelRun()
				<-done
				trades = toTrades(newCfg.Trades)
				zlog.Info("schedule reloaded", zap.Int("trades", len(trades)))
				restarted = true
			case <-ctx.Done():
				cancelRun()
				return <-done
			}
		}
	}
}

func toTrades(entries []config.TradeConfig) []trade.ScheduledTrade {
	trades := make([]trade.ScheduledTrade, 0, len(entries))
	for _, e := range entries {
		trades = append(trades, trade.ScheduledTrade{Coin: e.Coin, StartTime: e.StartTime})
	}
	return trades
}

func earliestStart(trades []trade.ScheduledTrade) time.Time {
	earliest := time.Time{}
	for _, t := range trades {
		if earliest.IsZero() || t.StartTime.Before(earliest) {
			earliest = t.StartTime
		}
	}
	return earliest
}
