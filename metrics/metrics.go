// Package metrics provides Prometheus metrics for the sniper daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector 汇总执行链路的Prometheus指标。nil接收者安全，
// 便于在不需要指标的测试里直接传nil。
type Collector struct {
	ordersPlaced    prometheus.Counter
	sellLegs        prometheus.Counter
	polls           prometheus.Counter
	restErrors      *prometheus.CounterVec
	tradeOutcomes   *prometheus.CounterVec
	unsoldRemainder prometheus.Gauge
}

// NewCollector 注册并返回指标收集器
func NewCollector() *Collector {
	return &Collector{
		ordersPlaced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sniper_orders_placed_total",
			Help: "提交的买单数量",
		}),
		sellLegs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sniper_sell_legs_total",
			Help: "清算卖单数量",
		}),
		polls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sniper_order_polls_total",
			Help: "订单状态轮询次数",
		}),
		restErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_rest_errors_total",
			Help: "REST 调用错误数量",
		}, []string{"action"}),
		tradeOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_trade_outcomes_total",
			Help: "交易终态数量(liquidated/rejected/timeout)",
		}, []string{"result"}),
		unsoldRemainder: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sniper_unsold_remainder",
			Help: "最近一次清算结束时的未卖出数量",
		}),
	}
}

// OrderPlaced 记录一笔买单提交
func (c *Collector) OrderPlaced() {
	if c == nil {
		return
	}
	c.ordersPlaced.Inc()
}

// SellLeg 记录一笔清算卖单
func (c *Collector) SellLeg() {
	if c == nil {
		return
	}
	c.sellLegs.Inc()
}

// Poll 记录一次订单状态查询
func (c *Collector) Poll() {
	if c == nil {
		return
	}
	c.polls.Inc()
}

// RESTError 记录一次REST调用失败
func (c *Collector) RESTError(action string) {
	if c == nil {
		return
	}
	c.restErrors.WithLabelValues(action).Inc()
}

// Outcome 记录一个交易终态
func (c *Collector) Outcome(result string) {
	if c == nil {
		return
	}
	c.tradeOutcomes.WithLabelValues(result).Inc()
}

// SetUnsold 更新未卖出数量
func (c *Collector) SetUnsold(v float64) {
	if c == nil {
		return
	}
	c.unsoldRemainder.Set(v)
}

// StartMetricsServer 启动Prometheus指标服务器
func StartMetricsServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
