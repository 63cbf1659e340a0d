package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"listing-sniper-go/trade"
)

// timeNowMillis 可在测试中替换以获得确定性签名。
var timeNowMillis = func() int64 { return time.Now().UnixMilli() }

// BinanceRESTClient 币安现货REST客户端。默认不发起真实网络调用，
// HTTPClient 可注入 httptest。TestOrders 打开时写入 /order/test
// 干跑端点，不产生真实成交。
type BinanceRESTClient struct {
	BaseURL      string
	APIKey       string
	Secret       string
	HTTPClient   *http.Client
	RecvWindowMs int64
	Limiter      RateLimiter
	TestOrders   bool
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// orderResp 下单/查单响应（现货 /api/v3/order）。
type orderResp struct {
	Symbol      string `json:"symbol"`
	OrderID     int64  `json:"orderId"`
	Status      string `json:"status"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
}

// Ping 调用 /api/v3/ping 检查连通性。
func (c *BinanceRESTClient) Ping(ctx context.Context) error {
	return c.public(ctx, "/api/v3/ping", nil)
}

// ServerTime 调用 /api/v3/time 返回交易所服务器时间。
func (c *BinanceRESTClient) ServerTime(ctx context.Context) (time.Time, error) {
	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.public(ctx, "/api/v3/time", &out); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(out.ServerTime), nil
}

// Balance 查询现货账户某资产的可用余额。资产缺失或非正时返回
// trade.ErrNoBalance。
func (c *BinanceRESTClient) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	var out struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := c.signed(ctx, http.MethodGet, "/api/v3/account", map[string]string{}, &out); err != nil {
		return decimal.Zero, err
	}
	for _, b := range out.Balances {
		if b.Asset != asset {
			continue
		}
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse %s free balance %q: %w", asset, b.Free, err)
		}
		if free.Sign() <= 0 {
			return decimal.Zero, fmt.Errorf("%w: %s free is %s", trade.ErrNoBalance, asset, free)
		}
		return free, nil
	}
	return decimal.Zero, fmt.Errorf("%w: asset %s not in account", trade.ErrNoBalance, asset)
}

// SubmitOrder 调用 /api/v3/order 下单；TestOrders 打开时改走
// /api/v3/order/test（同样校验签名与过滤器，但不撮合），并合成一份
// FILLED 回报让清算链路照常运转。
func (c *BinanceRESTClient) SubmitOrder(ctx context.Context, inst trade.OrderInstruction) (trade.OrderReport, error) {
	params := map[string]string{
		"symbol":   inst.Symbol,
		"side":     string(inst.Side),
		"type":     string(inst.Type),
		"quantity": inst.Quantity.String(),
	}
	if inst.Type == trade.TypeLimit {
		params["timeInForce"] = "GTC"
		params["price"] = inst.Price.String()
	}
	if inst.RespType != "" {
		params["newOrderRespType"] = inst.RespType
	}

	path := "/api/v3/order"
	if c.TestOrders {
		path = "/api/v3/order/test"
	}
	var out orderResp
	if err := c.signed(ctx, http.MethodPost, path, params, &out); err != nil {
		return trade.OrderReport{}, err
	}
	if c.TestOrders {
		// 干跑端点返回空对象
		return trade.OrderReport{
			OrderID:     timeNowMillis(),
			Symbol:      inst.Symbol,
			Status:      trade.StatusFilled,
			OrigQty:     inst.Quantity,
			ExecutedQty: inst.Quantity,
		}, nil
	}
	return parseReport(out)
}

// QueryOrder 调用 /api/v3/order 查询订单当前状态。
func (c *BinanceRESTClient) QueryOrder(ctx context.Context, symbol string, orderID int64) (trade.OrderReport, error) {
	params := map[string]string{
		"symbol":  symbol,
		"orderId": strconv.FormatInt(orderID, 10),
	}
	var out orderResp
	if err := c.signed(ctx, http.MethodGet, "/api/v3/order", params, &out); err != nil {
		return trade.OrderReport{}, err
	}
	return parseReport(out)
}

func parseReport(r orderResp) (trade.OrderReport, error) {
	orig, err := parseQty(r.OrigQty)
	if err != nil {
		return trade.OrderReport{}, fmt.Errorf("parse origQty %q: %w", r.OrigQty, err)
	}
	executed, err := parseQty(r.ExecutedQty)
	if err != nil {
		return trade.OrderReport{}, fmt.Errorf("parse executedQty %q: %w", r.ExecutedQty, err)
	}
	return trade.OrderReport{
		OrderID:     r.OrderID,
		Symbol:      r.Symbol,
		Status:      trade.Status(r.Status),
		OrigQty:     orig,
		ExecutedQty: executed,
	}, nil
}

func parseQty(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// public 发起无签名GET请求。
func (c *BinanceRESTClient) public(ctx context.Context, path string, out interface{}) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// signed 组装参数、签名并发起请求。每次调用只尝试一次，不做内部重试。
func (c *BinanceRESTClient) signed(ctx context.Context, method, path string, params map[string]string, out interface{}) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
	params["timestamp"] = strconv.FormatInt(timeNowMillis(), 10)
	if c.RecvWindowMs > 0 {
		params["recvWindow"] = strconv.FormatInt(c.RecvWindowMs, 10)
	}
	query, sig := SignParams(params, c.Secret)
	endpoint := c.BaseURL + path + "?" + query + "&signature=" + url.QueryEscape(sig)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", c.APIKey)
	return c.do(req, out)
}

func (c *BinanceRESTClient) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s status %d: %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
