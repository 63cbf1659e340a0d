// Package oracle resolves coin symbols to reference spot prices via
// the CoinMarketCap API.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotInitialized = errors.New("oracle id map not initialized")
	ErrEmptyIDMap     = errors.New("no active coins in id map")
	ErrUnknownSymbol  = errors.New("unknown symbol")
	ErrInvalidQuote   = errors.New("invalid quote")
)

// QuoteCurrency is the fiat leg quotes are requested in.
const QuoteCurrency = "USD"

// Client CoinMarketCap 客户端。Init 构建一次 symbol→id 映射，之后
// 只读；不是全局可变缓存。
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	ids map[string]int64 // set once by Init, immutable afterwards
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

type idMapResp struct {
	Data []struct {
		ID       int64  `json:"id"`
		Symbol   string `json:"symbol"`
		IsActive int    `json:"is_active"`
	} `json:"data"`
}

type quoteResp struct {
	Data map[string]struct {
		ID     int64  `json:"id"`
		Symbol string `json:"symbol"`
		Quote  map[string]struct {
			Price float64 `json:"price"`
		} `json:"quote"`
	} `json:"data"`
}

// Init 拉取 /v1/cryptocurrency/map 构建活跃币种的 symbol→id 映射。
// 必须在首次 Price 之前调用一次；映射为空视为失败。
func (c *Client) Init(ctx context.Context) error {
	var out idMapResp
	if err := c.get(ctx, "/v1/cryptocurrency/map", nil, &out); err != nil {
		return fmt.Errorf("fetch id map: %w", err)
	}
	ids := make(map[string]int64, len(out.Data))
	for _, entry := range out.Data {
		if entry.IsActive != 0 {
			ids[strings.ToUpper(entry.Symbol)] = entry.ID
		}
	}
	if len(ids) == 0 {
		return ErrEmptyIDMap
	}
	c.ids = ids
	return nil
}

// Price 返回 symbol 的美元现价。未初始化、symbol 未知、回包缺失或
// 价格为零都按失败处理。
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	if c.ids == nil {
		return 0, ErrNotInitialized
	}
	upper := strings.ToUpper(symbol)
	id, ok := c.ids[upper]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	var out quoteResp
	params := url.Values{"id": {strconv.FormatInt(id, 10)}}
	if err := c.get(ctx, "/v1/cryptocurrency/quotes/latest", params, &out); err != nil {
		return 0, fmt.Errorf("fetch quote for %s: %w", symbol, err)
	}

	entry, ok := out.Data[strconv.FormatInt(id, 10)]
	if !ok || !strings.EqualFold(entry.Symbol, upper) {
		return 0, fmt.Errorf("%w: %s missing from quote response", ErrUnknownSymbol, symbol)
	}
	quote, ok := entry.Quote[QuoteCurrency]
	if !ok || quote.Price == 0 {
		return 0, fmt.Errorf("%w: %s has no %s price", ErrInvalidQuote, symbol, QuoteCurrency)
	}
	return quote.Price, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	endpoint := c.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s status %d: %s", path, resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
