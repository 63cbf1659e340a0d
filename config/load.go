package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"listing-sniper-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string          `yaml:"env"`
	MetricsAddr string          `yaml:"metricsAddr"`
	Log         logger.Config   `yaml:"log"`
	Gateway     GatewayConfig   `yaml:"gateway"`
	Oracle      OracleConfig    `yaml:"oracle"`
	Execution   ExecutionConfig `yaml:"execution"`
	Trades      []TradeConfig   `yaml:"trades"`
}

type GatewayConfig struct {
	APIKey       string  `yaml:"apiKey"`
	APISecret    string  `yaml:"apiSecret"`
	BaseURL      string  `yaml:"baseURL"`
	RestRate     float64 `yaml:"restRate"`     // REST 限流：每秒令牌数
	RestBurst    int     `yaml:"restBurst"`    // REST 限流：最大突发令牌数
	RecvWindowMs int64   `yaml:"recvWindowMs"` // 签名请求的 recvWindow
	TestOrders   bool    `yaml:"testOrders"`   // 走 /order/test 干跑端点
}

type OracleConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
}

// ExecutionConfig tunes the reconciliation loop. Zero values fall back
// to the coordinator defaults (1s poll, 60s timeout, 0.01 step).
type ExecutionConfig struct {
	QuoteAsset        string  `yaml:"quoteAsset"`
	PollIntervalMs    int     `yaml:"pollIntervalMs"`
	TimeoutSeconds    int     `yaml:"timeoutSeconds"`
	QtyStep           string  `yaml:"qtyStep"`           // 最小数量步进，用作清算退出容差
	CapitalReservePct float64 `yaml:"capitalReservePct"` // 手续费预留比例
	SpreadMarkupPct   float64 `yaml:"spreadMarkupPct"`   // 限价相对参考价的上浮比例
	Precision         int32   `yaml:"precision"`
}

// TradeConfig is one schedule entry.
type TradeConfig struct {
	Coin      string    `yaml:"coin"`
	StartTime time.Time `yaml:"startTime"`
}

// Load reads YAML config from path, applies defaults and validates.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides secrets from env
// vars if present. The three secrets may be supplied entirely via env.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.Gateway.APISecret = v
	}
	if v := os.Getenv("CMC_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	applyDefaults(&cfg)
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "https://api.binance.com"
	}
	if cfg.Gateway.RestRate <= 0 {
		cfg.Gateway.RestRate = 5
	}
	if cfg.Gateway.RestBurst <= 0 {
		cfg.Gateway.RestBurst = 10
	}
	if cfg.Gateway.RecvWindowMs <= 0 {
		cfg.Gateway.RecvWindowMs = 5000
	}
	if cfg.Oracle.BaseURL == "" {
		cfg.Oracle.BaseURL = "https://pro-api.coinmarketcap.com"
	}
	if cfg.Execution.QuoteAsset == "" {
		cfg.Execution.QuoteAsset = "USDT"
	}
	if cfg.Execution.PollIntervalMs <= 0 {
		cfg.Execution.PollIntervalMs = 1000
	}
	if cfg.Execution.TimeoutSeconds <= 0 {
		cfg.Execution.TimeoutSeconds = 60
	}
	if cfg.Execution.QtyStep == "" {
		cfg.Execution.QtyStep = "0.01"
	}
	if cfg.Execution.CapitalReservePct <= 0 {
		cfg.Execution.CapitalReservePct = 1.0
	}
	if cfg.Execution.SpreadMarkupPct <= 0 {
		cfg.Execution.SpreadMarkupPct = 1.0
	}
	if cfg.Execution.Precision <= 0 {
		cfg.Execution.Precision = 2
	}
	if cfg.Log.Level == "" {
		cfg.Log = logger.DefaultConfig()
	}
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Gateway.APIKey == "" || cfg.Gateway.APISecret == "" {
		return errors.New("gateway.apiKey/apiSecret is required (or BINANCE_API_KEY/BINANCE_API_SECRET)")
	}
	if cfg.Oracle.APIKey == "" {
		return errors.New("oracle.apiKey is required (or CMC_API_KEY)")
	}
	if len(cfg.Trades) == 0 {
		return errors.New("trades config is required")
	}
	for i, t := range cfg.Trades {
		if t.Coin == "" {
			return fmt.Errorf("trades[%d].coin is required", i)
		}
		if t.StartTime.IsZero() {
			return fmt.Errorf("trades[%d].startTime is required", i)
		}
	}
	if cfg.Execution.CapitalReservePct >= 100 {
		return errors.New("execution.capitalReservePct must be < 100")
	}
	if step, err := decimal.NewFromString(cfg.Execution.QtyStep); err != nil || step.Sign() <= 0 {
		return fmt.Errorf("execution.qtyStep %q must be a positive decimal", cfg.Execution.QtyStep)
	}
	return nil
}
