package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatcherDeliversReload(t *testing.T) {
	path := writeTempConfig(t, validConfig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates := make(chan AppConfig, 1)
	w := Watcher{Path: path, Cooldown: time.Millisecond}
	go func() {
		_ = w.Start(ctx, func(cfg AppConfig) {
			select {
			case updates <- cfg:
			default:
			}
		})
	}()

	// give the watcher a moment to register before rewriting
	time.Sleep(100 * time.Millisecond)
	changed := []byte(`
env: dev
gateway:
  apiKey: foo
  apiSecret: bar
oracle:
  apiKey: baz
trades:
  - coin: ETH
    startTime: 2026-09-02T12:00:00Z
`)
	if err := os.WriteFile(path, changed, 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-updates:
		if len(cfg.Trades) != 1 || cfg.Trades[0].Coin != "ETH" {
			t.Fatalf("unexpected reloaded trades: %+v", cfg.Trades)
		}
	case <-ctx.Done():
		t.Fatalf("no reload delivered before timeout")
	}
}

func TestWatcherDropsInvalidReload(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")
	t.Setenv("CMC_API_KEY", "")
	path := writeTempConfig(t, validConfig)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	updates := make(chan AppConfig, 1)
	w := Watcher{Path: path, Cooldown: time.Millisecond}
	go func() {
		_ = w.Start(ctx, func(cfg AppConfig) {
			select {
			case updates <- cfg:
			default:
			}
		})
	}()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("env: dev\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-updates:
		t.Fatalf("invalid config must not be delivered: %+v", cfg)
	case <-ctx.Done():
		// expected: validation failure is dropped
	}
}
