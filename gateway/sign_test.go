package gateway

import "testing"

func TestSignParams(t *testing.T) {
	query, sig := SignParams(map[string]string{
		"symbol": "BTCUSDT",
		"side":   "BUY",
	}, "topsecret")
	if query != "side=BUY&symbol=BTCUSDT" {
		t.Fatalf("unexpected query %q", query)
	}
	if sig != "62d98fd03142e04dbb2c37daf271e2f3c1e56b9ee11b6ef06169c89808c6bf62" {
		t.Fatalf("unexpected signature %q", sig)
	}
}

func TestSignParamsEscapes(t *testing.T) {
	query, _ := SignParams(map[string]string{"a b": "c&d"}, "s")
	if query != "a+b=c%26d" {
		t.Fatalf("unexpected query %q", query)
	}
}
