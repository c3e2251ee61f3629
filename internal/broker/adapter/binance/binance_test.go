package binance

import (
	"strings"
	"testing"
)

func TestWsEndpointForSymbolsSingleUsesPlainStream(t *testing.T) {
	endpoint := wsEndpointForSymbols([]string{"BTCUSDT"})
	if !strings.Contains(endpoint, "/ws/btcusdt@trade") {
		t.Fatalf("expected single-stream endpoint, got %q", endpoint)
	}
}

func TestWsEndpointForSymbolsMultiUsesCombinedStream(t *testing.T) {
	endpoint := wsEndpointForSymbols([]string{"ETHUSDT", "BTCUSDT"})
	if !strings.Contains(endpoint, "/stream?streams=") {
		t.Fatalf("expected combined-stream endpoint, got %q", endpoint)
	}
	if !strings.Contains(endpoint, "btcusdt@trade") || !strings.Contains(endpoint, "ethusdt@trade") {
		t.Fatalf("expected both streams present, got %q", endpoint)
	}
}

func TestParseTradeToBarHandlesCombinedEnvelope(t *testing.T) {
	payload := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","E":1700000000000,"s":"BTCUSDT","t":1,"p":"50000.10","q":"0.25","T":1700000000000}}`)
	bar, ok := parseTradeToBar(payload, "I2601")
	if !ok {
		t.Fatalf("expected combined envelope to parse")
	}
	if bar.Symbol != "BTCUSDT" || bar.Venue != "BINANCE" {
		t.Fatalf("unexpected bar identity: %+v", bar)
	}
	if bar.Close != 50000.10 {
		t.Fatalf("expected close 50000.10, got %v", bar.Close)
	}
}

func TestParseTradeToBarHandlesBareEvent(t *testing.T) {
	payload := []byte(`{"s":"ETHUSDT","p":"3000.5","q":"1.0","T":1700000000000}`)
	bar, ok := parseTradeToBar(payload, "")
	if !ok {
		t.Fatalf("expected bare trade event to parse")
	}
	if bar.Symbol != "ETHUSDT" {
		t.Fatalf("expected symbol ETHUSDT, got %q", bar.Symbol)
	}
}

func TestParseTradeToBarRejectsMalformedPrice(t *testing.T) {
	payload := []byte(`{"s":"ETHUSDT","p":"not-a-number","q":"1.0","T":1}`)
	if _, ok := parseTradeToBar(payload, ""); ok {
		t.Fatalf("expected malformed price to fail parsing")
	}
}
