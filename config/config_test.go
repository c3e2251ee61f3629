package config

import (
	"os"
	"testing"

	"github.com/ligl/struxis/internal/marketdata/ingress"
)

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	clearEnv(t)
	c := Load()

	if c.Mode != "ctp" {
		t.Fatalf("expected default mode ctp, got %q", c.Mode)
	}
	if c.MarketOverload != ingress.DropOldest {
		t.Fatalf("expected default overload policy drop_oldest")
	}
	if c.RedisEnabled() {
		t.Fatalf("expected redis disabled when REDIS_ADDR unset")
	}
}

func TestParseTFsSkipsInvalidEntries(t *testing.T) {
	c := &Config{EnabledTFs: "60,bogus,300,-5"}
	tfs := c.ParseTFs()
	if len(tfs) != 2 || tfs[0] != 60 || tfs[1] != 300 {
		t.Fatalf("expected [60 300], got %v", tfs)
	}
}

func TestParseSymbolsTrimsAndDropsEmpty(t *testing.T) {
	c := &Config{Symbols: " BTCUSDT ,, ETHUSDT"}
	symbols := c.ParseSymbols()
	if len(symbols) != 2 || symbols[0] != "BTCUSDT" || symbols[1] != "ETHUSDT" {
		t.Fatalf("expected [BTCUSDT ETHUSDT], got %v", symbols)
	}
}

func TestMarketOverloadParsesDropNewest(t *testing.T) {
	os.Setenv("MARKET_OVERLOAD", "drop_newest")
	defer os.Unsetenv("MARKET_OVERLOAD")

	c := Load()
	if c.MarketOverload != ingress.DropNewest {
		t.Fatalf("expected drop_newest, got %v", c.MarketOverload)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MODE", "SYMBOLS", "MARKET_CHANNEL_CAPACITY", "MARKET_INGRESS_CAPACITY",
		"MARKET_OVERLOAD", "ENABLED_TFS", "METRICS_ADDR", "LOG_LEVEL",
		"SD_CONFIG_PATH", "BAR_LOG_PATH", "SQLITE_PATH", "REDIS_ADDR", "REDIS_PASSWORD",
	} {
		os.Unsetenv(key)
	}
}
