// Package config loads the process's environment knobs: one per concern,
// per the CLI entry contract.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/ligl/struxis/internal/marketdata/ingress"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Adapter selection
	Mode    string // "ctp" | "binance"
	Symbols string // comma-separated

	// Market fan-out core (C1/C2)
	MarketChannelCapacity int
	MarketIngressCapacity int
	MarketOverload        ingress.OverloadPolicy

	// Receiver resampling
	EnabledTFs string // comma-separated seconds, e.g. "60,300,900"

	// Ambient
	MetricsAddr  string
	LogLevel     string
	SDConfigPath string
	BarLogPath   string

	// Persistence
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Mode:    getEnv("MODE", "ctp"),
		Symbols: getEnv("SYMBOLS", "BTCUSDT"),

		MarketChannelCapacity: getEnvInt("MARKET_CHANNEL_CAPACITY", 8192),
		MarketIngressCapacity: getEnvInt("MARKET_INGRESS_CAPACITY", 16384),
		MarketOverload:        parseOverload(getEnv("MARKET_OVERLOAD", "drop_oldest")),

		EnabledTFs: getEnv("ENABLED_TFS", "60,300,900"),

		MetricsAddr:  getEnv("METRICS_ADDR", ":9090"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		SDConfigPath: getEnv("SD_CONFIG_PATH", ""),
		BarLogPath:   getEnv("BAR_LOG_PATH", "data/bars.log"),

		SQLitePath:    getEnv("SQLITE_PATH", "data/candles.db"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
	}
}

// ParseTFs parses the EnabledTFs string into a slice of timeframe durations
// in seconds, skipping and logging any invalid entries.
func (c *Config) ParseTFs() []int {
	return parseIntList(c.EnabledTFs)
}

// ParseSymbols splits Symbols into a trimmed, non-empty slice.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			symbols = append(symbols, p)
		}
	}
	return symbols
}

// RedisEnabled reports whether a Redis sink should be started. Its absence
// disables the sink without failing startup.
func (c *Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func parseIntList(raw string) []int {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid TF value: %q", p)
			continue
		}
		out = append(out, n)
	}
	return out
}

func parseOverload(raw string) ingress.OverloadPolicy {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "drop_newest":
		return ingress.DropNewest
	case "drop_oldest", "":
		return ingress.DropOldest
	default:
		log.Printf("[config] unrecognized MARKET_OVERLOAD %q, defaulting to drop_oldest", raw)
		return ingress.DropOldest
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}
