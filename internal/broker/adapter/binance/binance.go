// Package binance dials Binance's combined-stream public websocket feed and
// adapts raw trade prints into SBars. Connection handling (dial, read loop;
// a read error ends the reader, and reconnecting is left to the resilient
// wrapper) follows the shape of the teacher's
// pkg/smartconnect/websocket.go (gorilla/websocket dial + background read
// goroutine feeding a channel); the trade-to-bar mapping and strict/lenient
// quiet-period fallback are grounded on
// original_source/broker/src/adapters/crypto/binance.rs.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/structerr"
)

const strictEnvVar = "STRUXIS_BINANCE_STRICT"
const endpointOverrideEnvVar = "STRUXIS_BINANCE_WS"

// Adapter dials Binance's public trade stream for one or more symbols.
type Adapter struct {
	mu            sync.Mutex
	symbol        string
	subscriptions map[string]struct{}
	connected     bool

	nextDatetime time.Time
	price        float64

	queue         chan model.SBar
	wsRunning     atomic.Bool
	wsEpoch       atomic.Uint64
	lastMessageMs atomic.Int64

	dialer *websocket.Dialer
}

// New creates an adapter that will track symbol once connected.
func New(symbol string, startPrice float64) *Adapter {
	a := &Adapter{
		symbol:        symbol,
		subscriptions: make(map[string]struct{}),
		nextDatetime:  time.Now().UTC(),
		price:         startPrice,
		queue:         make(chan model.SBar, 4096),
		dialer:        websocket.DefaultDialer,
	}
	a.lastMessageMs.Store(nowMillis())
	return a
}

func (a *Adapter) Venue() string { return "BINANCE" }

func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if len(a.subscriptions) == 0 {
		a.subscriptions[a.symbol] = struct{}{}
	}
	a.connected = true
	a.mu.Unlock()

	a.lastMessageMs.Store(nowMillis())
	a.restartReader()
	return nil
}

func (a *Adapter) SubscribeSymbol(ctx context.Context, symbol string) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return structerr.ErrNotConnected
	}
	_, already := a.subscriptions[symbol]
	a.subscriptions[symbol] = struct{}{}
	a.mu.Unlock()

	if !already {
		a.restartReader()
	}
	return nil
}

func (a *Adapter) Heartbeat(ctx context.Context) error {
	a.mu.Lock()
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return structerr.ErrNotConnected
	}

	last := a.lastMessageMs.Load()
	if nowMillis()-last > 15000 {
		a.mu.Lock()
		a.connected = false
		a.mu.Unlock()
		return &structerr.AdapterError{Venue: "BINANCE", Message: "heartbeat timeout waiting for market data"}
	}
	return nil
}

func (a *Adapter) PollBar(ctx context.Context) (*model.SBar, error) {
	a.mu.Lock()
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return nil, structerr.ErrNotConnected
	}

	select {
	case bar := <-a.queue:
		return &bar, nil
	default:
	}

	strict := strictMode()
	if a.wsRunning.Load() {
		last := a.lastMessageMs.Load()
		if !strict && nowMillis()-last >= 300 {
			bar := a.syntheticBar()
			return &bar, nil
		}
		return nil, nil
	}

	if strict {
		a.mu.Lock()
		a.connected = false
		a.mu.Unlock()
		return nil, &structerr.AdapterError{Venue: "BINANCE", Message: "websocket stream unavailable in strict mode"}
	}

	bar := a.syntheticBar()
	return &bar, nil
}

func (a *Adapter) syntheticBar() model.SBar {
	a.mu.Lock()
	defer a.mu.Unlock()

	open := a.price
	close := open + 0.1
	high := close + 0.2
	low := open - 0.2
	volume := 800.0

	a.price = close
	dt := a.nextDatetime
	a.nextDatetime = a.nextDatetime.Add(time.Second)

	return model.SBar{
		Symbol: a.symbol, Venue: "BINANCE", Timeframe: model.TFM1, Datetime: dt,
		Open: open, High: high, Low: low, Close: close,
		Volume: volume, OpenInterest: 0, Turnover: close * volume,
	}
}

func (a *Adapter) restartReader() {
	a.mu.Lock()
	symbols := make([]string, 0, len(a.subscriptions))
	for s := range a.subscriptions {
		symbols = append(symbols, s)
	}
	a.mu.Unlock()
	if len(symbols) == 0 {
		symbols = []string{a.symbol}
	}

	endpoint := wsEndpointForSymbols(symbols)
	epoch := a.wsEpoch.Add(1)
	a.wsRunning.Store(true)

	go a.runReader(endpoint, epoch)
}

func (a *Adapter) runReader(endpoint string, epoch uint64) {
	conn, _, err := a.dialer.Dial(endpoint, nil)
	if err != nil {
		a.wsRunning.Store(false)
		return
	}
	defer conn.Close()

	for {
		if a.wsEpoch.Load() != epoch {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if bar, ok := parseTradeToBar([]byte(message), a.symbol); ok {
			select {
			case a.queue <- bar:
			default:
			}
			a.lastMessageMs.Store(nowMillis())
		}
	}

	if a.wsEpoch.Load() == epoch {
		a.wsRunning.Store(false)
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func strictMode() bool {
	return os.Getenv(strictEnvVar) == "1"
}

func wsEndpointForSymbols(symbols []string) string {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@trade")
	}
	sort.Strings(streams)
	streams = dedup(streams)

	if raw := os.Getenv(endpointOverrideEnvVar); raw != "" {
		if strings.Contains(raw, "{stream}") && len(streams) == 1 {
			return strings.ReplaceAll(raw, "{stream}", streams[0])
		}
		if strings.Contains(raw, "{streams}") {
			return strings.ReplaceAll(raw, "{streams}", strings.Join(streams, "/"))
		}
		return raw
	}

	if len(streams) == 1 {
		return fmt.Sprintf("wss://stream.binance.com:9443/ws/%s", streams[0])
	}
	return fmt.Sprintf("wss://stream.binance.com:9443/stream?streams=%s", strings.Join(streams, "/"))
}

func dedup(sorted []string) []string {
	out := sorted[:0]
	var prev string
	for i, s := range sorted {
		if i == 0 || s != prev {
			out = append(out, s)
		}
		prev = s
	}
	return out
}

type tradeEvent struct {
	Symbol string `json:"s"`
	Price  string `json:"p"`
	Qty    string `json:"q"`
	TradeT int64  `json:"T"`
	EventT int64  `json:"E"`
}

type combinedEnvelope struct {
	Data *tradeEvent `json:"data"`
}

func parseTradeToBar(raw []byte, fallbackSymbol string) (model.SBar, bool) {
	var env combinedEnvelope
	event := &tradeEvent{}
	if err := json.Unmarshal(raw, &env); err == nil && env.Data != nil {
		event = env.Data
	} else if err := json.Unmarshal(raw, event); err != nil {
		return model.SBar{}, false
	}

	price, err := strconv.ParseFloat(event.Price, 64)
	if err != nil {
		return model.SBar{}, false
	}
	qty, _ := strconv.ParseFloat(event.Qty, 64)

	ts := event.TradeT
	if ts == 0 {
		ts = event.EventT
	}
	if ts == 0 {
		return model.SBar{}, false
	}

	symbol := event.Symbol
	if symbol == "" {
		symbol = fallbackSymbol
	}

	return model.SBar{
		Symbol: symbol, Venue: "BINANCE", Timeframe: model.TFM1,
		Datetime: time.UnixMilli(ts).UTC(),
		Open:     price, High: price, Low: price, Close: price,
		Volume: qty, OpenInterest: 0, Turnover: price * qty,
	}, true
}
