// Package mock is a deterministic synthetic exchange adapter used for tests
// and local demos: each poll advances price by a fixed step and timestamp by
// one minute. Grounded on original_source/broker/src/adapters/mock.rs.
package mock

import (
	"context"
	"time"

	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/structerr"
)

// Adapter is a deterministic broker.Adapter implementation.
type Adapter struct {
	symbol       string
	exchange     string
	nextDatetime time.Time
	price        float64
	connected    bool
}

// New creates a mock adapter starting at startPrice.
func New(symbol, exchange string, startPrice float64) *Adapter {
	return &Adapter{symbol: symbol, exchange: exchange, nextDatetime: time.Now().UTC(), price: startPrice}
}

func (a *Adapter) Venue() string { return a.exchange }

func (a *Adapter) Connect(ctx context.Context) error {
	a.connected = true
	return nil
}

func (a *Adapter) SubscribeSymbol(ctx context.Context, symbol string) error {
	a.symbol = symbol
	return nil
}

func (a *Adapter) Heartbeat(ctx context.Context) error {
	if !a.connected {
		return structerr.ErrNotConnected
	}
	return nil
}

func (a *Adapter) PollBar(ctx context.Context) (*model.SBar, error) {
	if !a.connected {
		return nil, structerr.ErrNotConnected
	}

	open := a.price
	close := open + 0.2
	high := close + 0.4
	low := open - 0.3
	volume := 1000.0
	openInterest := 5000.0

	a.price = close
	dt := a.nextDatetime
	a.nextDatetime = a.nextDatetime.Add(time.Minute)

	return &model.SBar{
		Symbol: a.symbol, Venue: a.exchange, Timeframe: model.TFM1, Datetime: dt,
		Open: open, High: high, Low: low, Close: close,
		Volume: volume, OpenInterest: openInterest, Turnover: close * volume,
	}, nil
}
