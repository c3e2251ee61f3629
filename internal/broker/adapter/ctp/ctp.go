// Package ctp is a deterministic CTP-style futures simulator: unlike mock,
// it carries an open interest that drifts independently of price, the way a
// futures contract's OI does. Grounded on
// original_source/broker/src/adapters/futures/ctp.rs, which only exposed a
// next_bar() feed; this adapter wraps the same generator behind the full
// broker.Adapter contract so the resilient wrapper can supervise it like any
// other venue.
package ctp

import (
	"context"
	"time"

	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/structerr"
)

type Adapter struct {
	symbol       string
	exchange     string
	nextDatetime time.Time
	price        float64
	openInterest float64
	connected    bool
}

func New(symbol, exchange string, startPrice float64) *Adapter {
	return &Adapter{symbol: symbol, exchange: exchange, nextDatetime: time.Now().UTC(), price: startPrice, openInterest: 5000.0}
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

	a.price = close
	a.openInterest += 8.0
	dt := a.nextDatetime
	a.nextDatetime = a.nextDatetime.Add(time.Minute)

	return &model.SBar{
		Symbol: a.symbol, Venue: a.exchange, Timeframe: model.TFM1, Datetime: dt,
		Open: open, High: high, Low: low, Close: close,
		Volume: volume, OpenInterest: a.openInterest, Turnover: close * volume,
	}, nil
}
