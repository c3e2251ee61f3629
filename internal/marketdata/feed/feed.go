// Package feed composes the ingress ring (C1) and the distributor (C2) into
// the single ingest/subscribe entry point the resilient adapter wrapper and
// the data receiver both talk to. Grounded on
// original_source/market/src/feed.rs.
package feed

import (
	"sync/atomic"

	"github.com/ligl/struxis/internal/marketdata/distributor"
	"github.com/ligl/struxis/internal/marketdata/ingress"
	"github.com/ligl/struxis/internal/model"
)

// Config tunes the ring and channel capacities and the ring's overload
// policy. Zero values fall back to the defaults used by New.
type Config struct {
	ChannelCapacity int
	IngressCapacity int
	OverloadPolicy  ingress.OverloadPolicy
}

func DefaultConfig() Config {
	return Config{ChannelCapacity: 8192, IngressCapacity: 16384, OverloadPolicy: ingress.DropOldest}
}

// Metrics is a point-in-time snapshot of Feed counters.
type Metrics struct {
	Published          uint64
	Dropped            uint64
	DroppedNewest      uint64
	DroppedOldest      uint64
	BackpressureEvents uint64
	IngressLen         int
	IngressCapacity    int
}

// Feed is the ingest/subscribe surface for one process: every incoming bar
// is pushed to a bounded ingress ring for backpressure accounting, then
// broadcast to the distributor's subscribers for (bar.Symbol, interval).
type Feed struct {
	ring         *ingress.Ring[model.SBar]
	distributor  *distributor.Distributor
	published    atomic.Uint64
	dropped      atomic.Uint64
	droppedNew   atomic.Uint64
	droppedOld   atomic.Uint64
}

// New creates a Feed with DefaultConfig.
func New() *Feed {
	return WithConfig(DefaultConfig())
}

// WithConfig creates a Feed with explicit ring/channel sizing.
func WithConfig(cfg Config) *Feed {
	if cfg.ChannelCapacity < 1 {
		cfg.ChannelCapacity = DefaultConfig().ChannelCapacity
	}
	if cfg.IngressCapacity < 1 {
		cfg.IngressCapacity = DefaultConfig().IngressCapacity
	}
	return &Feed{
		ring:        ingress.NewWithPolicy[model.SBar](cfg.IngressCapacity, cfg.OverloadPolicy),
		distributor: distributor.New(cfg.ChannelCapacity),
	}
}

// Subscribe returns a receive-only channel for symbol+interval.
func (f *Feed) Subscribe(symbol string, intervalSecs int64) <-chan model.SBar {
	return f.distributor.Subscribe(symbol, intervalSecs)
}

// Ingest pushes bar to the ingress ring (recording drop metrics per the
// ring's overload policy) and then broadcasts it on (bar.Symbol,
// intervalSecs), returning the number of subscribers reached.
func (f *Feed) Ingest(bar model.SBar, intervalSecs int64) int {
	switch f.ring.Push(bar) {
	case ingress.DroppedNewest:
		f.dropped.Add(1)
		f.droppedNew.Add(1)
	case ingress.DroppedOldest:
		f.dropped.Add(1)
		f.droppedOld.Add(1)
	}

	receivers := f.distributor.Broadcast(bar.Symbol, intervalSecs, bar)
	f.published.Add(1)
	return receivers
}

// PopIngress drains one entry from the ingress ring, for consumer-side
// housekeeping after a bar has been fully processed downstream.
func (f *Feed) PopIngress() (model.SBar, bool) {
	return f.ring.Pop()
}

// Metrics returns a snapshot of ingest/drop/backpressure counters.
func (f *Feed) Metrics() Metrics {
	droppedNew := f.droppedNew.Load()
	droppedOld := f.droppedOld.Load()
	return Metrics{
		Published:          f.published.Load(),
		Dropped:            f.dropped.Load(),
		DroppedNewest:      droppedNew,
		DroppedOldest:      droppedOld,
		BackpressureEvents: droppedNew + droppedOld,
		IngressLen:         f.ring.Len(),
		IngressCapacity:    f.ring.Capacity(),
	}
}

// SubscriberCount reports the current subscriber count for a channel.
func (f *Feed) SubscriberCount(symbol string, intervalSecs int64) int {
	return f.distributor.SubscriberCount(symbol, intervalSecs)
}

// ActiveChannels lists every channel key with at least one subscriber.
func (f *Feed) ActiveChannels() []string {
	return f.distributor.ActiveChannels()
}
