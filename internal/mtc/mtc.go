package mtc

import (
	"sync"

	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/structural/sd"
)

// Context is the multi-timeframe structural pipeline for one symbol: one
// timeframeManager per registered Timeframe, all updates serialized by the
// caller (single-writer discipline — concurrent Append calls on the same
// timeframe are not supported, matching the source's non-Sync manager map).
// Reads (the Get* accessors) take a read lock and are safe from any
// goroutine.
type Context struct {
	symbol string

	mu       sync.RWMutex
	managers map[model.Timeframe]*timeframeManager

	observable Observable
}

func New(symbol string) *Context {
	return &Context{symbol: symbol, managers: make(map[model.Timeframe]*timeframeManager)}
}

func (c *Context) Symbol() string { return c.symbol }

// Register creates the pipeline for tf if it does not already exist.
func (c *Context) Register(tf model.Timeframe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.managers[tf]; !ok {
		c.managers[tf] = newTimeframeManager(tf)
	}
}

// Subscribe registers sub for eventType, or for every event if eventType is nil.
func (c *Context) Subscribe(eventType *EventType, sub Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observable.Subscribe(eventType, sub)
}

// SetSDConfig swaps the resolved Supply/Demand config for tf's pipeline.
func (c *Context) SetSDConfig(tf model.Timeframe, cfg sd.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.managers[tf]; ok {
		m.setSDConfig(cfg)
	}
}

// Append runs bar through tf's structural pipeline and fires the six ordered
// events: SBarCreated, CBarChanged, SwingChanged, TrendChanged, TimeframeEnd,
// NewBar. Each of the last five carries the backtrack id from the layer it
// names (CBarChanged/TimeframeEnd/NewBar all carry the CBar-layer id, since
// those events report pipeline-wide, not layer-specific, invalidation).
func (c *Context) Append(tf model.Timeframe, bar model.SBar) {
	c.mu.Lock()
	m, ok := c.managers[tf]
	if !ok {
		c.mu.Unlock()
		return
	}
	ids := m.append(bar)
	obs := c.observable
	c.mu.Unlock()

	obs.Notify(tf, EventSBarCreated, EventPayload{Note: "sbar appended"})
	obs.Notify(tf, EventCBarChanged, EventPayload{BacktrackID: ids.cbar, HasBacktrack: ids.hasCbar, Note: "cbar changed"})
	obs.Notify(tf, EventSwingChanged, EventPayload{BacktrackID: ids.swing, HasBacktrack: ids.hasSwing, Note: "swing changed"})
	obs.Notify(tf, EventTrendChanged, EventPayload{BacktrackID: ids.trend, HasBacktrack: ids.hasTrend, Note: "trend changed"})
	obs.Notify(tf, EventTimeframeEnd, EventPayload{BacktrackID: ids.cbar, HasBacktrack: ids.hasCbar, Note: "timeframe pipeline done"})
	obs.Notify(tf, EventNewBar, EventPayload{BacktrackID: ids.cbar, HasBacktrack: ids.hasCbar, Note: "timeframe pipeline completed"})
}

func (c *Context) GetSBarWindow(tf model.Timeframe, length int) []model.SBar {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.managers[tf]
	if !ok {
		return nil
	}
	return m.sbarMgr.LastN(length)
}

func (c *Context) GetCBarWindow(tf model.Timeframe, length int) []model.CBar {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.managers[tf]
	if !ok {
		return nil
	}
	rows := m.cbarMgr.Rows()
	if len(rows) <= length {
		return append([]model.CBar(nil), rows...)
	}
	return append([]model.CBar(nil), rows[len(rows)-length:]...)
}

func (c *Context) GetSwingWindow(tf model.Timeframe, length int) []model.Swing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.managers[tf]
	if !ok {
		return nil
	}
	return lastNSwings(m.swingMgr.Rows(), length)
}

func (c *Context) GetTrendWindow(tf model.Timeframe, length int) []model.Trend {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.managers[tf]
	if !ok {
		return nil
	}
	return lastNTrends(m.trendMgr.Rows(), length)
}

func (c *Context) GetKeyZones(tf model.Timeframe) []model.KeyZone {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.managers[tf]
	if !ok {
		return nil
	}
	return m.keyzoneMgr.Rows()
}

func (c *Context) GetKeyZoneSignal(tf model.Timeframe) *model.KeyZoneSignal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.managers[tf]
	if !ok {
		return nil
	}
	return m.latestKeyZoneSignal
}

func (c *Context) GetSD(tf model.Timeframe) *model.SDResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.managers[tf]
	if !ok {
		return nil
	}
	return m.latestSD
}

func (c *Context) Count(tf model.Timeframe) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.managers[tf]
	if !ok {
		return 0
	}
	return m.sbarMgr.RowCount()
}
