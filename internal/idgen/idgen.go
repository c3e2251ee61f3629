// Package idgen provides the snowflake-style monotonic 64-bit ID service
// used for every structural entity (SBar, CBar, Swing, Trend, KeyZone). IDs
// are never reused; a fixed worker ID per category keeps the spaces
// collision-free without any cross-category coordination.
package idgen

import (
	"sync"
	"time"
)

const (
	sequenceBits  = 12
	workerIDBits  = 10
	maxSequence   = (1 << sequenceBits) - 1
	workerShift   = sequenceBits
	timestampShift = sequenceBits + workerIDBits

	// epochMs is a custom epoch so the timestamp component stays well clear
	// of the 42-bit ceiling for decades.
	epochMs = 1735689600000 // 2025-01-01T00:00:00Z
)

// Category worker IDs. Fixed so structural entities never collide across
// categories even though each has its own Generator instance.
const (
	WorkerSBar    = 1
	WorkerCBar    = 2
	WorkerSwing   = 3
	WorkerTrend   = 4
	WorkerKeyZone = 5
)

// Generator issues monotonically increasing IDs for one worker category.
// Safe for concurrent use; a single mutex serializes the critical section.
type Generator struct {
	workerID uint64

	mu            sync.Mutex
	sequence      uint64
	lastTimestamp uint64
}

// New creates a Generator for the given worker ID (0-1023).
func New(workerID uint64) *Generator {
	if workerID > 1023 {
		panic("idgen: worker_id must be <= 1023")
	}
	return &Generator{workerID: workerID}
}

// Next returns the next ID for this worker. Within a millisecond, the
// sequence increments up to 4095 before spinning to the next millisecond.
// A clock that moves backward is pinned to the last observed timestamp.
func (g *Generator) Next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := nowMs()
	if ts < g.lastTimestamp {
		ts = g.lastTimestamp
	}

	if ts == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			for ts <= g.lastTimestamp {
				ts = nowMs()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = ts

	return ((ts - epochMs) << timestampShift) | (g.workerID << workerShift) | g.sequence
}

func nowMs() uint64 {
	return uint64(time.Now().UnixMilli())
}

// Structural-category singletons. One process-global generator per
// category, matching the source's per-structure worker ID allocation.
var (
	sbarOnce, cbarOnce, swingOnce, trendOnce, keyzoneOnce sync.Once
	sbarGen, cbarGen, swingGen, trendGen, keyzoneGen       *Generator
)

func SBar() *Generator {
	sbarOnce.Do(func() { sbarGen = New(WorkerSBar) })
	return sbarGen
}

func CBar() *Generator {
	cbarOnce.Do(func() { cbarGen = New(WorkerCBar) })
	return cbarGen
}

func Swing() *Generator {
	swingOnce.Do(func() { swingGen = New(WorkerSwing) })
	return swingGen
}

func Trend() *Generator {
	trendOnce.Do(func() { trendGen = New(WorkerTrend) })
	return trendGen
}

func KeyZone() *Generator {
	keyzoneOnce.Do(func() { keyzoneGen = New(WorkerKeyZone) })
	return keyzoneGen
}
