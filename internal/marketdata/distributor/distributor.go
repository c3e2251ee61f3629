// Package distributor is the sharded broadcast fan-out: it maps a
// (symbol, interval) channel key to a set of independent subscriber
// channels and fans each incoming bar to all of them without blocking on a
// slow consumer. Go has no broadcast/multicast channel primitive the way
// the source's tokio::sync::broadcast is, so each subscriber gets its own
// bounded chan model.SBar with a non-blocking send-or-drop, following the
// teacher's internal/marketdata/bus.FanOut exactly. The sharded channel map
// (shard count from hardware parallelism, clamped to [8,128]; shard index =
// hash(key) mod N) is grounded on original_source/market/src/distributor.rs,
// which isolates read/write lock contention across keys the same way.
package distributor

import (
	"hash/fnv"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/ligl/struxis/internal/model"
)

const (
	minShards = 8
	maxShards = 128
)

// channel holds one (symbol, interval) subscriber set.
type channel struct {
	mu          sync.RWMutex
	subscribers []chan model.SBar
	dropped     []uint64
}

// Distributor fans bars out to per-channel subscribers, sharded by channel
// key to keep unrelated symbols/intervals off the same lock.
type Distributor struct {
	shards           []shard
	shardCount       int
	channelCapacity  int
	onDrop           func(key string, subscriberIdx int)
}

type shard struct {
	mu       sync.RWMutex
	channels map[string]*channel
}

// New creates a Distributor with the given per-subscriber channel buffer
// capacity and a shard count derived from GOMAXPROCS, clamped to [8,128].
func New(channelCapacity int) *Distributor {
	if channelCapacity < 1 {
		channelCapacity = 1
	}
	shardCount := defaultShardCount()
	shards := make([]shard, shardCount)
	for i := range shards {
		shards[i].channels = make(map[string]*channel)
	}
	return &Distributor{shards: shards, shardCount: shardCount, channelCapacity: channelCapacity}
}

// OnDrop installs a callback invoked whenever a bar is dropped for a slow
// subscriber. If nil, drops are only tracked internally.
func (d *Distributor) OnDrop(fn func(key string, subscriberIdx int)) {
	d.onDrop = fn
}

// ChannelKey builds the canonical (symbol, interval) channel key.
func ChannelKey(symbol string, intervalSecs int64) string {
	return strings.ToLower(symbol) + ":" + strconv.FormatInt(intervalSecs, 10)
}

// Subscribe returns a fresh receive-only channel for symbol+interval,
// lazily creating the channel set if this is its first subscriber.
func (d *Distributor) Subscribe(symbol string, intervalSecs int64) <-chan model.SBar {
	key := ChannelKey(symbol, intervalSecs)
	s := &d.shards[d.shardIndex(key)]

	s.mu.Lock()
	ch, ok := s.channels[key]
	if !ok {
		ch = &channel{}
		s.channels[key] = ch
	}
	s.mu.Unlock()

	out := make(chan model.SBar, d.channelCapacity)
	ch.mu.Lock()
	ch.subscribers = append(ch.subscribers, out)
	ch.dropped = append(ch.dropped, 0)
	ch.mu.Unlock()
	return out
}

// Broadcast sends bar to every current subscriber of symbol+interval,
// dropping it for any subscriber whose channel is full, and returns the
// number of subscribers it attempted to deliver to.
func (d *Distributor) Broadcast(symbol string, intervalSecs int64, bar model.SBar) int {
	key := ChannelKey(symbol, intervalSecs)
	s := &d.shards[d.shardIndex(key)]

	s.mu.RLock()
	ch, ok := s.channels[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}

	ch.mu.RLock()
	defer ch.mu.RUnlock()
	for i, sub := range ch.subscribers {
		select {
		case sub <- bar:
		default:
			ch.dropped[i]++
			if d.onDrop != nil {
				d.onDrop(key, i)
			}
		}
	}
	return len(ch.subscribers)
}

// SubscriberCount reports the current number of subscribers on a channel.
func (d *Distributor) SubscriberCount(symbol string, intervalSecs int64) int {
	key := ChannelKey(symbol, intervalSecs)
	s := &d.shards[d.shardIndex(key)]
	s.mu.RLock()
	ch, ok := s.channels[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.subscribers)
}

// ActiveChannels returns every channel key currently holding at least one
// subscriber.
func (d *Distributor) ActiveChannels() []string {
	var active []string
	for i := range d.shards {
		s := &d.shards[i]
		s.mu.RLock()
		for key, ch := range s.channels {
			ch.mu.RLock()
			if len(ch.subscribers) > 0 {
				active = append(active, key)
			}
			ch.mu.RUnlock()
		}
		s.mu.RUnlock()
	}
	return active
}

func (d *Distributor) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()) % d.shardCount
}

func defaultShardCount() int {
	cpu := runtime.GOMAXPROCS(0)
	n := cpu * 2
	if n < minShards {
		n = minShards
	}
	if n > maxShards {
		n = maxShards
	}
	return n
}
