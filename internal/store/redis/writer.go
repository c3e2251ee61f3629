// Package redis is the streaming sink for SBars and Analysis Engine
// snapshots: XADD-backed streams for durable replay, SET "latest" keys, and
// PUBLISH for live subscribers. Grounded on teacher's
// internal/store/redis/{writer,reader,circuitbreaker,bufferedwriter}.go,
// re-keyed from candle/indicator streams to the SBar/engine.Snapshot schema.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/ligl/struxis/internal/engine"
	"github.com/ligl/struxis/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const defaultLatestTTL = 30 * time.Minute

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes SBars and snapshots to Redis.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run reads SBars from barCh and writes them to Redis. Blocks until ctx is
// cancelled or barCh is closed.
func (w *Writer) Run(ctx context.Context, barCh <-chan model.SBar) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			w.writeBar(ctx, bar)
		}
	}
}

// streamKey names the stream holding bars for one symbol/venue/timeframe:
// candle:<tf>s:<venue>:<symbol>.
func streamKey(bar model.SBar) string {
	return "candle:" + strconv.Itoa(int(bar.Timeframe)) + "s:" + bar.Venue + ":" + bar.Symbol
}

func latestKey(bar model.SBar) string {
	return "candle:" + strconv.Itoa(int(bar.Timeframe)) + "s:latest:" + bar.Venue + ":" + bar.Symbol
}

func pubsubKey(bar model.SBar) string {
	return "pub:candle:" + strconv.Itoa(int(bar.Timeframe)) + "s:" + bar.Venue + ":" + bar.Symbol
}

// maxLenFor returns a stream MAXLEN proportional to the timeframe, keeping
// roughly 3 hours of history with a floor of 200 entries.
func maxLenFor(tf model.Timeframe) int64 {
	n := int64(10800) / int64(tf)
	if n < 200 {
		n = 200
	}
	return n
}

func barJSON(bar model.SBar) (string, error) {
	data, err := json.Marshal(bar)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// writeBar pipelines SET latest + XADD + PUBLISH for one bar.
func (w *Writer) writeBar(ctx context.Context, bar model.SBar) {
	jsonData, err := barJSON(bar)
	if err != nil {
		log.Printf("[redis] marshal bar error: %v", err)
		return
	}

	pipe := w.client.Pipeline()
	pipe.Set(ctx, latestKey(bar), jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey(bar),
		MaxLen: maxLenFor(bar.Timeframe),
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, pubsubKey(bar), jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] pipeline error for %s:%s: %v", bar.Venue, bar.Symbol, err)
	}
}

// WriteBarBatch writes multiple bars in a single pipeline round trip.
func (w *Writer) WriteBarBatch(ctx context.Context, bars []model.SBar) {
	if len(bars) == 0 {
		return
	}

	pipe := w.client.Pipeline()
	for _, bar := range bars {
		jsonData, err := barJSON(bar)
		if err != nil {
			continue
		}
		pipe.Set(ctx, latestKey(bar), jsonData, defaultLatestTTL)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey(bar),
			MaxLen: maxLenFor(bar.Timeframe),
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Publish(ctx, pubsubKey(bar), jsonData)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] batch pipeline error (%d bars): %v", len(bars), err)
	}
}

// LoadTFRegistry reads the tf:enabled set from Redis. Returns an empty slice
// if the key doesn't exist.
func (w *Writer) LoadTFRegistry(ctx context.Context) ([]int, error) {
	members, err := w.client.SMembers(ctx, "tf:enabled").Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis SMEMBERS tf:enabled: %w", err)
	}

	tfs := make([]int, 0, len(members))
	for _, m := range members {
		n, err := strconv.Atoi(m)
		if err == nil && n > 0 {
			tfs = append(tfs, n)
		}
	}
	return tfs, nil
}

// WriteSnapshot saves an Analysis Engine snapshot under snapshotKey, with a
// 24h TTL (snapshots are also durably stored in SQLite).
func (w *Writer) WriteSnapshot(ctx context.Context, snapshotKey string, snap engine.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return w.client.Set(ctx, snapshotKey, string(data), 24*time.Hour).Err()
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
