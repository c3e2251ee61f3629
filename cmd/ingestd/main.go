// cmd/ingestd is the live ingestion pipeline: one resilient exchange adapter
// per symbol feeds the bounded ingress ring and sharded distributor (C1/C2),
// which in turn feeds a per-symbol structural pipeline (SBar through
// KeyZone/SD) whose snapshots and raw bars are persisted to SQLite, Redis,
// and the append-only bar log. Grounded on the teacher's
// cmd/mdengine/main.go wiring shape (config load, metrics/health server,
// SQLite/Redis writer startup off the hot path, context+signal graceful
// shutdown), re-keyed from the WS/Angel One pipeline to the adapter/
// ResilientAdapter/Feed/MultiTimeframeContext pipeline this system builds.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/ligl/struxis/config"
	"github.com/ligl/struxis/internal/broker"
	"github.com/ligl/struxis/internal/broker/adapter/binance"
	"github.com/ligl/struxis/internal/broker/adapter/ctp"
	"github.com/ligl/struxis/internal/engine"
	"github.com/ligl/struxis/internal/logger"
	"github.com/ligl/struxis/internal/marketdata/feed"
	"github.com/ligl/struxis/internal/metrics"
	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/mtc"
	"github.com/ligl/struxis/internal/receiver"
	"github.com/ligl/struxis/internal/sdconfig"
	"github.com/ligl/struxis/internal/store/barlog"
	redisstore "github.com/ligl/struxis/internal/store/redis"
	sqlitestore "github.com/ligl/struxis/internal/store/sqlite"
	"github.com/ligl/struxis/internal/structural/sd"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[ingestd] starting...")

	cfg := config.Load()
	slogLevel := parseLevel(cfg.LogLevel)
	slogger := logger.Init("ingestd", slogLevel)

	symbols := cfg.ParseSymbols()
	if len(symbols) == 0 {
		log.Fatal("[ingestd] no symbols configured")
	}
	enabledTFs := cfg.ParseTFs()
	if len(enabledTFs) == 0 {
		enabledTFs = []int{int(model.TFM1), int(model.TFM5), int(model.TFM15)}
	}
	log.Printf("[ingestd] symbols=%v enabled TFs=%v seconds mode=%s", symbols, enabledTFs, cfg.Mode)

	var sdProfile *sdconfig.Profile
	if cfg.SDConfigPath != "" {
		p, err := sdconfig.LoadFile(cfg.SDConfigPath)
		if err != nil {
			log.Printf("[ingestd] WARNING: sd config load failed: %v (using package defaults)", err)
		} else {
			sdProfile = p
			log.Printf("[ingestd] loaded SD profile from %s", cfg.SDConfigPath)
		}
	}

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetEnabledTFs(enabledTFs)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite writer (off hot path) ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[ingestd] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	health.SetSQLiteOK(true)
	log.Println("[ingestd] sqlite writer ready")

	// ---- Redis writer (optional) ----
	var redisWriter *redisstore.Writer
	if cfg.RedisEnabled() {
		redisWriter, err = redisstore.New(redisstore.WriterConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			log.Printf("[ingestd] WARNING: redis init failed: %v (continuing without redis)", err)
			health.SetRedisConnected(false)
		} else {
			health.SetRedisConnected(true)
			log.Println("[ingestd] redis writer ready")
		}
	}

	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)
	}

	// ---- Persisted bar log (off hot path) ----
	barLog, err := barlog.New(cfg.BarLogPath)
	if err != nil {
		log.Fatalf("[ingestd] bar log init failed: %v", err)
	}
	defer barLog.Close()

	barForSQLite := make(chan model.SBar, 5000)
	barForRedis := make(chan model.SBar, 5000)
	go sqlWriter.Run(ctx, barForSQLite)
	if redisWriter != nil {
		go redisWriter.Run(ctx, barForRedis)
	}

	// ---- Shared fan-out core (C1 ring + C2 distributor) ----
	f := feed.WithConfig(feed.Config{
		ChannelCapacity: cfg.MarketChannelCapacity,
		IngressCapacity: cfg.MarketIngressCapacity,
		OverloadPolicy:  cfg.MarketOverload,
	})
	go reportFeedMetrics(ctx, f, prom)

	higherTF, tradeTF, entryTF := resolveTimeframeSplit(enabledTFs)
	log.Printf("[ingestd] structural split: entry=%ds trade=%ds higher=%ds", entryTF, tradeTF, higherTF)

	var lastBar atomicTime
	for _, symbol := range symbols {
		symbol := symbol
		adapter := buildAdapter(cfg.Mode, symbol)
		resilient := broker.New(adapter, slogger)

		if err := resilient.Connect(ctx); err != nil {
			log.Printf("[ingestd] %s: initial connect failed: %v", symbol, err)
		}
		if err := resilient.SubscribeSymbol(ctx, symbol); err != nil {
			log.Printf("[ingestd] %s: subscribe failed: %v", symbol, err)
		}

		mtcCtx := mtc.New(symbol)
		recv := receiver.New(mtcCtx)
		for _, tf := range enabledTFs {
			recv.RegisterTimeframe(model.Timeframe(tf))
		}
		recv.RegisterTimeframe(model.TFM1)
		eng := engine.FromContext(mtcCtx, higherTF, tradeTF, entryTF)

		if sdProfile != nil {
			for _, tf := range enabledTFs {
				t := model.Timeframe(tf)
				mtcCtx.SetSDConfig(t, sdProfile.ResolveFor(symbol, t.String()))
			}
		} else {
			for _, tf := range enabledTFs {
				mtcCtx.SetSDConfig(model.Timeframe(tf), sd.DefaultConfig())
			}
		}

		go pollLoop(ctx, resilient, f, symbol, prom, health, &lastBar)
		go subscribeLoop(ctx, f, symbol, recv, barLog, barForSQLite, barForRedis, prom)
		go snapshotLoop(ctx, eng, symbol, sqlWriter, redisWriter, prom, health)
	}

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if t := lastBar.get(); !t.IsZero() {
					health.SetLastBarTime(t)
				}
			}
		}
	}()

	log.Println("[ingestd] ╔═══════════════════════════════════════════════════╗")
	log.Println("[ingestd] ║  Ingestion pipeline ready                         ║")
	log.Printf("[ingestd] ║  symbols: %-42v ║\n", symbols)
	log.Printf("[ingestd] ║  mode:    %-42s ║\n", cfg.Mode)
	log.Println("[ingestd] ╚═══════════════════════════════════════════════════╝")

	<-sigCh
	log.Println("[ingestd] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if redisWriter != nil {
		redisWriter.Close()
	}
	log.Println("[ingestd] shutdown complete.")
}

func buildAdapter(mode, symbol string) broker.Adapter {
	switch mode {
	case "binance":
		return binance.New(symbol, 100.0)
	default:
		return ctp.New(symbol, "CTP", 100.0)
	}
}

// pollLoop pulls the next bar from the resilient adapter and pushes it into
// the shared fan-out core under the M1 channel key. Each symbol gets its
// own goroutine. PollBar may return (nil, nil) when no bar is ready; that
// poll is skipped after a short pause.
func pollLoop(ctx context.Context, adapter *broker.ResilientAdapter, f *feed.Feed, symbol string, prom *metrics.Metrics, health *metrics.HealthStatus, lastBar *atomicTime) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		bar, err := adapter.PollBar(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[ingestd] %s: poll error: %v", symbol, err)
			time.Sleep(200 * time.Millisecond)
			continue
		}
		if bar == nil {
			time.Sleep(50 * time.Millisecond)
			continue
		}

		health.SetAdapterConnected(adapter.IsConnected())
		prom.BarsIngestedTotal.Inc()
		f.Ingest(*bar, int64(model.TFM1))
		lastBar.set(bar.Datetime)
	}
}

// subscribeLoop drains one symbol's M1 channel off the distributor,
// forwards each bar through the structural pipeline and persists it.
func subscribeLoop(ctx context.Context, f *feed.Feed, symbol string, recv *receiver.Receiver, barLog *barlog.Writer, sqliteCh, redisCh chan<- model.SBar, prom *metrics.Metrics) {
	ch := f.Subscribe(symbol, int64(model.TFM1))
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-ch:
			if !ok {
				return
			}
			start := time.Now()
			recv.IngestM1Bar(bar)
			prom.StageComputeDur.WithLabelValues("structural").Observe(time.Since(start).Seconds())
			prom.BarsPublishedTotal.Inc()

			if err := barLog.Append(bar); err != nil {
				log.Printf("[ingestd] %s: bar log append failed: %v", symbol, err)
			} else {
				prom.BarLogWriteTotal.Inc()
			}

			select {
			case sqliteCh <- bar:
			default:
			}
			if redisCh != nil {
				select {
				case redisCh <- bar:
				default:
				}
			}
		}
	}
}

// snapshotLoop periodically exports the Analysis Engine snapshot for symbol
// and persists it alongside the current key zones and SD score gauges.
func snapshotLoop(ctx context.Context, eng *engine.Engine, symbol string, sqlWriter *sqlitestore.Writer, redisWriter *redisstore.Writer, prom *metrics.Metrics, health *metrics.HealthStatus) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := eng.Snapshot()
			health.SetStructuralOK(true)

			for _, ta := range []engine.TimeframeAnalysis{snap.Higher, snap.Trade, snap.Entry} {
				if ta.SD != nil {
					prom.SDScore.WithLabelValues(symbol, ta.Timeframe.String()).Set(ta.SD.Score)
				}
				for _, z := range eng.MTC().GetKeyZones(ta.Timeframe) {
					if err := sqlWriter.SaveKeyZone(symbol, z); err != nil {
						log.Printf("[ingestd] %s: save key zone failed: %v", symbol, err)
					}
				}
			}

			start := time.Now()
			if err := sqlWriter.SaveSnapshot(symbol, snap); err != nil {
				log.Printf("[ingestd] %s: save snapshot failed: %v", symbol, err)
			}
			prom.SQLiteCommitDur.Observe(time.Since(start).Seconds())

			if redisWriter != nil {
				if err := redisWriter.WriteSnapshot(ctx, "snapshot:"+symbol, snap); err != nil {
					log.Printf("[ingestd] %s: redis snapshot write failed: %v", symbol, err)
				}
			}
		}
	}
}

func reportFeedMetrics(ctx context.Context, f *feed.Feed, prom *metrics.Metrics) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	var prev feed.Metrics
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Feed counters are cumulative; add only the growth since the
			// previous report so the Prometheus counters stay totals.
			m := f.Metrics()
			prom.BarsDroppedTotal.WithLabelValues("newest").Add(float64(m.DroppedNewest - prev.DroppedNewest))
			prom.BarsDroppedTotal.WithLabelValues("oldest").Add(float64(m.DroppedOldest - prev.DroppedOldest))
			prom.BackpressureEvents.Add(float64(m.BackpressureEvents - prev.BackpressureEvents))
			prev = m
			prom.IngressLen.Set(float64(m.IngressLen))
			prom.IngressCapacity.Set(float64(m.IngressCapacity))
			prom.ActiveChannels.Set(float64(len(f.ActiveChannels())))
		}
	}
}

// resolveTimeframeSplit maps an arbitrary enabled-timeframe list onto the
// fixed higher/trade/entry split the Analysis Engine snapshot needs. With
// three or more timeframes, the three coarsest are used (entry=smallest of
// the three, higher=largest); with fewer, the engine's M5/M15/H1 default
// split is used instead.
func resolveTimeframeSplit(enabledTFs []int) (higher, trade, entry model.Timeframe) {
	if len(enabledTFs) < 3 {
		return model.TFH1, model.TFM15, model.TFM5
	}
	sorted := append([]int(nil), enabledTFs...)
	sort.Ints(sorted)
	top := sorted[len(sorted)-3:]
	return model.Timeframe(top[2]), model.Timeframe(top[1]), model.Timeframe(top[0])
}

func parseLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// atomicTime is a minimal mutex-guarded time.Time, for the cross-goroutine
// "most recent bar seen" watermark feeding the health status.
type atomicTime struct {
	mu sync.Mutex
	t  time.Time
}

func (a *atomicTime) set(t time.Time) {
	a.mu.Lock()
	a.t = t
	a.mu.Unlock()
}

func (a *atomicTime) get() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.t
}
