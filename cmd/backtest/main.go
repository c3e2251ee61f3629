// cmd/backtest replays a CSV bar file through the structural pipeline to
// validate fractal/swing/trend/keyzone/SD behavior without a live adapter.
// Grounded on the teacher's cmd/backtest/main.go shape (flag-driven replay,
// summary box on completion), re-keyed from the SQLite-candle/indicator
// replay it drove to a CSV/receiver/engine replay.
//
// Usage:
//
//	go run ./cmd/backtest --csv=bars.csv --symbol=BTCUSDT --venue=BINANCE --tf=60,300,900
package main

import (
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/ligl/struxis/internal/engine"
	"github.com/ligl/struxis/internal/model"
	"github.com/ligl/struxis/internal/mtc"
	"github.com/ligl/struxis/internal/receiver"
	"github.com/ligl/struxis/internal/sdconfig"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	csvPath := flag.String("csv", "", "Path to a bar CSV file (datetime,open,high,low,close[,volume][,open_interest][,turnover])")
	symbol := flag.String("symbol", "BACKTEST", "Symbol label to tag replayed bars with")
	venue := flag.String("venue", "CSV", "Venue label to tag replayed bars with")
	tfStr := flag.String("tf", "60,300,900", "Comma-separated timeframes (seconds) to register and replay the CSV rows onto")
	sdConfigPath := flag.String("sd-config", "", "Optional SD profile YAML path")
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("[backtest] --csv is required")
	}

	tfs := parseTFs(*tfStr)
	if len(tfs) == 0 {
		log.Fatal("[backtest] no valid timeframes specified")
	}

	ctx := mtc.New(*symbol)
	recv := receiver.New(ctx)
	for _, tf := range tfs {
		recv.RegisterTimeframe(model.Timeframe(tf))
	}

	if *sdConfigPath != "" {
		profile, err := sdconfig.LoadFile(*sdConfigPath)
		if err != nil {
			log.Fatalf("[backtest] sd config load failed: %v", err)
		}
		for _, tf := range tfs {
			t := model.Timeframe(tf)
			ctx.SetSDConfig(t, profile.ResolveFor(*symbol, t.String()))
		}
	}

	higher, trade, entry := timeframeSplit(tfs)
	eng := engine.FromContext(ctx, higher, trade, entry)

	rowTF := model.Timeframe(tfs[0])
	processed, errs := recv.IngestCSV(*csvPath, *symbol, *venue, rowTF)
	for _, e := range errs {
		log.Printf("[backtest] row error: %v", e)
	}

	snap := eng.Snapshot()
	fmt.Println()
	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║            BACKTEST COMPLETE            ║")
	fmt.Println("╠════════════════════════════════════════╣")
	fmt.Printf("║  rows processed:    %-18d ║\n", processed)
	fmt.Printf("║  row errors:        %-18d ║\n", len(errs))
	fmt.Printf("║  timeframes:        %-18v ║\n", tfs)
	fmt.Println("╚════════════════════════════════════════╝")

	printAnalysis("entry", snap.Entry)
	printAnalysis("trade", snap.Trade)
	printAnalysis("higher", snap.Higher)
}

func printAnalysis(label string, ta engine.TimeframeAnalysis) {
	fmt.Printf("\n[%s] tf=%ds\n", label, ta.Timeframe)
	if ta.LatestCBar != nil {
		fmt.Printf("  latest cbar:  high=%.4f low=%.4f fractal=%s\n",
			ta.LatestCBar.High, ta.LatestCBar.Low, ta.LatestCBar.Fractal)
	}
	if ta.LatestSwing != nil {
		fmt.Printf("  latest swing: direction=%s high=%.4f low=%.4f\n",
			ta.LatestSwing.Direction, ta.LatestSwing.High, ta.LatestSwing.Low)
	}
	if ta.LatestTrend != nil {
		fmt.Printf("  latest trend: direction=%s\n", ta.LatestTrend.Direction)
	}
	if ta.KeyZoneSignal != nil {
		fmt.Printf("  key zone signal: behavior=%s\n", ta.KeyZoneSignal.Behavior)
	}
	if ta.SD != nil {
		fmt.Printf("  sd score: %.4f (stage=%s)\n", ta.SD.Score, ta.SD.Stage)
	}
}

func parseTFs(s string) []int {
	var tfs []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			tfs = append(tfs, n)
		}
	}
	return tfs
}

// timeframeSplit maps the replayed timeframe list onto the engine's fixed
// higher/trade/entry split, same rule cmd/ingestd uses: with 3+ timeframes,
// the three coarsest; otherwise the M5/M15/H1 default.
func timeframeSplit(tfs []int) (higher, trade, entry model.Timeframe) {
	if len(tfs) < 3 {
		return model.TFH1, model.TFM15, model.TFM5
	}
	sorted := append([]int(nil), tfs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	top := sorted[len(sorted)-3:]
	return model.Timeframe(top[2]), model.Timeframe(top[1]), model.Timeframe(top[0])
}
