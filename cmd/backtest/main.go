// cmd/backtest replays stored bars from SQLite through the indicator engine
// and prints a per-indicator summary.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/bars.db --tf=60 --indicators=SMA:20,EMA:9,MACD
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/mihakralj/QuanTAlib-sub003/internal/config"
	"github.com/mihakralj/QuanTAlib-sub003/internal/indicator"
	"github.com/mihakralj/QuanTAlib-sub003/internal/logger"
	"github.com/mihakralj/QuanTAlib-sub003/internal/marketdata/replay"
	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
	sqlitestore "github.com/mihakralj/QuanTAlib-sub003/internal/store/sqlite"
)

// stat accumulates the committed values of one node for one symbol.
type stat struct {
	bars  int
	hot   int
	last  float64
	min   float64
	max   float64
	valid int
}

func main() {
	cfgPath := flag.String("config", "", "Optional YAML configuration (indicators, symbols, tf)")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	tf := flag.Int("tf", 0, "Bar timeframe in seconds (default from config)")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start replay from (0=all)")
	dbPath := flag.String("db", "data/bars.db", "Path to SQLite database")
	indicatorSpecs := flag.String("indicators", "", "Indicator specs: TYPE:PERIOD,... (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[backtest] config: %v", err)
	}
	logger.Init("backtest", logger.ParseLevel(cfg.Log.Level))
	if *tf > 0 {
		cfg.TF = *tf
	}
	if *indicatorSpecs != "" {
		cfg.Pipeline = config.ParseIndicatorSpecs(*indicatorSpecs)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[backtest] %v", err)
	}

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	engine, err := indicator.NewEngine(cfg.Pipeline, cfg.MaxDepth)
	if err != nil {
		log.Fatalf("[backtest] engine init failed: %v", err)
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	replayer := replay.New(reader)
	replayer.Accept = cfg.AcceptsSymbol
	updates := make(chan model.BarUpdate, 10000)
	go func() {
		if _, err := replayer.Run(ctx, cfg.TF, *fromTS, *speed, updates); err != nil {
			log.Printf("[backtest] replay error: %v", err)
		}
		close(updates)
	}()

	stats := make(map[string]*stat)
	processed, rejected := 0, 0
	for u := range updates {
		results, err := engine.Process(u.Bar, u.Revise)
		if err != nil {
			rejected++
			log.Printf("[backtest] %v", err)
			continue
		}
		processed++
		for _, r := range results {
			record(stats, r)
		}
	}

	printSummary(stats, processed, rejected, cfg.TF)
}

func record(stats map[string]*stat, r model.IndicatorResult) {
	key := r.Symbol + " " + r.Name
	s, ok := stats[key]
	if !ok {
		s = &stat{min: math.Inf(1), max: math.Inf(-1)}
		stats[key] = s
	}
	s.bars++
	s.last = r.Value
	if r.Hot {
		s.hot++
	}
	if !math.IsNaN(r.Value) {
		s.valid++
		s.min = math.Min(s.min, r.Value)
		s.max = math.Max(s.max, r.Value)
	}
}

func printSummary(stats map[string]*stat, processed, rejected, tf int) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Bars processed:    %-16d ║\n", processed)
	fmt.Printf("║  Bars rejected:     %-16d ║\n", rejected)
	fmt.Printf("║  TF:                %-16s ║\n", fmt.Sprintf("%ds", tf))
	fmt.Println("╚══════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("%-28s %7s %7s %14s %14s %14s\n", "SERIES", "BARS", "HOT", "LAST", "MIN", "MAX")
	for _, k := range keys {
		s := stats[k]
		if s.valid == 0 {
			s.min, s.max = math.NaN(), math.NaN()
		}
		fmt.Printf("%-28s %7d %7d %14.4f %14.4f %14.4f\n", k, s.bars, s.hot, s.last, s.min, s.max)
	}
}
