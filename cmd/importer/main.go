// cmd/importer loads OHLCV CSV files into the SQLite candle store, resampled
// into the configured timeframe.
//
// Usage:
//
//	go run ./cmd/importer --symbol=EURUSD data/EURUSD_M1.csv data/EURUSD_M1_2.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"chartscan/config"
	"chartscan/internal/logger"
	"chartscan/internal/marketdata/csvimport"
	"chartscan/internal/model"
	sqlitestore "chartscan/internal/store/sqlite"
)

func main() {
	symbol := flag.String("symbol", "", "Symbol the rows belong to (required)")
	tfStr := flag.String("tf", "", "Target timeframe (default: TIMEFRAME)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Init("importer", cfg.LogLevel, cfg.LogPretty)
	log := logger.For("main")

	if *symbol == "" || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	tf := cfg.TimeFrame
	if *tfStr != "" {
		if tf, err = model.ParseTimeFrame(*tfStr); err != nil {
			log.Fatal().Err(err).Msg("--tf")
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		log.Fatal().Err(err).Msg("create data dir")
	}
	store, err := sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("sqlite open failed")
	}
	defer store.Close()

	var ticks []model.Tick
	for _, path := range flag.Args() {
		f, err := os.Open(path)
		if err != nil {
			log.Fatal().Err(err).Msg("open csv")
		}
		rows, err := csvimport.Read(f, *symbol)
		f.Close()
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("skipped malformed rows")
		}
		log.Info().Str("file", path).Int("rows", len(rows)).Msg("read")
		ticks = append(ticks, rows...)
	}
	sort.SliceStable(ticks, func(a, b int) bool { return ticks[a].Date.Before(ticks[b].Date) })

	st, err := csvimport.Import(context.Background(), store, *symbol, tf, ticks)
	if err != nil {
		log.Fatal().Err(err).Msg("import failed")
	}
	fmt.Printf("%s %s: %d rows -> %d candles (%d out of order)\n", *symbol, tf, st.Rows, st.Candles, st.Stale)
}
