// cmd/backtest replays historical candles from SQLite through the
// instruments, strategies and simulated order book, then prints the result.
//
// Usage:
//
//	go run ./cmd/backtest --symbols=EURUSD,GBPUSD --from=2024-01-01 --strategies=ema_rsi,breakout
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chartscan/config"
	"chartscan/internal/backtest"
	"chartscan/internal/execution"
	"chartscan/internal/logger"
	"chartscan/internal/marketdata/replay"
	sqlitestore "chartscan/internal/store/sqlite"
	"chartscan/internal/strategy"
)

func main() {
	symbols := flag.String("symbols", "", "Comma-separated symbols (default: SYMBOLS, or every stored symbol)")
	fromStr := flag.String("from", "", "Start date, YYYY-MM-DD or RFC 3339 (default: all)")
	toStr := flag.String("to", "", "End date, exclusive (default: all)")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	strategies := flag.String("strategies", "ema_rsi,breakout", "Comma-separated strategies: ema, ema_rsi, breakout, breakout_extrema")
	journalPath := flag.String("journal", "", "Record fills in this trade journal database")
	asJSON := flag.Bool("json", false, "Print the result as JSON")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Init("backtest", cfg.LogLevel, cfg.LogPretty)
	log := logger.For("main")

	from, err := parseDate(*fromStr)
	if err != nil {
		log.Fatal().Err(err).Msg("--from")
	}
	to, err := parseDate(*toStr)
	if err != nil {
		log.Fatal().Err(err).Msg("--to")
	}
	strat, err := strategy.FromNames(strings.Split(*strategies, ","))
	if err != nil {
		log.Fatal().Err(err).Msg("strategies")
	}
	syms := cfg.Symbols
	if *symbols != "" {
		syms = nil
		for _, s := range strings.Split(*symbols, ",") {
			if s = strings.TrimSpace(s); s != "" {
				syms = append(syms, s)
			}
		}
	}

	store, err := sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("sqlite open failed")
	}
	defer store.Close()

	var opts []backtest.Option
	if *journalPath != "" {
		journal, err := execution.NewJournal(*journalPath)
		if err != nil {
			log.Fatal().Err(err).Msg("journal open failed")
		}
		defer journal.Close()
		opts = append(opts, backtest.WithJournal(journal))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticks, errc := replay.New(store).Stream(ctx, replay.Request{
		Symbols:   syms,
		TimeFrame: cfg.TimeFrame,
		From:      from,
		To:        to,
		Speed:     *speed,
	}, 10000)

	res, err := backtest.NewRunner(*cfg, strat, opts...).Run(ctx, ticks)
	if err != nil {
		log.Error().Err(err).Msg("backtest interrupted")
	}
	if err := <-errc; err != nil {
		log.Fatal().Err(err).Msg("replay failed")
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Fatal().Err(err).Msg("encode result")
		}
		return
	}
	printSummary(res, strat.Names())
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func printSummary(res backtest.Result, strategies []string) {
	s := res.Summary
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║            BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Symbols:        %-23s ║\n", strings.Join(res.Symbols, ","))
	fmt.Printf("║  Strategies:     %-23s ║\n", strings.Join(strategies, ","))
	fmt.Printf("║  Ticks / bars:   %-23s ║\n", fmt.Sprintf("%d / %d", res.Ticks, res.Bars))
	fmt.Printf("║  Skipped ticks:  %-23d ║\n", res.Skipped)
	fmt.Printf("║  Patterns:       %-23d ║\n", res.Patterns)
	fmt.Printf("║  Signals:        %-23d ║\n", res.Signals)
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Trades:         %-23d ║\n", s.TotalTrades)
	fmt.Printf("║  Win rate:       %-23s ║\n", fmt.Sprintf("%.1f%%", s.WinRate))
	fmt.Printf("║  Net profit:     %-23s ║\n", s.NetProfit.StringFixed(2))
	fmt.Printf("║  Max drawdown:   %-23s ║\n", fmt.Sprintf("%.2f%%", s.MaxEquityDDPct))
	fmt.Printf("║  Elapsed:        %-23s ║\n", res.Elapsed.Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════════╝")
}
