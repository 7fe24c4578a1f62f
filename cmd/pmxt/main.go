package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pmxt-dev/pmxt/internal/book"
	"github.com/pmxt-dev/pmxt/internal/candle"
	"github.com/pmxt-dev/pmxt/internal/config"
	"github.com/pmxt-dev/pmxt/internal/exchange"
	"github.com/pmxt-dev/pmxt/internal/exchange/kalshi"
	"github.com/pmxt-dev/pmxt/internal/exchange/polymarket"
	"github.com/pmxt-dev/pmxt/internal/exchange/rest"
	"github.com/pmxt-dev/pmxt/internal/model"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: pmxt <command> [flags]

commands:
  markets   list markets across exchanges
  search    search markets by title/description
  book      print the order book for an outcome
  trades    print recent trades for an outcome
  candles   print OHLCV candles for an outcome
  watch     stream live book updates for an outcome

run 'pmxt <command> -h' for command flags
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	exchanges, err := buildExchanges(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build exchanges: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		for _, ex := range exchanges {
			if c, ok := ex.(interface{ Close() }); ok {
				c.Close()
			}
		}
	}()

	var cmdErr error
	switch os.Args[1] {
	case "markets":
		cmdErr = runMarkets(ctx, exchanges, os.Args[2:])
	case "search":
		cmdErr = runSearch(ctx, exchanges, os.Args[2:])
	case "book":
		cmdErr = runBook(ctx, exchanges, os.Args[2:])
	case "trades":
		cmdErr = runTrades(ctx, exchanges, os.Args[2:])
	case "candles":
		cmdErr = runCandles(ctx, exchanges, os.Args[2:])
	case "watch":
		cmdErr = runWatch(ctx, cfg, exchanges, logger, os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if cmdErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", cmdErr)
		os.Exit(1)
	}
}

func buildLogger(cfg *config.Config) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Env == "production" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func buildExchanges(cfg *config.Config, logger *zap.Logger) (map[model.Exchange]exchange.Exchange, error) {
	opts := []rest.Option{
		rest.WithTimeout(cfg.HTTP.Timeout()),
		rest.WithRetries(cfg.HTTP.MaxRetries, cfg.HTTP.Backoff()),
		rest.WithLogger(logger),
	}

	pm := polymarket.New(polymarket.Config{
		GammaURL: cfg.Polymarket.GammaURL,
		CLOBURL:  cfg.Polymarket.CLOBURL,
		WSURL:    cfg.Polymarket.WSURL,
		PageSize: cfg.Pagination.PageSize,
		MaxPages: cfg.Pagination.MaxPages,
		CacheTTL: cfg.CacheTTL,
	}, logger, nil, opts...)

	keyPEM, err := cfg.Kalshi.PrivateKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("read kalshi private key: %w", err)
	}
	ka, err := kalshi.New(kalshi.Config{
		BaseURL:       cfg.Kalshi.BaseURL,
		WSURL:         cfg.Kalshi.WSURL,
		APIKey:        cfg.Kalshi.APIKey,
		PrivateKeyPEM: keyPEM,
		PageSize:      cfg.Pagination.PageSize,
		MaxPages:      cfg.Pagination.MaxPages,
		CacheTTL:      cfg.CacheTTL,
	}, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("kalshi adapter: %w", err)
	}

	return map[model.Exchange]exchange.Exchange{
		model.ExchangePolymarket: pm,
		model.ExchangeKalshi:     ka,
	}, nil
}

// selectExchanges resolves the -exchange flag value to the adapters it names.
func selectExchanges(exchanges map[model.Exchange]exchange.Exchange, name string) ([]exchange.Exchange, error) {
	if name == "" || name == "all" {
		out := make([]exchange.Exchange, 0, len(exchanges))
		for _, ex := range exchanges {
			out = append(out, ex)
		}
		return out, nil
	}
	ex, ok := exchanges[model.Exchange(strings.ToLower(name))]
	if !ok {
		return nil, fmt.Errorf("unknown exchange %q", name)
	}
	return []exchange.Exchange{ex}, nil
}

// selectOne is selectExchanges for commands that need exactly one adapter.
func selectOne(exchanges map[model.Exchange]exchange.Exchange, name string) (exchange.Exchange, error) {
	if name == "" || name == "all" {
		return nil, fmt.Errorf("this command requires -exchange polymarket|kalshi")
	}
	sel, err := selectExchanges(exchanges, name)
	if err != nil {
		return nil, err
	}
	return sel[0], nil
}

func runMarkets(ctx context.Context, exchanges map[model.Exchange]exchange.Exchange, args []string) error {
	fs := flag.NewFlagSet("markets", flag.ExitOnError)
	exName := fs.String("exchange", "all", "exchange to query (polymarket, kalshi, all)")
	limit := fs.Int("limit", 20, "max markets to print")
	sortBy := fs.String("sort", "volume", "sort order (volume, liquidity, newest)")
	fs.Parse(args)

	sel, err := selectExchanges(exchanges, *exName)
	if err != nil {
		return err
	}

	var all []model.Market
	for _, ex := range sel {
		markets, err := ex.FetchMarkets(ctx, model.MarketFilter{})
		if err != nil {
			return fmt.Errorf("%s: %w", ex.Name(), err)
		}
		all = append(all, markets...)
	}

	exchange.SortMarkets(all, model.SortOption(*sortBy))
	all = exchange.Paginate(all, *limit, 0)
	printMarkets(all)
	return nil
}

func runSearch(ctx context.Context, exchanges map[model.Exchange]exchange.Exchange, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	exName := fs.String("exchange", "all", "exchange to query (polymarket, kalshi, all)")
	limit := fs.Int("limit", 20, "max markets to print")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: pmxt search [flags] <query>")
	}
	query := strings.Join(fs.Args(), " ")

	sel, err := selectExchanges(exchanges, *exName)
	if err != nil {
		return err
	}

	var all []model.Market
	for _, ex := range sel {
		markets, err := ex.SearchMarkets(ctx, query, model.MarketFilter{})
		if err != nil {
			return fmt.Errorf("%s: %w", ex.Name(), err)
		}
		all = append(all, markets...)
	}

	exchange.SortMarkets(all, model.SortVolume)
	all = exchange.Paginate(all, *limit, 0)
	printMarkets(all)
	return nil
}

func runBook(ctx context.Context, exchanges map[model.Exchange]exchange.Exchange, args []string) error {
	fs := flag.NewFlagSet("book", flag.ExitOnError)
	exName := fs.String("exchange", "", "exchange the outcome belongs to")
	depth := fs.Int("depth", 10, "levels to print per side")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: pmxt book -exchange <name> <outcome-id>")
	}

	ex, err := selectOne(exchanges, *exName)
	if err != nil {
		return err
	}
	b, err := ex.FetchOrderBook(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	printBook(b, *depth)
	return nil
}

// parseBoundFlag converts a -start/-end value (RFC3339, date-only, or unix
// milliseconds) into a history bound. Empty means unbounded.
func parseBoundFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := candle.ParseInstant(value)
	if err != nil {
		return nil, fmt.Errorf("-%s: %w", name, err)
	}
	return &t, nil
}

func runTrades(ctx context.Context, exchanges map[model.Exchange]exchange.Exchange, args []string) error {
	fs := flag.NewFlagSet("trades", flag.ExitOnError)
	exName := fs.String("exchange", "", "exchange the outcome belongs to")
	limit := fs.Int("limit", 20, "max trades to print")
	start := fs.String("start", "", "earliest trade (RFC3339, YYYY-MM-DD, or unix ms)")
	end := fs.String("end", "", "latest trade (RFC3339, YYYY-MM-DD, or unix ms)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: pmxt trades -exchange <name> <outcome-id>")
	}

	ex, err := selectOne(exchanges, *exName)
	if err != nil {
		return err
	}
	startT, err := parseBoundFlag("start", *start)
	if err != nil {
		return err
	}
	endT, err := parseBoundFlag("end", *end)
	if err != nil {
		return err
	}
	trades, err := ex.FetchTrades(ctx, fs.Arg(0), model.HistoryFilter{
		Start: startT,
		End:   endT,
		Limit: *limit,
	})
	if err != nil {
		return err
	}
	for _, tr := range trades {
		fmt.Printf("%s  %-4s  %.4f x %.2f\n",
			tr.Timestamp.Format(time.RFC3339), tr.Side, tr.Price, tr.Amount)
	}
	return nil
}

func runCandles(ctx context.Context, exchanges map[model.Exchange]exchange.Exchange, args []string) error {
	fs := flag.NewFlagSet("candles", flag.ExitOnError)
	exName := fs.String("exchange", "", "exchange the outcome belongs to")
	resolution := fs.String("resolution", "1h", "candle resolution (1m, 1h, 1d, ...)")
	limit := fs.Int("limit", 24, "max candles to print")
	start := fs.String("start", "", "earliest candle (RFC3339, YYYY-MM-DD, or unix ms)")
	end := fs.String("end", "", "latest candle (RFC3339, YYYY-MM-DD, or unix ms)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: pmxt candles -exchange <name> <outcome-id>")
	}

	ex, err := selectOne(exchanges, *exName)
	if err != nil {
		return err
	}
	startT, err := parseBoundFlag("start", *start)
	if err != nil {
		return err
	}
	endT, err := parseBoundFlag("end", *end)
	if err != nil {
		return err
	}
	candles, err := ex.FetchOHLCV(ctx, fs.Arg(0), model.HistoryFilter{
		Resolution: *resolution,
		Start:      startT,
		End:        endT,
		Limit:      *limit,
	})
	if err != nil {
		return err
	}
	for _, c := range candles {
		vol := "-"
		if c.Volume != nil {
			vol = fmt.Sprintf("%.2f", *c.Volume)
		}
		fmt.Printf("%s  O %.4f  H %.4f  L %.4f  C %.4f  V %s\n",
			c.Timestamp.Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, vol)
	}
	return nil
}

func runWatch(ctx context.Context, cfg *config.Config, exchanges map[model.Exchange]exchange.Exchange, logger *zap.Logger, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	exName := fs.String("exchange", "", "exchange the outcome belongs to")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: pmxt watch -exchange <name> <outcome-id>")
	}
	outcomeID := fs.Arg(0)

	ex, err := selectOne(exchanges, *exName)
	if err != nil {
		return err
	}

	stopPublisher, err := startPublisher(ctx, cfg, ex, logger)
	if err != nil {
		return err
	}
	defer stopPublisher()

	w, err := ex.WatchOrderBook(ctx, outcomeID, func(b *book.OrderBook) {
		bid, bok := b.BestBid()
		ask, aok := b.BestAsk()
		line := b.Timestamp.Format(time.RFC3339Nano)
		if bok {
			line += fmt.Sprintf("  bid %.4f x %.2f", bid.Price, bid.Size)
		} else {
			line += "  bid -"
		}
		if aok {
			line += fmt.Sprintf("  ask %.4f x %.2f", ask.Price, ask.Size)
		} else {
			line += "  ask -"
		}
		fmt.Println(line)
	})
	if err != nil {
		return err
	}
	defer w.Close()

	tw, err := ex.WatchTrades(ctx, outcomeID, func(tr model.Trade) {
		fmt.Printf("%s  trade %-4s %.4f x %.2f\n",
			tr.Timestamp.Format(time.RFC3339Nano), tr.Side, tr.Price, tr.Amount)
	})
	if err != nil {
		return err
	}
	defer tw.Close()

	<-ctx.Done()
	return nil
}

func printMarkets(markets []model.Market) {
	for _, m := range markets {
		price := "-"
		if m.Yes != nil {
			price = fmt.Sprintf("%.2f", m.Yes.Price)
		} else if len(m.Outcomes) > 0 {
			price = fmt.Sprintf("%.2f", m.Outcomes[0].Price)
		}
		fmt.Printf("%-14s  %-60.60s  yes %s  vol24h %.0f\n",
			marketExchange(m), m.Title, price, m.Volume24h)
	}
}

// marketExchange infers the source exchange from the market's URL host.
func marketExchange(m model.Market) string {
	switch {
	case strings.Contains(m.URL, "polymarket.com"):
		return "polymarket"
	case strings.Contains(m.URL, "kalshi.com"):
		return "kalshi"
	default:
		return "?"
	}
}

func printBook(b *book.OrderBook, depth int) {
	asks := b.Asks
	if len(asks) > depth {
		asks = asks[:depth]
	}
	bids := b.Bids
	if len(bids) > depth {
		bids = bids[:depth]
	}

	// Asks print top-down so the spread sits in the middle.
	for i := len(asks) - 1; i >= 0; i-- {
		fmt.Printf("  ask  %.4f  %10.2f\n", asks[i].Price, asks[i].Size)
	}
	fmt.Println("  ----")
	for _, l := range bids {
		fmt.Printf("  bid  %.4f  %10.2f\n", l.Price, l.Size)
	}
	fmt.Printf("ts %s\n", b.Timestamp.Format(time.RFC3339Nano))
}
