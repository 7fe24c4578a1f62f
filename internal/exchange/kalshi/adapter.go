// Package kalshi adapts the Kalshi trade API to the unified exchange
// interface. Market tickers double as outcome ids; every book is the
// YES-side view with the NO side folded in by synthesis.
package kalshi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pmxt-dev/pmxt/internal/book"
	"github.com/pmxt-dev/pmxt/internal/cache"
	"github.com/pmxt-dev/pmxt/internal/candle"
	"github.com/pmxt-dev/pmxt/internal/exchange"
	"github.com/pmxt-dev/pmxt/internal/exchange/rest"
	"github.com/pmxt-dev/pmxt/internal/model"
	"github.com/pmxt-dev/pmxt/internal/stream"
	"github.com/pmxt-dev/pmxt/internal/trade"
)

// Config holds adapter tuning and credentials.
type Config struct {
	BaseURL string
	WSURL   string

	// Credentials for portfolio endpoints and the stream upgrade. Empty
	// means market data only.
	APIKey        string
	PrivateKeyPEM []byte

	PageSize          int
	MaxPages          int
	CacheTTL          time.Duration
	SeriesConcurrency int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		WSURL:             DefaultWSURL,
		PageSize:          200,
		MaxPages:          20,
		CacheTTL:          60 * time.Second,
		SeriesConcurrency: 8,
	}
}

// Adapter implements exchange.Exchange for Kalshi.
type Adapter struct {
	cfg     Config
	client  *Client
	logger  *zap.Logger
	signer  *Signer
	catalog *cache.TTL[[]model.Event]
	series  *cache.TTL[map[string][]string]
	stream  *marketStream
	gate    *trade.Gate
	checker *trade.Validator
}

// New creates a Kalshi adapter. Credential parsing failures surface here,
// not on the first signed call.
func New(cfg Config, logger *zap.Logger, opts ...rest.Option) (*Adapter, error) {
	var signer *Signer
	if cfg.APIKey != "" && len(cfg.PrivateKeyPEM) > 0 {
		var err error
		signer, err = NewSigner(cfg.APIKey, cfg.PrivateKeyPEM)
		if err != nil {
			return nil, err
		}
	}

	a := &Adapter{
		cfg:     cfg,
		client:  NewClient(cfg.BaseURL, logger, signer, opts...),
		logger:  logger,
		signer:  signer,
		catalog: cache.NewTTL[[]model.Event](cfg.CacheTTL, nil),
		series:  cache.NewTTL[map[string][]string](10*cfg.CacheTTL, nil),
	}
	a.stream = newMarketStream(cfg.WSURL, signer, logger)
	a.gate = trade.NewGate(trade.DefaultGateConfig(), func(model.Exchange) bool {
		return a.stream.connHealthy()
	})
	a.stream.gate = a.gate
	a.checker = trade.NewValidator(model.ExchangeKalshi, a.gate, func(outcomeID string) (*book.OrderBook, error) {
		return a.FetchOrderBook(context.Background(), outcomeID)
	})
	return a, nil
}

// Name implements exchange.Exchange.
func (a *Adapter) Name() model.Exchange { return model.ExchangeKalshi }

func classify(err error) error {
	var apiErr *rest.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %v", exchange.ErrOutcomeNotFound, err)
		}
		if apiErr.IsRetryable() {
			return fmt.Errorf("%w: %v", exchange.ErrTransient, err)
		}
		return err
	}
	if rest.IsTransient(err) {
		return fmt.Errorf("%w: %v", exchange.ErrTransient, err)
	}
	return err
}

// validateOutcomeID rejects ids that cannot be market tickers. Tickers are
// uppercase with dash separators; anything else is a caller bug surfaced
// immediately rather than coerced into a lookup.
func validateOutcomeID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty ticker", exchange.ErrInvalidOutcomeID)
	}
	dash := false
	for _, r := range id {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
		case r == '-':
			dash = true
		default:
			return fmt.Errorf("%w: %q", exchange.ErrInvalidOutcomeID, id)
		}
	}
	if !dash {
		return fmt.Errorf("%w: %q", exchange.ErrInvalidOutcomeID, id)
	}
	return nil
}

// seriesTags resolves tags for the given series tickers, reusing the
// longer-lived series cache and fetching only what is missing. Fetches run
// concurrently; a failed series degrades to no tags rather than failing
// the catalog.
func (a *Adapter) seriesTags(ctx context.Context, tickers map[string]struct{}) map[string][]string {
	known, _ := a.series.Get()
	tags := make(map[string][]string, len(tickers))
	var missing []string
	for t := range tickers {
		if cached, ok := known[t]; ok {
			tags[t] = cached
		} else {
			missing = append(missing, t)
		}
	}
	if len(missing) == 0 {
		return tags
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, a.cfg.SeriesConcurrency)
	)
	for _, ticker := range missing {
		wg.Add(1)
		sem <- struct{}{}
		go func(ticker string) {
			defer wg.Done()
			defer func() { <-sem }()

			s, err := a.client.Series(ctx, ticker)
			if err != nil {
				a.logger.Warn("series fetch degraded to empty tags",
					zap.String("series", ticker), zap.Error(err))
				return
			}
			mu.Lock()
			tags[ticker] = backfillTags(s.Tags, []string{s.Category})
			mu.Unlock()
		}(ticker)
	}
	wg.Wait()

	merged := make(map[string][]string, len(known)+len(tags))
	for k, v := range known {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}
	a.series.Set(merged)
	return tags
}

func (a *Adapter) events(ctx context.Context) ([]model.Event, error) {
	return a.catalog.GetOrFill(func() ([]model.Event, error) {
		return a.fetchAllEvents(ctx)
	})
}

func (a *Adapter) fetchAllEvents(ctx context.Context) ([]model.Event, error) {
	pager := exchange.Pager{MaxPages: a.cfg.MaxPages}

	var raws []rawEvent
	cursor := ""
	for page := 0; ; page++ {
		resp, err := a.client.ListEvents(ctx, a.cfg.PageSize, cursor)
		if err != nil {
			return nil, classify(err)
		}
		raws = append(raws, resp.Events...)
		cursor = resp.Cursor
		if cursor == "" || pager.Done(page+1, len(raws)) {
			break
		}
	}

	tickers := make(map[string]struct{})
	for i := range raws {
		if raws[i].SeriesTicker != "" {
			tickers[raws[i].SeriesTicker] = struct{}{}
		}
	}
	tags := a.seriesTags(ctx, tickers)

	var out []model.Event
	for i := range raws {
		if ev, ok := normalizeEvent(&raws[i], tags, a.logger); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func flatten(events []model.Event) []model.Market {
	var out []model.Market
	for i := range events {
		out = append(out, events[i].Markets...)
	}
	return out
}

func (a *Adapter) degrade(err error) error {
	if errors.Is(err, exchange.ErrTransient) {
		a.logger.Warn("discovery degraded to empty result", zap.Error(err))
		return nil
	}
	return err
}

// FetchMarkets implements exchange.Exchange.
func (a *Adapter) FetchMarkets(ctx context.Context, filter model.MarketFilter) ([]model.Market, error) {
	events, err := a.events(ctx)
	if err != nil {
		return nil, a.degrade(err)
	}
	markets := flatten(events)
	exchange.SortMarkets(markets, filter.Sort)
	return exchange.Paginate(markets, filter.Limit, filter.Offset), nil
}

// SearchMarkets implements exchange.Exchange.
func (a *Adapter) SearchMarkets(ctx context.Context, query string, filter model.MarketFilter) ([]model.Market, error) {
	events, err := a.events(ctx)
	if err != nil {
		return nil, a.degrade(err)
	}
	markets := exchange.FilterMarkets(flatten(events), query, filter.SearchIn)
	exchange.SortMarkets(markets, filter.Sort)
	return exchange.Paginate(markets, filter.Limit, filter.Offset), nil
}

// SearchEvents implements exchange.Exchange.
func (a *Adapter) SearchEvents(ctx context.Context, query string, filter model.MarketFilter) ([]model.Event, error) {
	events, err := a.events(ctx)
	if err != nil {
		return nil, a.degrade(err)
	}
	var out []model.Event
	for i := range events {
		ev := events[i]
		if exchange.MatchMarket(&model.Market{Title: ev.Title, Description: ev.Description}, query, filter.SearchIn) ||
			len(ev.SearchMarkets(query, filter.SearchIn)) > 0 {
			out = append(out, ev)
		}
	}
	return exchange.Paginate(out, filter.Limit, filter.Offset), nil
}

// GetMarketsBySlug implements exchange.Exchange. Kalshi slugs are
// lowercased event tickers.
func (a *Adapter) GetMarketsBySlug(ctx context.Context, slug string) ([]model.Market, error) {
	events, err := a.events(ctx)
	if err != nil {
		return nil, a.degrade(err)
	}
	for i := range events {
		if events[i].Slug == slug {
			return events[i].Markets, nil
		}
	}
	return nil, nil
}

// FetchOrderBook implements exchange.Exchange. An empty book is valid.
func (a *Adapter) FetchOrderBook(ctx context.Context, outcomeID string) (*book.OrderBook, error) {
	if err := validateOutcomeID(outcomeID); err != nil {
		return nil, err
	}
	raw, err := a.client.Orderbook(ctx, outcomeID, 0)
	if err != nil {
		return nil, classify(err)
	}
	return normalizeBook(raw, time.Now().UTC()), nil
}

// FetchTrades implements exchange.Exchange. Pagination is cursor-driven
// with the shared page ceiling and overfetch stop.
func (a *Adapter) FetchTrades(ctx context.Context, outcomeID string, filter model.HistoryFilter) ([]model.Trade, error) {
	if err := validateOutcomeID(outcomeID); err != nil {
		return nil, err
	}
	pager := exchange.Pager{MaxPages: a.cfg.MaxPages, Target: filter.Limit}

	var out []model.Trade
	cursor := ""
	for page := 0; ; page++ {
		resp, err := a.client.Trades(ctx, outcomeID, a.cfg.PageSize, cursor)
		if err != nil {
			return nil, classify(err)
		}
		for i := range resp.Trades {
			t, ok := normalizeTrade(&resp.Trades[i])
			if !ok {
				a.logger.Warn("dropping malformed trade",
					zap.String("ticker", outcomeID), zap.String("trade_id", resp.Trades[i].TradeID))
				continue
			}
			if filter.Start != nil && t.Timestamp.Before(*filter.Start) {
				continue
			}
			if filter.End != nil && t.Timestamp.After(*filter.End) {
				continue
			}
			out = append(out, t)
		}
		cursor = resp.Cursor
		if cursor == "" || pager.Done(page+1, len(out)) {
			break
		}
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// FetchOHLCV implements exchange.Exchange. Candles are aggregated locally
// from the trade tape so the resolution set matches the unified intervals
// instead of the provider's native periods.
func (a *Adapter) FetchOHLCV(ctx context.Context, outcomeID string, filter model.HistoryFilter) ([]model.Candle, error) {
	if err := validateOutcomeID(outcomeID); err != nil {
		return nil, err
	}
	resolution := filter.Resolution
	if resolution == "" {
		resolution = "1h"
	}
	if _, err := candle.ParseInterval(resolution); err != nil {
		return nil, err
	}

	trades, err := a.FetchTrades(ctx, outcomeID, model.HistoryFilter{Start: filter.Start, End: filter.End})
	if err != nil {
		return nil, err
	}

	points := make([]candle.Point, 0, len(trades))
	for _, t := range trades {
		points = append(points, candle.Point{
			Timestamp: t.Timestamp,
			Price:     t.Price,
			Volume:    t.Amount,
		})
	}
	candles, err := candle.Aggregate(points, resolution)
	if err != nil {
		return nil, err
	}
	if filter.Limit > 0 && len(candles) > filter.Limit {
		candles = candles[len(candles)-filter.Limit:]
	}
	return candles, nil
}

// WatchOrderBook implements exchange.Exchange.
func (a *Adapter) WatchOrderBook(ctx context.Context, outcomeID string, onUpdate func(*book.OrderBook)) (exchange.Watch, error) {
	if err := validateOutcomeID(outcomeID); err != nil {
		return nil, err
	}
	return a.stream.watchBook(ctx, outcomeID, onUpdate)
}

// WatchTrades implements exchange.Exchange.
func (a *Adapter) WatchTrades(ctx context.Context, outcomeID string, onTrade func(model.Trade)) (exchange.Watch, error) {
	if err := validateOutcomeID(outcomeID); err != nil {
		return nil, err
	}
	return a.stream.watchTrades(ctx, outcomeID, onTrade)
}

// CreateOrder implements exchange.Exchange. Orders are always expressed
// against the YES outcome; a unified sell is a YES sell.
func (a *Adapter) CreateOrder(ctx context.Context, params model.CreateOrderParams) (*model.Order, error) {
	if err := validateOutcomeID(params.OutcomeID); err != nil {
		return nil, err
	}
	if err := a.checker.Validate(params); err != nil {
		return nil, err
	}
	if !a.client.Authenticated() {
		return nil, exchange.ErrAuthRequired
	}

	req := createOrderRequest{
		Ticker:        params.OutcomeID,
		ClientOrderID: uuid.NewString(),
		Side:          "yes",
		Action:        string(params.Side),
		Type:          "market",
		Count:         int(math.Round(params.Amount)),
	}
	if params.Type == model.LimitOrder {
		req.Type = "limit"
		req.YesPrice = int(math.Round(*params.Price * 100))
	}

	raw, err := a.client.CreateOrder(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	return normalizeOrder(raw), nil
}

// CancelOrder implements exchange.Exchange.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) (*model.Order, error) {
	if !a.client.Authenticated() {
		return nil, exchange.ErrAuthRequired
	}
	raw, err := a.client.CancelOrder(ctx, orderID)
	if err != nil {
		return nil, classify(err)
	}
	return normalizeOrder(raw), nil
}

// FetchOrder implements exchange.Exchange.
func (a *Adapter) FetchOrder(ctx context.Context, orderID string) (*model.Order, error) {
	if !a.client.Authenticated() {
		return nil, exchange.ErrAuthRequired
	}
	raw, err := a.client.Order(ctx, orderID)
	if err != nil {
		return nil, classify(err)
	}
	return normalizeOrder(raw), nil
}

// FetchOpenOrders implements exchange.Exchange.
func (a *Adapter) FetchOpenOrders(ctx context.Context, marketID string) ([]model.Order, error) {
	if !a.client.Authenticated() {
		return nil, exchange.ErrAuthRequired
	}
	pager := exchange.Pager{MaxPages: a.cfg.MaxPages}

	var out []model.Order
	cursor := ""
	for page := 0; ; page++ {
		resp, err := a.client.OpenOrders(ctx, marketID, cursor)
		if err != nil {
			return nil, classify(err)
		}
		for i := range resp.Orders {
			out = append(out, *normalizeOrder(&resp.Orders[i]))
		}
		cursor = resp.Cursor
		if cursor == "" || pager.Done(page+1, len(out)) {
			break
		}
	}
	return out, nil
}

// FetchBalance implements exchange.Exchange.
func (a *Adapter) FetchBalance(ctx context.Context) ([]model.Balance, error) {
	if !a.client.Authenticated() {
		return nil, exchange.ErrAuthRequired
	}
	raw, err := a.client.Balance(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return []model.Balance{normalizeBalance(raw)}, nil
}

// FetchPositions implements exchange.Exchange.
func (a *Adapter) FetchPositions(ctx context.Context) ([]model.Position, error) {
	if !a.client.Authenticated() {
		return nil, exchange.ErrAuthRequired
	}
	pager := exchange.Pager{MaxPages: a.cfg.MaxPages}

	var out []model.Position
	cursor := ""
	for page := 0; ; page++ {
		resp, err := a.client.Positions(ctx, cursor)
		if err != nil {
			return nil, classify(err)
		}
		for i := range resp.MarketPositions {
			out = append(out, normalizePosition(&resp.MarketPositions[i]))
		}
		cursor = resp.Cursor
		if cursor == "" || pager.Done(page+1, len(out)) {
			break
		}
	}
	return out, nil
}

// BookFeed starts the stream if needed and returns the reconciled book
// firehose.
func (a *Adapter) BookFeed(ctx context.Context) (*stream.Broadcaster[stream.BookEvent], error) {
	if err := a.stream.ensureStarted(ctx); err != nil {
		return nil, err
	}
	return a.stream.bookFeed(), nil
}

// InvalidateCatalog drops the cached catalogs.
func (a *Adapter) InvalidateCatalog() {
	a.catalog.Invalidate()
	a.series.Invalidate()
}

// Close shuts down any live stream session.
func (a *Adapter) Close() { a.stream.close() }
