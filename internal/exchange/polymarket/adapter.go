// Package polymarket adapts the Polymarket Gamma and CLOB APIs to the
// unified exchange interface. Catalog discovery goes through Gamma events;
// every deep-dive call is keyed by CLOB token id.
package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

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

// TradingBackend submits and manages signed orders. Polymarket order
// submission requires EIP-712 wallet signing, which lives in an external
// signer process; the adapter only runs pre-trade checks before delegating.
type TradingBackend interface {
	CreateOrder(ctx context.Context, params model.CreateOrderParams) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*model.Order, error)
	FetchOrder(ctx context.Context, orderID string) (*model.Order, error)
	FetchOpenOrders(ctx context.Context, marketID string) ([]model.Order, error)
	FetchBalance(ctx context.Context) ([]model.Balance, error)
	FetchPositions(ctx context.Context) ([]model.Position, error)
}

// Config holds adapter tuning.
type Config struct {
	GammaURL string
	CLOBURL  string
	WSURL    string

	PageSize int
	MaxPages int
	CacheTTL time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		GammaURL: DefaultGammaURL,
		CLOBURL:  DefaultCLOBURL,
		WSURL:    DefaultWSURL,
		PageSize: 100,
		MaxPages: 20,
		CacheTTL: 60 * time.Second,
	}
}

// Adapter implements exchange.Exchange for Polymarket.
type Adapter struct {
	cfg     Config
	client  *Client
	logger  *zap.Logger
	catalog *cache.TTL[[]model.Event]
	stream  *marketStream
	trading TradingBackend
	gate    *trade.Gate
	checker *trade.Validator
}

// New creates a Polymarket adapter. trading may be nil; trading calls then
// fail with ErrAuthRequired.
func New(cfg Config, logger *zap.Logger, trading TradingBackend, opts ...rest.Option) *Adapter {
	a := &Adapter{
		cfg:     cfg,
		client:  NewClient(cfg.GammaURL, cfg.CLOBURL, logger, opts...),
		logger:  logger,
		catalog: cache.NewTTL[[]model.Event](cfg.CacheTTL, nil),
		trading: trading,
	}
	a.stream = newMarketStream(cfg.WSURL, a, logger)
	a.gate = trade.NewGate(trade.DefaultGateConfig(), func(model.Exchange) bool {
		return a.stream.connHealthy()
	})
	a.stream.gate = a.gate
	a.checker = trade.NewValidator(model.ExchangePolymarket, a.gate, func(outcomeID string) (*book.OrderBook, error) {
		return a.FetchOrderBook(context.Background(), outcomeID)
	})
	return a
}

// Name implements exchange.Exchange.
func (a *Adapter) Name() model.Exchange { return model.ExchangePolymarket }

// classify maps transport failures onto the shared error taxonomy.
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

// validateOutcomeID rejects ids that cannot be CLOB token ids. Token ids
// are long decimal strings (uint256); Gamma market ids are short. A market
// id passed here is a caller bug and is never silently coerced.
func validateOutcomeID(id string) error {
	if len(id) < 10 {
		return fmt.Errorf("%w: %q", exchange.ErrInvalidOutcomeID, id)
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %q", exchange.ErrInvalidOutcomeID, id)
		}
	}
	return nil
}

// events returns the normalized event catalog, served from the TTL cache.
// Population races at most duplicate the fetch, never corrupt the slot.
func (a *Adapter) events(ctx context.Context) ([]model.Event, error) {
	return a.catalog.GetOrFill(func() ([]model.Event, error) {
		return a.fetchAllEvents(ctx, 0)
	})
}

func (a *Adapter) fetchAllEvents(ctx context.Context, target int) ([]model.Event, error) {
	pager := exchange.Pager{MaxPages: a.cfg.MaxPages, Target: target}

	var out []model.Event
	for page := 0; ; page++ {
		raw, err := a.client.ListEvents(ctx, a.cfg.PageSize, page*a.cfg.PageSize)
		if err != nil {
			return nil, classify(err)
		}
		for i := range raw {
			if ev, ok := normalizeEvent(&raw[i], a.logger); ok {
				out = append(out, ev)
			}
		}
		if len(raw) < a.cfg.PageSize || pager.Done(page+1, len(out)) {
			return out, nil
		}
	}
}

// flatten collects every market across events, one defensive copy per call
// so callers can mutate results without touching the cache.
func flatten(events []model.Event) []model.Market {
	var out []model.Market
	for i := range events {
		out = append(out, events[i].Markets...)
	}
	return out
}

// degrade logs a transient discovery failure and swaps in an empty result.
func (a *Adapter) degrade(err error) error {
	if errors.Is(err, exchange.ErrTransient) {
		a.logger.Warn("discovery degraded to empty result", zap.Error(err))
		return nil
	}
	return err
}

// FetchMarkets implements exchange.Exchange. Aggregation is client-side:
// full catalog, then sort, then limit/offset.
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

// SearchEvents implements exchange.Exchange. An event matches when its
// title or any of its markets match.
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

// GetMarketsBySlug implements exchange.Exchange. Slug lookup bypasses the
// catalog cache; it is a point read.
func (a *Adapter) GetMarketsBySlug(ctx context.Context, slug string) ([]model.Market, error) {
	raw, err := a.client.EventsBySlug(ctx, slug)
	if err != nil {
		return nil, classify(err)
	}
	var out []model.Market
	for i := range raw {
		if ev, ok := normalizeEvent(&raw[i], a.logger); ok {
			out = append(out, ev.Markets...)
		}
	}
	return out, nil
}

// FetchOrderBook implements exchange.Exchange. An empty book is valid and
// returned as empty sides, not an error.
func (a *Adapter) FetchOrderBook(ctx context.Context, outcomeID string) (*book.OrderBook, error) {
	if err := validateOutcomeID(outcomeID); err != nil {
		return nil, err
	}
	raw, err := a.client.Book(ctx, outcomeID)
	if err != nil {
		return nil, classify(err)
	}
	return normalizeBook(raw), nil
}

// FetchTrades implements exchange.Exchange.
func (a *Adapter) FetchTrades(ctx context.Context, outcomeID string, filter model.HistoryFilter) ([]model.Trade, error) {
	if err := validateOutcomeID(outcomeID); err != nil {
		return nil, err
	}
	raw, err := a.client.Trades(ctx, outcomeID, filter.Limit)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]model.Trade, 0, len(raw))
	for i := range raw {
		t, ok := normalizeTrade(&raw[i])
		if !ok {
			a.logger.Warn("dropping malformed trade",
				zap.String("outcome_id", outcomeID), zap.String("trade_id", raw[i].ID))
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
	return out, nil
}

// FetchOHLCV implements exchange.Exchange. The CLOB exposes raw price
// samples, not native candles, so the aggregator buckets them locally.
func (a *Adapter) FetchOHLCV(ctx context.Context, outcomeID string, filter model.HistoryFilter) ([]model.Candle, error) {
	if err := validateOutcomeID(outcomeID); err != nil {
		return nil, err
	}
	resolution := filter.Resolution
	if resolution == "" {
		resolution = "1h"
	}
	interval, err := candle.ParseInterval(resolution)
	if err != nil {
		return nil, err
	}

	var start, end int64
	if filter.Start != nil {
		start = filter.Start.Unix()
	}
	if filter.End != nil {
		end = filter.End.Unix()
	}
	fidelity := int(interval / time.Minute)

	raw, err := a.client.PriceHistory(ctx, outcomeID, start, end, fidelity)
	if err != nil {
		return nil, classify(err)
	}

	points := make([]candle.Point, 0, len(raw))
	for _, p := range raw {
		points = append(points, candle.Point{
			Timestamp: time.Unix(p.T, 0).UTC(),
			Price:     p.P,
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

// CreateOrder implements exchange.Exchange. Pre-trade checks run locally;
// submission is delegated to the signing backend.
func (a *Adapter) CreateOrder(ctx context.Context, params model.CreateOrderParams) (*model.Order, error) {
	if err := validateOutcomeID(params.OutcomeID); err != nil {
		return nil, err
	}
	if err := a.checker.Validate(params); err != nil {
		return nil, err
	}
	if a.trading == nil {
		return nil, exchange.ErrAuthRequired
	}
	return a.trading.CreateOrder(ctx, params)
}

// CancelOrder implements exchange.Exchange.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) (*model.Order, error) {
	if a.trading == nil {
		return nil, exchange.ErrAuthRequired
	}
	return a.trading.CancelOrder(ctx, orderID)
}

// FetchOrder implements exchange.Exchange.
func (a *Adapter) FetchOrder(ctx context.Context, orderID string) (*model.Order, error) {
	if a.trading == nil {
		return nil, exchange.ErrAuthRequired
	}
	return a.trading.FetchOrder(ctx, orderID)
}

// FetchOpenOrders implements exchange.Exchange.
func (a *Adapter) FetchOpenOrders(ctx context.Context, marketID string) ([]model.Order, error) {
	if a.trading == nil {
		return nil, exchange.ErrAuthRequired
	}
	return a.trading.FetchOpenOrders(ctx, marketID)
}

// FetchBalance implements exchange.Exchange.
func (a *Adapter) FetchBalance(ctx context.Context) ([]model.Balance, error) {
	if a.trading == nil {
		return nil, exchange.ErrAuthRequired
	}
	return a.trading.FetchBalance(ctx)
}

// FetchPositions implements exchange.Exchange.
func (a *Adapter) FetchPositions(ctx context.Context) ([]model.Position, error) {
	if a.trading == nil {
		return nil, exchange.ErrAuthRequired
	}
	return a.trading.FetchPositions(ctx)
}

// BookFeed starts the stream if needed and returns the reconciled book
// firehose, consumed by the redis publisher.
func (a *Adapter) BookFeed(ctx context.Context) (*stream.Broadcaster[stream.BookEvent], error) {
	if err := a.stream.ensureStarted(ctx); err != nil {
		return nil, err
	}
	return a.stream.bookFeed(), nil
}

// InvalidateCatalog drops the cached event catalog.
func (a *Adapter) InvalidateCatalog() { a.catalog.Invalidate() }

// Close shuts down any live stream session.
func (a *Adapter) Close() { a.stream.close() }
