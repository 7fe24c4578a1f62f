// Package exchange defines the unified method set every prediction-market
// adapter implements, plus the client-side aggregation helpers (sort,
// search, pagination) shared between them.
package exchange

import (
	"context"

	"github.com/pmxt-dev/pmxt/internal/book"
	"github.com/pmxt-dev/pmxt/internal/model"
)

// Watch is an active streaming subscription. Close releases the underlying
// session; after Close no further callbacks run.
type Watch interface {
	Close()
}

// Exchange is the unified interface over heterogeneous provider APIs.
// Deep-dive calls (book, trades, candles, watches) are keyed by outcome id
// — the provider-native token/ticker — never by market id.
type Exchange interface {
	Name() model.Exchange

	// Market data.
	FetchMarkets(ctx context.Context, filter model.MarketFilter) ([]model.Market, error)
	SearchMarkets(ctx context.Context, query string, filter model.MarketFilter) ([]model.Market, error)
	SearchEvents(ctx context.Context, query string, filter model.MarketFilter) ([]model.Event, error)
	GetMarketsBySlug(ctx context.Context, slug string) ([]model.Market, error)
	FetchOrderBook(ctx context.Context, outcomeID string) (*book.OrderBook, error)
	FetchTrades(ctx context.Context, outcomeID string, filter model.HistoryFilter) ([]model.Trade, error)
	FetchOHLCV(ctx context.Context, outcomeID string, filter model.HistoryFilter) ([]model.Candle, error)

	// Streaming.
	WatchOrderBook(ctx context.Context, outcomeID string, onUpdate func(*book.OrderBook)) (Watch, error)
	WatchTrades(ctx context.Context, outcomeID string, onTrade func(model.Trade)) (Watch, error)

	// Trading and account. Submission and signing are provider-specific;
	// the core contributes pre-trade pricing only.
	CreateOrder(ctx context.Context, params model.CreateOrderParams) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*model.Order, error)
	FetchOrder(ctx context.Context, orderID string) (*model.Order, error)
	FetchOpenOrders(ctx context.Context, marketID string) ([]model.Order, error)
	FetchBalance(ctx context.Context) ([]model.Balance, error)
	FetchPositions(ctx context.Context) ([]model.Position, error)
}

// GetExecutionPrice quotes the volume-weighted fill price for amount, or 0
// when the book cannot fully absorb it.
func GetExecutionPrice(b *book.OrderBook, side model.Side, amount float64) (float64, error) {
	return book.ExecutionPrice(b, string(side), amount)
}

// GetExecutionPriceDetailed returns fill price, fillable amount, and
// whether the full amount can be filled.
func GetExecutionPriceDetailed(b *book.OrderBook, side model.Side, amount float64) (book.ExecutionResult, error) {
	return book.ComputeExecution(b, string(side), amount)
}
