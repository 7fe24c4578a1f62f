package kalshi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pmxt-dev/pmxt/internal/exchange"
	"github.com/pmxt-dev/pmxt/internal/model"
)

const tickerC25 = "KXFED-25DEC-C25"

func testAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.CacheTTL = time.Minute
	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	return a
}

func writeJSON(w http.ResponseWriter, v any) {
	json.NewEncoder(w).Encode(v)
}

func catalogHandler(t *testing.T, seriesCalls *atomic.Int32) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "true", r.URL.Query().Get("with_nested_markets"))
		writeJSON(w, rawEventsPage{Events: []rawEvent{fedEvent()}})
	})
	mux.HandleFunc("/series/KXFED", func(w http.ResponseWriter, r *http.Request) {
		if seriesCalls != nil {
			seriesCalls.Add(1)
		}
		writeJSON(w, rawSeriesResponse{Series: rawSeries{
			Ticker:   "KXFED",
			Category: "Economics",
			Tags:     []string{"politics", "fed"},
		}})
	})
	return mux
}

func TestFetchMarketsWithSeriesTags(t *testing.T) {
	var seriesCalls atomic.Int32
	a := testAdapter(t, catalogHandler(t, &seriesCalls))

	markets, err := a.FetchMarkets(context.Background(), model.MarketFilter{})
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, tickerC25, markets[0].ID)
	assert.Equal(t, []string{"politics", "fed"}, markets[0].Tags, "tags inherited from the series")
	assert.Equal(t, int32(1), seriesCalls.Load())

	// A fresh catalog build reuses the longer-lived series cache.
	a.catalog.Invalidate()
	_, err = a.FetchMarkets(context.Background(), model.MarketFilter{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), seriesCalls.Load())
}

func TestSeriesFailureDegradesToEmptyTags(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, rawEventsPage{Events: []rawEvent{fedEvent()}})
	})
	mux.HandleFunc("/series/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	a := testAdapter(t, mux)

	markets, err := a.FetchMarkets(context.Background(), model.MarketFilter{})
	require.NoError(t, err, "series failure never fails the primary fetch")
	require.Len(t, markets, 1)
	assert.Empty(t, markets[0].Tags)
}

func TestFetchOrderBook(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/markets/"+tickerC25+"/orderbook", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, rawOrderbookResponse{Orderbook: rawOrderbook{
			Yes: [][2]int{{40, 100}},
			No:  [][2]int{{55, 80}},
		}})
	})
	a := testAdapter(t, mux)

	b, err := a.FetchOrderBook(context.Background(), tickerC25)
	require.NoError(t, err)
	require.NoError(t, b.Validate())

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.InDelta(t, 0.40, bid.Price, 1e-9)
	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.InDelta(t, 0.45, ask.Price, 1e-9, "NO side synthesized into asks")
}

func TestFetchOrderBookIdentifierDiscipline(t *testing.T) {
	a := testAdapter(t, http.NotFoundHandler())

	_, err := a.FetchOrderBook(context.Background(), "KXFED")
	assert.ErrorIs(t, err, exchange.ErrInvalidOutcomeID)

	_, err = a.FetchOrderBook(context.Background(), tickerC25)
	assert.ErrorIs(t, err, exchange.ErrOutcomeNotFound)
}

func TestFetchTradesPagination(t *testing.T) {
	var pages atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/markets/trades", func(w http.ResponseWriter, r *http.Request) {
		switch pages.Add(1) {
		case 1:
			assert.Empty(t, r.URL.Query().Get("cursor"))
			writeJSON(w, rawTradesPage{
				Trades: []rawTrade{{TradeID: "t1", YesPrice: 62, Count: 5, TakerSide: "yes", CreatedTime: "2025-06-01T00:00:00Z"}},
				Cursor: "next",
			})
		default:
			assert.Equal(t, "next", r.URL.Query().Get("cursor"))
			writeJSON(w, rawTradesPage{
				Trades: []rawTrade{{TradeID: "t2", YesPrice: 61, Count: 3, TakerSide: "no", CreatedTime: "2025-06-01T00:01:00Z"}},
			})
		}
	})
	a := testAdapter(t, mux)

	trades, err := a.FetchTrades(context.Background(), tickerC25, model.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int32(2), pages.Load(), "cursor followed until exhausted")
}

func TestFetchOHLCVFromTrades(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	mux := http.NewServeMux()
	mux.HandleFunc("/markets/trades", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, rawTradesPage{Trades: []rawTrade{
			{TradeID: "t1", YesPrice: 40, Count: 2, TakerSide: "yes", CreatedTime: base.Format(time.RFC3339)},
			{TradeID: "t2", YesPrice: 55, Count: 1, TakerSide: "yes", CreatedTime: base.Add(10 * time.Minute).Format(time.RFC3339)},
			{TradeID: "t3", YesPrice: 48, Count: 4, TakerSide: "no", CreatedTime: base.Add(30 * time.Minute).Format(time.RFC3339)},
		}})
	})
	a := testAdapter(t, mux)

	candles, err := a.FetchOHLCV(context.Background(), tickerC25, model.HistoryFilter{Resolution: "1h"})
	require.NoError(t, err)
	require.Len(t, candles, 1)

	c := candles[0]
	assert.Equal(t, base, c.Timestamp)
	assert.InDelta(t, 0.40, c.Open, 1e-9)
	assert.InDelta(t, 0.55, c.High, 1e-9)
	assert.InDelta(t, 0.40, c.Low, 1e-9)
	assert.InDelta(t, 0.48, c.Close, 1e-9)
	require.NotNil(t, c.Volume)
	assert.InDelta(t, 7, *c.Volume, 1e-9)
}

func TestTradingRequiresCredentials(t *testing.T) {
	a := testAdapter(t, http.NotFoundHandler())

	_, err := a.FetchBalance(context.Background())
	assert.ErrorIs(t, err, exchange.ErrAuthRequired)

	_, err = a.CancelOrder(context.Background(), "ord-1")
	assert.ErrorIs(t, err, exchange.ErrAuthRequired)
}
