package kalshi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pmxt-dev/pmxt/internal/model"
	"github.com/pmxt-dev/pmxt/internal/stream"
	"github.com/pmxt-dev/pmxt/internal/trade"
)

func testStream(t *testing.T, ticker string) (*marketStream, *stream.Reconciler) {
	t.Helper()
	ms := newMarketStream(DefaultWSURL, nil, zap.NewNop())
	rec := stream.NewReconciler(ticker, 0, zap.NewNop())
	ms.recs[ticker] = rec
	ms.native[ticker] = &liveBook{yes: make(map[int]int), no: make(map[int]int)}
	return ms, rec
}

func TestHandleSnapshotSynthesizesBook(t *testing.T) {
	ms, rec := testStream(t, tickerC25)

	ms.handleMessage([]byte(`{
		"type": "orderbook_snapshot",
		"seq": 10,
		"msg": {"market_ticker": "` + tickerC25 + `", "yes": [[40, 100]], "no": [[55, 80]]}
	}`))

	require.Equal(t, stream.StateSnapshotLoaded, rec.State())
	ev := <-ms.bookCh
	require.NoError(t, ev.Book.Validate())

	bid, ok := ev.Book.BestBid()
	require.True(t, ok)
	assert.InDelta(t, 0.40, bid.Price, 1e-9)
	ask, ok := ev.Book.BestAsk()
	require.True(t, ok)
	assert.InDelta(t, 0.45, ask.Price, 1e-9)
}

func TestHandleDeltaBothSides(t *testing.T) {
	ms, _ := testStream(t, tickerC25)

	ms.handleMessage([]byte(`{
		"type": "orderbook_snapshot",
		"seq": 10,
		"msg": {"market_ticker": "` + tickerC25 + `", "yes": [[40, 100]], "no": [[55, 80]]}
	}`))
	<-ms.bookCh

	// YES side: +50 at 41c.
	ms.handleMessage([]byte(`{
		"type": "orderbook_delta",
		"seq": 11,
		"msg": {"market_ticker": "` + tickerC25 + `", "price": 41, "delta": 50, "side": "yes"}
	}`))
	ev := <-ms.bookCh
	bid, ok := ev.Book.BestBid()
	require.True(t, ok)
	assert.InDelta(t, 0.41, bid.Price, 1e-9)
	assert.InDelta(t, 50, bid.Size, 1e-9)

	// NO side: drain the 55c level; the synthesized 0.45 ask disappears.
	ms.handleMessage([]byte(`{
		"type": "orderbook_delta",
		"seq": 12,
		"msg": {"market_ticker": "` + tickerC25 + `", "price": 55, "delta": -80, "side": "no"}
	}`))
	ev = <-ms.bookCh
	_, ok = ev.Book.BestAsk()
	assert.False(t, ok)
	require.NoError(t, ev.Book.Validate())
}

func TestHandleDeltaStaleSeqDiscarded(t *testing.T) {
	ms, rec := testStream(t, tickerC25)

	ms.handleMessage([]byte(`{
		"type": "orderbook_snapshot",
		"seq": 10,
		"msg": {"market_ticker": "` + tickerC25 + `", "yes": [[40, 100]], "no": []}
	}`))
	<-ms.bookCh

	ms.handleMessage([]byte(`{
		"type": "orderbook_delta",
		"seq": 9,
		"msg": {"market_ticker": "` + tickerC25 + `", "price": 41, "delta": 50, "side": "yes"}
	}`))
	assert.Empty(t, ms.bookCh, "delta at or before the snapshot seq is a no-op")
	assert.Equal(t, seqInstant(10), rec.Watermark())
}

func TestHandleTradeEmitsUnifiedTrade(t *testing.T) {
	ms, _ := testStream(t, tickerC25)

	ms.handleMessage([]byte(`{
		"type": "trade",
		"msg": {"market_ticker": "` + tickerC25 + `", "yes_price": 62, "count": 5, "taker_side": "no", "ts": 1748736000}
	}`))

	ev := <-ms.tradeCh
	assert.Equal(t, tickerC25, ev.OutcomeID)
	assert.InDelta(t, 0.62, ev.Trade.Price, 1e-9)
	assert.Equal(t, int64(1748736000), ev.Trade.Timestamp.Unix())
}

func TestStreamFeedsTradingGate(t *testing.T) {
	ms, _ := testStream(t, tickerC25)
	ms.ws = stream.NewWSClient(stream.DefaultWSConfig(DefaultWSURL), zap.NewNop())
	gate := trade.NewGate(trade.GateConfig{StaleThreshold: time.Minute, CoolOff: 0}, nil)
	ms.gate = gate

	ms.handleMessage([]byte(`{
		"type": "orderbook_snapshot",
		"seq": 10,
		"msg": {"market_ticker": "` + tickerC25 + `", "yes": [[40, 100]], "no": []}
	}`))
	<-ms.bookCh
	assert.True(t, gate.Allows(model.ExchangeKalshi, tickerC25))

	// Reconnect closes the gate until the resubscription snapshot lands.
	ms.onReconnect()
	assert.False(t, gate.Allows(model.ExchangeKalshi, tickerC25))

	ms.handleMessage([]byte(`{
		"type": "orderbook_snapshot",
		"seq": 20,
		"msg": {"market_ticker": "` + tickerC25 + `", "yes": [[40, 100]], "no": []}
	}`))
	<-ms.bookCh
	assert.True(t, gate.Allows(model.ExchangeKalshi, tickerC25))
}

func TestMessagesForUnwatchedTickerIgnored(t *testing.T) {
	ms := newMarketStream(DefaultWSURL, nil, zap.NewNop())

	ms.handleMessage([]byte(`{
		"type": "orderbook_snapshot",
		"seq": 1,
		"msg": {"market_ticker": "OTHER-1", "yes": [], "no": []}
	}`))
	assert.Empty(t, ms.bookCh)
}
