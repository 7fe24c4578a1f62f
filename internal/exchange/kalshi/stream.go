package kalshi

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pmxt-dev/pmxt/internal/book"
	"github.com/pmxt-dev/pmxt/internal/model"
	"github.com/pmxt-dev/pmxt/internal/stream"
	"github.com/pmxt-dev/pmxt/internal/trade"
)

// WebSocket command envelope.
type wsCommand struct {
	ID     int             `json:"id"`
	Cmd    string          `json:"cmd"`
	Params wsCommandParams `json:"params"`
}

type wsCommandParams struct {
	Channels     []string `json:"channels"`
	MarketTicker string   `json:"market_ticker"`
}

type wsEnvelope struct {
	Type string `json:"type"`
}

type wsSnapshot struct {
	Seq int64 `json:"seq"`
	Msg struct {
		MarketTicker string   `json:"market_ticker"`
		Yes          [][2]int `json:"yes"`
		No           [][2]int `json:"no"`
	} `json:"msg"`
}

type wsDelta struct {
	Seq int64 `json:"seq"`
	Msg struct {
		MarketTicker string `json:"market_ticker"`
		Price        int    `json:"price"`
		Delta        int    `json:"delta"`
		Side         string `json:"side"`
	} `json:"msg"`
}

type wsTrade struct {
	Msg struct {
		MarketTicker string  `json:"market_ticker"`
		YesPrice     int     `json:"yes_price"`
		Count        float64 `json:"count"`
		TakerSide    string  `json:"taker_side"`
		Ts           int64   `json:"ts"`
	} `json:"msg"`
}

// seqInstant encodes a stream sequence number as the synthetic instant the
// reconciler orders updates by. Sequences are per-connection monotonic,
// which is exactly the watermark contract.
func seqInstant(seq int64) time.Time {
	return time.Unix(0, seq)
}

// liveBook tracks native per-side depth in cents for one subscribed
// ticker. Deltas arrive as quantity changes, so absolute sizes have to be
// reconstructed before the unified update is applied.
type liveBook struct {
	yes map[int]int
	no  map[int]int
}

// marketStream owns the Kalshi stream connection: one shared socket, one
// reconciler and native depth map per watched ticker.
type marketStream struct {
	url    string
	signer *Signer
	logger *zap.Logger
	gate   *trade.Gate

	mu      sync.Mutex
	started bool
	ws      *stream.WSClient
	cancel  context.CancelFunc
	cmdID   int
	recs    map[string]*stream.Reconciler
	native  map[string]*liveBook

	books   *stream.Broadcaster[stream.BookEvent]
	trades  *stream.Broadcaster[stream.TradeEvent]
	bookCh  chan stream.BookEvent
	tradeCh chan stream.TradeEvent

	sessions *stream.SessionManager
}

func newMarketStream(url string, signer *Signer, logger *zap.Logger) *marketStream {
	ms := &marketStream{
		url:     url,
		signer:  signer,
		logger:  logger,
		recs:    make(map[string]*stream.Reconciler),
		native:  make(map[string]*liveBook),
		bookCh:  make(chan stream.BookEvent, 1024),
		tradeCh: make(chan stream.TradeEvent, 1024),
	}
	ms.sessions = stream.NewSessionManager(ms.startSession, logger)
	return ms
}

func (ms *marketStream) ensureStarted(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.started {
		return nil
	}

	cfg := stream.DefaultWSConfig(ms.url)
	if ms.signer != nil {
		headers, err := ms.signer.WSHeaders(wsPath)
		if err != nil {
			return err
		}
		cfg.Headers = headers
	}

	runCtx, cancel := context.WithCancel(context.Background())

	ws := stream.NewWSClient(cfg, ms.logger)
	ws.OnReconnect(ms.onReconnect)
	if err := ws.Connect(ctx); err != nil {
		cancel()
		return err
	}

	ms.ws = ws
	ms.cancel = cancel
	ms.books = stream.NewBroadcaster[stream.BookEvent](ms.logger)
	ms.trades = stream.NewBroadcaster[stream.TradeEvent](ms.logger)
	ms.books.Register(ms.bookCh)
	ms.trades.Register(ms.tradeCh)
	go ms.books.Run(runCtx)
	go ms.trades.Run(runCtx)
	go ms.readLoop(runCtx, ws.Subscribe())

	ms.started = true
	return nil
}

func (ms *marketStream) startSession(outcomeID string, rec *stream.Reconciler) (func(), error) {
	ms.mu.Lock()
	ms.recs[outcomeID] = rec
	ms.native[outcomeID] = &liveBook{yes: make(map[int]int), no: make(map[int]int)}
	ms.mu.Unlock()

	ms.subscribe(outcomeID)

	return func() {
		ms.mu.Lock()
		delete(ms.recs, outcomeID)
		delete(ms.native, outcomeID)
		ms.mu.Unlock()
	}, nil
}

func (ms *marketStream) subscribe(outcomeID string) {
	ms.mu.Lock()
	ms.cmdID++
	id := ms.cmdID
	ms.mu.Unlock()

	msg, _ := json.Marshal(wsCommand{
		ID:  id,
		Cmd: "subscribe",
		Params: wsCommandParams{
			Channels:     []string{"orderbook_delta", "trade"},
			MarketTicker: outcomeID,
		},
	})
	ms.ws.Send(msg)
}

// onReconnect resets every live reconciler and resubscribes; the exchange
// answers each subscription with a fresh snapshot. The trading gate stays
// closed per outcome until that snapshot lands.
func (ms *marketStream) onReconnect() {
	ms.mu.Lock()
	ids := make([]string, 0, len(ms.recs))
	for id, rec := range ms.recs {
		rec.Reset()
		ms.native[id] = &liveBook{yes: make(map[int]int), no: make(map[int]int)}
		ids = append(ids, id)
	}
	ms.mu.Unlock()

	for _, id := range ids {
		if ms.gate != nil {
			ms.gate.MarkStale(model.ExchangeKalshi, id)
		}
		ms.subscribe(id)
	}
}

// connHealthy reports whether the shared socket is up. Before the first
// watch there is no socket and no live data to be stale against.
func (ms *marketStream) connHealthy() bool {
	ms.mu.Lock()
	ws := ms.ws
	ms.mu.Unlock()
	return ws != nil && ws.State() == stream.ConnHealthy
}

func (ms *marketStream) readLoop(ctx context.Context, raw <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-raw:
			if !ok {
				return
			}
			ms.handleMessage(msg)
		}
	}
}

func (ms *marketStream) handleMessage(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		ms.logger.Warn("invalid stream message", zap.Error(err))
		return
	}

	switch env.Type {
	case "orderbook_snapshot":
		ms.handleSnapshot(raw)
	case "orderbook_delta":
		ms.handleDelta(raw)
	case "trade":
		ms.handleTrade(raw)
	case "error":
		ms.logger.Warn("exchange stream error", zap.ByteString("raw", raw))
	default:
		// Subscription acks and heartbeats.
	}
}

func (ms *marketStream) handleSnapshot(raw []byte) {
	var snap wsSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		ms.logger.Warn("invalid snapshot", zap.Error(err))
		return
	}
	ticker := snap.Msg.MarketTicker

	ms.mu.Lock()
	rec := ms.recs[ticker]
	lb := ms.native[ticker]
	if rec == nil || lb == nil {
		ms.mu.Unlock()
		return
	}
	lb.yes = make(map[int]int, len(snap.Msg.Yes))
	lb.no = make(map[int]int, len(snap.Msg.No))
	for _, l := range snap.Msg.Yes {
		lb.yes[l[0]] = l[1]
	}
	for _, l := range snap.Msg.No {
		lb.no[l[0]] = l[1]
	}
	yes := centsMapLevels(lb.yes)
	no := centsMapLevels(lb.no)
	ms.mu.Unlock()

	merged, err := rec.LoadSnapshot(book.SynthesizeFromComplement(yes, no, seqInstant(snap.Seq)))
	if err != nil {
		ms.logger.Warn("snapshot rejected", zap.String("outcome", ticker), zap.Error(err))
		return
	}
	ms.emitBook(ticker, merged)
}

func (ms *marketStream) handleDelta(raw []byte) {
	var delta wsDelta
	if err := json.Unmarshal(raw, &delta); err != nil {
		ms.logger.Warn("invalid delta", zap.Error(err))
		return
	}
	ticker := delta.Msg.MarketTicker

	ms.mu.Lock()
	rec := ms.recs[ticker]
	lb := ms.native[ticker]
	if rec == nil || lb == nil {
		ms.mu.Unlock()
		return
	}

	side := lb.yes
	if delta.Msg.Side == "no" {
		side = lb.no
	}
	qty := side[delta.Msg.Price] + delta.Msg.Delta
	if qty <= 0 {
		qty = 0
		delete(side, delta.Msg.Price)
	} else {
		side[delta.Msg.Price] = qty
	}
	ms.mu.Unlock()

	// A NO bid at p cents is a YES ask at 1 - p/100.
	u := book.Update{
		Side:      book.Bid,
		Price:     centsToPrice(delta.Msg.Price),
		Size:      float64(qty),
		Timestamp: seqInstant(delta.Seq),
	}
	if delta.Msg.Side == "no" {
		u.Side = book.Ask
		u.Price = complementPrice(u.Price)
	}

	snap, err := rec.ApplyUpdate(u)
	if err != nil {
		ms.logger.Warn("update rejected", zap.String("outcome", ticker), zap.Error(err))
		return
	}
	if snap != nil {
		ms.emitBook(ticker, snap)
	}
}

func (ms *marketStream) handleTrade(raw []byte) {
	var tr wsTrade
	if err := json.Unmarshal(raw, &tr); err != nil {
		ms.logger.Warn("invalid trade", zap.Error(err))
		return
	}
	ticker := tr.Msg.MarketTicker

	price := centsToPrice(tr.Msg.YesPrice)
	if price < 0 || price > 1 || tr.Msg.Count <= 0 {
		ms.logger.Warn("dropping malformed stream trade", zap.String("outcome", ticker))
		return
	}
	side := model.TradeUnknown
	switch tr.Msg.TakerSide {
	case "yes":
		side = model.TradeBuy
	case "no":
		side = model.TradeSell
	}

	select {
	case ms.tradeCh <- stream.TradeEvent{
		Exchange:  model.ExchangeKalshi,
		OutcomeID: ticker,
		Trade: model.Trade{
			Timestamp: time.Unix(tr.Msg.Ts, 0).UTC(),
			Price:     price,
			Amount:    tr.Msg.Count,
			Side:      side,
		},
	}:
	default:
		ms.logger.Warn("trade channel full, dropping", zap.String("outcome", ticker))
	}
}

func centsMapLevels(m map[int]int) []book.Level {
	out := make([]book.Level, 0, len(m))
	for price, qty := range m {
		if qty <= 0 {
			continue
		}
		out = append(out, book.Level{Price: centsToPrice(price), Size: float64(qty)})
	}
	return out
}

func (ms *marketStream) emitBook(outcomeID string, b *book.OrderBook) {
	if ms.gate != nil {
		ms.gate.RecordUpdate(model.ExchangeKalshi, outcomeID)
	}
	select {
	case ms.bookCh <- stream.BookEvent{
		Exchange:  model.ExchangeKalshi,
		OutcomeID: outcomeID,
		Book:      b,
		Timestamp: b.Timestamp,
	}:
	default:
		ms.logger.Warn("book channel full, dropping", zap.String("outcome", outcomeID))
	}
}

type watchHandle struct {
	once    sync.Once
	closeFn func()
}

func (w *watchHandle) Close() { w.once.Do(w.closeFn) }

func (ms *marketStream) watchBook(ctx context.Context, outcomeID string, onUpdate func(*book.OrderBook)) (*watchHandle, error) {
	if err := ms.ensureStarted(ctx); err != nil {
		return nil, err
	}
	_, release, err := ms.sessions.Acquire(outcomeID)
	if err != nil {
		return nil, err
	}

	sub := ms.books.Subscribe(model.ExchangeKalshi, outcomeID)
	go func() {
		for ev := range sub.C {
			onUpdate(ev.Book)
		}
	}()

	return &watchHandle{closeFn: func() {
		sub.Close()
		release()
	}}, nil
}

func (ms *marketStream) watchTrades(ctx context.Context, outcomeID string, onTrade func(model.Trade)) (*watchHandle, error) {
	if err := ms.ensureStarted(ctx); err != nil {
		return nil, err
	}
	_, release, err := ms.sessions.Acquire(outcomeID)
	if err != nil {
		return nil, err
	}

	sub := ms.trades.Subscribe(model.ExchangeKalshi, outcomeID)
	go func() {
		for ev := range sub.C {
			onTrade(ev.Trade)
		}
	}()

	return &watchHandle{closeFn: func() {
		sub.Close()
		release()
	}}, nil
}

func (ms *marketStream) bookFeed() *stream.Broadcaster[stream.BookEvent] { return ms.books }

func (ms *marketStream) close() {
	ms.mu.Lock()
	started := ms.started
	ms.started = false
	ms.mu.Unlock()
	if !started {
		return
	}
	ms.sessions.CloseAll()
	ms.cancel()
	ms.ws.Close()
}
