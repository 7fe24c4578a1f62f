package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/pmxt-dev/pmxt/internal/book"
	"github.com/pmxt-dev/pmxt/internal/model"
	"github.com/pmxt-dev/pmxt/internal/stream"
	"github.com/pmxt-dev/pmxt/internal/trade"
)

// Market-channel subscription message.
type subscribeMsg struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

type wsEnvelope struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
}

// Full book snapshot. The market channel replays one on every subscribe
// and after significant book changes.
type wsBookEvent struct {
	AssetID   string      `json:"asset_id"`
	Bids      []clobLevel `json:"bids"`
	Asks      []clobLevel `json:"asks"`
	Timestamp string      `json:"timestamp"`
}

type wsPriceChange struct {
	AssetID   string `json:"asset_id"`
	Timestamp string `json:"timestamp"`
	Changes   []struct {
		Price string `json:"price"`
		Size  string `json:"size"`
		Side  string `json:"side"`
	} `json:"changes"`
}

type wsLastTrade struct {
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp string `json:"timestamp"`
}

// marketStream owns the Polymarket market-channel connection: one shared
// socket, one reconciler per watched token, fan-out through broadcasters.
type marketStream struct {
	url     string
	adapter *Adapter
	logger  *zap.Logger
	gate    *trade.Gate

	mu      sync.Mutex
	started bool
	ws      *stream.WSClient
	cancel  context.CancelFunc
	recs    map[string]*stream.Reconciler

	books   *stream.Broadcaster[stream.BookEvent]
	trades  *stream.Broadcaster[stream.TradeEvent]
	bookCh  chan stream.BookEvent
	tradeCh chan stream.TradeEvent

	sessions *stream.SessionManager
}

func newMarketStream(url string, a *Adapter, logger *zap.Logger) *marketStream {
	ms := &marketStream{
		url:     url,
		adapter: a,
		logger:  logger,
		recs:    make(map[string]*stream.Reconciler),
		bookCh:  make(chan stream.BookEvent, 1024),
		tradeCh: make(chan stream.TradeEvent, 1024),
	}
	ms.sessions = stream.NewSessionManager(ms.startSession, logger)
	return ms
}

// ensureStarted dials the shared socket on first use.
func (ms *marketStream) ensureStarted(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())

	ws := stream.NewWSClient(stream.DefaultWSConfig(ms.url), ms.logger)
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

// startSession subscribes one token on the shared socket. The market
// channel sends a full book snapshot in response, so no REST seed is
// needed.
func (ms *marketStream) startSession(outcomeID string, rec *stream.Reconciler) (func(), error) {
	ms.mu.Lock()
	ms.recs[outcomeID] = rec
	ms.mu.Unlock()

	ms.subscribe(outcomeID)

	return func() {
		ms.mu.Lock()
		delete(ms.recs, outcomeID)
		ms.mu.Unlock()
	}, nil
}

func (ms *marketStream) subscribe(outcomeID string) {
	msg, _ := json.Marshal(subscribeMsg{Type: "market", AssetsIDs: []string{outcomeID}})
	ms.ws.Send(msg)
}

// onReconnect resets every live reconciler and resubscribes. No update is
// trusted until the post-reconnect snapshot lands, and the trading gate is
// closed for each outcome until then.
func (ms *marketStream) onReconnect() {
	ms.mu.Lock()
	ids := make([]string, 0, len(ms.recs))
	for id, rec := range ms.recs {
		rec.Reset()
		ids = append(ids, id)
	}
	ms.mu.Unlock()

	for _, id := range ids {
		if ms.gate != nil {
			ms.gate.MarkStale(model.ExchangePolymarket, id)
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
			// The market channel batches events into JSON arrays.
			if bytes.HasPrefix(bytes.TrimSpace(msg), []byte("[")) {
				var batch []json.RawMessage
				if err := json.Unmarshal(msg, &batch); err != nil {
					ms.logger.Warn("invalid batch message", zap.Error(err))
					continue
				}
				for _, item := range batch {
					ms.handleEvent(item)
				}
				continue
			}
			ms.handleEvent(msg)
		}
	}
}

func (ms *marketStream) handleEvent(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		ms.logger.Warn("invalid stream message", zap.Error(err))
		return
	}

	switch env.EventType {
	case "book":
		ms.handleBook(raw)
	case "price_change":
		ms.handlePriceChange(raw)
	case "last_trade_price":
		ms.handleLastTrade(raw)
	case "error":
		ms.logger.Warn("exchange stream error", zap.ByteString("raw", raw))
	default:
		// tick_size_change and friends are not book-relevant.
	}
}

func (ms *marketStream) reconciler(outcomeID string) *stream.Reconciler {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.recs[outcomeID]
}

func (ms *marketStream) handleBook(raw []byte) {
	var ev wsBookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		ms.logger.Warn("invalid book event", zap.Error(err))
		return
	}
	rec := ms.reconciler(ev.AssetID)
	if rec == nil {
		return
	}

	snap := book.New(parseLevels(ev.Bids), parseLevels(ev.Asks), parseMillis(ev.Timestamp))
	merged, err := rec.LoadSnapshot(snap)
	if err != nil {
		ms.logger.Warn("snapshot rejected", zap.String("outcome", ev.AssetID), zap.Error(err))
		return
	}
	ms.emitBook(ev.AssetID, merged)
}

func (ms *marketStream) handlePriceChange(raw []byte) {
	var ev wsPriceChange
	if err := json.Unmarshal(raw, &ev); err != nil {
		ms.logger.Warn("invalid price change", zap.Error(err))
		return
	}
	rec := ms.reconciler(ev.AssetID)
	if rec == nil {
		return
	}

	// Every change in the message shares the message timestamp, so the
	// whole set goes through the reconciler as one batch; applying them
	// individually would advance the watermark on the first change and
	// drop the rest.
	ts := parseMillis(ev.Timestamp)
	updates := make([]book.Update, 0, len(ev.Changes))
	for _, ch := range ev.Changes {
		levels := parseLevels([]clobLevel{{Price: ch.Price, Size: ch.Size}})
		if len(levels) == 0 {
			// Size 0 removals parse fine; this is a malformed price.
			ms.logger.Warn("dropping malformed price change",
				zap.String("outcome", ev.AssetID), zap.String("price", ch.Price))
			continue
		}

		side := book.Bid
		if ch.Side == "SELL" || ch.Side == "sell" {
			side = book.Ask
		}
		updates = append(updates, book.Update{
			Side:      side,
			Price:     levels[0].Price,
			Size:      levels[0].Size,
			Timestamp: ts,
		})
	}
	if len(updates) == 0 {
		return
	}

	snap, err := rec.ApplyBatch(updates)
	if err != nil {
		ms.logger.Warn("update rejected", zap.String("outcome", ev.AssetID), zap.Error(err))
		return
	}
	if snap != nil {
		ms.emitBook(ev.AssetID, snap)
	}
}

func (ms *marketStream) handleLastTrade(raw []byte) {
	var ev wsLastTrade
	if err := json.Unmarshal(raw, &ev); err != nil {
		ms.logger.Warn("invalid trade event", zap.Error(err))
		return
	}
	t, ok := normalizeTrade(&clobTrade{
		Price:     ev.Price,
		Size:      ev.Size,
		Side:      ev.Side,
		Timestamp: ev.Timestamp,
	})
	if !ok {
		ms.logger.Warn("dropping malformed stream trade", zap.String("outcome", ev.AssetID))
		return
	}

	select {
	case ms.tradeCh <- stream.TradeEvent{
		Exchange:  model.ExchangePolymarket,
		OutcomeID: ev.AssetID,
		Trade:     t,
	}:
	default:
		ms.logger.Warn("trade channel full, dropping", zap.String("outcome", ev.AssetID))
	}
}

func (ms *marketStream) emitBook(outcomeID string, b *book.OrderBook) {
	if ms.gate != nil {
		ms.gate.RecordUpdate(model.ExchangePolymarket, outcomeID)
	}
	select {
	case ms.bookCh <- stream.BookEvent{
		Exchange:  model.ExchangePolymarket,
		OutcomeID: outcomeID,
		Book:      b,
		Timestamp: b.Timestamp,
	}:
	default:
		ms.logger.Warn("book channel full, dropping", zap.String("outcome", outcomeID))
	}
}

// watchHandle detaches a subscriber and releases its session exactly once.
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

	sub := ms.books.Subscribe(model.ExchangePolymarket, outcomeID)
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
	// Trades ride the same market-channel subscription as the book.
	_, release, err := ms.sessions.Acquire(outcomeID)
	if err != nil {
		return nil, err
	}

	sub := ms.trades.Subscribe(model.ExchangePolymarket, outcomeID)
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

// BookFeed exposes the reconciled book firehose for downstream consumers
// such as the redis publisher.
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
