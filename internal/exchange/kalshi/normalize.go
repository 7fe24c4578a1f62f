package kalshi

import (
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pmxt-dev/pmxt/internal/book"
	"github.com/pmxt-dev/pmxt/internal/model"
)

const marketURLPrefix = "https://kalshi.com/markets/"

// centsToPrice converts a native cent price to the unified [0,1] scale.
func centsToPrice(cents int) float64 {
	return float64(cents) / 100.0
}

func complementPrice(p float64) float64 {
	return math.Round((1-p)*10000) / 10000
}

// backfillTags implements the inherit-only-when-empty policy: native tags
// are never merged with inherited ones, a non-empty native set always wins
// untouched. The policy is a tunable observed to match provider catalogs,
// not an invariant.
func backfillTags(native, inherited []string) []string {
	if len(native) > 0 {
		return native
	}
	return inherited
}

// description prefers the field with actual resolution criteria over a
// date-only subtitle.
func description(raw *rawMarket) string {
	if raw.RulesPrimary != "" {
		return raw.RulesPrimary
	}
	return raw.Subtitle
}

// normalizeMarket converts one native market. Both outcomes carry the
// market ticker as outcome id: a Kalshi book is always the YES-side view,
// with the NO side folded in by synthesis.
func normalizeMarket(raw *rawMarket, ev *rawEvent, seriesTags map[string][]string, logger *zap.Logger) (model.Market, bool) {
	if raw.Ticker == "" {
		logger.Warn("dropping market without ticker", zap.String("event", ev.EventTicker))
		return model.Market{}, false
	}
	price := centsToPrice(raw.LastPrice)
	if price < 0 || price > 1 {
		logger.Warn("dropping market with out-of-range price",
			zap.String("ticker", raw.Ticker), zap.Int("last_price", raw.LastPrice))
		return model.Market{}, false
	}

	var change *float64
	if raw.PreviousPrice > 0 {
		d := price - centsToPrice(raw.PreviousPrice)
		change = &d
	}

	title := raw.Title
	if title == "" {
		title = strings.TrimSpace(ev.Title + " " + raw.Subtitle)
	}

	m := model.Market{
		ID:    raw.Ticker,
		Title: title,
		Outcomes: []model.Outcome{
			{ID: raw.Ticker, Label: "Yes", Price: price, PriceChange24h: change},
			{ID: raw.Ticker, Label: "No", Price: complementPrice(price)},
		},
		Volume24h:   raw.Volume24h,
		Liquidity:   raw.Liquidity,
		URL:         marketURLPrefix + strings.ToLower(ev.SeriesTicker),
		Description: description(raw),
		Category:    raw.Category,
		Tags:        backfillTags(nil, seriesTags[ev.SeriesTicker]),
	}
	if m.Category == "" {
		m.Category = ev.Category
	}
	if raw.Volume > 0 {
		v := raw.Volume
		m.Volume = &v
	}
	if raw.OpenInterest > 0 {
		oi := raw.OpenInterest
		m.OpenInterest = &oi
	}
	if raw.CloseTime != "" {
		if t, err := time.Parse(time.RFC3339, raw.CloseTime); err == nil {
			m.ResolutionDate = &t
		}
	}
	m.DeriveShortcuts()
	return m, true
}

// normalizeEvent converts one native event with nested markets.
func normalizeEvent(raw *rawEvent, seriesTags map[string][]string, logger *zap.Logger) (model.Event, bool) {
	markets := make([]model.Market, 0, len(raw.Markets))
	for i := range raw.Markets {
		if m, ok := normalizeMarket(&raw.Markets[i], raw, seriesTags, logger); ok {
			markets = append(markets, m)
		}
	}
	if len(markets) == 0 {
		return model.Event{}, false
	}
	return model.Event{
		ID:          raw.EventTicker,
		Title:       raw.Title,
		Description: raw.SubTitle,
		Slug:        strings.ToLower(raw.EventTicker),
		Markets:     markets,
		URL:         marketURLPrefix + strings.ToLower(raw.SeriesTicker),
		Category:    raw.Category,
		Tags:        backfillTags(nil, seriesTags[raw.SeriesTicker]),
	}, true
}

// normalizeBook converts native depth into the unified YES-side view. Both
// native sides are resting bids; the NO bids become YES asks at the
// complementary price.
func normalizeBook(raw *rawOrderbook, ts time.Time) *book.OrderBook {
	return book.SynthesizeFromComplement(centsLevels(raw.Yes), centsLevels(raw.No), ts)
}

func centsLevels(pairs [][2]int) []book.Level {
	out := make([]book.Level, 0, len(pairs))
	for _, p := range pairs {
		if p[1] <= 0 {
			continue
		}
		out = append(out, book.Level{Price: centsToPrice(p[0]), Size: float64(p[1])})
	}
	return out
}

// normalizeTrade converts one native trade. The YES taker side maps to a
// unified buy.
func normalizeTrade(raw *rawTrade) (model.Trade, bool) {
	price := centsToPrice(raw.YesPrice)
	if price < 0 || price > 1 || raw.Count <= 0 {
		return model.Trade{}, false
	}
	ts, err := time.Parse(time.RFC3339, raw.CreatedTime)
	if err != nil {
		return model.Trade{}, false
	}

	side := model.TradeUnknown
	switch raw.TakerSide {
	case "yes":
		side = model.TradeBuy
	case "no":
		side = model.TradeSell
	}

	return model.Trade{
		ID:        raw.TradeID,
		Timestamp: ts.UTC(),
		Price:     price,
		Amount:    raw.Count,
		Side:      side,
	}, true
}

// normalizeOrder converts a native portfolio order into the unified
// lifecycle representation.
func normalizeOrder(raw *rawOrder) *model.Order {
	o := &model.Order{
		ID:        raw.OrderID,
		MarketID:  raw.Ticker,
		OutcomeID: raw.Ticker,
		Amount:    raw.InitialCount,
		Filled:    raw.InitialCount - raw.RemainingCount,
		Remaining: raw.RemainingCount,
	}

	switch raw.Action {
	case "sell":
		o.Side = model.Sell
	default:
		o.Side = model.Buy
	}
	switch raw.Type {
	case "market":
		o.Type = model.MarketOrder
	default:
		o.Type = model.LimitOrder
	}
	if raw.YesPrice > 0 {
		p := centsToPrice(raw.YesPrice)
		o.Price = &p
	}

	switch raw.Status {
	case "executed":
		o.Status = model.StatusFilled
	case "canceled", "cancelled":
		o.Status = model.StatusCancelled
	case "rejected":
		o.Status = model.StatusRejected
	default:
		if o.Filled > 0 && o.Remaining > 0 {
			o.Status = model.StatusPartiallyFilled
		} else {
			o.Status = model.StatusOpen
		}
	}

	if t, err := time.Parse(time.RFC3339, raw.CreatedTime); err == nil {
		o.Timestamp = t.UTC()
	}
	return o
}

// normalizeBalance converts the cent-denominated account balance.
func normalizeBalance(raw *rawBalanceResponse) model.Balance {
	total := raw.Balance / 100.0
	return model.Balance{
		Currency:  "USD",
		Total:     total,
		Available: total,
		Locked:    0,
	}
}

// normalizePosition converts one market position. Entry and mark prices
// are derived from cent-denominated aggregates when the position is open.
func normalizePosition(raw *rawPosition) model.Position {
	p := model.Position{
		MarketID:     raw.Ticker,
		OutcomeID:    raw.Ticker,
		OutcomeLabel: "Yes",
		Size:         raw.Position,
	}
	if abs := math.Abs(raw.Position); abs > 0 {
		p.EntryPrice = raw.TotalTradedCents / 100.0 / abs
		p.CurrentPrice = raw.MarketExposure / 100.0 / abs
	}
	if raw.RealizedPnl != 0 {
		r := raw.RealizedPnl / 100.0
		p.RealizedPnL = &r
	}
	return p
}
