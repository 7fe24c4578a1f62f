package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pmxt-dev/pmxt/internal/book"
	"github.com/pmxt-dev/pmxt/internal/model"
)

const eventURLPrefix = "https://polymarket.com/event/"

// decodeStringArray parses Gamma's doubly-encoded arrays: the field value
// is a JSON string whose content is itself a JSON array of strings.
func decodeStringArray(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode nested array: %w", err)
	}
	return out, nil
}

// tagLabels flattens event tag objects into labels and unions the event
// category into the set.
func tagLabels(ev *gammaEvent) []string {
	seen := make(map[string]struct{}, len(ev.Tags)+1)
	var out []string
	add := func(s string) {
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, t := range ev.Tags {
		add(t.Label)
	}
	add(ev.Category)
	return out
}

// normalizeMarket converts one Gamma market. Returns false when the record
// is malformed; aggregate calls drop it and continue.
func normalizeMarket(raw *gammaMarket, ev *gammaEvent, logger *zap.Logger) (model.Market, bool) {
	labels, err := decodeStringArray(raw.Outcomes)
	if err != nil {
		logger.Warn("dropping market with malformed outcomes",
			zap.String("market_id", raw.ID), zap.Error(err))
		return model.Market{}, false
	}
	priceStrs, err := decodeStringArray(raw.OutcomePrices)
	if err != nil {
		logger.Warn("dropping market with malformed outcome prices",
			zap.String("market_id", raw.ID), zap.Error(err))
		return model.Market{}, false
	}
	tokenIDs, err := decodeStringArray(raw.ClobTokenIDs)
	if err != nil {
		logger.Warn("dropping market with malformed token ids",
			zap.String("market_id", raw.ID), zap.Error(err))
		return model.Market{}, false
	}
	if len(labels) == 0 || len(labels) != len(priceStrs) || len(labels) != len(tokenIDs) {
		logger.Warn("dropping market with mismatched outcome arrays",
			zap.String("market_id", raw.ID),
			zap.Int("labels", len(labels)),
			zap.Int("prices", len(priceStrs)),
			zap.Int("tokens", len(tokenIDs)))
		return model.Market{}, false
	}

	outcomes := make([]model.Outcome, 0, len(labels))
	for i, label := range labels {
		price, err := strconv.ParseFloat(priceStrs[i], 64)
		if err != nil || price < 0 || price > 1 {
			logger.Warn("dropping market with out-of-range outcome price",
				zap.String("market_id", raw.ID), zap.String("price", priceStrs[i]))
			return model.Market{}, false
		}
		outcomes = append(outcomes, model.Outcome{
			ID:             tokenIDs[i],
			Label:          label,
			Price:          price,
			PriceChange24h: raw.OneDayPriceChange,
		})
	}

	m := model.Market{
		ID:          raw.ID,
		Title:       raw.Question,
		Outcomes:    outcomes,
		Volume24h:   raw.Volume24hr,
		Liquidity:   raw.LiquidityNum,
		URL:         eventURLPrefix + ev.Slug,
		Description: raw.Description,
		Image:       raw.Image,
		Category:    raw.Category,
		Tags:        tagLabels(ev),
	}
	if m.Category == "" {
		m.Category = ev.Category
	}
	if raw.VolumeNum > 0 {
		v := raw.VolumeNum
		m.Volume = &v
	}
	if raw.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, raw.EndDate); err == nil {
			m.ResolutionDate = &t
		}
	}
	m.DeriveShortcuts()
	return m, true
}

// normalizeEvent converts one Gamma event. Returns false when no market
// survived normalization; discovery never returns a marketless event.
func normalizeEvent(raw *gammaEvent, logger *zap.Logger) (model.Event, bool) {
	markets := make([]model.Market, 0, len(raw.Markets))
	for i := range raw.Markets {
		if m, ok := normalizeMarket(&raw.Markets[i], raw, logger); ok {
			markets = append(markets, m)
		}
	}
	if len(markets) == 0 {
		return model.Event{}, false
	}
	return model.Event{
		ID:          raw.ID,
		Title:       raw.Title,
		Description: raw.Description,
		Slug:        raw.Slug,
		Markets:     markets,
		URL:         eventURLPrefix + raw.Slug,
		Image:       raw.Image,
		Category:    raw.Category,
		Tags:        tagLabels(raw),
	}, true
}

// normalizeBook converts a CLOB depth snapshot, discarding unparseable
// levels. New re-establishes the ordering invariants.
func normalizeBook(raw *clobBook) *book.OrderBook {
	return book.New(parseLevels(raw.Bids), parseLevels(raw.Asks), parseMillis(raw.Timestamp))
}

func parseLevels(raw []clobLevel) []book.Level {
	out := make([]book.Level, 0, len(raw))
	for _, l := range raw {
		p, err := strconv.ParseFloat(l.Price, 64)
		if err != nil {
			continue
		}
		s, err := strconv.ParseFloat(l.Size, 64)
		if err != nil {
			continue
		}
		out = append(out, book.Level{Price: p, Size: s})
	}
	return out
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// normalizeTrade converts one CLOB trade. Returns false on a malformed
// record.
func normalizeTrade(raw *clobTrade) (model.Trade, bool) {
	price, err := strconv.ParseFloat(raw.Price, 64)
	if err != nil || price < 0 || price > 1 {
		return model.Trade{}, false
	}
	size, err := strconv.ParseFloat(raw.Size, 64)
	if err != nil || size <= 0 {
		return model.Trade{}, false
	}
	sec, err := strconv.ParseInt(raw.Timestamp, 10, 64)
	if err != nil {
		return model.Trade{}, false
	}

	side := model.TradeUnknown
	switch raw.Side {
	case "BUY", "buy":
		side = model.TradeBuy
	case "SELL", "sell":
		side = model.TradeSell
	}

	return model.Trade{
		ID:        raw.ID,
		Timestamp: time.Unix(sec, 0).UTC(),
		Price:     price,
		Amount:    size,
		Side:      side,
	}, true
}
