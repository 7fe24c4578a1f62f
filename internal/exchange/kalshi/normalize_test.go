package kalshi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pmxt-dev/pmxt/internal/model"
)

func fedEvent() rawEvent {
	return rawEvent{
		EventTicker:  "KXFED-25DEC",
		SeriesTicker: "KXFED",
		Title:        "Fed decision in December?",
		Category:     "Economics",
		Markets: []rawMarket{
			{
				Ticker:       "KXFED-25DEC-C25",
				EventTicker:  "KXFED-25DEC",
				Title:        "Will the Fed cut by 25 bps?",
				Subtitle:     "Dec 10, 2025",
				RulesPrimary: "Resolves Yes if the FOMC lowers the target range by exactly 25 bps.",
				YesBid:       61,
				YesAsk:       63,
				LastPrice:    62,
				PreviousPrice: 58,
				Volume24h:    5000,
				Liquidity:    12000,
				CloseTime:    "2025-12-10T19:00:00Z",
			},
		},
	}
}

func TestNormalizeMarketYesNoOutcomes(t *testing.T) {
	ev := fedEvent()
	m, ok := normalizeMarket(&ev.Markets[0], &ev, nil, zap.NewNop())
	require.True(t, ok)

	require.Len(t, m.Outcomes, 2)
	assert.Equal(t, "KXFED-25DEC-C25", m.Outcomes[0].ID, "ticker is the outcome id")
	assert.InDelta(t, 0.62, m.Outcomes[0].Price, 1e-9)
	assert.InDelta(t, 0.38, m.Outcomes[1].Price, 1e-9)

	require.NotNil(t, m.Yes)
	require.NotNil(t, m.No)
	assert.Equal(t, "Yes", m.Yes.Label)

	require.NotNil(t, m.Outcomes[0].PriceChange24h)
	assert.InDelta(t, 0.04, *m.Outcomes[0].PriceChange24h, 1e-9)
}

func TestNormalizeMarketDescriptionPrefersRules(t *testing.T) {
	ev := fedEvent()
	m, ok := normalizeMarket(&ev.Markets[0], &ev, nil, zap.NewNop())
	require.True(t, ok)
	assert.Contains(t, m.Description, "FOMC lowers", "rules win over the date-only subtitle")

	ev.Markets[0].RulesPrimary = ""
	m, ok = normalizeMarket(&ev.Markets[0], &ev, nil, zap.NewNop())
	require.True(t, ok)
	assert.Equal(t, "Dec 10, 2025", m.Description)
}

func TestTagBackfillFromSeries(t *testing.T) {
	ev := fedEvent()
	tags := map[string][]string{"KXFED": {"politics", "fed"}}

	m, ok := normalizeMarket(&ev.Markets[0], &ev, tags, zap.NewNop())
	require.True(t, ok)
	assert.Equal(t, []string{"politics", "fed"}, m.Tags)
}

func TestBackfillNeverMergesIntoNonEmpty(t *testing.T) {
	assert.Equal(t, []string{"economy"}, backfillTags([]string{"economy"}, []string{"politics", "fed"}))
	assert.Equal(t, []string{"politics", "fed"}, backfillTags(nil, []string{"politics", "fed"}))
	assert.Empty(t, backfillTags(nil, nil))
}

func TestNormalizeBookSynthesis(t *testing.T) {
	raw := &rawOrderbook{
		Yes: [][2]int{{40, 100}, {38, 50}},
		No:  [][2]int{{55, 80}, {60, 0}},
	}
	b := normalizeBook(raw, time.Unix(100, 0))
	require.NoError(t, b.Validate())

	require.Len(t, b.Bids, 2)
	assert.InDelta(t, 0.40, b.Bids[0].Price, 1e-9, "bids descending from YES bids")

	require.Len(t, b.Asks, 1, "zero-size NO level dropped")
	assert.InDelta(t, 0.45, b.Asks[0].Price, 1e-9, "NO bid at 0.55 becomes YES ask at 0.45")
	assert.InDelta(t, 80, b.Asks[0].Size, 1e-9)
}

func TestNormalizeTrade(t *testing.T) {
	tr, ok := normalizeTrade(&rawTrade{
		TradeID:     "t1",
		Ticker:      "KXFED-25DEC-C25",
		YesPrice:    62,
		Count:       10,
		TakerSide:   "yes",
		CreatedTime: "2025-06-01T00:00:00Z",
	})
	require.True(t, ok)
	assert.InDelta(t, 0.62, tr.Price, 1e-9)
	assert.Equal(t, model.TradeBuy, tr.Side)

	_, ok = normalizeTrade(&rawTrade{YesPrice: 62, Count: 0, CreatedTime: "2025-06-01T00:00:00Z"})
	assert.False(t, ok)

	_, ok = normalizeTrade(&rawTrade{YesPrice: 62, Count: 1, CreatedTime: "not a time"})
	assert.False(t, ok)
}

func TestNormalizeOrder(t *testing.T) {
	o := normalizeOrder(&rawOrder{
		OrderID:        "ord-1",
		Ticker:         "KXFED-25DEC-C25",
		Action:         "buy",
		Type:           "limit",
		YesPrice:       62,
		Status:         "resting",
		InitialCount:   100,
		RemainingCount: 60,
		CreatedTime:    "2025-06-01T00:00:00Z",
	})

	assert.Equal(t, model.StatusPartiallyFilled, o.Status)
	assert.Equal(t, 40.0, o.Filled)
	assert.Equal(t, 60.0, o.Remaining)
	assert.Equal(t, o.Amount, o.Filled+o.Remaining)
	require.NotNil(t, o.Price)
	assert.InDelta(t, 0.62, *o.Price, 1e-9)

	done := normalizeOrder(&rawOrder{Status: "executed", InitialCount: 10, RemainingCount: 0})
	assert.Equal(t, model.StatusFilled, done.Status)
}

func TestNormalizeBalanceAndPosition(t *testing.T) {
	b := normalizeBalance(&rawBalanceResponse{Balance: 123450})
	assert.Equal(t, "USD", b.Currency)
	assert.InDelta(t, 1234.50, b.Total, 1e-9)
	assert.Equal(t, b.Total, b.Available+b.Locked)

	p := normalizePosition(&rawPosition{
		Ticker:           "KXFED-25DEC-C25",
		Position:         100,
		TotalTradedCents: 5000, // bought 100 at 50c
		MarketExposure:   6200, // marked at 62c
		RealizedPnl:      150,
	})
	assert.InDelta(t, 0.50, p.EntryPrice, 1e-9)
	assert.InDelta(t, 0.62, p.CurrentPrice, 1e-9)
	assert.InDelta(t, 12.0, p.UnrealizedPnL(), 1e-9)
	require.NotNil(t, p.RealizedPnL)
	assert.InDelta(t, 1.5, *p.RealizedPnL, 1e-9)
}

func TestValidateOutcomeID(t *testing.T) {
	assert.NoError(t, validateOutcomeID("KXFED-25DEC-C25"))
	assert.NoError(t, validateOutcomeID("INXD-25AUG29-B6524.5"))
	assert.Error(t, validateOutcomeID(""))
	assert.Error(t, validateOutcomeID("kxfed-25dec-c25"), "lowercase is not a ticker")
	assert.Error(t, validateOutcomeID("KXFED"), "series ticker is not an outcome id")
}
