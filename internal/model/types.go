package model

import (
	"strings"
	"time"
)

// Exchange identifies the source of market data.
type Exchange string

const (
	ExchangePolymarket Exchange = "polymarket"
	ExchangeKalshi     Exchange = "kalshi"
)

// Outcome is a single tradeable side of a market. The ID is the
// provider-native deep-dive key (Polymarket CLOB token ID, Kalshi market
// ticker) and is the only valid key for order book, trade, and candle
// lookups. It must never be confused with the market ID.
type Outcome struct {
	ID             string
	Label          string
	Price          float64 // 0.0 to 1.0
	PriceChange24h *float64
	Metadata       map[string]any
}

// Market is a single tradeable question normalised across exchanges.
type Market struct {
	ID             string
	Title          string
	Outcomes       []Outcome
	Volume24h      float64
	Liquidity      float64
	URL            string
	Description    string
	ResolutionDate *time.Time
	Volume         *float64
	OpenInterest   *float64
	Image          string
	Category       string
	Tags           []string

	// Convenience accessors for binary markets, derived from Outcomes by
	// DeriveShortcuts. Nil when no label pattern matches.
	Yes  *Outcome
	No   *Outcome
	Up   *Outcome
	Down *Outcome
}

// Event is a named grouping of related markets sharing a topic.
type Event struct {
	ID          string
	Title       string
	Description string
	Slug        string
	Markets     []Market
	URL         string
	Image       string
	Category    string
	Tags        []string
}

// SearchIn selects which market fields a text search inspects.
type SearchIn string

const (
	SearchTitle       SearchIn = "title"
	SearchDescription SearchIn = "description"
	SearchBoth        SearchIn = "both"
)

// SortOption orders aggregated market results.
type SortOption string

const (
	SortNone      SortOption = ""
	SortVolume    SortOption = "volume"
	SortLiquidity SortOption = "liquidity"
	SortNewest    SortOption = "newest"
)

// MarketFilter holds client-side pagination and sorting applied after full
// aggregation.
type MarketFilter struct {
	Limit    int
	Offset   int
	Sort     SortOption
	SearchIn SearchIn
}

// HistoryFilter bounds a trades or candles request.
type HistoryFilter struct {
	Resolution string
	Start      *time.Time
	End        *time.Time
	Limit      int
}

// SearchMarkets returns the markets within this event whose title or
// description contains query, case-insensitively. An empty searchIn
// defaults to both fields.
func (e *Event) SearchMarkets(query string, searchIn SearchIn) []Market {
	if searchIn == "" {
		searchIn = SearchBoth
	}
	q := strings.ToLower(query)

	var out []Market
	for _, m := range e.Markets {
		match := false
		if searchIn == SearchTitle || searchIn == SearchBoth {
			if strings.Contains(strings.ToLower(m.Title), q) {
				match = true
			}
		}
		if !match && (searchIn == SearchDescription || searchIn == SearchBoth) {
			if m.Description != "" && strings.Contains(strings.ToLower(m.Description), q) {
				match = true
			}
		}
		if match {
			out = append(out, m)
		}
	}
	return out
}

// Trade is an executed transaction. Immutable once recorded.
type Trade struct {
	ID        string
	Timestamp time.Time
	Price     float64 // 0.0 to 1.0
	Amount    float64 // contracts, > 0
	Side      TradeSide
}

// TradeSide is the taker side of a trade where the exchange reports one.
type TradeSide string

const (
	TradeBuy     TradeSide = "buy"
	TradeSell    TradeSide = "sell"
	TradeUnknown TradeSide = "unknown"
)

// Candle is one OHLCV bucket. Timestamp is the bucket start, aligned to the
// resolution boundary.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    *float64
}

// Position is a holding in one outcome.
type Position struct {
	MarketID     string
	OutcomeID    string
	OutcomeLabel string
	Size         float64 // signed: positive long, negative short
	EntryPrice   float64
	CurrentPrice float64
	RealizedPnL  *float64
}

// UnrealizedPnL is recomputed on every read rather than stored, so a stale
// snapshot can never report a profit based on an old mark price.
func (p Position) UnrealizedPnL() float64 {
	return p.Size * (p.CurrentPrice - p.EntryPrice)
}

// Balance is account funds in one currency. Total = Available + Locked.
type Balance struct {
	Currency  string
	Total     float64
	Available float64
	Locked    float64
}
