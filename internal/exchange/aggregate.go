package exchange

import (
	"sort"
	"strings"

	"github.com/pmxt-dev/pmxt/internal/model"
)

// SortMarkets orders markets in place by the requested option. Sorting is
// client-side: providers disagree on native sort semantics, so the unified
// layer always aggregates first and sorts the full set.
func SortMarkets(markets []model.Market, opt model.SortOption) {
	switch opt {
	case model.SortVolume:
		sort.SliceStable(markets, func(i, j int) bool {
			return markets[i].Volume24h > markets[j].Volume24h
		})
	case model.SortLiquidity:
		sort.SliceStable(markets, func(i, j int) bool {
			return markets[i].Liquidity > markets[j].Liquidity
		})
	case model.SortNewest:
		sort.SliceStable(markets, func(i, j int) bool {
			ti, tj := markets[i].ResolutionDate, markets[j].ResolutionDate
			switch {
			case ti == nil:
				return false
			case tj == nil:
				return true
			default:
				return ti.After(*tj)
			}
		})
	}
}

// Paginate applies limit/offset after aggregation and sorting.
func Paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// MatchMarket reports whether a market matches a case-insensitive substring
// query in the requested fields. Empty searchIn means both.
func MatchMarket(m *model.Market, query string, searchIn model.SearchIn) bool {
	if searchIn == "" {
		searchIn = model.SearchBoth
	}
	q := strings.ToLower(query)

	if searchIn == model.SearchTitle || searchIn == model.SearchBoth {
		if strings.Contains(strings.ToLower(m.Title), q) {
			return true
		}
	}
	if searchIn == model.SearchDescription || searchIn == model.SearchBoth {
		if m.Description != "" && strings.Contains(strings.ToLower(m.Description), q) {
			return true
		}
	}
	return false
}

// FilterMarkets returns the markets matching query.
func FilterMarkets(markets []model.Market, query string, searchIn model.SearchIn) []model.Market {
	var out []model.Market
	for i := range markets {
		if MatchMarket(&markets[i], query, searchIn) {
			out = append(out, markets[i])
		}
	}
	return out
}

// OverfetchFactor is the early-termination heuristic for paginated catalog
// fetches: stop once accumulated results exceed this multiple of the
// caller's target. A tunable observed to work for current provider catalog
// shapes, not a correctness invariant.
const OverfetchFactor = 1.5

// Pager bounds a cursor-paginated fetch: a hard page ceiling plus the
// overfetch early stop when a target result count is known.
type Pager struct {
	MaxPages int
	Target   int // 0 means no target, fetch to the page ceiling
}

// Done reports whether fetching should stop after `pages` pages having
// accumulated `got` results.
func (p Pager) Done(pages, got int) bool {
	if p.MaxPages > 0 && pages >= p.MaxPages {
		return true
	}
	if p.Target > 0 && float64(got) > OverfetchFactor*float64(p.Target) {
		return true
	}
	return false
}
