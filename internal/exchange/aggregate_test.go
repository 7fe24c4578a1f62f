package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmxt-dev/pmxt/internal/model"
)

func markets() []model.Market {
	d1 := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	return []model.Market{
		{ID: "a", Title: "Fed cuts rates in September", Volume24h: 100, Liquidity: 5000, ResolutionDate: &d1},
		{ID: "b", Title: "Trump wins nomination", Description: "Resolves per AP call", Volume24h: 900, Liquidity: 200},
		{ID: "c", Title: "BTC above 100k", Description: "rates of change irrelevant", Volume24h: 400, Liquidity: 9000, ResolutionDate: &d2},
	}
}

func ids(ms []model.Market) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestSortMarkets(t *testing.T) {
	byVolume := markets()
	SortMarkets(byVolume, model.SortVolume)
	assert.Equal(t, []string{"b", "c", "a"}, ids(byVolume))

	byLiquidity := markets()
	SortMarkets(byLiquidity, model.SortLiquidity)
	assert.Equal(t, []string{"c", "a", "b"}, ids(byLiquidity))

	newest := markets()
	SortMarkets(newest, model.SortNewest)
	// Latest resolution first; missing dates sink to the end.
	assert.Equal(t, []string{"c", "a", "b"}, ids(newest))

	unsorted := markets()
	SortMarkets(unsorted, model.SortNone)
	assert.Equal(t, []string{"a", "b", "c"}, ids(unsorted))
}

func TestPaginate(t *testing.T) {
	ms := markets()

	assert.Len(t, Paginate(ms, 2, 0), 2)
	assert.Equal(t, "b", Paginate(ms, 2, 1)[0].ID)
	assert.Len(t, Paginate(ms, 0, 0), 3, "zero limit means no limit")
	assert.Empty(t, Paginate(ms, 10, 5), "offset past the end")
}

func TestFilterMarkets(t *testing.T) {
	ms := markets()

	title := FilterMarkets(ms, "RATES", model.SearchTitle)
	require.Len(t, title, 1)
	assert.Equal(t, "a", title[0].ID)

	both := FilterMarkets(ms, "rates", model.SearchBoth)
	assert.Len(t, both, 2)

	desc := FilterMarkets(ms, "ap call", model.SearchDescription)
	require.Len(t, desc, 1)
	assert.Equal(t, "b", desc[0].ID)

	assert.Len(t, FilterMarkets(ms, "rates", ""), 2, "empty searchIn defaults to both")
}

func TestPagerCeilingAndOverfetch(t *testing.T) {
	p := Pager{MaxPages: 5, Target: 100}

	assert.False(t, p.Done(1, 100))
	assert.False(t, p.Done(2, 150), "exactly 1.5x target keeps going")
	assert.True(t, p.Done(2, 151), "past 1.5x target stops")
	assert.True(t, p.Done(5, 10), "page ceiling stops regardless of count")

	unbounded := Pager{MaxPages: 3}
	assert.False(t, unbounded.Done(2, 100000), "no target means no overfetch stop")
	assert.True(t, unbounded.Done(3, 0))
}
