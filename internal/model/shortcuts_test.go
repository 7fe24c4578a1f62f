package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func binaryMarket(labelA, labelB string) *Market {
	return &Market{
		ID:    "m1",
		Title: "test",
		Outcomes: []Outcome{
			{ID: "a", Label: labelA, Price: 0.62},
			{ID: "b", Label: labelB, Price: 0.38},
		},
	}
}

func TestShortcutsExactYesNo(t *testing.T) {
	m := binaryMarket("Yes", "No")
	m.DeriveShortcuts()

	require.NotNil(t, m.Yes)
	require.NotNil(t, m.No)
	assert.Equal(t, "Yes", m.Yes.Label)
	assert.Equal(t, "No", m.No.Label)
	assert.Nil(t, m.Up)
}

func TestShortcutsReversedOrder(t *testing.T) {
	m := binaryMarket("no", "YES")
	m.DeriveShortcuts()

	require.NotNil(t, m.Yes)
	assert.Equal(t, "YES", m.Yes.Label)
	assert.Equal(t, "no", m.No.Label)
}

func TestShortcutsUpDown(t *testing.T) {
	m := binaryMarket("Up", "Down")
	m.DeriveShortcuts()

	require.NotNil(t, m.Up)
	require.NotNil(t, m.Down)
	assert.Equal(t, "Up", m.Up.Label)
	assert.Equal(t, "Down", m.Down.Label)
	// Up is treated as the yes-like side.
	assert.Equal(t, m.Up, m.Yes)
	assert.Equal(t, m.Down, m.No)
}

func TestShortcutsComplementaryPair(t *testing.T) {
	m := binaryMarket("Trump", "Not Trump")
	m.DeriveShortcuts()

	require.NotNil(t, m.Yes)
	require.NotNil(t, m.No)
	assert.Equal(t, "Trump", m.Yes.Label)
	assert.Equal(t, "Not Trump", m.No.Label)
}

func TestShortcutsNoPatternLeavesUnset(t *testing.T) {
	m := binaryMarket("Chiefs", "Eagles")
	m.DeriveShortcuts()

	assert.Nil(t, m.Yes)
	assert.Nil(t, m.No)
	assert.Nil(t, m.Up)
	assert.Nil(t, m.Down)
}

func TestShortcutsNonBinaryIgnored(t *testing.T) {
	m := &Market{Outcomes: []Outcome{
		{Label: "Yes"}, {Label: "No"}, {Label: "Maybe"},
	}}
	m.DeriveShortcuts()
	assert.Nil(t, m.Yes)
}

func TestEventSearchMarkets(t *testing.T) {
	ev := &Event{
		Markets: []Market{
			{Title: "Will Kevin Warsh be Fed Chair?", Description: "Resolves yes if nominated"},
			{Title: "Will Judy Shelton be Fed Chair?", Description: "mentions Warsh in passing"},
			{Title: "Unrelated market"},
		},
	}

	byTitle := ev.SearchMarkets("warsh", SearchTitle)
	require.Len(t, byTitle, 1)
	assert.Contains(t, byTitle[0].Title, "Warsh")

	both := ev.SearchMarkets("warsh", SearchBoth)
	assert.Len(t, both, 2)

	// Empty searchIn defaults to both.
	assert.Len(t, ev.SearchMarkets("WARSH", ""), 2)
}
