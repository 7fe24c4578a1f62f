package candle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAggregateSingleBucket(t *testing.T) {
	points := []Point{
		{Timestamp: at("2025-06-01T10:05:00Z"), Price: 0.40, Volume: 10},
		{Timestamp: at("2025-06-01T10:20:00Z"), Price: 0.55, Volume: 5},
		{Timestamp: at("2025-06-01T10:45:00Z"), Price: 0.48, Volume: 2},
	}

	candles, err := Aggregate(points, "1h")
	require.NoError(t, err)
	require.Len(t, candles, 1)

	c := candles[0]
	assert.Equal(t, at("2025-06-01T10:00:00Z"), c.Timestamp)
	assert.Equal(t, 0.40, c.Open)
	assert.Equal(t, 0.55, c.High)
	assert.Equal(t, 0.40, c.Low)
	assert.Equal(t, 0.48, c.Close)
	require.NotNil(t, c.Volume)
	assert.Equal(t, 17.0, *c.Volume)

	// Low <= open, close <= high.
	assert.LessOrEqual(t, c.Low, c.Open)
	assert.LessOrEqual(t, c.Open, c.High)
	assert.LessOrEqual(t, c.Low, c.Close)
	assert.LessOrEqual(t, c.Close, c.High)
}

func TestAggregateUnsortedInput(t *testing.T) {
	points := []Point{
		{Timestamp: at("2025-06-01T10:45:00Z"), Price: 0.48},
		{Timestamp: at("2025-06-01T10:05:00Z"), Price: 0.40},
		{Timestamp: at("2025-06-01T10:20:00Z"), Price: 0.55},
	}

	candles, err := Aggregate(points, "1h")
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 0.40, candles[0].Open)
	assert.Equal(t, 0.48, candles[0].Close)
}

func TestAggregateGapFilled(t *testing.T) {
	points := []Point{
		{Timestamp: at("2025-06-01T10:00:00Z"), Price: 0.50, Volume: 1},
		// 11:00 and 12:00 have no trades.
		{Timestamp: at("2025-06-01T13:30:00Z"), Price: 0.60, Volume: 2},
	}

	candles, err := Aggregate(points, "1h")
	require.NoError(t, err)
	require.Len(t, candles, 4)

	for _, gap := range candles[1:3] {
		assert.Equal(t, 0.50, gap.Open)
		assert.Equal(t, 0.50, gap.High)
		assert.Equal(t, 0.50, gap.Low)
		assert.Equal(t, 0.50, gap.Close)
		require.NotNil(t, gap.Volume)
		assert.Equal(t, 0.0, *gap.Volume)
	}
	assert.Equal(t, at("2025-06-01T11:00:00Z"), candles[1].Timestamp)
	assert.Equal(t, at("2025-06-01T12:00:00Z"), candles[2].Timestamp)
	assert.Equal(t, 0.60, candles[3].Close)
}

func TestAggregateBucketAlignment(t *testing.T) {
	p := []Point{{Timestamp: at("2025-06-01T10:07:31Z"), Price: 0.5}}

	cases := map[string]time.Time{
		"1m":  at("2025-06-01T10:07:00Z"),
		"5m":  at("2025-06-01T10:05:00Z"),
		"15m": at("2025-06-01T10:00:00Z"),
		"1h":  at("2025-06-01T10:00:00Z"),
		"6h":  at("2025-06-01T06:00:00Z"),
		"1d":  at("2025-06-01T00:00:00Z"),
	}
	for res, want := range cases {
		candles, err := Aggregate(p, res)
		require.NoError(t, err)
		require.Len(t, candles, 1, res)
		assert.Equal(t, want, candles[0].Timestamp, res)
	}
}

func TestAggregateBadInterval(t *testing.T) {
	_, err := Aggregate([]Point{{Timestamp: at("2025-06-01T10:00:00Z")}}, "3w")
	require.ErrorIs(t, err, ErrBadInterval)
}

func TestAggregateEmpty(t *testing.T) {
	candles, err := Aggregate(nil, "1h")
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestParseInstantRepresentationsAgree(t *testing.T) {
	// The same absolute instant in every accepted representation must
	// produce identical results.
	want := at("2025-06-01T00:00:00Z")

	forms := []string{
		"2025-06-01",
		"2025-06-01T00:00:00Z",
		"1748736000",    // unix seconds
		"1748736000000", // unix milliseconds
	}
	for _, f := range forms {
		got, err := ParseInstant(f)
		require.NoError(t, err, f)
		assert.True(t, got.Equal(want), "%s: got %v", f, got)
	}
}

func TestParseInstantDateOnlyIsUTC(t *testing.T) {
	got, err := ParseInstant("2025-06-01")
	require.NoError(t, err)
	_, offset := got.Zone()
	assert.Equal(t, 0, offset)
}

func TestParseInstantRejectsGarbage(t *testing.T) {
	_, err := ParseInstant("yesterday")
	require.Error(t, err)
}

func TestBucketStartIdenticalForEquivalentInstants(t *testing.T) {
	a, err := ParseInstant("2025-06-01")
	require.NoError(t, err)
	b, err := ParseInstant("1748736000000")
	require.NoError(t, err)

	assert.Equal(t, BucketStart(a, time.Hour), BucketStart(b, time.Hour))
}
