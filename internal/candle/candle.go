// Package candle buckets raw trade and tick data into fixed-interval OHLCV
// candles for exchanges that do not provide native candle resolution.
package candle

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pmxt-dev/pmxt/internal/model"
)

// ErrBadInterval is returned for a resolution outside the supported set.
var ErrBadInterval = errors.New("unsupported candle interval")

// intervals maps resolution names to bucket widths.
var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"1d":  24 * time.Hour,
}

// ParseInterval resolves a resolution name like "1h" to its duration.
func ParseInterval(name string) (time.Duration, error) {
	d, ok := intervals[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadInterval, name)
	}
	return d, nil
}

// Point is one raw observation: a trade or a price tick.
type Point struct {
	Timestamp time.Time
	Price     float64
	Volume    float64 // 0 when the source reports no volume
}

// BucketStart aligns ts to the start of its interval bucket:
// floor(unixMillis / intervalMillis) * intervalMillis, which for UTC
// instants matches truncation. Day buckets align to UTC midnight.
func BucketStart(ts time.Time, interval time.Duration) time.Time {
	ms := ts.UnixMilli()
	im := interval.Milliseconds()
	start := ms - mod(ms, im)
	return time.UnixMilli(start).UTC()
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// Aggregate buckets points into candles at the given resolution. Within a
// bucket: open is the earliest point's price, close the latest's, high/low
// the extrema, volume the sum. Buckets with no points are synthesized with
// open=high=low=close carried forward from the previous close, so a
// consumer never sees a time gap. Pure function: the same input always
// yields the same candles.
func Aggregate(points []Point, resolution string) ([]model.Candle, error) {
	interval, err := ParseInterval(resolution)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var out []model.Candle
	var cur *model.Candle
	var curVol float64

	flush := func() {
		if cur == nil {
			return
		}
		v := curVol
		cur.Volume = &v
		out = append(out, *cur)
		cur = nil
	}

	for _, p := range sorted {
		start := BucketStart(p.Timestamp, interval)

		if cur != nil && !start.Equal(cur.Timestamp) {
			prevClose := cur.Close
			prevStart := cur.Timestamp
			flush()

			// Carry the previous close through empty buckets.
			for t := prevStart.Add(interval); t.Before(start); t = t.Add(interval) {
				zero := 0.0
				out = append(out, model.Candle{
					Timestamp: t,
					Open:      prevClose,
					High:      prevClose,
					Low:       prevClose,
					Close:     prevClose,
					Volume:    &zero,
				})
			}
		}

		if cur == nil {
			cur = &model.Candle{
				Timestamp: start,
				Open:      p.Price,
				High:      p.Price,
				Low:       p.Price,
				Close:     p.Price,
			}
			curVol = 0
		}

		if p.Price > cur.High {
			cur.High = p.Price
		}
		if p.Price < cur.Low {
			cur.Low = p.Price
		}
		cur.Close = p.Price
		curVol += p.Volume
	}
	flush()

	return out, nil
}

// ParseInstant normalises the textual timestamp representations seen across
// provider payloads into an absolute UTC instant: unix milliseconds, unix
// seconds, RFC 3339, or a date-only string. A date with no explicit offset
// is UTC midnight, never local time, so producer and consumer bucket
// identically regardless of process timezone.
func ParseInstant(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Heuristic: values this large are milliseconds.
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable instant %q", s)
}
