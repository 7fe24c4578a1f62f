package book

import "time"

// SynthesizeFromComplement builds a full two-sided book for an outcome from
// its own resting bids plus the complementary outcome's resting bids.
//
// Kalshi exposes only resting YES bids and resting NO bids. A NO bid at
// price p commits to selling YES at 1−p, so the YES ask side is the mirror
// of the NO bid side. The same inversion runs the other way, which is why
// the synthesized book must be rebuilt whenever either side of the pair
// updates.
func SynthesizeFromComplement(ownBids, complementBids []Level, ts time.Time) *OrderBook {
	asks := make([]Level, 0, len(complementBids))
	for _, l := range complementBids {
		asks = append(asks, Level{Price: invert(l.Price), Size: l.Size})
	}
	return New(ownBids, asks, ts)
}

// invert maps a complement-side price into this side's scale. Rounding to
// four decimals keeps cent-scale inputs exact despite float arithmetic.
func invert(p float64) float64 {
	v := 1 - p
	return float64(int(v*10000+0.5)) / 10000
}
