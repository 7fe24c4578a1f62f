// Package book implements the two-sided price-level order book shared by
// all exchange adapters: snapshot construction, incremental updates,
// complement-side synthesis, and execution-price calculation.
package book

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Level is a single resting price level.
type Level struct {
	Price float64
	Size  float64
}

// Side selects which half of the book an update targets.
type Side string

const (
	Bid Side = "bid"
	Ask Side = "ask"
)

// Sentinel errors for invariant violations.
var (
	ErrPriceRange  = errors.New("price outside [0,1]")
	ErrNotSorted   = errors.New("levels not in canonical order")
	ErrDuplicate   = errors.New("duplicate price on one side")
	ErrUnknownSide = errors.New("unknown book side")
)

// OrderBook is the current depth for one outcome. Bids are strictly
// descending by price, asks strictly ascending; no price appears twice on
// the same side. An empty book is valid.
type OrderBook struct {
	Bids      []Level
	Asks      []Level
	Timestamp time.Time
}

// Update is one incremental change: the new total size at a price, with
// size 0 meaning the level is removed.
type Update struct {
	Side      Side
	Price     float64
	Size      float64
	Timestamp time.Time
}

// New builds a book from unordered levels, sorting each side into canonical
// order. Levels with non-positive size are dropped.
func New(bids, asks []Level, ts time.Time) *OrderBook {
	b := &OrderBook{
		Bids:      compactLevels(bids),
		Asks:      compactLevels(asks),
		Timestamp: ts,
	}
	sort.Slice(b.Bids, func(i, j int) bool { return b.Bids[i].Price > b.Bids[j].Price })
	sort.Slice(b.Asks, func(i, j int) bool { return b.Asks[i].Price < b.Asks[j].Price })
	return b
}

func compactLevels(in []Level) []Level {
	out := make([]Level, 0, len(in))
	seen := make(map[float64]bool, len(in))
	for _, l := range in {
		if l.Size <= 0 || seen[l.Price] {
			continue
		}
		seen[l.Price] = true
		out = append(out, l)
	}
	return out
}

// Apply mutates the book with one incremental update. An update at or
// before the book's last-applied timestamp is a no-op, so replaying the
// same message twice changes the book at most once. Returns whether the
// update was applied.
func (b *OrderBook) Apply(u Update) (bool, error) {
	return b.ApplyBatch([]Update{u})
}

// ApplyBatch mutates the book with the updates from one stream message.
// All updates in a message carry the message timestamp, so the watermark
// gate runs once for the whole batch and advances once after every level
// has been applied; gating per update would discard everything after the
// first change. A batch at or before the watermark is a no-op, and a batch
// with any invalid update leaves the book untouched. Returns whether the
// batch was applied.
func (b *OrderBook) ApplyBatch(updates []Update) (bool, error) {
	if len(updates) == 0 {
		return false, nil
	}
	for _, u := range updates {
		if u.Side != Bid && u.Side != Ask {
			return false, fmt.Errorf("%w: %q", ErrUnknownSide, u.Side)
		}
		if u.Price < 0 || u.Price > 1 {
			return false, fmt.Errorf("%w: %v", ErrPriceRange, u.Price)
		}
	}

	ts := updates[0].Timestamp
	if !ts.After(b.Timestamp) {
		return false, nil
	}

	for _, u := range updates {
		if u.Side == Bid {
			b.Bids = applyLevel(b.Bids, u.Price, u.Size, func(a, b float64) bool { return a > b })
		} else {
			b.Asks = applyLevel(b.Asks, u.Price, u.Size, func(a, b float64) bool { return a < b })
		}
	}
	b.Timestamp = ts
	return true, nil
}

// applyLevel replaces, removes, or sort-inserts the level at price. The
// `before` comparator defines the side's canonical order.
func applyLevel(levels []Level, price, size float64, before func(a, b float64) bool) []Level {
	idx := sort.Search(len(levels), func(i int) bool {
		return !before(levels[i].Price, price)
	})

	exists := idx < len(levels) && levels[idx].Price == price
	switch {
	case size <= 0 && exists:
		return append(levels[:idx], levels[idx+1:]...)
	case size <= 0:
		return levels
	case exists:
		levels[idx].Size = size
		return levels
	default:
		levels = append(levels, Level{})
		copy(levels[idx+1:], levels[idx:])
		levels[idx] = Level{Price: price, Size: size}
		return levels
	}
}

// BestBid returns the highest bid, or false for an empty side.
func (b *OrderBook) BestBid() (Level, bool) {
	if len(b.Bids) == 0 {
		return Level{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, or false for an empty side.
func (b *OrderBook) BestAsk() (Level, bool) {
	if len(b.Asks) == 0 {
		return Level{}, false
	}
	return b.Asks[0], true
}

// Validate checks the canonical ordering invariants. A violation is a
// data-integrity error: it indicates a reconciliation bug, not bad input.
func (b *OrderBook) Validate() error {
	for i, l := range b.Bids {
		if l.Price < 0 || l.Price > 1 {
			return fmt.Errorf("bid %d: %w: %v", i, ErrPriceRange, l.Price)
		}
		if i > 0 && b.Bids[i-1].Price <= l.Price {
			if b.Bids[i-1].Price == l.Price {
				return fmt.Errorf("bid %d: %w: %v", i, ErrDuplicate, l.Price)
			}
			return fmt.Errorf("bid %d: %w", i, ErrNotSorted)
		}
	}
	for i, l := range b.Asks {
		if l.Price < 0 || l.Price > 1 {
			return fmt.Errorf("ask %d: %w: %v", i, ErrPriceRange, l.Price)
		}
		if i > 0 && b.Asks[i-1].Price >= l.Price {
			if b.Asks[i-1].Price == l.Price {
				return fmt.Errorf("ask %d: %w: %v", i, ErrDuplicate, l.Price)
			}
			return fmt.Errorf("ask %d: %w", i, ErrNotSorted)
		}
	}
	return nil
}

// Clone returns a deep copy. Callers that hand books across goroutines take
// a copy so the reconciler's working state is never shared.
func (b *OrderBook) Clone() *OrderBook {
	c := &OrderBook{
		Bids:      make([]Level, len(b.Bids)),
		Asks:      make([]Level, len(b.Asks)),
		Timestamp: b.Timestamp,
	}
	copy(c.Bids, b.Bids)
	copy(c.Asks, b.Asks)
	return c
}
