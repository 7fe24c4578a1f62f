package book

import (
	"fmt"
	"math"
)

// ExecutionResult is the outcome of walking the book for a hypothetical or
// real order of the given size.
type ExecutionResult struct {
	// Price is the size-weighted average fill price across all levels
	// touched. NaN when FilledAmount is zero; callers must check
	// FilledAmount before trusting it.
	Price        float64
	FilledAmount float64
	FullyFilled  bool
}

// ComputeExecution walks the opposing side of the book in priority order —
// asks ascending for a buy, bids descending for a sell — accumulating size
// until amount is reached or depth runs out. FullyFilled uses exact
// equality: amounts are exact numeric quantities, not approximations.
func ComputeExecution(b *OrderBook, side string, amount float64) (ExecutionResult, error) {
	var levels []Level
	switch side {
	case "buy":
		levels = b.Asks
	case "sell":
		levels = b.Bids
	default:
		return ExecutionResult{}, fmt.Errorf("%w: %q", ErrUnknownSide, side)
	}

	if amount <= 0 {
		return ExecutionResult{Price: math.NaN()}, nil
	}

	var filled, cost float64
	for _, l := range levels {
		if filled >= amount {
			break
		}
		take := amount - filled
		if take > l.Size {
			take = l.Size
		}
		filled += take
		cost += take * l.Price
	}

	res := ExecutionResult{
		FilledAmount: filled,
		FullyFilled:  filled == amount,
	}
	if filled > 0 {
		res.Price = cost / filled
	} else {
		res.Price = math.NaN()
	}
	return res, nil
}

// ExecutionPrice is the convenience form used for display quotes: it
// returns the volume-weighted average price, or 0 when the book cannot
// absorb the full amount.
func ExecutionPrice(b *OrderBook, side string, amount float64) (float64, error) {
	res, err := ComputeExecution(b, side, amount)
	if err != nil {
		return 0, err
	}
	if !res.FullyFilled {
		return 0, nil
	}
	return res.Price, nil
}
