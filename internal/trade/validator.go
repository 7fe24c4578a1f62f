package trade

import (
	"errors"
	"fmt"

	"github.com/pmxt-dev/pmxt/internal/book"
	"github.com/pmxt-dev/pmxt/internal/exchange"
	"github.com/pmxt-dev/pmxt/internal/model"
)

// Sentinel errors returned by Validate.
var (
	ErrInvalidSide     = errors.New("invalid order side")
	ErrInvalidType     = errors.New("invalid order type")
	ErrPriceOutOfRange = errors.New("price out of valid range")
	ErrPriceMissing    = errors.New("limit order requires a price")
	ErrQuantityTooLow  = errors.New("quantity below minimum lot size")
	ErrGateClosed      = errors.New("trading gate closed for outcome")
)

// Constraints defines per-exchange validation limits.
type Constraints struct {
	MinPrice   float64
	MaxPrice   float64
	MinLotSize float64
}

// DefaultConstraints maps each exchange to its validation rules. Both
// venues quote binary contracts in (0, 1).
var DefaultConstraints = map[model.Exchange]Constraints{
	model.ExchangePolymarket: {MinPrice: 0.0, MaxPrice: 1.0, MinLotSize: 1.0},
	model.ExchangeKalshi:     {MinPrice: 0.0, MaxPrice: 1.0, MinLotSize: 1.0},
}

// TradingGate reports whether order submission is allowed for an outcome.
// Satisfied by *Gate.
type TradingGate interface {
	Allows(ex model.Exchange, outcomeID string) bool
}

// BookFetcher returns the current order book for an outcome. Satisfied by
// a closure over Exchange.FetchOrderBook or a live reconciler snapshot.
type BookFetcher func(outcomeID string) (*book.OrderBook, error)

// Validator performs pre-flight checks on order parameters before they are
// handed to a provider for submission. It fails fast: the first failing
// check returns an error.
type Validator struct {
	exchange    model.Exchange
	gate        TradingGate
	fetchBook   BookFetcher
	constraints map[model.Exchange]Constraints
}

// NewValidator creates a Validator. gate and fetchBook may be nil, which
// skips the freshness and liquidity checks respectively.
func NewValidator(ex model.Exchange, gate TradingGate, fetchBook BookFetcher) *Validator {
	return &Validator{
		exchange:    ex,
		gate:        gate,
		fetchBook:   fetchBook,
		constraints: DefaultConstraints,
	}
}

// Validate runs all pre-flight checks on the order parameters.
func (v *Validator) Validate(params model.CreateOrderParams) error {
	// 1. Basic field checks.
	if params.Side != model.Buy && params.Side != model.Sell {
		return fmt.Errorf("%w: %q", ErrInvalidSide, params.Side)
	}
	if params.Type != model.MarketOrder && params.Type != model.LimitOrder {
		return fmt.Errorf("%w: %q", ErrInvalidType, params.Type)
	}

	// 2. Exchange constraints.
	ec, ok := v.constraints[v.exchange]
	if !ok {
		return fmt.Errorf("unknown exchange: %s", v.exchange)
	}

	// 3. Price check. Limit orders carry a price strictly inside (0, 1);
	// market orders price off the book at execution time.
	if params.Type == model.LimitOrder {
		if params.Price == nil {
			return ErrPriceMissing
		}
		if *params.Price <= ec.MinPrice || *params.Price >= ec.MaxPrice {
			return fmt.Errorf("%w: %.4f not in (%.1f, %.1f)",
				ErrPriceOutOfRange, *params.Price, ec.MinPrice, ec.MaxPrice)
		}
	}

	// 4. Quantity check.
	if params.Amount < ec.MinLotSize {
		return fmt.Errorf("%w: %.4f < minimum %.1f",
			ErrQuantityTooLow, params.Amount, ec.MinLotSize)
	}

	// 5. Freshness gate.
	if v.gate != nil && !v.gate.Allows(v.exchange, params.OutcomeID) {
		return fmt.Errorf("%w: %s", ErrGateClosed, params.OutcomeID)
	}

	// 6. Liquidity check for market orders: the opposing side must be able
	// to absorb the full amount.
	if params.Type == model.MarketOrder && v.fetchBook != nil {
		b, err := v.fetchBook(params.OutcomeID)
		if err != nil {
			return fmt.Errorf("pre-trade book fetch: %w", err)
		}
		res, err := book.ComputeExecution(b, string(params.Side), params.Amount)
		if err != nil {
			return err
		}
		if !res.FullyFilled {
			return fmt.Errorf("%w: book fills %.2f of %.2f",
				exchange.ErrInsufficientLiquidity, res.FilledAmount, params.Amount)
		}
	}

	return nil
}
