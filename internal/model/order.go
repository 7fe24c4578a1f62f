package model

import (
	"errors"
	"fmt"
	"time"
)

// Side represents the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderType distinguishes execution semantics.
type OrderType string

const (
	MarketOrder OrderType = "market"
	LimitOrder  OrderType = "limit"
)

// OrderStatus tracks the lifecycle of an order. Transitions are monotonic:
// once terminal (filled, cancelled, rejected) an order never changes again.
type OrderStatus string

const (
	StatusOpen            OrderStatus = "open"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
)

// Terminal reports whether no further transitions are allowed.
func (s OrderStatus) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Sentinel errors for order lifecycle violations.
var (
	ErrFillIntegrity     = errors.New("order fill would violate filled+remaining == amount")
	ErrFillNotIncreasing = errors.New("order fill must be non-decreasing")
	ErrBadTransition     = errors.New("invalid order status transition")
)

// Order is a trading instruction and its lifecycle state, unified across
// exchanges.
type Order struct {
	ID        string
	MarketID  string
	OutcomeID string
	Side      Side
	Type      OrderType
	Amount    float64
	Price     *float64 // limit price; nil for market orders
	Status    OrderStatus
	Filled    float64
	Remaining float64
	Fee       *float64
	Timestamp time.Time
}

// ApplyFill records a cumulative fill of the given total filled quantity.
// The invariant filled + remaining == amount must hold after every event;
// an event that would break it is rejected without mutating the order,
// because it indicates an upstream reconciliation bug that must not leak
// into reported fills.
func (o *Order) ApplyFill(totalFilled float64) error {
	if o.Status.Terminal() {
		return fmt.Errorf("%w: fill on %s order", ErrBadTransition, o.Status)
	}
	if totalFilled < o.Filled {
		return fmt.Errorf("%w: %v < %v", ErrFillNotIncreasing, totalFilled, o.Filled)
	}
	if totalFilled > o.Amount {
		return fmt.Errorf("%w: filled %v exceeds amount %v", ErrFillIntegrity, totalFilled, o.Amount)
	}

	o.Filled = totalFilled
	o.Remaining = o.Amount - totalFilled
	if o.Remaining == 0 {
		o.Status = StatusFilled
	} else if o.Filled > 0 {
		o.Status = StatusPartiallyFilled
	}
	return nil
}

// Cancel transitions the order to cancelled. Only valid from open or
// partially_filled.
func (o *Order) Cancel() error {
	if o.Status != StatusOpen && o.Status != StatusPartiallyFilled {
		return fmt.Errorf("%w: cancel from %s", ErrBadTransition, o.Status)
	}
	o.Status = StatusCancelled
	return nil
}

// Reject transitions the order to rejected. Only valid from open.
func (o *Order) Reject() error {
	if o.Status != StatusOpen {
		return fmt.Errorf("%w: reject from %s", ErrBadTransition, o.Status)
	}
	o.Status = StatusRejected
	return nil
}

// CreateOrderParams are the caller-supplied parameters for a new order.
type CreateOrderParams struct {
	MarketID  string
	OutcomeID string
	Side      Side
	Type      OrderType
	Amount    float64
	Price     *float64
}
