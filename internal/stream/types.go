package stream

import (
	"time"

	"github.com/pmxt-dev/pmxt/internal/book"
	"github.com/pmxt-dev/pmxt/internal/model"
)

// BookEvent is a reconciled order book for one outcome, emitted to
// subscribers after every accepted update.
type BookEvent struct {
	Exchange  model.Exchange
	OutcomeID string
	Book      *book.OrderBook
	Timestamp time.Time
}

// Key identifies the subscription channel this event belongs to.
func (e BookEvent) Key() (model.Exchange, string) { return e.Exchange, e.OutcomeID }

// TradeEvent is one live trade for an outcome.
type TradeEvent struct {
	Exchange  model.Exchange
	OutcomeID string
	Trade     model.Trade
}

// Key identifies the subscription channel this event belongs to.
func (e TradeEvent) Key() (model.Exchange, string) { return e.Exchange, e.OutcomeID }
