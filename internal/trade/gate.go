// Package trade holds the pre-trade checks that run before an order is
// handed to a provider for signing and submission: parameter validation,
// data-freshness gating, and the execution-price sanity check.
package trade

import (
	"sync"
	"time"

	"github.com/pmxt-dev/pmxt/internal/model"
)

// GateConfig holds tunable parameters for the freshness Gate.
type GateConfig struct {
	// StaleThreshold is the maximum age of the last book event before the
	// outcome is considered stale.
	StaleThreshold time.Duration

	// CoolOff is the duration of continuous healthy data required after a
	// recovery before trading is re-enabled.
	CoolOff time.Duration
}

// DefaultGateConfig returns production defaults.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		StaleThreshold: 5 * time.Second,
		CoolOff:        2 * time.Second,
	}
}

// ConnChecker reports transport health for an exchange. Satisfied by the
// stream.WSClient via a small closure in the adapter.
type ConnChecker func(exchange model.Exchange) bool

type gateKey struct {
	Exchange  model.Exchange
	OutcomeID string
}

type outcomeState struct {
	lastUpdate  time.Time
	recoveredAt time.Time
	healthy     bool
}

// Gate blocks order submission when market data for the target outcome is
// stale or the feed is down. It enforces connection health, data
// staleness, a cool-off after recovery, and a manual halt.
type Gate struct {
	cfg     GateConfig
	connOK  ConnChecker
	nowFunc func() time.Time // injectable clock for tests

	mu     sync.RWMutex
	states map[gateKey]*outcomeState

	haltMu sync.RWMutex
	halted bool
}

// NewGate creates a Gate. connOK may be nil when no live feed is wired, in
// which case connection health is not checked.
func NewGate(cfg GateConfig, connOK ConnChecker) *Gate {
	return &Gate{
		cfg:     cfg,
		connOK:  connOK,
		nowFunc: time.Now,
		states:  make(map[gateKey]*outcomeState),
	}
}

// SetClock replaces the gate's clock. Test hook.
func (g *Gate) SetClock(now func() time.Time) { g.nowFunc = now }

// Halt blocks all trading until Resume.
func (g *Gate) Halt() {
	g.haltMu.Lock()
	g.halted = true
	g.haltMu.Unlock()
}

// Resume clears a manual halt. Outcomes still need fresh data and an
// elapsed cool-off before CanTrade returns true.
func (g *Gate) Resume() {
	g.haltMu.Lock()
	g.halted = false
	g.haltMu.Unlock()
}

// RecordUpdate notes a live book event for the outcome. Called by the
// watch pipeline on every reconciled update.
func (g *Gate) RecordUpdate(exchange model.Exchange, outcomeID string) {
	key := gateKey{Exchange: exchange, OutcomeID: outcomeID}
	now := g.nowFunc()

	g.mu.Lock()
	st, ok := g.states[key]
	if !ok {
		st = &outcomeState{}
		g.states[key] = st
	}
	wasHealthy := st.healthy
	st.lastUpdate = now
	st.healthy = true
	if !wasHealthy {
		st.recoveredAt = now
	}
	g.mu.Unlock()
}

// MarkStale forces an outcome unhealthy, e.g. on reconnect before the
// fresh snapshot arrives.
func (g *Gate) MarkStale(exchange model.Exchange, outcomeID string) {
	key := gateKey{Exchange: exchange, OutcomeID: outcomeID}
	g.mu.Lock()
	if st, ok := g.states[key]; ok {
		st.healthy = false
	}
	g.mu.Unlock()
}

// CanTrade returns true only when no halt is active, the exchange feed is
// up, the outcome's last update is within StaleThreshold, and the cool-off
// since recovery has elapsed. An outcome with no recorded data cannot
// trade.
func (g *Gate) CanTrade(exchange model.Exchange, outcomeID string) bool {
	g.haltMu.RLock()
	halted := g.halted
	g.haltMu.RUnlock()
	if halted {
		return false
	}

	if g.connOK != nil && !g.connOK(exchange) {
		return false
	}

	key := gateKey{Exchange: exchange, OutcomeID: outcomeID}
	now := g.nowFunc()

	g.mu.RLock()
	st, ok := g.states[key]
	g.mu.RUnlock()
	if !ok {
		return false
	}

	if !st.healthy {
		return false
	}
	if now.Sub(st.lastUpdate) > g.cfg.StaleThreshold {
		return false
	}
	if !st.recoveredAt.IsZero() && now.Sub(st.recoveredAt) < g.cfg.CoolOff {
		return false
	}
	return true
}

// Allows is the submission-time check used by the validator. A manual halt
// blocks everything. Outcomes with live-stream state get the full CanTrade
// check; an outcome the gate has never seen passes, because its pre-trade
// pricing comes from a REST book fetch rather than the stream.
func (g *Gate) Allows(exchange model.Exchange, outcomeID string) bool {
	g.haltMu.RLock()
	halted := g.halted
	g.haltMu.RUnlock()
	if halted {
		return false
	}

	key := gateKey{Exchange: exchange, OutcomeID: outcomeID}
	g.mu.RLock()
	_, tracked := g.states[key]
	g.mu.RUnlock()
	if !tracked {
		return true
	}
	return g.CanTrade(exchange, outcomeID)
}
