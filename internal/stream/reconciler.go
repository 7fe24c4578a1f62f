package stream

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pmxt-dev/pmxt/internal/book"
)

// ReconcilerState is the per-outcome lifecycle of snapshot/stream merging.
type ReconcilerState int

const (
	// StateUninitialized: no snapshot yet; live updates are buffered.
	StateUninitialized ReconcilerState = iota
	// StateSnapshotLoaded: snapshot applied, buffered updates replayed.
	StateSnapshotLoaded
	// StateStreaming: at least one live update applied past the snapshot.
	StateStreaming
)

// DefaultBufferLimit bounds the pre-snapshot update queue per outcome.
const DefaultBufferLimit = 1024

// Reconciler merges a REST snapshot with a live update stream into one
// coherent, monotonically advancing book for a single outcome. It is owned
// exclusively by that outcome's subscription; there is no cross-outcome
// sharing.
type Reconciler struct {
	outcomeID string
	limit     int
	logger    *zap.Logger

	mu     sync.Mutex
	state  ReconcilerState
	book   *book.OrderBook
	buffer []book.Update
}

// NewReconciler creates a reconciler for one outcome. bufferLimit <= 0
// selects DefaultBufferLimit.
func NewReconciler(outcomeID string, bufferLimit int, logger *zap.Logger) *Reconciler {
	if bufferLimit <= 0 {
		bufferLimit = DefaultBufferLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		outcomeID: outcomeID,
		limit:     bufferLimit,
		logger:    logger,
		state:     StateUninitialized,
	}
}

// State returns the current lifecycle state.
func (r *Reconciler) State() ReconcilerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Watermark is the timestamp of the most recently applied update, used to
// reject stale or duplicate updates. Zero before a snapshot loads.
func (r *Reconciler) Watermark() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.book == nil {
		return time.Time{}
	}
	return r.book.Timestamp
}

// Book returns a copy of the current reconciled book, or nil before the
// first snapshot.
func (r *Reconciler) Book() *book.OrderBook {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.book == nil {
		return nil
	}
	return r.book.Clone()
}

// LoadSnapshot installs a REST snapshot and replays any buffered updates
// whose timestamps exceed the snapshot's watermark, in timestamp order.
// Updates at or before the watermark are discarded. Returns a copy of the
// resulting book.
func (r *Reconciler) LoadSnapshot(snap *book.OrderBook) (*book.OrderBook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.book = snap.Clone()
	r.state = StateSnapshotLoaded

	pending := r.buffer
	r.buffer = nil
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Timestamp.Before(pending[j].Timestamp)
	})

	// Updates buffered from one message share a timestamp, so they replay
	// as a batch: the watermark must advance once per message, not once
	// per level.
	replayed := 0
	for i := 0; i < len(pending); {
		j := i + 1
		for j < len(pending) && pending[j].Timestamp.Equal(pending[i].Timestamp) {
			j++
		}
		applied, err := r.book.ApplyBatch(pending[i:j])
		if err != nil {
			return nil, err
		}
		if applied {
			replayed += j - i
		}
		i = j
	}
	if replayed > 0 {
		r.state = StateStreaming
		r.logger.Debug("replayed buffered updates",
			zap.String("outcome", r.outcomeID),
			zap.Int("replayed", replayed),
			zap.Int("discarded", len(pending)-replayed),
		)
	}

	return r.book.Clone(), nil
}

// ApplyUpdate feeds one live update in. Before a snapshot it is buffered
// (bounded: the oldest buffered update is evicted on overflow, since the
// snapshot will supersede it anyway). After a snapshot it is applied only
// if it advances the watermark; applying the same update twice is a no-op
// the second time. Returns a copy of the book when the update was applied,
// nil otherwise.
func (r *Reconciler) ApplyUpdate(u book.Update) (*book.OrderBook, error) {
	return r.ApplyBatch([]book.Update{u})
}

// ApplyBatch feeds in every update from one stream message together. The
// updates share the message timestamp, and the watermark advances once for
// the whole batch, so multi-level messages land atomically instead of the
// first level masking the rest. Buffering, idempotent-replay, and return
// semantics match ApplyUpdate.
func (r *Reconciler) ApplyBatch(updates []book.Update) (*book.OrderBook, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateUninitialized {
		for _, u := range updates {
			if len(r.buffer) >= r.limit {
				r.buffer = r.buffer[1:]
			}
			r.buffer = append(r.buffer, u)
		}
		return nil, nil
	}

	applied, err := r.book.ApplyBatch(updates)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, nil
	}
	r.state = StateStreaming
	return r.book.Clone(), nil
}

// Reset returns the outcome to uninitialized. Called on reconnect: no
// further update is trusted until a fresh snapshot is loaded.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.state = StateUninitialized
	r.book = nil
	r.buffer = nil
	r.mu.Unlock()
}
