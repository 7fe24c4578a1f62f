package stream

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pmxt-dev/pmxt/internal/model"
)

// Keyed is any event routable by (exchange, outcome id).
type Keyed interface {
	Key() (model.Exchange, string)
}

type subKey struct {
	Exchange  model.Exchange
	OutcomeID string
}

// Subscription is a cancellable handle to a filtered event feed. Closing it
// detaches the channel from the hub; C is closed afterwards.
type Subscription[T Keyed] struct {
	C <-chan T

	once   sync.Once
	cancel func()
}

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(s.cancel)
}

// Broadcaster is a many-to-many hub: it ingests events from any number of
// adapter sources and distributes them to filtered subscribers and an
// unfiltered firehose. Delivery is non-blocking; slow consumers have
// events dropped rather than stalling the hot path.
type Broadcaster[T Keyed] struct {
	logger  *zap.Logger
	sources []<-chan T

	mu   sync.RWMutex
	subs map[subKey][]chan T

	allMu  sync.RWMutex
	allSub []chan T
}

// NewBroadcaster creates a hub ready for source registration.
func NewBroadcaster[T Keyed](logger *zap.Logger) *Broadcaster[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster[T]{
		logger: logger,
		subs:   make(map[subKey][]chan T),
	}
}

// Register adds a source channel. Must be called before Run.
func (b *Broadcaster[T]) Register(src <-chan T) {
	b.sources = append(b.sources, src)
}

// Subscribe returns a handle receiving events for one (exchange, outcome)
// pair. The caller must drain the channel and Close the handle when done.
func (b *Broadcaster[T]) Subscribe(exchange model.Exchange, outcomeID string) *Subscription[T] {
	ch := make(chan T, 256)
	key := subKey{Exchange: exchange, OutcomeID: outcomeID}

	b.mu.Lock()
	b.subs[key] = append(b.subs[key], ch)
	b.mu.Unlock()

	return &Subscription[T]{
		C: ch,
		cancel: func() {
			b.mu.Lock()
			b.subs[key] = removeChan(b.subs[key], ch)
			b.mu.Unlock()
			close(ch)
		},
	}
}

// SubscribeAll returns a handle receiving every event regardless of
// exchange or outcome. Intended for persistence and metrics consumers.
func (b *Broadcaster[T]) SubscribeAll() *Subscription[T] {
	ch := make(chan T, 512)

	b.allMu.Lock()
	b.allSub = append(b.allSub, ch)
	b.allMu.Unlock()

	return &Subscription[T]{
		C: ch,
		cancel: func() {
			b.allMu.Lock()
			b.allSub = removeChan(b.allSub, ch)
			b.allMu.Unlock()
			close(ch)
		},
	}
}

// Run consumes all registered sources and distributes events until ctx is
// cancelled. Each source gets its own goroutine.
func (b *Broadcaster[T]) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, src := range b.sources {
		wg.Add(1)
		go func(ch <-chan T) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					b.distribute(ev)
				}
			}
		}(src)
	}

	wg.Wait()
}

func (b *Broadcaster[T]) distribute(ev T) {
	exchange, outcomeID := ev.Key()
	key := subKey{Exchange: exchange, OutcomeID: outcomeID}

	b.mu.RLock()
	for _, ch := range b.subs[key] {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				zap.String("exchange", string(exchange)),
				zap.String("outcome", outcomeID),
			)
		}
	}
	b.mu.RUnlock()

	b.allMu.RLock()
	for _, ch := range b.allSub {
		select {
		case ch <- ev:
		default:
			// Slow firehose subscriber, drop.
		}
	}
	b.allMu.RUnlock()
}

func removeChan[T any](chans []chan T, target chan T) []chan T {
	for i, ch := range chans {
		if ch == target {
			return append(chans[:i], chans[i+1:]...)
		}
	}
	return chans
}
