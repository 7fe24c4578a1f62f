// Package publish persists reconciled top-of-book data for out-of-process
// consumers. The only implementation writes best bid/ask/mid hashes to
// Redis.
package publish

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/pmxt-dev/pmxt/internal/stream"
)

// RedisClient abstracts the Redis operations used by the writer. Satisfied
// by *redis.Client in production and a mock in tests.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...any) error
}

// topOfBook is the last-written quote per key, used to suppress duplicate
// writes.
type topOfBook struct {
	Bid string
	Ask string
}

// RedisWriter consumes a book-event firehose and persists the best
// bid/ask/mid per outcome:
//
//	Key:    book:{exchange}:{outcome_id}
//	Fields: bid, ask, mid, ts
//
// Writes never block the feed: events are buffered internally and flushed
// by a dedicated goroutine, with unchanged quotes suppressed.
type RedisWriter struct {
	client RedisClient
	logger *zap.Logger
	feed   <-chan stream.BookEvent
	buf    chan stream.BookEvent

	mu   sync.Mutex
	last map[string]topOfBook
}

// NewRedisWriter creates a writer reading from feed, typically a
// Broadcaster SubscribeAll channel.
func NewRedisWriter(client RedisClient, feed <-chan stream.BookEvent, logger *zap.Logger) *RedisWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisWriter{
		client: client,
		logger: logger,
		feed:   feed,
		buf:    make(chan stream.BookEvent, 1024),
		last:   make(map[string]topOfBook),
	}
}

// Run drains the feed into the internal buffer and flushes buffered events
// to Redis. It blocks until ctx is cancelled.
func (rw *RedisWriter) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	// Ingestion never blocks the broadcaster.
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-rw.feed:
				if !ok {
					return
				}
				select {
				case rw.buf <- ev:
				default:
					// Buffer full, drop and let the next event catch up.
				}
			}
		}
	}()

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-rw.buf:
				if !ok {
					return
				}
				rw.write(ctx, ev)
			}
		}
	}()

	wg.Wait()
}

func (rw *RedisWriter) write(ctx context.Context, ev stream.BookEvent) {
	if ev.Book == nil {
		return
	}

	bid, ask := "0", "0"
	var bidF, askF float64
	if l, ok := ev.Book.BestBid(); ok {
		bidF = l.Price
		bid = formatPrice(l.Price)
	}
	if l, ok := ev.Book.BestAsk(); ok {
		askF = l.Price
		ask = formatPrice(l.Price)
	}

	key := fmt.Sprintf("book:%s:%s", ev.Exchange, ev.OutcomeID)

	rw.mu.Lock()
	prev, exists := rw.last[key]
	if exists && prev.Bid == bid && prev.Ask == ask {
		rw.mu.Unlock()
		return
	}
	rw.last[key] = topOfBook{Bid: bid, Ask: ask}
	rw.mu.Unlock()

	mid := "0"
	if bidF > 0 && askF > 0 {
		mid = formatPrice((bidF + askF) / 2)
	}
	ts := strconv.FormatInt(ev.Timestamp.UnixMilli(), 10)

	if err := rw.client.HSet(ctx, key, "bid", bid, "ask", ask, "mid", mid, "ts", ts); err != nil {
		rw.logger.Warn("redis write failed", zap.String("key", key), zap.Error(err))
	}
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
