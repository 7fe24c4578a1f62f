package publish

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmxt-dev/pmxt/internal/book"
	"github.com/pmxt-dev/pmxt/internal/model"
	"github.com/pmxt-dev/pmxt/internal/stream"
)

type mockRedis struct {
	mu    sync.Mutex
	calls []mockCall
}

type mockCall struct {
	key    string
	values []any
}

func (m *mockRedis) HSet(ctx context.Context, key string, values ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mockCall{key: key, values: values})
	return nil
}

func (m *mockRedis) snapshot() []mockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockCall(nil), m.calls...)
}

func bookEvent(outcome string, bid, ask float64, ts time.Time) stream.BookEvent {
	return stream.BookEvent{
		Exchange:  model.ExchangePolymarket,
		OutcomeID: outcome,
		Book: book.New(
			[]book.Level{{Price: bid, Size: 10}},
			[]book.Level{{Price: ask, Size: 10}},
			ts,
		),
		Timestamp: ts,
	}
}

func TestRedisWriterWritesTopOfBook(t *testing.T) {
	mock := &mockRedis{}
	feed := make(chan stream.BookEvent, 8)
	rw := NewRedisWriter(mock, feed, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { rw.Run(ctx); close(done) }()

	ts := time.UnixMilli(1748736000000)
	feed <- bookEvent("tok", 0.52, 0.58, ts)

	require.Eventually(t, func() bool { return len(mock.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	call := mock.snapshot()[0]
	assert.Equal(t, "book:polymarket:tok", call.key)
	assert.Equal(t, []any{"bid", "0.52", "ask", "0.58", "mid", "0.55", "ts", "1748736000000"}, call.values)
}

func TestRedisWriterSuppressesDuplicates(t *testing.T) {
	mock := &mockRedis{}
	feed := make(chan stream.BookEvent, 8)
	rw := NewRedisWriter(mock, feed, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rw.Run(ctx)

	ts := time.UnixMilli(1748736000000)
	feed <- bookEvent("tok", 0.52, 0.58, ts)
	feed <- bookEvent("tok", 0.52, 0.58, ts.Add(time.Second)) // same quote, newer ts
	feed <- bookEvent("tok", 0.53, 0.58, ts.Add(2*time.Second))

	require.Eventually(t, func() bool { return len(mock.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, mock.snapshot(), 2, "unchanged top of book is not rewritten")
}

func TestRedisWriterEmptyBookSides(t *testing.T) {
	mock := &mockRedis{}
	feed := make(chan stream.BookEvent, 8)
	rw := NewRedisWriter(mock, feed, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rw.Run(ctx)

	feed <- stream.BookEvent{
		Exchange:  model.ExchangeKalshi,
		OutcomeID: "KXFED-25DEC-C25",
		Book:      book.New(nil, nil, time.UnixMilli(1)),
		Timestamp: time.UnixMilli(1),
	}

	require.Eventually(t, func() bool { return len(mock.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	call := mock.snapshot()[0]
	assert.Equal(t, []any{"bid", "0", "ask", "0", "mid", "0", "ts", "1"}, call.values)
}
