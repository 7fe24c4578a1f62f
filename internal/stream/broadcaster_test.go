package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmxt-dev/pmxt/internal/book"
	"github.com/pmxt-dev/pmxt/internal/model"
)

func bookEvent(exchange model.Exchange, outcomeID string, sec int) BookEvent {
	return BookEvent{
		Exchange:  exchange,
		OutcomeID: outcomeID,
		Book:      book.New(nil, nil, ts(sec)),
		Timestamp: ts(sec),
	}
}

func TestBroadcasterRoutesByKey(t *testing.T) {
	src := make(chan BookEvent, 8)
	bc := NewBroadcaster[BookEvent](nil)
	bc.Register(src)

	subA := bc.Subscribe(model.ExchangePolymarket, "tokA")
	subB := bc.Subscribe(model.ExchangeKalshi, "tokB")
	all := bc.SubscribeAll()
	defer subA.Close()
	defer subB.Close()
	defer all.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go bc.Run(ctx)

	src <- bookEvent(model.ExchangePolymarket, "tokA", 1)
	src <- bookEvent(model.ExchangeKalshi, "tokB", 2)

	select {
	case ev := <-subA.C:
		assert.Equal(t, "tokA", ev.OutcomeID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tokA event")
	}

	select {
	case ev := <-subB.C:
		assert.Equal(t, "tokB", ev.OutcomeID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tokB event")
	}

	// Firehose sees both.
	for i := 0; i < 2; i++ {
		select {
		case <-all.C:
		case <-time.After(time.Second):
			t.Fatalf("firehose missed event %d", i)
		}
	}

	// No cross-talk: subA must not receive tokB's event.
	select {
	case ev := <-subA.C:
		t.Fatalf("unexpected event on subA: %+v", ev)
	default:
	}
}

func TestSubscriptionCloseDetaches(t *testing.T) {
	src := make(chan BookEvent, 8)
	bc := NewBroadcaster[BookEvent](nil)
	bc.Register(src)

	sub := bc.Subscribe(model.ExchangePolymarket, "tokA")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go bc.Run(ctx)

	sub.Close()
	sub.Close() // idempotent

	_, open := <-sub.C
	assert.False(t, open, "channel closed after unsubscribe")
}

func TestSessionManagerRefCounting(t *testing.T) {
	starts, stops := 0, 0
	mgr := NewSessionManager(func(outcomeID string, rec *Reconciler) (func(), error) {
		starts++
		return func() { stops++ }, nil
	}, nil)

	rec1, release1, err := mgr.Acquire("tokA")
	require.NoError(t, err)
	rec2, release2, err := mgr.Acquire("tokA")
	require.NoError(t, err)

	assert.Same(t, rec1, rec2, "watchers of one outcome share the reconciler")
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, mgr.Active())

	release1()
	release1() // idempotent
	assert.Equal(t, 0, stops)

	release2()
	assert.Equal(t, 1, stops)
	assert.Equal(t, 0, mgr.Active())

	// A new acquire starts a fresh session.
	_, release3, err := mgr.Acquire("tokA")
	require.NoError(t, err)
	assert.Equal(t, 2, starts)
	release3()
}

func TestSessionManagerCloseAll(t *testing.T) {
	stops := 0
	mgr := NewSessionManager(func(string, *Reconciler) (func(), error) {
		return func() { stops++ }, nil
	}, nil)

	_, _, err := mgr.Acquire("a")
	require.NoError(t, err)
	_, _, err = mgr.Acquire("b")
	require.NoError(t, err)

	mgr.CloseAll()
	assert.Equal(t, 2, stops)
	assert.Equal(t, 0, mgr.Active())
}
