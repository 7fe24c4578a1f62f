package stream

import (
	"context"
	"math"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnState exposes connection health. Consumers (the trading gate) read
// this to decide whether order submission should be allowed.
type ConnState int32

const (
	ConnHealthy ConnState = iota
	ConnDown
)

// WSConfig holds tunable parameters for a WSClient.
type WSConfig struct {
	URL string

	ReadBufferSize  int
	WriteBufferSize int

	// HeartbeatTimeout is the maximum silence before the connection is
	// considered dead and a reconnect is triggered.
	HeartbeatTimeout time.Duration

	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffFactor  float64

	// Headers sent during the WebSocket handshake (exchange auth).
	Headers http.Header
}

// DefaultWSConfig returns defaults tuned for exchange market-data feeds.
func DefaultWSConfig(url string) WSConfig {
	return WSConfig{
		URL:              url,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HeartbeatTimeout: 30 * time.Second,
		BackoffInitial:   100 * time.Millisecond,
		BackoffMax:       10 * time.Second,
		BackoffFactor:    2.0,
	}
}

// WSClient is a resilient WebSocket connection: it reconnects with
// exponential backoff, monitors heartbeats via read deadlines, and fans
// inbound messages out to subscribers.
type WSClient struct {
	cfg    WSConfig
	logger *zap.Logger

	state atomic.Int32

	mu   sync.RWMutex
	conn *websocket.Conn

	subMu sync.RWMutex
	subs  []chan []byte

	outbox chan []byte

	cancel context.CancelFunc
	done   chan struct{}

	// onReconnect runs after each successful reconnection. The stream
	// reconciler uses it to reset per-outcome state: after a reconnect no
	// update is trusted until a fresh snapshot arrives.
	reconnectMu sync.Mutex
	onReconnect []func()
}

// NewWSClient creates a WebSocket client. Call Connect to start.
func NewWSClient(cfg WSConfig, logger *zap.Logger) *WSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSClient{
		cfg:    cfg,
		logger: logger,
		outbox: make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// State returns the current connection health.
func (ws *WSClient) State() ConnState {
	return ConnState(ws.state.Load())
}

// OnReconnect registers a hook invoked after every successful reconnect.
func (ws *WSClient) OnReconnect(fn func()) {
	ws.reconnectMu.Lock()
	ws.onReconnect = append(ws.onReconnect, fn)
	ws.reconnectMu.Unlock()
}

// Subscribe returns a channel receiving a copy of every inbound message.
// The caller must drain it; slow subscribers have messages dropped.
func (ws *WSClient) Subscribe() <-chan []byte {
	ch := make(chan []byte, 512)
	ws.subMu.Lock()
	ws.subs = append(ws.subs, ch)
	ws.subMu.Unlock()
	return ch
}

// Send enqueues a message for delivery over the connection.
func (ws *WSClient) Send(data []byte) {
	select {
	case ws.outbox <- data:
	default:
		ws.logger.Warn("outbox full, dropping message", zap.Int("bytes", len(data)))
	}
}

// Connect dials the endpoint and starts the read/write loops. It blocks
// until the initial connection succeeds or ctx is cancelled.
func (ws *WSClient) Connect(ctx context.Context) error {
	ctx, ws.cancel = context.WithCancel(ctx)

	if err := ws.dial(ctx); err != nil {
		return err
	}
	ws.state.Store(int32(ConnHealthy))

	go ws.readLoop(ctx)
	go ws.writeLoop(ctx)

	return nil
}

// Close shuts the client down, closing the connection and all subscriber
// channels.
func (ws *WSClient) Close() {
	if ws.cancel != nil {
		ws.cancel()
	}
	ws.mu.Lock()
	if ws.conn != nil {
		ws.conn.Close()
	}
	ws.mu.Unlock()

	ws.subMu.RLock()
	for _, ch := range ws.subs {
		close(ch)
	}
	ws.subMu.RUnlock()

	close(ws.done)
}

// Done returns a channel closed when the client has fully shut down.
func (ws *WSClient) Done() <-chan struct{} {
	return ws.done
}

func (ws *WSClient) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		ReadBufferSize:  ws.cfg.ReadBufferSize,
		WriteBufferSize: ws.cfg.WriteBufferSize,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := net.Dialer{}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tc, ok := conn.(*net.TCPConn); ok {
				tc.SetNoDelay(true)
			}
			return conn, nil
		},
	}

	conn, _, err := dialer.DialContext(ctx, ws.cfg.URL, ws.cfg.Headers)
	if err != nil {
		return err
	}

	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()
	return nil
}

// reconnect loops with exponential backoff until the connection is
// re-established or ctx is cancelled.
func (ws *WSClient) reconnect(ctx context.Context) bool {
	ws.state.Store(int32(ConnDown))

	delay := ws.cfg.BackoffInitial
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		if err := ws.dial(ctx); err != nil {
			ws.logger.Warn("reconnect failed", zap.Error(err), zap.Duration("retry_in", delay))
			delay = time.Duration(math.Min(
				float64(delay)*ws.cfg.BackoffFactor,
				float64(ws.cfg.BackoffMax),
			))
			continue
		}

		ws.state.Store(int32(ConnHealthy))
		ws.reconnectMu.Lock()
		hooks := append([]func(){}, ws.onReconnect...)
		ws.reconnectMu.Unlock()
		for _, fn := range hooks {
			fn()
		}
		return true
	}
}

// readLoop reads messages and fans them out. The read deadline doubles as
// the heartbeat monitor: silence beyond HeartbeatTimeout forces a reconnect.
func (ws *WSClient) readLoop(ctx context.Context) {
	for {
		ws.mu.RLock()
		c := ws.conn
		ws.mu.RUnlock()

		c.SetReadDeadline(time.Now().Add(ws.cfg.HeartbeatTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ws.logger.Warn("read error, reconnecting", zap.Error(err))
			c.Close()
			if !ws.reconnect(ctx) {
				return
			}
			continue
		}

		ws.fanOut(msg)
	}
}

func (ws *WSClient) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-ws.outbox:
			ws.mu.RLock()
			c := ws.conn
			ws.mu.RUnlock()
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				ws.logger.Warn("write error", zap.Error(err))
			}
		}
	}
}

func (ws *WSClient) fanOut(msg []byte) {
	ws.subMu.RLock()
	defer ws.subMu.RUnlock()

	for _, ch := range ws.subs {
		select {
		case ch <- msg:
		default:
			// Slow consumer, drop to avoid head-of-line blocking.
		}
	}
}
