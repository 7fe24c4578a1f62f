package kalshi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/pmxt-dev/pmxt/internal/exchange/rest"
)

// Default endpoints.
const (
	DefaultBaseURL = "https://api.elections.kalshi.com" + apiPathPrefix
	DefaultWSURL   = "wss://api.elections.kalshi.com" + wsPath
)

const wsPath = "/trade-api/ws/v2"

// Client talks to the Kalshi trade API. Public market data needs no
// signing; portfolio endpoints are signed per request when a Signer is
// configured.
type Client struct {
	public  *rest.Client
	private *rest.Client // nil without credentials
}

// NewClient creates a Client. signer may be nil for market-data-only use.
func NewClient(baseURL string, logger *zap.Logger, signer *Signer, opts ...rest.Option) *Client {
	base := append([]rest.Option{rest.WithLogger(logger)}, opts...)
	c := &Client{public: rest.New(baseURL, base...)}
	if signer != nil {
		private := append(base, rest.WithHeaderFunc(signer.Headers))
		c.private = rest.New(baseURL, private...)
	}
	return c
}

// Authenticated reports whether portfolio endpoints are usable.
func (c *Client) Authenticated() bool { return c.private != nil }

// ListEvents fetches one page of open events with nested markets. Kalshi
// paginates by cursor.
func (c *Client) ListEvents(ctx context.Context, limit int, cursor string) (*rawEventsPage, error) {
	q := url.Values{}
	q.Set("status", "open")
	q.Set("with_nested_markets", "true")
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var page rawEventsPage
	if err := c.public.Get(ctx, "/events", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Series fetches one series record, the tag source for its events.
func (c *Client) Series(ctx context.Context, seriesTicker string) (*rawSeries, error) {
	var resp rawSeriesResponse
	if err := c.public.Get(ctx, "/series/"+seriesTicker, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Series, nil
}

// Orderbook fetches native depth for one market ticker.
func (c *Client) Orderbook(ctx context.Context, ticker string, depth int) (*rawOrderbook, error) {
	q := url.Values{}
	if depth > 0 {
		q.Set("depth", strconv.Itoa(depth))
	}

	var resp rawOrderbookResponse
	if err := c.public.Get(ctx, "/markets/"+ticker+"/orderbook", q, &resp); err != nil {
		return nil, err
	}
	return &resp.Orderbook, nil
}

// Trades fetches one page of trades for a market ticker.
func (c *Client) Trades(ctx context.Context, ticker string, limit int, cursor string) (*rawTradesPage, error) {
	q := url.Values{}
	q.Set("ticker", ticker)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var page rawTradesPage
	if err := c.public.Get(ctx, "/markets/trades", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateOrder submits a signed order.
func (c *Client) CreateOrder(ctx context.Context, req createOrderRequest) (*rawOrder, error) {
	var resp rawOrderResponse
	if err := c.private.Do(ctx, http.MethodPost, "/portfolio/orders", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// CancelOrder cancels a resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*rawOrder, error) {
	var resp rawOrderResponse
	if err := c.private.Do(ctx, http.MethodDelete, "/portfolio/orders/"+orderID, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// Order fetches one order.
func (c *Client) Order(ctx context.Context, orderID string) (*rawOrder, error) {
	var resp rawOrderResponse
	if err := c.private.Get(ctx, "/portfolio/orders/"+orderID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

// OpenOrders fetches resting orders, optionally scoped to one ticker.
func (c *Client) OpenOrders(ctx context.Context, ticker, cursor string) (*rawOrdersPage, error) {
	q := url.Values{}
	q.Set("status", "resting")
	if ticker != "" {
		q.Set("ticker", ticker)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var page rawOrdersPage
	if err := c.private.Get(ctx, "/portfolio/orders", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Balance fetches the account balance in cents.
func (c *Client) Balance(ctx context.Context) (*rawBalanceResponse, error) {
	var resp rawBalanceResponse
	if err := c.private.Get(ctx, "/portfolio/balance", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Positions fetches one page of market positions.
func (c *Client) Positions(ctx context.Context, cursor string) (*rawPositionsPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var page rawPositionsPage
	if err := c.private.Get(ctx, "/portfolio/positions", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
