package polymarket

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/pmxt-dev/pmxt/internal/exchange/rest"
)

// Default endpoints.
const (
	DefaultGammaURL = "https://gamma-api.polymarket.com"
	DefaultCLOBURL  = "https://clob.polymarket.com"
	DefaultWSURL    = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
)

// Client talks to the two Polymarket REST surfaces: Gamma for the market
// catalog and CLOB for per-token depth, trades, and price history.
type Client struct {
	gamma *rest.Client
	clob  *rest.Client
}

// NewClient creates a Client. opts apply to both underlying transports.
func NewClient(gammaURL, clobURL string, logger *zap.Logger, opts ...rest.Option) *Client {
	opts = append([]rest.Option{rest.WithLogger(logger)}, opts...)
	return &Client{
		gamma: rest.New(gammaURL, opts...),
		clob:  rest.New(clobURL, opts...),
	}
}

// ListEvents fetches one page of open events with nested markets. Gamma
// paginates by offset.
func (c *Client) ListEvents(ctx context.Context, limit, offset int) ([]gammaEvent, error) {
	q := url.Values{}
	q.Set("closed", "false")
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var events []gammaEvent
	if err := c.gamma.Get(ctx, "/events", q, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// EventsBySlug fetches the events matching an exact slug.
func (c *Client) EventsBySlug(ctx context.Context, slug string) ([]gammaEvent, error) {
	q := url.Values{}
	q.Set("slug", slug)

	var events []gammaEvent
	if err := c.gamma.Get(ctx, "/events", q, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Book fetches the current depth for one CLOB token.
func (c *Client) Book(ctx context.Context, tokenID string) (*clobBook, error) {
	q := url.Values{}
	q.Set("token_id", tokenID)

	var b clobBook
	if err := c.clob.Get(ctx, "/book", q, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Trades fetches recent trades for one CLOB token.
func (c *Client) Trades(ctx context.Context, tokenID string, limit int) ([]clobTrade, error) {
	q := url.Values{}
	q.Set("market", tokenID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var page clobTradesPage
	if err := c.clob.Get(ctx, "/trades", q, &page); err != nil {
		return nil, err
	}
	return page.History, nil
}

// PriceHistory fetches raw price samples for one CLOB token. start and end
// are unix seconds; zero means unbounded. fidelity is the sample spacing
// in minutes.
func (c *Client) PriceHistory(ctx context.Context, tokenID string, start, end int64, fidelity int) ([]pricePoint, error) {
	q := url.Values{}
	q.Set("market", tokenID)
	if start > 0 {
		q.Set("startTs", strconv.FormatInt(start, 10))
	}
	if end > 0 {
		q.Set("endTs", strconv.FormatInt(end, 10))
	}
	if fidelity > 0 {
		q.Set("fidelity", strconv.Itoa(fidelity))
	}

	var h priceHistory
	if err := c.clob.Get(ctx, "/prices-history", q, &h); err != nil {
		return nil, err
	}
	return h.History, nil
}
