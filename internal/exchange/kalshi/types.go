package kalshi

// Raw trade-api/v2 wire types. Prices arrive in cents; the normalizer
// converts everything to the unified [0,1] scale before it leaves this
// package.

type rawEvent struct {
	EventTicker  string      `json:"event_ticker"`
	SeriesTicker string      `json:"series_ticker"`
	Title        string      `json:"title"`
	SubTitle     string      `json:"sub_title"`
	Category     string      `json:"category"`
	Markets      []rawMarket `json:"markets"`
}

type rawEventsPage struct {
	Events []rawEvent `json:"events"`
	Cursor string     `json:"cursor"`
}

type rawMarket struct {
	Ticker       string `json:"ticker"`
	EventTicker  string `json:"event_ticker"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	RulesPrimary string `json:"rules_primary"`
	Category     string `json:"category"`

	YesBid        int `json:"yes_bid"`
	YesAsk        int `json:"yes_ask"`
	LastPrice     int `json:"last_price"`
	PreviousPrice int `json:"previous_price"`

	Volume       float64 `json:"volume"`
	Volume24h    float64 `json:"volume_24h"`
	Liquidity    float64 `json:"liquidity"`
	OpenInterest float64 `json:"open_interest"`

	CloseTime string `json:"close_time"`
	Status    string `json:"status"`
}

type rawSeries struct {
	Ticker   string   `json:"ticker"`
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
}

type rawSeriesResponse struct {
	Series rawSeries `json:"series"`
}

// Depth levels are [price_cents, quantity] pairs; both sides are resting
// bids in the native convention.
type rawOrderbook struct {
	Yes [][2]int `json:"yes"`
	No  [][2]int `json:"no"`
}

type rawOrderbookResponse struct {
	Orderbook rawOrderbook `json:"orderbook"`
}

type rawTrade struct {
	TradeID     string  `json:"trade_id"`
	Ticker      string  `json:"ticker"`
	YesPrice    int     `json:"yes_price"`
	Count       float64 `json:"count"`
	TakerSide   string  `json:"taker_side"`
	CreatedTime string  `json:"created_time"`
}

type rawTradesPage struct {
	Trades []rawTrade `json:"trades"`
	Cursor string     `json:"cursor"`
}

type rawOrder struct {
	OrderID        string  `json:"order_id"`
	ClientOrderID  string  `json:"client_order_id"`
	Ticker         string  `json:"ticker"`
	Side           string  `json:"side"`
	Action         string  `json:"action"`
	Type           string  `json:"type"`
	YesPrice       int     `json:"yes_price"`
	Status         string  `json:"status"`
	InitialCount   float64 `json:"initial_count"`
	RemainingCount float64 `json:"remaining_count"`
	CreatedTime    string  `json:"created_time"`
}

type rawOrderResponse struct {
	Order rawOrder `json:"order"`
}

type rawOrdersPage struct {
	Orders []rawOrder `json:"orders"`
	Cursor string     `json:"cursor"`
}

type createOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Type          string `json:"type"`
	Count         int    `json:"count"`
	YesPrice      int    `json:"yes_price,omitempty"`
}

type rawBalanceResponse struct {
	Balance float64 `json:"balance"` // cents
	Payout  float64 `json:"payout"`
}

type rawPosition struct {
	Ticker           string  `json:"ticker"`
	Position         float64 `json:"position"`
	MarketExposure   float64 `json:"market_exposure"`
	RealizedPnl      float64 `json:"realized_pnl"`
	TotalTradedCents float64 `json:"total_traded"`
}

type rawPositionsPage struct {
	MarketPositions []rawPosition `json:"market_positions"`
	Cursor          string        `json:"cursor"`
}
