package polymarket

// Raw Gamma and CLOB wire types. Gamma serialises most numeric fields as
// strings, and outcome/price/token lists arrive as JSON arrays encoded
// inside JSON strings. Nothing in this file leaks past the normalizer.

type gammaTag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

type gammaMarket struct {
	ID          string `json:"id"`
	Question    string `json:"question"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Category    string `json:"category"`
	EndDate     string `json:"endDate"`

	// Doubly-encoded JSON string arrays, e.g. "[\"Yes\", \"No\"]".
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
	ClobTokenIDs  string `json:"clobTokenIds"`

	Volume24hr   float64 `json:"volume24hr"`
	VolumeNum    float64 `json:"volumeNum"`
	LiquidityNum float64 `json:"liquidityNum"`

	OneDayPriceChange *float64 `json:"oneDayPriceChange"`
}

type gammaEvent struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Slug        string        `json:"slug"`
	Description string        `json:"description"`
	Image       string        `json:"image"`
	Category    string        `json:"category"`
	Tags        []gammaTag    `json:"tags"`
	Markets     []gammaMarket `json:"markets"`
}

type clobLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type clobBook struct {
	Market    string      `json:"market"`
	AssetID   string      `json:"asset_id"`
	Timestamp string      `json:"timestamp"` // unix millis
	Bids      []clobLevel `json:"bids"`
	Asks      []clobLevel `json:"asks"`
}

type clobTrade struct {
	ID        string `json:"id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp string `json:"timestamp"` // unix seconds
}

type clobTradesPage struct {
	History []clobTrade `json:"history"`
}

// pricePoint is one sample from the CLOB prices-history endpoint.
type pricePoint struct {
	T int64   `json:"t"` // unix seconds
	P float64 `json:"p"`
}

type priceHistory struct {
	History []pricePoint `json:"history"`
}
