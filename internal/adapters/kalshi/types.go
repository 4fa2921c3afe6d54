package kalshi

// Wire types for the Kalshi trade API v2. Prices and balances are integer
// cents throughout, matching the API's native representation.

type balanceResponse struct {
	BalanceCents int64 `json:"balance"`
}

type positionsResponse struct {
	MarketPositions []marketPosition `json:"market_positions"`
	Cursor          string           `json:"cursor"`
}

type marketPosition struct {
	Ticker              string `json:"ticker"`
	Position            int    `json:"position"`
	MarketExposureCents int    `json:"market_exposure"`
	TotalTradedCents    int    `json:"total_traded"`
}

type ordersResponse struct {
	Orders []apiOrder `json:"orders"`
	Cursor string     `json:"cursor"`
}

type orderResponse struct {
	Order apiOrder `json:"order"`
}

type apiOrder struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Side           string `json:"side"` // "yes" | "no"
	Action         string `json:"action"`
	Status         string `json:"status"` // "resting" | "executed" | "canceled"
	YesPriceCents  int    `json:"yes_price"`
	NoPriceCents   int    `json:"no_price"`
	InitialCount   int    `json:"initial_count"`
	RemainingCount int    `json:"remaining_count"`
	CreatedTime    string `json:"created_time"`
}

type createOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`
	Action        string `json:"action"`
	Count         int    `json:"count"`
	Type          string `json:"type"`
	YesPriceCents int    `json:"yes_price,omitempty"`
	NoPriceCents  int    `json:"no_price,omitempty"`
}

type settlementsResponse struct {
	Settlements []apiSettlement `json:"settlements"`
	Cursor      string          `json:"cursor"`
}

type apiSettlement struct {
	Ticker       string `json:"ticker"`
	MarketResult string `json:"market_result"` // "yes" | "no"
	RevenueCents int    `json:"revenue"`
	FeeCents     int    `json:"fee_paid"`
	SettledTime  string `json:"settled_time"`
}

type marketsResponse struct {
	Markets []apiMarket `json:"markets"`
	Cursor  string      `json:"cursor"`
}

type apiMarket struct {
	Ticker       string `json:"ticker"`
	EventTicker  string `json:"event_ticker"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	YesAskCents  int    `json:"yes_ask"`
	NoAskCents   int    `json:"no_ask"`
	Volume       int64  `json:"volume"`
	OpenInterest int64  `json:"open_interest"`
	CloseTime    string `json:"close_time"` // RFC 3339
}
