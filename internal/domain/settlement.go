package domain

import "time"

// Settlement is the exchange's record of a market that resolved, with the
// realized economics for the account's contracts.
type Settlement struct {
	Ticker       string
	MarketResult Side // winning side
	RevenueCents int
	FeeCents     int
	SettledTime  time.Time
}
