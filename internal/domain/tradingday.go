package domain

import "time"

// DefaultExchangeTimezone is where the exchange's trading day is anchored.
const DefaultExchangeTimezone = "America/New_York"

// TradingDay maps an instant to its trading day in the exchange timezone.
// Anything before rolloverHour local still belongs to the previous day, so a
// slate of overnight events is not split across two batches.
func TradingDay(t time.Time, loc *time.Location, rolloverHour int) time.Time {
	local := t.In(loc)
	if local.Hour() < rolloverHour {
		local = local.AddDate(0, 0, -1)
	}
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// TradingDayString is TradingDay formatted as a batch_date key.
func TradingDayString(t time.Time, loc *time.Location, rolloverHour int) string {
	return TradingDay(t, loc, rolloverHour).Format("2006-01-02")
}
