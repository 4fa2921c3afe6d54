package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradingDay_EarlyMorningRollsBack(t *testing.T) {
	loc, err := time.LoadLocation(DefaultExchangeTimezone)
	require.NoError(t, err)

	// 2:30 AM local on the 15th still belongs to the 14th's slate.
	early := time.Date(2026, 3, 15, 2, 30, 0, 0, loc)
	assert.Equal(t, "2026-03-14", TradingDayString(early, loc, 4))

	// 4:00 AM exactly starts the new trading day.
	atRollover := time.Date(2026, 3, 15, 4, 0, 0, 0, loc)
	assert.Equal(t, "2026-03-15", TradingDayString(atRollover, loc, 4))

	evening := time.Date(2026, 3, 15, 22, 0, 0, 0, loc)
	assert.Equal(t, "2026-03-15", TradingDayString(evening, loc, 4))
}

func TestTradingDay_ConvertsFromUTC(t *testing.T) {
	loc, err := time.LoadLocation(DefaultExchangeTimezone)
	require.NoError(t, err)

	// 03:00 UTC on the 16th is 23:00 ET on the 15th (EDT).
	utc := time.Date(2026, 6, 16, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-06-15", TradingDayString(utc, loc, 4))
}
