package kalshi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/dnavarro/kalshibot/internal/domain"
	"github.com/dnavarro/kalshibot/internal/ports"
)

const (
	defaultMinAskCents     = 90
	defaultMaxAskCents     = 97
	defaultMinOpenInterest = 1_000
	defaultMaxCandidates   = 15
)

// FeedConfig tunes candidate selection. The ask window is the favorite
// filter: a side priced inside it is heavily favored but still pays a spread.
type FeedConfig struct {
	MinAskCents     int
	MaxAskCents     int
	MinOpenInterest int64
	MaxCandidates   int
	SeriesTickers   []string // optional allowlist; empty means all open markets
}

// Feed selects deployable markets from the public market-data API: one side
// per market inside the ask window, one market per event, best open interest
// first, closing on the requested trading day.
type Feed struct {
	client *Client
	cfg    FeedConfig
	loc    *time.Location
}

var _ ports.CandidateFeed = (*Feed)(nil)

func NewFeed(client *Client, cfg FeedConfig, loc *time.Location) *Feed {
	if cfg.MinAskCents <= 0 {
		cfg.MinAskCents = defaultMinAskCents
	}
	if cfg.MaxAskCents <= 0 {
		cfg.MaxAskCents = defaultMaxAskCents
	}
	if cfg.MinOpenInterest <= 0 {
		cfg.MinOpenInterest = defaultMinOpenInterest
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = defaultMaxCandidates
	}
	return &Feed{client: client, cfg: cfg, loc: loc}
}

// Candidates fetches open markets and applies the selection rules for the
// given trading day.
func (f *Feed) Candidates(ctx context.Context, tradingDay time.Time) ([]domain.Candidate, error) {
	var markets []apiMarket

	series := f.cfg.SeriesTickers
	if len(series) == 0 {
		series = []string{""}
	}
	for _, s := range series {
		query := url.Values{"status": {"open"}, "limit": {pageLimit}}
		if s != "" {
			query.Set("series_ticker", s)
		}
		for {
			var resp marketsResponse
			if err := f.client.do(ctx, http.MethodGet, "/markets", query, nil, &resp); err != nil {
				return nil, fmt.Errorf("kalshi.Candidates: %w", err)
			}
			markets = append(markets, resp.Markets...)
			if resp.Cursor == "" {
				break
			}
			query.Set("cursor", resp.Cursor)
		}
	}

	day := tradingDay.In(f.loc).Format("2006-01-02")
	return selectCandidates(markets, day, f.loc, f.cfg), nil
}

// selectCandidates applies the day, liquidity and odds filters, dedupes to
// the most liquid market per event, and orders by open interest descending.
func selectCandidates(markets []apiMarket, day string, loc *time.Location, cfg FeedConfig) []domain.Candidate {
	bestByEvent := make(map[string]domain.Candidate)
	for _, m := range markets {
		closeTime, err := time.Parse(time.RFC3339, m.CloseTime)
		if err != nil {
			continue
		}
		if closeTime.In(loc).Format("2006-01-02") != day {
			continue
		}
		if m.OpenInterest < cfg.MinOpenInterest {
			continue
		}

		side, price, ok := favoriteSide(m, cfg.MinAskCents, cfg.MaxAskCents)
		if !ok {
			continue
		}

		c := domain.Candidate{
			Ticker:       m.Ticker,
			EventTicker:  m.EventTicker,
			Title:        m.Title,
			Side:         side,
			PriceCents:   price,
			OpenInterest: m.OpenInterest,
			CloseTime:    closeTime,
		}
		if best, seen := bestByEvent[m.EventTicker]; !seen || c.OpenInterest > best.OpenInterest {
			bestByEvent[m.EventTicker] = c
		}
	}

	out := make([]domain.Candidate, 0, len(bestByEvent))
	for _, c := range bestByEvent {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenInterest != out[j].OpenInterest {
			return out[i].OpenInterest > out[j].OpenInterest
		}
		return out[i].Ticker < out[j].Ticker
	})
	if len(out) > cfg.MaxCandidates {
		out = out[:cfg.MaxCandidates]
	}
	return out
}

// favoriteSide picks the side whose ask sits inside the window, YES first.
func favoriteSide(m apiMarket, minCents, maxCents int) (domain.Side, int, bool) {
	if m.YesAskCents >= minCents && m.YesAskCents <= maxCents {
		return domain.SideYes, m.YesAskCents, true
	}
	if m.NoAskCents >= minCents && m.NoAskCents <= maxCents {
		return domain.SideNo, m.NoAskCents, true
	}
	return "", 0, false
}
