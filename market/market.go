package market

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
)

// cacheDuration how long a fetched snapshot stays fresh. The upstream
// scheduler runs on the same 5-minute cadence, so a forced refresh per
// cycle plus cached reads in between keeps request volume low.
const cacheDuration = 5 * time.Minute

// Data per-symbol market statistics from the Binance 24hr ticker.
type Data struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume24h float64   `json:"volume24h"`
	Change24h float64   `json:"change24h"`
	High24h   float64   `json:"high24h"`
	Low24h    float64   `json:"low24h"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot price mapping keyed by uppercase base symbol (BTC, ETH, ...).
// Implements sim.PriceSource. A missing symbol means "no data this
// cycle", never an error.
type Snapshot map[string]*Data

// Price returns the current price for symbol, false when unavailable.
func (s Snapshot) Price(symbol string) (float64, bool) {
	d, ok := s[strings.ToUpper(symbol)]
	if !ok || d == nil || d.Price <= 0 {
		return 0, false
	}
	return d.Price, true
}

// statsFetcher fetches the 24hr ticker for one trading pair. Split out
// so tests can run against canned data.
type statsFetcher func(ctx context.Context, pair string) (*binance.PriceChangeStats, error)

// Client cached market data source over the Binance spot API.
type Client struct {
	symbols []string
	fetch   statsFetcher

	mu        sync.Mutex
	cached    Snapshot
	fetchedAt time.Time
}

// NewClient creates a market data client for the given base symbols.
// Public market endpoints need no API credentials.
func NewClient(symbols []string) *Client {
	api := binance.NewClient("", "")
	return &Client{
		symbols: append([]string(nil), symbols...),
		fetch: func(ctx context.Context, pair string) (*binance.PriceChangeStats, error) {
			stats, err := api.NewListPriceChangeStatsService().Symbol(pair).Do(ctx)
			if err != nil {
				return nil, err
			}
			if len(stats) == 0 {
				return nil, fmt.Errorf("no ticker data for %s", pair)
			}
			return stats[0], nil
		},
	}
}

// Snapshot returns the cached snapshot, refreshing it when stale or when
// force is set. A single symbol failing to fetch skips that symbol only;
// the call errors only when every symbol failed.
func (c *Client) Snapshot(ctx context.Context, force bool) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.cached != nil && time.Since(c.fetchedAt) < cacheDuration {
		return c.cached, nil
	}

	now := time.Now().UTC()
	snapshot := make(Snapshot, len(c.symbols))
	for _, symbol := range c.symbols {
		symbol = strings.ToUpper(symbol)
		pair := symbol + "USDT"

		fetchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		stats, err := c.fetch(fetchCtx, pair)
		cancel()
		if err != nil {
			log.Printf("⚠️  Failed to fetch %s ticker: %v", pair, err)
			continue
		}

		snapshot[symbol] = &Data{
			Symbol:    symbol,
			Price:     parseFloat(stats.LastPrice),
			Volume24h: parseFloat(stats.Volume),
			Change24h: parseFloat(stats.PriceChangePercent),
			High24h:   parseFloat(stats.HighPrice),
			Low24h:    parseFloat(stats.LowPrice),
			UpdatedAt: now,
		}
	}

	if len(snapshot) == 0 {
		if c.cached != nil {
			// Better a stale snapshot than none at all.
			log.Printf("⚠️  Market data refresh failed for all symbols, serving stale snapshot from %s", c.fetchedAt.Format(time.RFC3339))
			return c.cached, nil
		}
		return nil, fmt.Errorf("failed to fetch market data for all %d symbols", len(c.symbols))
	}

	c.cached = snapshot
	c.fetchedAt = now
	return snapshot, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
