package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/hedgebot/internal/polymarket"
	"github.com/web3guy0/hedgebot/internal/types"
)

// t0 is the start of a 15-minute period
var t0 = time.Unix(1767707100, 0)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeMetadata struct {
	mu      sync.Mutex
	markets map[string]*types.MarketDetails
	calls   int
}

func (f *fakeMetadata) FetchMarketMetadata(_ context.Context, conditionID string) (*types.MarketDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	d, ok := f.markets[conditionID]
	if !ok {
		return nil, fmt.Errorf("fake: %w", polymarket.ErrNetwork)
	}
	return d, nil
}

func (f *fakeMetadata) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func upDown(conditionID, up, down string) *types.MarketDetails {
	return &types.MarketDetails{
		ConditionID: conditionID,
		Active:      true,
		Tokens: []types.OutcomeToken{
			{TokenID: up, Outcome: "Up"},
			{TokenID: down, Outcome: "Down"},
		},
	}
}

type fakeQuotes struct {
	prices map[string]string // tokenID/side -> price
}

func (f *fakeQuotes) FetchQuote(_ context.Context, tokenID, side string) (decimal.Decimal, error) {
	p, ok := f.prices[tokenID+"/"+side]
	if !ok {
		return decimal.Zero, fmt.Errorf("fake: %w", polymarket.ErrNetwork)
	}
	return decimal.RequireFromString(p), nil
}

type fakeFinder struct {
	mu      sync.Mutex
	markets map[string]*types.Market
	probed  []string
}

func (f *fakeFinder) FetchMarketBySlug(_ context.Context, slug string) (*types.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, slug)
	m, ok := f.markets[slug]
	if !ok {
		return nil, fmt.Errorf("fake: %w", polymarket.ErrNotFound)
	}
	cp := *m
	return &cp, nil
}

func live(conditionID, slug string) *types.Market {
	return &types.Market{ConditionID: conditionID, Slug: slug, Active: true}
}
