package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/hedgebot/internal/types"
)

// MarketSlug builds the gamma slug of an instrument's 15-minute window.
// Polymarket crypto windows use timestamp-based slugs aligned to the
// window start, e.g. btc-updown-15m-1767707100.
func MarketSlug(inst types.Instrument, periodStart int64) string {
	return fmt.Sprintf("%s-updown-15m-%d", inst.SlugPrefix(), periodStart)
}

type gammaEvent struct {
	ID      string        `json:"id"`
	Slug    string        `json:"slug"`
	Markets []gammaMarket `json:"markets"`
}

type gammaMarket struct {
	ID          string `json:"id"`
	ConditionID string `json:"conditionId"`
	Question    string `json:"question"`
	Slug        string `json:"slug"`
	Active      bool   `json:"active"`
	Closed      bool   `json:"closed"`
	EndDate     string `json:"endDate"`
}

// FetchMarketBySlug resolves a slug to the first market of its gamma event
func (c *Client) FetchMarketBySlug(ctx context.Context, slug string) (*types.Market, error) {
	body, err := c.get(ctx, c.gammaURL, "/events/slug/"+url.PathEscape(slug))
	if err != nil {
		return nil, fmt.Errorf("polymarket: fetch slug %s: %w", slug, err)
	}

	var event gammaEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: slug %s: %v", ErrParse, slug, err)
	}
	if len(event.Markets) == 0 {
		return nil, fmt.Errorf("%w: slug %s has no markets", ErrNotFound, slug)
	}

	m := event.Markets[0]
	if m.ConditionID == "" {
		return nil, fmt.Errorf("%w: slug %s: market without conditionId", ErrParse, slug)
	}

	market := &types.Market{
		ConditionID: m.ConditionID,
		MarketID:    m.ID,
		Question:    m.Question,
		Slug:        m.Slug,
		Active:      m.Active,
		Closed:      m.Closed,
	}
	if market.Slug == "" {
		market.Slug = slug
	}
	if m.EndDate != "" {
		market.EndDate, _ = time.Parse(time.RFC3339, m.EndDate)
	}
	return market, nil
}

type clobMarket struct {
	ConditionID     string      `json:"condition_id"`
	Active          bool        `json:"active"`
	Closed          bool        `json:"closed"`
	AcceptingOrders bool        `json:"accepting_orders"`
	Tokens          []clobToken `json:"tokens"`
}

type clobToken struct {
	TokenID string          `json:"token_id"`
	Outcome string          `json:"outcome"`
	Price   decimal.Decimal `json:"price"`
	Winner  bool            `json:"winner"`
}

// FetchMarketMetadata returns the CLOB view of a market: closed flag and
// per-token outcome labels and winner flags
func (c *Client) FetchMarketMetadata(ctx context.Context, conditionID string) (*types.MarketDetails, error) {
	body, err := c.get(ctx, c.clobURL, "/markets/"+url.PathEscape(conditionID))
	if err != nil {
		return nil, fmt.Errorf("polymarket: fetch market %s: %w", conditionID, err)
	}

	var m clobMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: market %s: %v", ErrParse, conditionID, err)
	}
	if m.ConditionID == "" {
		return nil, fmt.Errorf("%w: market %s: missing condition_id", ErrParse, conditionID)
	}

	details := &types.MarketDetails{
		ConditionID:     m.ConditionID,
		Active:          m.Active,
		Closed:          m.Closed,
		AcceptingOrders: m.AcceptingOrders,
		Tokens:          make([]types.OutcomeToken, 0, len(m.Tokens)),
	}
	for _, t := range m.Tokens {
		details.Tokens = append(details.Tokens, types.OutcomeToken{
			TokenID: t.TokenID,
			Outcome: t.Outcome,
			Price:   t.Price,
			Winner:  t.Winner,
		})
	}
	return details, nil
}

// FetchQuote returns the CLOB point price for a token. Side BUY is the
// price to buy at (best ask), SELL the price to sell at (best bid).
func (c *Client) FetchQuote(ctx context.Context, tokenID, side string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("side", side)
	q.Set("token_id", tokenID)

	body, err := c.get(ctx, c.clobURL, "/price?"+q.Encode())
	if err != nil {
		return decimal.Zero, fmt.Errorf("polymarket: fetch price %s: %w", side, err)
	}

	var result struct {
		Price *decimal.Decimal `json:"price"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("%w: price: %v", ErrParse, err)
	}
	if result.Price == nil {
		return decimal.Zero, fmt.Errorf("%w: price: missing field", ErrParse)
	}
	return *result.Price, nil
}
