package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// PeriodSeconds is the length of one up/down market window
const PeriodSeconds int64 = 900

// PeriodStart returns the unix timestamp of the 15-minute window containing t
func PeriodStart(t time.Time) int64 {
	return (t.Unix() / PeriodSeconds) * PeriodSeconds
}

// Instrument names one of the two tracked assets
type Instrument string

const (
	InstrumentSOL Instrument = "SOL"
	InstrumentBTC Instrument = "BTC"
)

// SlugPrefix is the lowercase asset prefix used by market slugs
func (i Instrument) SlugPrefix() string {
	switch i {
	case InstrumentSOL:
		return "sol"
	case InstrumentBTC:
		return "btc"
	default:
		return string(i)
	}
}

// Outcome is one side of an up/down market
type Outcome string

const (
	OutcomeUp   Outcome = "UP"
	OutcomeDown Outcome = "DOWN"
)

// Order sides and types accepted by the CLOB
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeGTC = "GTC"
)

// Market is one 15-minute instance of an instrument, as returned by discovery
type Market struct {
	ConditionID string
	MarketID    string
	Question    string
	Slug        string
	Active      bool
	Closed      bool
	EndDate     time.Time
}

// OutcomeToken is a token entry from market metadata
type OutcomeToken struct {
	TokenID string
	Outcome string
	Price   decimal.Decimal
	Winner  bool
}

// MarketDetails is the metadata view of a market used for token resolution
// and settlement. Closed and winner flags are only trusted from here.
type MarketDetails struct {
	ConditionID     string
	Active          bool
	Closed          bool
	AcceptingOrders bool
	Tokens          []OutcomeToken
}

// Winner reports whether tokenID is flagged as the winning token.
// Unknown tokens never win.
func (d *MarketDetails) Winner(tokenID string) bool {
	for _, t := range d.Tokens {
		if t.TokenID == tokenID {
			return t.Winner
		}
	}
	return false
}

// TokenQuote holds the latest bid/ask for one outcome token.
// A nil pointer means the side could not be quoted this tick.
type TokenQuote struct {
	TokenID string
	Bid     *decimal.Decimal
	Ask     *decimal.Decimal
}

// AskPrice returns the ask or zero when absent
func (q *TokenQuote) AskPrice() decimal.Decimal {
	if q == nil || q.Ask == nil {
		return decimal.Zero
	}
	return *q.Ask
}

// HasAsk reports whether an ask was quoted
func (q *TokenQuote) HasAsk() bool {
	return q != nil && q.Ask != nil
}

// InstrumentQuotes groups the up/down quotes of one instrument
type InstrumentQuotes struct {
	Instrument  Instrument
	ConditionID string
	Up          *TokenQuote
	Down        *TokenQuote
}

// MarketSnapshot is an immutable view of both instruments at one tick
type MarketSnapshot struct {
	SOL        InstrumentQuotes
	BTC        InstrumentQuotes
	CapturedAt time.Time
}

// Opportunity is a detected two-leg hedge priced below $1
type Opportunity struct {
	SOLOutcome     Outcome
	BTCOutcome     Outcome
	SOLPrice       decimal.Decimal
	BTCPrice       decimal.Decimal
	TotalCost      decimal.Decimal
	ExpectedProfit decimal.Decimal
	SOLTokenID     string
	BTCTokenID     string
	SOLConditionID string
	BTCConditionID string
}

// Key returns the ledger key of the condition-id pair
func (o *Opportunity) Key() TradeKey {
	return TradeKey{SOLConditionID: o.SOLConditionID, BTCConditionID: o.BTCConditionID}
}

// TradeKey identifies a pending trade by its two markets
type TradeKey struct {
	SOLConditionID string
	BTCConditionID string
}

func (k TradeKey) String() string {
	return k.SOLConditionID + "_" + k.BTCConditionID
}

// PendingTrade is an open hedged position waiting for both markets to close
type PendingTrade struct {
	ID             string
	SOLTokenID     string
	BTCTokenID     string
	SOLConditionID string
	BTCConditionID string
	Investment     decimal.Decimal
	Units          decimal.Decimal
	OpenedAt       time.Time
}

// Key returns the ledger key of the trade
func (t *PendingTrade) Key() TradeKey {
	return TradeKey{SOLConditionID: t.SOLConditionID, BTCConditionID: t.BTCConditionID}
}

// Age returns how long the trade has been pending at now
func (t *PendingTrade) Age(now time.Time) time.Duration {
	return now.Sub(t.OpenedAt)
}

// OrderRequest is a limit order for one token
type OrderRequest struct {
	TokenID   string
	Side      string
	Size      decimal.Decimal
	Price     decimal.Decimal
	OrderType string
}

// OrderResponse is the venue's answer to an order submission
type OrderResponse struct {
	OrderID string
	Status  string
	Message string
}

// Settlement is the realized result of a pending trade once both markets closed
type Settlement struct {
	Trade     PendingTrade
	SOLWon    bool
	BTCWon    bool
	Payout    decimal.Decimal
	Profit    decimal.Decimal
	SettledAt time.Time
}

// WinningLegs returns how many legs resolved in our favor
func (s *Settlement) WinningLegs() int {
	n := 0
	if s.SOLWon {
		n++
	}
	if s.BTCWon {
		n++
	}
	return n
}
