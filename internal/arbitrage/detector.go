// Package arbitrage detects cross-market hedges between the SOL and BTC
// 15-minute up/down markets.
//
// detector.go - Each unit of the hedge buys one leg in each market on
// opposite sides. A winning token pays $1, so when the two asks add up to
// less than $1 the pair is bought at a discount to its modeled payout.
//
// Combinations checked per snapshot:
// 1. SOL Up + BTC Down
// 2. SOL Down + BTC Up
package arbitrage

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/hedgebot/internal/types"
)

var (
	dollar = decimal.NewFromInt(1)

	// Both legs under this price looks like a rug, not a mispricing
	minLegPrice = decimal.RequireFromString("0.6")
)

// Detector applies the hedge rule to snapshots. It holds no state.
type Detector struct {
	minProfit decimal.Decimal
}

// NewDetector creates a detector with the given minimum margin per unit
func NewDetector(minProfitThreshold decimal.Decimal) *Detector {
	return &Detector{minProfit: minProfitThreshold}
}

// Detect returns zero, one or two opportunities for snap
func (d *Detector) Detect(snap *types.MarketSnapshot) []types.Opportunity {
	var out []types.Opportunity

	if opp, ok := d.check(snap, types.OutcomeUp, snap.SOL.Up, types.OutcomeDown, snap.BTC.Down); ok {
		out = append(out, opp)
	}
	if opp, ok := d.check(snap, types.OutcomeDown, snap.SOL.Down, types.OutcomeUp, snap.BTC.Up); ok {
		out = append(out, opp)
	}
	return out
}

func (d *Detector) check(snap *types.MarketSnapshot, solOutcome types.Outcome, sol *types.TokenQuote,
	btcOutcome types.Outcome, btc *types.TokenQuote) (types.Opportunity, bool) {
	if !sol.HasAsk() || !btc.HasAsk() {
		return types.Opportunity{}, false
	}

	p1 := sol.AskPrice()
	p2 := btc.AskPrice()
	if !Profitable(p1, p2, d.minProfit) {
		return types.Opportunity{}, false
	}

	total := p1.Add(p2)
	return types.Opportunity{
		SOLOutcome:     solOutcome,
		BTCOutcome:     btcOutcome,
		SOLPrice:       p1,
		BTCPrice:       p2,
		TotalCost:      total,
		ExpectedProfit: dollar.Sub(total),
		SOLTokenID:     sol.TokenID,
		BTCTokenID:     btc.TokenID,
		SOLConditionID: snap.SOL.ConditionID,
		BTCConditionID: snap.BTC.ConditionID,
	}, true
}

// Profitable is the hedge rule for one pair of ask prices: the pair costs
// less than $1, the margin meets minProfit, and at least one leg is
// priced at 0.6 or above.
func Profitable(p1, p2, minProfit decimal.Decimal) bool {
	if p1.LessThan(minLegPrice) && p2.LessThan(minLegPrice) {
		return false
	}
	total := p1.Add(p2)
	if !total.LessThan(dollar) {
		return false
	}
	return dollar.Sub(total).GreaterThanOrEqual(minProfit)
}
