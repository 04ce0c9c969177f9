package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/web3guy0/hedgebot/internal/metrics"
	"github.com/web3guy0/hedgebot/internal/types"
)

// QuoteSource returns a point price for a token. Side BUY is the ask,
// SELL the bid.
type QuoteSource interface {
	FetchQuote(ctx context.Context, tokenID, side string) (decimal.Decimal, error)
}

// Snapshotter assembles a MarketSnapshot from the registry's tokens
type Snapshotter struct {
	registry *Registry
	quotes   QuoteSource
	now      func() time.Time
}

// NewSnapshotter creates a snapshotter over registry and quotes
func NewSnapshotter(registry *Registry, quotes QuoteSource) *Snapshotter {
	return &Snapshotter{registry: registry, quotes: quotes, now: time.Now}
}

// CaptureSnapshot refreshes tokens if needed and fetches bid and ask for
// all four outcome tokens concurrently. Failed quotes become absent; the
// snapshot itself never fails.
func (s *Snapshotter) CaptureSnapshot(ctx context.Context) types.MarketSnapshot {
	if err := s.registry.RefreshTokenIDsIfStale(ctx); err != nil {
		log.Debug().Err(err).Msg("Token refresh incomplete, quoting what is known")
	}

	solID, btcID := s.registry.CurrentConditionIDs()
	tokens := s.registry.CurrentOutcomeTokenIDs()
	if !tokens.Complete() {
		log.Debug().
			Bool("sol_up", tokens.SOLUp != "").
			Bool("sol_down", tokens.SOLDown != "").
			Bool("btc_up", tokens.BTCUp != "").
			Bool("btc_down", tokens.BTCDown != "").
			Msg("Quoting with unresolved tokens")
	}

	snap := types.MarketSnapshot{
		SOL: types.InstrumentQuotes{Instrument: types.InstrumentSOL, ConditionID: solID},
		BTC: types.InstrumentQuotes{Instrument: types.InstrumentBTC, ConditionID: btcID},
	}

	// Each goroutine writes only its own slot
	var g errgroup.Group
	g.Go(func() error { snap.SOL.Up = s.quote(ctx, types.InstrumentSOL, types.OutcomeUp, tokens.SOLUp); return nil })
	g.Go(func() error { snap.SOL.Down = s.quote(ctx, types.InstrumentSOL, types.OutcomeDown, tokens.SOLDown); return nil })
	g.Go(func() error { snap.BTC.Up = s.quote(ctx, types.InstrumentBTC, types.OutcomeUp, tokens.BTCUp); return nil })
	g.Go(func() error { snap.BTC.Down = s.quote(ctx, types.InstrumentBTC, types.OutcomeDown, tokens.BTCDown); return nil })
	_ = g.Wait()

	snap.CapturedAt = s.now()
	metrics.SnapshotsCapturedTotal.Inc()
	return snap
}

// quote fetches both sides of one token. It returns nil when the token is
// unresolved or neither side could be fetched.
func (s *Snapshotter) quote(ctx context.Context, inst types.Instrument, outcome types.Outcome, tokenID string) *types.TokenQuote {
	if tokenID == "" {
		return nil
	}

	var ask, bid *decimal.Decimal
	var g errgroup.Group
	g.Go(func() error {
		ask = s.side(ctx, inst, outcome, tokenID, types.SideBuy)
		return nil
	})
	g.Go(func() error {
		bid = s.side(ctx, inst, outcome, tokenID, types.SideSell)
		return nil
	})
	_ = g.Wait()

	if ask == nil && bid == nil {
		return nil
	}
	return &types.TokenQuote{TokenID: tokenID, Bid: bid, Ask: ask}
}

func (s *Snapshotter) side(ctx context.Context, inst types.Instrument, outcome types.Outcome, tokenID, side string) *decimal.Decimal {
	price, err := s.quotes.FetchQuote(ctx, tokenID, side)
	if err != nil {
		log.Warn().
			Err(err).
			Str("asset", string(inst)).
			Str("outcome", string(outcome)).
			Str("side", side).
			Msg("⚠️ Quote unavailable")
		metrics.QuoteFailuresTotal.WithLabelValues(side).Inc()
		return nil
	}
	return &price
}
