package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/hedgebot/internal/polymarket"
	"github.com/web3guy0/hedgebot/internal/types"
)

// fallbackPeriods is how many earlier windows are probed when the
// current window's slug is not live yet
const fallbackPeriods = 3

// MarketFinder resolves a gamma slug to a market
type MarketFinder interface {
	FetchMarketBySlug(ctx context.Context, slug string) (*types.Market, error)
}

// Discoverer finds the live 15-minute market of each instrument by slug
type Discoverer struct {
	finder MarketFinder
	now    func() time.Time
}

// NewDiscoverer creates a discoverer using finder
func NewDiscoverer(finder MarketFinder) *Discoverer {
	return &Discoverer{finder: finder, now: time.Now}
}

// Discover probes the current period's slug and then up to three earlier
// ones. A candidate must be active, open, and not in seen.
func (d *Discoverer) Discover(ctx context.Context, inst types.Instrument, seen map[string]bool) (types.Market, error) {
	period := types.PeriodStart(d.now())

	for offset := int64(0); offset <= fallbackPeriods; offset++ {
		slug := polymarket.MarketSlug(inst, period-offset*types.PeriodSeconds)

		market, err := d.finder.FetchMarketBySlug(ctx, slug)
		if err != nil {
			log.Debug().Err(err).Str("slug", slug).Msg("Slug not resolved")
			if ctx.Err() != nil {
				return types.Market{}, ctx.Err()
			}
			continue
		}
		if seen[market.ConditionID] || !market.Active || market.Closed {
			log.Debug().
				Str("slug", slug).
				Bool("active", market.Active).
				Bool("closed", market.Closed).
				Msg("Slug resolved to unusable market")
			continue
		}

		log.Info().
			Str("asset", string(inst)).
			Str("slug", market.Slug).
			Str("condition", market.ConditionID).
			Msg("🔍 Found market")
		return *market, nil
	}

	return types.Market{}, fmt.Errorf("%w: %s 15-minute up/down (set condition ids in config to pin)", ErrNoMarket, inst)
}

// DiscoverPair finds both markets, skipping condition ids in seen, and
// rejects a pair that shares a condition id
func (d *Discoverer) DiscoverPair(ctx context.Context, seen map[string]bool) (types.Market, types.Market, error) {
	sol, err := d.Discover(ctx, types.InstrumentSOL, seen)
	if err != nil {
		return types.Market{}, types.Market{}, err
	}
	btc, err := d.Discover(ctx, types.InstrumentBTC, seen)
	if err != nil {
		return types.Market{}, types.Market{}, err
	}
	if sol.ConditionID == btc.ConditionID {
		return types.Market{}, types.Market{}, fmt.Errorf("%w: %s", ErrInvariantViolation, sol.ConditionID)
	}
	return sol, btc, nil
}
