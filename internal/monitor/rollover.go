package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/hedgebot/internal/metrics"
)

// Rollover swaps in the next period's markets once a new period starts
type Rollover struct {
	registry   *Registry
	discoverer *Discoverer
	now        func() time.Time
}

// NewRollover creates a rollover over registry using discoverer
func NewRollover(registry *Registry, discoverer *Discoverer) *Rollover {
	return &Rollover{registry: registry, discoverer: discoverer, now: time.Now}
}

// Check discovers and installs new markets when the period has changed.
// It reports whether a swap happened. On error the old markets stay
// active and the next check retries.
func (r *Rollover) Check(ctx context.Context) (bool, error) {
	if !r.registry.IsNewPeriod(r.now()) {
		return false, nil
	}

	oldSOL, oldBTC := r.registry.CurrentMarkets()
	log.Info().
		Str("sol", oldSOL.Slug).
		Str("btc", oldBTC.Slug).
		Msg("🔄 New 15-minute period detected! Discovering new markets...")

	seen := map[string]bool{oldSOL.ConditionID: true, oldBTC.ConditionID: true}

	sol, btc, err := r.discoverer.DiscoverPair(ctx, seen)
	if err != nil {
		return false, fmt.Errorf("monitor: rollover: %w", err)
	}
	if err := r.registry.SwapMarkets(sol, btc); err != nil {
		return false, fmt.Errorf("monitor: rollover: %w", err)
	}

	metrics.RolloversTotal.Inc()
	return true, nil
}
