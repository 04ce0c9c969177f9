// Package monitor tracks the live SOL/BTC up/down markets, resolves their
// outcome tokens and captures quote snapshots each tick.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/hedgebot/internal/types"
)

// MetadataSource returns CLOB market metadata for a condition id
type MetadataSource interface {
	FetchMarketMetadata(ctx context.Context, conditionID string) (*types.MarketDetails, error)
}

// TokenIDs holds the outcome token of each leg. Empty means unresolved.
type TokenIDs struct {
	SOLUp   string
	SOLDown string
	BTCUp   string
	BTCDown string
}

// Complete reports whether all four tokens are known
func (t TokenIDs) Complete() bool {
	return t.SOLUp != "" && t.SOLDown != "" && t.BTCUp != "" && t.BTCDown != ""
}

// Registry holds the two tracked markets and their outcome tokens.
// All state sits behind one lock; readers get copies and no lock is held
// across a network call.
type Registry struct {
	source MetadataSource
	now    func() time.Time

	mu          sync.RWMutex
	sol         types.Market
	btc         types.Market
	tokens      TokenIDs
	refreshedAt time.Time // zero until a complete refresh
	period      int64     // period the current markets were installed in
}

// NewRegistry installs the initial pair. The pair must have distinct condition ids.
func NewRegistry(source MetadataSource, sol, btc types.Market) (*Registry, error) {
	return newRegistry(source, sol, btc, time.Now)
}

func newRegistry(source MetadataSource, sol, btc types.Market, now func() time.Time) (*Registry, error) {
	if err := checkDistinct(sol, btc); err != nil {
		return nil, err
	}
	return &Registry{
		source: source,
		now:    now,
		sol:    sol,
		btc:    btc,
		period: types.PeriodStart(now()),
	}, nil
}

func checkDistinct(sol, btc types.Market) error {
	if sol.ConditionID == "" || btc.ConditionID == "" {
		return fmt.Errorf("monitor: empty condition id (sol=%q btc=%q)", sol.ConditionID, btc.ConditionID)
	}
	if sol.ConditionID == btc.ConditionID {
		return fmt.Errorf("%w: %s", ErrInvariantViolation, sol.ConditionID)
	}
	return nil
}

// CurrentConditionIDs returns the tracked sol and btc condition ids
func (r *Registry) CurrentConditionIDs() (string, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sol.ConditionID, r.btc.ConditionID
}

// CurrentMarkets returns copies of the tracked markets
func (r *Registry) CurrentMarkets() (types.Market, types.Market) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sol, r.btc
}

// CurrentOutcomeTokenIDs returns the resolved tokens; unresolved ones are empty
func (r *Registry) CurrentOutcomeTokenIDs() TokenIDs {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tokens
}

// Period returns the period marker of the installed markets
func (r *Registry) Period() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.period
}

// IsNewPeriod reports whether now falls in a different 15-minute period
// than the one the current markets were installed in
func (r *Registry) IsNewPeriod(now time.Time) bool {
	return types.PeriodStart(now) != r.Period()
}

// SwapMarkets atomically installs a new pair and clears token state
func (r *Registry) SwapMarkets(sol, btc types.Market) error {
	if err := checkDistinct(sol, btc); err != nil {
		return err
	}

	r.mu.Lock()
	r.sol = sol
	r.btc = btc
	r.tokens = TokenIDs{}
	r.refreshedAt = time.Time{}
	r.period = types.PeriodStart(r.now())
	r.mu.Unlock()

	log.Info().
		Str("sol", sol.Slug).
		Str("sol_condition", sol.ConditionID).
		Str("btc", btc.Slug).
		Str("btc_condition", btc.ConditionID).
		Msg("🔄 Markets swapped for new period")
	return nil
}

// stale reports whether tokens need resolving: never refreshed, or last
// complete refresh is a full period old
func (r *Registry) stale() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshedAt.IsZero() || r.now().Sub(r.refreshedAt) >= time.Duration(types.PeriodSeconds)*time.Second
}

// RefreshTokenIDsIfStale resolves outcome tokens from market metadata at
// most once per period. Results of a partial refresh are kept, but the
// refresh is only marked done when both markets answered, so the next
// tick retries. The returned error is informational; callers keep going.
func (r *Registry) RefreshTokenIDsIfStale(ctx context.Context) error {
	if !r.stale() {
		return nil
	}

	solID, btcID := r.CurrentConditionIDs()

	solUp, solDown, solErr := r.resolve(ctx, types.InstrumentSOL, solID)
	btcUp, btcDown, btcErr := r.resolve(ctx, types.InstrumentBTC, btcID)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Markets swapped while we were fetching; these tokens belong to the old pair
	if r.sol.ConditionID != solID || r.btc.ConditionID != btcID {
		return nil
	}

	if solErr == nil {
		r.tokens.SOLUp, r.tokens.SOLDown = solUp, solDown
	}
	if btcErr == nil {
		r.tokens.BTCUp, r.tokens.BTCDown = btcUp, btcDown
	}
	if solErr != nil {
		return solErr
	}
	if btcErr != nil {
		return btcErr
	}
	r.refreshedAt = r.now()
	return nil
}

func (r *Registry) resolve(ctx context.Context, inst types.Instrument, conditionID string) (up, down string, err error) {
	details, err := r.source.FetchMarketMetadata(ctx, conditionID)
	if err != nil {
		log.Warn().Err(err).Str("asset", string(inst)).Msg("⚠️ Token refresh failed")
		return "", "", fmt.Errorf("monitor: resolve %s tokens: %w", inst, err)
	}

	for _, tok := range details.Tokens {
		switch classifyOutcome(tok.Outcome) {
		case types.OutcomeUp:
			up = tok.TokenID
			log.Info().Str("asset", string(inst)).Str("token", tok.TokenID).Msg("⬆️ Up token resolved")
		case types.OutcomeDown:
			down = tok.TokenID
			log.Info().Str("asset", string(inst)).Str("token", tok.TokenID).Msg("⬇️ Down token resolved")
		default:
			log.Warn().
				Str("asset", string(inst)).
				Str("outcome", tok.Outcome).
				Str("token", tok.TokenID).
				Msg("⚠️ Unclassifiable outcome label dropped")
		}
	}
	return up, down, nil
}

// classifyOutcome maps an outcome label to up/down. "UP"/"DOWN" match
// case-insensitively as substrings, "1"/"0" as exact labels.
// Anything else returns "".
func classifyOutcome(label string) types.Outcome {
	upper := strings.ToUpper(strings.TrimSpace(label))
	switch {
	case strings.Contains(upper, "UP") || upper == "1":
		return types.OutcomeUp
	case strings.Contains(upper, "DOWN") || upper == "0":
		return types.OutcomeDown
	default:
		return ""
	}
}
