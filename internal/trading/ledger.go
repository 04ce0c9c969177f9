// Package trading records hedge opportunities as pending trades and
// settles them once both markets close.
//
// ledger.go - One pending entry per (sol, btc) condition pair. Repeat
// opportunities in the same period add to the entry. A sweep settles
// entries older than 14 minutes whose markets both report closed.
package trading

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/web3guy0/hedgebot/internal/metrics"
	"github.com/web3guy0/hedgebot/internal/types"
)

// DefaultMinTradeAge keeps sweeps away from trades whose markets cannot have closed yet
const DefaultMinTradeAge = 14 * time.Minute

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// MetadataSource returns CLOB market metadata for a condition id
type MetadataSource interface {
	FetchMarketMetadata(ctx context.Context, conditionID string) (*types.MarketDetails, error)
}

// OrderPlacer submits orders in live mode
type OrderPlacer interface {
	SubmitOrder(ctx context.Context, order types.OrderRequest) (*types.OrderResponse, error)
}

// Journal receives an append-only record of ledger activity
type Journal interface {
	RecordTrade(ctx context.Context, opp types.Opportunity, trade types.PendingTrade, units, investment decimal.Decimal) error
	RecordSettlement(ctx context.Context, s types.Settlement) error
}

// Notifier is told about every settlement
type Notifier interface {
	NotifySettlement(s types.Settlement)
}

// Config controls sizing and settlement
type Config struct {
	MaxPositionSize decimal.Decimal
	Live            bool
	MinTradeAge     time.Duration
	ResultTTL       time.Duration
}

// Stats is a point-in-time summary of the ledger
type Stats struct {
	TotalProfit    decimal.Decimal
	TradesExecuted int
	Settled        int
	Wins           int
	Losses         int
	Pending        int
}

// Ledger owns pending trades and realized totals
type Ledger struct {
	cfg      Config
	cache    *resultCache
	orders   OrderPlacer
	journal  Journal
	notifier Notifier
	now      func() time.Time

	// mu guards pending and every counter below
	mu             sync.Mutex
	pending        map[types.TradeKey]*types.PendingTrade
	totalProfit    decimal.Decimal
	tradesExecuted int
	settled        int
	wins           int
	losses         int
}

// NewLedger creates a ledger that resolves settlements through metadata
func NewLedger(cfg Config, metadata MetadataSource) *Ledger {
	return newLedger(cfg, metadata, time.Now)
}

func newLedger(cfg Config, metadata MetadataSource, now func() time.Time) *Ledger {
	if cfg.MinTradeAge <= 0 {
		cfg.MinTradeAge = DefaultMinTradeAge
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = DefaultResultTTL
	}
	return &Ledger{
		cfg:     cfg,
		cache:   newResultCache(metadata, cfg.ResultTTL, now),
		now:     now,
		pending: make(map[types.TradeKey]*types.PendingTrade),
	}
}

// SetOrderPlacer sets the order client used in live mode
func (l *Ledger) SetOrderPlacer(p OrderPlacer) {
	l.orders = p
}

// SetJournal sets an optional trade journal
func (l *Ledger) SetJournal(j Journal) {
	l.journal = j
}

// SetNotifier sets an optional settlement notifier
func (l *Ledger) SetNotifier(n Notifier) {
	l.notifier = n
}

// IsLive reports whether orders are sent
func (l *Ledger) IsLive() bool {
	return l.cfg.Live && l.orders != nil
}

// size returns the dollar position and unit count for one pair cost
func (l *Ledger) size(cost decimal.Decimal) (position, units decimal.Decimal) {
	affordable := l.cfg.MaxPositionSize.Div(cost)
	position = decimal.Min(l.cfg.MaxPositionSize, affordable.Mul(cost))
	units = position.Div(cost)
	return position, units
}

// RecordOpportunity sizes opp and adds it to the pending entry of its
// condition pair, creating one if needed. In live mode a BUY is sent per
// leg first; order failures are logged and do not stop the bookkeeping.
// It returns the units added.
func (l *Ledger) RecordOpportunity(ctx context.Context, opp types.Opportunity) decimal.Decimal {
	if !opp.TotalCost.IsPositive() {
		log.Warn().Str("cost", opp.TotalCost.String()).Msg("⚠️ Ignoring opportunity with non-positive cost")
		return decimal.Zero
	}

	position, units := l.size(opp.TotalCost)

	if l.IsLive() {
		l.placeEntryOrders(ctx, opp, units)
	}

	key := opp.Key()
	l.mu.Lock()
	trade, ok := l.pending[key]
	// The entry keeps the tokens of its first combination
	mixed := ok && (trade.SOLTokenID != opp.SOLTokenID || trade.BTCTokenID != opp.BTCTokenID)
	if ok {
		trade.Units = trade.Units.Add(units)
		trade.Investment = trade.Investment.Add(position)
	} else {
		trade = &types.PendingTrade{
			ID:             uuid.NewString(),
			SOLTokenID:     opp.SOLTokenID,
			BTCTokenID:     opp.BTCTokenID,
			SOLConditionID: opp.SOLConditionID,
			BTCConditionID: opp.BTCConditionID,
			Investment:     position,
			Units:          units,
			OpenedAt:       l.now(),
		}
		l.pending[key] = trade
	}
	l.tradesExecuted++
	snapshot := *trade
	count := l.tradesExecuted
	pendingCount := len(l.pending)
	l.mu.Unlock()

	metrics.TradesRecordedTotal.Inc()
	metrics.PendingTrades.Set(float64(pendingCount))

	if mixed {
		log.Warn().
			Str("trade", snapshot.ID).
			Str("entry_sol_token", snapshot.SOLTokenID).
			Str("entry_btc_token", snapshot.BTCTokenID).
			Str("opp_sol_token", opp.SOLTokenID).
			Str("opp_btc_token", opp.BTCTokenID).
			Msg("⚠️ Different combination accumulated onto existing entry, settling on original tokens")
	}

	event := log.Info().
		Str("sol", string(opp.SOLOutcome)).
		Str("btc", string(opp.BTCOutcome)).
		Str("sol_price", opp.SOLPrice.StringFixed(4)).
		Str("btc_price", opp.BTCPrice.StringFixed(4)).
		Str("cost", opp.TotalCost.StringFixed(4)).
		Str("position", position.StringFixed(2)).
		Str("units", units.StringFixed(2)).
		Int("trades", count)
	if ok {
		event.Str("total_units", snapshot.Units.StringFixed(2)).
			Str("total_investment", snapshot.Investment.StringFixed(2)).
			Msg("📊 Accumulated trade")
	} else {
		event.Msg("✅ Trade opened")
	}

	if l.journal != nil {
		if err := l.journal.RecordTrade(ctx, opp, snapshot, units, position); err != nil {
			log.Warn().Err(err).Msg("⚠️ Journal write failed")
		}
	}
	return units
}

func (l *Ledger) placeEntryOrders(ctx context.Context, opp types.Opportunity, units decimal.Decimal) {
	var g errgroup.Group
	g.Go(func() error {
		l.submit(ctx, "SOL", types.OrderRequest{
			TokenID: opp.SOLTokenID, Side: types.SideBuy, Size: units, Price: opp.SOLPrice, OrderType: types.OrderTypeGTC,
		})
		return nil
	})
	g.Go(func() error {
		l.submit(ctx, "BTC", types.OrderRequest{
			TokenID: opp.BTCTokenID, Side: types.SideBuy, Size: units, Price: opp.BTCPrice, OrderType: types.OrderTypeGTC,
		})
		return nil
	})
	_ = g.Wait()
}

func (l *Ledger) submit(ctx context.Context, leg string, order types.OrderRequest) {
	resp, err := l.orders.SubmitOrder(ctx, order)
	if err != nil {
		log.Warn().Err(err).Str("leg", leg).Str("side", order.Side).Msg("⚠️ Order failed")
		metrics.OrdersSubmittedTotal.WithLabelValues(order.Side, "failed").Inc()
		return
	}
	metrics.OrdersSubmittedTotal.WithLabelValues(order.Side, "ok").Inc()
	log.Info().
		Str("leg", leg).
		Str("side", order.Side).
		Str("order", resp.OrderID).
		Str("status", resp.Status).
		Str("size", order.Size.StringFixed(2)).
		Str("price", order.Price.String()).
		Msg("📝 Order placed")
}

// SweepSettlements settles every eligible pending trade whose two markets
// report closed and returns what was settled. Trades younger than the
// minimum age are not looked at.
func (l *Ledger) SweepSettlements(ctx context.Context) []types.Settlement {
	now := l.now()

	l.mu.Lock()
	eligible := make([]types.PendingTrade, 0, len(l.pending))
	for _, t := range l.pending {
		if t.Age(now) >= l.cfg.MinTradeAge {
			eligible = append(eligible, *t)
		}
	}
	total := len(l.pending)
	l.mu.Unlock()

	if total > 0 {
		log.Debug().Int("pending", total).Int("eligible", len(eligible)).Msg("Checking pending trades")
	}

	var settled []types.Settlement
	for _, t := range eligible {
		solClosed, solWon := l.cache.result(ctx, t.SOLConditionID, t.SOLTokenID)
		btcClosed, btcWon := l.cache.result(ctx, t.BTCConditionID, t.BTCTokenID)

		if !solClosed || !btcClosed {
			log.Debug().
				Str("trade", t.ID).
				Bool("sol_closed", solClosed).
				Bool("btc_closed", btcClosed).
				Msg("⏳ Markets not both closed yet")
			continue
		}

		s, ok := l.settle(t.Key(), solWon, btcWon)
		if !ok {
			continue
		}
		settled = append(settled, s)
		l.afterSettlement(ctx, s)
	}

	l.cache.prune()

	if len(settled) > 0 {
		st := l.Stats()
		log.Info().
			Int("settled", len(settled)).
			Str("total_profit", st.TotalProfit.StringFixed(2)).
			Int("trades", st.TradesExecuted).
			Int("wins", st.Wins).
			Int("losses", st.Losses).
			Int("pending", st.Pending).
			Msg("💰 Sweep complete")
	}
	return settled
}

// settle removes key and books its result. The entry is re-read under the
// lock so units added since the sweep started are included.
func (l *Ledger) settle(key types.TradeKey, solWon, btcWon bool) (types.Settlement, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	trade, ok := l.pending[key]
	if !ok {
		return types.Settlement{}, false
	}
	delete(l.pending, key)

	payout := Payout(trade.Units, solWon, btcWon)
	profit := payout.Sub(trade.Investment)

	l.totalProfit = l.totalProfit.Add(profit)
	l.settled++
	switch {
	case profit.IsPositive():
		l.wins++
	case profit.IsNegative():
		l.losses++
	}

	metrics.PendingTrades.Set(float64(len(l.pending)))
	metrics.RealizedProfitUSD.Set(l.totalProfit.InexactFloat64())

	return types.Settlement{
		Trade:     *trade,
		SOLWon:    solWon,
		BTCWon:    btcWon,
		Payout:    payout,
		Profit:    profit,
		SettledAt: l.now(),
	}, true
}

func (l *Ledger) afterSettlement(ctx context.Context, s types.Settlement) {
	outcome := [...]string{"none", "one", "both"}[s.WinningLegs()]
	metrics.SettlementsTotal.WithLabelValues(outcome).Inc()

	event := log.Info()
	if s.Profit.IsNegative() {
		event = log.Warn()
	}
	event.
		Str("trade", s.Trade.ID).
		Bool("sol_won", s.SOLWon).
		Bool("btc_won", s.BTCWon).
		Str("units", s.Trade.Units.StringFixed(2)).
		Str("investment", s.Trade.Investment.StringFixed(2)).
		Str("payout", s.Payout.StringFixed(2)).
		Str("profit", s.Profit.StringFixed(2)).
		Msg("🏁 Trade settled")

	if l.IsLive() {
		l.sellWinners(ctx, s)
	}
	if l.journal != nil {
		if err := l.journal.RecordSettlement(ctx, s); err != nil {
			log.Warn().Err(err).Msg("⚠️ Journal write failed")
		}
	}
	if l.notifier != nil {
		l.notifier.NotifySettlement(s)
	}
}

// sellWinners sells each winning leg at $1 for its full size
func (l *Ledger) sellWinners(ctx context.Context, s types.Settlement) {
	if s.SOLWon {
		l.submit(ctx, "SOL", types.OrderRequest{
			TokenID: s.Trade.SOLTokenID, Side: types.SideSell, Size: s.Trade.Units, Price: one, OrderType: types.OrderTypeGTC,
		})
	}
	if s.BTCWon {
		l.submit(ctx, "BTC", types.OrderRequest{
			TokenID: s.Trade.BTCTokenID, Side: types.SideSell, Size: s.Trade.Units, Price: one, OrderType: types.OrderTypeGTC,
		})
	}
	if !s.SOLWon && !s.BTCWon {
		log.Warn().Str("trade", s.Trade.ID).Msg("⚠️ Both legs lost, nothing to sell")
	}
}

// Payout is what units pay when the given legs win: $1 per winning leg per unit
func Payout(units decimal.Decimal, solWon, btcWon bool) decimal.Decimal {
	switch {
	case solWon && btcWon:
		return units.Mul(two)
	case solWon || btcWon:
		return units
	default:
		return decimal.Zero
	}
}

// Stats returns realized totals and the pending count
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		TotalProfit:    l.totalProfit,
		TradesExecuted: l.tradesExecuted,
		Settled:        l.settled,
		Wins:           l.wins,
		Losses:         l.losses,
		Pending:        len(l.pending),
	}
}

// Pending returns copies of the pending trades, oldest first
func (l *Ledger) Pending() []types.PendingTrade {
	l.mu.Lock()
	out := make([]types.PendingTrade, 0, len(l.pending))
	for _, t := range l.pending {
		out = append(out, *t)
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}
