package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/web3guy0/hedgebot/internal/metrics"
	"github.com/web3guy0/hedgebot/internal/monitor"
	"github.com/web3guy0/hedgebot/internal/trading"
	"github.com/web3guy0/hedgebot/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - Schedules the hedge pipeline
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   poll → snapshot → detect → ledger
//   every 30s: settlement sweep
//   every 60s: period rollover
//
// The poller hands snapshots to the consumer over a one-slot channel. A
// snapshot the consumer has not picked up is replaced by the newer one.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	DefaultSweepInterval    = 30 * time.Second
	DefaultRolloverInterval = 60 * time.Second
)

var bpsScale = decimal.NewFromInt(10000)

// SnapshotSource captures one view of both markets
type SnapshotSource interface {
	CaptureSnapshot(ctx context.Context) types.MarketSnapshot
}

// Detector finds opportunities in a snapshot
type Detector interface {
	Detect(snap *types.MarketSnapshot) []types.Opportunity
}

// Ledger books opportunities and settles them
type Ledger interface {
	RecordOpportunity(ctx context.Context, opp types.Opportunity) decimal.Decimal
	SweepSettlements(ctx context.Context) []types.Settlement
	Stats() trading.Stats
}

// PeriodChecker swaps markets when a new period starts
type PeriodChecker interface {
	Check(ctx context.Context) (bool, error)
}

// Service is a long-running helper started alongside the pipeline, such as
// the websocket feed or the Telegram sender
type Service interface {
	Run(ctx context.Context) error
}

// Config holds loop intervals. Zero values take the defaults.
type Config struct {
	CheckInterval    time.Duration
	SweepInterval    time.Duration
	RolloverInterval time.Duration
	MetricsPort      int
}

type Engine struct {
	cfg       Config
	snapshots SnapshotSource
	detector  Detector
	ledger    Ledger
	rollover  PeriodChecker
	services  map[string]Service
}

// NewEngine creates an engine over the given components
func NewEngine(cfg Config, snapshots SnapshotSource, detector Detector, ledger Ledger, rollover PeriodChecker) *Engine {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.RolloverInterval <= 0 {
		cfg.RolloverInterval = DefaultRolloverInterval
	}
	return &Engine{
		cfg:       cfg,
		snapshots: snapshots,
		detector:  detector,
		ledger:    ledger,
		rollover:  rollover,
		services:  make(map[string]Service),
	}
}

// AddService registers s to run for the lifetime of Run
func (e *Engine) AddService(name string, s Service) {
	e.services[name] = s
}

// Run drives every loop until ctx is cancelled, then logs the final stats.
// Services and the metrics endpoint are optional; their failures are logged.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().
		Dur("check_interval", e.cfg.CheckInterval).
		Dur("sweep_interval", e.cfg.SweepInterval).
		Dur("rollover_interval", e.cfg.RolloverInterval).
		Msg("🚀 Engine started")

	g, ctx := errgroup.WithContext(ctx)

	snaps := make(chan types.MarketSnapshot, 1)
	g.Go(func() error {
		e.pollLoop(ctx, snaps)
		return nil
	})
	g.Go(func() error {
		e.consumeLoop(ctx, snaps)
		return nil
	})
	g.Go(func() error {
		e.every(ctx, e.cfg.SweepInterval, e.sweep)
		return nil
	})
	g.Go(func() error {
		e.every(ctx, e.cfg.RolloverInterval, e.checkRollover)
		return nil
	})

	for name, s := range e.services {
		g.Go(func() error {
			e.runOptional(ctx, name, s.Run)
			return nil
		})
	}

	if e.cfg.MetricsPort > 0 {
		g.Go(func() error {
			e.runOptional(ctx, "metrics", func(ctx context.Context) error {
				return metrics.Serve(ctx, e.cfg.MetricsPort)
			})
			return nil
		})
	}

	err := g.Wait()
	e.logStats()
	return err
}

// runOptional runs a helper whose failure must not stop trading
func (e *Engine) runOptional(ctx context.Context, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Str("service", name).Msg("⚠️ Service stopped, pipeline keeps running")
	}
}

func (e *Engine) pollLoop(ctx context.Context, out chan types.MarketSnapshot) {
	ticker := time.NewTicker(e.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		snap := e.snapshots.CaptureSnapshot(ctx)
		if ctx.Err() != nil {
			return
		}
		publish(out, snap)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// publish never blocks; an unread snapshot is replaced by snap
func publish(out chan types.MarketSnapshot, snap types.MarketSnapshot) {
	select {
	case out <- snap:
		return
	default:
	}
	select {
	case <-out:
		log.Debug().Msg("Dropping stale snapshot")
	default:
	}
	select {
	case out <- snap:
	default:
	}
}

func (e *Engine) consumeLoop(ctx context.Context, in <-chan types.MarketSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-in:
			e.handleSnapshot(ctx, &snap)
		}
	}
}

func (e *Engine) handleSnapshot(ctx context.Context, snap *types.MarketSnapshot) {
	for _, opp := range e.detector.Detect(snap) {
		combo := "SOL_" + string(opp.SOLOutcome) + "+BTC_" + string(opp.BTCOutcome)
		metrics.OpportunitiesDetectedTotal.WithLabelValues(combo).Inc()
		metrics.OpportunityProfitBPS.Observe(opp.ExpectedProfit.Mul(bpsScale).InexactFloat64())

		log.Info().
			Str("combo", combo).
			Str("sol_price", opp.SOLPrice.StringFixed(4)).
			Str("btc_price", opp.BTCPrice.StringFixed(4)).
			Str("total", opp.TotalCost.StringFixed(4)).
			Str("profit", opp.ExpectedProfit.StringFixed(4)).
			Msg("🎯 ARBITRAGE OPPORTUNITY")

		e.ledger.RecordOpportunity(ctx, opp)
	}
}

// every runs fn on each tick of interval until ctx is done
func (e *Engine) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (e *Engine) sweep(ctx context.Context) {
	e.ledger.SweepSettlements(ctx)
}

func (e *Engine) checkRollover(ctx context.Context) {
	swapped, err := e.rollover.Check(ctx)
	switch {
	case errors.Is(err, monitor.ErrInvariantViolation):
		log.Error().Err(err).Msg("❌ Rollover rejected, keeping current markets")
	case err != nil:
		log.Warn().Err(err).Msg("⚠️ Rollover failed, will retry")
	case swapped:
		log.Info().Msg("✅ Markets rolled over to the new period")
	}
}

func (e *Engine) logStats() {
	st := e.ledger.Stats()
	log.Info().
		Str("total_profit", st.TotalProfit.StringFixed(2)).
		Int("trades", st.TradesExecuted).
		Int("settled", st.Settled).
		Int("wins", st.Wins).
		Int("losses", st.Losses).
		Int("pending", st.Pending).
		Msg("📊 Final stats")
}
