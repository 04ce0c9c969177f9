// Package metrics exposes Prometheus counters for the hedge bot
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	// SnapshotsCapturedTotal tracks completed poll ticks.
	SnapshotsCapturedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hedgebot_snapshots_captured_total",
		Help: "Total number of market snapshots captured",
	})

	// QuoteFailuresTotal tracks quotes that came back absent, by side.
	QuoteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hedgebot_quote_failures_total",
			Help: "Total number of quote fetches that failed",
		},
		[]string{"side"},
	)

	// OpportunitiesDetectedTotal tracks detected hedges by leg combination.
	OpportunitiesDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hedgebot_opportunities_detected_total",
			Help: "Total number of hedge opportunities detected",
		},
		[]string{"combo"},
	)

	// OpportunityProfitBPS tracks expected margins in basis points.
	OpportunityProfitBPS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hedgebot_opportunity_profit_bps",
		Help:    "Expected profit margin of detected opportunities in basis points",
		Buckets: []float64{10, 25, 50, 100, 200, 500, 1000, 2000, 5000},
	})

	TradesRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hedgebot_trades_recorded_total",
		Help: "Total number of opportunities recorded into the ledger",
	})

	// SettlementsTotal tracks settled trades by how many legs won.
	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hedgebot_settlements_total",
			Help: "Total number of settled trades",
		},
		[]string{"outcome"},
	)

	PendingTrades = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hedgebot_pending_trades",
		Help: "Number of trades waiting for settlement",
	})

	RealizedProfitUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hedgebot_realized_profit_usd",
		Help: "Running total of realized profit",
	})

	// OrdersSubmittedTotal tracks live-mode orders by side and result.
	OrdersSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hedgebot_orders_submitted_total",
			Help: "Total number of orders submitted",
		},
		[]string{"side", "result"},
	)

	RolloversTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hedgebot_rollovers_total",
		Help: "Total number of completed period rollovers",
	})

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hedgebot_circuit_breaker_state",
			Help: "Circuit breaker state per upstream",
		},
		[]string{"name"},
	)
)

// Serve exposes /metrics on port until ctx is cancelled
func Serve(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", port).Msg("📈 Metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: serve: %w", err)
	}
	return nil
}
