// Hedgebot - SOL/BTC 15-minute up/down hedge bot for Polymarket
//
// Each 15 minutes Polymarket lists an up/down market for SOL and one for
// BTC. When SOL Up + BTC Down (or SOL Down + BTC Up) can be bought for less
// than $1 together, the pair is recorded and settled once both markets
// close.
//
// Strategy:
// 1. Discover the current SOL and BTC markets by slug
// 2. Poll best asks for all four outcome tokens
// 3. Record cross-market pairs priced below $1
// 4. Settle when both markets report closed
// 5. Roll over to the next pair every period
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/web3guy0/hedgebot/internal/arbitrage"
	"github.com/web3guy0/hedgebot/internal/config"
	"github.com/web3guy0/hedgebot/internal/database"
	"github.com/web3guy0/hedgebot/internal/engine"
	"github.com/web3guy0/hedgebot/internal/monitor"
	"github.com/web3guy0/hedgebot/internal/notify"
	"github.com/web3guy0/hedgebot/internal/polymarket"
	"github.com/web3guy0/hedgebot/internal/trading"
	"github.com/web3guy0/hedgebot/internal/types"
)

const version = "1.0.0"

func main() {
	simulation := pflag.BoolP("simulation", "s", true, "record trades without sending orders")
	configPath := pflag.StringP("config", "c", "config.json", "path to the JSON config file")
	pflag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	cfg.Simulation = *simulation

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	mode := "SIMULATION"
	if !cfg.Simulation {
		mode = "LIVE"
	}
	log.Info().
		Str("version", version).
		Str("mode", mode).
		Str("min_profit", cfg.Trading.MinProfitDecimal().String()).
		Str("max_position", cfg.Trading.MaxPositionDecimal().String()).
		Msg("🚀 Hedgebot starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ====== POLYMARKET ======

	creds := polymarket.Credentials{
		APIKey:     cfg.Polymarket.APIKey,
		Secret:     cfg.Polymarket.APISecret,
		Passphrase: cfg.Polymarket.Passphrase,
		Address:    cfg.Polymarket.WalletAddress,
	}
	client := polymarket.NewClient(polymarket.Config{
		GammaURL:          cfg.Polymarket.GammaAPIURL,
		ClobURL:           cfg.Polymarket.CLOBAPIURL,
		Credentials:       creds,
		RequestsPerSecond: cfg.Polymarket.RequestsPerSecond,
		Timeout:           cfg.Polymarket.RequestTimeout(),
	})

	var quotes monitor.QuoteSource = client
	var wsClient *polymarket.WSClient
	if cfg.Polymarket.UseWebsocket {
		wsClient = polymarket.NewWSClient(cfg.Polymarket.WSURL)
		quotes = polymarket.NewStreamingSource(client, wsClient, polymarket.DefaultStreamMaxAge)
		log.Info().Msg("📡 Streaming quotes enabled")
	}

	// ====== MARKETS ======

	discoverer := monitor.NewDiscoverer(client)
	sol, btc, err := initialMarkets(ctx, cfg, discoverer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to find SOL/BTC markets")
	}
	log.Info().Str("slug", sol.Slug).Str("condition", sol.ConditionID).Msg("SOL market")
	log.Info().Str("slug", btc.Slug).Str("condition", btc.ConditionID).Msg("BTC market")

	registry, err := monitor.NewRegistry(client, sol, btc)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid market pair")
	}

	// ====== LEDGER ======

	ledger := trading.NewLedger(trading.Config{
		MaxPositionSize: cfg.Trading.MaxPositionDecimal(),
		Live:            !cfg.Simulation,
	}, client)

	if !cfg.Simulation {
		if creds.Empty() {
			log.Warn().Msg("⚠️ No credentials - add CLOB_API_KEY/SECRET to .env, orders will be rejected")
		}
		ledger.SetOrderPlacer(client)
		log.Warn().Msg("💳 LIVE mode: orders will be sent")
	}

	var journal *database.Database
	if cfg.Storage.DatabasePath != "" {
		journal, err = database.New(cfg.Storage.DatabasePath)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Failed to open trade journal, continuing without it")
			journal = nil
		} else {
			ledger.SetJournal(journal)
			defer journal.Close()
		}
	}

	// ====== ENGINE ======

	eng := engine.NewEngine(engine.Config{
		CheckInterval: cfg.Trading.CheckInterval(),
		MetricsPort:   cfg.Metrics.Port,
	},
		monitor.NewSnapshotter(registry, quotes),
		arbitrage.NewDetector(cfg.Trading.MinProfitDecimal()),
		ledger,
		monitor.NewRollover(registry, discoverer),
	)

	if wsClient != nil {
		eng.AddService("websocket", wsClient)
	}

	if cfg.Notify.Enabled() {
		tg, err := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram unavailable, notifications disabled")
		} else {
			ledger.SetNotifier(tg)
			tg.NotifyStartup(ledger.IsLive(), sol.ConditionID, btc.ConditionID)
			eng.AddService("telegram", tg)
		}
	}

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Engine stopped with error")
	}

	if journal != nil {
		summary, err := journal.Summary(context.Background())
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Failed to read journal summary")
		} else {
			log.Info().
				Int64("trades", summary.Trades).
				Int64("settlements", summary.Settlements).
				Str("total_profit", summary.TotalProfit.StringFixed(2)).
				Msg("📒 Journal totals")
		}

		recent, err := journal.RecentSettlements(context.Background(), 5)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Failed to read recent settlements")
		}
		for _, r := range recent {
			log.Info().
				Str("trade", r.TradeID).
				Bool("sol_won", r.SOLWon).
				Bool("btc_won", r.BTCWon).
				Str("profit", r.Profit.StringFixed(2)).
				Time("settled_at", r.SettledAt).
				Msg("📒 Recent settlement")
		}
	}

	log.Info().Msg("👋 Hedgebot stopped")
}

// initialMarkets uses the configured condition ids when both are set and
// discovers the current pair otherwise
func initialMarkets(ctx context.Context, cfg *config.Config, discoverer *monitor.Discoverer) (types.Market, types.Market, error) {
	if cfg.Trading.Pinned() {
		log.Info().Msg("📌 Using condition ids from config")
		sol := types.Market{ConditionID: cfg.Trading.SOLConditionID, Active: true}
		btc := types.Market{ConditionID: cfg.Trading.BTCConditionID, Active: true}
		return sol, btc, nil
	}

	log.Info().Msg("🔍 Discovering current 15-minute markets...")
	return discoverer.DiscoverPair(ctx, map[string]bool{})
}
