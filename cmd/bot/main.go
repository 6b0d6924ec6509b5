package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/Carl590/ai-trading-bot/internal/config"
	dex "github.com/Carl590/ai-trading-bot/internal/dex/solana"
	"github.com/Carl590/ai-trading-bot/internal/engine"
	"github.com/Carl590/ai-trading-bot/internal/exchange"
	"github.com/Carl590/ai-trading-bot/internal/execution"
	"github.com/Carl590/ai-trading-bot/internal/intake"
	"github.com/Carl590/ai-trading-bot/internal/ledger"
	"github.com/Carl590/ai-trading-bot/internal/metrics"
	"github.com/Carl590/ai-trading-bot/internal/normalize"
	"github.com/Carl590/ai-trading-bot/internal/paper"
	"github.com/Carl590/ai-trading-bot/internal/policy"
	"github.com/Carl590/ai-trading-bot/internal/safety"
	"github.com/Carl590/ai-trading-bot/internal/score"
	sig "github.com/Carl590/ai-trading-bot/internal/signal"
	"github.com/Carl590/ai-trading-bot/internal/stops"
	"github.com/Carl590/ai-trading-bot/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		lg := util.NewLogger("info")
		lg.Fatal().Err(err).Msg("load config")
	}
	log := util.NewFileLogger(cfg.App.LogLevel, cfg.App.LogFile)

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := ledger.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open ledger")
	}
	defer store.Close()

	policies, err := policy.NewStore(store.DB())
	if err != nil {
		log.Fatal().Err(err).Msg("open policy store")
	}

	provider := safety.NewHTTPProvider(cfg.Safety.ProviderBaseURL, cfg.Safety.Timeout())
	gate := safety.NewGate(provider, cfg.Safety.Thresholds, cfg.Safety.Timeout(), cfg.Safety.CacheTTL(), log)

	width, err := stops.BuildWidthStrategy(cfg.Stops.Mode, cfg.Stops.Params)
	if err != nil {
		log.Fatal().Err(err).Msg("build width strategy")
	}

	feed := exchange.NewFeed(cfg.Feed.Provider, nil, log,
		exchange.WithPollInterval(cfg.Feed.PollInterval()),
		exchange.WithDexScreenerBaseURL(cfg.Feed.DexScreenerBaseURL),
		exchange.WithPumpPortalURL(cfg.Feed.PumpPortalURL),
	)

	var executor execution.Executor
	switch cfg.App.Mode {
	case "live":
		key, err := dex.LoadPrivateKeyFromEnv()
		if err != nil {
			log.Fatal().Err(err).Msg("load wallet")
		}
		client := dex.NewJupiterClient(cfg.Dex.RpcURL, cfg.Dex.JupiterBase, key, cfg.Dex.Commitment)
		executor = dex.NewLiveExecutor(client, log)
	default:
		account := paper.NewAccount(cfg.Paper.StartingCash, cfg.Paper.MaxPositionPerToken)
		fills := paper.NewFillLog(0)
		executor = paper.NewExecutor(account, feed.LastPrice, cfg.Execution.SlippageBps, fills, log)
	}
	executor = execution.NewRetrier(executor, cfg.Execution.Attempts, cfg.Execution.Backoff(), log)

	var audit *engine.AuditLog
	if cfg.Storage.AuditPath != "" {
		audit, err = engine.NewAuditLog(cfg.Storage.AuditPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open audit log")
		}
		defer audit.Close()
	}

	eng, err := engine.New(engine.Deps{
		Normalizer: normalize.New(),
		Scorer:     score.New(cfg.Scoring),
		Gate:       gate,
		Policies:   policies,
		Ledger:     store,
		Stops:      stops.NewManager(),
		Width:      width,
		Executor:   executor,
		Sizing:     cfg.Sizing,
		Audit:      audit,
		Log:        log,
		QueueSize:  cfg.Intake.QueueSize,
		Workers:    cfg.Intake.Workers,
		TickRate:   cfg.Intake.TickRateLimit,
		TickBurst:  cfg.Intake.TickBurst,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}
	eng.SetTokenListener(feed.SetTokens)

	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start engine")
	}

	ticks := make(chan sig.Tick, 1024)
	go func() {
		if err := feed.Run(ctx, ticks); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("feed stopped")
			cancel()
		}
	}()

	server := intake.NewServer(eng, log)
	httpSrv := server.Serve(cfg.Intake.Addr)
	defer httpSrv.Close()
	log.Info().Str("addr", cfg.Intake.Addr).Str("mode", cfg.App.Mode).Msg("engine started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		case tk := <-ticks:
			eng.ObservePrice(ctx, tk)
		}
	}
}
