package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"reversion-core/internal/api"
	"reversion-core/internal/broker"
	"reversion-core/internal/events"
	"reversion-core/internal/market"
	"reversion-core/internal/monitor"
	"reversion-core/internal/persistence"
	"reversion-core/internal/reconciliation"
	"reversion-core/internal/risk"
	"reversion-core/internal/session"
	"reversion-core/internal/strategy"
	"reversion-core/pkg/config"
	"reversion-core/pkg/db"
	"reversion-core/pkg/i18n"
	"reversion-core/pkg/logger"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

const (
	simBasePrice     = 10000.0
	journalBatchSize = 50
	journalInterval  = 2 * time.Second
)

func main() {
	issueToken := flag.String("issue-token", "", "print a reporting API token for `subject` and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of a token printed by -issue-token")
	flag.Parse()

	os.Exit(run(*issueToken, *tokenTTL))
}

func run(issueToken string, tokenTTL time.Duration) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, i18n.Get("ConfigLoadFailed")+"\n", err)
		return 2
	}

	logger.Init("reversion-core", cfg.LogLevel, cfg.LogPretty)
	i18n.SetLanguage(i18n.Language(cfg.Language))
	log := logger.Component("main")

	if issueToken != "" {
		token, err := api.IssueToken(issueToken, cfg.JWTSecret, tokenTTL)
		if err != nil {
			log.Error().Err(err).Msg("issue token")
			return 2
		}
		fmt.Println(token)
		return 0
	}

	log.Info().Msg(i18n.Get("Starting"))
	if err := cfg.Validate(); err != nil {
		log.Error().Msgf(i18n.Get("ConfigInvalid"), err)
		return 2
	}
	log.Info().Msgf(i18n.Get("ConfigLoaded"), cfg.Symbol, cfg.MaxTrades)

	if cfg.DemoMode {
		log.Info().Msg(i18n.Get("DemoMode"))
	} else {
		log.Warn().Msg(i18n.Get("LiveModeWarning"))
	}
	if cfg.DryRun {
		log.Info().Msg(i18n.Get("DryRunMode"))
	}

	params, found, err := strategy.LoadConfig(cfg.StrategyConfig)
	if err != nil {
		log.Error().Msgf(i18n.Get("StrategyConfigLoadFailed"), err)
		return 2
	}
	if found {
		log.Info().Msgf(i18n.Get("StrategyConfigLoaded"), cfg.StrategyConfig)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	metrics := monitor.NewMetrics("reversion")

	// Journal (optional)
	var journal *persistence.Journal
	if cfg.JournalEnabled {
		j, closeDB, err := openJournal(cfg.DBPath, metrics)
		if err != nil {
			log.Error().Err(err).Msg("journal unavailable")
			return 1
		}
		defer closeDB()
		defer j.Close()
		journal = j
		log.Info().Msgf(i18n.Get("JournalEnabled"), cfg.DBPath)
	}

	// Broker
	var client broker.Client
	brokerName := "http"
	if cfg.DryRun {
		client = broker.NewSimulator(cfg.SimStartBalance, cfg.SimWinProbability, cfg.SimPayoutRatio, time.Now().UnixNano())
		brokerName = "simulator"
	} else {
		client = broker.NewHTTPClient(broker.HTTPConfig{
			BaseURL:       cfg.BrokerURL,
			Token:         cfg.BrokerAPIToken,
			RPS:           cfg.BrokerRPS,
			SettleTimeout: cfg.SettleTimeout,
		})
	}

	// Price feed
	var source market.Source
	if cfg.UseMockFeed {
		source = market.NewSimulator(simBasePrice, time.Now().UnixNano())
		log.Info().Msgf(i18n.Get("MockFeedStarted"), simBasePrice)
	} else {
		stream := market.NewTickStream(cfg.BrokerWSURL, cfg.Symbol)
		if err := stream.Start(ctx); err != nil {
			log.Error().Msgf(i18n.Get("BrokerConnectFailed"), err)
			return 1
		}
		defer stream.Close()
		source = stream
		log.Info().Msgf(i18n.Get("TickFeedStarted"), cfg.Symbol)
	}

	deps := session.Deps{
		Source:  source,
		Broker:  client,
		Bus:     bus,
		Metrics: metrics,
	}
	if journal != nil {
		deps.Journal = journal
	}

	loop, err := session.New(session.Config{
		Symbol:           cfg.Symbol,
		ContractDuration: cfg.ContractDuration,
		Demo:             cfg.DemoMode,
		DryRun:           cfg.DryRun,
		BaseStake:        cfg.BaseStake,
		Limits: risk.Limits{
			DailyProfitTarget: cfg.DailyProfitTarget,
			DailyLossLimit:    cfg.DailyLossLimit,
			MaxTrades:         cfg.MaxTrades,
		},
		Strategy:        params,
		IdleInterval:    cfg.IdleInterval,
		TradeInterval:   cfg.TradeInterval,
		FailureBackoff:  cfg.FailureBackoff,
		SummaryInterval: cfg.SummaryInterval,
	}, deps)
	if err != nil {
		log.Error().Err(err).Msg("session setup failed")
		return 1
	}

	alerts := &monitor.Monitor{Bus: bus, Sink: monitor.LogSink{Logger: logger.Component("alerts")}}
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	monitorDone := alerts.Start(monitorCtx)

	reconciler := reconciliation.NewService(client, loop, metrics, cfg.ReconcileInterval, 0)
	reconcileCtx, stopReconcile := context.WithCancel(ctx)
	reconcileDone := reconciler.Start(reconcileCtx)

	// Reporting API (optional)
	apiCtx, stopAPI := context.WithCancel(context.Background())
	apiDone := make(chan struct{})
	if cfg.APIEnabled {
		gin.SetMode(gin.ReleaseMode)
		opts := api.Options{
			Session:   loop,
			Bus:       bus,
			Metrics:   metrics,
			JWTSecret: cfg.JWTSecret,
			Reconcile: reconciler,
			Meta: api.SystemMeta{
				Version:     version,
				Broker:      brokerName,
				UseMockFeed: cfg.UseMockFeed,
			},
		}
		if journal != nil {
			opts.Journal = journal
		}
		server := api.NewServer(opts)
		go func() {
			defer close(apiDone)
			log.Info().Msgf(i18n.Get("ServerListening"), cfg.Port)
			if err := server.Start(apiCtx, ":"+cfg.Port); err != nil {
				log.Error().Msgf(i18n.Get("APIServerError"), err)
			}
		}()
	} else {
		close(apiDone)
	}

	report, runErr := loop.Run(ctx)

	log.Info().Msg(i18n.Get("ShuttingDown"))
	stopReconcile()
	<-reconcileDone
	// Watchers drain the stop event before exiting.
	stopMonitor()
	monitorDone.Wait()
	stopAPI()
	<-apiDone

	if runErr != nil {
		log.Error().Err(runErr).Str("stop_reason", string(report.StopReason)).Msg("session ended with error")
		return 1
	}
	return 0
}

func openJournal(path string, metrics *monitor.Metrics) (*persistence.Journal, func(), error) {
	log := logger.Component("journal")
	log.Info().Msgf(i18n.Get("UsingDBPath"), path)

	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	database, err := db.New(path)
	if err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	journal := persistence.NewJournal(database, journalBatchSize, journalInterval)
	// Sole counting point for journal drops.
	journal.OnError(func(err error, ops int) {
		metrics.JournalDrops(ops)
		log.Error().Int("ops", ops).Msgf(i18n.Get("JournalWriteFailed"), err)
	})
	return journal, func() { _ = database.Close() }, nil
}
