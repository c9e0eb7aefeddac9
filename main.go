package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"flashbot/internal/api"
	"flashbot/internal/approval"
	"flashbot/internal/bot"
	"flashbot/internal/config"
	"flashbot/internal/decision"
	"flashbot/internal/generator"
	"flashbot/internal/notifier"
	"flashbot/internal/scraper"
	"flashbot/internal/state"
	"flashbot/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yml", "path to the YAML config file")
	continuous := flag.Bool("continuous", false, "keep running cycles until interrupted")
	testMode := flag.Bool("test", false, "run without posting or mutating state")
	dev := flag.Bool("dev", false, "use the development logger")
	flag.Parse()

	// A .env file is optional; real deployments set the environment
	// directly.
	_ = godotenv.Load()

	var logger *zap.Logger
	var err error
	if *dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	backend, err := storage.NewBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize storage backend", zap.Error(err))
	}
	defer func() {
		switch c := backend.(type) {
		case interface{ Close(context.Context) }:
			c.Close(context.Background())
		case interface{ Close() error }:
			_ = c.Close()
		}
	}()

	store := state.NewStore(backend, state.Defaults{
		ScrapeTimeoutSeconds: cfg.Decision.ScrapeTimeoutSeconds,
		RandomSleepMin:       cfg.Decision.RandomSleepMinMinutes,
		RandomSleepMax:       cfg.Decision.RandomSleepMaxMinutes,
		RandomSleepEnabled:   cfg.Decision.RandomSleepEnabled,
	}, logger)
	seen := state.NewSeenCache(backend, cfg.Cache.Disabled, logger)

	filters, err := decision.NewFilters(cfg.Decision.UnwantedPhrases, cfg.Decision.UnwantedPhrasesLiteral)
	if err != nil {
		logger.Fatal("failed to compile unwanted phrase filters", zap.Error(err))
	}
	engine := decision.NewEngine(cfg.Thread.Username, cfg.Approval.ReselectRejected, filters, logger)

	notif, err := notifier.NewNotifier(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize notifier", zap.Error(err))
	}

	gate := approval.NewGate(backend, notif,
		time.Duration(cfg.Approval.TimeoutMinutes)*time.Minute,
		time.Duration(cfg.Approval.PollIntervalSeconds)*time.Second,
		logger)

	gen, err := generator.NewGenerator(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize generator", zap.Error(err))
	}
	defer func() {
		if c, ok := gen.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}()

	scr, err := scraper.NewChromeScraper(scraper.Config{
		Headless:   cfg.Scraper.Headless,
		ForumURL:   cfg.Thread.URL,
		Username:   cfg.Secrets.ForumUsername,
		Password:   cfg.Secrets.ForumPassword,
		UserAgents: cfg.Scraper.UserAgents,
	}, logger)
	if err != nil {
		logger.Fatal("failed to start browser", zap.Error(err))
	}
	defer scr.Close()

	orch := bot.NewOrchestrator(cfg, store, seen, engine, gate, scr, gen, logger)

	if cfg.API.Listen != "" {
		srv := api.NewServer(orch, logger)
		go func() {
			if err := srv.Start(cfg.API.Listen); err != nil {
				logger.Error("API server failed", zap.Error(err))
			}
		}()
	}

	orch.Prune(ctx)

	if *continuous {
		orch.RunContinuous(ctx, *testMode)
		logger.Info("application stopped")
		return
	}

	res, err := orch.RunOnce(ctx, *testMode)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("run complete",
		zap.String("outcome", string(res.Outcome)),
		zap.String("reason", res.Reason))
}
