package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nexus-bot/internal/account"
	"nexus-bot/internal/admission"
	"nexus-bot/internal/api"
	"nexus-bot/internal/bot"
	"nexus-bot/internal/broadcast"
	"nexus-bot/internal/clock"
	"nexus-bot/internal/config"
	"nexus-bot/internal/database"
	"nexus-bot/internal/database/memory"
	"nexus-bot/internal/database/sqlite"
	"nexus-bot/internal/delivery"
	"nexus-bot/internal/expiry"
	"nexus-bot/internal/floodguard"
	"nexus-bot/internal/nexus"
	"nexus-bot/internal/paste"
	"nexus-bot/internal/quota"
	"nexus-bot/internal/telegram"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := pflag.String("config", "", "path to a settings file (defaults to ./configs/settings.yml)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := makeLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Bot stopped with error", zap.Error(err))
	}
	logger.Info("Bot stopped")
}

func makeLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	zcfg.DisableStacktrace = true
	return zcfg.Build()
}

// openStore returns the configured store and a function releasing it.
func openStore(ctx context.Context, cfg config.DBConfig) (database.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg.Source, cfg.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate schema: %w", err)
		}
		return database.NewStore(pool), pool.Close, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.Source)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case config.DriverMemory:
		return memory.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, closeStore, err := openStore(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer closeStore()
	if err := store.EnsureStats(ctx); err != nil {
		return fmt.Errorf("ensure stats row: %w", err)
	}
	logger.Info("Connected to store", zap.String("driver", cfg.DB.Driver))

	tg := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.APIURL, logger.Named("telegram"))
	me, err := tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("identify bot: %w", err)
	}
	logger.Info("Authorized with Telegram", zap.String("username", me.Username))

	clk := clock.Real()
	cluster := nexus.NewCluster(cfg.Nexus.URLs, nexus.Options{
		APIKey:        cfg.Nexus.APIKey,
		SearchTimeout: cfg.Nexus.SearchTimeout,
		StatusTimeout: cfg.Nexus.StatusTimeout,
		Logger:        logger.Named("nexus"),
	})
	gate := admission.New(cfg.Search.Concurrency)
	pastes := paste.NewClient(cfg.Paste.URL, cfg.Paste.Timeout, logger.Named("paste"))
	accounts, err := account.NewService(store, clk, logger.Named("account"))
	if err != nil {
		return err
	}
	flood := floodguard.New(cfg.Flood.Rate, cfg.Flood.Burst)

	throttler := broadcast.New(ctx, tg, clk, broadcast.Config{
		Operator:   cfg.AdminID,
		Interval:   cfg.Broadcast.Interval,
		PauseEvery: cfg.Broadcast.PauseEvery,
		Pause:      cfg.Broadcast.Pause,
	}, logger.Named("broadcast"))
	notifier := expiry.New(store, tg, clk, expiry.Config{
		Interval: cfg.Expiry.Interval,
		Window:   cfg.Expiry.Window,
		Pace:     cfg.Expiry.Pace,
	}, logger.Named("expiry"))

	b := bot.New(ctx, bot.Config{
		Messenger:         tg,
		Store:             store,
		Ledger:            quota.NewLedger(store, clk, logger.Named("quota")),
		Accounts:          accounts,
		Searcher:          cluster,
		Admission:         gate,
		Delivery:          delivery.NewStrategist(pastes, logger.Named("delivery")),
		Broadcaster:       throttler,
		Flood:             flood,
		Clock:             clk,
		Operator:          cfg.AdminID,
		Username:          me.Username,
		BroadcastInterval: cfg.Broadcast.Interval,
		Logger:            logger.Named("bot"),
	})

	var updates telegram.Handler
	if cfg.Telegram.Mode == config.ModeWebhook {
		if err := tg.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			return fmt.Errorf("register webhook: %w", err)
		}
		updates = b
	} else if err := tg.DeleteWebhook(ctx); err != nil {
		return fmt.Errorf("clear webhook: %w", err)
	}

	server := api.NewServer(store, updates, gate, cfg.Telegram.WebhookSecret, logger.Named("api"))
	httpServer := &http.Server{
		Addr:              cfg.AppHost,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.AppHost), zap.String("mode", cfg.Telegram.Mode))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if updates == nil {
		g.Go(func() error {
			return telegram.NewPoller(tg, b, cfg.Telegram.PollTimeout, logger.Named("poller")).Run(gctx)
		})
	}
	g.Go(func() error {
		return notifier.Run(gctx)
	})
	g.Go(func() error {
		flood.Run(gctx)
		return nil
	})

	err = g.Wait()

	// Handlers and broadcasts run on ctx, so they only stop early on a
	// signal; a server error waits for them to drain.
	b.Wait()
	throttler.Wait()
	return err
}
