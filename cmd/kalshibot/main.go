package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dnavarro/kalshibot/config"
	"github.com/dnavarro/kalshibot/internal/adapters/kalshi"
	"github.com/dnavarro/kalshibot/internal/adapters/notify"
	"github.com/dnavarro/kalshibot/internal/adapters/storage"
	"github.com/dnavarro/kalshibot/internal/application/engine"
	"github.com/dnavarro/kalshibot/internal/application/settle"
	"github.com/dnavarro/kalshibot/internal/application/whatif"
	"github.com/dnavarro/kalshibot/internal/domain"
	"github.com/dnavarro/kalshibot/internal/server"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one engine pass and exit")
	serve := flag.Bool("serve", false, "expose the operator HTTP API while looping")
	report := flag.Bool("report", false, "print the order ledger and exit")
	whatIf := flag.Bool("whatif", false, "print settled results + open-book projection and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full run tables (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ledger, err := storage.NewSQLiteLedger(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open ledger", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer ledger.Close()
	if err := ledger.ApplySchema(ctx); err != nil {
		slog.Error("failed to apply schema", "err", err)
		os.Exit(1)
	}

	console := notify.NewConsole(*table || *once)

	// Ledger-only modes: no exchange credentials needed.
	if *report {
		orders, err := ledger.GetOrdersByPlacementStatus(ctx,
			domain.PlacementPending, domain.PlacementPlaced,
			domain.PlacementConfirmed, domain.PlacementQueue)
		if err != nil {
			slog.Error("failed to load orders", "err", err)
			os.Exit(1)
		}
		console.PrintOrders(orders)
		return
	}
	if *whatIf {
		rep, err := whatif.New(ledger, time.Now().UnixNano()).Report(ctx)
		if err != nil {
			slog.Error("what-if analysis failed", "err", err)
			os.Exit(1)
		}
		console.PrintWhatIf(rep)
		return
	}

	creds, err := kalshi.LoadCredentials(cfg.API.KeyID, cfg.API.PrivateKeyPath)
	if err != nil {
		slog.Error("failed to load credentials", "err", err)
		os.Exit(1)
	}
	client, err := kalshi.NewClient(cfg.API.BaseURL, creds)
	if err != nil {
		slog.Error("failed to build API client", "err", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		slog.Error("failed to load timezone", "err", err, "tz", cfg.Engine.Timezone)
		os.Exit(1)
	}
	feed := kalshi.NewFeed(client, kalshi.FeedConfig{
		MinAskCents:     cfg.Feed.MinAskCents,
		MaxAskCents:     cfg.Feed.MaxAskCents,
		MinOpenInterest: cfg.Feed.MinOpenInterest,
		MaxCandidates:   cfg.Feed.MaxCandidates,
		SeriesTickers:   cfg.Feed.SeriesTickers,
	}, loc)

	trading := kalshi.NewTrading(client)
	eng, err := engine.New(trading, ledger, feed, engine.Config{
		MaxEventFraction: cfg.Engine.MaxEventFraction,
		MaxOrderCents:    cfg.Engine.MaxOrderCents,
		ImproveAfter:     cfg.ImproveAfter(),
		CancelAfter:      cfg.CancelAfter(),
		ImproveStepCents: cfg.Engine.ImproveStepCents,
		ExecuteAfterHour: cfg.Engine.ExecuteAfterHour,
		RolloverHour:     cfg.Engine.RolloverHour,
		Timezone:         cfg.Engine.Timezone,
		CallInterval:     cfg.CallInterval(),
		UnitSizeCents:    cfg.Engine.UnitSizeCents,
	})
	if err != nil {
		slog.Error("failed to build engine", "err", err)
		os.Exit(1)
	}

	srv := server.New(eng, ledger)
	syncer := settle.New(trading, ledger)

	slog.Info("kalshibot starting",
		"config", *configPath,
		"interval", cfg.RunInterval(),
		"once", *once,
		"serve", *serve,
	)

	if *once {
		rep, err := srv.RunAndStore(ctx)
		if err != nil {
			slog.Error("run failed", "err", err)
			os.Exit(1)
		}
		if _, err := syncer.Sync(ctx); err != nil {
			slog.Warn("settlement sync failed", "err", err)
		}
		console.PrintRunReport(rep)
		return
	}

	if *serve {
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
				slog.Error("operator server exited", "err", err)
				cancel()
			}
		}()
	}

	runLoop(ctx, srv, syncer, console, cfg.RunInterval())
	slog.Info("kalshibot stopped cleanly")
}

// runLoop runs one pass immediately, then on every tick until shutdown.
// Operator runs via the HTTP API share the same lock, so passes never overlap.
func runLoop(ctx context.Context, srv *server.Server, syncer *settle.Syncer, console *notify.Console, interval time.Duration) {
	run := func() {
		rep, err := srv.RunAndStore(ctx)
		if err != nil {
			slog.Error("run failed", "err", err)
			return
		}
		if _, err := syncer.Sync(ctx); err != nil {
			slog.Warn("settlement sync failed", "err", err)
		}
		console.PrintRunReport(rep)
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
