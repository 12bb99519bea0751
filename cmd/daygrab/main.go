package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/dustin/go-humanize"
	"github.com/reolink-tools/daygrab/internal/cli"
	"github.com/reolink-tools/daygrab/internal/config"
	"github.com/reolink-tools/daygrab/internal/downloader"
	"github.com/reolink-tools/daygrab/internal/http/rest"
	"github.com/reolink-tools/daygrab/internal/logctx"
	"github.com/reolink-tools/daygrab/internal/notifier"
	"github.com/reolink-tools/daygrab/internal/nvr"
	"github.com/reolink-tools/daygrab/internal/nvr/reolink"
	"github.com/reolink-tools/daygrab/internal/outputstore"
	"github.com/reolink-tools/daygrab/internal/storage"
	"github.com/reolink-tools/daygrab/internal/storage/sqlite"
	"github.com/reolink-tools/daygrab/internal/telemetry"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
)

const version = "1.0.0"

func main() {
	var args config.Args

	arg.MustParse(&args)

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	cfg.Apply(&args)

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("daygrab starting...", "version", version, "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg, &args); err != nil {
		if errors.Is(err, cli.ErrAborted) {
			slog.Info("nothing downloaded")
			os.Exit(0)
		}

		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args *config.Args) error {
	logger := logctx.LoggerFromContext(ctx)

	// Host and password may be prompted for when stdin is a terminal; a
	// non-interactive run without them fails here instead.
	creds := cli.Credentials{Host: cfg.Host, Username: cfg.Username, Password: cfg.Password}
	if err := cli.CompleteCredentials(&creds, os.Stdin, os.Stderr); err != nil {
		return err
	}
	cfg.Host, cfg.Username, cfg.Password = creds.Host, creds.Username, creds.Password

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Web.Enabled,
		ServiceName:    "daygrab",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer shutdownCancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	if cfg.Web.Enabled {
		if err := otelruntime.Start(); err != nil {
			logger.Warn("failed to start runtime instrumentation", "err", err)
		}
	}

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open segment journal: %w", err)
	}
	defer database.Close()

	var journal storage.SegmentJournal = sqlite.NewInstrumentedSegmentRepository(database, tel)

	// =========================================================================
	// Start Device Sessions
	pool := downloader.NewSessionPool(func() nvr.Session {
		return reolink.NewClient(cfg.Host, cfg.Username, cfg.Password,
			reolink.WithCommandTimeout(cfg.CommandTimeout),
		)
	})

	channel, date, quality, workers, err := resolveSelection(ctx, cfg, args, pool)
	if err != nil {
		return err
	}

	// =========================================================================
	// Start Output Store
	store, err := outputstore.New(cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to prepare output directory: %w", err)
	}

	orch := downloader.New(store, pool,
		downloader.WithWorkers(workers),
		downloader.WithRetryPolicy(downloader.NewRetryPolicy(cfg.MaxAttempts)),
		downloader.WithJournal(journal),
		downloader.WithTelemetry(tel),
		downloader.WithFetchTimeout(cfg.FetchTimeout),
	)

	// =========================================================================
	// Start Status API
	if cfg.Web.Enabled {
		server := setupServer(ctx, orch, journal, tel, cfg)

		go func() {
			logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server error", "err", err)
			}
		}()

		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
			defer shutdownCancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to gracefully shutdown the server", "err", err)

				if err = server.Close(); err != nil {
					logger.Error("could not stop server gracefully", "err", err)
				}
			}
		}()
	}

	// =========================================================================
	// Start Download
	logger.Info("downloading full day",
		"channel", channel,
		"date", date.Format("2006-01-02"),
		"quality", string(quality),
		"workers", workers,
		"output_dir", store.Dir(),
	)

	summary, err := orch.Run(ctx, channel, date, quality)
	if err != nil {
		return err
	}

	reportSummary(logger, summary)
	notifySummary(ctx, cfg, date, summary)

	if !summary.OK() {
		return fmt.Errorf("%d of %d segments failed", summary.Failed, summary.Planned)
	}

	return nil
}

// resolveSelection decides what to download: flags when a date is given,
// the interactive flow otherwise.
func resolveSelection(ctx context.Context, cfg *config.Config, args *config.Args, pool *downloader.SessionPool) (int, time.Time, nvr.Quality, int, error) {
	if args.Interactive || args.Date == "" {
		sess, err := pool.Acquire(ctx, 0)
		if err != nil {
			return 0, time.Time{}, "", 0, fmt.Errorf("failed to connect to the recorder: %w", err)
		}
		defer pool.Release(ctx, sess)

		selection, err := cli.NewPrompter(os.Stdin, os.Stdout).Select(ctx, sess, cfg.Lookback, cfg.Workers)
		if err != nil {
			return 0, time.Time{}, "", 0, err
		}

		return selection.Channel, selection.Date, selection.Quality, selection.Workers, nil
	}

	quality, ok := nvr.ParseQuality(cfg.Quality)
	if !ok {
		return 0, time.Time{}, "", 0, fmt.Errorf("invalid quality %q, expected high or low", cfg.Quality)
	}

	date, err := time.ParseInLocation("2006-01-02", args.Date, time.Local)
	if err != nil {
		return 0, time.Time{}, "", 0, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", args.Date, err)
	}

	return cfg.Channel, date, quality, cfg.Workers, nil
}

func setupServer(ctx context.Context, orch *downloader.Orchestrator, journal storage.SegmentJournal, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	handler := rest.NewStatusHandler(orch, journal, tel)

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      handler.Routes(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func notifySummary(ctx context.Context, cfg *config.Config, date time.Time, summary *downloader.Summary) {
	if cfg.DiscordWebhookURL == "" {
		return
	}

	notif := &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL}

	message := fmt.Sprintf("✅ Downloaded %d segments (%s) for %s",
		summary.Completed, humanize.Bytes(uint64(summary.Bytes)), date.Format("2006-01-02"))
	if !summary.OK() {
		message = fmt.Sprintf("❌ %d of %d segments failed for %s",
			summary.Failed, summary.Planned, date.Format("2006-01-02"))
	}

	if err := notif.Notify(ctx, message); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to send notification", "err", err)
	}
}

func reportSummary(logger *slog.Logger, summary *downloader.Summary) {
	logger.Info("download summary",
		"planned", summary.Planned,
		"completed", summary.Completed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"size", humanize.Bytes(uint64(summary.Bytes)),
		"elapsed", summary.Elapsed.Round(time.Second).String(),
	)

	for _, failure := range summary.Failures {
		logger.Error("segment not downloaded",
			"window", failure.Window.Key(),
			"attempts", failure.Attempts,
			"reason", failure.Reason,
		)
	}
}
