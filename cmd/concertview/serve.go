package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/concertview/concertview/internal/api"
	"github.com/concertview/concertview/internal/audio"
	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/compose"
	"github.com/concertview/concertview/internal/config"
	"github.com/concertview/concertview/internal/db"
	"github.com/concertview/concertview/internal/feeds"
	"github.com/concertview/concertview/internal/jobs"
	"github.com/concertview/concertview/internal/layouts"
	"github.com/concertview/concertview/internal/logging"
	"github.com/concertview/concertview/internal/media"
	"github.com/concertview/concertview/internal/render"
)

const (
	shutdownTimeout = 10 * time.Second
	probeTimeout    = 30 * time.Second
)

var errServerRunning = errors.New("another concertview server is using this data directory")

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the render workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.UploadDir(), cfg.OutputDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting concertview", "version", config.Version, "data_dir", cfg.DataDir())

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w (%s)", errServerRunning, cfg.LockPath())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release data dir lock", "error", err)
		}
	}()

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := catalog.NewRepository(database.Conn())

	ffmpeg := render.New(render.Config{
		FFmpegPath:    cfg.FFmpegPath(),
		FFprobePath:   cfg.FFprobePath(),
		RenderTimeout: cfg.RenderTimeout(),
		ProbeTimeout:  probeTimeout,
		Logger:        logger,
	})
	doctor := render.NewCachedDoctor(ffmpeg, logger)

	probeCtx, probeCancel := context.WithTimeout(ctx, probeTimeout)
	if caps, err := doctor.Refresh(probeCtx); err != nil {
		logger.Warn("initial ffmpeg probe failed, renders will fail until it is installed", "error", err)
	} else {
		logger.Info("ffmpeg capabilities detected",
			"ffmpeg", caps.FFmpegVersion,
			"libx264", caps.HasLibx264,
			"loudnorm", caps.HasLoudnorm,
			"afftdn", caps.HasAfftdn,
		)
	}
	probeCancel()

	feedSvc := feeds.NewService(repo, ffmpeg, cfg.UploadDir(), cfg.MaxUploadBytes(), logger)
	projects := compose.NewService(repo, logger)
	manager := jobs.NewManager(repo, ffmpeg, projects, jobs.Config{
		Workers:      cfg.RenderWorkers(),
		QueueSize:    cfg.QueueSize(),
		PollInterval: cfg.QueuePollInterval(),
		OutputDir:    cfg.OutputDir(),
	}, logger)
	manager.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Host:           cfg.Host(),
		Port:           cfg.Port(),
		Feeds:          feedSvc,
		Layouts:        layouts.NewService(repo, logger),
		Audio:          audio.NewAnalyzer(feedSvc, ffmpeg, cfg.SyncMaxLag(), logger),
		Projects:       projects,
		Jobs:           manager,
		Media:          media.NewStreamer(logger),
		Doctor:         doctor,
		DB:             database,
		CORSOrigins:    cfg.CORSOrigins(),
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logger,
		StartTime:      startTime,
		Version:        config.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("HTTP server error", "error", serveErr)
		}
	}

	logger.Info("initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	manager.Stop()

	logger.Info("shutdown complete")
	return serveErr
}
