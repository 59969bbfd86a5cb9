package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ytdl-gateway/internal/config"
	"ytdl-gateway/internal/database"
	"ytdl-gateway/internal/downloader"
	"ytdl-gateway/internal/logging"
	"ytdl-gateway/internal/server"
	"ytdl-gateway/internal/storage"
	"ytdl-gateway/internal/task"
	"ytdl-gateway/internal/videoinfo"
)

func main() {
	configPath := flag.String("config", "config.json", "path to a JSON or YAML config file")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return fmt.Errorf("config from environment: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := logging.SetupOTelSDK(ctx, logging.Options{
		StdoutTraces:  cfg.OTelStdout,
		StdoutMetrics: cfg.OTelStdout,
	})
	if err != nil {
		return fmt.Errorf("failed to setup OTel SDK: %w", err)
	}
	defer func() {
		// flush spans and logs before exiting
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "OTel shutdown error: %v\n", err)
		}
	}()

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logging.SetLevel(level)
	logger := logging.Logger("server")

	metrics, err := logging.NewMetrics()
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	client := downloader.NewClient(downloader.Options{
		Binary:             cfg.Binary,
		UserAgent:          cfg.UserAgent,
		SocketTimeout:      cfg.SocketTimeout.Std(),
		Retries:            cfg.Retries,
		MergeFormat:        cfg.MergeFormat,
		CookiesFromBrowser: cfg.CookiesFromBrowser,
		Verbose:            cfg.Verbose,
	}, logging.Logger("downloader"))
	if err := client.Available(ctx); err != nil {
		logger.Warn("yt-dlp not found, downloads are rejected until it is installed", "binary", cfg.Binary, "error", err)
	}

	layout, err := storage.NewLayout(cfg.DownloadDir)
	if err != nil {
		return fmt.Errorf("download dir: %w", err)
	}
	store, err := storage.OpenStore(layout)
	if err != nil {
		return err
	}
	defer store.Close()

	db, err := database.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}
	defer db.Close()

	repo, err := videoinfo.NewRepository(db)
	if err != nil {
		return fmt.Errorf("failed to init video info cache: %w", err)
	}
	var prober *videoinfo.Prober
	if cfg.HLSProbe {
		prober = videoinfo.NewProber(nil, cfg.UserAgent, logging.Logger("hls"))
	}
	info := videoinfo.NewService(client, repo, prober,
		videoinfo.Options{CacheTTL: cfg.InfoCacheTTL.Std()}, logging.Logger("videoinfo"), metrics)

	tasks := task.NewManager(client, store, task.Options{
		Timeout:          cfg.DownloadTimeout.Std(),
		MinArtifactBytes: cfg.MinArtifactBytes,
		LogTail:          cfg.LogTail,
	}, logging.Logger("task"), metrics)
	defer tasks.Close()

	logger.Info("starting ytdl-gateway",
		"port", cfg.Port,
		"download_dir", layout.Root(),
		"data_dir", cfg.DataDir,
		"timeout", cfg.DownloadTimeout.Std().String(),
	)

	srv := server.New(server.Options{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		WebDir:            cfg.WebDir,
		CleanupAfterFetch: cfg.CleanupAfterFetch,
	}, tasks, info, logger)
	return srv.Run(ctx)
}
