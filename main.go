package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"

	"tunerelay/internal/api"
	"tunerelay/internal/auth"
	"tunerelay/internal/config"
	"tunerelay/internal/discord"
	"tunerelay/internal/logger"
	"tunerelay/internal/metrics"
	"tunerelay/internal/redis"
	"tunerelay/internal/relay"
	"tunerelay/internal/telegram"
	"tunerelay/internal/worker"
)

const shutdownGrace = 30 * time.Second

func main() {
	envFile := os.Getenv("TUNERELAY_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		logger.Default().Error("load config", "err", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	logger.SetDefault(log)

	// Seen-update ledger: shared through Redis when configured, else in process.
	var ledger worker.Ledger
	rdb, err := redis.NewRedisClient(cfg)
	switch {
	case err == nil:
		defer rdb.Close()
		ledger = worker.NewRedisLedger(rdb, cfg.Redis.DedupTTL)
		log.Info("update ledger", "backend", "redis", "addr", cfg.Redis.Addr)
	case errors.Is(err, redis.ErrNotConfigured):
		ledger, err = worker.NewMemoryLedger(0)
		if err != nil {
			log.Error("create memory ledger", "err", err)
			os.Exit(1)
		}
		log.Info("update ledger", "backend", "memory")
	default:
		log.Error("create redis client", "err", err)
		os.Exit(1)
	}

	recorder := metrics.NewRecorder()
	tg := telegram.NewClient(telegram.Options{
		APIURL:  cfg.Telegram.APIURL,
		Token:   cfg.Telegram.Token,
		Timeout: cfg.Relay.RequestTimeout,
	})
	botName := cfg.Telegram.Username
	if botName == "" {
		me, err := tg.GetMe(context.Background())
		if err != nil {
			log.Error("look up bot account", "err", err)
			os.Exit(1)
		}
		botName = me.Username
	}
	log.Info("bot account", "username", botName)
	hook := discord.NewWebhook(cfg.Discord.WebhookURL, cfg.Relay.UploadTimeout)

	relayer := relay.New(tg, tg, hook, relay.Options{
		MaxFileMB:       cfg.Relay.MaxFileMB,
		ScratchDir:      cfg.Relay.ScratchDir,
		DownloadTimeout: cfg.Relay.DownloadTimeout,
		UploadTimeout:   cfg.Relay.UploadTimeout,
		Logger:          log,
		Observer:        recorder,
	})
	log.Info("relay configured", "max_bytes", cfg.MaxFileBytes(), "scratch_dir", cfg.Relay.ScratchDir)
	workerCfg := worker.DispatcherConfig{
		MinWorkers:        cfg.Worker.MinWorkers,
		MaxWorkers:        cfg.Worker.MaxWorkers,
		QueueSize:         cfg.Worker.QueueSize,
		WorkerIdleTimeout: cfg.Worker.IdleTimeout,
	}
	manager := worker.NewManager(relayer, ledger, botName, workerCfg, log, recorder)

	handlers := api.NewHandler(manager, tg, auth.NewService(cfg.Telegram.Token, cfg.Server.WebhookSecret), api.Options{
		Token:            cfg.Telegram.Token,
		ExternalHostname: cfg.Server.ExternalHostname,
		Metrics:          recorder.Handler(),
		Observer:         recorder,
		Logger:           log,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Error("server stopped", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	var result *multierror.Error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		log.Error("shutdown", "err", err)
		os.Exit(1)
	}
}
