package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fiapx/fiapx-frame-sampler/internal/api"
	"github.com/fiapx/fiapx-frame-sampler/internal/app"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/config"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/metrics"
	"github.com/fiapx/fiapx-frame-sampler/internal/infra/tracing"
	"github.com/fiapx/fiapx-frame-sampler/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting fiapx-frame-sampler api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint, "fiapx-frame-sampler-api")
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	a, err := app.New(ctx, cfg, log)
	fatalOnErr(err, "build application")
	defer a.Close()

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log)

	srv := api.NewServer(api.ServerConfig{
		Port:         cfg.HTTPPort,
		Service:      a.UseCase,
		Tables:       a.Tables,
		Logger:       log,
		SyncTimeout:  cfg.HTTPSyncTimeout,
		JobRateLimit: cfg.HTTPJobRateLimit,
		JobRateBurst: cfg.HTTPJobRateBurst,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
	metricsSrv.Shutdown(shutdownCtx)

	log.Info("fiapx-frame-sampler api stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
