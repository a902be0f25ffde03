package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"tg-collector-bot/internal/app"
	"tg-collector-bot/internal/infra/config"
	applog "tg-collector-bot/internal/infra/log"
	"tg-collector-bot/internal/infra/metrics"
	"tg-collector-bot/internal/usecase/settlement"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	if err := cfg.Require("PG_DSN"); err != nil {
		logger.Fatal().Err(err).Msg("reconciler: неполный конфиг")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("reconciler: не удалось подключить хранилища")
	}
	defer deps.Close()
	if deps.InProcessQueue {
		logger.Fatal().Str("driver", cfg.Queues.Driver).Msg("reconciler: нужна внешняя очередь (redis с REDIS_ADDR или rabbitmq)")
	}

	service := settlement.NewService(deps.Store, deps.Store, deps.Queue, nil, applog.Component(logger, "settlement"))
	worker := settlement.NewWorker(deps.Queue, deps.Jobs, service, applog.Component(logger, "reconciler"))

	logger.Info().Str("queue", cfg.Queues.Settlements).Msg("reconciler: запуск обработки очереди")
	worker.Run(ctx)
	logger.Info().Msg("reconciler: остановлен")
}
