package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"tg-collector-bot/internal/adapters/bot"
	"tg-collector-bot/internal/app"
	"tg-collector-bot/internal/infra/config"
	applog "tg-collector-bot/internal/infra/log"
	"tg-collector-bot/internal/infra/metrics"
	"tg-collector-bot/internal/infra/timers"
)

const (
	sweepInterval = time.Minute
	jobTimeout    = 50 * time.Second
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	if err := cfg.Require("PG_DSN"); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: неполный конфиг")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось подключить хранилища")
	}
	defer deps.Close()

	oneShot, err := timers.New(applog.Component(logger, "timers"))
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось запустить таймеры")
	}
	defer func() { _ = oneShot.Shutdown() }()

	svc, err := app.NewServices(cfg, deps, oneShot, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось собрать сервисы")
	}

	// С токеном итоги аукционов и рейдов публикуются в Telegram, без него только логируются.
	if cfg.Telegram.Token != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
		}
		bot.NewHandler(botAPI, applog.Component(logger, "bot"), svc.Services, deps.Cache, oneShot, app.HandlerConfig(cfg))
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать планировщик")
	}

	jobs := []struct {
		name       string
		definition gocron.JobDefinition
		run        func(ctx context.Context, log zerolog.Logger)
	}{
		{
			name:       "pass_payouts",
			definition: gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 0, 0))),
			run: func(ctx context.Context, log zerolog.Logger) {
				report, err := svc.Economy.PayPasses(ctx)
				if err != nil {
					log.Error().Err(err).Msg("scheduler: выплаты по пропускам не завершены")
				}
				log.Info().Int("paid", report.Paid).Int("skipped", report.Skipped).Int("failed", report.Failed).Int("cleared", report.Cleared).Msg("scheduler: выплаты по пропускам")
			},
		},
		{
			name:       "auction_sweep",
			definition: gocron.DurationJob(sweepInterval),
			run: func(ctx context.Context, log zerolog.Logger) {
				n, err := svc.Auctions.CloseExpired(ctx)
				if err != nil {
					log.Error().Err(err).Msg("scheduler: не удалось закрыть просроченные аукционы")
				}
				if n > 0 {
					log.Info().Int("closed", n).Msg("scheduler: просроченные аукционы закрыты")
				}
			},
		},
		{
			name:       "raid_sweep",
			definition: gocron.DurationJob(sweepInterval),
			run: func(ctx context.Context, log zerolog.Logger) {
				expired, settled, err := svc.Raids.Sweep(ctx)
				if err != nil {
					log.Error().Err(err).Msg("scheduler: проверка рейдов завершилась ошибкой")
				}
				if expired > 0 || settled > 0 {
					log.Info().Int("expired", expired).Int("settled", settled).Msg("scheduler: рейды обработаны")
				}
			},
		},
	}

	for _, job := range jobs {
		jobLog := logger.With().Str("job", job.name).Logger()
		run := job.run
		_, err := s.NewJob(
			job.definition,
			gocron.NewTask(func() {
				jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
				defer cancel()
				run(jobCtx, jobLog)
			}),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			logger.Fatal().Err(err).Str("job", job.name).Msg("scheduler: не удалось зарегистрировать задачу")
		}
	}

	s.Start()
	logger.Info().Int("jobs", len(jobs)).Msg("scheduler: запущен")
	<-ctx.Done()

	if err := s.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("scheduler: ошибка при остановке")
	}
	logger.Info().Msg("scheduler: остановлен")
}
