package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tg-collector-bot/internal/adapters/bot"
	"tg-collector-bot/internal/app"
	"tg-collector-bot/internal/infra/config"
	httpserver "tg-collector-bot/internal/infra/http"
	applog "tg-collector-bot/internal/infra/log"
	"tg-collector-bot/internal/infra/metrics"
	"tg-collector-bot/internal/infra/timers"
	"tg-collector-bot/internal/usecase/settlement"
)

const (
	pollTimeout     = 60
	updateWorkers   = 16
	shutdownTimeout = 5 * time.Second
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	if err := cfg.Require("TG_BOT_TOKEN"); err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: неполный конфиг")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось подключить хранилища")
	}
	defer deps.Close()

	sched, err := timers.New(applog.Component(logger, "timers"))
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось запустить таймеры")
	}
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.Warn().Err(err).Msg("bot-gateway: таймеры остановлены с ошибкой")
		}
	}()

	svc, err := app.NewServices(cfg, deps, sched, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось собрать сервисы")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось создать бота")
	}
	h := bot.NewHandler(botAPI, applog.Component(logger, "bot"), svc.Services, deps.Cache, sched, app.HandlerConfig(cfg))

	if n, err := svc.Auctions.Restore(ctx); err != nil {
		logger.Error().Err(err).Msg("bot-gateway: не удалось восстановить аукционы")
	} else if n > 0 {
		logger.Info().Int("auctions", n).Msg("bot-gateway: таймеры аукционов восстановлены")
	}

	server := httpserver.NewServer(applog.Component(logger, "http"), deps.Checks)
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Telegram.WebhookURL != "" {
		server.Router.Post("/bot/webhook", webhookHandler(h, logger))
		wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot-gateway: некорректный адрес вебхука")
		}
		if _, err := botAPI.Request(wh); err != nil {
			logger.Fatal().Err(err).Msg("bot-gateway: не удалось установить вебхук")
		}
		logger.Info().Str("url", cfg.Telegram.WebhookURL).Msg("bot-gateway: режим вебхука")
	} else {
		if _, err := botAPI.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			logger.Warn().Err(err).Msg("bot-gateway: не удалось снять вебхук")
		}
		g.Go(func() error {
			poll(gctx, botAPI, h, logger)
			return nil
		})
	}

	if deps.InProcessQueue {
		worker := settlement.NewWorker(deps.Queue, deps.Jobs, svc.Settlement, applog.Component(logger, "reconciler"))
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		return server.Start(fmt.Sprintf(":%d", cfg.Port))
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info().Msg("bot-gateway: запущен")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("bot-gateway: остановлен с ошибкой")
		return
	}
	logger.Info().Msg("bot-gateway: остановлен")
}

// webhookHandler отвечает 500, если апдейт не учтён: Telegram доставит его повторно.
func webhookHandler(h *bot.Handler, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.HandleUpdate(r.Context(), update); err != nil {
			logger.Error().Err(err).Int("update", update.UpdateID).Msg("bot-gateway: апдейт не обработан")
			http.Error(w, "update not processed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func poll(ctx context.Context, botAPI *tgbotapi.BotAPI, h *bot.Handler, logger zerolog.Logger) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := botAPI.GetUpdatesChan(u)

	var workers errgroup.Group
	workers.SetLimit(updateWorkers)
	defer func() {
		_ = workers.Wait()
	}()

	logger.Info().Msg("bot-gateway: режим long polling")
	for {
		select {
		case <-ctx.Done():
			botAPI.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			workers.Go(func() error {
				if err := h.HandleUpdate(ctx, update); err != nil {
					logger.Error().Err(err).Int("update", update.UpdateID).Msg("bot-gateway: апдейт не обработан")
				}
				return nil
			})
		}
	}
}
