package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	DropsSpawned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "drops_spawned_total",
		Help: "Количество появившихся в чатах персонажей",
	})
	GuessesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guesses_total",
		Help: "Попытки угадать персонажа по исходам",
	}, []string{"outcome"})
	SettlementFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "settlement_failures_total",
		Help: "Расчёты, не проведённые после фиксации победителя",
	})
	SettlementReplays = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_replays_total",
		Help: "Повторные расчёты из очереди сверки",
	}, []string{"result"})
	AuctionBids = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_bids_total",
		Help: "Ставки на аукционах по результатам",
	}, []string{"result"})
	RaidAttacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "raid_attacks_total",
		Help: "Атаки по боссу рейда",
	})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})
	DuplicateUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_duplicate_updates_total",
		Help: "Повторно доставленные апдейты Telegram",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		DropsSpawned,
		GuessesTotal,
		SettlementFailures,
		SettlementReplays,
		AuctionBids,
		RaidAttacks,
		BotSendErrors,
		DuplicateUpdates,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncDropSpawned увеличивает счётчик дропов.
func IncDropSpawned() {
	DropsSpawned.Inc()
}

// IncGuess учитывает исход попытки угадать.
func IncGuess(outcome string) {
	GuessesTotal.WithLabelValues(outcome).Inc()
}

// IncSettlementFailure учитывает расчёт, требующий сверки.
func IncSettlementFailure() {
	SettlementFailures.Inc()
}

// IncSettlementReplay учитывает результат повторного расчёта.
func IncSettlementReplay(result string) {
	SettlementReplays.WithLabelValues(result).Inc()
}

// IncAuctionBid учитывает ставку.
func IncAuctionBid(result string) {
	AuctionBids.WithLabelValues(result).Inc()
}

// IncRaidAttack учитывает атаку по боссу.
func IncRaidAttack() {
	RaidAttacks.Inc()
}

// IncBotSendError учитывает неудачную отправку сообщения.
func IncBotSendError() {
	BotSendErrors.Inc()
}

// IncDuplicateUpdate учитывает повторно доставленный апдейт.
func IncDuplicateUpdate() {
	DuplicateUpdates.Inc()
}
