package domain

import (
	"context"
	"time"
)

// GameEvent описывает игровое событие, которое сохраняется для последующего анализа.
type GameEvent struct {
	Event      string
	UserID     *int64
	ChatID     *int64
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// GameEventDropSpawned фиксирует появление персонажа в чате.
	GameEventDropSpawned = "drop_spawned"
	// GameEventDropClaimed фиксирует победителя дропа.
	GameEventDropClaimed = "drop_claimed"
	// GameEventSettlementFailed фиксирует неудачный расчёт, требующий сверки.
	GameEventSettlementFailed = "settlement_failed"
	// GameEventSettlementReplayed фиксирует успешную сверку.
	GameEventSettlementReplayed = "settlement_replayed"
	// GameEventAuctionSettled фиксирует завершение аукциона.
	GameEventAuctionSettled = "auction_settled"
	// GameEventRaidDefeated фиксирует победу над боссом.
	GameEventRaidDefeated = "raid_defeated"
)

// GameEventRepo сохраняет игровые события.
type GameEventRepo interface {
	RecordGameEvent(ctx context.Context, event GameEvent) error
}

// Int64Ptr возвращает указатель на значение.
func Int64Ptr(v int64) *int64 {
	return &v
}
