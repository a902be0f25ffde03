package domain

import (
	"context"
	"time"
)

// CharacterRepo хранит каталог персонажей.
type CharacterRepo interface {
	// NextCharacterID выдаёт следующий идентификатор из последовательности.
	NextCharacterID(ctx context.Context) (string, error)
	CreateCharacter(ctx context.Context, c Character) error
	GetCharacter(ctx context.Context, id string) (Character, error)
	UpdateCharacter(ctx context.Context, c Character) error
	// SoftDeleteCharacter помечает персонажа удалённым и убирает его из всех коллекций и баннеров.
	SoftDeleteCharacter(ctx context.Context, id string, now time.Time) error
	// ListCharacters возвращает неудалённых персонажей указанных редкостей; пустой фильтр — все.
	ListCharacters(ctx context.Context, rarities []Rarity) ([]Character, error)
	// RandomCharacter выбирает случайного неудалённого персонажа указанных редкостей.
	RandomCharacter(ctx context.Context, rarities []Rarity) (Character, error)
}

// DropPicker выбирает следующий дроп по списку уже показанных в ротации персонажей.
// resetRotation означает, что ротация начинается заново с выбранного персонажа.
type DropPicker func(shown []string) (drop Drop, resetRotation bool, err error)

// DropStateRepo хранит состояние дропов по чатам.
type DropStateRepo interface {
	// AdvanceCounter атомарно увеличивает счётчик сообщений чата.
	AdvanceCounter(ctx context.Context, chatID int64, defaultFrequency int) (CounterState, error)
	// ResetCounter обнуляет счётчик, только если он всё ещё равен observed.
	ResetCounter(ctx context.Context, chatID int64, observed int) (bool, error)
	SetFrequency(ctx context.Context, chatID int64, frequency, defaultFrequency int) error
	GetDropState(ctx context.Context, chatID int64) (ChatDropState, error)
	// ActivateDrop вызывает pick под блокировкой чата и сохраняет результат как активный дроп.
	ActivateDrop(ctx context.Context, chatID int64, defaultFrequency int, pick DropPicker) (Drop, error)
	// ClaimDrop выполняет compare-and-set claimed_by для активного дропа.
	ClaimDrop(ctx context.Context, chatID int64, dropID string, userID int64, now time.Time) (bool, error)
}

// SettlementRepo проводит расчёт по выигранному дропу одной транзакцией.
type SettlementRepo interface {
	// ApplySettlement возвращает ErrAlreadySettled, если дроп уже рассчитан.
	ApplySettlement(ctx context.Context, s Settlement) error
}

// ProfileRepo хранит профили, балансы и коллекции игроков.
type ProfileRepo interface {
	EnsureProfile(ctx context.Context, userID int64, displayName string) (Profile, error)
	GetProfile(ctx context.Context, userID int64) (Profile, error)
	CountProfiles(ctx context.Context) (int, error)
	ListOwned(ctx context.Context, userID int64) ([]OwnedCharacter, error)
	// SetFavorite требует, чтобы персонаж был в коллекции.
	SetFavorite(ctx context.Context, userID int64, characterID string) error
	// Exchange атомарно списывает debit и начисляет credit. При нехватке средств — ErrInsufficientFunds.
	Exchange(ctx context.Context, userID int64, debit, credit Balances) (Balances, error)
	// Grant списывает debit, начисляет credit и добавляет персонажей одной транзакцией.
	Grant(ctx context.Context, userID int64, debit, credit Balances, chars []Character, source string) (Balances, error)
	// ReserveAction атомарно проверяет кулдаун и дневной лимит и фиксирует выполнение действия.
	ReserveAction(ctx context.Context, userID int64, r ActionReservation) (ActionState, error)
	// TransferCharacter передаёт один экземпляр персонажа другому игроку.
	TransferCharacter(ctx context.Context, from, to int64, characterID string) error
	// SwapCharacters обменивает по одному экземпляру персонажей между игроками.
	SwapCharacters(ctx context.Context, a int64, aCharacterID string, b int64, bCharacterID string) error
}

// PassRepo хранит недельные пропуска.
type PassRepo interface {
	// ActivatePass списывает цену и выдаёт пропуск. Если пропуск активен — ErrPassActive.
	ActivatePass(ctx context.Context, userID int64, price int64, expiresAt, now time.Time) error
	ListPassHolders(ctx context.Context, now time.Time) ([]Profile, error)
	ClearExpiredPasses(ctx context.Context, now time.Time) (int, error)
	// AcquirePassPayout фиксирует выплату за день. false — выплата уже была.
	AcquirePassPayout(ctx context.Context, userID int64, day time.Time) (bool, error)
}

// AuctionRepo хранит аукционы.
type AuctionRepo interface {
	CreateAuction(ctx context.Context, a Auction) error
	GetAuction(ctx context.Context, id string) (Auction, error)
	ListOngoingAuctions(ctx context.Context) ([]Auction, error)
	SetAuctionMessage(ctx context.Context, id string, messageID int) error
	// CompareAndSetBid поднимает ставку, только если текущая ставка равна expected и аукцион идёт.
	CompareAndSetBid(ctx context.Context, id string, expected, bid, bidder int64, bidderName string, now time.Time) (bool, error)
	// CloseAuction переводит аукцион в ended и проводит расчёт с победителем.
	// closed=false означает, что аукцион уже был закрыт другим вызовом.
	CloseAuction(ctx context.Context, id string, now time.Time) (a Auction, closed bool, err error)
}

// RaidRepo хранит боссов рейдов.
type RaidRepo interface {
	ActiveRaid(ctx context.Context, now time.Time) (Raid, error)
	// CreateRaid создаёт босса, если активного нет; иначе возвращает существующего и false.
	CreateRaid(ctx context.Context, r Raid) (Raid, bool, error)
	GetRaid(ctx context.Context, id string) (Raid, error)
	// ApplyAttack списывает попытку и уменьшает hp одной транзакцией.
	ApplyAttack(ctx context.Context, a RaidAttack) (RaidAttackResult, error)
	// ExpireRaid завершает рейд без победы, если он ещё активен.
	ExpireRaid(ctx context.Context, id string, now time.Time) (bool, error)
	// SettleRaid один раз начисляет награды участникам побеждённого босса.
	SettleRaid(ctx context.Context, id string, tokensPerDamage float64) ([]RaidParticipant, bool, error)
	ListUnsettledRaids(ctx context.Context) ([]Raid, error)
	ListExpiredRaids(ctx context.Context, now time.Time) ([]Raid, error)
}

// BannerRepo хранит баннеры призыва.
type BannerRepo interface {
	CreateBanner(ctx context.Context, b Banner) error
	GetBanner(ctx context.Context, name string) (Banner, error)
	ListBanners(ctx context.Context) ([]Banner, error)
	AddBannerCharacters(ctx context.Context, banner string, characterIDs []string) (int, error)
	BannerCharacters(ctx context.Context, banner string) ([]Character, error)
}

// RedeemRepo хранит одноразовые коды.
type RedeemRepo interface {
	CreateRedeemCode(ctx context.Context, code RedeemCode) error
	// UseRedeemCode помечает код использованным. Повторное использование — ErrCodeUsed.
	UseRedeemCode(ctx context.Context, code string, userID int64, now time.Time) (RedeemCode, error)
}

// RoleRepo хранит выданные роли.
type RoleRepo interface {
	GetRole(ctx context.Context, userID int64) (Role, error)
	SetRole(ctx context.Context, userID int64, role Role) error
}

// AdminRepo выполняет разрушительные админские операции.
type AdminRepo interface {
	// ResetGameState очищает игровое состояние, сохраняя каталог и баннеры.
	ResetGameState(ctx context.Context) error
}

// Cache описывает эфемерное хранилище для координации между обработчиками.
type Cache interface {
	// Once выполняет fn, только если ключ ещё не занят. При ошибке fn ключ освобождается.
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Take атомарно читает и удаляет значение.
	Take(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
	// Incr увеличивает счётчик окна; TTL выставляется при первом инкременте.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Timers планирует отменяемые отложенные задачи.
type Timers interface {
	After(key string, at time.Time, fn func()) error
	Cancel(key string)
}
