package domain

import "time"

// Character представляет запись каталога персонажей.
type Character struct {
	ID        string
	Name      string
	Anime     string
	Rarity    Rarity
	Category  string
	MediaRef  string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// CharacterField — редактируемое поле персонажа.
type CharacterField string

const (
	CharacterFieldMedia  CharacterField = "media_ref"
	CharacterFieldName   CharacterField = "name"
	CharacterFieldAnime  CharacterField = "anime"
	CharacterFieldRarity CharacterField = "rarity"
)

// MessageKind задаёт тип содержимого входящего сообщения.
type MessageKind string

const (
	MessageKindNone      MessageKind = ""
	MessageKindText      MessageKind = "text"
	MessageKindPhoto     MessageKind = "photo"
	MessageKindVideo     MessageKind = "video"
	MessageKindAnimation MessageKind = "animation"
	MessageKindSticker   MessageKind = "sticker"
	MessageKindDocument  MessageKind = "document"
	MessageKindVoice     MessageKind = "voice"
	MessageKindEntities  MessageKind = "entities"
)

// Countable сообщает, учитывается ли сообщение счётчиком дропов.
func (k MessageKind) Countable() bool {
	return k != MessageKindNone
}

// Drop описывает персонажа, показанного в чате и ожидающего угадывания.
type Drop struct {
	ID        string
	ChatID    int64
	Character Character
	ShownAt   time.Time
}

// ChatDropState хранит состояние дропов чата.
type ChatDropState struct {
	ChatID            int64
	MessageFrequency  int
	MessageCount      int
	ActiveDrop        *Drop
	ClaimedBy         int64
	ClaimedAt         *time.Time
	ShownCharacterIDs []string
}

// Claimed сообщает, угадан ли активный дроп.
func (s ChatDropState) Claimed() bool {
	return s.ClaimedBy != 0
}

// CounterState содержит значение счётчика сообщений после инкремента.
type CounterState struct {
	Count     int
	Frequency int
}

// Reached сообщает, достиг ли счётчик порога.
func (c CounterState) Reached() bool {
	return c.Frequency > 0 && c.Count >= c.Frequency
}

// Balances содержит балансы игрока во всех валютах.
type Balances struct {
	Tokens   int64 `json:"tokens,omitempty"`
	Diamonds int64 `json:"diamonds,omitempty"`
	Coins    int64 `json:"coins,omitempty"`
	Crystals int64 `json:"chrono_crystals,omitempty"`
	Tickets  int64 `json:"summon_tickets,omitempty"`
	Bank     int64 `json:"bank_balance,omitempty"`
}

// Add складывает балансы.
func (b Balances) Add(o Balances) Balances {
	return Balances{
		Tokens:   b.Tokens + o.Tokens,
		Diamonds: b.Diamonds + o.Diamonds,
		Coins:    b.Coins + o.Coins,
		Crystals: b.Crystals + o.Crystals,
		Tickets:  b.Tickets + o.Tickets,
		Bank:     b.Bank + o.Bank,
	}
}

// Sub вычитает балансы.
func (b Balances) Sub(o Balances) Balances {
	return b.Add(Balances{
		Tokens:   -o.Tokens,
		Diamonds: -o.Diamonds,
		Coins:    -o.Coins,
		Crystals: -o.Crystals,
		Tickets:  -o.Tickets,
		Bank:     -o.Bank,
	})
}

// Covers сообщает, хватает ли средств для списания.
func (b Balances) Covers(debit Balances) bool {
	return !b.Sub(debit).HasNegative()
}

// HasNegative сообщает, есть ли отрицательная компонента.
func (b Balances) HasNegative() bool {
	return b.Tokens < 0 || b.Diamonds < 0 || b.Coins < 0 || b.Crystals < 0 || b.Tickets < 0 || b.Bank < 0
}

// IsZero сообщает, что все компоненты нулевые.
func (b Balances) IsZero() bool {
	return b == Balances{}
}

// Profile представляет профиль игрока.
type Profile struct {
	UserID              int64
	DisplayName         string
	Balances            Balances
	FavoriteCharacterID string
	Role                Role
	PassExpiresAt       *time.Time
	CreatedAt           time.Time
}

// HasActivePass сообщает, действует ли недельный пропуск.
func (p Profile) HasActivePass(now time.Time) bool {
	return p.PassExpiresAt != nil && now.Before(*p.PassExpiresAt)
}

// OwnedCharacter — экземпляр персонажа в коллекции игрока.
type OwnedCharacter struct {
	Character
	AcquiredAt time.Time
	Source     string
}

// Источники получения персонажа.
const (
	SourceDrop    = "drop"
	SourceClaim   = "claim"
	SourceSummon  = "summon"
	SourceAuction = "auction"
	SourceTrade   = "trade"
	SourceGift    = "gift"
	SourceRedeem  = "redeem"
	SourcePass    = "pass"
)

// Claim описывает выигранный дроп, подлежащий расчёту.
type Claim struct {
	DropID    string    `json:"drop_id"`
	ChatID    int64     `json:"chat_id"`
	UserID    int64     `json:"user_id"`
	Character Character `json:"character"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// Settlement фиксирует проведённый расчёт по дропу.
type Settlement struct {
	Claim
	Reward    Reward
	SettledAt time.Time
}

// AuctionStatus — состояние аукциона.
type AuctionStatus string

const (
	AuctionOngoing AuctionStatus = "ongoing"
	AuctionEnded   AuctionStatus = "ended"
)

// Auction описывает аукцион на персонажа.
type Auction struct {
	ID                string
	Character         Character
	ChannelID         int64
	MessageID         int
	Status            AuctionStatus
	StartingBid       int64
	HighestBid        int64
	HighestBidder     int64
	HighestBidderName string
	EndTime           time.Time
	Settled           bool
	CreatedAt         time.Time
}

// HasBids сообщает, была ли сделана хотя бы одна ставка.
func (a Auction) HasBids() bool {
	return a.HighestBidder != 0
}

// Raid описывает босса рейда.
type Raid struct {
	ID         string
	HP         int64
	MaxHP      int64
	Defense    int64
	Attack     int64
	Active     bool
	EndsAt     time.Time
	DefeatedBy int64
	Rewarded   bool
	CreatedAt  time.Time
}

// RaidAttack содержит параметры атаки на босса.
type RaidAttack struct {
	RaidID      string
	UserID      int64
	Damage      int64
	MaxAttempts int
	Now         time.Time
}

// RaidAttackResult описывает итог атаки.
type RaidAttackResult struct {
	Raid     Raid
	Attempt  int
	Damage   int64
	Defeated bool
}

// RaidParticipant — суммарный урон игрока по боссу.
type RaidParticipant struct {
	UserID int64
	Damage int64
}

// Banner описывает баннер призыва.
type Banner struct {
	Name      string
	MediaRef  string
	CreatedAt time.Time
}

// RedeemCode — одноразовый код на персонажа.
type RedeemCode struct {
	Code      string
	Rarity    Rarity
	CreatedBy int64
	UsedBy    int64
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Offer описывает ожидающее подтверждения предложение обмена или подарка.
type Offer struct {
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	FromUserID    int64  `json:"from_user_id"`
	FromName      string `json:"from_name"`
	ToUserID      int64  `json:"to_user_id"`
	ToName        string `json:"to_name"`
	FromCharacter string `json:"from_character"`
	ToCharacter   string `json:"to_character,omitempty"`
}

// Типы предложений.
const (
	OfferTrade = "trade"
	OfferGift  = "gift"
)
