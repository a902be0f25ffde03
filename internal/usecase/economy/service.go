package economy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-collector-bot/internal/domain"
)

var (
	// ErrCooldown возвращается, пока действие недоступно по времени.
	ErrCooldown = errors.New("действие ещё недоступно")
	// ErrDailyLimit возвращается после исчерпания дневного лимита.
	ErrDailyLimit = errors.New("дневной лимит исчерпан")
	// ErrInvalidAmount возвращается для неположительных и слишком маленьких сумм.
	ErrInvalidAmount = errors.New("некорректная сумма")
	// ErrWithdrawLimit возвращается при попытке снять больше половины вклада.
	ErrWithdrawLimit = errors.New("можно снять не больше половины вклада")
	// ErrUnknownItem возвращается для неизвестного товара.
	ErrUnknownItem = errors.New("неизвестный товар")
	// ErrUnknownLocation возвращается для неизвестной локации исследования.
	ErrUnknownLocation = errors.New("неизвестная локация")
)

const (
	minDeposit       = 500
	exploreDailyCap  = 20
	passPrice        = 8000
	passDuration     = 7 * 24 * time.Hour
	crystalPrice     = 500
	ticketPrice      = 1000
	maxShopQuantity  = 1000
	exploreMaxTokens = 100_000
	exploreMaxGems   = 500
)

// Locations перечисляет локации для /explore.
var Locations = []string{"Capsule Corp", "Kame House", "Planet Namek", "Hyperbolic Time Chamber", "Supreme Kai Planet"}

// Item обозначает товар магазина.
type Item string

const (
	ItemCrystals Item = "cc"
	ItemTickets  Item = "ticket"
)

// Price возвращает цену единицы товара в Zeni.
func (i Item) Price() (int64, error) {
	switch i {
	case ItemCrystals:
		return crystalPrice, nil
	case ItemTickets:
		return ticketPrice, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownItem, string(i))
	}
}

type periodicReward struct {
	crystalsMin, crystalsMax int64
	coinsMin, coinsMax       int64
}

var periodicRewards = map[domain.CooldownKind]periodicReward{
	domain.CooldownDaily:   {crystalsMin: 20, crystalsMax: 40, coinsMin: 5000, coinsMax: 8000},
	domain.CooldownWeekly:  {crystalsMin: 120, crystalsMax: 200, coinsMin: 10000, coinsMax: 20000},
	domain.CooldownMonthly: {crystalsMin: 300, crystalsMax: 500, coinsMin: 45000, coinsMax: 60000},
}

// PassReward описывает выплату недельного пропуска за день недели.
type PassReward struct {
	Tokens   int64
	Diamonds int64
	Rarity   domain.Rarity
}

var passRewards = map[time.Weekday]PassReward{
	time.Monday:    {Tokens: 20000, Diamonds: 120, Rarity: domain.RarityRare},
	time.Tuesday:   {Tokens: 15000, Diamonds: 100, Rarity: domain.RarityRare},
	time.Wednesday: {Tokens: 25000, Diamonds: 180, Rarity: domain.RaritySparking},
	time.Thursday:  {Tokens: 15000, Diamonds: 120, Rarity: domain.RaritySparking},
	time.Friday:    {Tokens: 20000, Diamonds: 150, Rarity: domain.RaritySparking},
	time.Saturday:  {Tokens: 25000, Diamonds: 250, Rarity: domain.RaritySparking},
	time.Sunday:    {Tokens: 50000, Diamonds: 400, Rarity: domain.RarityLimited},
}

// PassRewardFor возвращает выплату пропуска для дня недели.
func PassRewardFor(day time.Weekday) PassReward {
	return passRewards[day]
}

// ActionResult описывает итог действия с кулдауном.
type ActionResult struct {
	State    domain.ActionState
	Credit   domain.Balances
	Balances domain.Balances
}

// Service реализует экономику: награды по расписанию, исследование, банк, магазин и пропуск.
type Service struct {
	profiles   domain.ProfileRepo
	passes     domain.PassRepo
	characters domain.CharacterRepo
	rnd        domain.Random
	now        func() time.Time
	log        zerolog.Logger
}

// NewService создаёт сервис экономики.
func NewService(profiles domain.ProfileRepo, passes domain.PassRepo, characters domain.CharacterRepo, rnd domain.Random, log zerolog.Logger) *Service {
	if rnd == nil {
		rnd = domain.DefaultRandom()
	}
	return &Service{
		profiles:   profiles,
		passes:     passes,
		characters: characters,
		rnd:        rnd,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// Claim выдаёт ежедневную, еженедельную или ежемесячную награду.
func (s *Service) Claim(ctx context.Context, user domain.Profile, kind domain.CooldownKind) (ActionResult, error) {
	reward, ok := periodicRewards[kind]
	if !ok {
		return ActionResult{}, fmt.Errorf("неизвестная награда %q", kind)
	}
	credit := domain.Balances{
		Crystals: domain.RollRange(s.rnd, reward.crystalsMin, reward.crystalsMax),
		Coins:    domain.RollRange(s.rnd, reward.coinsMin, reward.coinsMax),
	}
	return s.reserveAndCredit(ctx, user, domain.ActionReservation{
		Kind:     kind,
		Now:      s.now(),
		Cooldown: domain.CooldownDuration(kind),
	}, credit)
}

// Explore отправляет игрока в локацию за случайной наградой.
func (s *Service) Explore(ctx context.Context, user domain.Profile, location string) (ActionResult, error) {
	if !knownLocation(location) {
		return ActionResult{}, fmt.Errorf("%w: %q", ErrUnknownLocation, location)
	}
	credit := domain.Balances{
		Tokens:   domain.RollRange(s.rnd, 0, exploreMaxTokens),
		Diamonds: domain.RollRange(s.rnd, 0, exploreMaxGems),
	}
	return s.reserveAndCredit(ctx, user, domain.ActionReservation{
		Kind:       domain.CooldownExplore,
		Now:        s.now(),
		Cooldown:   domain.CooldownDuration(domain.CooldownExplore),
		DailyLimit: exploreDailyCap,
	}, credit)
}

func (s *Service) reserveAndCredit(ctx context.Context, user domain.Profile, r domain.ActionReservation, credit domain.Balances) (ActionResult, error) {
	if _, err := s.profiles.EnsureProfile(ctx, user.UserID, user.DisplayName); err != nil {
		return ActionResult{}, fmt.Errorf("создание профиля: %w", err)
	}
	state, err := s.profiles.ReserveAction(ctx, user.UserID, r)
	if err != nil {
		return ActionResult{}, fmt.Errorf("резервирование действия: %w", err)
	}
	res := ActionResult{State: state}
	switch {
	case state.LimitReached:
		return res, ErrDailyLimit
	case !state.Allowed:
		return res, ErrCooldown
	}
	balances, err := s.profiles.Exchange(ctx, user.UserID, domain.Balances{}, credit)
	if err != nil {
		return res, fmt.Errorf("начисление награды: %w", err)
	}
	res.Credit = credit
	res.Balances = balances
	return res, nil
}

func knownLocation(location string) bool {
	for _, l := range Locations {
		if l == location {
			return true
		}
	}
	return false
}

// Deposit переводит Zeni во вклад.
func (s *Service) Deposit(ctx context.Context, userID, amount int64) (domain.Balances, error) {
	if amount < minDeposit {
		return domain.Balances{}, fmt.Errorf("%w: минимум %d", ErrInvalidAmount, minDeposit)
	}
	balances, err := s.profiles.Exchange(ctx, userID, domain.Balances{Coins: amount}, domain.Balances{Bank: amount})
	if err != nil {
		return balances, fmt.Errorf("пополнение вклада: %w", err)
	}
	return balances, nil
}

// Withdraw снимает не больше половины вклада.
func (s *Service) Withdraw(ctx context.Context, userID, amount int64) (domain.Balances, error) {
	if amount <= 0 {
		return domain.Balances{}, ErrInvalidAmount
	}
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return domain.Balances{}, fmt.Errorf("получение профиля: %w", err)
	}
	if amount > profile.Balances.Bank/2 {
		return profile.Balances, ErrWithdrawLimit
	}
	balances, err := s.profiles.Exchange(ctx, userID, domain.Balances{Bank: amount}, domain.Balances{Coins: amount})
	if err != nil {
		return balances, fmt.Errorf("снятие со вклада: %w", err)
	}
	return balances, nil
}

// Quote возвращает стоимость покупки.
func Quote(item Item, quantity int64) (int64, error) {
	price, err := item.Price()
	if err != nil {
		return 0, err
	}
	if quantity <= 0 || quantity > maxShopQuantity {
		return 0, ErrInvalidAmount
	}
	return price * quantity, nil
}

// Buy покупает товар за Zeni.
func (s *Service) Buy(ctx context.Context, userID int64, item Item, quantity int64) (domain.Balances, error) {
	cost, err := Quote(item, quantity)
	if err != nil {
		return domain.Balances{}, err
	}
	credit := domain.Balances{Crystals: quantity}
	if item == ItemTickets {
		credit = domain.Balances{Tickets: quantity}
	}
	balances, err := s.profiles.Exchange(ctx, userID, domain.Balances{Coins: cost}, credit)
	if err != nil {
		return balances, fmt.Errorf("покупка: %w", err)
	}
	return balances, nil
}

// Inventory возвращает профиль с балансами.
func (s *Service) Inventory(ctx context.Context, user domain.Profile) (domain.Profile, error) {
	profile, err := s.profiles.EnsureProfile(ctx, user.UserID, user.DisplayName)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("получение профиля: %w", err)
	}
	return profile, nil
}

// BuyPass выдаёт недельный пропуск за алмазы.
func (s *Service) BuyPass(ctx context.Context, user domain.Profile) (time.Time, error) {
	if _, err := s.profiles.EnsureProfile(ctx, user.UserID, user.DisplayName); err != nil {
		return time.Time{}, fmt.Errorf("создание профиля: %w", err)
	}
	now := s.now()
	expires := now.Add(passDuration)
	if err := s.passes.ActivatePass(ctx, user.UserID, passPrice, expires, now); err != nil {
		return time.Time{}, fmt.Errorf("покупка пропуска: %w", err)
	}
	return expires, nil
}

// PayoutReport подводит итог ежедневной выплаты пропусков.
type PayoutReport struct {
	Paid    int
	Skipped int
	Failed  int
	Cleared int
}

// PayPasses начисляет дневные выплаты владельцам пропусков. Повторный запуск за тот же день ничего не начисляет.
func (s *Service) PayPasses(ctx context.Context) (PayoutReport, error) {
	now := s.now()
	var report PayoutReport
	cleared, err := s.passes.ClearExpiredPasses(ctx, now)
	if err != nil {
		return report, fmt.Errorf("очистка пропусков: %w", err)
	}
	report.Cleared = cleared

	holders, err := s.passes.ListPassHolders(ctx, now)
	if err != nil {
		return report, fmt.Errorf("список пропусков: %w", err)
	}
	reward := PassRewardFor(now.Weekday())
	for _, holder := range holders {
		acquired, err := s.passes.AcquirePassPayout(ctx, holder.UserID, domain.UTCDay(now))
		if err != nil {
			report.Failed++
			s.log.Error().Err(err).Int64("user", holder.UserID).Msg("economy: не удалось зафиксировать выплату пропуска")
			continue
		}
		if !acquired {
			report.Skipped++
			continue
		}
		var chars []domain.Character
		if c, err := s.characters.RandomCharacter(ctx, []domain.Rarity{reward.Rarity}); err == nil {
			chars = append(chars, c)
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Err(err).Int64("user", holder.UserID).Msg("economy: не удалось выбрать персонажа для пропуска")
		}
		credit := domain.Balances{Tokens: reward.Tokens, Diamonds: reward.Diamonds}
		if _, err := s.profiles.Grant(ctx, holder.UserID, domain.Balances{}, credit, chars, domain.SourcePass); err != nil {
			report.Failed++
			s.log.Error().Err(err).Int64("user", holder.UserID).Msg("economy: не удалось начислить выплату пропуска")
			continue
		}
		report.Paid++
	}
	return report, nil
}
