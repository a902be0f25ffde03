package summon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-collector-bot/internal/domain"
)

var (
	// ErrInvalidCount возвращается для числа призывов, отличного от 1 и 10.
	ErrInvalidCount = errors.New("призывать можно 1 или 10 раз")
	// ErrUnknownCurrency возвращается для неизвестной валюты призыва.
	ErrUnknownCurrency = errors.New("валюта призыва: cc или ticket")
	// ErrEmptyBanner возвращается, если на баннере нет персонажей.
	ErrEmptyBanner = errors.New("на баннере нет персонажей")
	// ErrInvalidBannerName возвращается для пустого имени баннера.
	ErrInvalidBannerName = errors.New("некорректное имя баннера")
)

const (
	crystalsPerPull = 120
	ticketsPerPull  = 1
)

// Currency задаёт валюту оплаты призыва.
type Currency string

const (
	CurrencyCrystals Currency = "cc"
	CurrencyTickets  Currency = "ticket"
)

// Cost возвращает списание за count призывов.
func Cost(currency Currency, count int) (domain.Balances, error) {
	if count != 1 && count != 10 {
		return domain.Balances{}, ErrInvalidCount
	}
	switch currency {
	case CurrencyCrystals:
		return domain.Balances{Crystals: int64(crystalsPerPull * count)}, nil
	case CurrencyTickets:
		return domain.Balances{Tickets: int64(ticketsPerPull * count)}, nil
	default:
		return domain.Balances{}, ErrUnknownCurrency
	}
}

// Result описывает итог призыва.
type Result struct {
	Banner   domain.Banner
	Pulls    []domain.Character
	Rarest   domain.Character
	Balances domain.Balances
}

// Service проводит призывы на баннерах и управляет ими.
type Service struct {
	banners  domain.BannerRepo
	chars    domain.CharacterRepo
	profiles domain.ProfileRepo
	rnd      domain.Random
	now      func() time.Time
	log      zerolog.Logger
}

// NewService создаёт сервис призывов.
func NewService(banners domain.BannerRepo, chars domain.CharacterRepo, profiles domain.ProfileRepo, rnd domain.Random, log zerolog.Logger) *Service {
	if rnd == nil {
		rnd = domain.DefaultRandom()
	}
	return &Service{
		banners:  banners,
		chars:    chars,
		profiles: profiles,
		rnd:      rnd,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// Summon вытягивает count персонажей с баннера. Списание и выдача проходят одной транзакцией.
func (s *Service) Summon(ctx context.Context, user domain.Profile, bannerName string, count int, currency Currency) (Result, error) {
	debit, err := Cost(currency, count)
	if err != nil {
		return Result{}, err
	}
	banner, err := s.banners.GetBanner(ctx, bannerName)
	if err != nil {
		return Result{}, fmt.Errorf("получение баннера: %w", err)
	}
	pool, err := s.banners.BannerCharacters(ctx, bannerName)
	if err != nil {
		return Result{}, fmt.Errorf("персонажи баннера: %w", err)
	}

	pulls := make([]domain.Character, 0, count)
	for i := 0; i < count; i++ {
		c, ok := domain.PickByRarity(s.rnd, pool, domain.BannerWeight)
		if !ok {
			return Result{}, ErrEmptyBanner
		}
		pulls = append(pulls, c)
	}

	if _, err := s.profiles.EnsureProfile(ctx, user.UserID, user.DisplayName); err != nil {
		return Result{}, fmt.Errorf("создание профиля: %w", err)
	}
	balances, err := s.profiles.Grant(ctx, user.UserID, debit, domain.Balances{}, pulls, domain.SourceSummon)
	if err != nil {
		return Result{}, fmt.Errorf("оплата призыва: %w", err)
	}
	return Result{Banner: banner, Pulls: pulls, Rarest: Rarest(pulls), Balances: balances}, nil
}

// Rarest возвращает самого редкого персонажа; при равенстве — первого.
func Rarest(pulls []domain.Character) domain.Character {
	var best domain.Character
	for i, c := range pulls {
		if i == 0 || c.Rarity > best.Rarity {
			best = c
		}
	}
	return best
}

// Banners возвращает список баннеров.
func (s *Service) Banners(ctx context.Context) ([]domain.Banner, error) {
	list, err := s.banners.ListBanners(ctx)
	if err != nil {
		return nil, fmt.Errorf("список баннеров: %w", err)
	}
	return list, nil
}

// CreateBanner создаёт баннер.
func (s *Service) CreateBanner(ctx context.Context, role domain.Role, name, mediaRef string) (domain.Banner, error) {
	if !role.CanAdminister() {
		return domain.Banner{}, domain.ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return domain.Banner{}, ErrInvalidBannerName
	}
	b := domain.Banner{Name: name, MediaRef: mediaRef, CreatedAt: s.now()}
	if err := s.banners.CreateBanner(ctx, b); err != nil {
		return domain.Banner{}, fmt.Errorf("создание баннера: %w", err)
	}
	return b, nil
}

// AddCharacter добавляет персонажа на баннер.
func (s *Service) AddCharacter(ctx context.Context, role domain.Role, banner, characterID string) (int, error) {
	if !role.CanAdminister() {
		return 0, domain.ErrForbidden
	}
	if _, err := s.chars.GetCharacter(ctx, characterID); err != nil {
		return 0, fmt.Errorf("получение персонажа: %w", err)
	}
	return s.add(ctx, banner, []string{characterID})
}

// AddAll добавляет на баннер весь каталог.
func (s *Service) AddAll(ctx context.Context, role domain.Role, banner string) (int, error) {
	return s.addRarities(ctx, role, banner, nil)
}

// AddRarity добавляет на баннер всех персонажей редкости.
func (s *Service) AddRarity(ctx context.Context, role domain.Role, banner string, rarity domain.Rarity) (int, error) {
	if !rarity.Valid() {
		return 0, domain.ErrUnknownRarity
	}
	return s.addRarities(ctx, role, banner, []domain.Rarity{rarity})
}

func (s *Service) addRarities(ctx context.Context, role domain.Role, banner string, rarities []domain.Rarity) (int, error) {
	if !role.CanAdminister() {
		return 0, domain.ErrForbidden
	}
	list, err := s.chars.ListCharacters(ctx, rarities)
	if err != nil {
		return 0, fmt.Errorf("загрузка каталога: %w", err)
	}
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.ID)
	}
	return s.add(ctx, banner, ids)
}

func (s *Service) add(ctx context.Context, banner string, ids []string) (int, error) {
	added, err := s.banners.AddBannerCharacters(ctx, banner, ids)
	if err != nil {
		return 0, fmt.Errorf("добавление на баннер: %w", err)
	}
	s.log.Info().Str("banner", banner).Int("added", added).Msg("summon: баннер пополнен")
	return added, nil
}
