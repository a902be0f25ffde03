package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-collector-bot/internal/domain"
)

var (
	// ErrCooldown возвращается, если бесплатный персонаж уже получен за сутки.
	ErrCooldown = errors.New("персонаж уже получен, приходите позже")
	// ErrOfferNotFound возвращается для истёкшего или уже обработанного предложения.
	ErrOfferNotFound = errors.New("предложение не найдено или истекло")
	// ErrNotParticipant возвращается, если кнопку нажал не тот игрок.
	ErrNotParticipant = errors.New("это предложение не для вас")
	// ErrSelfOffer возвращается при попытке обменяться с самим собой.
	ErrSelfOffer = errors.New("нельзя предлагать самому себе")
	// ErrEmptyCatalog возвращается, если выдавать некого.
	ErrEmptyCatalog = errors.New("каталог пуст")
)

const offerTTL = 5 * time.Minute

// Service управляет коллекциями игроков.
type Service struct {
	profiles   domain.ProfileRepo
	characters domain.CharacterRepo
	cache      domain.Cache
	now        func() time.Time
	log        zerolog.Logger
}

// NewService создаёт сервис коллекций.
func NewService(profiles domain.ProfileRepo, characters domain.CharacterRepo, cache domain.Cache, log zerolog.Logger) *Service {
	return &Service{
		profiles:   profiles,
		characters: characters,
		cache:      cache,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// ClaimResult описывает итог получения бесплатного персонажа.
type ClaimResult struct {
	Character domain.Character
	State     domain.ActionState
}

// ClaimDaily выдаёт случайного персонажа раз в сутки. Начисление происходит сразу, показ откладывает обработчик.
func (s *Service) ClaimDaily(ctx context.Context, user domain.Profile) (ClaimResult, error) {
	if _, err := s.profiles.EnsureProfile(ctx, user.UserID, user.DisplayName); err != nil {
		return ClaimResult{}, fmt.Errorf("создание профиля: %w", err)
	}
	character, err := s.characters.RandomCharacter(ctx, claimableRarities())
	if errors.Is(err, domain.ErrNotFound) {
		return ClaimResult{}, ErrEmptyCatalog
	}
	if err != nil {
		return ClaimResult{}, fmt.Errorf("выбор персонажа: %w", err)
	}
	state, err := s.profiles.ReserveAction(ctx, user.UserID, domain.ActionReservation{
		Kind:     domain.CooldownClaim,
		Now:      s.now(),
		Cooldown: domain.CooldownDuration(domain.CooldownClaim),
	})
	if err != nil {
		return ClaimResult{}, fmt.Errorf("резервирование: %w", err)
	}
	if !state.Allowed {
		return ClaimResult{State: state}, ErrCooldown
	}
	if _, err := s.profiles.Grant(ctx, user.UserID, domain.Balances{}, domain.Balances{}, []domain.Character{character}, domain.SourceClaim); err != nil {
		return ClaimResult{State: state}, fmt.Errorf("выдача персонажа: %w", err)
	}
	return ClaimResult{Character: character, State: state}, nil
}

func claimableRarities() []domain.Rarity {
	var out []domain.Rarity
	for _, r := range domain.AllRarities() {
		if !r.Restricted() {
			out = append(out, r)
		}
	}
	return out
}

// SetFavorite делает персонажа избранным.
func (s *Service) SetFavorite(ctx context.Context, userID int64, characterID string) (domain.Character, error) {
	character, err := s.characters.GetCharacter(ctx, characterID)
	if err != nil {
		return domain.Character{}, fmt.Errorf("получение персонажа: %w", err)
	}
	if err := s.profiles.SetFavorite(ctx, userID, characterID); err != nil {
		return domain.Character{}, fmt.Errorf("избранное: %w", err)
	}
	return character, nil
}

// HaremEntry содержит персонажа коллекции и число его копий.
type HaremEntry struct {
	Character domain.Character
	Count     int
}

// HaremGroup группирует персонажей одного аниме.
type HaremGroup struct {
	Anime   string
	Entries []HaremEntry
}

// Harem представляет сгруппированную коллекцию игрока.
type Harem struct {
	Profile domain.Profile
	Total   int
	Groups  []HaremGroup
}

// Harem возвращает коллекцию, сгруппированную по аниме.
func (s *Service) Harem(ctx context.Context, user domain.Profile) (Harem, error) {
	profile, err := s.profiles.EnsureProfile(ctx, user.UserID, user.DisplayName)
	if err != nil {
		return Harem{}, fmt.Errorf("получение профиля: %w", err)
	}
	owned, err := s.profiles.ListOwned(ctx, user.UserID)
	if err != nil {
		return Harem{}, fmt.Errorf("получение коллекции: %w", err)
	}
	return GroupHarem(profile, owned), nil
}

// GroupHarem группирует коллекцию по аниме и считает дубликаты.
func GroupHarem(profile domain.Profile, owned []domain.OwnedCharacter) Harem {
	counts := make(map[string]int)
	byAnime := make(map[string][]domain.Character)
	for _, o := range owned {
		if counts[o.ID] == 0 {
			byAnime[o.Anime] = append(byAnime[o.Anime], o.Character)
		}
		counts[o.ID]++
	}
	animes := make([]string, 0, len(byAnime))
	for anime := range byAnime {
		animes = append(animes, anime)
	}
	sort.Strings(animes)

	h := Harem{Profile: profile, Total: len(owned)}
	for _, anime := range animes {
		chars := byAnime[anime]
		sort.Slice(chars, func(i, j int) bool { return chars[i].ID < chars[j].ID })
		group := HaremGroup{Anime: anime}
		for _, c := range chars {
			group.Entries = append(group.Entries, HaremEntry{Character: c, Count: counts[c.ID]})
		}
		h.Groups = append(h.Groups, group)
	}
	return h
}

// ProposeTrade сохраняет предложение обмена. Подтвердить может только получатель.
func (s *Service) ProposeTrade(ctx context.Context, from, to domain.Profile, fromCharacterID, toCharacterID string) (domain.Offer, error) {
	if from.UserID == to.UserID {
		return domain.Offer{}, ErrSelfOffer
	}
	if err := s.requireOwned(ctx, from.UserID, fromCharacterID); err != nil {
		return domain.Offer{}, err
	}
	if err := s.requireOwned(ctx, to.UserID, toCharacterID); err != nil {
		return domain.Offer{}, err
	}
	return s.saveOffer(ctx, domain.Offer{
		Kind:          domain.OfferTrade,
		FromUserID:    from.UserID,
		FromName:      from.DisplayName,
		ToUserID:      to.UserID,
		ToName:        to.DisplayName,
		FromCharacter: fromCharacterID,
		ToCharacter:   toCharacterID,
	})
}

// ProposeGift сохраняет предложение подарка. Подтверждает отправитель.
func (s *Service) ProposeGift(ctx context.Context, from, to domain.Profile, characterID string) (domain.Offer, error) {
	if from.UserID == to.UserID {
		return domain.Offer{}, ErrSelfOffer
	}
	if err := s.requireOwned(ctx, from.UserID, characterID); err != nil {
		return domain.Offer{}, err
	}
	if _, err := s.profiles.EnsureProfile(ctx, to.UserID, to.DisplayName); err != nil {
		return domain.Offer{}, fmt.Errorf("создание профиля: %w", err)
	}
	return s.saveOffer(ctx, domain.Offer{
		Kind:          domain.OfferGift,
		FromUserID:    from.UserID,
		FromName:      from.DisplayName,
		ToUserID:      to.UserID,
		ToName:        to.DisplayName,
		FromCharacter: characterID,
	})
}

// Confirm исполняет предложение. Повторное подтверждение возвращает ErrOfferNotFound.
func (s *Service) Confirm(ctx context.Context, offerID string, actorID int64) (domain.Offer, error) {
	offer, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	if actorID != confirmer(offer) {
		return offer, ErrNotParticipant
	}
	if _, err := s.cache.Take(ctx, offerKey(offerID)); err != nil {
		if errors.Is(err, domain.ErrCacheMiss) {
			return offer, ErrOfferNotFound
		}
		return offer, fmt.Errorf("захват предложения: %w", err)
	}

	switch offer.Kind {
	case domain.OfferTrade:
		err = s.profiles.SwapCharacters(ctx, offer.FromUserID, offer.FromCharacter, offer.ToUserID, offer.ToCharacter)
	case domain.OfferGift:
		err = s.profiles.TransferCharacter(ctx, offer.FromUserID, offer.ToUserID, offer.FromCharacter)
	default:
		err = fmt.Errorf("неизвестный тип предложения %q", offer.Kind)
	}
	if err != nil {
		return offer, fmt.Errorf("исполнение предложения: %w", err)
	}
	s.log.Info().Str("offer", offer.ID).Str("kind", offer.Kind).Int64("from", offer.FromUserID).Int64("to", offer.ToUserID).Msg("collection: предложение исполнено")
	return offer, nil
}

// Cancel отменяет предложение. Отменить может любой участник.
func (s *Service) Cancel(ctx context.Context, offerID string, actorID int64) (domain.Offer, error) {
	offer, err := s.loadOffer(ctx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	if actorID != offer.FromUserID && actorID != offer.ToUserID {
		return offer, ErrNotParticipant
	}
	if err := s.cache.Del(ctx, offerKey(offerID)); err != nil {
		return offer, fmt.Errorf("удаление предложения: %w", err)
	}
	return offer, nil
}

func confirmer(o domain.Offer) int64 {
	if o.Kind == domain.OfferGift {
		return o.FromUserID
	}
	return o.ToUserID
}

func (s *Service) requireOwned(ctx context.Context, userID int64, characterID string) error {
	owned, err := s.profiles.ListOwned(ctx, userID)
	if err != nil {
		return fmt.Errorf("получение коллекции: %w", err)
	}
	for _, o := range owned {
		if o.ID == characterID {
			return nil
		}
	}
	return domain.ErrNotOwned
}

func (s *Service) saveOffer(ctx context.Context, offer domain.Offer) (domain.Offer, error) {
	offer.ID = uuid.NewString()[:8]
	payload, err := json.Marshal(offer)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("сериализация предложения: %w", err)
	}
	if err := s.cache.Set(ctx, offerKey(offer.ID), payload, offerTTL); err != nil {
		return domain.Offer{}, fmt.Errorf("сохранение предложения: %w", err)
	}
	return offer, nil
}

func (s *Service) loadOffer(ctx context.Context, offerID string) (domain.Offer, error) {
	payload, err := s.cache.Get(ctx, offerKey(offerID))
	if errors.Is(err, domain.ErrCacheMiss) {
		return domain.Offer{}, ErrOfferNotFound
	}
	if err != nil {
		return domain.Offer{}, fmt.Errorf("чтение предложения: %w", err)
	}
	var offer domain.Offer
	if err := json.Unmarshal(payload, &offer); err != nil {
		return domain.Offer{}, fmt.Errorf("разбор предложения: %w", err)
	}
	return offer, nil
}

func offerKey(id string) string {
	return "offer:" + id
}
