package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"tg-collector-bot/internal/domain"
)

var (
	// ErrInvalidName возвращается для пустого имени.
	ErrInvalidName = errors.New("имя персонажа не может быть пустым")
	// ErrInvalidField возвращается для неизвестного поля /update.
	ErrInvalidField = errors.New("поле: media_ref, name, anime или rarity")
	// ErrInvalidMedia возвращается без ссылки на медиа.
	ErrInvalidMedia = errors.New("нужна ссылка на изображение")
	// ErrInvalidRole возвращается для неизвестной роли.
	ErrInvalidRole = errors.New("роль: user, uploader, sudo или owner")
)

const (
	codeLength   = 10
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var animeCodes = map[string]string{
	"1": "Dragon Ball",
	"2": "One Piece",
	"3": "Naruto",
	"4": "Bleach",
	"5": "Demon Slayer",
	"6": "Attack on Titan",
	"7": "Jujutsu Kaisen",
	"8": "My Hero Academia",
	"9": "Hunter x Hunter",
}

// AccessConfig задаёт статические роли из окружения.
type AccessConfig struct {
	OwnerID int64
	SudoIDs []int64
}

// UploadRequest описывает параметры /upload.
type UploadRequest struct {
	MediaRef   string
	Name       string
	Anime      string
	RarityCode string
	Category   string
}

// Service управляет каталогом, кодами и ролями.
type Service struct {
	characters domain.CharacterRepo
	profiles   domain.ProfileRepo
	codes      domain.RedeemRepo
	roles      domain.RoleRepo
	admin      domain.AdminRepo
	access     AccessConfig
	rnd        domain.Random
	now        func() time.Time
	log        zerolog.Logger
}

// NewService создаёт сервис каталога.
func NewService(characters domain.CharacterRepo, profiles domain.ProfileRepo, codes domain.RedeemRepo, roles domain.RoleRepo, admin domain.AdminRepo, access AccessConfig, rnd domain.Random, log zerolog.Logger) *Service {
	if rnd == nil {
		rnd = domain.DefaultRandom()
	}
	return &Service{
		characters: characters,
		profiles:   profiles,
		codes:      codes,
		roles:      roles,
		admin:      admin,
		access:     access,
		rnd:        rnd,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// RoleOf возвращает действующую роль пользователя.
func (s *Service) RoleOf(ctx context.Context, userID int64) (domain.Role, error) {
	stored, err := s.roles.GetRole(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.RoleUser, fmt.Errorf("получение роли: %w", err)
	}
	return domain.ResolveRole(stored, userID, s.access.OwnerID, s.access.SudoIDs), nil
}

// NormalizeName заменяет дефисы пробелами и приводит слова к заглавной букве.
func NormalizeName(raw string) string {
	words := strings.Fields(strings.ReplaceAll(raw, "-", " "))
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

// ResolveAnime разворачивает код аниме 1-9 или нормализует название.
func ResolveAnime(raw string) string {
	if anime, ok := animeCodes[strings.TrimSpace(raw)]; ok {
		return anime
	}
	return NormalizeName(raw)
}

// Upload добавляет персонажа в каталог.
func (s *Service) Upload(ctx context.Context, role domain.Role, req UploadRequest) (domain.Character, error) {
	if !role.CanUpload() {
		return domain.Character{}, domain.ErrForbidden
	}
	if strings.TrimSpace(req.MediaRef) == "" {
		return domain.Character{}, ErrInvalidMedia
	}
	name := NormalizeName(req.Name)
	if name == "" {
		return domain.Character{}, ErrInvalidName
	}
	rarity, err := domain.ParseRarityCode(req.RarityCode)
	if err != nil {
		return domain.Character{}, err
	}
	id, err := s.characters.NextCharacterID(ctx)
	if err != nil {
		return domain.Character{}, fmt.Errorf("выдача идентификатора: %w", err)
	}
	c := domain.Character{
		ID:        id,
		Name:      name,
		Anime:     ResolveAnime(req.Anime),
		Rarity:    rarity,
		Category:  req.Category,
		MediaRef:  strings.TrimSpace(req.MediaRef),
		CreatedAt: s.now(),
	}
	if err := s.characters.CreateCharacter(ctx, c); err != nil {
		return domain.Character{}, fmt.Errorf("сохранение персонажа: %w", err)
	}
	s.log.Info().Str("character", c.ID).Str("name", c.Name).Str("rarity", c.Rarity.String()).Msg("catalog: персонаж загружен")
	return c, nil
}

// Delete мягко удаляет персонажа вместе со всеми копиями у игроков.
func (s *Service) Delete(ctx context.Context, role domain.Role, id string) (domain.Character, error) {
	if !role.CanUpload() {
		return domain.Character{}, domain.ErrForbidden
	}
	c, err := s.characters.GetCharacter(ctx, id)
	if err != nil {
		return domain.Character{}, fmt.Errorf("получение персонажа: %w", err)
	}
	if err := s.characters.SoftDeleteCharacter(ctx, id, s.now()); err != nil {
		return domain.Character{}, fmt.Errorf("удаление персонажа: %w", err)
	}
	return c, nil
}

// Update меняет одно поле персонажа.
func (s *Service) Update(ctx context.Context, role domain.Role, id string, field domain.CharacterField, value string) (domain.Character, error) {
	if !role.CanUpload() {
		return domain.Character{}, domain.ErrForbidden
	}
	c, err := s.characters.GetCharacter(ctx, id)
	if err != nil {
		return domain.Character{}, fmt.Errorf("получение персонажа: %w", err)
	}
	switch field {
	case domain.CharacterFieldMedia:
		if strings.TrimSpace(value) == "" {
			return domain.Character{}, ErrInvalidMedia
		}
		c.MediaRef = strings.TrimSpace(value)
	case domain.CharacterFieldName:
		c.Name = NormalizeName(value)
		if c.Name == "" {
			return domain.Character{}, ErrInvalidName
		}
	case domain.CharacterFieldAnime:
		c.Anime = ResolveAnime(value)
	case domain.CharacterFieldRarity:
		rarity, err := domain.ParseRarityCode(value)
		if err != nil {
			return domain.Character{}, err
		}
		c.Rarity = rarity
	default:
		return domain.Character{}, ErrInvalidField
	}
	if err := s.characters.UpdateCharacter(ctx, c); err != nil {
		return domain.Character{}, fmt.Errorf("обновление персонажа: %w", err)
	}
	return c, nil
}

// ResetGameState очищает игровое состояние. Только для владельца.
func (s *Service) ResetGameState(ctx context.Context, role domain.Role) error {
	if !role.IsOwner() {
		return domain.ErrForbidden
	}
	if err := s.admin.ResetGameState(ctx); err != nil {
		return fmt.Errorf("сброс игры: %w", err)
	}
	s.log.Warn().Msg("catalog: игровое состояние сброшено")
	return nil
}

// GenerateCode создаёт одноразовый код на персонажа заданной редкости.
func (s *Service) GenerateCode(ctx context.Context, role domain.Role, actorID int64, rarityCode string) (domain.RedeemCode, error) {
	if !role.CanAdminister() {
		return domain.RedeemCode{}, domain.ErrForbidden
	}
	rarity, err := domain.ParseRarityCode(rarityCode)
	if err != nil {
		return domain.RedeemCode{}, err
	}
	for attempt := 0; attempt < 3; attempt++ {
		code := domain.RedeemCode{Code: s.randomCode(), Rarity: rarity, CreatedBy: actorID, CreatedAt: s.now()}
		err := s.codes.CreateRedeemCode(ctx, code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return domain.RedeemCode{}, fmt.Errorf("сохранение кода: %w", err)
		}
	}
	return domain.RedeemCode{}, fmt.Errorf("сохранение кода: %w", domain.ErrAlreadyExists)
}

func (s *Service) randomCode() string {
	var b strings.Builder
	b.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		b.WriteByte(codeAlphabet[s.rnd.IntN(len(codeAlphabet))])
	}
	return b.String()
}

// Redeem активирует код. Побеждает первый активировавший.
func (s *Service) Redeem(ctx context.Context, user domain.Profile, code string) (domain.Character, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, err := s.profiles.EnsureProfile(ctx, user.UserID, user.DisplayName); err != nil {
		return domain.Character{}, fmt.Errorf("создание профиля: %w", err)
	}
	rc, err := s.codes.UseRedeemCode(ctx, code, user.UserID, s.now())
	if err != nil {
		return domain.Character{}, fmt.Errorf("активация кода: %w", err)
	}
	c, err := s.characters.RandomCharacter(ctx, []domain.Rarity{rc.Rarity})
	if err != nil {
		s.log.Error().Err(err).Str("code", rc.Code).Int64("user", user.UserID).Msg("catalog: код активирован, но персонаж не выдан")
		return domain.Character{}, fmt.Errorf("выбор персонажа: %w", err)
	}
	if _, err := s.profiles.Grant(ctx, user.UserID, domain.Balances{}, domain.Balances{}, []domain.Character{c}, domain.SourceRedeem); err != nil {
		s.log.Error().Err(err).Str("code", rc.Code).Int64("user", user.UserID).Msg("catalog: код активирован, но персонаж не выдан")
		return domain.Character{}, fmt.Errorf("выдача персонажа: %w", err)
	}
	return c, nil
}

// AddRole выдаёт роль. Только для владельца.
func (s *Service) AddRole(ctx context.Context, role domain.Role, targetID int64, value string) (domain.Role, error) {
	if !role.IsOwner() {
		return "", domain.ErrForbidden
	}
	newRole, ok := domain.ParseRole(value)
	if !ok {
		return "", ErrInvalidRole
	}
	if err := s.roles.SetRole(ctx, targetID, newRole); err != nil {
		return "", fmt.Errorf("сохранение роли: %w", err)
	}
	return newRole, nil
}

// ParseUserID разбирает идентификатор пользователя из аргумента команды.
func ParseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("некорректный идентификатор пользователя %q", raw)
	}
	return id, nil
}
