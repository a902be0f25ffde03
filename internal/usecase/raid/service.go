package raid

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/metrics"
)

// AttackKind задаёт тип атаки на босса.
type AttackKind string

const (
	AttackQuick    AttackKind = "quick"
	AttackPower    AttackKind = "power"
	AttackUltimate AttackKind = "ultimate"
)

var attackMultipliers = map[AttackKind]float64{
	AttackQuick:    0.7,
	AttackPower:    1.2,
	AttackUltimate: 2.0,
}

const (
	baseHP             = 500_000
	hpPerPlayer        = 20_000
	bossDefense        = 15_000
	bossAttack         = 20_000
	minCounterDamage   = 5_000
	teamSize           = 4
	attackMultiplier   = 1.5
	defenseMultiplier  = 1.2
	tokensPerDamage    = 0.1
	attemptsPerUTCDay  = 3
	defaultRaidTimeout = 24 * time.Hour
)

var (
	// ErrNoTeam возвращается игроку без персонажей.
	ErrNoTeam = errors.New("в коллекции нет персонажей для рейда")
	// ErrNoActiveRaid возвращается, если босс не призван.
	ErrNoActiveRaid = errors.New("активного рейда нет")
	// ErrUnknownAttack возвращается для неизвестного типа атаки.
	ErrUnknownAttack = errors.New("неизвестный тип атаки")
)

// Team содержит боевые характеристики команды игрока.
type Team struct {
	Members []domain.Character
	Attack  int64
	Defense int64
}

// AttackResult описывает итог атаки вместе с ответом босса.
type AttackResult struct {
	domain.RaidAttackResult
	Kind          AttackKind
	CounterDamage int64
	AttemptsLeft  int
	Rewards       []domain.RaidParticipant
}

// Announcer публикует итоги рейдов.
type Announcer interface {
	RaidFinished(ctx context.Context, r domain.Raid, rewards []domain.RaidParticipant)
}

// Service ведёт рейды на босса.
type Service struct {
	raids     domain.RaidRepo
	profiles  domain.ProfileRepo
	events    domain.GameEventRepo
	timers    domain.Timers
	duration  time.Duration
	mu        sync.RWMutex
	announcer Announcer
	now       func() time.Time
	log       zerolog.Logger
}

// NewService создаёт сервис рейдов.
func NewService(raids domain.RaidRepo, profiles domain.ProfileRepo, events domain.GameEventRepo, timers domain.Timers, duration time.Duration, log zerolog.Logger) *Service {
	if duration <= 0 {
		duration = defaultRaidTimeout
	}
	return &Service{
		raids:    raids,
		profiles: profiles,
		events:   events,
		timers:   timers,
		duration: duration,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// SetAnnouncer подключает публикацию итогов.
func (s *Service) SetAnnouncer(a Announcer) {
	s.mu.Lock()
	s.announcer = a
	s.mu.Unlock()
}

func (s *Service) currentAnnouncer() Announcer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.announcer
}

// ParseAttackKind разбирает тип атаки из callback-данных.
func ParseAttackKind(value string) (AttackKind, error) {
	kind := AttackKind(value)
	if _, ok := attackMultipliers[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAttack, value)
	}
	return kind, nil
}

// BuildTeam собирает команду из четырёх самых сильных персонажей.
func BuildTeam(owned []domain.OwnedCharacter) Team {
	chars := make([]domain.Character, 0, len(owned))
	for _, o := range owned {
		chars = append(chars, o.Character)
	}
	sort.SliceStable(chars, func(i, j int) bool {
		return chars[i].Rarity.Info().Power > chars[j].Rarity.Info().Power
	})
	if len(chars) > teamSize {
		chars = chars[:teamSize]
	}
	var power int64
	for _, c := range chars {
		power += c.Rarity.Info().Power
	}
	return Team{
		Members: chars,
		Attack:  int64(float64(power) * attackMultiplier),
		Defense: int64(float64(power) * defenseMultiplier),
	}
}

// Team возвращает команду игрока.
func (s *Service) Team(ctx context.Context, userID int64) (Team, error) {
	owned, err := s.profiles.ListOwned(ctx, userID)
	if err != nil {
		return Team{}, fmt.Errorf("получение коллекции: %w", err)
	}
	if len(owned) == 0 {
		return Team{}, ErrNoTeam
	}
	return BuildTeam(owned), nil
}

// StartRaid возвращает активного босса или призывает нового.
func (s *Service) StartRaid(ctx context.Context, userID int64) (domain.Raid, bool, error) {
	if _, err := s.Team(ctx, userID); err != nil {
		return domain.Raid{}, false, err
	}
	players, err := s.profiles.CountProfiles(ctx)
	if err != nil {
		return domain.Raid{}, false, fmt.Errorf("подсчёт игроков: %w", err)
	}
	now := s.now()
	hp := int64(baseHP + hpPerPlayer*players)
	r, created, err := s.raids.CreateRaid(ctx, domain.Raid{
		ID:        uuid.NewString(),
		HP:        hp,
		MaxHP:     hp,
		Defense:   bossDefense,
		Attack:    bossAttack,
		Active:    true,
		EndsAt:    now.Add(s.duration),
		CreatedAt: now,
	})
	if err != nil {
		return domain.Raid{}, false, fmt.Errorf("создание рейда: %w", err)
	}
	if created {
		if err := s.arm(r); err != nil {
			return domain.Raid{}, false, err
		}
		s.log.Info().Str("raid", r.ID).Int64("hp", r.HP).Int64("by", userID).Msg("raid: босс призван")
	}
	return r, created, nil
}

// Active возвращает текущего босса.
func (s *Service) Active(ctx context.Context) (domain.Raid, error) {
	r, err := s.raids.ActiveRaid(ctx, s.now())
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Raid{}, ErrNoActiveRaid
	}
	if err != nil {
		return domain.Raid{}, fmt.Errorf("получение рейда: %w", err)
	}
	return r, nil
}

// Attack наносит урон активному боссу. Попытка и урон списываются одной транзакцией.
func (s *Service) Attack(ctx context.Context, userID int64, kind AttackKind) (AttackResult, error) {
	multiplier, ok := attackMultipliers[kind]
	if !ok {
		return AttackResult{}, fmt.Errorf("%w: %q", ErrUnknownAttack, kind)
	}
	team, err := s.Team(ctx, userID)
	if err != nil {
		return AttackResult{}, err
	}
	r, err := s.Active(ctx)
	if err != nil {
		return AttackResult{}, err
	}

	damage := int64(float64(team.Attack) * multiplier)
	res, err := s.raids.ApplyAttack(ctx, domain.RaidAttack{
		RaidID:      r.ID,
		UserID:      userID,
		Damage:      damage,
		MaxAttempts: attemptsPerUTCDay,
		Now:         s.now(),
	})
	if errors.Is(err, domain.ErrInactive) {
		return AttackResult{}, ErrNoActiveRaid
	}
	if err != nil {
		return AttackResult{}, fmt.Errorf("атака: %w", err)
	}
	metrics.IncRaidAttack()

	out := AttackResult{
		RaidAttackResult: res,
		Kind:             kind,
		CounterDamage:    CounterDamage(r.Attack, team.Defense),
		AttemptsLeft:     max(attemptsPerUTCDay-res.Attempt, 0),
	}
	if res.Defeated {
		rewards, err := s.finish(ctx, res.Raid)
		if err != nil {
			return out, err
		}
		out.Rewards = rewards
	}
	return out, nil
}

// CounterDamage считает ответный удар босса по команде.
func CounterDamage(bossAttack, teamDefense int64) int64 {
	return max(minCounterDamage, bossAttack-teamDefense/2)
}

// Expire завершает рейд по истечении времени. Повторный вызов ничего не делает.
func (s *Service) Expire(ctx context.Context, raidID string) (bool, error) {
	expired, err := s.raids.ExpireRaid(ctx, raidID, s.now())
	if err != nil {
		return false, fmt.Errorf("завершение рейда: %w", err)
	}
	if s.timers != nil {
		s.timers.Cancel(timerKey(raidID))
	}
	if expired {
		s.log.Info().Str("raid", raidID).Msg("raid: время рейда вышло")
		if announcer := s.currentAnnouncer(); announcer != nil {
			if r, err := s.raids.GetRaid(ctx, raidID); err == nil {
				announcer.RaidFinished(ctx, r, nil)
			}
		}
	}
	return expired, nil
}

// Sweep завершает просроченные рейды и доначисляет награды побеждённым.
func (s *Service) Sweep(ctx context.Context) (expired, settled int, err error) {
	stale, err := s.raids.ListExpiredRaids(ctx, s.now())
	if err != nil {
		return 0, 0, fmt.Errorf("поиск просроченных рейдов: %w", err)
	}
	for _, r := range stale {
		ok, err := s.Expire(ctx, r.ID)
		if err != nil {
			return expired, settled, err
		}
		if ok {
			expired++
		}
	}
	pending, err := s.raids.ListUnsettledRaids(ctx)
	if err != nil {
		return expired, settled, fmt.Errorf("поиск нерассчитанных рейдов: %w", err)
	}
	for _, r := range pending {
		rewards, err := s.finish(ctx, r)
		if err != nil {
			return expired, settled, err
		}
		if rewards != nil {
			settled++
		}
	}
	return expired, settled, nil
}

func (s *Service) finish(ctx context.Context, r domain.Raid) ([]domain.RaidParticipant, error) {
	if s.timers != nil {
		s.timers.Cancel(timerKey(r.ID))
	}
	rewards, ok, err := s.raids.SettleRaid(ctx, r.ID, tokensPerDamage)
	if err != nil {
		return nil, fmt.Errorf("награды рейда: %w", err)
	}
	if !ok {
		return nil, nil
	}
	s.log.Info().Str("raid", r.ID).Int64("defeated_by", r.DefeatedBy).Int("participants", len(rewards)).Msg("raid: босс побеждён")
	if s.events != nil {
		event := domain.GameEvent{
			Event:      domain.GameEventRaidDefeated,
			UserID:     domain.Int64Ptr(r.DefeatedBy),
			Metadata:   map[string]any{"raid_id": r.ID, "participants": len(rewards), "max_hp": r.MaxHP},
			OccurredAt: s.now(),
		}
		if err := s.events.RecordGameEvent(ctx, event); err != nil {
			s.log.Warn().Err(err).Str("raid", r.ID).Msg("raid: не удалось сохранить событие")
		}
	}
	if announcer := s.currentAnnouncer(); announcer != nil {
		announcer.RaidFinished(ctx, r, rewards)
	}
	return rewards, nil
}

// RewardTokens считает награду участника за нанесённый урон.
func RewardTokens(damage int64) int64 {
	return int64(float64(damage) * tokensPerDamage)
}

func (s *Service) arm(r domain.Raid) error {
	if s.timers == nil {
		return nil
	}
	id := r.ID
	err := s.timers.After(timerKey(id), r.EndsAt, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.Expire(ctx, id); err != nil {
			s.log.Error().Err(err).Str("raid", id).Msg("raid: не удалось завершить по таймеру")
		}
	})
	if err != nil {
		return fmt.Errorf("таймер рейда: %w", err)
	}
	return nil
}

func timerKey(id string) string {
	return "raid:" + id
}
