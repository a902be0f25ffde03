package auction

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/metrics"
)

var (
	// ErrOutbid возвращается, если ставку перебили между чтением и записью.
	ErrOutbid = errors.New("ставку уже перебили")
	// ErrInvalidIncrement возвращается для шага ставки вне разрешённого набора.
	ErrInvalidIncrement = errors.New("недопустимый шаг ставки")
	// ErrSelfOutbid возвращается, если лидер пытается перебить сам себя.
	ErrSelfOutbid = errors.New("вы уже лидируете")
	// ErrInvalidStartingBid возвращается для неположительной стартовой ставки.
	ErrInvalidStartingBid = errors.New("стартовая ставка должна быть положительной")
)

// Config задаёт параметры аукционов.
type Config struct {
	Duration   time.Duration
	Increments []int64
}

// Announcer публикует итоги аукционов.
type Announcer interface {
	AuctionClosed(ctx context.Context, a domain.Auction)
}

// Service проводит аукционы персонажей.
type Service struct {
	auctions   domain.AuctionRepo
	characters domain.CharacterRepo
	profiles   domain.ProfileRepo
	events     domain.GameEventRepo
	timers     domain.Timers
	cfg        Config
	now        func() time.Time
	log        zerolog.Logger

	mu        sync.RWMutex
	announcer Announcer
}

// NewService создаёт сервис аукционов.
func NewService(auctions domain.AuctionRepo, characters domain.CharacterRepo, profiles domain.ProfileRepo, events domain.GameEventRepo, timers domain.Timers, cfg Config, log zerolog.Logger) *Service {
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Minute
	}
	if len(cfg.Increments) == 0 {
		cfg.Increments = []int64{200, 500}
	}
	return &Service{
		auctions:   auctions,
		characters: characters,
		profiles:   profiles,
		events:     events,
		timers:     timers,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// SetAnnouncer подключает публикацию итогов. Вызывается до Restore.
func (s *Service) SetAnnouncer(a Announcer) {
	s.mu.Lock()
	s.announcer = a
	s.mu.Unlock()
}

// Increments возвращает разрешённые шаги ставок.
func (s *Service) Increments() []int64 {
	return slices.Clone(s.cfg.Increments)
}

// Start открывает аукцион. Доступно только владельцу бота.
func (s *Service) Start(ctx context.Context, role domain.Role, characterID string, startingBid, channelID int64) (domain.Auction, error) {
	if !role.IsOwner() {
		return domain.Auction{}, domain.ErrForbidden
	}
	if startingBid <= 0 {
		return domain.Auction{}, ErrInvalidStartingBid
	}
	character, err := s.characters.GetCharacter(ctx, characterID)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("получение персонажа: %w", err)
	}
	now := s.now()
	a := domain.Auction{
		ID:          uuid.NewString(),
		Character:   character,
		ChannelID:   channelID,
		Status:      domain.AuctionOngoing,
		StartingBid: startingBid,
		HighestBid:  startingBid,
		EndTime:     now.Add(s.cfg.Duration),
		CreatedAt:   now,
	}
	if err := s.auctions.CreateAuction(ctx, a); err != nil {
		return domain.Auction{}, fmt.Errorf("создание аукциона: %w", err)
	}
	if err := s.arm(a); err != nil {
		return domain.Auction{}, err
	}
	s.log.Info().Str("auction", a.ID).Str("character", character.ID).Int64("bid", startingBid).Msg("auction: аукцион открыт")
	return a, nil
}

// AttachMessage запоминает сообщение с кнопками ставок.
func (s *Service) AttachMessage(ctx context.Context, auctionID string, messageID int) error {
	if err := s.auctions.SetAuctionMessage(ctx, auctionID, messageID); err != nil {
		return fmt.Errorf("сохранение сообщения аукциона: %w", err)
	}
	return nil
}

// PlaceBid поднимает ставку на increment compare-and-set по текущей ставке.
func (s *Service) PlaceBid(ctx context.Context, auctionID string, user domain.Profile, increment int64) (domain.Auction, error) {
	if !slices.Contains(s.cfg.Increments, increment) {
		metrics.IncAuctionBid("invalid")
		return domain.Auction{}, ErrInvalidIncrement
	}
	a, err := s.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("получение аукциона: %w", err)
	}
	now := s.now()
	if a.Status != domain.AuctionOngoing || !now.Before(a.EndTime) {
		metrics.IncAuctionBid("closed")
		return a, domain.ErrInactive
	}
	if a.HighestBidder == user.UserID {
		metrics.IncAuctionBid("self")
		return a, ErrSelfOutbid
	}

	bid := a.HighestBid + increment
	profile, err := s.profiles.EnsureProfile(ctx, user.UserID, user.DisplayName)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("получение профиля: %w", err)
	}
	if profile.Balances.Crystals < bid {
		metrics.IncAuctionBid("insufficient")
		return a, domain.ErrInsufficientFunds
	}

	ok, err := s.auctions.CompareAndSetBid(ctx, a.ID, a.HighestBid, bid, user.UserID, user.DisplayName, now)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("ставка: %w", err)
	}
	if !ok {
		metrics.IncAuctionBid("outbid")
		return a, ErrOutbid
	}
	metrics.IncAuctionBid("accepted")
	a.HighestBid = bid
	a.HighestBidder = user.UserID
	a.HighestBidderName = user.DisplayName
	return a, nil
}

// Close завершает аукцион. closed=false означает, что его уже закрыл другой вызов.
func (s *Service) Close(ctx context.Context, auctionID string) (domain.Auction, bool, error) {
	a, closed, err := s.auctions.CloseAuction(ctx, auctionID, s.now())
	if err != nil {
		return domain.Auction{}, false, fmt.Errorf("закрытие аукциона: %w", err)
	}
	if s.timers != nil {
		s.timers.Cancel(timerKey(auctionID))
	}
	if !closed {
		return a, false, nil
	}

	logEvent := s.log.Info().Str("auction", a.ID).Bool("settled", a.Settled)
	if a.HasBids() && !a.Settled {
		logEvent = s.log.Warn().Str("auction", a.ID).Bool("settled", false).Int64("bidder", a.HighestBidder)
	}
	logEvent.Int64("bid", a.HighestBid).Msg("auction: аукцион завершён")
	s.record(ctx, a)

	s.mu.RLock()
	announcer := s.announcer
	s.mu.RUnlock()
	if announcer != nil {
		announcer.AuctionClosed(ctx, a)
	}
	return a, true, nil
}

// Ongoing возвращает идущие аукционы.
func (s *Service) Ongoing(ctx context.Context) ([]domain.Auction, error) {
	list, err := s.auctions.ListOngoingAuctions(ctx)
	if err != nil {
		return nil, fmt.Errorf("список аукционов: %w", err)
	}
	return list, nil
}

// Restore заново взводит таймеры идущих аукционов после рестарта.
func (s *Service) Restore(ctx context.Context) (int, error) {
	list, err := s.Ongoing(ctx)
	if err != nil {
		return 0, err
	}
	for _, a := range list {
		if err := s.arm(a); err != nil {
			return 0, err
		}
	}
	return len(list), nil
}

// CloseExpired закрывает аукционы, срок которых истёк, например пропущенные во время простоя.
func (s *Service) CloseExpired(ctx context.Context) (int, error) {
	list, err := s.Ongoing(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	closed := 0
	for _, a := range list {
		if now.Before(a.EndTime) {
			continue
		}
		_, ok, err := s.Close(ctx, a.ID)
		if err != nil {
			return closed, err
		}
		if ok {
			closed++
		}
	}
	return closed, nil
}

func (s *Service) arm(a domain.Auction) error {
	if s.timers == nil {
		return nil
	}
	id := a.ID
	err := s.timers.After(timerKey(id), a.EndTime, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, _, err := s.Close(ctx, id); err != nil {
			s.log.Error().Err(err).Str("auction", id).Msg("auction: не удалось закрыть по таймеру")
		}
	})
	if err != nil {
		return fmt.Errorf("таймер аукциона: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, a domain.Auction) {
	if s.events == nil {
		return
	}
	event := domain.GameEvent{
		Event: domain.GameEventAuctionSettled,
		Metadata: map[string]any{
			"auction_id":   a.ID,
			"character_id": a.Character.ID,
			"bid":          a.HighestBid,
			"settled":      a.Settled,
		},
		OccurredAt: s.now(),
	}
	if a.HasBids() {
		event.UserID = domain.Int64Ptr(a.HighestBidder)
	}
	if err := s.events.RecordGameEvent(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("auction", a.ID).Msg("auction: не удалось сохранить событие")
	}
}

func timerKey(id string) string {
	return "auction:" + id
}
