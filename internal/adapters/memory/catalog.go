package memory

import (
	"context"
	"sort"
	"time"

	"tg-collector-bot/internal/domain"
)

// CreateBanner реализует domain.BannerRepo.
func (s *Store) CreateBanner(ctx context.Context, b domain.Banner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.banners[b.Name]; ok {
		return domain.ErrAlreadyExists
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	s.banners[b.Name] = &bannerRecord{banner: b}
	return nil
}

// GetBanner реализует domain.BannerRepo.
func (s *Store) GetBanner(ctx context.Context, name string) (domain.Banner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.banners[name]
	if !ok {
		return domain.Banner{}, domain.ErrNotFound
	}
	return b.banner, nil
}

// ListBanners реализует domain.BannerRepo.
func (s *Store) ListBanners(ctx context.Context) ([]domain.Banner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Banner, 0, len(s.banners))
	for _, b := range s.banners {
		out = append(out, b.banner)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// AddBannerCharacters реализует domain.BannerRepo.
func (s *Store) AddBannerCharacters(ctx context.Context, banner string, characterIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.banners[banner]
	if !ok {
		return 0, domain.ErrNotFound
	}
	present := make(map[string]struct{}, len(b.characters))
	for _, id := range b.characters {
		present[id] = struct{}{}
	}
	added := 0
	for _, id := range characterIDs {
		if _, dup := present[id]; dup {
			continue
		}
		if _, live := s.liveCharacter(id); !live {
			continue
		}
		b.characters = append(b.characters, id)
		present[id] = struct{}{}
		added++
	}
	return added, nil
}

// BannerCharacters реализует domain.BannerRepo.
func (s *Store) BannerCharacters(ctx context.Context, banner string) ([]domain.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.banners[banner]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := make([]domain.Character, 0, len(b.characters))
	for _, id := range b.characters {
		if c, live := s.liveCharacter(id); live {
			out = append(out, c)
		}
	}
	return out, nil
}

// CreateRedeemCode реализует domain.RedeemRepo.
func (s *Store) CreateRedeemCode(ctx context.Context, code domain.RedeemCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code.Code]; ok {
		return domain.ErrAlreadyExists
	}
	stored := code
	s.codes[code.Code] = &stored
	return nil
}

// UseRedeemCode реализует domain.RedeemRepo.
func (s *Store) UseRedeemCode(ctx context.Context, code string, userID int64, now time.Time) (domain.RedeemCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.codes[code]
	if !ok {
		return domain.RedeemCode{}, domain.ErrNotFound
	}
	if rc.UsedBy != 0 {
		return *rc, domain.ErrCodeUsed
	}
	rc.UsedBy = userID
	usedAt := now
	rc.UsedAt = &usedAt
	return *rc, nil
}

// GetRole реализует domain.RoleRepo.
func (s *Store) GetRole(ctx context.Context, userID int64) (domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role, ok := s.roles[userID]; ok {
		return role, nil
	}
	return domain.RoleUser, nil
}

// SetRole реализует domain.RoleRepo.
func (s *Store) SetRole(ctx context.Context, userID int64, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[userID] = role
	return nil
}

// ResetGameState реализует domain.AdminRepo.
func (s *Store) ResetGameState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats = make(map[int64]*domain.ChatDropState)
	s.settlements = make(map[string]domain.Settlement)
	s.userTotals = make(map[chatUserKey]int)
	s.chatTotals = make(map[int64]int)
	s.profiles = make(map[int64]*profileRecord)
	s.payouts = make(map[dayUserKey]struct{})
	s.auctions = make(map[string]*domain.Auction)
	s.raids = make(map[string]*raidRecord)
	s.attempts = make(map[dayUserKey]int)
	s.codes = make(map[string]*domain.RedeemCode)
	return nil
}

var (
	_ domain.CharacterRepo  = (*Store)(nil)
	_ domain.DropStateRepo  = (*Store)(nil)
	_ domain.SettlementRepo = (*Store)(nil)
	_ domain.ProfileRepo    = (*Store)(nil)
	_ domain.PassRepo       = (*Store)(nil)
	_ domain.AuctionRepo    = (*Store)(nil)
	_ domain.RaidRepo       = (*Store)(nil)
	_ domain.BannerRepo     = (*Store)(nil)
	_ domain.RedeemRepo     = (*Store)(nil)
	_ domain.RoleRepo       = (*Store)(nil)
	_ domain.AdminRepo      = (*Store)(nil)
	_ domain.GameEventRepo  = (*Store)(nil)
)
