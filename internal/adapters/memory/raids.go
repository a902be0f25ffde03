package memory

import (
	"context"
	"time"

	"tg-collector-bot/internal/domain"
)

func (s *Store) activeRaid(now time.Time) *raidRecord {
	for _, rec := range s.raids {
		if rec.raid.Active && now.Before(rec.raid.EndsAt) {
			return rec
		}
	}
	return nil
}

// ActiveRaid реализует domain.RaidRepo.
func (s *Store) ActiveRaid(ctx context.Context, now time.Time) (domain.Raid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.activeRaid(now); rec != nil {
		return rec.raid, nil
	}
	return domain.Raid{}, domain.ErrNotFound
}

// CreateRaid реализует domain.RaidRepo.
func (s *Store) CreateRaid(ctx context.Context, r domain.Raid) (domain.Raid, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.raids {
		if !rec.raid.Active {
			continue
		}
		if r.CreatedAt.Before(rec.raid.EndsAt) {
			return rec.raid, false, nil
		}
		rec.raid.Active = false
	}
	r.Active = true
	s.raids[r.ID] = &raidRecord{raid: r, participants: make(map[int64]int64)}
	return r, true, nil
}

// GetRaid реализует domain.RaidRepo.
func (s *Store) GetRaid(ctx context.Context, id string) (domain.Raid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.raids[id]
	if !ok {
		return domain.Raid{}, domain.ErrNotFound
	}
	return rec.raid, nil
}

// ApplyAttack реализует domain.RaidRepo.
func (s *Store) ApplyAttack(ctx context.Context, a domain.RaidAttack) (domain.RaidAttackResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.raids[a.RaidID]
	if !ok {
		return domain.RaidAttackResult{}, domain.ErrNotFound
	}
	if !rec.raid.Active || !a.Now.Before(rec.raid.EndsAt) {
		return domain.RaidAttackResult{Raid: rec.raid}, domain.ErrInactive
	}
	key := dayUserKey{userID: a.UserID, day: domain.UTCDay(a.Now)}
	if a.MaxAttempts > 0 && s.attempts[key] >= a.MaxAttempts {
		return domain.RaidAttackResult{Raid: rec.raid, Attempt: s.attempts[key]}, domain.ErrQuotaExhausted
	}
	s.attempts[key]++

	damage := a.Damage
	if damage > rec.raid.HP {
		damage = rec.raid.HP
	}
	rec.raid.HP -= damage
	if _, seen := rec.participants[a.UserID]; !seen {
		rec.order = append(rec.order, a.UserID)
	}
	rec.participants[a.UserID] += damage

	res := domain.RaidAttackResult{Attempt: s.attempts[key], Damage: damage}
	if rec.raid.HP == 0 {
		rec.raid.Active = false
		rec.raid.DefeatedBy = a.UserID
		res.Defeated = true
	}
	res.Raid = rec.raid
	return res, nil
}

// ExpireRaid реализует domain.RaidRepo.
func (s *Store) ExpireRaid(ctx context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.raids[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !rec.raid.Active {
		return false, nil
	}
	rec.raid.Active = false
	return true, nil
}

// SettleRaid реализует domain.RaidRepo.
func (s *Store) SettleRaid(ctx context.Context, id string, tokensPerDamage float64) ([]domain.RaidParticipant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.raids[id]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	if rec.raid.Active || rec.raid.HP > 0 || rec.raid.Rewarded {
		return nil, false, nil
	}
	rec.raid.Rewarded = true
	out := make([]domain.RaidParticipant, 0, len(rec.order))
	for _, userID := range rec.order {
		damage := rec.participants[userID]
		p := s.profile(userID, "")
		p.profile.Balances.Tokens += int64(float64(damage) * tokensPerDamage)
		out = append(out, domain.RaidParticipant{UserID: userID, Damage: damage})
	}
	return out, true, nil
}

// ListUnsettledRaids реализует domain.RaidRepo.
func (s *Store) ListUnsettledRaids(ctx context.Context) ([]domain.Raid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Raid
	for _, rec := range s.raids {
		if !rec.raid.Active && rec.raid.HP == 0 && !rec.raid.Rewarded {
			out = append(out, rec.raid)
		}
	}
	return out, nil
}

// ListExpiredRaids реализует domain.RaidRepo.
func (s *Store) ListExpiredRaids(ctx context.Context, now time.Time) ([]domain.Raid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Raid
	for _, rec := range s.raids {
		if rec.raid.Active && !now.Before(rec.raid.EndsAt) {
			out = append(out, rec.raid)
		}
	}
	return out, nil
}
