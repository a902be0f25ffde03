package memory

import (
	"context"
	"time"

	"tg-collector-bot/internal/domain"
)

func (s *Store) profile(userID int64, displayName string) *profileRecord {
	rec, ok := s.profiles[userID]
	if !ok {
		rec = &profileRecord{
			profile: domain.Profile{UserID: userID, DisplayName: displayName, Role: domain.RoleUser, CreatedAt: time.Now().UTC()},
			actions: make(map[domain.CooldownKind]actionRecord),
		}
		s.profiles[userID] = rec
	}
	if displayName != "" {
		rec.profile.DisplayName = displayName
	}
	return rec
}

func (s *Store) snapshot(rec *profileRecord) domain.Profile {
	p := rec.profile
	if role, ok := s.roles[p.UserID]; ok {
		p.Role = role
	}
	if rec.profile.PassExpiresAt != nil {
		expires := *rec.profile.PassExpiresAt
		p.PassExpiresAt = &expires
	}
	return p
}

// EnsureProfile реализует domain.ProfileRepo.
func (s *Store) EnsureProfile(ctx context.Context, userID int64, displayName string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(s.profile(userID, displayName)), nil
}

// GetProfile реализует domain.ProfileRepo.
func (s *Store) GetProfile(ctx context.Context, userID int64) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	return s.snapshot(rec), nil
}

// CountProfiles реализует domain.ProfileRepo.
func (s *Store) CountProfiles(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles), nil
}

// ListOwned реализует domain.ProfileRepo.
func (s *Store) ListOwned(ctx context.Context, userID int64) ([]domain.OwnedCharacter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	out := make([]domain.OwnedCharacter, 0, len(rec.owned))
	for _, o := range rec.owned {
		c, ok := s.liveCharacter(o.characterID)
		if !ok {
			continue
		}
		out = append(out, domain.OwnedCharacter{Character: c, AcquiredAt: o.acquiredAt, Source: o.source})
	}
	return out, nil
}

// SetFavorite реализует domain.ProfileRepo.
func (s *Store) SetFavorite(ctx context.Context, userID int64, characterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.profiles[userID]
	if !ok || indexOwned(rec.owned, characterID) < 0 {
		return domain.ErrNotOwned
	}
	rec.profile.FavoriteCharacterID = characterID
	return nil
}

// Exchange реализует domain.ProfileRepo.
func (s *Store) Exchange(ctx context.Context, userID int64, debit, credit domain.Balances) (domain.Balances, error) {
	return s.Grant(ctx, userID, debit, credit, nil, "")
}

// Grant реализует domain.ProfileRepo.
func (s *Store) Grant(ctx context.Context, userID int64, debit, credit domain.Balances, chars []domain.Character, source string) (domain.Balances, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.profile(userID, "")
	if !rec.profile.Balances.Covers(debit) {
		return rec.profile.Balances, domain.ErrInsufficientFunds
	}
	for _, c := range chars {
		if _, ok := s.liveCharacter(c.ID); !ok {
			return rec.profile.Balances, domain.ErrNotFound
		}
	}
	rec.profile.Balances = rec.profile.Balances.Sub(debit).Add(credit)
	now := time.Now().UTC()
	for _, c := range chars {
		rec.owned = append(rec.owned, ownedRecord{characterID: c.ID, acquiredAt: now, source: source})
	}
	return rec.profile.Balances, nil
}

// ReserveAction реализует domain.ProfileRepo.
func (s *Store) ReserveAction(ctx context.Context, userID int64, r domain.ActionReservation) (domain.ActionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.profile(userID, "")
	prev := rec.actions[r.Kind]
	state := domain.EvaluateAction(r, prev.last, prev.used, prev.day)
	if state.Allowed {
		rec.actions[r.Kind] = actionRecord{last: r.Now, used: state.UsedToday, day: domain.UTCDay(r.Now)}
	}
	return state, nil
}

// TransferCharacter реализует domain.ProfileRepo.
func (s *Store) TransferCharacter(ctx context.Context, from, to int64, characterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.profiles[from]
	if !ok {
		return domain.ErrNotOwned
	}
	idx := indexOwned(src.owned, characterID)
	if idx < 0 {
		return domain.ErrNotOwned
	}
	src.owned = append(src.owned[:idx], src.owned[idx+1:]...)
	dst := s.profile(to, "")
	dst.owned = append(dst.owned, ownedRecord{characterID: characterID, acquiredAt: time.Now().UTC(), source: domain.SourceGift})
	return nil
}

// SwapCharacters реализует domain.ProfileRepo.
func (s *Store) SwapCharacters(ctx context.Context, a int64, aCharacterID string, b int64, bCharacterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ra, okA := s.profiles[a]
	rb, okB := s.profiles[b]
	if !okA || !okB {
		return domain.ErrNotOwned
	}
	ia := indexOwned(ra.owned, aCharacterID)
	ib := indexOwned(rb.owned, bCharacterID)
	if ia < 0 || ib < 0 {
		return domain.ErrNotOwned
	}
	now := time.Now().UTC()
	ra.owned = append(ra.owned[:ia], ra.owned[ia+1:]...)
	rb.owned = append(rb.owned[:ib], rb.owned[ib+1:]...)
	ra.owned = append(ra.owned, ownedRecord{characterID: bCharacterID, acquiredAt: now, source: domain.SourceTrade})
	rb.owned = append(rb.owned, ownedRecord{characterID: aCharacterID, acquiredAt: now, source: domain.SourceTrade})
	return nil
}

// ActivatePass реализует domain.PassRepo.
func (s *Store) ActivatePass(ctx context.Context, userID int64, price int64, expiresAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.profile(userID, "")
	if rec.profile.HasActivePass(now) {
		return domain.ErrPassActive
	}
	debit := domain.Balances{Diamonds: price}
	if !rec.profile.Balances.Covers(debit) {
		return domain.ErrInsufficientFunds
	}
	rec.profile.Balances = rec.profile.Balances.Sub(debit)
	expires := expiresAt
	rec.profile.PassExpiresAt = &expires
	return nil
}

// ListPassHolders реализует domain.PassRepo.
func (s *Store) ListPassHolders(ctx context.Context, now time.Time) ([]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Profile
	for _, rec := range s.profiles {
		if rec.profile.HasActivePass(now) {
			out = append(out, s.snapshot(rec))
		}
	}
	return out, nil
}

// ClearExpiredPasses реализует domain.PassRepo.
func (s *Store) ClearExpiredPasses(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := 0
	for _, rec := range s.profiles {
		if rec.profile.PassExpiresAt != nil && !now.Before(*rec.profile.PassExpiresAt) {
			rec.profile.PassExpiresAt = nil
			cleared++
		}
	}
	return cleared, nil
}

// AcquirePassPayout реализует domain.PassRepo.
func (s *Store) AcquirePassPayout(ctx context.Context, userID int64, day time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dayUserKey{userID: userID, day: domain.UTCDay(day)}
	if _, ok := s.payouts[key]; ok {
		return false, nil
	}
	s.payouts[key] = struct{}{}
	return true, nil
}

func indexOwned(owned []ownedRecord, characterID string) int {
	for i, o := range owned {
		if o.characterID == characterID {
			return i
		}
	}
	return -1
}
