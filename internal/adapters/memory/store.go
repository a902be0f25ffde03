// Package memory содержит in-process реализацию репозиториев для dev-режима и тестов.
// Все операции выполняются под одним мьютексом, поэтому compare-and-set здесь атомарны так же,
// как условные UPDATE в Postgres.
package memory

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"tg-collector-bot/internal/domain"
)

// Store реализует репозитории домена в памяти процесса.
type Store struct {
	mu sync.Mutex

	seq        int
	characters map[string]domain.Character

	chats       map[int64]*domain.ChatDropState
	settlements map[string]domain.Settlement
	userTotals  map[chatUserKey]int
	chatTotals  map[int64]int

	profiles map[int64]*profileRecord
	payouts  map[dayUserKey]struct{}

	auctions map[string]*domain.Auction

	raids    map[string]*raidRecord
	attempts map[dayUserKey]int

	banners map[string]*bannerRecord
	codes   map[string]*domain.RedeemCode
	roles   map[int64]domain.Role
	events  []domain.GameEvent
}

type chatUserKey struct {
	chatID int64
	userID int64
}

type dayUserKey struct {
	userID int64
	day    time.Time
}

type ownedRecord struct {
	characterID string
	acquiredAt  time.Time
	source      string
}

type actionRecord struct {
	last time.Time
	used int
	day  time.Time
}

type profileRecord struct {
	profile domain.Profile
	owned   []ownedRecord
	actions map[domain.CooldownKind]actionRecord
}

type raidRecord struct {
	raid         domain.Raid
	participants map[int64]int64
	order        []int64
}

type bannerRecord struct {
	banner     domain.Banner
	characters []string
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		characters:  make(map[string]domain.Character),
		chats:       make(map[int64]*domain.ChatDropState),
		settlements: make(map[string]domain.Settlement),
		userTotals:  make(map[chatUserKey]int),
		chatTotals:  make(map[int64]int),
		profiles:    make(map[int64]*profileRecord),
		payouts:     make(map[dayUserKey]struct{}),
		auctions:    make(map[string]*domain.Auction),
		raids:       make(map[string]*raidRecord),
		attempts:    make(map[dayUserKey]int),
		banners:     make(map[string]*bannerRecord),
		codes:       make(map[string]*domain.RedeemCode),
		roles:       make(map[int64]domain.Role),
	}
}

// NextCharacterID реализует domain.CharacterRepo.
func (s *Store) NextCharacterID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("%03d", s.seq), nil
}

// CreateCharacter реализует domain.CharacterRepo.
func (s *Store) CreateCharacter(ctx context.Context, c domain.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.characters[c.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.characters[c.ID] = c
	return nil
}

// GetCharacter реализует domain.CharacterRepo.
func (s *Store) GetCharacter(ctx context.Context, id string) (domain.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.liveCharacter(id)
	if !ok {
		return domain.Character{}, domain.ErrNotFound
	}
	return c, nil
}

// UpdateCharacter реализует domain.CharacterRepo.
func (s *Store) UpdateCharacter(ctx context.Context, c domain.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.liveCharacter(c.ID)
	if !ok {
		return domain.ErrNotFound
	}
	c.CreatedAt = current.CreatedAt
	c.DeletedAt = nil
	s.characters[c.ID] = c
	return nil
}

// SoftDeleteCharacter реализует domain.CharacterRepo.
func (s *Store) SoftDeleteCharacter(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.liveCharacter(id)
	if !ok {
		return domain.ErrNotFound
	}
	deletedAt := now
	c.DeletedAt = &deletedAt
	s.characters[id] = c

	for _, rec := range s.profiles {
		kept := rec.owned[:0]
		for _, o := range rec.owned {
			if o.characterID != id {
				kept = append(kept, o)
			}
		}
		rec.owned = kept
		if rec.profile.FavoriteCharacterID == id {
			rec.profile.FavoriteCharacterID = ""
		}
	}
	for _, b := range s.banners {
		b.characters = removeAll(b.characters, id)
	}
	for _, st := range s.chats {
		if st.ActiveDrop != nil && st.ActiveDrop.Character.ID == id && !st.Claimed() {
			st.ActiveDrop = nil
		}
	}
	return nil
}

// ListCharacters реализует domain.CharacterRepo.
func (s *Store) ListCharacters(ctx context.Context, rarities []domain.Rarity) ([]domain.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCharacters(rarities), nil
}

// RandomCharacter реализует domain.CharacterRepo.
func (s *Store) RandomCharacter(ctx context.Context, rarities []domain.Rarity) (domain.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.listCharacters(rarities)
	if len(list) == 0 {
		return domain.Character{}, domain.ErrNotFound
	}
	return list[rand.IntN(len(list))], nil
}

func (s *Store) listCharacters(rarities []domain.Rarity) []domain.Character {
	allowed := make(map[domain.Rarity]struct{}, len(rarities))
	for _, r := range rarities {
		allowed[r] = struct{}{}
	}
	out := make([]domain.Character, 0, len(s.characters))
	for _, c := range s.characters {
		if c.DeletedAt != nil {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[c.Rarity]; !ok {
				continue
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) liveCharacter(id string) (domain.Character, bool) {
	c, ok := s.characters[id]
	if !ok || c.DeletedAt != nil {
		return domain.Character{}, false
	}
	return c, true
}

func (s *Store) chat(chatID int64, defaultFrequency int) *domain.ChatDropState {
	st, ok := s.chats[chatID]
	if !ok {
		st = &domain.ChatDropState{ChatID: chatID, MessageFrequency: defaultFrequency}
		s.chats[chatID] = st
	}
	return st
}

// AdvanceCounter реализует domain.DropStateRepo.
func (s *Store) AdvanceCounter(ctx context.Context, chatID int64, defaultFrequency int) (domain.CounterState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.chat(chatID, defaultFrequency)
	st.MessageCount++
	return domain.CounterState{Count: st.MessageCount, Frequency: st.MessageFrequency}, nil
}

// ResetCounter реализует domain.DropStateRepo.
func (s *Store) ResetCounter(ctx context.Context, chatID int64, observed int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.chats[chatID]
	if !ok || st.MessageCount != observed {
		return false, nil
	}
	st.MessageCount = 0
	return true, nil
}

// SetFrequency реализует domain.DropStateRepo.
func (s *Store) SetFrequency(ctx context.Context, chatID int64, frequency, defaultFrequency int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat(chatID, defaultFrequency).MessageFrequency = frequency
	return nil
}

// GetDropState реализует domain.DropStateRepo.
func (s *Store) GetDropState(ctx context.Context, chatID int64) (domain.ChatDropState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.chats[chatID]
	if !ok {
		return domain.ChatDropState{}, domain.ErrNotFound
	}
	out := *st
	out.ShownCharacterIDs = append([]string(nil), st.ShownCharacterIDs...)
	if st.ActiveDrop != nil {
		drop := *st.ActiveDrop
		out.ActiveDrop = &drop
	}
	return out, nil
}

// ActivateDrop реализует domain.DropStateRepo.
func (s *Store) ActivateDrop(ctx context.Context, chatID int64, defaultFrequency int, pick domain.DropPicker) (domain.Drop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.chat(chatID, defaultFrequency)
	drop, reset, err := pick(append([]string(nil), st.ShownCharacterIDs...))
	if err != nil {
		return domain.Drop{}, err
	}
	drop.ChatID = chatID
	st.ActiveDrop = &drop
	st.ClaimedBy = 0
	st.ClaimedAt = nil
	if reset {
		st.ShownCharacterIDs = []string{drop.Character.ID}
	} else {
		st.ShownCharacterIDs = append(st.ShownCharacterIDs, drop.Character.ID)
	}
	return drop, nil
}

// ClaimDrop реализует domain.DropStateRepo.
func (s *Store) ClaimDrop(ctx context.Context, chatID int64, dropID string, userID int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.chats[chatID]
	if !ok || st.ActiveDrop == nil || st.ActiveDrop.ID != dropID || st.Claimed() {
		return false, nil
	}
	st.ClaimedBy = userID
	claimedAt := now
	st.ClaimedAt = &claimedAt
	return true, nil
}

// ApplySettlement реализует domain.SettlementRepo.
func (s *Store) ApplySettlement(ctx context.Context, st domain.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.settlements[st.DropID]; ok {
		return domain.ErrAlreadySettled
	}
	if st.SettledAt.IsZero() {
		st.SettledAt = time.Now().UTC()
	}
	rec := s.profile(st.UserID, "")
	rec.profile.Balances = rec.profile.Balances.Add(st.Reward.Balances())
	rec.owned = append(rec.owned, ownedRecord{characterID: st.Character.ID, acquiredAt: st.SettledAt, source: domain.SourceDrop})
	s.userTotals[chatUserKey{chatID: st.ChatID, userID: st.UserID}]++
	s.chatTotals[st.ChatID]++
	s.settlements[st.DropID] = st
	return nil
}

// Settlement возвращает проведённый расчёт по дропу.
func (s *Store) Settlement(dropID string) (domain.Settlement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.settlements[dropID]
	return st, ok
}

// GuessedTotals возвращает счётчики угаданных персонажей по чату и по паре (чат, игрок).
func (s *Store) GuessedTotals(chatID, userID int64) (chat int, user int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatTotals[chatID], s.userTotals[chatUserKey{chatID: chatID, userID: userID}]
}

// RecordGameEvent реализует domain.GameEventRepo.
func (s *Store) RecordGameEvent(ctx context.Context, event domain.GameEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	s.events = append(s.events, event)
	return nil
}

// Events возвращает сохранённые игровые события.
func (s *Store) Events() []domain.GameEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.GameEvent(nil), s.events...)
}

func removeAll(ids []string, id string) []string {
	kept := ids[:0]
	for _, v := range ids {
		if v != id {
			kept = append(kept, v)
		}
	}
	return kept
}
