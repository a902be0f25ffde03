package domain

import (
	"fmt"
	"strings"
)

// Rarity описывает тир редкости персонажа. Значения упорядочены по возрастанию редкости.
type Rarity int

const (
	RarityUnknown Rarity = iota
	RarityCommon
	RarityRare
	RarityExtreme
	RaritySparking
	RarityLimited
	RarityUltimate
	RarityCelestial
	RaritySupreme
)

// RarityInfo содержит статическую конфигурацию тира.
type RarityInfo struct {
	Name         string
	Emoji        string
	DropWeight   float64
	BannerWeight float64
	Power        int64
	Reward       RewardRange
}

var rarities = map[Rarity]RarityInfo{
	RarityCommon: {
		Name: "Common", Emoji: "⛔", DropWeight: 45, BannerWeight: 40, Power: 100,
		Reward: RewardRange{TokensMin: 100, TokensMax: 150, DiamondsMin: 1, DiamondsMax: 3},
	},
	RarityRare: {
		Name: "Rare", Emoji: "🍀", DropWeight: 30, BannerWeight: 30, Power: 300,
		Reward: RewardRange{TokensMin: 200, TokensMax: 350, DiamondsMin: 3, DiamondsMax: 7},
	},
	RarityExtreme: {
		Name: "Extreme", Emoji: "🟣", DropWeight: 1, Power: 800,
		Reward: RewardRange{TokensMin: 300, TokensMax: 450, DiamondsMin: 5, DiamondsMax: 10},
	},
	RaritySparking: {
		Name: "Sparking", Emoji: "🟡", DropWeight: 24, BannerWeight: 24, Power: 1500,
		Reward: RewardRange{TokensMin: 400, TokensMax: 600, DiamondsMin: 7, DiamondsMax: 12},
	},
	RarityLimited: {
		Name: "Limited Edition", Emoji: "🔮", DropWeight: 0.9, BannerWeight: 2, Power: 6000,
		Reward: RewardRange{TokensMin: 500, TokensMax: 800, DiamondsMin: 10, DiamondsMax: 15},
	},
	RarityUltimate: {
		Name: "Ultimate", Emoji: "🔱", DropWeight: 0.1, BannerWeight: 1, Power: 2500,
		Reward: RewardRange{TokensMin: 750, TokensMax: 1200, DiamondsMin: 15, DiamondsMax: 20},
	},
	RarityCelestial: {
		Name: "Celestial", Emoji: "⛩️", BannerWeight: 0.01, Power: 10000,
		Reward: RewardRange{TokensMin: 1000, TokensMax: 1500, DiamondsMin: 25, DiamondsMax: 30},
	},
	RaritySupreme: {
		Name: "Supreme", Emoji: "👑", BannerWeight: 0.05, Power: 4000,
		Reward: RewardRange{TokensMin: 800, TokensMax: 1300, DiamondsMin: 20, DiamondsMax: 25},
	},
}

// fallbackReward применяется к редкостям без собственной записи в таблице.
var fallbackReward = RewardRange{TokensMin: 100, TokensMax: 200, DiamondsMin: 1, DiamondsMax: 5}

// AllRarities возвращает известные тиры в порядке возрастания.
func AllRarities() []Rarity {
	return []Rarity{
		RarityCommon, RarityRare, RarityExtreme, RaritySparking,
		RarityLimited, RarityUltimate, RarityCelestial, RaritySupreme,
	}
}

// ParseRarityCode разбирает код редкости 1-8, используемый админскими командами.
func ParseRarityCode(code string) (Rarity, error) {
	code = strings.TrimSpace(code)
	if len(code) != 1 || code[0] < '1' || code[0] > '8' {
		return RarityUnknown, fmt.Errorf("%w: %q", ErrUnknownRarity, code)
	}
	return Rarity(code[0] - '0'), nil
}

// Valid сообщает, известен ли тир.
func (r Rarity) Valid() bool {
	_, ok := rarities[r]
	return ok
}

// Info возвращает конфигурацию тира.
func (r Rarity) Info() RarityInfo {
	return rarities[r]
}

// Restricted сообщает, исключён ли тир из обычных дропов в чатах.
func (r Rarity) Restricted() bool {
	return r == RaritySupreme || r == RarityCelestial
}

func (r Rarity) String() string {
	if info, ok := rarities[r]; ok {
		return info.Name
	}
	return "Unknown"
}

// Label возвращает название тира с эмодзи.
func (r Rarity) Label() string {
	if info, ok := rarities[r]; ok {
		return info.Emoji + " " + info.Name
	}
	return "❔ Unknown"
}

// RewardFor возвращает диапазон награды за угаданного персонажа тира.
func RewardFor(r Rarity) RewardRange {
	if info, ok := rarities[r]; ok && info.Reward != (RewardRange{}) {
		return info.Reward
	}
	return fallbackReward
}
