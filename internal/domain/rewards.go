package domain

import "math/rand/v2"

// Random описывает источник случайности, который используют сценарии.
// *rand.Rand удовлетворяет интерфейсу, но не безопасен для конкурентного доступа.
type Random interface {
	IntN(n int) int
	Float64() float64
}

type globalRandom struct{}

func (globalRandom) IntN(n int) int   { return rand.IntN(n) }
func (globalRandom) Float64() float64 { return rand.Float64() }

// DefaultRandom возвращает потокобезопасный источник на базе math/rand/v2.
func DefaultRandom() Random {
	return globalRandom{}
}

// RollRange возвращает случайное значение из отрезка [min, max].
func RollRange(rnd Random, min, max int64) int64 {
	if max <= min {
		return min
	}
	return min + int64(rnd.IntN(int(max-min+1)))
}

// RewardRange задаёт границы награды в двух валютах.
type RewardRange struct {
	TokensMin   int64
	TokensMax   int64
	DiamondsMin int64
	DiamondsMax int64
}

// Roll вытягивает конкретную награду из диапазона.
func (r RewardRange) Roll(rnd Random) Reward {
	return Reward{
		Tokens:   RollRange(rnd, r.TokensMin, r.TokensMax),
		Diamonds: RollRange(rnd, r.DiamondsMin, r.DiamondsMax),
	}
}

// Contains проверяет, что награда укладывается в диапазон.
func (r RewardRange) Contains(reward Reward) bool {
	return reward.Tokens >= r.TokensMin && reward.Tokens <= r.TokensMax &&
		reward.Diamonds >= r.DiamondsMin && reward.Diamonds <= r.DiamondsMax
}

// Reward — начисление за победу в дропе.
type Reward struct {
	Tokens   int64 `json:"tokens"`
	Diamonds int64 `json:"diamonds"`
}

// Balances переводит награду в дельту баланса.
func (r Reward) Balances() Balances {
	return Balances{Tokens: r.Tokens, Diamonds: r.Diamonds}
}

// WeightedPick выбирает индекс пропорционально весам. Нулевые и отрицательные веса не выбираются.
// Возвращает -1, если суммарный вес равен нулю.
func WeightedPick(rnd Random, weights []float64) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}
	target := rnd.Float64() * total
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		if target < w {
			return i
		}
		target -= w
	}
	return last
}
