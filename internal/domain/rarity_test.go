package domain

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func TestParseRarityCode(t *testing.T) {
	cases := map[string]Rarity{
		"1": RarityCommon,
		"3": RarityExtreme,
		"5": RarityLimited,
		"7": RarityCelestial,
		"8": RaritySupreme,
	}
	for code, want := range cases {
		got, err := ParseRarityCode(code)
		if err != nil {
			t.Fatalf("не ожидали ошибку для %s: %v", code, err)
		}
		if got != want {
			t.Fatalf("код %s: ожидали %v, получили %v", code, want, got)
		}
	}
	for _, bad := range []string{"", "0", "9", "12", "x"} {
		if _, err := ParseRarityCode(bad); !errors.Is(err, ErrUnknownRarity) {
			t.Fatalf("ожидали ErrUnknownRarity для %q, получили %v", bad, err)
		}
	}
}

func TestRestrictedRarities(t *testing.T) {
	for _, r := range AllRarities() {
		want := r == RaritySupreme || r == RarityCelestial
		if r.Restricted() != want {
			t.Fatalf("%v: Restricted() = %v", r, r.Restricted())
		}
	}
}

func TestDropWeightOnlyZeroForRestricted(t *testing.T) {
	for _, r := range AllRarities() {
		w := DropWeight(r)
		if r.Restricted() && w != 0 {
			t.Fatalf("%v: запрещённый тир не должен выпадать, вес %v", r, w)
		}
		if !r.Restricted() && w <= 0 {
			t.Fatalf("%v: ожидали положительный вес дропа, получили %v", r, w)
		}
	}
	if len(DroppableRarities()) != len(AllRarities())-2 {
		t.Fatalf("ожидали все тиры кроме запрещённых, получили %v", DroppableRarities())
	}
}

func TestRewardFor(t *testing.T) {
	if got := RewardFor(RarityRare); got.TokensMin != 200 || got.TokensMax != 350 || got.DiamondsMin != 3 || got.DiamondsMax != 7 {
		t.Fatalf("неожиданный диапазон Rare: %+v", got)
	}
	if got := RewardFor(RarityUnknown); got != fallbackReward {
		t.Fatalf("ожидали запасной диапазон, получили %+v", got)
	}
	rnd := rand.New(rand.NewPCG(1, 2))
	for _, r := range AllRarities() {
		rng := RewardFor(r)
		for i := 0; i < 100; i++ {
			if reward := rng.Roll(rnd); !rng.Contains(reward) {
				t.Fatalf("%v: награда %+v вне диапазона %+v", r, reward, rng)
			}
		}
	}
}

func TestWeightedPick(t *testing.T) {
	rnd := rand.New(rand.NewPCG(7, 7))
	if got := WeightedPick(rnd, []float64{0, 0}); got != -1 {
		t.Fatalf("ожидали -1 для нулевых весов, получили %d", got)
	}
	for i := 0; i < 200; i++ {
		if got := WeightedPick(rnd, []float64{0, 5, 0}); got != 1 {
			t.Fatalf("ожидали единственный ненулевой индекс, получили %d", got)
		}
	}
}
