package domain

import "sort"

// RarityWeight возвращает вес тира для конкретного вида выборки.
type RarityWeight func(Rarity) float64

// DropWeight — веса дропов в чатах.
func DropWeight(r Rarity) float64 {
	if r.Restricted() {
		return 0
	}
	return r.Info().DropWeight
}

// BannerWeight — веса призыва на баннерах.
func BannerWeight(r Rarity) float64 {
	return r.Info().BannerWeight
}

// PickByRarity сначала выбирает тир пропорционально весу среди представленных в pool,
// затем равновероятно персонажа внутри тира. false — ни у одного тира нет положительного веса.
func PickByRarity(rnd Random, pool []Character, weight RarityWeight) (Character, bool) {
	byRarity := make(map[Rarity][]Character)
	for _, c := range pool {
		if weight(c.Rarity) > 0 {
			byRarity[c.Rarity] = append(byRarity[c.Rarity], c)
		}
	}
	if len(byRarity) == 0 {
		return Character{}, false
	}
	tiers := make([]Rarity, 0, len(byRarity))
	for r := range byRarity {
		tiers = append(tiers, r)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	weights := make([]float64, len(tiers))
	for i, r := range tiers {
		weights[i] = weight(r)
	}
	idx := WeightedPick(rnd, weights)
	if idx < 0 {
		return Character{}, false
	}
	candidates := byRarity[tiers[idx]]
	return candidates[rnd.IntN(len(candidates))], true
}

// DroppableRarities возвращает тиры, которые могут выпасть в чате.
func DroppableRarities() []Rarity {
	var out []Rarity
	for _, r := range AllRarities() {
		if DropWeight(r) > 0 {
			out = append(out, r)
		}
	}
	return out
}
