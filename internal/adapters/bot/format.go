package bot

import (
	"fmt"
	"strings"
	"time"

	"tg-collector-bot/internal/domain"
)

func characterLine(c domain.Character) string {
	return fmt.Sprintf("%s | %s | %s | %s", c.ID, c.Name, c.Anime, c.Rarity.Label())
}

func characterCard(c domain.Character) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s\n", c.Name)
	fmt.Fprintf(&b, "📺 %s\n", c.Anime)
	fmt.Fprintf(&b, "%s\n", c.Rarity.Label())
	fmt.Fprintf(&b, "🆔 %s", c.ID)
	return b.String()
}

func balancesText(b domain.Balances) string {
	lines := []string{
		fmt.Sprintf("🪙 Токены: %d", b.Tokens),
		fmt.Sprintf("💎 Алмазы: %d", b.Diamonds),
		fmt.Sprintf("💰 Zeni: %d", b.Coins),
		fmt.Sprintf("🔮 Хроно-кристаллы: %d", b.Crystals),
		fmt.Sprintf("🎟 Билеты призыва: %d", b.Tickets),
		fmt.Sprintf("🏦 Вклад: %d", b.Bank),
	}
	return strings.Join(lines, "\n")
}

func creditText(b domain.Balances) string {
	var parts []string
	add := func(v int64, label string) {
		if v != 0 {
			parts = append(parts, fmt.Sprintf("+%d %s", v, label))
		}
	}
	add(b.Tokens, "токенов")
	add(b.Diamonds, "алмазов")
	add(b.Coins, "Zeni")
	add(b.Crystals, "кристаллов")
	add(b.Tickets, "билетов")
	if len(parts) == 0 {
		return "ничего"
	}
	return strings.Join(parts, ", ")
}

// formatDuration округляет до минут; меньше минуты показывается в секундах.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d сек", int(d.Round(time.Second).Seconds()))
	}
	d = d.Round(time.Minute)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	hours := int(d / time.Hour)
	minutes := int((d - time.Duration(hours)*time.Hour) / time.Minute)

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%d д", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d ч", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%d мин", minutes))
	}
	return strings.Join(parts, " ")
}
